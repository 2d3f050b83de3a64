package compliance_test

import (
	"errors"
	"log/slog"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/worklens/worklens/internal"
	"github.com/worklens/worklens/internal/compliance"
)

type mockConfigRepository struct {
	stored    *compliance.Config
	getError  error
	saveError error
	saves     int
}

func (m *mockConfigRepository) Get() (*compliance.Config, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	if m.stored == nil {
		return nil, compliance.ErrConfigNotFound
	}
	copied := *m.stored
	return &copied, nil
}

func (m *mockConfigRepository) Save(cfg *compliance.Config) error {
	if m.saveError != nil {
		return m.saveError
	}
	m.saves++
	copied := *cfg
	m.stored = &copied
	return nil
}

func intPtr(v int) *int { return &v }

var _ = Describe("ConfigService", func() {
	var (
		repo    *mockConfigRepository
		service *compliance.ConfigService
	)

	BeforeEach(func() {
		repo = &mockConfigRepository{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = compliance.NewConfigService(repo, logger)
	})

	Describe("GetSnapshot", func() {
		It("seeds and returns the default record when none is stored", func() {
			cfg, err := service.GetSnapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.MissingEntryDays).To(Equal(7))
			Expect(cfg.OverrunThreshold).To(Equal(150))
			Expect(cfg.WorkMonday).To(BeTrue())
			Expect(cfg.WorkSaturday).To(BeFalse())
			Expect(repo.saves).To(Equal(1))
		})

		It("seeds the default record once under concurrent first reads", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := service.GetSnapshot()
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			Expect(repo.saves).To(Equal(1))
		})

		It("returns the stored record", func() {
			repo.stored = compliance.DefaultConfig()
			repo.stored.MissingEntryDays = 5

			cfg, err := service.GetSnapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.MissingEntryDays).To(Equal(5))
		})

		It("propagates store errors", func() {
			repo.getError = errors.New("connection refused")

			_, err := service.GetSnapshot()
			Expect(err).To(HaveOccurred())
		})

		It("serves later reads from the cached record", func() {
			_, err := service.GetSnapshot()
			Expect(err).NotTo(HaveOccurred())

			repo.getError = errors.New("connection refused")
			cfg, err := service.GetSnapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.MissingEntryDays).To(Equal(7))
		})
	})

	Describe("Update", func() {
		It("merges only the supplied fields", func() {
			updated, err := service.Update(compliance.UpdateConfigDTO{
				MissingEntryDays: intPtr(10),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.MissingEntryDays).To(Equal(10))
			Expect(updated.LateEntryDays).To(Equal(3))
			Expect(updated.OverrunThreshold).To(Equal(150))
		})

		It("rejects values outside their range without persisting", func() {
			_, err := service.GetSnapshot()
			Expect(err).NotTo(HaveOccurred())
			savesBefore := repo.saves

			_, err = service.Update(compliance.UpdateConfigDTO{
				OverrunThreshold: intPtr(50),
			})
			Expect(err).To(HaveOccurred())

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			Expect(repo.saves).To(Equal(savesBefore))

			cfg, err := service.GetSnapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.OverrunThreshold).To(Equal(150))
		})

		It("rejects a calendar with no working days", func() {
			off := false
			_, err := service.Update(compliance.UpdateConfigDTO{
				WorkMonday:    &off,
				WorkTuesday:   &off,
				WorkWednesday: &off,
				WorkThursday:  &off,
				WorkFriday:    &off,
			})
			Expect(err).To(HaveOccurred())
		})

		It("keeps the current record when persistence fails", func() {
			_, err := service.GetSnapshot()
			Expect(err).NotTo(HaveOccurred())

			repo.saveError = errors.New("connection refused")
			_, err = service.Update(compliance.UpdateConfigDTO{
				MissingEntryDays: intPtr(10),
			})
			Expect(err).To(HaveOccurred())

			cfg, err := service.GetSnapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.MissingEntryDays).To(Equal(7))
		})
	})

	Describe("LookbackDays", func() {
		It("covers the widest configured window", func() {
			cfg := compliance.DefaultConfig()
			cfg.MissingEntryDays = 7
			cfg.LateEntryCheckDays = 30
			cfg.StaleTaskDays = 14
			Expect(cfg.LookbackDays()).To(BeNumerically(">=", 30))
		})

		It("stretches working-day windows across sparse calendars", func() {
			cfg := compliance.DefaultConfig()
			cfg.WorkMonday = false
			cfg.WorkTuesday = false
			cfg.WorkWednesday = false
			cfg.WorkThursday = false
			cfg.WorkFriday = false
			cfg.WorkSaturday = true
			cfg.MissingEntryDays = 30

			// 30 working Saturdays span 30 weeks of calendar days.
			Expect(cfg.LookbackDays()).To(BeNumerically(">=", 210))
		})
	})
})
