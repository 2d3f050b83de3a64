package compliance_test

import (
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/worklens/worklens/internal"
	"github.com/worklens/worklens/internal/compliance"
)

type mockViolationRepository struct {
	violations  map[int64]*compliance.Violation
	byDedupKey  map[string]int64
	insertError error
	updateError error
	nextID      int64
}

func newMockViolationRepository() *mockViolationRepository {
	return &mockViolationRepository{
		violations: make(map[int64]*compliance.Violation),
		byDedupKey: make(map[string]int64),
		nextID:     1,
	}
}

func (m *mockViolationRepository) InsertIfAbsent(v *compliance.Violation) (bool, error) {
	if m.insertError != nil {
		return false, m.insertError
	}
	if _, exists := m.byDedupKey[v.DedupKey]; exists {
		return false, nil
	}
	v.ID = m.nextID
	m.nextID++
	v.CreatedAt = time.Now()
	m.violations[v.ID] = v
	m.byDedupKey[v.DedupKey] = v.ID
	return true, nil
}

func (m *mockViolationRepository) GetByID(id int64) (*compliance.Violation, error) {
	v, exists := m.violations[id]
	if !exists {
		return nil, compliance.ErrViolationNotFound
	}
	copied := *v
	return &copied, nil
}

func (m *mockViolationRepository) List(filter compliance.ViolationFilter) ([]*compliance.Violation, int64, error) {
	var out []*compliance.Violation
	for _, v := range m.violations {
		if filter.Kind != "" && string(v.Kind) != filter.Kind {
			continue
		}
		if filter.Status != "" && string(v.Status) != filter.Status {
			continue
		}
		if filter.UserID != 0 && v.UserID != filter.UserID {
			continue
		}
		out = append(out, v)
	}
	return out, int64(len(out)), nil
}

func (m *mockViolationRepository) ListOpen() ([]*compliance.Violation, error) {
	var out []*compliance.Violation
	for _, v := range m.violations {
		if v.Status == compliance.StatusOpen {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockViolationRepository) CountOpenByKind() (map[compliance.Kind]int64, error) {
	counts := make(map[compliance.Kind]int64)
	for _, kind := range compliance.Kinds() {
		counts[kind] = 0
	}
	for _, v := range m.violations {
		if v.Status == compliance.StatusOpen {
			counts[v.Kind]++
		}
	}
	return counts, nil
}

func (m *mockViolationRepository) UpdateStatus(id int64, status compliance.Status, resolvedAt *time.Time) error {
	if m.updateError != nil {
		return m.updateError
	}
	v, exists := m.violations[id]
	if !exists {
		return compliance.ErrViolationNotFound
	}
	v.Status = status
	v.ResolvedAt = resolvedAt
	return nil
}

var _ = Describe("ViolationService", func() {
	var (
		repo    *mockViolationRepository
		service *compliance.Service
	)

	newCandidate := func(kind compliance.Kind, userID int64, anchor string) compliance.Candidate {
		return compliance.Candidate{
			Kind:     kind,
			Severity: compliance.SeverityMedium,
			UserID:   userID,
			Anchor:   anchor,
		}
	}

	BeforeEach(func() {
		repo = newMockViolationRepository()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = compliance.NewService(repo, logger)
	})

	Describe("UpsertMany", func() {
		It("creates new violations and counts them per kind", func() {
			candidates := []compliance.Candidate{
				newCandidate(compliance.KindMissingEntry, 1, "2025-W12"),
				newCandidate(compliance.KindMissingEntry, 2, "2025-W12"),
				newCandidate(compliance.KindRoundNumbers, 1, "2025-W12"),
			}

			result, err := service.UpsertMany(candidates, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Created).To(Equal(3))
			Expect(result.Unchanged).To(Equal(0))
			Expect(result.CreatedByKind[compliance.KindMissingEntry]).To(Equal(2))
			Expect(result.CreatedByKind[compliance.KindRoundNumbers]).To(Equal(1))
		})

		It("is idempotent across re-runs in the same window", func() {
			candidates := []compliance.Candidate{
				newCandidate(compliance.KindMissingEntry, 1, "2025-W12"),
			}

			first, err := service.UpsertMany(candidates, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Created).To(Equal(1))

			second, err := service.UpsertMany(candidates, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Created).To(Equal(0))
			Expect(second.Unchanged).To(Equal(1))
		})

		It("does not recreate a resolved violation in the same window", func() {
			candidates := []compliance.Candidate{
				newCandidate(compliance.KindMissingEntry, 1, "2025-W12"),
			}

			_, err := service.UpsertMany(candidates, time.Now())
			Expect(err).NotTo(HaveOccurred())

			_, err = service.UpdateStatus(1, compliance.UpdateStatusDTO{Status: compliance.StatusResolved})
			Expect(err).NotTo(HaveOccurred())

			result, err := service.UpsertMany(candidates, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Created).To(Equal(0))
			Expect(result.Unchanged).To(Equal(1))
		})

		It("creates a fresh violation for the next window", func() {
			_, err := service.UpsertMany([]compliance.Candidate{
				newCandidate(compliance.KindMissingEntry, 1, "2025-W12"),
			}, time.Now())
			Expect(err).NotTo(HaveOccurred())

			result, err := service.UpsertMany([]compliance.Candidate{
				newCandidate(compliance.KindMissingEntry, 1, "2025-W13"),
			}, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Created).To(Equal(1))
		})

		It("stops on store errors", func() {
			repo.insertError = errors.New("connection refused")

			_, err := service.UpsertMany([]compliance.Candidate{
				newCandidate(compliance.KindMissingEntry, 1, "2025-W12"),
			}, time.Now())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			_, err := service.UpsertMany([]compliance.Candidate{
				newCandidate(compliance.KindMissingEntry, 1, "2025-W12"),
				newCandidate(compliance.KindRoundNumbers, 2, "2025-W12"),
			}, time.Now())
			Expect(err).NotTo(HaveOccurred())
		})

		It("fills pagination defaults and attaches descriptions", func() {
			list, err := service.List(compliance.ViolationFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Limit).To(Equal(20))
			Expect(list.Total).To(Equal(int64(2)))
			for _, v := range list.Violations {
				Expect(v.Description).NotTo(BeEmpty())
			}
		})

		It("filters by kind", func() {
			list, err := service.List(compliance.ViolationFilter{Kind: "missing_entry"})
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Total).To(Equal(int64(1)))
		})

		It("rejects unknown filter values", func() {
			_, err := service.List(compliance.ViolationFilter{Kind: "nonsense"})
			Expect(err).To(HaveOccurred())

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidFilter))
		})

		It("rejects limits past the page cap", func() {
			_, err := service.List(compliance.ViolationFilter{Limit: 500})
			Expect(err).To(HaveOccurred())
		})

		It("rejects a negative user_id but allows zero as no filter", func() {
			_, err := service.List(compliance.ViolationFilter{UserID: -1})
			Expect(err).To(HaveOccurred())

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Message).To(ContainSubstring("must not be negative"))

			_, err = service.List(compliance.ViolationFilter{UserID: 0})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("UpdateStatus", func() {
		BeforeEach(func() {
			_, err := service.UpsertMany([]compliance.Candidate{
				newCandidate(compliance.KindMissingEntry, 1, "2025-W12"),
			}, time.Now())
			Expect(err).NotTo(HaveOccurred())
		})

		It("resolves an open violation and stamps resolved_at", func() {
			updated, err := service.UpdateStatus(1, compliance.UpdateStatusDTO{Status: compliance.StatusResolved})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(compliance.StatusResolved))
			Expect(updated.ResolvedAt).NotTo(BeNil())
		})

		It("ignores an open violation without stamping resolved_at", func() {
			updated, err := service.UpdateStatus(1, compliance.UpdateStatusDTO{Status: compliance.StatusIgnored})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(compliance.StatusIgnored))
			Expect(updated.ResolvedAt).To(BeNil())
		})

		It("treats a repeated transition as a no-op", func() {
			_, err := service.UpdateStatus(1, compliance.UpdateStatusDTO{Status: compliance.StatusResolved})
			Expect(err).NotTo(HaveOccurred())

			updated, err := service.UpdateStatus(1, compliance.UpdateStatusDTO{Status: compliance.StatusResolved})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(compliance.StatusResolved))
		})

		It("rejects switching between terminal statuses", func() {
			_, err := service.UpdateStatus(1, compliance.UpdateStatusDTO{Status: compliance.StatusResolved})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.UpdateStatus(1, compliance.UpdateStatusDTO{Status: compliance.StatusIgnored})
			Expect(err).To(HaveOccurred())

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeStatusTerminal))
		})

		It("rejects a transition to open", func() {
			_, err := service.UpdateStatus(1, compliance.UpdateStatusDTO{Status: compliance.StatusOpen})
			Expect(err).To(HaveOccurred())
		})

		It("surfaces unknown violations", func() {
			_, err := service.UpdateStatus(404, compliance.UpdateStatusDTO{Status: compliance.StatusResolved})
			Expect(err).To(Equal(compliance.ErrViolationNotFound))
		})
	})
})
