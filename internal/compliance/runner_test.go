package compliance_test

import (
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/worklens/worklens/internal/compliance"
	"github.com/worklens/worklens/internal/tracking"
)

type staticTracker struct {
	users   []tracking.User
	entries []tracking.TimeEntry
}

func (t *staticTracker) ActiveUsers() ([]tracking.User, error) { return t.users, nil }
func (t *staticTracker) Users() ([]tracking.User, error)       { return t.users, nil }

func (t *staticTracker) Projects() ([]tracking.Project, error) { return nil, nil }
func (t *staticTracker) Issues() ([]tracking.Issue, error)     { return nil, nil }

func (t *staticTracker) EntriesSince(from time.Time) ([]tracking.TimeEntry, error) {
	return t.entries, nil
}

func (t *staticTracker) SumHoursByIssue() (map[int64]float64, error) {
	return map[int64]float64{}, nil
}

type staticEvaluator struct {
	kind       compliance.Kind
	candidates []compliance.Candidate
}

func (e staticEvaluator) Kind() compliance.Kind { return e.kind }

func (e staticEvaluator) Evaluate(snap *tracking.Snapshot, cfg compliance.Config) ([]compliance.Candidate, error) {
	return e.candidates, nil
}

type failingEvaluator struct{}

func (failingEvaluator) Kind() compliance.Kind { return compliance.KindLateEntry }

func (failingEvaluator) Evaluate(snap *tracking.Snapshot, cfg compliance.Config) ([]compliance.Candidate, error) {
	return nil, errors.New("boom")
}

type panickingEvaluator struct{}

func (panickingEvaluator) Kind() compliance.Kind { return compliance.KindStaleTask }

func (panickingEvaluator) Evaluate(snap *tracking.Snapshot, cfg compliance.Config) ([]compliance.Candidate, error) {
	panic("unexpected nil")
}

var _ = Describe("Runner", func() {
	var (
		configRepo    *mockConfigRepository
		violationRepo *mockViolationRepository
		tracker       *staticTracker
		logger        *slog.Logger
	)

	newRunner := func(evaluators ...compliance.Evaluator) *compliance.Runner {
		configs := compliance.NewConfigService(configRepo, logger)
		service := compliance.NewService(violationRepo, logger)
		loader := tracking.NewSnapshotLoader(tracker, logger)
		return compliance.NewRunner(configs, loader, evaluators, service, nil, nil, logger)
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		configRepo = &mockConfigRepository{stored: compliance.DefaultConfig()}
		violationRepo = newMockViolationRepository()
		tracker = &staticTracker{}
	})

	It("accepts immediately and completes in the background", func() {
		runner := newRunner(staticEvaluator{
			kind: compliance.KindMissingEntry,
			candidates: []compliance.Candidate{
				{Kind: compliance.KindMissingEntry, Severity: compliance.SeverityHigh, UserID: 1, Anchor: "2025-W12"},
			},
		})

		accepted := runner.RunCheck()
		Expect(accepted.RunID).NotTo(BeEmpty())
		Expect(accepted.Status).To(Equal(compliance.RunStatusAccepted))

		runner.Wait()

		summary, err := runner.GetRun(accepted.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Status).To(Equal(compliance.RunStatusCompleted))
		Expect(summary.Created).To(Equal(1))
		Expect(summary.CreatedByKind[compliance.KindMissingEntry]).To(Equal(1))
		Expect(summary.FinishedAt).NotTo(BeNil())
	})

	It("hands back a snapshot the background run does not mutate", func() {
		runner := newRunner(staticEvaluator{
			kind: compliance.KindMissingEntry,
			candidates: []compliance.Candidate{
				{Kind: compliance.KindMissingEntry, Severity: compliance.SeverityHigh, UserID: 1, Anchor: "2025-W12"},
			},
		})

		accepted := runner.RunCheck()
		runner.Wait()

		Expect(accepted.Status).To(Equal(compliance.RunStatusAccepted))
		Expect(accepted.FinishedAt).To(BeNil())
		Expect(accepted.Created).To(BeZero())

		summary, err := runner.GetRun(accepted.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Status).To(Equal(compliance.RunStatusCompleted))
	})

	It("reports unchanged counts on a repeat run", func() {
		runner := newRunner(staticEvaluator{
			kind: compliance.KindMissingEntry,
			candidates: []compliance.Candidate{
				{Kind: compliance.KindMissingEntry, Severity: compliance.SeverityHigh, UserID: 1, Anchor: "2025-W12"},
			},
		})

		first := runner.RunCheck()
		runner.Wait()
		second := runner.RunCheck()
		runner.Wait()

		summary, err := runner.GetRun(second.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Created).To(Equal(0))
		Expect(summary.Unchanged).To(Equal(1))

		firstSummary, err := runner.GetRun(first.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(firstSummary.Created).To(Equal(1))
	})

	It("isolates failing and panicking evaluators", func() {
		runner := newRunner(
			failingEvaluator{},
			panickingEvaluator{},
			staticEvaluator{
				kind: compliance.KindRoundNumbers,
				candidates: []compliance.Candidate{
					{Kind: compliance.KindRoundNumbers, Severity: compliance.SeverityLow, UserID: 1, Anchor: "2025-W12"},
				},
			},
		)

		accepted := runner.RunCheck()
		runner.Wait()

		summary, err := runner.GetRun(accepted.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Status).To(Equal(compliance.RunStatusCompleted))
		Expect(summary.Created).To(Equal(1))
		Expect(summary.RuleErrors).To(HaveLen(2))

		kinds := []compliance.Kind{summary.RuleErrors[0].Kind, summary.RuleErrors[1].Kind}
		Expect(kinds).To(ContainElements(compliance.KindLateEntry, compliance.KindStaleTask))
	})

	It("fails the run when config cannot load", func() {
		configRepo.stored = nil
		configRepo.getError = errors.New("connection refused")
		runner := newRunner()

		accepted := runner.RunCheck()
		runner.Wait()

		summary, err := runner.GetRun(accepted.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Status).To(Equal(compliance.RunStatusFailed))
		Expect(summary.Error).NotTo(BeEmpty())
	})

	It("returns ErrRunNotFound for unknown run ids", func() {
		runner := newRunner()

		_, err := runner.GetRun("00000000-0000-0000-0000-000000000000")
		Expect(err).To(Equal(compliance.ErrRunNotFound))
	})
})
