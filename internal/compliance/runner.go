package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/worklens/worklens/internal/tracking"
)

type RunStatus string

const (
	RunStatusAccepted  RunStatus = "accepted"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RuleError records one evaluator failure inside an otherwise successful
// run.
type RuleError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// RunSummary is the queryable outcome of one evaluation pass. Rule errors
// surface here rather than on the triggering call, which returns before
// evaluation completes.
type RunSummary struct {
	RunID         string       `json:"run_id"`
	Status        RunStatus    `json:"status"`
	AsOf          time.Time    `json:"as_of"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
	Created       int          `json:"created"`
	Unchanged     int          `json:"unchanged"`
	CreatedByKind map[Kind]int `json:"created_by_kind"`
	RuleErrors    []RuleError  `json:"rule_errors,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// RunMetrics is the hook the runner reports through; satisfied by the obs
// package. A nil RunMetrics disables reporting.
type RunMetrics interface {
	RunStarted()
	RunFinished(status string, duration time.Duration)
	ViolationsCreated(kind string, count int)
}

// retainedRuns bounds the in-memory summary history.
const retainedRuns = 32

const runTimeout = 5 * time.Minute

// Runner orchestrates one evaluation pass: snapshot config, load the
// tracking view, fan the evaluators out against that single snapshot, merge
// the candidates into the store, refresh aggregates.
type Runner struct {
	configs    *ConfigService
	loader     *tracking.SnapshotLoader
	evaluators []Evaluator
	service    *Service
	cache      *AggregateCache
	metrics    RunMetrics
	logger     *slog.Logger

	mu      sync.Mutex
	runs    map[string]*RunSummary
	history []string

	// now is swappable in tests to pin the as-of timestamp.
	now func() time.Time
	// wg lets tests wait for background runs to settle.
	wg sync.WaitGroup
}

func NewRunner(configs *ConfigService, loader *tracking.SnapshotLoader, evaluators []Evaluator, service *Service, cache *AggregateCache, metrics RunMetrics, logger *slog.Logger) *Runner {
	return &Runner{
		configs:    configs,
		loader:     loader,
		evaluators: evaluators,
		service:    service,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		runs:       make(map[string]*RunSummary),
		now:        time.Now,
	}
}

// RunCheck accepts an evaluation run and returns immediately; callers poll
// the summary by run id. Concurrent runs are safe: the store's per-key
// insert-if-absent guarantees a single open violation per dedup key.
func (r *Runner) RunCheck() *RunSummary {
	runID := uuid.NewString()
	asOf := r.now().UTC()

	summary := &RunSummary{
		RunID:         runID,
		Status:        RunStatusAccepted,
		AsOf:          asOf,
		StartedAt:     asOf,
		CreatedByKind: make(map[Kind]int),
	}
	// Copy before the background goroutine can touch the shared summary.
	accepted := *summary
	r.remember(summary)

	r.logger.Info("compliance run accepted", "run_id", runID, "as_of", asOf)
	if r.metrics != nil {
		r.metrics.RunStarted()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(runID, asOf)
	}()

	return &accepted
}

// GetRun returns the summary for a run id.
func (r *Runner) GetRun(runID string) (*RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary, ok := r.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *summary
	return &copied, nil
}

// Wait blocks until all in-flight runs finish; used by tests and shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(runID string, asOf time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	r.update(runID, func(s *RunSummary) { s.Status = RunStatusRunning })

	cfg, err := r.configs.GetSnapshot()
	if err != nil {
		r.fail(runID, start, fmt.Errorf("load config: %w", err))
		return
	}

	snap, err := r.loader.Load(asOf, cfg.LookbackDays())
	if err != nil {
		r.fail(runID, start, fmt.Errorf("load snapshot: %w", err))
		return
	}

	candidates, ruleErrors := r.evaluate(snap, cfg)

	result, err := r.service.UpsertMany(candidates, asOf)
	if err != nil {
		r.fail(runID, start, fmt.Errorf("upsert violations: %w", err))
		return
	}

	r.cache.Invalidate(ctx)

	finished := time.Now().UTC()
	r.update(runID, func(s *RunSummary) {
		s.Status = RunStatusCompleted
		s.FinishedAt = &finished
		s.Created = result.Created
		s.Unchanged = result.Unchanged
		s.CreatedByKind = result.CreatedByKind
		s.RuleErrors = ruleErrors
	})

	if r.metrics != nil {
		r.metrics.RunFinished(string(RunStatusCompleted), time.Since(start))
		for kind, count := range result.CreatedByKind {
			r.metrics.ViolationsCreated(string(kind), count)
		}
	}

	r.logger.Info("compliance run completed",
		"run_id", runID,
		"created", result.Created,
		"unchanged", result.Unchanged,
		"rule_errors", len(ruleErrors),
		"duration_ms", time.Since(start).Milliseconds())
}

// evaluate fans the evaluators out concurrently against the shared
// snapshot. A failing or panicking evaluator is isolated: its error is
// recorded and the remaining rules still contribute.
func (r *Runner) evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, []RuleError) {
	type ruleResult struct {
		kind       Kind
		candidates []Candidate
		err        error
	}

	results := make(chan ruleResult, len(r.evaluators))
	var wg sync.WaitGroup
	for _, ev := range r.evaluators {
		wg.Add(1)
		go func(ev Evaluator) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					results <- ruleResult{kind: ev.Kind(), err: fmt.Errorf("panic: %v", rec)}
				}
			}()
			candidates, err := ev.Evaluate(snap, cfg)
			results <- ruleResult{kind: ev.Kind(), candidates: candidates, err: err}
		}(ev)
	}
	wg.Wait()
	close(results)

	var candidates []Candidate
	var ruleErrors []RuleError
	for res := range results {
		if res.err != nil {
			r.logger.Error("rule evaluator failed", "kind", res.kind, "error", res.err)
			ruleErrors = append(ruleErrors, RuleError{Kind: res.kind, Message: res.err.Error()})
			continue
		}
		candidates = append(candidates, res.candidates...)
	}
	return candidates, ruleErrors
}

func (r *Runner) fail(runID string, start time.Time, err error) {
	r.logger.Error("compliance run failed", "run_id", runID, "error", err)
	finished := time.Now().UTC()
	r.update(runID, func(s *RunSummary) {
		s.Status = RunStatusFailed
		s.FinishedAt = &finished
		s.Error = err.Error()
	})
	if r.metrics != nil {
		r.metrics.RunFinished(string(RunStatusFailed), time.Since(start))
	}
}

func (r *Runner) remember(summary *RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[summary.RunID] = summary
	r.history = append(r.history, summary.RunID)
	if len(r.history) > retainedRuns {
		evicted := r.history[0]
		r.history = r.history[1:]
		delete(r.runs, evicted)
	}
}

func (r *Runner) update(runID string, fn func(*RunSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if summary, ok := r.runs[runID]; ok {
		fn(summary)
	}
}
