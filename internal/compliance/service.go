package compliance

import (
	"log/slog"
	"time"

	"github.com/worklens/worklens/internal"
)

// ViolationRepository is the dedup-aware violation store. InsertIfAbsent
// must be atomic per dedup key so concurrent runs cannot double-create.
type ViolationRepository interface {
	InsertIfAbsent(v *Violation) (created bool, err error)
	GetByID(id int64) (*Violation, error)
	List(filter ViolationFilter) ([]*Violation, int64, error)
	ListOpen() ([]*Violation, error)
	CountOpenByKind() (map[Kind]int64, error)
	UpdateStatus(id int64, status Status, resolvedAt *time.Time) error
}

// UpsertResult summarizes one merge of candidates into the store.
type UpsertResult struct {
	Created       int
	Unchanged     int
	CreatedByKind map[Kind]int
}

// Service owns violation writes and reads: candidate upserts from runs,
// filtered listings for the dashboard, operator status transitions.
type Service struct {
	repo   ViolationRepository
	logger *slog.Logger
}

func NewService(repo ViolationRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// UpsertMany merges candidates into the store. An existing violation with
// the same dedup key, open or terminal, suppresses the candidate: re-runs
// are idempotent and operator decisions are never reverted.
func (s *Service) UpsertMany(candidates []Candidate, detectedAt time.Time) (UpsertResult, error) {
	result := UpsertResult{CreatedByKind: make(map[Kind]int)}

	for _, c := range candidates {
		created, err := s.repo.InsertIfAbsent(c.Violation(detectedAt))
		if err != nil {
			s.logger.Error("failed to upsert violation",
				"error", err,
				"kind", c.Kind,
				"dedup_key", c.DedupKey())
			return result, err
		}
		if created {
			result.Created++
			result.CreatedByKind[c.Kind]++
		} else {
			result.Unchanged++
		}
	}

	return result, nil
}

// List returns a filtered page of violations with derived descriptions,
// ordered by detection timestamp descending, id descending.
func (s *Service) List(filter ViolationFilter) (*ViolationList, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	violations, total, err := s.repo.List(filter)
	if err != nil {
		s.logger.Error("failed to list violations", "error", err)
		return nil, err
	}

	views := make([]ViolationView, len(violations))
	for i, v := range violations {
		views[i] = ViolationView{Violation: v, Description: Describe(v)}
	}

	return &ViolationList{
		Violations: views,
		Total:      total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// UpdateStatus applies an operator transition. Terminal statuses stick: a
// repeat of the same transition is a no-op, a different one is a conflict.
func (s *Service) UpdateStatus(id int64, dto UpdateStatusDTO) (*Violation, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	violation, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if violation.Status.Terminal() {
		if violation.Status == dto.Status {
			return violation, nil
		}
		s.logger.Warn("rejected terminal status transition",
			"violation_id", id,
			"current", violation.Status,
			"requested", dto.Status)
		return nil, internal.NewConflictError(
			"violation is already in a terminal status", internal.ErrCodeStatusTerminal)
	}

	now := time.Now().UTC()
	var resolvedAt *time.Time
	if dto.Status == StatusResolved {
		resolvedAt = &now
	}
	if err := s.repo.UpdateStatus(id, dto.Status, resolvedAt); err != nil {
		s.logger.Error("failed to update violation status", "error", err, "violation_id", id)
		return nil, err
	}

	violation.Status = dto.Status
	violation.ResolvedAt = resolvedAt
	violation.UpdatedAt = now

	s.logger.Info("violation status updated",
		"violation_id", id,
		"status", dto.Status,
		"kind", violation.Kind)

	return violation, nil
}
