package compliance

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind tags the seven rules of the catalogue. The set is closed: every kind
// has exactly one evaluator and one description formatter.
type Kind string

const (
	KindMissingEntry Kind = "missing_entry"
	KindLateEntry    Kind = "late_entry"
	KindBulkLogging  Kind = "bulk_logging"
	KindRoundNumbers Kind = "round_numbers"
	KindStaleTask    Kind = "stale_task"
	KindOverrunTask  Kind = "overrun_task"
	KindPartialEntry Kind = "partial_entry"
)

// Kinds returns the full catalogue in stable order.
func Kinds() []Kind {
	return []Kind{
		KindMissingEntry,
		KindLateEntry,
		KindBulkLogging,
		KindRoundNumbers,
		KindStaleTask,
		KindOverrunTask,
		KindPartialEntry,
	}
}

func (k Kind) Valid() bool {
	switch k {
	case KindMissingEntry, KindLateEntry, KindBulkLogging, KindRoundNumbers,
		KindStaleTask, KindOverrunTask, KindPartialEntry:
		return true
	}
	return false
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) Valid() bool {
	return s == SeverityHigh || s == SeverityMedium || s == SeverityLow
}

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusIgnored  Status = "ignored"
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusResolved || s == StatusIgnored
}

// Terminal statuses are set by operators and never reverted by a run.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusIgnored
}

// Details holds the rule-specific attributes needed to reconstruct a
// human-readable explanation (days late, hours spent, issue reference...).
// Stored as JSON.
type Details map[string]any

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Details) Scan(value interface{}) error {
	if value == nil {
		*d = Details{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	}
	return fmt.Errorf("unsupported details type %T", value)
}

// Float reads a numeric detail; JSON round-trips store all numbers as float64.
func (d Details) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (d Details) Int(key string) int {
	return int(d.Float(key))
}

func (d Details) String(key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// Violation is a detected rule breach. Created open by a run; status moves
// only through operator action and the move is terminal.
type Violation struct {
	ID         int64      `json:"id" gorm:"primaryKey"`
	Kind       Kind       `json:"kind" gorm:"column:kind;not null;index"`
	Severity   Severity   `json:"severity" gorm:"not null;index"`
	Status     Status     `json:"status" gorm:"index"`
	UserID     int64      `json:"user_id" gorm:"column:user_id;not null;index"`
	IssueID    *int64     `json:"issue_id,omitempty" gorm:"column:issue_id"`
	ProjectID  *int64     `json:"project_id,omitempty" gorm:"column:project_id"`
	DedupKey   string     `json:"-" gorm:"column:dedup_key;uniqueIndex;not null"`
	Details    Details    `json:"details" gorm:"column:details"`
	DetectedAt time.Time  `json:"detected_at" gorm:"column:detected_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" gorm:"column:resolved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Violation) TableName() string {
	return "violations"
}

// Candidate is an evaluator finding that has not been checked against the
// store yet.
type Candidate struct {
	Kind      Kind
	Severity  Severity
	UserID    int64
	IssueID   *int64
	ProjectID *int64
	// Anchor pins the candidate to its time window (ISO week, batch
	// timestamp, the late entry itself) so re-runs dedup to one violation.
	Anchor  string
	Details Details
}

// DedupKey identifies "the same violation" across runs.
func (c Candidate) DedupKey() string {
	var issueID, projectID int64
	if c.IssueID != nil {
		issueID = *c.IssueID
	}
	if c.ProjectID != nil {
		projectID = *c.ProjectID
	}
	return fmt.Sprintf("%s:u%d:i%d:p%d:%s", c.Kind, c.UserID, issueID, projectID, c.Anchor)
}

// Violation materializes the candidate as a new open violation.
func (c Candidate) Violation(detectedAt time.Time) *Violation {
	return &Violation{
		Kind:       c.Kind,
		Severity:   c.Severity,
		Status:     StatusOpen,
		UserID:     c.UserID,
		IssueID:    c.IssueID,
		ProjectID:  c.ProjectID,
		DedupKey:   c.DedupKey(),
		Details:    c.Details,
		DetectedAt: detectedAt,
	}
}

// Domain errors, switched on in the handlers.
var (
	ErrViolationNotFound = errors.New("violation not found")
	ErrConfigNotFound    = errors.New("compliance config not found")
	ErrRunNotFound       = errors.New("run not found")
	ErrStatusTerminal    = errors.New("violation status is terminal")
)
