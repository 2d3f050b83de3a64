package tracking

import (
	"errors"
	"time"
)

// Mirrored entities. The sync subsystem that copies them from the external
// project tracker owns all writes; everything in this package is read-only
// to the compliance core.

type User struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	ExternalID int64     `json:"external_id" gorm:"column:external_id;uniqueIndex"`
	Name       string    `json:"name" gorm:"not null"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	ManagerID  *int64    `json:"manager_id,omitempty" gorm:"column:manager_id"`
	// No gorm default tag: gorm would omit a false value on insert and the
	// column default would flip deactivated users back to active.
	IsActive bool `json:"is_active" gorm:"column:is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

func (u *User) IsManager() bool {
	return u.Role == RoleManager || u.Role == RoleAdmin
}

type Project struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	ExternalID int64     `json:"external_id" gorm:"column:external_id;uniqueIndex"`
	Name       string    `json:"name" gorm:"not null"`
	Status     string    `json:"status"`
	ManagerID  *int64    `json:"manager_id,omitempty" gorm:"column:manager_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

const (
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
	ProjectStatusClosed   = "closed"
)

func (p *Project) IsActive() bool {
	return p.Status == ProjectStatusActive
}

type Issue struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	ExternalID     int64     `json:"external_id" gorm:"column:external_id;uniqueIndex"`
	ProjectID      int64     `json:"project_id" gorm:"column:project_id;not null;index"`
	AssigneeID     *int64    `json:"assignee_id,omitempty" gorm:"column:assignee_id"`
	Subject        string    `json:"subject"`
	Status         string    `json:"status"`
	EstimatedHours *float64  `json:"estimated_hours,omitempty" gorm:"column:estimated_hours"`
	CreatedOn      time.Time `json:"created_on" gorm:"column:created_on"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Issue) TableName() string {
	return "issues"
}

const (
	IssueStatusOpen       = "open"
	IssueStatusInProgress = "in_progress"
	IssueStatusResolved   = "resolved"
	IssueStatusClosed     = "closed"
)

// IsOpen reports whether the issue is in the open family of statuses.
func (i *Issue) IsOpen() bool {
	return i.Status == IssueStatusOpen || i.Status == IssueStatusInProgress
}

// HasEstimate reports whether the issue carries a usable estimate. A zero
// estimate means "unestimated" in the source tracker.
func (i *Issue) HasEstimate() bool {
	return i.EstimatedHours != nil && *i.EstimatedHours > 0
}

type TimeEntry struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	ExternalID int64     `json:"external_id" gorm:"column:external_id;uniqueIndex"`
	UserID     int64     `json:"user_id" gorm:"column:user_id;not null;index"`
	IssueID    *int64    `json:"issue_id,omitempty" gorm:"column:issue_id;index"`
	ProjectID  int64     `json:"project_id" gorm:"column:project_id;not null;index"`
	Hours      float64   `json:"hours" gorm:"not null"`
	SpentOn    time.Time `json:"spent_on" gorm:"column:spent_on;type:date;index"`
	LoggedAt   time.Time `json:"logged_at" gorm:"column:logged_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (TimeEntry) TableName() string {
	return "time_entries"
}

// IsWholeHours reports whether the entry logs a whole number of hours.
func (e *TimeEntry) IsWholeHours() bool {
	return e.Hours > 0 && e.Hours == float64(int64(e.Hours))
}

var ErrNotFound = errors.New("record not found")

// Repository is the read surface the compliance core consumes. Long scans
// (the per-issue hour totals) aggregate in the database rather than
// materializing every entry in memory.
type Repository interface {
	ActiveUsers() ([]User, error)
	Users() ([]User, error)
	Projects() ([]Project, error)
	Issues() ([]Issue, error)
	EntriesSince(from time.Time) ([]TimeEntry, error)
	SumHoursByIssue() (map[int64]float64, error)
}
