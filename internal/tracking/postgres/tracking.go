package postgres

import (
	"time"

	"github.com/worklens/worklens/internal/tracking"
	"gorm.io/gorm"
)

// TrackingRepository implements tracking.Repository using GORM.
type TrackingRepository struct {
	db *gorm.DB
}

func NewTrackingRepository(db *gorm.DB) tracking.Repository {
	return &TrackingRepository{db: db}
}

func (r *TrackingRepository) ActiveUsers() ([]tracking.User, error) {
	var users []tracking.User
	err := r.db.Where("is_active = ?", true).Order("id").Find(&users).Error
	return users, err
}

func (r *TrackingRepository) Users() ([]tracking.User, error) {
	var users []tracking.User
	err := r.db.Order("id").Find(&users).Error
	return users, err
}

func (r *TrackingRepository) Projects() ([]tracking.Project, error) {
	var projects []tracking.Project
	err := r.db.Order("id").Find(&projects).Error
	return projects, err
}

func (r *TrackingRepository) Issues() ([]tracking.Issue, error) {
	var issues []tracking.Issue
	err := r.db.Order("id").Find(&issues).Error
	return issues, err
}

func (r *TrackingRepository) EntriesSince(from time.Time) ([]tracking.TimeEntry, error) {
	var entries []tracking.TimeEntry
	err := r.db.Where("spent_on >= ?", from).Order("spent_on").Find(&entries).Error
	return entries, err
}

// SumHoursByIssue aggregates all-time spent hours in the database so the
// overrun scan never loads the full entry history into memory.
func (r *TrackingRepository) SumHoursByIssue() (map[int64]float64, error) {
	type row struct {
		IssueID int64
		Total   float64
	}
	var rows []row
	err := r.db.Model(&tracking.TimeEntry{}).
		Select("issue_id, SUM(hours) AS total").
		Where("issue_id IS NOT NULL").
		Group("issue_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[int64]float64, len(rows))
	for _, r := range rows {
		totals[r.IssueID] = r.Total
	}
	return totals, nil
}
