package postgres

import (
	"time"

	"github.com/worklens/worklens/internal/compliance"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ViolationRepository implements compliance.ViolationRepository using GORM.
type ViolationRepository struct {
	db *gorm.DB
}

func NewViolationRepository(db *gorm.DB) compliance.ViolationRepository {
	return &ViolationRepository{db: db}
}

// InsertIfAbsent inserts the violation unless a row with the same dedup key
// already exists, relying on the unique index so concurrent runs race
// safely. Returns whether a row was created.
func (r *ViolationRepository) InsertIfAbsent(v *compliance.Violation) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(v)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ViolationRepository) GetByID(id int64) (*compliance.Violation, error) {
	var v compliance.Violation
	err := r.db.Where("id = ?", id).First(&v).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, compliance.ErrViolationNotFound
		}
		return nil, err
	}
	return &v, nil
}

// List applies the filters with pagination, ordered by detection timestamp
// descending and id descending for a stable sort.
func (r *ViolationRepository) List(filter compliance.ViolationFilter) ([]*compliance.Violation, int64, error) {
	query := r.db.Model(&compliance.Violation{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var violations []*compliance.Violation
	err := query.
		Order("detected_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&violations).Error
	return violations, total, err
}

func (r *ViolationRepository) ListOpen() ([]*compliance.Violation, error) {
	var violations []*compliance.Violation
	err := r.db.Where("status = ?", compliance.StatusOpen).Find(&violations).Error
	return violations, err
}

func (r *ViolationRepository) CountOpenByKind() (map[compliance.Kind]int64, error) {
	type row struct {
		Kind  compliance.Kind
		Total int64
	}
	var rows []row
	err := r.db.Model(&compliance.Violation{}).
		Select("kind, COUNT(*) AS total").
		Where("status = ?", compliance.StatusOpen).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[compliance.Kind]int64, len(compliance.Kinds()))
	for _, kind := range compliance.Kinds() {
		counts[kind] = 0
	}
	for _, r := range rows {
		counts[r.Kind] = r.Total
	}
	return counts, nil
}

func (r *ViolationRepository) UpdateStatus(id int64, status compliance.Status, resolvedAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if resolvedAt != nil {
		updates["resolved_at"] = *resolvedAt
	}

	result := r.db.Model(&compliance.Violation{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return compliance.ErrViolationNotFound
	}
	return nil
}

// ConfigRepository persists the single threshold record.
type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) compliance.ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Get() (*compliance.Config, error) {
	var cfg compliance.Config
	err := r.db.Order("id").First(&cfg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, compliance.ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *ConfigRepository) Save(cfg *compliance.Config) error {
	cfg.UpdatedAt = time.Now()
	return r.db.Save(cfg).Error
}
