package compliance

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/worklens/worklens/internal"
)

// Config is the single versioned record of rule thresholds plus the
// working-day calendar. Evaluators receive it by value so a concurrent
// update can never change thresholds mid-run.
type Config struct {
	ID int64 `json:"-" gorm:"primaryKey"`

	MissingEntryDays     int     `json:"missingEntryDays" gorm:"column:missing_entry_days"`
	LateEntryDays        int     `json:"lateEntryDays" gorm:"column:late_entry_days"`
	LateEntryCheckDays   int     `json:"lateEntryCheckDays" gorm:"column:late_entry_check_days"`
	BulkLoggingThreshold int     `json:"bulkLoggingThreshold" gorm:"column:bulk_logging_threshold"`
	StaleTaskDays        int     `json:"staleTaskDays" gorm:"column:stale_task_days"`
	StaleTaskMonths      int     `json:"staleTaskMonths" gorm:"column:stale_task_months"`
	OverrunThreshold     int     `json:"overrunThreshold" gorm:"column:overrun_threshold"`
	MaxSpentHours        int     `json:"maxSpentHours" gorm:"column:max_spent_hours"`
	PartialEntryMinHours float64 `json:"partialEntryMinHours" gorm:"column:partial_entry_min_hours"`

	WorkMonday    bool `json:"workMonday" gorm:"column:work_monday"`
	WorkTuesday   bool `json:"workTuesday" gorm:"column:work_tuesday"`
	WorkWednesday bool `json:"workWednesday" gorm:"column:work_wednesday"`
	WorkThursday  bool `json:"workThursday" gorm:"column:work_thursday"`
	WorkFriday    bool `json:"workFriday" gorm:"column:work_friday"`
	WorkSaturday  bool `json:"workSaturday" gorm:"column:work_saturday"`
	WorkSunday    bool `json:"workSunday" gorm:"column:work_sunday"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func (Config) TableName() string {
	return "compliance_configs"
}

// DefaultConfig is the record seeded on first boot.
func DefaultConfig() *Config {
	return &Config{
		MissingEntryDays:     7,
		LateEntryDays:        3,
		LateEntryCheckDays:   30,
		BulkLoggingThreshold: 10,
		StaleTaskDays:        14,
		StaleTaskMonths:      6,
		OverrunThreshold:     150,
		MaxSpentHours:        1000,
		PartialEntryMinHours: 8,
		WorkMonday:           true,
		WorkTuesday:          true,
		WorkWednesday:        true,
		WorkThursday:         true,
		WorkFriday:           true,
	}
}

// Calendar returns the weekly working-day calendar.
func (c *Config) Calendar() Calendar {
	return Calendar{
		time.Monday:    c.WorkMonday,
		time.Tuesday:   c.WorkTuesday,
		time.Wednesday: c.WorkWednesday,
		time.Thursday:  c.WorkThursday,
		time.Friday:    c.WorkFriday,
		time.Saturday:  c.WorkSaturday,
		time.Sunday:    c.WorkSunday,
	}
}

// LookbackDays is the widest entry window any rule needs; the snapshot
// loader uses it so one load serves every evaluator. The overrun totals are
// aggregated separately and do not depend on this window.
func (c *Config) LookbackDays() int {
	// Missing-entry and stale-task windows count working days; a sparse
	// calendar stretches them across proportionally more calendar days.
	workWindow := c.MissingEntryDays
	if c.StaleTaskDays > workWindow {
		workWindow = c.StaleTaskDays
	}
	perWeek := c.Calendar().WorkingDaysPerWeek()
	if perWeek == 0 {
		// Degenerate calendar; WindowStart counts plain calendar days.
		perWeek = 7
	}
	// Any 7 consecutive days hold exactly perWeek working days, so the
	// window spans at most this many full weeks.
	days := ((workWindow + perWeek - 1) / perWeek) * 7
	if c.LateEntryCheckDays > days {
		days = c.LateEntryCheckDays
	}
	if days < 14 {
		days = 14
	}
	return days + 14
}

// thresholdRange is an inclusive business constant, not operator-tunable.
type thresholdRange struct {
	Min, Max float64
}

var thresholdRanges = map[string]thresholdRange{
	"missingEntryDays":     {1, 30},
	"lateEntryDays":        {1, 30},
	"lateEntryCheckDays":   {1, 90},
	"bulkLoggingThreshold": {2, 100},
	"staleTaskDays":        {1, 90},
	"staleTaskMonths":      {1, 12},
	"overrunThreshold":     {100, 1000},
	"maxSpentHours":        {1, 10000},
	"partialEntryMinHours": {1, 80},
}

func checkRange(field string, value float64) *internal.AppError {
	r, ok := thresholdRanges[field]
	if !ok {
		return internal.NewFieldValidationError(field, fmt.Sprintf("%s is not a recognized threshold", field))
	}
	if value < r.Min || value > r.Max {
		return internal.NewFieldValidationError(field,
			fmt.Sprintf("%s must be between %g and %g", field, r.Min, r.Max))
	}
	return nil
}

// Validate checks every threshold against its documented inclusive range.
func (c *Config) Validate() error {
	checks := []struct {
		field string
		value float64
	}{
		{"missingEntryDays", float64(c.MissingEntryDays)},
		{"lateEntryDays", float64(c.LateEntryDays)},
		{"lateEntryCheckDays", float64(c.LateEntryCheckDays)},
		{"bulkLoggingThreshold", float64(c.BulkLoggingThreshold)},
		{"staleTaskDays", float64(c.StaleTaskDays)},
		{"staleTaskMonths", float64(c.StaleTaskMonths)},
		{"overrunThreshold", float64(c.OverrunThreshold)},
		{"maxSpentHours", float64(c.MaxSpentHours)},
		{"partialEntryMinHours", c.PartialEntryMinHours},
	}
	for _, ch := range checks {
		if err := checkRange(ch.field, ch.value); err != nil {
			return err
		}
	}
	if !c.Calendar().HasWorkingDay() {
		return internal.NewFieldValidationError("workingDays", "at least one working day is required")
	}
	return nil
}

// ConfigRepository persists the single threshold record.
type ConfigRepository interface {
	Get() (*Config, error)
	Save(cfg *Config) error
}

// ConfigService is the configuration provider: it owns the current record
// and hands out immutable snapshots to evaluation runs.
type ConfigService struct {
	repo   ConfigRepository
	logger *slog.Logger

	mu      sync.RWMutex
	current *Config
}

func NewConfigService(repo ConfigRepository, logger *slog.Logger) *ConfigService {
	return &ConfigService{repo: repo, logger: logger}
}

// GetSnapshot returns the effective config by value. Falls back to the
// default record when none has been persisted yet.
func (s *ConfigService) GetSnapshot() (Config, error) {
	s.mu.RLock()
	if s.current != nil {
		cfg := *s.current
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	return s.load()
}

func (s *ConfigService) load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent first call may have loaded and seeded already.
	if s.current != nil {
		return *s.current, nil
	}

	cfg, err := s.repo.Get()
	if err != nil {
		if err == ErrConfigNotFound {
			cfg = DefaultConfig()
			if saveErr := s.repo.Save(cfg); saveErr != nil {
				return Config{}, saveErr
			}
			s.logger.Info("seeded default compliance config")
		} else {
			return Config{}, err
		}
	}

	s.current = cfg
	return *cfg, nil
}

// Update validates a partial merge of the supplied fields over the current
// record and persists it. Nothing is mutated when validation fails.
func (s *ConfigService) Update(dto UpdateConfigDTO) (*Config, error) {
	current, err := s.GetSnapshot()
	if err != nil {
		return nil, err
	}

	merged := current
	dto.applyTo(&merged)

	if err := merged.Validate(); err != nil {
		s.logger.Warn("config update rejected", "error", err)
		return nil, err
	}

	if err := s.repo.Save(&merged); err != nil {
		s.logger.Error("failed to persist compliance config", "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.current = &merged
	s.mu.Unlock()

	s.logger.Info("compliance config updated",
		"missing_entry_days", merged.MissingEntryDays,
		"late_entry_days", merged.LateEntryDays,
		"overrun_threshold", merged.OverrunThreshold)

	result := merged
	return &result, nil
}
