package compliance

import (
	"github.com/worklens/worklens/internal"
)

// UpdateConfigDTO is a partial threshold update: only supplied fields merge
// over the stored record.
type UpdateConfigDTO struct {
	MissingEntryDays     *int     `json:"missingEntryDays,omitempty"`
	LateEntryDays        *int     `json:"lateEntryDays,omitempty"`
	LateEntryCheckDays   *int     `json:"lateEntryCheckDays,omitempty"`
	BulkLoggingThreshold *int     `json:"bulkLoggingThreshold,omitempty"`
	StaleTaskDays        *int     `json:"staleTaskDays,omitempty"`
	StaleTaskMonths      *int     `json:"staleTaskMonths,omitempty"`
	OverrunThreshold     *int     `json:"overrunThreshold,omitempty"`
	MaxSpentHours        *int     `json:"maxSpentHours,omitempty"`
	PartialEntryMinHours *float64 `json:"partialEntryMinHours,omitempty"`

	WorkMonday    *bool `json:"workMonday,omitempty"`
	WorkTuesday   *bool `json:"workTuesday,omitempty"`
	WorkWednesday *bool `json:"workWednesday,omitempty"`
	WorkThursday  *bool `json:"workThursday,omitempty"`
	WorkFriday    *bool `json:"workFriday,omitempty"`
	WorkSaturday  *bool `json:"workSaturday,omitempty"`
	WorkSunday    *bool `json:"workSunday,omitempty"`
}

func (dto UpdateConfigDTO) applyTo(cfg *Config) {
	if dto.MissingEntryDays != nil {
		cfg.MissingEntryDays = *dto.MissingEntryDays
	}
	if dto.LateEntryDays != nil {
		cfg.LateEntryDays = *dto.LateEntryDays
	}
	if dto.LateEntryCheckDays != nil {
		cfg.LateEntryCheckDays = *dto.LateEntryCheckDays
	}
	if dto.BulkLoggingThreshold != nil {
		cfg.BulkLoggingThreshold = *dto.BulkLoggingThreshold
	}
	if dto.StaleTaskDays != nil {
		cfg.StaleTaskDays = *dto.StaleTaskDays
	}
	if dto.StaleTaskMonths != nil {
		cfg.StaleTaskMonths = *dto.StaleTaskMonths
	}
	if dto.OverrunThreshold != nil {
		cfg.OverrunThreshold = *dto.OverrunThreshold
	}
	if dto.MaxSpentHours != nil {
		cfg.MaxSpentHours = *dto.MaxSpentHours
	}
	if dto.PartialEntryMinHours != nil {
		cfg.PartialEntryMinHours = *dto.PartialEntryMinHours
	}
	if dto.WorkMonday != nil {
		cfg.WorkMonday = *dto.WorkMonday
	}
	if dto.WorkTuesday != nil {
		cfg.WorkTuesday = *dto.WorkTuesday
	}
	if dto.WorkWednesday != nil {
		cfg.WorkWednesday = *dto.WorkWednesday
	}
	if dto.WorkThursday != nil {
		cfg.WorkThursday = *dto.WorkThursday
	}
	if dto.WorkFriday != nil {
		cfg.WorkFriday = *dto.WorkFriday
	}
	if dto.WorkSaturday != nil {
		cfg.WorkSaturday = *dto.WorkSaturday
	}
	if dto.WorkSunday != nil {
		cfg.WorkSunday = *dto.WorkSunday
	}
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ViolationFilter narrows the paginated violation listing.
type ViolationFilter struct {
	Kind     string `json:"kind,omitempty"`
	Severity string `json:"severity,omitempty"`
	Status   string `json:"status,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// Validate rejects malformed filter values before any query runs and fills
// pagination defaults.
func (f *ViolationFilter) Validate() error {
	if f.Kind != "" && !Kind(f.Kind).Valid() {
		return internal.NewValidationError("unknown violation kind", internal.ErrCodeInvalidFilter)
	}
	if f.Severity != "" && !Severity(f.Severity).Valid() {
		return internal.NewValidationError("unknown severity", internal.ErrCodeInvalidFilter)
	}
	if f.Status != "" && !Status(f.Status).Valid() {
		return internal.NewValidationError("unknown status", internal.ErrCodeInvalidFilter)
	}
	if f.UserID < 0 {
		return internal.NewValidationError("user_id must not be negative", internal.ErrCodeInvalidFilter)
	}
	if f.Limit < 0 || f.Limit > maxPageLimit {
		return internal.NewValidationError("limit must be between 1 and 100", internal.ErrCodeInvalidFilter)
	}
	if f.Limit == 0 {
		f.Limit = defaultPageLimit
	}
	if f.Offset < 0 {
		return internal.NewValidationError("offset must not be negative", internal.ErrCodeInvalidFilter)
	}
	return nil
}

// UpdateStatusDTO carries an operator status transition.
type UpdateStatusDTO struct {
	Status Status `json:"status"`
}

func (dto UpdateStatusDTO) Validate() error {
	if !dto.Status.Terminal() {
		return internal.NewValidationError("status must be resolved or ignored", internal.ErrCodeInvalidStatus)
	}
	return nil
}

// ViolationView is a violation plus its derived description.
type ViolationView struct {
	*Violation
	Description string `json:"description"`
}

// ViolationList is the paginated listing response.
type ViolationList struct {
	Violations []ViolationView `json:"violations"`
	Total      int64           `json:"total"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}
