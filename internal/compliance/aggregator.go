package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/worklens/worklens/internal"
	"github.com/worklens/worklens/internal/tracking"
)

// Overview holds the dashboard counters computed from open violations and
// base entity counts.
type Overview struct {
	ComplianceRate  float64        `json:"compliance_rate"`
	ActiveUsers     int            `json:"active_users"`
	CompliantUsers  int            `json:"compliant_users"`
	OpenViolations  int64          `json:"open_violations"`
	ByKind          map[Kind]int64 `json:"violations_by_kind"`
	FlaggedManagers int            `json:"flagged_managers"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// TrendPoint is one day of the compliance-rate series.
type TrendPoint struct {
	Date           string  `json:"date"`
	ComplianceRate float64 `json:"compliance_rate"`
}

const (
	defaultTrendDays = 7
	maxTrendDays     = 90
)

// Aggregator computes overview counters and trend series on the query path.
// Results are cached until the next run invalidates them.
type Aggregator struct {
	violations ViolationRepository
	mirror     tracking.Repository
	configs    *ConfigService
	cache      *AggregateCache
	logger     *slog.Logger

	// now is swappable in tests to pin "as of".
	now func() time.Time
}

func NewAggregator(violations ViolationRepository, mirror tracking.Repository, configs *ConfigService, cache *AggregateCache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		violations: violations,
		mirror:     mirror,
		configs:    configs,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
	}
}

// Overview computes the aggregate counters, serving from cache when a run
// has not invalidated it.
func (a *Aggregator) Overview(ctx context.Context) (*Overview, error) {
	var cached Overview
	if a.cache.get(ctx, cacheKeyOverview, &cached) {
		return &cached, nil
	}

	cfg, err := a.configs.GetSnapshot()
	if err != nil {
		return nil, err
	}
	asOf := a.now().UTC()

	users, err := a.mirror.ActiveUsers()
	if err != nil {
		return nil, err
	}
	entries, err := a.mirror.EntriesSince(asOf.AddDate(0, 0, -cfg.LookbackDays()))
	if err != nil {
		return nil, err
	}

	compliant := a.compliantUsers(users, entries, cfg, asOf)

	byKind, err := a.violations.CountOpenByKind()
	if err != nil {
		return nil, err
	}
	var openTotal int64
	for _, n := range byKind {
		openTotal += n
	}

	flagged, err := a.flaggedManagers()
	if err != nil {
		return nil, err
	}

	overview := &Overview{
		ComplianceRate:  rate(compliant, len(users)),
		ActiveUsers:     len(users),
		CompliantUsers:  compliant,
		OpenViolations:  openTotal,
		ByKind:          byKind,
		FlaggedManagers: flagged,
		GeneratedAt:     asOf,
	}

	a.cache.set(ctx, cacheKeyOverview, overview)
	return overview, nil
}

// Trends returns one compliance-rate point per day over the requested
// window, each computed as of that day's end using only entries dated on or
// before it.
func (a *Aggregator) Trends(ctx context.Context, days int) ([]TrendPoint, error) {
	if days == 0 {
		days = defaultTrendDays
	}
	if days < 1 || days > maxTrendDays {
		return nil, internal.NewValidationError(
			fmt.Sprintf("days must be between 1 and %d", maxTrendDays), internal.ErrCodeInvalidWindow)
	}

	cacheKey := fmt.Sprintf("%s%d", cacheKeyTrendPrefix, days)
	var cached []TrendPoint
	if a.cache.get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	cfg, err := a.configs.GetSnapshot()
	if err != nil {
		return nil, err
	}
	asOf := a.now().UTC()

	users, err := a.mirror.ActiveUsers()
	if err != nil {
		return nil, err
	}
	// One fetch covers every day in the window plus its look-back.
	from := asOf.AddDate(0, 0, -(days + cfg.LookbackDays()))
	entries, err := a.mirror.EntriesSince(from)
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := asOf.AddDate(0, 0, -i)
		compliant := a.compliantUsers(users, entries, cfg, day)
		points = append(points, TrendPoint{
			Date:           day.Format("2006-01-02"),
			ComplianceRate: rate(compliant, len(users)),
		})
	}

	a.cache.set(ctx, cacheKey, points)
	return points, nil
}

// compliantUsers counts active users with at least one entry inside the
// missing-entry window as of the given day, ignoring entries dated after it.
func (a *Aggregator) compliantUsers(users []tracking.User, entries []tracking.TimeEntry, cfg Config, asOf time.Time) int {
	windowStart := cfg.Calendar().WindowStart(asOf, cfg.MissingEntryDays)
	asOfDate := dateOf(asOf)

	recent := make(map[int64]bool)
	for i := range entries {
		e := &entries[i]
		day := dateOf(e.SpentOn)
		if day.After(asOfDate) {
			continue
		}
		if day.After(windowStart) {
			recent[e.UserID] = true
		}
	}

	compliant := 0
	for _, u := range users {
		if recent[u.ID] {
			compliant++
		}
	}
	return compliant
}

// flaggedManagers counts distinct managers owning at least one project with
// an open violation attributable to their team.
func (a *Aggregator) flaggedManagers() (int, error) {
	open, err := a.violations.ListOpen()
	if err != nil {
		return 0, err
	}
	if len(open) == 0 {
		return 0, nil
	}

	projects, err := a.mirror.Projects()
	if err != nil {
		return 0, err
	}
	issues, err := a.mirror.Issues()
	if err != nil {
		return 0, err
	}

	managerByProject := make(map[int64]int64, len(projects))
	for _, p := range projects {
		if p.ManagerID != nil {
			managerByProject[p.ID] = *p.ManagerID
		}
	}
	projectByIssue := make(map[int64]int64, len(issues))
	for _, i := range issues {
		projectByIssue[i.ID] = i.ProjectID
	}

	managers := make(map[int64]struct{})
	for _, v := range open {
		projectID := int64(0)
		if v.ProjectID != nil {
			projectID = *v.ProjectID
		} else if v.IssueID != nil {
			projectID = projectByIssue[*v.IssueID]
		}
		if projectID == 0 {
			continue
		}
		if managerID, ok := managerByProject[projectID]; ok {
			managers[managerID] = struct{}{}
		}
	}
	return len(managers), nil
}

func rate(compliant, total int) float64 {
	if total == 0 {
		return 100
	}
	// Two decimal places is plenty for a dashboard percentage.
	return math.Round(float64(compliant)/float64(total)*10000) / 100
}
