package compliance

import (
	"fmt"
	"math"
	"time"

	"github.com/worklens/worklens/internal/tracking"
)

// Evaluator scans one rule against an immutable snapshot. Implementations
// are pure: same snapshot and config, same candidates, regardless of
// execution order or concurrency.
type Evaluator interface {
	Kind() Kind
	Evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, error)
}

// DefaultEvaluators returns the full rule catalogue.
func DefaultEvaluators() []Evaluator {
	return []Evaluator{
		missingEntryRule{},
		lateEntryRule{},
		bulkLoggingRule{},
		roundNumbersRule{},
		staleTaskRule{},
		overrunTaskRule{},
		partialEntryRule{},
	}
}

const (
	// Round-number detection is fixed by the rule, not operator-tunable.
	roundNumberWindowDays = 7
	roundNumberMinEntries = 5

	// Late entries more than a week late escalate to high severity.
	lateEntryHighDays = 7

	// Overruns past double the estimate escalate to high severity.
	overrunHighPercent = 200
)

// missingEntryRule flags active users with no time entry inside the
// configured working-day window.
type missingEntryRule struct{}

func (missingEntryRule) Kind() Kind { return KindMissingEntry }

func (missingEntryRule) Evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, error) {
	cal := cfg.Calendar()
	windowStart := cal.WindowStart(snap.AsOf, cfg.MissingEntryDays)
	asOfDate := dateOf(snap.AsOf)

	var out []Candidate
	for _, user := range snap.ActiveUsers {
		var lastEntry time.Time
		recent := false
		for _, e := range snap.EntriesForUser(user.ID) {
			day := dateOf(e.SpentOn)
			if day.After(asOfDate) {
				continue
			}
			if day.After(lastEntry) {
				lastEntry = day
			}
			if day.After(windowStart) {
				recent = true
			}
		}
		if recent {
			continue
		}

		details := Details{
			"days_checked": cfg.MissingEntryDays,
		}
		if !lastEntry.IsZero() {
			details["last_entry_on"] = lastEntry.Format("2006-01-02")
		}
		out = append(out, Candidate{
			Kind:     KindMissingEntry,
			Severity: SeverityHigh,
			UserID:   user.ID,
			Anchor:   isoWeekAnchor(snap.AsOf),
			Details:  details,
		})
	}
	return out, nil
}

// lateEntryRule flags entries logged more than lateEntryDays after the work
// date, looking back lateEntryCheckDays from as-of.
type lateEntryRule struct{}

func (lateEntryRule) Kind() Kind { return KindLateEntry }

func (lateEntryRule) Evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, error) {
	checkStart := dateOf(snap.AsOf).AddDate(0, 0, -cfg.LateEntryCheckDays)

	var out []Candidate
	for i := range snap.Entries {
		e := &snap.Entries[i]
		if dateOf(e.SpentOn).Before(checkStart) {
			continue
		}
		daysLate := calendarDaysBetween(e.SpentOn, e.LoggedAt)
		if daysLate <= cfg.LateEntryDays {
			continue
		}

		severity := SeverityMedium
		if daysLate > lateEntryHighDays {
			severity = SeverityHigh
		}
		projectID := e.ProjectID
		out = append(out, Candidate{
			Kind:      KindLateEntry,
			Severity:  severity,
			UserID:    e.UserID,
			IssueID:   e.IssueID,
			ProjectID: &projectID,
			Anchor:    fmt.Sprintf("entry-%d", e.ID),
			Details: Details{
				"days_late": daysLate,
				"threshold": cfg.LateEntryDays,
				"spent_on":  dateOf(e.SpentOn).Format("2006-01-02"),
				"logged_on": dateOf(e.LoggedAt).Format("2006-01-02"),
				"hours":     e.Hours,
			},
		})
	}
	return out, nil
}

// bulkLoggingRule flags creation batches (entries sharing one logged_at
// timestamp) of at least bulkLoggingThreshold entries whose work dates span
// two or more days.
type bulkLoggingRule struct{}

func (bulkLoggingRule) Kind() Kind { return KindBulkLogging }

type batchKey struct {
	userID   int64
	loggedAt int64
}

func (bulkLoggingRule) Evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, error) {
	batches := make(map[batchKey][]*tracking.TimeEntry)
	for i := range snap.Entries {
		e := &snap.Entries[i]
		key := batchKey{userID: e.UserID, loggedAt: e.LoggedAt.Truncate(time.Second).Unix()}
		batches[key] = append(batches[key], e)
	}

	var out []Candidate
	for key, entries := range batches {
		if len(entries) < cfg.BulkLoggingThreshold {
			continue
		}
		days := make(map[string]struct{})
		for _, e := range entries {
			days[dateOf(e.SpentOn).Format("2006-01-02")] = struct{}{}
		}
		if len(days) < 2 {
			continue
		}

		batchAt := time.Unix(key.loggedAt, 0).UTC()
		out = append(out, Candidate{
			Kind:     KindBulkLogging,
			Severity: SeverityMedium,
			UserID:   key.userID,
			Anchor:   batchAt.Format(time.RFC3339),
			Details: Details{
				"entry_count":  len(entries),
				"days_spanned": len(days),
				"threshold":    cfg.BulkLoggingThreshold,
				"logged_at":    batchAt.Format(time.RFC3339),
			},
		})
	}
	return out, nil
}

// roundNumbersRule flags users logging five or more whole-hour entries in
// the last seven calendar days.
type roundNumbersRule struct{}

func (roundNumbersRule) Kind() Kind { return KindRoundNumbers }

func (roundNumbersRule) Evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, error) {
	windowStart := dateOf(snap.AsOf).AddDate(0, 0, -roundNumberWindowDays)
	asOfDate := dateOf(snap.AsOf)

	var out []Candidate
	for _, user := range snap.ActiveUsers {
		round := 0
		for _, e := range snap.EntriesForUser(user.ID) {
			day := dateOf(e.SpentOn)
			if day.After(asOfDate) || !day.After(windowStart) {
				continue
			}
			if e.IsWholeHours() {
				round++
			}
		}
		if round < roundNumberMinEntries {
			continue
		}
		out = append(out, Candidate{
			Kind:     KindRoundNumbers,
			Severity: SeverityLow,
			UserID:   user.ID,
			Anchor:   isoWeekAnchor(snap.AsOf),
			Details: Details{
				"round_entries": round,
				"window_days":   roundNumberWindowDays,
			},
		})
	}
	return out, nil
}

// staleTaskRule flags open issues on active projects with no entry inside
// the configured working-day window. Issues younger than the window are not
// flagged; issues older than staleTaskMonths are treated as parked backlog
// and skipped.
type staleTaskRule struct{}

func (staleTaskRule) Kind() Kind { return KindStaleTask }

func (staleTaskRule) Evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, error) {
	cal := cfg.Calendar()
	windowStart := cal.WindowStart(snap.AsOf, cfg.StaleTaskDays)
	backlogCutoff := dateOf(snap.AsOf).AddDate(0, -cfg.StaleTaskMonths, 0)

	var out []Candidate
	for i := range snap.Issues {
		issue := &snap.Issues[i]
		if !issue.IsOpen() {
			continue
		}
		project := snap.IssueProject(issue)
		if project == nil || !project.IsActive() {
			continue
		}
		created := dateOf(issue.CreatedOn)
		if created.After(windowStart) {
			// Younger than the window: counted from creation, the issue has
			// not been idle a full window yet.
			continue
		}
		if created.Before(backlogCutoff) {
			continue
		}

		recent := false
		for _, e := range snap.EntriesForIssue(issue.ID) {
			if dateOf(e.SpentOn).After(windowStart) {
				recent = true
				break
			}
		}
		if recent {
			continue
		}

		subject := subjectUser(issue, project)
		if subject == 0 {
			continue
		}
		issueID := issue.ID
		projectID := project.ID
		out = append(out, Candidate{
			Kind:      KindStaleTask,
			Severity:  SeverityMedium,
			UserID:    subject,
			IssueID:   &issueID,
			ProjectID: &projectID,
			Anchor:    isoWeekAnchor(snap.AsOf),
			Details: Details{
				"stale_days": cfg.StaleTaskDays,
				"created_on": created.Format("2006-01-02"),
				"subject":    issue.Subject,
			},
		})
	}
	return out, nil
}

// overrunTaskRule flags estimated issues whose all-time spent hours exceed
// the estimate by more than the configured percentage.
type overrunTaskRule struct{}

func (overrunTaskRule) Kind() Kind { return KindOverrunTask }

func (overrunTaskRule) Evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, error) {
	var out []Candidate
	for i := range snap.Issues {
		issue := &snap.Issues[i]
		if !issue.HasEstimate() {
			continue
		}
		spent := snap.IssueHours[issue.ID]
		if spent <= 0 {
			continue
		}
		estimate := *issue.EstimatedHours
		if spent <= estimate*float64(cfg.OverrunThreshold)/100 {
			continue
		}

		// Round to two decimals so float noise neither leaks into the
		// stored detail nor tips an exact threshold.
		ratio := math.Round(spent/estimate*10000) / 100
		severity := SeverityMedium
		if ratio > overrunHighPercent {
			severity = SeverityHigh
		}

		project := snap.IssueProject(issue)
		subject := subjectUser(issue, project)
		if subject == 0 {
			continue
		}

		details := Details{
			"estimated_hours": estimate,
			"spent_hours":     spent,
			"ratio_percent":   ratio,
			"threshold":       cfg.OverrunThreshold,
			"subject":         issue.Subject,
		}
		if spent > float64(cfg.MaxSpentHours) {
			details["exceeds_max_spent_hours"] = true
		}

		issueID := issue.ID
		c := Candidate{
			Kind:     KindOverrunTask,
			Severity: severity,
			UserID:   subject,
			IssueID:  &issueID,
			Details:  details,
		}
		if project != nil {
			projectID := project.ID
			c.ProjectID = &projectID
		}
		out = append(out, c)
	}
	return out, nil
}

// partialEntryRule flags user/scope pairs whose summed hours for the most
// recently completed ISO week fall below the configured weekly floor. Pairs
// with no entries at all are missing-entry territory, not partial.
type partialEntryRule struct{}

func (partialEntryRule) Kind() Kind { return KindPartialEntry }

type scopeKey struct {
	userID    int64
	issueID   int64
	projectID int64
}

func (partialEntryRule) Evaluate(snap *tracking.Snapshot, cfg Config) ([]Candidate, error) {
	weekStart, weekEnd := previousISOWeek(snap.AsOf)

	totals := make(map[scopeKey]float64)
	for i := range snap.Entries {
		e := &snap.Entries[i]
		day := dateOf(e.SpentOn)
		if day.Before(weekStart) || !day.Before(weekEnd) {
			continue
		}
		key := scopeKey{userID: e.UserID, projectID: e.ProjectID}
		if e.IssueID != nil {
			key.issueID = *e.IssueID
		}
		totals[key] += e.Hours
	}

	week := isoWeekAnchor(weekStart)
	var out []Candidate
	for key, total := range totals {
		if total >= cfg.PartialEntryMinHours {
			continue
		}
		severity := SeverityLow
		if total < cfg.PartialEntryMinHours/2 {
			severity = SeverityMedium
		}

		c := Candidate{
			Kind:     KindPartialEntry,
			Severity: severity,
			UserID:   key.userID,
			Anchor:   week,
			Details: Details{
				"week":        week,
				"total_hours": total,
				"min_hours":   cfg.PartialEntryMinHours,
			},
		}
		if key.issueID != 0 {
			issueID := key.issueID
			c.IssueID = &issueID
		}
		projectID := key.projectID
		c.ProjectID = &projectID
		out = append(out, c)
	}
	return out, nil
}

// subjectUser attributes an issue-scoped violation: the assignee when set,
// otherwise the project manager. Zero means nobody to attribute to.
func subjectUser(issue *tracking.Issue, project *tracking.Project) int64 {
	if issue.AssigneeID != nil {
		return *issue.AssigneeID
	}
	if project != nil && project.ManagerID != nil {
		return *project.ManagerID
	}
	return 0
}
