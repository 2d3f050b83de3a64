package compliance

import "fmt"

// Describe renders the one-line human explanation for a violation from its
// stored details. One formatting rule per kind; the switch is exhaustive
// over the catalogue.
func Describe(v *Violation) string {
	d := v.Details
	switch v.Kind {
	case KindMissingEntry:
		if last := d.String("last_entry_on"); last != "" {
			return fmt.Sprintf("no time entries in the last %d working days (last entry on %s)",
				d.Int("days_checked"), last)
		}
		return fmt.Sprintf("no time entries in the last %d working days", d.Int("days_checked"))

	case KindLateEntry:
		return fmt.Sprintf("time entry for %s logged %d days late on %s (allowed: %d days)",
			d.String("spent_on"), d.Int("days_late"), d.String("logged_on"), d.Int("threshold"))

	case KindBulkLogging:
		return fmt.Sprintf("%d time entries spanning %d days created in one batch at %s",
			d.Int("entry_count"), d.Int("days_spanned"), d.String("logged_at"))

	case KindRoundNumbers:
		return fmt.Sprintf("%d whole-hour entries in the last %d days",
			d.Int("round_entries"), d.Int("window_days"))

	case KindStaleTask:
		return fmt.Sprintf("open issue %q has no time entries in the last %d working days",
			d.String("subject"), d.Int("stale_days"))

	case KindOverrunTask:
		return fmt.Sprintf("issue %q spent %.1fh against a %.1fh estimate (%.0f%%, threshold %d%%)",
			d.String("subject"), d.Float("spent_hours"), d.Float("estimated_hours"),
			d.Float("ratio_percent"), d.Int("threshold"))

	case KindPartialEntry:
		return fmt.Sprintf("only %.1fh logged in week %s (weekly floor: %.1fh)",
			d.Float("total_hours"), d.String("week"), d.Float("min_hours"))
	}
	return string(v.Kind)
}
