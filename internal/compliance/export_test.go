package compliance

import "time"

// SetAggregatorClock pins the aggregator's notion of now in tests.
func SetAggregatorClock(a *Aggregator, now func() time.Time) {
	a.now = now
}
