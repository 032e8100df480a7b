package billing

import "time"

const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// IsKnownInterval reports whether interval is one of the supported units
func IsKnownInterval(interval string) bool {
	switch interval {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// AddInterval advances t by count units of interval. A count below one is
// treated as one. An unknown unit advances t by exactly one month.
func AddInterval(t time.Time, interval string, count int) time.Time {
	if count < 1 {
		count = 1
	}

	switch interval {
	case IntervalDay:
		return t.AddDate(0, 0, count)
	case IntervalWeek:
		return t.AddDate(0, 0, 7*count)
	case IntervalMonth:
		return t.AddDate(0, count, 0)
	case IntervalYear:
		return t.AddDate(count, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}
