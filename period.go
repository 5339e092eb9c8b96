package checkout

import "time"

// AddBillingPeriod advances t by the billing period, clamping the day of
// month to the last day of the target month. A one-month period starting
// January 31 ends February 28 (29 in a leap year), never March 3.
func AddBillingPeriod(t time.Time, p BillingPeriod) time.Time {
	if p.Months <= 0 {
		return t
	}

	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// First of the target month; time.Date normalizes month overflow.
	target := time.Date(year, month+time.Month(p.Months), 1, hour, min, sec, t.Nanosecond(), t.Location())

	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}

	return time.Date(target.Year(), target.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// RenewsAt returns when a subscription started at from next renews. For a
// one-time purchase it returns from unchanged.
func (q Quote) RenewsAt(from time.Time) time.Time {
	return AddBillingPeriod(from, q.Period)
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
