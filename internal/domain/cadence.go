package domain

import "time"

// CadencePolicy parameterizes eligibility and batching for one cadence.
type CadencePolicy struct {
	Cadence Cadence
	// Window is how far back published timestamps are considered fresh.
	Window time.Duration
	// Batch groups all eligible episodes of a user into one digest.
	Batch bool
	// Gate restricts batch runs to once per period. Nil means every run.
	Gate *Gate
}

// Since is the inclusive lower bound of the eligibility window at now.
func (p CadencePolicy) Since(now time.Time) time.Time {
	return now.Add(-p.Window)
}

// Gate opens once a day at Hour, or once a week when Weekday is set.
type Gate struct {
	Weekday *time.Weekday
	Hour    int
}

// DailyGate opens every day at hour.
func DailyGate(hour int) *Gate {
	return &Gate{Hour: hour}
}

// WeeklyGate opens every week on day at hour.
func WeeklyGate(day time.Weekday, hour int) *Gate {
	return &Gate{Weekday: &day, Hour: hour}
}

// LastOpening returns the most recent gate opening at or before now, in now's location.
func (g Gate) LastOpening(now time.Time) time.Time {
	opening := time.Date(now.Year(), now.Month(), now.Day(), g.Hour, 0, 0, 0, now.Location())
	if g.Weekday != nil {
		offset := (int(now.Weekday()) - int(*g.Weekday) + 7) % 7
		opening = opening.AddDate(0, 0, -offset)
		if opening.After(now) {
			opening = opening.AddDate(0, 0, -7)
		}
		return opening
	}
	if opening.After(now) {
		opening = opening.AddDate(0, 0, -1)
	}
	return opening
}

// Period names the gate period that contains now.
func (g Gate) Period(now time.Time) string {
	return g.LastOpening(now).Format("2006-01-02T15")
}

// DefaultPolicies returns the stock cadence table.
func DefaultPolicies() []CadencePolicy {
	return []CadencePolicy{
		{Cadence: CadenceImmediate, Window: 48 * time.Hour},
		{Cadence: CadenceDaily, Window: 24 * time.Hour, Batch: true, Gate: DailyGate(8)},
		{Cadence: CadenceWeekly, Window: 7 * 24 * time.Hour, Batch: true, Gate: WeeklyGate(time.Monday, 9)},
	}
}
