/*
calendar.go - Recurrence pattern expansion

PURPOSE:

	Expands a recurrence pattern and date range into the ordered set of
	candidate assignment dates for one employee. This is the first stage of
	subscription creation: each produced date becomes one Assignment at the
	employee's combo price.

PATTERNS:

	EVERY_DAY        every calendar date in [start, end]
	EVERY_OTHER_DAY  stride-2 dates anchored at start
	CUSTOM           caller-supplied dates, filtered to range, deduplicated

PURITY:

	Generate has no side effects and is idempotent: identical input yields
	an identical sequence, so a retried creation produces the same calendar.
*/
package benefit

import "sort"

// CalendarGenerator expands recurrence patterns into dated sequences.
type CalendarGenerator struct{}

// Generate returns the ordered, deduplicated dates within [start, end]
// for the given pattern. CUSTOM requires a non-empty date list.
func (CalendarGenerator) Generate(start, end Date, pattern Pattern, custom []Date) ([]Date, error) {
	if start.IsZero() || end.IsZero() {
		return nil, &ValidationError{Field: "dates", Message: "start and end dates are required"}
	}
	if end.Before(start) {
		return nil, &ValidationError{Field: "endDate", Message: "end date before start date"}
	}

	switch pattern {
	case PatternEveryDay:
		return DateRange{Start: start, End: end}.Days(), nil

	case PatternEveryOtherDay:
		var dates []Date
		for cur := start; cur.BeforeOrEqual(end); cur = cur.AddDays(2) {
			dates = append(dates, cur)
		}
		return dates, nil

	case PatternCustom:
		if len(custom) == 0 {
			return nil, &ValidationError{Field: "customDates", Message: "custom pattern requires at least one date"}
		}
		rng := DateRange{Start: start, End: end}
		seen := make(map[string]bool, len(custom))
		var dates []Date
		for _, d := range custom {
			if !rng.Contains(d) || seen[d.String()] {
				continue
			}
			seen[d.String()] = true
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		return dates, nil

	default:
		return nil, &ValidationError{Field: "pattern", Message: "unknown pattern: " + string(pattern)}
	}
}
