package benefit

import (
	"time"
)

// =============================================================================
// DATE - Calendar date at day granularity
// =============================================================================

// Date is a timezone-free calendar date. Assignments and compensation
// transactions are keyed by Date; instants only matter at the cutoff gate.
type Date struct {
	t time.Time // normalized to midnight UTC
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar date in the instant's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// DaysUntil returns the number of days from d to other (negative if other
// is earlier).
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

// ISOWeek returns the ISO 8601 year and week number. ISO weeks run
// Monday through Sunday, which is the weekly freeze-limit bucket.
func (d Date) ISOWeek() (year, week int) { return d.t.ISOWeek() }

// WeekStart returns the Monday of the ISO week containing d.
func (d Date) WeekStart() Date {
	wd := int(d.t.Weekday())
	if wd == 0 { // Sunday
		wd = 7
	}
	return d.AddDays(1 - wd)
}

// WeekEnd returns the Sunday of the ISO week containing d.
func (d Date) WeekEnd() Date { return d.WeekStart().AddDays(6) }

// SameISOWeek reports whether two dates fall in the same ISO week.
func (d Date) SameISOWeek(other Date) bool {
	y1, w1 := d.ISOWeek()
	y2, w2 := other.ISOWeek()
	return y1 == y2 && w1 == w2
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// =============================================================================
// DATE RANGE
// =============================================================================

type DateRange struct {
	Start Date
	End   Date
}

func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Days returns every date in [Start, End].
func (r DateRange) Days() []Date {
	var days []Date
	for cur := r.Start; cur.BeforeOrEqual(r.End); cur = cur.AddDays(1) {
		days = append(days, cur)
	}
	return days
}

func (r DateRange) String() string { return "[" + r.Start.String() + ", " + r.End.String() + "]" }

// =============================================================================
// TIME OF DAY - Project cutoff times
// =============================================================================

type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) Before(other TimeOfDay) bool {
	if t.Hour != other.Hour {
		return t.Hour < other.Hour
	}
	return t.Minute < other.Minute
}

func (t TimeOfDay) String() string {
	return time.Date(0, 1, 1, t.Hour, t.Minute, 0, 0, time.UTC).Format("15:04")
}

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock abstracts "now" so cutoff and same-day rules are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
