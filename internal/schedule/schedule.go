// Package schedule resolves group collection-frequency configuration into
// concrete due dates. All calculations are pure and use UTC calendar dates.
package schedule

import (
	"time"

	"github.com/saheli-shg/saheli/internal/shared"
)

// Frequency enumerates supported collection cycles.
type Frequency string

const (
	FrequencyWeekly      Frequency = "WEEKLY"
	FrequencyFortnightly Frequency = "FORTNIGHTLY"
	FrequencyMonthly     Frequency = "MONTHLY"
	FrequencyYearly      Frequency = "YEARLY"
)

// Weekday names a collection day as stored in group configuration.
type Weekday string

const (
	Sunday    Weekday = "SUNDAY"
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
)

var weekdays = map[Weekday]time.Weekday{
	Sunday:    time.Sunday,
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
}

// Config is the raw collection-schedule configuration attached to a group.
// Zero values mean "not configured"; Resolve applies the documented defaults.
type Config struct {
	Frequency   Frequency `json:"frequency"`
	DayOfMonth  int       `json:"dayOfMonth,omitempty"`
	DayOfWeek   Weekday   `json:"dayOfWeek,omitempty"`
	WeekOfMonth int       `json:"weekOfMonth,omitempty"`
}

// Schedule is a validated, fully defaulted configuration.
type Schedule struct {
	Frequency   Frequency
	DayOfMonth  int
	DayOfWeek   time.Weekday
	WeekOfMonth int
}

// Resolve validates cfg and fills in defaults. Out-of-range values are
// rejected with a ConfigError naming the offending field.
func Resolve(cfg Config) (Schedule, error) {
	s := Schedule{Frequency: cfg.Frequency}
	switch cfg.Frequency {
	case FrequencyMonthly, FrequencyYearly:
		s.DayOfMonth = cfg.DayOfMonth
		if s.DayOfMonth == 0 {
			s.DayOfMonth = 1
		}
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return Schedule{}, &shared.ConfigError{Field: "dayOfMonth", Reason: "must be between 1 and 31"}
		}
	case FrequencyWeekly:
		day, err := resolveWeekday(cfg.DayOfWeek)
		if err != nil {
			return Schedule{}, err
		}
		s.DayOfWeek = day
	case FrequencyFortnightly:
		day, err := resolveWeekday(cfg.DayOfWeek)
		if err != nil {
			return Schedule{}, err
		}
		s.DayOfWeek = day
		s.WeekOfMonth = cfg.WeekOfMonth
		if s.WeekOfMonth == 0 {
			s.WeekOfMonth = 1
		}
		if s.WeekOfMonth < 1 || s.WeekOfMonth > 4 {
			return Schedule{}, &shared.ConfigError{Field: "weekOfMonth", Reason: "must be between 1 and 4"}
		}
	default:
		return Schedule{}, &shared.ConfigError{Field: "frequency", Reason: "must be one of WEEKLY, FORTNIGHTLY, MONTHLY, YEARLY"}
	}
	return s, nil
}

func resolveWeekday(w Weekday) (time.Weekday, error) {
	if w == "" {
		return time.Monday, nil
	}
	day, ok := weekdays[w]
	if !ok {
		return 0, &shared.ConfigError{Field: "dayOfWeek", Reason: "unknown weekday name"}
	}
	return day, nil
}

// DueDateIn resolves the due date that falls inside the cycle containing ref.
func (s Schedule) DueDateIn(ref time.Time) time.Time {
	ref = DateOnly(ref)
	switch s.Frequency {
	case FrequencyWeekly:
		// Next occurrence of the collection weekday on or after ref.
		offset := (int(s.DayOfWeek) - int(ref.Weekday()) + 7) % 7
		return ref.AddDate(0, 0, offset)
	case FrequencyFortnightly:
		// Nth occurrence of the collection weekday in ref's month.
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		offset := (int(s.DayOfWeek) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, offset+7*(s.WeekOfMonth-1))
	case FrequencyYearly:
		return clampedDate(ref.Year(), time.January, s.DayOfMonth)
	default: // MONTHLY
		return clampedDate(ref.Year(), ref.Month(), s.DayOfMonth)
	}
}

// NextDueDate advances one full cycle past the previous due date.
func (s Schedule) NextDueDate(last time.Time) time.Time {
	last = DateOnly(last)
	switch s.Frequency {
	case FrequencyWeekly:
		// Strictly-after occurrence of the collection weekday.
		offset := (int(s.DayOfWeek) - int(last.Weekday()) + 6) % 7
		return last.AddDate(0, 0, offset+1)
	case FrequencyFortnightly:
		// WeekOfMonth anchors the first cycle; subsequent cycles keep the
		// weekday by advancing exactly fourteen days.
		return last.AddDate(0, 0, 14)
	case FrequencyYearly:
		return clampedDate(last.Year()+1, last.Month(), s.DayOfMonth)
	default: // MONTHLY
		year, month := last.Year(), last.Month()+1
		return clampedDate(year, month, s.DayOfMonth)
	}
}

// clampedDate builds a UTC date, snapping a day the month does not have to
// the month's final day (February 30 becomes February 28/29).
func clampedDate(year int, month time.Month, day int) time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Month() != (time.Month((int(month)-1)%12) + 1) {
		return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	}
	return d
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysLate counts full days strictly after the due date. The floor (not a
// ceiling) matters: a ceiling over-counts by one at the day rollover.
func DaysLate(due, at time.Time) int {
	diff := int(DateOnly(at).Sub(DateOnly(due)).Hours() / 24)
	if diff < 0 {
		return 0
	}
	return diff
}
