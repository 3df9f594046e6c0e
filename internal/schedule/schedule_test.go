package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/saheli-shg/saheli/internal/shared"
)

func TestResolveMonthlyDefaultsDayOfMonth(t *testing.T) {
	s, err := Resolve(Config{Frequency: FrequencyMonthly})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.DayOfMonth != 1 {
		t.Fatalf("expected default day 1, got %d", s.DayOfMonth)
	}
}

func TestResolveMonthlyRejectsDay32(t *testing.T) {
	_, err := Resolve(Config{Frequency: FrequencyMonthly, DayOfMonth: 32})
	var ce *shared.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ce.Field != "dayOfMonth" {
		t.Fatalf("expected dayOfMonth field, got %s", ce.Field)
	}
}

func TestResolveWeeklyDefaultsMonday(t *testing.T) {
	s, err := Resolve(Config{Frequency: FrequencyWeekly})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.DayOfWeek != time.Monday {
		t.Fatalf("expected Monday, got %v", s.DayOfWeek)
	}
}

func TestResolveFortnightlyDefaultsAndBounds(t *testing.T) {
	s, err := Resolve(Config{Frequency: FrequencyFortnightly})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.DayOfWeek != time.Monday || s.WeekOfMonth != 1 {
		t.Fatalf("unexpected defaults: %+v", s)
	}

	_, err = Resolve(Config{Frequency: FrequencyFortnightly, WeekOfMonth: 5})
	var ce *shared.ConfigError
	if !errors.As(err, &ce) || ce.Field != "weekOfMonth" {
		t.Fatalf("expected weekOfMonth ConfigError, got %v", err)
	}
}

func TestResolveRejectsUnknownFrequency(t *testing.T) {
	_, err := Resolve(Config{Frequency: "DAILY"})
	if !shared.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestDueDateInMonthlyClampsShortMonths(t *testing.T) {
	s := Schedule{Frequency: FrequencyMonthly, DayOfMonth: 31}
	due := s.DueDateIn(time.Date(2025, time.February, 10, 15, 0, 0, 0, time.UTC))
	want := time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("expected %v, got %v", want, due)
	}
}

func TestDueDateInWeekly(t *testing.T) {
	s := Schedule{Frequency: FrequencyWeekly, DayOfWeek: time.Friday}
	// 2025-06-04 is a Wednesday; the next Friday is June 6.
	due := s.DueDateIn(time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC))
	want := time.Date(2025, time.June, 6, 0, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("expected %v, got %v", want, due)
	}
}

func TestDueDateInFortnightlySecondWeek(t *testing.T) {
	s := Schedule{Frequency: FrequencyFortnightly, DayOfWeek: time.Monday, WeekOfMonth: 2}
	// First Monday of June 2025 is the 2nd; second Monday is the 9th.
	due := s.DueDateIn(time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC))
	want := time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("expected %v, got %v", want, due)
	}
}

func TestNextDueDateMonthlyAdvancesOneMonth(t *testing.T) {
	s := Schedule{Frequency: FrequencyMonthly, DayOfMonth: 31}
	next := s.NextDueDate(time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC))
	want := time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextDueDateMonthlyDecemberWraps(t *testing.T) {
	s := Schedule{Frequency: FrequencyMonthly, DayOfMonth: 10}
	next := s.NextDueDate(time.Date(2025, time.December, 10, 0, 0, 0, 0, time.UTC))
	want := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextDueDateWeeklyStrictlyAfter(t *testing.T) {
	s := Schedule{Frequency: FrequencyWeekly, DayOfWeek: time.Monday}
	// From a Monday, the next due date is the following Monday.
	next := s.NextDueDate(time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC))
	want := time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextDueDateFortnightlyKeepsWeekday(t *testing.T) {
	s := Schedule{Frequency: FrequencyFortnightly, DayOfWeek: time.Tuesday, WeekOfMonth: 1}
	next := s.NextDueDate(time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC))
	want := time.Date(2025, time.June, 17, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	if next.Weekday() != time.Tuesday {
		t.Fatalf("expected Tuesday, got %v", next.Weekday())
	}
}

func TestDaysLateUsesFloor(t *testing.T) {
	due := time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, time.June, 13, 23, 50, 0, 0, time.UTC)
	if got := DaysLate(due, at); got != 8 {
		t.Fatalf("expected 8 days late, got %d", got)
	}
}

func TestDaysLateNeverNegative(t *testing.T) {
	due := time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	if got := DaysLate(due, at); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := DaysLate(due, due); got != 0 {
		t.Fatalf("on-time payment should be 0 days late, got %d", got)
	}
}
