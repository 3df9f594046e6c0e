package latefine

import (
	"testing"

	"github.com/saheli-shg/saheli/internal/shared"
)

func TestComputeNilRuleOrOnTime(t *testing.T) {
	if fine, ok := Compute(nil, 10, 500); fine != 0 || !ok {
		t.Fatalf("nil rule should charge nothing, got %v", fine)
	}
	if fine, _ := Compute(DailyFixed{Amount: 10}, 0, 500); fine != 0 {
		t.Fatalf("no fine at zero days late, got %v", fine)
	}
}

func TestDailyFixed(t *testing.T) {
	fine, ok := Compute(DailyFixed{Amount: 10}, 6, 500)
	if !ok || fine != 60 {
		t.Fatalf("expected 60, got %v (matched=%v)", fine, ok)
	}
}

func TestDailyPercentage(t *testing.T) {
	fine, ok := Compute(DailyPercentage{Percent: 2}, 5, 1000)
	if !ok || fine != 100 {
		t.Fatalf("expected 100, got %v (matched=%v)", fine, ok)
	}
}

func TestTierBasedWholeSpanAtMatchedTier(t *testing.T) {
	rule := TierBased{Tiers: []Tier{
		{StartDay: 1, EndDay: 4, Amount: 10},
		{StartDay: 5, EndDay: 8, Amount: 30},
		{StartDay: 9, EndDay: OpenEnded, Amount: 49.98},
	}}
	fine, ok := Compute(rule, 10, 500)
	if !ok {
		t.Fatal("expected a matching tier")
	}
	if fine != 499.80 {
		t.Fatalf("expected 499.80, got %v", fine)
	}

	// The matched tier prices the ENTIRE span, not a progressive sum.
	fine, _ = Compute(rule, 6, 500)
	if fine != 180 {
		t.Fatalf("expected 180 (6 days at tier-2 rate), got %v", fine)
	}
}

func TestTierBasedPercentageTier(t *testing.T) {
	rule := TierBased{Tiers: []Tier{{StartDay: 1, EndDay: OpenEnded, Amount: 1, IsPercentage: true}}}
	fine, ok := Compute(rule, 3, 1000)
	if !ok || fine != 30 {
		t.Fatalf("expected 30, got %v (matched=%v)", fine, ok)
	}
}

func TestTierBasedGapSignalsNoMatch(t *testing.T) {
	rule := TierBased{Tiers: []Tier{
		{StartDay: 1, EndDay: 4, Amount: 10},
		{StartDay: 9, EndDay: OpenEnded, Amount: 50},
	}}
	fine, ok := Compute(rule, 6, 500)
	if ok {
		t.Fatal("expected gap to report no match")
	}
	if fine != 0 {
		t.Fatalf("unmatched lateness must charge nothing, got %v", fine)
	}
}

func TestTierBasedValidate(t *testing.T) {
	cases := []struct {
		name  string
		tiers []Tier
	}{
		{"empty", nil},
		{"startBelowOne", []Tier{{StartDay: 0, EndDay: 4, Amount: 5}}},
		{"endBeforeStart", []Tier{{StartDay: 5, EndDay: 4, Amount: 5}}},
		{"negativeAmount", []Tier{{StartDay: 1, EndDay: 4, Amount: -1}}},
		{"overlap", []Tier{{StartDay: 1, EndDay: 5, Amount: 5}, {StartDay: 5, EndDay: 9, Amount: 10}}},
		{"unordered", []Tier{{StartDay: 8, EndDay: 15, Amount: 10}, {StartDay: 1, EndDay: 7, Amount: 5}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := (TierBased{Tiers: tc.tiers}).Validate(); !shared.IsConfigError(err) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}

	if err := (TierBased{Tiers: DefaultTiers()}).Validate(); err != nil {
		t.Fatalf("default tiers must validate, got %v", err)
	}
}

func TestNegativeRatesRejected(t *testing.T) {
	if err := (DailyFixed{Amount: -1}).Validate(); !shared.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if err := (DailyPercentage{Percent: -1}).Validate(); !shared.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
