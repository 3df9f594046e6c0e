// Package latefine prices late contributions under a group's fine rule.
// A rule is one of three variants: a flat daily amount, a daily percentage of
// the amount due, or a tier table keyed by how late the payment is.
package latefine

import (
	"github.com/shopspring/decimal"

	"github.com/saheli-shg/saheli/internal/shared"
)

// OpenEnded marks a final tier with no upper bound on days late.
const OpenEnded = 9999

// Rule is the closed set of fine-rule variants.
type Rule interface {
	// fine returns the amount and whether the rule matched daysLate.
	fine(daysLate int, baseDue float64) (float64, bool)
	// Validate checks the variant's own configuration.
	Validate() error
}

// Compute prices a payment daysLate days overdue against baseDue. The bool
// result is false when a tier table has a gap at daysLate; the fine is then
// zero and the caller should surface a warning. A nil rule or an on-time
// payment never incurs a fine.
func Compute(r Rule, daysLate int, baseDue float64) (float64, bool) {
	if r == nil || daysLate <= 0 {
		return 0, true
	}
	return r.fine(daysLate, baseDue)
}

// DailyFixed charges a flat amount per day late.
type DailyFixed struct {
	Amount float64
}

func (r DailyFixed) fine(daysLate int, _ float64) (float64, bool) {
	return round2(r.Amount * float64(daysLate)), true
}

// Validate implements Rule.
func (r DailyFixed) Validate() error {
	if r.Amount < 0 {
		return &shared.ConfigError{Field: "dailyAmount", Reason: "must not be negative"}
	}
	return nil
}

// DailyPercentage charges a percentage of the base due amount per day late.
type DailyPercentage struct {
	Percent float64
}

func (r DailyPercentage) fine(daysLate int, baseDue float64) (float64, bool) {
	return round2(baseDue * (r.Percent / 100) * float64(daysLate)), true
}

// Validate implements Rule.
func (r DailyPercentage) Validate() error {
	if r.Percent < 0 {
		return &shared.ConfigError{Field: "dailyPercentage", Reason: "must not be negative"}
	}
	return nil
}

// Tier prices one band of lateness. Amount is a flat per-day charge, or a
// per-day percentage of the base due amount when IsPercentage is set.
type Tier struct {
	StartDay     int
	EndDay       int
	Amount       float64
	IsPercentage bool
}

// TierBased selects the single tier containing daysLate and prices the whole
// late span at that tier's per-day rate. Lateness past every bound uses an
// OpenEnded final tier.
type TierBased struct {
	Tiers []Tier
}

func (r TierBased) fine(daysLate int, baseDue float64) (float64, bool) {
	for _, tier := range r.Tiers {
		if daysLate < tier.StartDay || daysLate > tier.EndDay {
			continue
		}
		perDay := tier.Amount
		if tier.IsPercentage {
			perDay = baseDue * (tier.Amount / 100)
		}
		return round2(perDay * float64(daysLate)), true
	}
	return 0, false
}

// Validate rejects empty, unordered, overlapping, or negative tier tables.
func (r TierBased) Validate() error {
	if len(r.Tiers) == 0 {
		return &shared.ConfigError{Field: "tierRules", Reason: "requires at least one tier"}
	}
	prevEnd := 0
	for _, tier := range r.Tiers {
		if tier.StartDay < 1 {
			return &shared.ConfigError{Field: "tierRules.startDay", Reason: "must be at least 1"}
		}
		if tier.EndDay < tier.StartDay {
			return &shared.ConfigError{Field: "tierRules.endDay", Reason: "must not precede startDay"}
		}
		if tier.Amount < 0 {
			return &shared.ConfigError{Field: "tierRules.amount", Reason: "must not be negative"}
		}
		if tier.StartDay <= prevEnd {
			return &shared.ConfigError{Field: "tierRules", Reason: "tiers must be ascending and non-overlapping"}
		}
		prevEnd = tier.EndDay
	}
	return nil
}

// DefaultTiers is the fallback tier table applied when a group enables
// tier-based fines without configuring any tiers.
func DefaultTiers() []Tier {
	return []Tier{
		{StartDay: 1, EndDay: 7, Amount: 5},
		{StartDay: 8, EndDay: 15, Amount: 10},
		{StartDay: 16, EndDay: OpenEnded, Amount: 15},
	}
}

// round2 rounds to two decimal places through decimal arithmetic so repeated
// per-day multiplication cannot leak binary-float artifacts into stored fines.
func round2(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return out
}
