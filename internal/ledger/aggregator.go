package ledger

import "github.com/shopspring/decimal"

// Remaining returns the unpaid portion of a member's dues, never negative.
// The difference is rounded to two decimal places: binary floating point
// makes 1000 - 999.99 land a hair above 0.01, which would defeat the
// tolerance check below.
func Remaining(due, paid float64) float64 {
	r, _ := decimal.NewFromFloat(due).Sub(decimal.NewFromFloat(paid)).Round(2).Float64()
	if r < 0 {
		return 0
	}
	return r
}

// Classify maps dues against payments onto a contribution status using the
// Epsilon tolerance. Exact-equality checks on accumulated monetary sums
// misclassify fully paid members and must not be used.
func Classify(due, paid float64) ContributionStatus {
	switch {
	case Remaining(due, paid) <= Epsilon:
		return StatusPaid
	case paid > Epsilon:
		return StatusPartial
	default:
		return StatusPending
	}
}
