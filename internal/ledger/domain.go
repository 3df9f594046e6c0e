// Package ledger owns the periodic financial record of a group: open and
// closed collection periods, per-member contribution rows, and the group
// standing snapshot committed atomically when a period closes.
package ledger

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/latefine"
	"github.com/saheli-shg/saheli/internal/schedule"
	"github.com/saheli-shg/saheli/internal/shared"
)

// ContributionStatus classifies a member's payment state within a period.
type ContributionStatus string

const (
	StatusPending ContributionStatus = "PENDING"
	StatusPartial ContributionStatus = "PARTIAL"
	StatusPaid    ContributionStatus = "PAID"
)

// Epsilon absorbs float drift in monetary comparisons. Exact equality on
// accumulated sums is a known source of false negatives.
const Epsilon = 0.01

// Period is one accounting cycle of a group. Sequence numbers are gapless
// and strictly increasing per group; at most one period is open at a time.
type Period struct {
	ID               uuid.UUID
	GroupID          uuid.UUID
	Seq              int64
	MeetingDate      time.Time
	DueDate          time.Time
	StandingAtStart  float64
	TotalCollected   float64
	InterestEarned   float64
	LateFines        float64
	NewContributions float64
	Expenses         float64
	LoanRepayments   float64
	CashInHandAtEnd  float64
	CashInBankAtEnd  float64
	StandingAtEnd    float64
	MembersPresent   int
	ClosedAt         *time.Time
	ClosedBy         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Open reports whether the period still accepts contributions.
func (p Period) Open() bool {
	return p.ClosedAt == nil
}

// MemberContribution is one member's row within a period.
type MemberContribution struct {
	ID               uuid.UUID
	PeriodID         uuid.UUID
	MemberID         uuid.UUID
	ContributionDue  float64
	InterestDue      float64
	DueAmount        float64 // contribution + carry-forward + interest
	ContributionPaid float64
	InterestPaid     float64
	FinePaid         float64
	TotalPaid        float64
	LoanRepayment    float64
	LateFine         float64
	DaysLate         int
	RemainingAmount  float64
	PaidAt           *time.Time
	Status           ContributionStatus
}

// CashAllocation splits a member's payment between cash-in-hand and bank.
type CashAllocation struct {
	ToHand float64 `json:"toHand"`
	ToBank float64 `json:"toBank"`
}

// DefaultAllocation is applied when no explicit split accompanies a payment:
// 30% stays in hand, 70% goes to the bank.
func DefaultAllocation(total float64) CashAllocation {
	return CashAllocation{ToHand: total * 0.3, ToBank: total * 0.7}
}

// GroupConfig is the slice of group state the lifecycle manager needs.
type GroupConfig struct {
	GroupID             uuid.UUID
	MonthlyContribution float64
	InterestRate        float64
	Schedule            schedule.Config
	FineRule            latefine.Rule
	CashInHand          float64
	BankBalance         float64
}

// ContributionInput carries one member's payment amounts.
type ContributionInput struct {
	MemberID         uuid.UUID
	ContributionPaid float64
	InterestPaid     float64
	FinePaid         float64
	LoanRepayment    float64
	PaidAt           *time.Time
}

// Validate rejects negative or non-finite amounts.
func (in ContributionInput) Validate() error {
	if in.MemberID == uuid.Nil {
		return &shared.ValidationError{Field: "memberId", Reason: "required"}
	}
	for field, v := range map[string]float64{
		"contributionPaid": in.ContributionPaid,
		"interestPaid":     in.InterestPaid,
		"finePaid":         in.FinePaid,
		"loanRepayment":    in.LoanRepayment,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &shared.ValidationError{Field: field, Reason: "must be finite"}
		}
		if v < 0 {
			return &shared.ValidationError{Field: field, Reason: "must not be negative"}
		}
	}
	return nil
}

// Paid sums the payment components that count toward the member's dues.
func (in ContributionInput) Paid() float64 {
	return in.ContributionPaid + in.InterestPaid + in.FinePaid
}

// CloseInput bundles the final adjustments applied while closing a period.
// Allocation overrides the default 30/70 split of collected cash; when nil,
// DefaultAllocation applies.
type CloseInput struct {
	ActorID       string
	Contributions []ContributionInput
	Expenses      float64
	Allocation    *CashAllocation
	ClosedAt      time.Time // zero value means "now"
}

// Validate checks the close request.
func (in CloseInput) Validate() error {
	if in.Expenses < 0 {
		return &shared.ValidationError{Field: "expenses", Reason: "must not be negative"}
	}
	if in.Allocation != nil && (in.Allocation.ToHand < 0 || in.Allocation.ToBank < 0) {
		return &shared.ValidationError{Field: "allocation", Reason: "must not be negative"}
	}
	for _, c := range in.Contributions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ClosedPeriodSnapshot is the result of a successful close.
type ClosedPeriodSnapshot struct {
	Period     Period
	NextPeriod Period
	Members    []MemberContribution
	Allocation CashAllocation
	Warnings   []string
}

// GrowthResult compares a period's standing with the previous closed period.
type GrowthResult struct {
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}
