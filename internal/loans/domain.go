// Package loans tracks per-member loan principal and interest within a group.
package loans

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saheli-shg/saheli/internal/shared"
)

// Status enumerates loan lifecycle states.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaid      Status = "PAID"
	StatusDefaulted Status = "DEFAULTED"
)

// BalanceTolerance absorbs float drift when deciding a loan is settled.
const BalanceTolerance = 0.01

// Loan is a disbursement to one member of one group.
type Loan struct {
	ID             uuid.UUID
	GroupID        uuid.UUID
	MemberID       uuid.UUID
	OriginalAmount float64
	CurrentBalance float64
	InterestRate   float64 // percent per collection period
	Status         Status
	IssuedAt       time.Time
	UpdatedAt      time.Time
}

// DisburseInput carries loan creation data. Both identifiers are mandatory;
// a loan without a valid member and group association is unrepairable later.
type DisburseInput struct {
	GroupID      uuid.UUID
	MemberID     uuid.UUID
	Amount       float64
	InterestRate float64
	IssuedAt     time.Time
}

// Validate ensures the disbursement is coherent.
func (in DisburseInput) Validate() error {
	if in.GroupID == uuid.Nil {
		return &shared.ValidationError{Field: "groupId", Reason: "required"}
	}
	if in.MemberID == uuid.Nil {
		return &shared.ValidationError{Field: "memberId", Reason: "required"}
	}
	if in.Amount <= 0 {
		return &shared.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if in.InterestRate < 0 {
		return &shared.ValidationError{Field: "interestRate", Reason: "must not be negative"}
	}
	return nil
}

// Update is one balance mutation produced by a repayment allocation.
type Update struct {
	LoanID     uuid.UUID
	NewBalance float64
	NewStatus  Status
}

// PeriodInterest computes simple interest on the balance held at period
// start. Interest never compounds within a period.
func PeriodInterest(balance, ratePercent float64) float64 {
	v, _ := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(ratePercent)).
		Div(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return v
}

// OutstandingBalance sums current balances across ACTIVE loans only.
func OutstandingBalance(ls []Loan) float64 {
	var total float64
	for _, l := range ls {
		if l.Status == StatusActive {
			total += l.CurrentBalance
		}
	}
	return total
}

// AllocateRepayment walks the member's active loans oldest-first and splits
// amount across them. A loan whose balance lands within BalanceTolerance of
// zero transitions to PAID. Paying more than the total outstanding (beyond
// tolerance) is a consistency violation.
func AllocateRepayment(active []Loan, amount float64) ([]Update, error) {
	if amount < 0 {
		return nil, &shared.ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if amount == 0 {
		return nil, nil
	}
	if amount > OutstandingBalance(active)+BalanceTolerance {
		return nil, shared.ErrOverRepayment
	}
	remaining := amount
	var updates []Update
	for _, loan := range active {
		if loan.Status != StatusActive || remaining <= 0 {
			continue
		}
		applied := remaining
		if applied > loan.CurrentBalance {
			applied = loan.CurrentBalance
		}
		balance := loan.CurrentBalance - applied
		remaining -= applied
		status := StatusActive
		if balance <= BalanceTolerance {
			balance = 0
			status = StatusPaid
		}
		updates = append(updates, Update{LoanID: loan.ID, NewBalance: balance, NewStatus: status})
	}
	return updates, nil
}
