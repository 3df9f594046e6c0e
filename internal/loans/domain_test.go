package loans

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/shared"
)

func activeLoan(balance float64, issued time.Time) Loan {
	return Loan{ID: uuid.New(), CurrentBalance: balance, Status: StatusActive, IssuedAt: issued}
}

func TestOutstandingBalanceCountsActiveOnly(t *testing.T) {
	ls := []Loan{
		{CurrentBalance: 2400, Status: StatusActive},
		{CurrentBalance: 0, Status: StatusActive},
		{CurrentBalance: 5000, Status: StatusPaid},
		{CurrentBalance: 700, Status: StatusDefaulted},
	}
	if got := OutstandingBalance(ls); got != 2400 {
		t.Fatalf("expected 2400, got %v", got)
	}
}

func TestPeriodInterestSimple(t *testing.T) {
	if got := PeriodInterest(2400, 2); got != 48 {
		t.Fatalf("expected 48, got %v", got)
	}
	if got := PeriodInterest(0, 10); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestAllocateRepaymentOldestFirst(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	oldest := activeLoan(300, t0)
	newest := activeLoan(500, t0.AddDate(0, 2, 0))

	updates, err := AllocateRepayment([]Loan{oldest, newest}, 400)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].LoanID != oldest.ID || updates[0].NewBalance != 0 || updates[0].NewStatus != StatusPaid {
		t.Fatalf("oldest loan should be settled first: %+v", updates[0])
	}
	if updates[1].LoanID != newest.ID || updates[1].NewBalance != 400 || updates[1].NewStatus != StatusActive {
		t.Fatalf("remainder should reduce the newer loan: %+v", updates[1])
	}
}

func TestAllocateRepaymentToleranceSettles(t *testing.T) {
	loan := activeLoan(100.009, time.Now())
	updates, err := AllocateRepayment([]Loan{loan}, 100)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if updates[0].NewStatus != StatusPaid || updates[0].NewBalance != 0 {
		t.Fatalf("residual within tolerance should settle the loan: %+v", updates[0])
	}
}

func TestAllocateRepaymentOverpayRejected(t *testing.T) {
	loan := activeLoan(100, time.Now())
	if _, err := AllocateRepayment([]Loan{loan}, 150); !errors.Is(err, shared.ErrOverRepayment) {
		t.Fatalf("expected ErrOverRepayment, got %v", err)
	}
}

func TestAllocateRepaymentZeroAmountNoop(t *testing.T) {
	updates, err := AllocateRepayment([]Loan{activeLoan(100, time.Now())}, 0)
	if err != nil || updates != nil {
		t.Fatalf("expected no-op, got %v %v", updates, err)
	}
}

func TestDisburseInputValidate(t *testing.T) {
	base := DisburseInput{GroupID: uuid.New(), MemberID: uuid.New(), Amount: 1000}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	in := base
	in.Amount = 0
	if err := in.Validate(); !shared.IsValidationError(err) {
		t.Fatalf("expected ValidationError for amount, got %v", err)
	}
	in = base
	in.InterestRate = -1
	if err := in.Validate(); !shared.IsValidationError(err) {
		t.Fatalf("expected ValidationError for interest rate, got %v", err)
	}
	in = base
	in.MemberID = uuid.Nil
	if err := in.Validate(); !shared.IsValidationError(err) {
		t.Fatalf("expected ValidationError for member id, got %v", err)
	}
}
