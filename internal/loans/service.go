package loans

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/shared"
)

// RepositoryPort abstracts loan persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, l Loan) (Loan, error)
	Get(ctx context.Context, id uuid.UUID) (Loan, error)
	ActiveByMember(ctx context.Context, groupID, memberID uuid.UUID) ([]Loan, error)
	ActiveTotalByGroup(ctx context.Context, groupID uuid.UUID) (float64, error)
	MemberBelongsToGroup(ctx context.Context, groupID, memberID uuid.UUID) (bool, error)
	MarkDefaulted(ctx context.Context, id uuid.UUID) error
}

// Service exposes loan queries and disbursement. Balance mutations from
// repayments happen only inside the ledger's close transaction.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the loan service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Disburse creates an ACTIVE loan after verifying the membership link.
func (s *Service) Disburse(ctx context.Context, in DisburseInput) (Loan, error) {
	if err := in.Validate(); err != nil {
		return Loan{}, err
	}
	ok, err := s.repo.MemberBelongsToGroup(ctx, in.GroupID, in.MemberID)
	if err != nil {
		return Loan{}, err
	}
	if !ok {
		return Loan{}, &shared.ValidationError{Field: "memberId", Reason: "member is not enrolled in this group"}
	}
	issuedAt := in.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}
	return s.repo.Insert(ctx, Loan{
		ID:             uuid.New(),
		GroupID:        in.GroupID,
		MemberID:       in.MemberID,
		OriginalAmount: in.Amount,
		CurrentBalance: in.Amount,
		InterestRate:   in.InterestRate,
		Status:         StatusActive,
		IssuedAt:       issuedAt,
	})
}

// CurrentBalance returns the member's outstanding principal across ACTIVE
// loans in the group.
func (s *Service) CurrentBalance(ctx context.Context, groupID, memberID uuid.UUID) (float64, error) {
	active, err := s.repo.ActiveByMember(ctx, groupID, memberID)
	if err != nil {
		return 0, err
	}
	return OutstandingBalance(active), nil
}

// GroupOutstanding returns total ACTIVE principal across the group.
func (s *Service) GroupOutstanding(ctx context.Context, groupID uuid.UUID) (float64, error) {
	return s.repo.ActiveTotalByGroup(ctx, groupID)
}

// MarkDefaulted writes off an active loan.
func (s *Service) MarkDefaulted(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkDefaulted(ctx, id)
}
