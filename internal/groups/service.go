package groups

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/schedule"
	"github.com/saheli-shg/saheli/internal/shared"
)

// RepositoryPort abstracts group persistence for the service.
type RepositoryPort interface {
	InsertGroup(ctx context.Context, g Group) (Group, error)
	GetGroup(ctx context.Context, id uuid.UUID) (Group, error)
	UpdateSchedule(ctx context.Context, groupID uuid.UUID, cfg schedule.Config) error
	ActiveFineRule(ctx context.Context, groupID uuid.UUID) (*LateFineRule, error)
	ReplaceFineRule(ctx context.Context, in SetFineRuleInput) (LateFineRule, error)
	Memberships(ctx context.Context, groupID uuid.UUID) ([]Membership, error)
	AddMembership(ctx context.Context, m Membership) (Membership, error)
	InsertMember(ctx context.Context, m Member) (Member, error)
}

// Service manages group configuration.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates and persists a new group.
func (s *Service) Create(ctx context.Context, in CreateGroupInput) (Group, error) {
	if err := in.Validate(); err != nil {
		return Group{}, err
	}
	return s.repo.InsertGroup(ctx, Group{
		ID:                  uuid.New(),
		Name:                in.Name,
		MonthlyContribution: in.MonthlyContribution,
		InterestRate:        in.InterestRate,
		Schedule:            in.Schedule,
		CashInHand:          in.CashInHand,
		BankBalance:         in.BankBalance,
	})
}

// Get loads a group.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Group, error) {
	return s.repo.GetGroup(ctx, id)
}

// ResolveSchedule validates and defaults a schedule configuration without
// persisting anything.
func (s *Service) ResolveSchedule(cfg schedule.Config) (schedule.Schedule, error) {
	return schedule.Resolve(cfg)
}

// UpdateSchedule replaces the group's collection configuration after
// validating it.
func (s *Service) UpdateSchedule(ctx context.Context, groupID uuid.UUID, cfg schedule.Config) (schedule.Schedule, error) {
	resolved, err := schedule.Resolve(cfg)
	if err != nil {
		return schedule.Schedule{}, err
	}
	if err := s.repo.UpdateSchedule(ctx, groupID, cfg); err != nil {
		return schedule.Schedule{}, err
	}
	return resolved, nil
}

// SetFineRule validates and installs the group's active late-fine rule.
func (s *Service) SetFineRule(ctx context.Context, in SetFineRuleInput) (LateFineRule, error) {
	if err := in.Validate(); err != nil {
		return LateFineRule{}, err
	}
	if _, err := s.repo.GetGroup(ctx, in.GroupID); err != nil {
		return LateFineRule{}, err
	}
	return s.repo.ReplaceFineRule(ctx, in)
}

// Enroll adds a member to a group with an immutable enrollment baseline.
func (s *Service) Enroll(ctx context.Context, groupID, memberID uuid.UUID, initialShare, initialLoan, initialInterest float64) (Membership, error) {
	if initialShare < 0 || initialLoan < 0 || initialInterest < 0 {
		return Membership{}, &shared.ValidationError{Field: "initialAmounts", Reason: "must not be negative"}
	}
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return Membership{}, err
	}
	return s.repo.AddMembership(ctx, Membership{
		ID:              uuid.New(),
		GroupID:         groupID,
		MemberID:        memberID,
		InitialShare:    initialShare,
		InitialLoan:     initialLoan,
		InitialInterest: initialInterest,
	})
}

// Members lists a group's memberships.
func (s *Service) Members(ctx context.Context, groupID uuid.UUID) ([]Membership, error) {
	return s.repo.Memberships(ctx, groupID)
}

// RegisterMember creates a member record that can later be enrolled into
// groups.
func (s *Service) RegisterMember(ctx context.Context, name, email, phone string) (Member, error) {
	if strings.TrimSpace(name) == "" {
		return Member{}, &shared.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return s.repo.InsertMember(ctx, Member{
		ID:    uuid.New(),
		Name:  strings.TrimSpace(name),
		Email: email,
		Phone: phone,
	})
}
