package groups

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/latefine"
	"github.com/saheli-shg/saheli/internal/schedule"
	"github.com/saheli-shg/saheli/internal/shared"
)

// RuleType tags the stored late-fine rule variant.
type RuleType string

const (
	RuleDailyFixed      RuleType = "DAILY_FIXED"
	RuleDailyPercentage RuleType = "DAILY_PERCENTAGE"
	RuleTierBased       RuleType = "TIER_BASED"
)

// Group is a self-help group with its savings and collection configuration.
type Group struct {
	ID                  uuid.UUID
	Name                string
	MonthlyContribution float64
	InterestRate        float64 // percent per collection period
	Schedule            schedule.Config
	CashInHand          float64
	BankBalance         float64
	LeaderID            *uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LateFineRule is the persisted shape of a group's fine rule. Exactly one
// enabled rule is active per group at a time.
type LateFineRule struct {
	ID              uuid.UUID
	GroupID         uuid.UUID
	Enabled         bool
	RuleType        RuleType
	DailyAmount     float64
	DailyPercentage float64
	Tiers           []latefine.Tier
}

// Rule converts the stored row into its calculator variant. A disabled rule
// yields nil, which the calculator treats as "no fine".
func (r *LateFineRule) Rule() (latefine.Rule, error) {
	if r == nil || !r.Enabled {
		return nil, nil
	}
	var rule latefine.Rule
	switch r.RuleType {
	case RuleDailyFixed:
		rule = latefine.DailyFixed{Amount: r.DailyAmount}
	case RuleDailyPercentage:
		rule = latefine.DailyPercentage{Percent: r.DailyPercentage}
	case RuleTierBased:
		tiers := r.Tiers
		if len(tiers) == 0 {
			tiers = latefine.DefaultTiers()
		}
		rule = latefine.TierBased{Tiers: tiers}
	default:
		return nil, &shared.ConfigError{Field: "ruleType", Reason: "unknown late fine rule type"}
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// Member is a person who can hold memberships across groups.
type Member struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// Membership records a member's participation in one group. The initial
// amounts are an immutable enrollment baseline; running balances live on the
// loan ledger.
type Membership struct {
	ID              uuid.UUID
	GroupID         uuid.UUID
	MemberID        uuid.UUID
	InitialShare    float64
	InitialLoan     float64
	InitialInterest float64
	JoinedAt        time.Time
}

// CreateGroupInput carries validated group creation data.
type CreateGroupInput struct {
	Name                string
	MonthlyContribution float64
	InterestRate        float64
	Schedule            schedule.Config
	CashInHand          float64
	BankBalance         float64
}

// Validate checks the input and resolves the schedule configuration.
func (in CreateGroupInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &shared.ValidationError{Field: "name", Reason: "required"}
	}
	if in.MonthlyContribution < 0 {
		return &shared.ValidationError{Field: "monthlyContribution", Reason: "must not be negative"}
	}
	if in.InterestRate < 0 {
		return &shared.ValidationError{Field: "interestRate", Reason: "must not be negative"}
	}
	if in.CashInHand < 0 || in.BankBalance < 0 {
		return &shared.ValidationError{Field: "balances", Reason: "must not be negative"}
	}
	_, err := schedule.Resolve(in.Schedule)
	return err
}

// SetFineRuleInput replaces a group's active late-fine rule.
type SetFineRuleInput struct {
	GroupID         uuid.UUID
	Enabled         bool
	RuleType        RuleType
	DailyAmount     float64
	DailyPercentage float64
	Tiers           []latefine.Tier
}

// Validate checks the rule against its variant's constraints.
func (in SetFineRuleInput) Validate() error {
	if in.GroupID == uuid.Nil {
		return &shared.ValidationError{Field: "groupId", Reason: "required"}
	}
	row := LateFineRule{
		Enabled:         true,
		RuleType:        in.RuleType,
		DailyAmount:     in.DailyAmount,
		DailyPercentage: in.DailyPercentage,
		Tiers:           in.Tiers,
	}
	_, err := row.Rule()
	return err
}
