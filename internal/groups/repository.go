package groups

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saheli-shg/saheli/internal/latefine"
	"github.com/saheli-shg/saheli/internal/schedule"
	"github.com/saheli-shg/saheli/internal/shared"
)

// Repository persists groups, members, memberships, and fine rules.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertGroup creates a group row.
func (r *Repository) InsertGroup(ctx context.Context, g Group) (Group, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO groups
		(id, name, monthly_contribution, interest_rate, collection_frequency, collection_day_of_month, collection_day_of_week, collection_week_of_month, cash_in_hand, bank_balance)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		g.ID, g.Name, g.MonthlyContribution, g.InterestRate,
		g.Schedule.Frequency, nullInt(g.Schedule.DayOfMonth), nullString(string(g.Schedule.DayOfWeek)), nullInt(g.Schedule.WeekOfMonth),
		g.CashInHand, g.BankBalance)
	if err := row.Scan(&g.CreatedAt, &g.UpdatedAt); err != nil {
		return Group{}, err
	}
	return g, nil
}

// GetGroup loads a group by id.
func (r *Repository) GetGroup(ctx context.Context, id uuid.UUID) (Group, error) {
	var g Group
	var dayOfMonth, weekOfMonth *int
	var dayOfWeek *string
	err := r.pool.QueryRow(ctx, `SELECT id, name, monthly_contribution, interest_rate, collection_frequency, collection_day_of_month, collection_day_of_week, collection_week_of_month, cash_in_hand, bank_balance, leader_id, created_at, updated_at
		FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.MonthlyContribution, &g.InterestRate, &g.Schedule.Frequency, &dayOfMonth, &dayOfWeek, &weekOfMonth, &g.CashInHand, &g.BankBalance, &g.LeaderID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, err
	}
	if dayOfMonth != nil {
		g.Schedule.DayOfMonth = *dayOfMonth
	}
	if weekOfMonth != nil {
		g.Schedule.WeekOfMonth = *weekOfMonth
	}
	if dayOfWeek != nil {
		g.Schedule.DayOfWeek = schedule.Weekday(*dayOfWeek)
	}
	return g, nil
}

// UpdateSchedule replaces a group's collection configuration.
func (r *Repository) UpdateSchedule(ctx context.Context, groupID uuid.UUID, cfg schedule.Config) error {
	tag, err := r.pool.Exec(ctx, `UPDATE groups SET collection_frequency=$2, collection_day_of_month=$3, collection_day_of_week=$4, collection_week_of_month=$5, updated_at=NOW() WHERE id=$1`,
		groupID, cfg.Frequency, nullInt(cfg.DayOfMonth), nullString(string(cfg.DayOfWeek)), nullInt(cfg.WeekOfMonth))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ActiveFineRule loads the group's enabled rule with its tiers, or nil.
func (r *Repository) ActiveFineRule(ctx context.Context, groupID uuid.UUID) (*LateFineRule, error) {
	var rule LateFineRule
	err := r.pool.QueryRow(ctx, `SELECT id, group_id, enabled, rule_type, daily_amount, daily_percentage
		FROM late_fine_rules WHERE group_id = $1 AND enabled LIMIT 1`, groupID).
		Scan(&rule.ID, &rule.GroupID, &rule.Enabled, &rule.RuleType, &rule.DailyAmount, &rule.DailyPercentage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT start_day, end_day, amount, is_percentage
		FROM late_fine_rule_tiers WHERE rule_id = $1 ORDER BY start_day`, rule.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t latefine.Tier
		if err := rows.Scan(&t.StartDay, &t.EndDay, &t.Amount, &t.IsPercentage); err != nil {
			return nil, err
		}
		rule.Tiers = append(rule.Tiers, t)
	}
	return &rule, rows.Err()
}

// ReplaceFineRule swaps the group's active rule and tier rows atomically.
func (r *Repository) ReplaceFineRule(ctx context.Context, in SetFineRuleInput) (LateFineRule, error) {
	rule := LateFineRule{
		ID:              uuid.New(),
		GroupID:         in.GroupID,
		Enabled:         in.Enabled,
		RuleType:        in.RuleType,
		DailyAmount:     in.DailyAmount,
		DailyPercentage: in.DailyPercentage,
		Tiers:           in.Tiers,
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return LateFineRule{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `UPDATE late_fine_rules SET enabled = FALSE WHERE group_id = $1`, in.GroupID); err != nil {
		return LateFineRule{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO late_fine_rules (id, group_id, enabled, rule_type, daily_amount, daily_percentage)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rule.ID, rule.GroupID, rule.Enabled, rule.RuleType, rule.DailyAmount, rule.DailyPercentage); err != nil {
		return LateFineRule{}, err
	}
	for _, t := range rule.Tiers {
		if _, err := tx.Exec(ctx, `INSERT INTO late_fine_rule_tiers (rule_id, start_day, end_day, amount, is_percentage)
			VALUES ($1,$2,$3,$4,$5)`, rule.ID, t.StartDay, t.EndDay, t.Amount, t.IsPercentage); err != nil {
			return LateFineRule{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return LateFineRule{}, err
	}
	return rule, nil
}

// Memberships lists a group's memberships ordered by enrollment.
func (r *Repository) Memberships(ctx context.Context, groupID uuid.UUID) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, group_id, member_id, initial_share, initial_loan, initial_interest, joined_at
		FROM memberships WHERE group_id = $1 ORDER BY joined_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.GroupID, &m.MemberID, &m.InitialShare, &m.InitialLoan, &m.InitialInterest, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMember creates a member row.
func (r *Repository) InsertMember(ctx context.Context, m Member) (Member, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO members (id, name, email, phone)
		VALUES ($1,$2,$3,$4) RETURNING created_at`,
		m.ID, m.Name, nullString(m.Email), nullString(m.Phone)).
		Scan(&m.CreatedAt)
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// AddMembership enrolls a member into a group.
func (r *Repository) AddMembership(ctx context.Context, m Membership) (Membership, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO memberships (id, group_id, member_id, initial_share, initial_loan, initial_interest)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING joined_at`,
		m.ID, m.GroupID, m.MemberID, m.InitialShare, m.InitialLoan, m.InitialInterest).
		Scan(&m.JoinedAt)
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}

func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
