package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saheli-shg/saheli/internal/latefine"
	"github.com/saheli-shg/saheli/internal/loans"
	"github.com/saheli-shg/saheli/internal/platform/db"
	"github.com/saheli-shg/saheli/internal/schedule"
	"github.com/saheli-shg/saheli/internal/shared"
)

// TxRepository exposes the transactional operations the lifecycle manager
// composes into atomic state transitions.
type TxRepository interface {
	GroupConfig(ctx context.Context, groupID uuid.UUID) (GroupConfig, error)
	GroupConfigForUpdate(ctx context.Context, groupID uuid.UUID) (GroupConfig, error)
	GroupMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	OpenPeriod(ctx context.Context, groupID uuid.UUID) (*Period, error)
	LatestPeriod(ctx context.Context, groupID uuid.UUID) (*Period, error)
	PeriodForUpdate(ctx context.Context, periodID uuid.UUID) (Period, error)
	InsertPeriod(ctx context.Context, p Period) (Period, error)
	FinalizePeriod(ctx context.Context, p Period) error
	Contributions(ctx context.Context, periodID uuid.UUID) ([]MemberContribution, error)
	ContributionByMember(ctx context.Context, periodID, memberID uuid.UUID) (*MemberContribution, error)
	UpsertContribution(ctx context.Context, c MemberContribution) (MemberContribution, error)
	ActiveLoansForUpdate(ctx context.Context, groupID, memberID uuid.UUID) ([]loans.Loan, error)
	ApplyLoanUpdate(ctx context.Context, u loans.Update) error
	ActiveLoanTotal(ctx context.Context, groupID uuid.UUID) (float64, error)
	MemberLoanBalance(ctx context.Context, groupID, memberID uuid.UUID) (float64, error)
	LoansDisbursedBetween(ctx context.Context, groupID uuid.UUID, from, to time.Time) (float64, error)
	UpdateGroupCash(ctx context.Context, groupID uuid.UUID, hand, bank float64) error
}

// RepositoryPort is the service's view of persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	OpenPeriodRead(ctx context.Context, groupID uuid.UUID) (*Period, error)
	PeriodRead(ctx context.Context, periodID uuid.UUID) (Period, error)
	ContributionsRead(ctx context.Context, periodID uuid.UUID) ([]MemberContribution, error)
}

// Repository persists periods and contribution rows on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const periodColumns = `id, group_id, seq, meeting_date, due_date, standing_at_start,
	total_collected, interest_earned, late_fines, new_contributions, expenses, loan_repayments,
	cash_in_hand_at_end, cash_in_bank_at_end, standing_at_end, members_present,
	closed_at, closed_by, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var closedBy *string
	err := row.Scan(&p.ID, &p.GroupID, &p.Seq, &p.MeetingDate, &p.DueDate, &p.StandingAtStart,
		&p.TotalCollected, &p.InterestEarned, &p.LateFines, &p.NewContributions, &p.Expenses, &p.LoanRepayments,
		&p.CashInHandAtEnd, &p.CashInBankAtEnd, &p.StandingAtEnd, &p.MembersPresent,
		&p.ClosedAt, &closedBy, &p.CreatedAt, &p.UpdatedAt)
	if closedBy != nil {
		p.ClosedBy = *closedBy
	}
	return p, err
}

func queryPeriod(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, sql string, args ...any) (*Period, error) {
	p, err := scanPeriod(q.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// OpenPeriodRead returns the group's open period without locking, or nil.
func (r *Repository) OpenPeriodRead(ctx context.Context, groupID uuid.UUID) (*Period, error) {
	return queryPeriod(ctx, r.pool, `SELECT `+periodColumns+` FROM periods
		WHERE group_id = $1 AND closed_at IS NULL ORDER BY seq DESC LIMIT 1`, groupID)
}

// PeriodRead loads a period without locking.
func (r *Repository) PeriodRead(ctx context.Context, periodID uuid.UUID) (Period, error) {
	p, err := queryPeriod(ctx, r.pool, `SELECT `+periodColumns+` FROM periods WHERE id = $1`, periodID)
	if err != nil {
		return Period{}, err
	}
	if p == nil {
		return Period{}, shared.ErrNotFound
	}
	return *p, nil
}

// ContributionsRead lists a period's member rows without locking.
func (r *Repository) ContributionsRead(ctx context.Context, periodID uuid.UUID) ([]MemberContribution, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+contributionColumns+` FROM member_contributions WHERE period_id = $1 ORDER BY member_id`, periodID)
	if err != nil {
		return nil, err
	}
	return collectContributions(rows)
}

func (r *txRepository) GroupConfig(ctx context.Context, groupID uuid.UUID) (GroupConfig, error) {
	return r.groupConfig(ctx, groupID, "")
}

func (r *txRepository) GroupConfigForUpdate(ctx context.Context, groupID uuid.UUID) (GroupConfig, error) {
	return r.groupConfig(ctx, groupID, " FOR UPDATE")
}

func (r *txRepository) groupConfig(ctx context.Context, groupID uuid.UUID, suffix string) (GroupConfig, error) {
	var cfg GroupConfig
	var dayOfMonth, weekOfMonth *int
	var dayOfWeek *string
	err := r.tx.QueryRow(ctx, `SELECT id, monthly_contribution, interest_rate, collection_frequency, collection_day_of_month, collection_day_of_week, collection_week_of_month, cash_in_hand, bank_balance
		FROM groups WHERE id = $1`+suffix, groupID).
		Scan(&cfg.GroupID, &cfg.MonthlyContribution, &cfg.InterestRate, &cfg.Schedule.Frequency, &dayOfMonth, &dayOfWeek, &weekOfMonth, &cfg.CashInHand, &cfg.BankBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GroupConfig{}, shared.ErrNotFound
		}
		return GroupConfig{}, err
	}
	if dayOfMonth != nil {
		cfg.Schedule.DayOfMonth = *dayOfMonth
	}
	if weekOfMonth != nil {
		cfg.Schedule.WeekOfMonth = *weekOfMonth
	}
	if dayOfWeek != nil {
		cfg.Schedule.DayOfWeek = schedule.Weekday(*dayOfWeek)
	}
	rule, err := r.activeFineRule(ctx, groupID)
	if err != nil {
		return GroupConfig{}, err
	}
	cfg.FineRule = rule
	return cfg, nil
}

func (r *txRepository) activeFineRule(ctx context.Context, groupID uuid.UUID) (latefine.Rule, error) {
	var ruleID uuid.UUID
	var ruleType string
	var dailyAmount, dailyPercentage float64
	err := r.tx.QueryRow(ctx, `SELECT id, rule_type, daily_amount, daily_percentage
		FROM late_fine_rules WHERE group_id = $1 AND enabled LIMIT 1`, groupID).
		Scan(&ruleID, &ruleType, &dailyAmount, &dailyPercentage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	switch ruleType {
	case "DAILY_FIXED":
		return latefine.DailyFixed{Amount: dailyAmount}, nil
	case "DAILY_PERCENTAGE":
		return latefine.DailyPercentage{Percent: dailyPercentage}, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT start_day, end_day, amount, is_percentage
		FROM late_fine_rule_tiers WHERE rule_id = $1 ORDER BY start_day`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tiers []latefine.Tier
	for rows.Next() {
		var t latefine.Tier
		if err := rows.Scan(&t.StartDay, &t.EndDay, &t.Amount, &t.IsPercentage); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		tiers = latefine.DefaultTiers()
	}
	return latefine.TierBased{Tiers: tiers}, nil
}

func (r *txRepository) GroupMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.tx.Query(ctx, `SELECT member_id FROM memberships WHERE group_id = $1 ORDER BY joined_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepository) OpenPeriod(ctx context.Context, groupID uuid.UUID) (*Period, error) {
	return queryPeriod(ctx, r.tx, `SELECT `+periodColumns+` FROM periods
		WHERE group_id = $1 AND closed_at IS NULL ORDER BY seq DESC LIMIT 1`, groupID)
}

func (r *txRepository) LatestPeriod(ctx context.Context, groupID uuid.UUID) (*Period, error) {
	return queryPeriod(ctx, r.tx, `SELECT `+periodColumns+` FROM periods
		WHERE group_id = $1 ORDER BY seq DESC LIMIT 1`, groupID)
}

func (r *txRepository) PeriodForUpdate(ctx context.Context, periodID uuid.UUID) (Period, error) {
	p, err := queryPeriod(ctx, r.tx, `SELECT `+periodColumns+` FROM periods WHERE id = $1 FOR UPDATE`, periodID)
	if err != nil {
		return Period{}, err
	}
	if p == nil {
		return Period{}, shared.ErrNotFound
	}
	return *p, nil
}

// InsertPeriod creates a new open period. The partial unique index on
// (group_id) WHERE closed_at IS NULL backstops the one-open-period
// invariant under concurrent creation.
func (r *txRepository) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO periods
		(id, group_id, seq, meeting_date, due_date, standing_at_start, cash_in_hand_at_end, cash_in_bank_at_end, standing_at_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING created_at, updated_at`,
		p.ID, p.GroupID, p.Seq, p.MeetingDate, p.DueDate, p.StandingAtStart, p.CashInHandAtEnd, p.CashInBankAtEnd, p.StandingAtEnd).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Period{}, shared.ErrOpenPeriodExists
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) FinalizePeriod(ctx context.Context, p Period) error {
	tag, err := r.tx.Exec(ctx, `UPDATE periods SET
		total_collected=$2, interest_earned=$3, late_fines=$4, new_contributions=$5, expenses=$6, loan_repayments=$7,
		cash_in_hand_at_end=$8, cash_in_bank_at_end=$9, standing_at_end=$10, members_present=$11,
		closed_at=$12, closed_by=$13, updated_at=NOW()
		WHERE id = $1 AND closed_at IS NULL`,
		p.ID, p.TotalCollected, p.InterestEarned, p.LateFines, p.NewContributions, p.Expenses, p.LoanRepayments,
		p.CashInHandAtEnd, p.CashInBankAtEnd, p.StandingAtEnd, p.MembersPresent, p.ClosedAt, p.ClosedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrPeriodClosed
	}
	return nil
}

const contributionColumns = `id, period_id, member_id, contribution_due, interest_due, due_amount,
	contribution_paid, interest_paid, fine_paid, total_paid, loan_repayment, late_fine, days_late,
	remaining_amount, paid_at, status`

func scanContribution(row pgx.Row) (MemberContribution, error) {
	var c MemberContribution
	err := row.Scan(&c.ID, &c.PeriodID, &c.MemberID, &c.ContributionDue, &c.InterestDue, &c.DueAmount,
		&c.ContributionPaid, &c.InterestPaid, &c.FinePaid, &c.TotalPaid, &c.LoanRepayment, &c.LateFine, &c.DaysLate,
		&c.RemainingAmount, &c.PaidAt, &c.Status)
	return c, err
}

func collectContributions(rows pgx.Rows) ([]MemberContribution, error) {
	defer rows.Close()
	var out []MemberContribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) Contributions(ctx context.Context, periodID uuid.UUID) ([]MemberContribution, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+contributionColumns+` FROM member_contributions WHERE period_id = $1 ORDER BY member_id`, periodID)
	if err != nil {
		return nil, err
	}
	return collectContributions(rows)
}

func (r *txRepository) ContributionByMember(ctx context.Context, periodID, memberID uuid.UUID) (*MemberContribution, error) {
	c, err := scanContribution(r.tx.QueryRow(ctx, `SELECT `+contributionColumns+` FROM member_contributions
		WHERE period_id = $1 AND member_id = $2`, periodID, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *txRepository) UpsertContribution(ctx context.Context, c MemberContribution) (MemberContribution, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO member_contributions (`+contributionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (period_id, member_id) DO UPDATE SET
			contribution_due=EXCLUDED.contribution_due, interest_due=EXCLUDED.interest_due, due_amount=EXCLUDED.due_amount,
			contribution_paid=EXCLUDED.contribution_paid, interest_paid=EXCLUDED.interest_paid, fine_paid=EXCLUDED.fine_paid,
			total_paid=EXCLUDED.total_paid, loan_repayment=EXCLUDED.loan_repayment, late_fine=EXCLUDED.late_fine,
			days_late=EXCLUDED.days_late, remaining_amount=EXCLUDED.remaining_amount, paid_at=EXCLUDED.paid_at, status=EXCLUDED.status`,
		c.ID, c.PeriodID, c.MemberID, c.ContributionDue, c.InterestDue, c.DueAmount,
		c.ContributionPaid, c.InterestPaid, c.FinePaid, c.TotalPaid, c.LoanRepayment, c.LateFine, c.DaysLate,
		c.RemainingAmount, c.PaidAt, c.Status)
	if err != nil {
		return MemberContribution{}, err
	}
	return c, nil
}

func (r *txRepository) ActiveLoansForUpdate(ctx context.Context, groupID, memberID uuid.UUID) ([]loans.Loan, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, group_id, member_id, original_amount, current_balance, interest_rate, status, issued_at, updated_at
		FROM loans WHERE group_id = $1 AND member_id = $2 AND status = 'ACTIVE' ORDER BY issued_at FOR UPDATE`, groupID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []loans.Loan
	for rows.Next() {
		var l loans.Loan
		if err := rows.Scan(&l.ID, &l.GroupID, &l.MemberID, &l.OriginalAmount, &l.CurrentBalance, &l.InterestRate, &l.Status, &l.IssuedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *txRepository) ApplyLoanUpdate(ctx context.Context, u loans.Update) error {
	_, err := r.tx.Exec(ctx, `UPDATE loans SET current_balance=$2, status=$3, updated_at=NOW() WHERE id = $1`,
		u.LoanID, u.NewBalance, u.NewStatus)
	return err
}

func (r *txRepository) ActiveLoanTotal(ctx context.Context, groupID uuid.UUID) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(current_balance), 0) FROM loans WHERE group_id = $1 AND status = 'ACTIVE'`, groupID).Scan(&total)
	return total, err
}

func (r *txRepository) MemberLoanBalance(ctx context.Context, groupID, memberID uuid.UUID) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(current_balance), 0) FROM loans
		WHERE group_id = $1 AND member_id = $2 AND status = 'ACTIVE'`, groupID, memberID).Scan(&total)
	return total, err
}

func (r *txRepository) LoansDisbursedBetween(ctx context.Context, groupID uuid.UUID, from, to time.Time) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(original_amount), 0) FROM loans
		WHERE group_id = $1 AND issued_at >= $2 AND issued_at < $3`, groupID, from, to).Scan(&total)
	return total, err
}

func (r *txRepository) UpdateGroupCash(ctx context.Context, groupID uuid.UUID, hand, bank float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE groups SET cash_in_hand=$2, bank_balance=$3, updated_at=NOW() WHERE id = $1`, groupID, hand, bank)
	return err
}
