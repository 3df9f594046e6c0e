package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saheli-shg/saheli/internal/ledger"
	"github.com/saheli-shg/saheli/internal/shared"
)

// Repository reads closed-period data for reporting and persists snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const periodColumns = `id, group_id, seq, meeting_date, due_date, standing_at_start,
	total_collected, interest_earned, late_fines, new_contributions, expenses, loan_repayments,
	cash_in_hand_at_end, cash_in_bank_at_end, standing_at_end, members_present,
	closed_at, closed_by, created_at, updated_at`

func scanPeriod(row pgx.Row) (ledger.Period, error) {
	var p ledger.Period
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

// PeriodByID loads a period.
func (r *Repository) PeriodByID(ctx context.Context, periodID uuid.UUID) (ledger.Period, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = $1`, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Period{}, shared.ErrNotFound
		}
		return ledger.Period{}, err
	}
	return p, nil
}

// PreviousClosedStanding returns the recorded ending standing of the most
// recent closed period with a sequence strictly below seq.
func (r *Repository) PreviousClosedStanding(ctx context.Context, groupID uuid.UUID, seq int64) (float64, bool, error) {
	var standing float64
	err := r.pool.QueryRow(ctx, `SELECT standing_at_end FROM periods
		WHERE group_id = $1 AND seq < $2 AND closed_at IS NOT NULL
		ORDER BY seq DESC LIMIT 1`, groupID, seq).Scan(&standing)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return standing, true, nil
}

// ClosedPeriods lists a group's closed periods, newest first.
func (r *Repository) ClosedPeriods(ctx context.Context, groupID uuid.UUID, limit int) ([]ledger.Period, error) {
	if limit <= 0 {
		limit = 24
	}
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM periods
		WHERE group_id = $1 AND closed_at IS NOT NULL ORDER BY seq DESC LIMIT $2`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ContributionRows lists a period's member rows joined with member names.
func (r *Repository) ContributionRows(ctx context.Context, periodID uuid.UUID) ([]MemberRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.member_id, m.name, c.due_amount, c.total_paid,
		c.loan_repayment, c.late_fine, c.fine_paid, c.days_late, c.remaining_amount, c.status
		FROM member_contributions c
		JOIN members m ON m.id = c.member_id
		WHERE c.period_id = $1
		ORDER BY m.name`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MemberRow
	for rows.Next() {
		var row MemberRow
		if err := rows.Scan(&row.MemberID, &row.Name, &row.Due, &row.Paid,
			&row.LoanRepayment, &row.LateFine, &row.FinePaid, &row.DaysLate, &row.Remaining, &row.Status); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SaveSnapshot persists a rendered report payload for later retrieval.
func (r *Repository) SaveSnapshot(ctx context.Context, groupID, periodID uuid.UUID, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO report_snapshots (id, group_id, period_id, kind, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (period_id, kind) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		uuid.New(), groupID, periodID, kind, raw, time.Now().UTC())
	return err
}
