package loans

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saheli-shg/saheli/internal/shared"
)

// Repository persists loans.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const loanColumns = `id, group_id, member_id, original_amount, current_balance, interest_rate, status, issued_at, updated_at`

func scanLoan(row pgx.Row) (Loan, error) {
	var l Loan
	err := row.Scan(&l.ID, &l.GroupID, &l.MemberID, &l.OriginalAmount, &l.CurrentBalance, &l.InterestRate, &l.Status, &l.IssuedAt, &l.UpdatedAt)
	return l, err
}

// Insert creates a loan row.
func (r *Repository) Insert(ctx context.Context, l Loan) (Loan, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO loans (id, group_id, member_id, original_amount, current_balance, interest_rate, status, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING updated_at`,
		l.ID, l.GroupID, l.MemberID, l.OriginalAmount, l.CurrentBalance, l.InterestRate, l.Status, l.IssuedAt).
		Scan(&l.UpdatedAt)
	if err != nil {
		return Loan{}, err
	}
	return l, nil
}

// Get loads one loan.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Loan, error) {
	l, err := scanLoan(r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, shared.ErrNotFound
		}
		return Loan{}, err
	}
	return l, nil
}

// ActiveByMember lists a member's ACTIVE loans in a group, oldest first.
func (r *Repository) ActiveByMember(ctx context.Context, groupID, memberID uuid.UUID) ([]Loan, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+loanColumns+` FROM loans
		WHERE group_id = $1 AND member_id = $2 AND status = 'ACTIVE' ORDER BY issued_at`, groupID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ActiveTotalByGroup sums ACTIVE loan balances for a whole group.
func (r *Repository) ActiveTotalByGroup(ctx context.Context, groupID uuid.UUID) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(current_balance), 0) FROM loans
		WHERE group_id = $1 AND status = 'ACTIVE'`, groupID).Scan(&total)
	return total, err
}

// MemberBelongsToGroup verifies the membership referenced by a disbursement.
func (r *Repository) MemberBelongsToGroup(ctx context.Context, groupID, memberID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM memberships WHERE group_id = $1 AND member_id = $2)`, groupID, memberID).Scan(&exists)
	return exists, err
}

// MarkDefaulted flags a loan as DEFAULTED, removing it from balance sums.
func (r *Repository) MarkDefaulted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE loans SET status = 'DEFAULTED', updated_at = NOW() WHERE id = $1 AND status = 'ACTIVE'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
