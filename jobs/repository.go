package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository backs the reminder sweep with direct queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// OverdueMembers lists members with unpaid dues in open periods whose due
// date has passed.
func (r *Repository) OverdueMembers(ctx context.Context, asOf time.Time) ([]OverdueMember, error) {
	rows, err := r.pool.Query(ctx, `SELECT g.id, g.name, m.id, m.name, COALESCE(m.phone, ''),
		c.due_amount, c.remaining_amount, p.due_date
		FROM periods p
		JOIN groups g ON g.id = p.group_id
		JOIN member_contributions c ON c.period_id = p.id
		JOIN members m ON m.id = c.member_id
		WHERE p.closed_at IS NULL AND p.due_date < $1 AND c.status <> 'PAID'
		ORDER BY g.name, m.name`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OverdueMember
	for rows.Next() {
		var m OverdueMember
		if err := rows.Scan(&m.GroupID, &m.GroupName, &m.MemberID, &m.Name, &m.Phone,
			&m.Due, &m.Remaining, &m.DueDate); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
