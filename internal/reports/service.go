// Package reports derives read-only views from closed and open period data:
// growth between standings, per-period contribution summaries, and stored
// snapshot payloads.
package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/saheli-shg/saheli/internal/ledger"
	"github.com/saheli-shg/saheli/internal/shared"
)

// SnapshotKindContribution names the stored contribution report payload.
const SnapshotKindContribution = "contribution"

// RepositoryPort is the service's view of report persistence.
type RepositoryPort interface {
	PeriodByID(ctx context.Context, periodID uuid.UUID) (ledger.Period, error)
	PreviousClosedStanding(ctx context.Context, groupID uuid.UUID, seq int64) (float64, bool, error)
	ClosedPeriods(ctx context.Context, groupID uuid.UUID, limit int) ([]ledger.Period, error)
	ContributionRows(ctx context.Context, periodID uuid.UUID) ([]MemberRow, error)
	SaveSnapshot(ctx context.Context, groupID, periodID uuid.UUID, kind string, payload any) error
}

// MemberRow is one member's line in a contribution report.
type MemberRow struct {
	MemberID      uuid.UUID                 `json:"memberId"`
	Name          string                    `json:"name"`
	Due           float64                   `json:"due"`
	Paid          float64                   `json:"paid"`
	LoanRepayment float64                   `json:"loanRepayment"`
	LateFine      float64                   `json:"lateFine"`
	FinePaid      float64                   `json:"finePaid"`
	DaysLate      int                       `json:"daysLate"`
	Remaining     float64                   `json:"remaining"`
	Status        ledger.ContributionStatus `json:"status"`
	DueDisplay    string                    `json:"dueDisplay"`
	PaidDisplay   string                    `json:"paidDisplay"`
}

// ContributionReport summarises one period's collections.
type ContributionReport struct {
	PeriodID          uuid.UUID           `json:"periodId"`
	GroupID           uuid.UUID           `json:"groupId"`
	Seq               int64               `json:"seq"`
	DueDate           time.Time           `json:"dueDate"`
	ClosedAt          *time.Time          `json:"closedAt,omitempty"`
	TotalDue          float64             `json:"totalDue"`
	TotalPaid         float64             `json:"totalPaid"`
	TotalFines        float64             `json:"totalFines"`
	TotalRepayments   float64             `json:"totalRepayments"`
	CollectionPercent float64             `json:"collectionPercent"`
	PaidCount         int                 `json:"paidCount"`
	PartialCount      int                 `json:"partialCount"`
	PendingCount      int                 `json:"pendingCount"`
	Standing          float64             `json:"standing"`
	StandingDisplay   string              `json:"standingDisplay"`
	TotalPaidDisplay  string              `json:"totalPaidDisplay"`
	Growth            ledger.GrowthResult `json:"growth"`
	Rows              []MemberRow         `json:"rows"`
}

// Service builds growth figures and contribution reports.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	log   *slog.Logger
}

// NewService constructs Service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, cache: cache, log: log}
}

var inr = message.NewPrinter(language.MustParse("en-IN"))

func formatINR(v float64) string {
	return inr.Sprintf("%v", currency.Symbol(currency.INR.Amount(v)))
}

// GrowthSince reports how the group's standing moved between the period's
// standing and the most recent closed period before it. With no prior
// closed period the previous standing is zero.
func (s *Service) GrowthSince(ctx context.Context, groupID, periodID uuid.UUID) (ledger.GrowthResult, error) {
	var out ledger.GrowthResult
	key, err := s.cache.Key(ctx, "reports", "growth", groupID.String(), periodID.String())
	if err != nil {
		return out, err
	}
	if hit, err := s.cache.Lookup(ctx, key, &out); err != nil {
		return out, err
	} else if hit {
		return out, nil
	}
	out, err = s.growthSince(ctx, groupID, periodID)
	if err != nil {
		return out, err
	}
	if err := s.cache.Store(ctx, key, out); err != nil {
		s.log.Warn("cache growth result", slog.Any("error", err))
	}
	return out, nil
}

func (s *Service) growthSince(ctx context.Context, groupID, periodID uuid.UUID) (ledger.GrowthResult, error) {
	p, err := s.repo.PeriodByID(ctx, periodID)
	if err != nil {
		return ledger.GrowthResult{}, err
	}
	if p.GroupID != groupID {
		return ledger.GrowthResult{}, shared.ErrNotFound
	}
	current := p.StandingAtStart
	if !p.Open() {
		current = p.StandingAtEnd
	}
	previous, _, err := s.repo.PreviousClosedStanding(ctx, groupID, p.Seq)
	if err != nil {
		return ledger.GrowthResult{}, err
	}
	return ledger.Growth(previous, current), nil
}

// History lists a group's closed periods with growth relative to each
// period's predecessor, newest first.
func (s *Service) History(ctx context.Context, groupID uuid.UUID, limit int) ([]ledger.Period, []ledger.GrowthResult, error) {
	periods, err := s.repo.ClosedPeriods(ctx, groupID, limit)
	if err != nil {
		return nil, nil, err
	}
	growth := make([]ledger.GrowthResult, len(periods))
	for i, p := range periods {
		previous, _, err := s.repo.PreviousClosedStanding(ctx, groupID, p.Seq)
		if err != nil {
			return nil, nil, err
		}
		growth[i] = ledger.Growth(previous, p.StandingAtEnd)
	}
	return periods, growth, nil
}

// BuildContributionReport assembles a period's member lines, totals and
// status breakdown.
func (s *Service) BuildContributionReport(ctx context.Context, periodID uuid.UUID) (ContributionReport, error) {
	var out ContributionReport
	key, err := s.cache.Key(ctx, "reports", "contribution", periodID.String())
	if err != nil {
		return out, err
	}
	if hit, err := s.cache.Lookup(ctx, key, &out); err != nil {
		return out, err
	} else if hit {
		return out, nil
	}
	out, err = s.buildContributionReport(ctx, periodID)
	if err != nil {
		return out, err
	}
	if err := s.cache.Store(ctx, key, out); err != nil {
		s.log.Warn("cache contribution report", slog.Any("error", err))
	}
	return out, nil
}

func (s *Service) buildContributionReport(ctx context.Context, periodID uuid.UUID) (ContributionReport, error) {
	p, err := s.repo.PeriodByID(ctx, periodID)
	if err != nil {
		return ContributionReport{}, err
	}
	rows, err := s.repo.ContributionRows(ctx, periodID)
	if err != nil {
		return ContributionReport{}, err
	}

	rep := ContributionReport{
		PeriodID: p.ID,
		GroupID:  p.GroupID,
		Seq:      p.Seq,
		DueDate:  p.DueDate,
		ClosedAt: p.ClosedAt,
		Standing: p.StandingAtEnd,
	}
	var due, paid, fines, repayments decimal.Decimal
	for i, row := range rows {
		due = due.Add(decimal.NewFromFloat(row.Due))
		paid = paid.Add(decimal.NewFromFloat(row.Paid))
		fines = fines.Add(decimal.NewFromFloat(row.FinePaid))
		repayments = repayments.Add(decimal.NewFromFloat(row.LoanRepayment))
		switch row.Status {
		case ledger.StatusPaid:
			rep.PaidCount++
		case ledger.StatusPartial:
			rep.PartialCount++
		default:
			rep.PendingCount++
		}
		rows[i].DueDisplay = formatINR(row.Due)
		rows[i].PaidDisplay = formatINR(row.Paid)
	}
	rep.TotalDue, _ = due.Round(2).Float64()
	rep.TotalPaid, _ = paid.Round(2).Float64()
	rep.TotalFines, _ = fines.Round(2).Float64()
	rep.TotalRepayments, _ = repayments.Round(2).Float64()
	if due.IsPositive() {
		pct, _ := paid.Div(due).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		rep.CollectionPercent = pct
	}
	rep.StandingDisplay = formatINR(rep.Standing)
	rep.TotalPaidDisplay = formatINR(rep.TotalPaid)
	rep.Rows = rows

	growth, err := s.growthSince(ctx, p.GroupID, p.ID)
	if err != nil {
		return ContributionReport{}, err
	}
	rep.Growth = growth
	return rep, nil
}

// SaveSnapshot builds the contribution report and stores its payload. Used
// by the background snapshot job after a period closes.
func (s *Service) SaveSnapshot(ctx context.Context, periodID uuid.UUID) error {
	rep, err := s.buildContributionReport(ctx, periodID)
	if err != nil {
		return err
	}
	if err := s.repo.SaveSnapshot(ctx, rep.GroupID, rep.PeriodID, SnapshotKindContribution, rep); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "report snapshot saved",
		slog.String("period_id", periodID.String()),
		slog.Int64("seq", rep.Seq))
	return nil
}

// Invalidate bumps the report cache. Called after a period closes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
