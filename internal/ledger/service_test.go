package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/saheli-shg/saheli/internal/latefine"
	"github.com/saheli-shg/saheli/internal/loans"
	"github.com/saheli-shg/saheli/internal/schedule"
	"github.com/saheli-shg/saheli/internal/shared"
)

// memRepo is an in-memory RepositoryPort. WithTx serialises callers with a
// mutex, which is enough to exercise the single-winner close semantics.
type memRepo struct {
	mu       sync.Mutex
	cfg      GroupConfig
	members  []uuid.UUID
	periods  map[uuid.UUID]*Period
	contribs map[uuid.UUID]map[uuid.UUID]MemberContribution
	loanRows []*loans.Loan
}

func newMemRepo(cfg GroupConfig, members []uuid.UUID) *memRepo {
	return &memRepo{
		cfg:      cfg,
		members:  members,
		periods:  map[uuid.UUID]*Period{},
		contribs: map[uuid.UUID]map[uuid.UUID]MemberContribution{},
	}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memTx{r: r})
}

func (r *memRepo) openPeriodLocked(groupID uuid.UUID) *Period {
	var open *Period
	for _, p := range r.periods {
		if p.GroupID == groupID && p.ClosedAt == nil {
			if open == nil || p.Seq > open.Seq {
				open = p
			}
		}
	}
	return open
}

func (r *memRepo) OpenPeriodRead(ctx context.Context, groupID uuid.UUID) (*Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.openPeriodLocked(groupID); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) PeriodRead(ctx context.Context, periodID uuid.UUID) (Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.periods[periodID]
	if !ok {
		return Period{}, shared.ErrNotFound
	}
	return *p, nil
}

func (r *memRepo) ContributionsRead(ctx context.Context, periodID uuid.UUID) ([]MemberContribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contributionsLocked(periodID), nil
}

func (r *memRepo) contributionsLocked(periodID uuid.UUID) []MemberContribution {
	var out []MemberContribution
	for _, c := range r.contribs[periodID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID.String() < out[j].MemberID.String() })
	return out
}

type memTx struct {
	r *memRepo
}

func (t *memTx) GroupConfig(ctx context.Context, groupID uuid.UUID) (GroupConfig, error) {
	return t.r.cfg, nil
}

func (t *memTx) GroupConfigForUpdate(ctx context.Context, groupID uuid.UUID) (GroupConfig, error) {
	return t.r.cfg, nil
}

func (t *memTx) GroupMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	return t.r.members, nil
}

func (t *memTx) OpenPeriod(ctx context.Context, groupID uuid.UUID) (*Period, error) {
	if p := t.r.openPeriodLocked(groupID); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (t *memTx) LatestPeriod(ctx context.Context, groupID uuid.UUID) (*Period, error) {
	var latest *Period
	for _, p := range t.r.periods {
		if p.GroupID == groupID && (latest == nil || p.Seq > latest.Seq) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (t *memTx) PeriodForUpdate(ctx context.Context, periodID uuid.UUID) (Period, error) {
	p, ok := t.r.periods[periodID]
	if !ok {
		return Period{}, shared.ErrNotFound
	}
	return *p, nil
}

func (t *memTx) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	if open := t.r.openPeriodLocked(p.GroupID); open != nil {
		return Period{}, shared.ErrOpenPeriodExists
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := p
	t.r.periods[p.ID] = &cp
	return p, nil
}

func (t *memTx) FinalizePeriod(ctx context.Context, p Period) error {
	stored, ok := t.r.periods[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.ClosedAt != nil {
		return shared.ErrPeriodClosed
	}
	cp := p
	cp.CreatedAt = stored.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	t.r.periods[p.ID] = &cp
	return nil
}

func (t *memTx) Contributions(ctx context.Context, periodID uuid.UUID) ([]MemberContribution, error) {
	return t.r.contributionsLocked(periodID), nil
}

func (t *memTx) ContributionByMember(ctx context.Context, periodID, memberID uuid.UUID) (*MemberContribution, error) {
	c, ok := t.r.contribs[periodID][memberID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *memTx) UpsertContribution(ctx context.Context, c MemberContribution) (MemberContribution, error) {
	if t.r.contribs[c.PeriodID] == nil {
		t.r.contribs[c.PeriodID] = map[uuid.UUID]MemberContribution{}
	}
	t.r.contribs[c.PeriodID][c.MemberID] = c
	return c, nil
}

func (t *memTx) ActiveLoansForUpdate(ctx context.Context, groupID, memberID uuid.UUID) ([]loans.Loan, error) {
	var out []loans.Loan
	for _, l := range t.r.loanRows {
		if l.GroupID == groupID && l.MemberID == memberID && l.Status == loans.StatusActive {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (t *memTx) ApplyLoanUpdate(ctx context.Context, u loans.Update) error {
	for _, l := range t.r.loanRows {
		if l.ID == u.LoanID {
			l.CurrentBalance = u.NewBalance
			l.Status = u.NewStatus
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memTx) ActiveLoanTotal(ctx context.Context, groupID uuid.UUID) (float64, error) {
	var total float64
	for _, l := range t.r.loanRows {
		if l.GroupID == groupID && l.Status == loans.StatusActive {
			total += l.CurrentBalance
		}
	}
	return total, nil
}

func (t *memTx) MemberLoanBalance(ctx context.Context, groupID, memberID uuid.UUID) (float64, error) {
	var total float64
	for _, l := range t.r.loanRows {
		if l.GroupID == groupID && l.MemberID == memberID && l.Status == loans.StatusActive {
			total += l.CurrentBalance
		}
	}
	return total, nil
}

func (t *memTx) LoansDisbursedBetween(ctx context.Context, groupID uuid.UUID, from, to time.Time) (float64, error) {
	var total float64
	for _, l := range t.r.loanRows {
		if l.GroupID == groupID && !l.IssuedAt.Before(from) && l.IssuedAt.Before(to) {
			total += l.OriginalAmount
		}
	}
	return total, nil
}

func (t *memTx) UpdateGroupCash(ctx context.Context, groupID uuid.UUID, hand, bank float64) error {
	t.r.cfg.CashInHand = hand
	t.r.cfg.BankBalance = bank
	return nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	repo    *memRepo
	svc     *Service
	groupID uuid.UUID
	m1, m2  uuid.UUID
	loanID  uuid.UUID
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		groupID: uuid.New(),
		m1:      uuid.New(),
		m2:      uuid.New(),
		loanID:  uuid.New(),
		now:     time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC),
	}
	cfg := GroupConfig{
		GroupID:             f.groupID,
		MonthlyContribution: 500,
		InterestRate:        2,
		Schedule:            schedule.Config{Frequency: schedule.FrequencyMonthly, DayOfMonth: 10},
		FineRule:            latefine.TierBased{Tiers: latefine.DefaultTiers()},
		CashInHand:          1000,
		BankBalance:         5000,
	}
	f.repo = newMemRepo(cfg, []uuid.UUID{f.m1, f.m2})
	f.repo.loanRows = []*loans.Loan{{
		ID:             f.loanID,
		GroupID:        f.groupID,
		MemberID:       f.m1,
		OriginalAmount: 2000,
		CurrentBalance: 2000,
		InterestRate:   2,
		Status:         loans.StatusActive,
		IssuedAt:       time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
	}}
	f.svc = NewService(f.repo, nil, nil, testLogger).WithNow(func() time.Time { return f.now })
	return f
}

func (f *fixture) rowFor(t *testing.T, periodID, memberID uuid.UUID) MemberContribution {
	t.Helper()
	rows, err := f.repo.ContributionsRead(context.Background(), periodID)
	require.NoError(t, err)
	for _, r := range rows {
		if r.MemberID == memberID {
			return r
		}
	}
	t.Fatalf("no contribution row for member %s", memberID)
	return MemberContribution{}
}

func TestEnsureOpenPeriodSeedsFirstPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.Seq)
	require.Equal(t, time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC), p.DueDate)
	require.InDelta(t, 8000, p.StandingAtStart, Epsilon) // 1000 hand + 5000 bank + 2000 receivable
	require.True(t, p.Open())

	// Borrower owes one period of interest on top of the base contribution.
	r1 := f.rowFor(t, p.ID, f.m1)
	require.InDelta(t, 540, r1.DueAmount, Epsilon)
	require.Equal(t, StatusPending, r1.Status)

	r2 := f.rowFor(t, p.ID, f.m2)
	require.InDelta(t, 500, r2.DueAmount, Epsilon)
}

func TestEnsureOpenPeriodIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)
	second, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Seq, second.Seq)
}

func TestRecordContributionLateFineAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	paidAt := time.Date(2025, time.June, 13, 18, 0, 0, 0, time.UTC)
	row, err := f.svc.RecordContribution(ctx, p.ID, ContributionInput{
		MemberID:         f.m1,
		ContributionPaid: 500,
		InterestPaid:     40,
		LoanRepayment:    300,
		PaidAt:           &paidAt,
	})
	require.NoError(t, err)
	require.Equal(t, 3, row.DaysLate)
	require.InDelta(t, 15, row.LateFine, Epsilon) // 5/day in the first tier
	require.Equal(t, StatusPaid, row.Status)
	require.InDelta(t, 0, row.RemainingAmount, Epsilon)

	partial, err := f.svc.RecordContribution(ctx, p.ID, ContributionInput{
		MemberID:         f.m2,
		ContributionPaid: 200,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, partial.Status)
	require.InDelta(t, 300, partial.RemainingAmount, Epsilon)
}

func TestRecordContributionAccumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	onTime := p.DueDate
	_, err = f.svc.RecordContribution(ctx, p.ID, ContributionInput{MemberID: f.m2, ContributionPaid: 200, PaidAt: &onTime})
	require.NoError(t, err)
	row, err := f.svc.RecordContribution(ctx, p.ID, ContributionInput{MemberID: f.m2, ContributionPaid: 300, PaidAt: &onTime})
	require.NoError(t, err)
	require.InDelta(t, 500, row.ContributionPaid, Epsilon)
	require.Equal(t, StatusPaid, row.Status)
	require.Equal(t, 0, row.DaysLate)
	require.InDelta(t, 0, row.LateFine, Epsilon)
}

func TestRecordContributionOnClosedPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	closedAt := f.now
	f.repo.periods[p.ID].ClosedAt = &closedAt

	_, err = f.svc.RecordContribution(ctx, p.ID, ContributionInput{MemberID: f.m1, ContributionPaid: 100})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestClosePeriodCommitsTotalsAndOpensNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	onTime := p.DueDate
	_, err = f.svc.RecordContribution(ctx, p.ID, ContributionInput{
		MemberID: f.m1, ContributionPaid: 500, InterestPaid: 40, LoanRepayment: 300, PaidAt: &onTime,
	})
	require.NoError(t, err)
	_, err = f.svc.RecordContribution(ctx, p.ID, ContributionInput{
		MemberID: f.m2, ContributionPaid: 500, PaidAt: &onTime,
	})
	require.NoError(t, err)

	snap, err := f.svc.ClosePeriod(ctx, p.ID, CloseInput{ActorID: "treasurer", Expenses: 100})
	require.NoError(t, err)

	closed := snap.Period
	require.False(t, closed.Open())
	require.Equal(t, "treasurer", closed.ClosedBy)
	require.InDelta(t, 1000, closed.NewContributions, Epsilon)
	require.InDelta(t, 40, closed.InterestEarned, Epsilon)
	require.InDelta(t, 300, closed.LoanRepayments, Epsilon)
	require.InDelta(t, 1340, closed.TotalCollected, Epsilon)
	require.Equal(t, 2, closed.MembersPresent)

	// 30/70 split of the 1040 collected in cash; repayment goes to bank.
	require.InDelta(t, 1212, closed.CashInHandAtEnd, Epsilon) // 1000 + 312 - 100
	require.InDelta(t, 6028, closed.CashInBankAtEnd, Epsilon) // 5000 + 728 + 300

	// Standing counts the reduced receivable: repayment converts asset form
	// without changing the total beyond collections minus expenses.
	require.InDelta(t, 8940, closed.StandingAtEnd, Epsilon) // 8000 + 1040 - 100

	require.InDelta(t, 1700, f.repo.loanRows[0].CurrentBalance, loans.BalanceTolerance)
	require.InDelta(t, 1212, f.repo.cfg.CashInHand, Epsilon)
	require.InDelta(t, 6028, f.repo.cfg.BankBalance, Epsilon)

	next := snap.NextPeriod
	require.EqualValues(t, 2, next.Seq)
	require.True(t, next.Open())
	require.Equal(t, time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC), next.DueDate)
	require.InDelta(t, 8940, next.StandingAtStart, Epsilon)

	// Next dues pick up interest on the reduced balance: 500 + 2% of 1700.
	r1 := f.rowFor(t, next.ID, f.m1)
	require.InDelta(t, 534, r1.DueAmount, Epsilon)
	require.Equal(t, StatusPending, r1.Status)
}

func TestClosePeriodCarriesForwardShortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	onTime := p.DueDate
	_, err = f.svc.RecordContribution(ctx, p.ID, ContributionInput{MemberID: f.m2, ContributionPaid: 200, PaidAt: &onTime})
	require.NoError(t, err)

	snap, err := f.svc.ClosePeriod(ctx, p.ID, CloseInput{ActorID: "treasurer"})
	require.NoError(t, err)

	r2 := f.rowFor(t, snap.NextPeriod.ID, f.m2)
	require.InDelta(t, 800, r2.DueAmount, Epsilon) // 500 base + 300 unpaid remainder
}

func TestClosePeriodExplicitAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	onTime := p.DueDate
	_, err = f.svc.RecordContribution(ctx, p.ID, ContributionInput{MemberID: f.m2, ContributionPaid: 500, PaidAt: &onTime})
	require.NoError(t, err)

	snap, err := f.svc.ClosePeriod(ctx, p.ID, CloseInput{
		ActorID:    "treasurer",
		Allocation: &CashAllocation{ToHand: 100, ToBank: 400},
	})
	require.NoError(t, err)
	require.InDelta(t, 1100, snap.Period.CashInHandAtEnd, Epsilon)
	require.InDelta(t, 5400, snap.Period.CashInBankAtEnd, Epsilon)
}

func TestClosePeriodRejectsMismatchedAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	onTime := p.DueDate
	_, err = f.svc.RecordContribution(ctx, p.ID, ContributionInput{MemberID: f.m2, ContributionPaid: 500, PaidAt: &onTime})
	require.NoError(t, err)

	_, err = f.svc.ClosePeriod(ctx, p.ID, CloseInput{
		ActorID:    "treasurer",
		Allocation: &CashAllocation{ToHand: 100, ToBank: 300},
	})
	require.True(t, shared.IsValidationError(err))

	current, err := f.repo.PeriodRead(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, current.Open())
}

func TestClosePeriodConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ClosePeriod(ctx, p.ID, CloseInput{ActorID: "treasurer"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflict int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, shared.ErrPeriodClosed):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, conflict)

	// Only one close took effect: exactly one closed period and one open successor.
	var closed, open int
	for _, period := range f.repo.periods {
		if period.ClosedAt != nil {
			closed++
		} else {
			open++
		}
	}
	require.Equal(t, 1, closed)
	require.Equal(t, 1, open)
}

func TestClosePeriodRejectsNegativeStanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	_, err = f.svc.ClosePeriod(ctx, p.ID, CloseInput{ActorID: "treasurer", Expenses: 100000})
	require.ErrorIs(t, err, shared.ErrNegativeStanding)

	current, err := f.repo.PeriodRead(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, current.Open())
}

func TestClosePeriodValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.EnsureOpenPeriod(ctx, f.groupID)
	require.NoError(t, err)

	_, err = f.svc.ClosePeriod(ctx, p.ID, CloseInput{Expenses: -1})
	require.True(t, shared.IsValidationError(err))

	_, err = f.svc.ClosePeriod(ctx, p.ID, CloseInput{Contributions: []ContributionInput{{MemberID: f.m1, ContributionPaid: -5}}})
	require.True(t, shared.IsValidationError(err))
}

func TestGrowth(t *testing.T) {
	res := Growth(10000, 12000)
	require.InDelta(t, 2000, res.Amount, Epsilon)
	require.InDelta(t, 20, res.Percentage, Epsilon)

	res = Growth(0, 12000)
	require.InDelta(t, 12000, res.Amount, Epsilon)
	require.Zero(t, res.Percentage)
}
