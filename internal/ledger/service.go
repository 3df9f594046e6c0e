package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saheli-shg/saheli/internal/latefine"
	"github.com/saheli-shg/saheli/internal/loans"
	"github.com/saheli-shg/saheli/internal/schedule"
	"github.com/saheli-shg/saheli/internal/shared"
)

// Locker serialises period close per group across processes.
type Locker interface {
	Acquire(ctx context.Context, groupID uuid.UUID) (func(), error)
}

// Auditor records lifecycle actions. Optional.
type Auditor interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service drives the period lifecycle: opening, recording contributions,
// and the atomic close that commits totals and seeds the next period.
type Service struct {
	repo   RepositoryPort
	locker Locker
	audit  Auditor
	log    *slog.Logger
	now    func() time.Time
}

// NewService constructs Service. locker and audit may be nil.
func NewService(repo RepositoryPort, locker Locker, audit Auditor, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, locker: locker, audit: audit, log: log, now: time.Now}
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

func round2(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return out
}

// EnsureOpenPeriod returns the group's open period, creating the first one
// when none exists. Safe to call concurrently: losers of the insert race
// re-read the winner's row.
func (s *Service) EnsureOpenPeriod(ctx context.Context, groupID uuid.UUID) (Period, error) {
	var out Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		open, err := tx.OpenPeriod(ctx, groupID)
		if err != nil {
			return err
		}
		if open != nil {
			out = *open
			return nil
		}
		cfg, err := tx.GroupConfig(ctx, groupID)
		if err != nil {
			return err
		}
		sched, err := schedule.Resolve(cfg.Schedule)
		if err != nil {
			return err
		}
		latest, err := tx.LatestPeriod(ctx, groupID)
		if err != nil {
			return err
		}
		loanAssets, err := tx.ActiveLoanTotal(ctx, groupID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		p := Period{
			ID:      uuid.New(),
			GroupID: groupID,
			Seq:     1,
			DueDate: sched.DueDateIn(now),
		}
		if latest != nil {
			p.Seq = latest.Seq + 1
			p.DueDate = sched.NextDueDate(latest.DueDate)
			p.StandingAtStart = latest.StandingAtEnd
		} else {
			p.StandingAtStart = round2(cfg.CashInHand + cfg.BankBalance + loanAssets)
		}
		p.MeetingDate = p.DueDate
		p.CashInHandAtEnd = cfg.CashInHand
		p.CashInBankAtEnd = cfg.BankBalance
		p.StandingAtEnd = p.StandingAtStart
		p, err = tx.InsertPeriod(ctx, p)
		if err != nil {
			return err
		}
		if err := s.seedContributions(ctx, tx, cfg, p, latest); err != nil {
			return err
		}
		s.log.InfoContext(ctx, "period opened",
			slog.String("group_id", groupID.String()),
			slog.Int64("seq", p.Seq),
			slog.Time("due_date", p.DueDate))
		out = p
		return nil
	})
	if errors.Is(err, shared.ErrOpenPeriodExists) {
		// Lost the insert race. The winner's period is the answer.
		open, readErr := s.repo.OpenPeriodRead(ctx, groupID)
		if readErr == nil && open != nil {
			return *open, nil
		}
		return Period{}, err
	}
	return out, err
}

// seedContributions creates one row per member for a freshly opened period.
// Dues carry forward the member's unpaid remainder from prev and add the
// interest accrued on their active loans over one period.
func (s *Service) seedContributions(ctx context.Context, tx TxRepository, cfg GroupConfig, p Period, prev *Period) error {
	memberIDs, err := tx.GroupMemberIDs(ctx, cfg.GroupID)
	if err != nil {
		return err
	}
	carry := map[uuid.UUID]float64{}
	if prev != nil {
		prevRows, err := tx.Contributions(ctx, prev.ID)
		if err != nil {
			return err
		}
		for _, row := range prevRows {
			carry[row.MemberID] = row.RemainingAmount
		}
	}
	for _, memberID := range memberIDs {
		balance, err := tx.MemberLoanBalance(ctx, cfg.GroupID, memberID)
		if err != nil {
			return err
		}
		interest := loans.PeriodInterest(balance, cfg.InterestRate)
		row := MemberContribution{
			ID:              uuid.New(),
			PeriodID:        p.ID,
			MemberID:        memberID,
			ContributionDue: cfg.MonthlyContribution,
			InterestDue:     interest,
			DueAmount:       round2(cfg.MonthlyContribution + carry[memberID] + interest),
			Status:          StatusPending,
		}
		row.RemainingAmount = row.DueAmount
		if _, err := tx.UpsertContribution(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// CurrentPeriod returns the open period and its contribution rows.
func (s *Service) CurrentPeriod(ctx context.Context, groupID uuid.UUID) (Period, []MemberContribution, error) {
	open, err := s.repo.OpenPeriodRead(ctx, groupID)
	if err != nil {
		return Period{}, nil, err
	}
	if open == nil {
		return Period{}, nil, shared.ErrNotFound
	}
	rows, err := s.repo.ContributionsRead(ctx, open.ID)
	if err != nil {
		return Period{}, nil, err
	}
	return *open, rows, nil
}

// RecordContribution applies one member's payment to an open period. Amounts
// accumulate across calls; late fines and status are recomputed on every
// write from the current totals.
func (s *Service) RecordContribution(ctx context.Context, periodID uuid.UUID, in ContributionInput) (MemberContribution, error) {
	if err := in.Validate(); err != nil {
		return MemberContribution{}, err
	}
	var out MemberContribution
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.PeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if !p.Open() {
			return shared.ErrPeriodClosed
		}
		cfg, err := tx.GroupConfig(ctx, p.GroupID)
		if err != nil {
			return err
		}
		row, err := s.applyPayment(ctx, tx, cfg, p, in)
		if err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return MemberContribution{}, err
	}
	s.log.InfoContext(ctx, "contribution recorded",
		slog.String("period_id", periodID.String()),
		slog.String("member_id", in.MemberID.String()),
		slog.Float64("paid", in.Paid()),
		slog.String("status", string(out.Status)))
	return out, nil
}

func (s *Service) applyPayment(ctx context.Context, tx TxRepository, cfg GroupConfig, p Period, in ContributionInput) (MemberContribution, error) {
	existing, err := tx.ContributionByMember(ctx, p.ID, in.MemberID)
	if err != nil {
		return MemberContribution{}, err
	}
	var row MemberContribution
	if existing != nil {
		row = *existing
	} else {
		balance, err := tx.MemberLoanBalance(ctx, p.GroupID, in.MemberID)
		if err != nil {
			return MemberContribution{}, err
		}
		interest := loans.PeriodInterest(balance, cfg.InterestRate)
		row = MemberContribution{
			ID:              uuid.New(),
			PeriodID:        p.ID,
			MemberID:        in.MemberID,
			ContributionDue: cfg.MonthlyContribution,
			InterestDue:     interest,
			DueAmount:       round2(cfg.MonthlyContribution + interest),
			Status:          StatusPending,
		}
	}

	paidAt := in.PaidAt
	if paidAt == nil {
		t := s.now().UTC()
		paidAt = &t
	}
	row.ContributionPaid = round2(row.ContributionPaid + in.ContributionPaid)
	row.InterestPaid = round2(row.InterestPaid + in.InterestPaid)
	row.FinePaid = round2(row.FinePaid + in.FinePaid)
	row.LoanRepayment = round2(row.LoanRepayment + in.LoanRepayment)
	row.TotalPaid = round2(row.ContributionPaid + row.InterestPaid + row.FinePaid)
	row.PaidAt = paidAt

	row.DaysLate = schedule.DaysLate(p.DueDate, *paidAt)
	fine, matched := latefine.Compute(cfg.FineRule, row.DaysLate, row.ContributionDue)
	if matched {
		row.LateFine = fine
	}
	row.RemainingAmount = Remaining(row.DueAmount, row.ContributionPaid+row.InterestPaid)
	row.Status = Classify(row.DueAmount, row.ContributionPaid+row.InterestPaid)
	return tx.UpsertContribution(ctx, row)
}

// ClosePeriod finalises one open period: applies any last contributions and
// expenses, settles loan repayments oldest first, commits the ending cash
// split and standing, and opens the next period, all in one transaction.
// Concurrent closers are fenced by a redis lock and the row lock beneath it;
// the loser observes the period as closed and fails cleanly.
func (s *Service) ClosePeriod(ctx context.Context, periodID uuid.UUID, in CloseInput) (ClosedPeriodSnapshot, error) {
	if err := in.Validate(); err != nil {
		return ClosedPeriodSnapshot{}, err
	}
	peek, err := s.repo.PeriodRead(ctx, periodID)
	if err != nil {
		return ClosedPeriodSnapshot{}, err
	}
	groupID := peek.GroupID
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, groupID)
		if err != nil {
			return ClosedPeriodSnapshot{}, err
		}
		defer release()
	}

	var snap ClosedPeriodSnapshot
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.PeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if !p.Open() {
			return shared.ErrPeriodClosed
		}
		cfg, err := tx.GroupConfigForUpdate(ctx, groupID)
		if err != nil {
			return err
		}

		closedAt := in.ClosedAt
		if closedAt.IsZero() {
			closedAt = s.now().UTC()
		}

		for _, c := range in.Contributions {
			if c.PaidAt == nil {
				t := closedAt
				c.PaidAt = &t
			}
			if _, err := s.applyPayment(ctx, tx, cfg, p, c); err != nil {
				return err
			}
		}

		rows, err := tx.Contributions(ctx, p.ID)
		if err != nil {
			return err
		}

		var warnings []string
		var totalRepaid float64
		for _, row := range rows {
			if row.LoanRepayment <= 0 {
				continue
			}
			active, err := tx.ActiveLoansForUpdate(ctx, groupID, row.MemberID)
			if err != nil {
				return err
			}
			updates, err := loans.AllocateRepayment(active, row.LoanRepayment)
			if err != nil {
				return fmt.Errorf("member %s: %w", row.MemberID, err)
			}
			for _, u := range updates {
				if err := tx.ApplyLoanUpdate(ctx, u); err != nil {
					return err
				}
				if u.NewStatus == loans.StatusPaid {
					warnings = append(warnings, fmt.Sprintf("loan %s settled", u.LoanID))
				}
			}
			totalRepaid += row.LoanRepayment
		}

		var newContributions, interest, fines float64
		var membersPresent int
		for _, row := range rows {
			newContributions += row.ContributionPaid
			interest += row.InterestPaid
			fines += row.FinePaid
			if row.TotalPaid > 0 || row.LoanRepayment > 0 {
				membersPresent++
			}
		}
		totalCollected := round2(newContributions + interest + fines + totalRepaid)

		collected := round2(newContributions + interest + fines)
		alloc := DefaultAllocation(collected)
		if in.Allocation != nil {
			if diff := round2(in.Allocation.ToHand + in.Allocation.ToBank - collected); diff > Epsilon || diff < -Epsilon {
				return &shared.ValidationError{Field: "allocation", Reason: "split must sum to the collected amount"}
			}
			alloc = *in.Allocation
		}
		disbursed, err := tx.LoansDisbursedBetween(ctx, groupID, p.CreatedAt, closedAt)
		if err != nil {
			return err
		}

		// Repayments land in the bank, expenses come out of hand,
		// disbursements come out of the bank.
		endingHand := round2(cfg.CashInHand + alloc.ToHand - in.Expenses)
		endingBank := round2(cfg.BankBalance + alloc.ToBank + totalRepaid - disbursed)
		if endingHand < 0 {
			// Cover the hand deficit from the bank before failing.
			endingBank = round2(endingBank + endingHand)
			warnings = append(warnings, fmt.Sprintf("cash in hand short by %.2f, covered from bank", -endingHand))
			endingHand = 0
		}
		if endingBank < 0 {
			return shared.ErrNegativeStanding
		}

		loanAssets, err := tx.ActiveLoanTotal(ctx, groupID)
		if err != nil {
			return err
		}
		standing := round2(endingHand + endingBank + loanAssets)

		p.TotalCollected = totalCollected
		p.InterestEarned = round2(interest)
		p.LateFines = round2(fines)
		p.NewContributions = round2(newContributions)
		p.Expenses = round2(in.Expenses)
		p.LoanRepayments = round2(totalRepaid)
		p.CashInHandAtEnd = endingHand
		p.CashInBankAtEnd = endingBank
		p.StandingAtEnd = standing
		p.MembersPresent = membersPresent
		p.ClosedAt = &closedAt
		p.ClosedBy = in.ActorID
		if err := tx.FinalizePeriod(ctx, p); err != nil {
			return err
		}
		if err := tx.UpdateGroupCash(ctx, groupID, endingHand, endingBank); err != nil {
			return err
		}
		cfg.CashInHand = endingHand
		cfg.BankBalance = endingBank

		sched, err := schedule.Resolve(cfg.Schedule)
		if err != nil {
			return err
		}
		next := Period{
			ID:              uuid.New(),
			GroupID:         groupID,
			Seq:             p.Seq + 1,
			DueDate:         sched.NextDueDate(p.DueDate),
			StandingAtStart: standing,
			CashInHandAtEnd: endingHand,
			CashInBankAtEnd: endingBank,
			StandingAtEnd:   standing,
		}
		next.MeetingDate = next.DueDate
		next, err = tx.InsertPeriod(ctx, next)
		if err != nil {
			return err
		}
		if err := s.seedContributions(ctx, tx, cfg, next, &p); err != nil {
			return err
		}

		snap = ClosedPeriodSnapshot{
			Period:     p,
			NextPeriod: next,
			Members:    rows,
			Allocation: alloc,
			Warnings:   warnings,
		}
		return nil
	})
	if err != nil {
		return ClosedPeriodSnapshot{}, err
	}

	if s.audit != nil {
		entry := shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "period.close",
			Entity:   "period",
			EntityID: snap.Period.ID.String(),
			At:       s.now().UTC(),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.log.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
		}
	}
	s.log.InfoContext(ctx, "period closed",
		slog.String("group_id", groupID.String()),
		slog.Int64("seq", snap.Period.Seq),
		slog.Float64("total_collected", snap.Period.TotalCollected),
		slog.Float64("standing", snap.Period.StandingAtEnd))
	return snap, nil
}

// Growth compares two consecutive standings. Percentage is zero when the
// previous standing is zero or negative.
func Growth(previous, current float64) GrowthResult {
	amount := round2(current - previous)
	res := GrowthResult{Amount: amount}
	if previous > 0 {
		pct, _ := decimal.NewFromFloat(amount).
			Div(decimal.NewFromFloat(previous)).
			Mul(decimal.NewFromInt(100)).
			Round(2).Float64()
		res.Percentage = pct
	}
	return res
}
