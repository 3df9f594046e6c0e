package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/ledger"
	"github.com/saheli-shg/saheli/internal/reports"
	"github.com/saheli-shg/saheli/jobs"
)

// LedgerCloseNotifier wraps the ledger service and, after a successful
// close, enqueues the report snapshot job and invalidates cached reports.
// Failures here never fail the close itself.
type LedgerCloseNotifier struct {
	Inner   *ledger.Service
	Jobs    *jobs.Client
	Reports *reports.Service
	Logger  *slog.Logger
}

// EnsureOpenPeriod delegates to the ledger service.
func (n *LedgerCloseNotifier) EnsureOpenPeriod(ctx context.Context, groupID uuid.UUID) (ledger.Period, error) {
	return n.Inner.EnsureOpenPeriod(ctx, groupID)
}

// CurrentPeriod delegates to the ledger service.
func (n *LedgerCloseNotifier) CurrentPeriod(ctx context.Context, groupID uuid.UUID) (ledger.Period, []ledger.MemberContribution, error) {
	return n.Inner.CurrentPeriod(ctx, groupID)
}

// RecordContribution delegates to the ledger service.
func (n *LedgerCloseNotifier) RecordContribution(ctx context.Context, periodID uuid.UUID, in ledger.ContributionInput) (ledger.MemberContribution, error) {
	return n.Inner.RecordContribution(ctx, periodID, in)
}

// ClosePeriod delegates, then triggers the post-close side effects.
func (n *LedgerCloseNotifier) ClosePeriod(ctx context.Context, periodID uuid.UUID, in ledger.CloseInput) (ledger.ClosedPeriodSnapshot, error) {
	snap, err := n.Inner.ClosePeriod(ctx, periodID, in)
	if err != nil {
		return snap, err
	}
	if n.Reports != nil {
		if err := n.Reports.Invalidate(ctx); err != nil {
			n.Logger.Warn("report cache invalidation", slog.Any("error", err))
		}
	}
	if n.Jobs != nil {
		if err := n.Jobs.EnqueueReportSnapshot(ctx, snap.Period.ID); err != nil {
			n.Logger.Warn("enqueue report snapshot", slog.Any("error", err))
		}
	}
	return snap, nil
}
