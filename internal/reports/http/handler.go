// Package reportshttp serves growth figures and contribution reports.
package reportshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/ledger"
	"github.com/saheli-shg/saheli/internal/platform/httpx"
	"github.com/saheli-shg/saheli/internal/reports"
)

type reportService interface {
	GrowthSince(ctx context.Context, groupID, periodID uuid.UUID) (ledger.GrowthResult, error)
	History(ctx context.Context, groupID uuid.UUID, limit int) ([]ledger.Period, []ledger.GrowthResult, error)
	BuildContributionReport(ctx context.Context, periodID uuid.UUID) (reports.ContributionReport, error)
}

// Handler wires HTTP endpoints for reports.
type Handler struct {
	logger  *slog.Logger
	service reportService
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service reportService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups/{groupID}/growth/{periodID}", h.growth)
	r.Get("/groups/{groupID}/history", h.history)
	r.Get("/periods/{periodID}/report", h.contributionReport)
}

func urlUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func (h *Handler) growth(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	periodID, ok := urlUUID(r, "periodID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "periodID must be a UUID")
		return
	}
	res, err := h.service.GrowthSince(r.Context(), groupID, periodID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type historyEntry struct {
	Seq      int64               `json:"seq"`
	Standing float64             `json:"standing"`
	ClosedAt string              `json:"closedAt"`
	Growth   ledger.GrowthResult `json:"growth"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	periods, growth, err := h.service.History(r.Context(), groupID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries := make([]historyEntry, len(periods))
	for i, p := range periods {
		entry := historyEntry{Seq: p.Seq, Standing: p.StandingAtEnd, Growth: growth[i]}
		if p.ClosedAt != nil {
			entry.ClosedAt = p.ClosedAt.Format("2006-01-02")
		}
		entries[i] = entry
	}
	httpx.JSON(w, http.StatusOK, entries)
}

// contributionReport collapses concurrent builds of the same period's report
// into a single underlying computation.
func (h *Handler) contributionReport(w http.ResponseWriter, r *http.Request) {
	periodID, ok := urlUUID(r, "periodID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "periodID must be a UUID")
		return
	}
	rep, shared, err := buildShared(r.Context(), periodID, func(ctx context.Context) (reports.ContributionReport, error) {
		return h.service.BuildContributionReport(ctx, periodID)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if shared {
		h.logger.Debug("report build shared", slog.String("period_id", periodID.String()))
	}
	httpx.JSON(w, http.StatusOK, rep)
}
