// Package ledgerhttp exposes the period lifecycle over JSON endpoints.
package ledgerhttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/ledger"
	"github.com/saheli-shg/saheli/internal/platform/httpx"
	"github.com/saheli-shg/saheli/internal/shared"
)

type ledgerService interface {
	EnsureOpenPeriod(ctx context.Context, groupID uuid.UUID) (ledger.Period, error)
	CurrentPeriod(ctx context.Context, groupID uuid.UUID) (ledger.Period, []ledger.MemberContribution, error)
	RecordContribution(ctx context.Context, periodID uuid.UUID, in ledger.ContributionInput) (ledger.MemberContribution, error)
	ClosePeriod(ctx context.Context, periodID uuid.UUID, in ledger.CloseInput) (ledger.ClosedPeriodSnapshot, error)
}

// Handler wires HTTP endpoints for period lifecycle operations.
type Handler struct {
	logger    *slog.Logger
	service   ledgerService
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service ledgerService) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers period routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/groups/{groupID}/periods", func(r chi.Router) {
		r.Post("/", h.ensureOpenPeriod)
		r.Get("/current", h.currentPeriod)
	})
	r.Route("/periods/{periodID}", func(r chi.Router) {
		r.Post("/contributions", h.recordContribution)
		r.Post("/close", h.closePeriod)
	})
}

type allocationRequest struct {
	ToHand float64 `json:"toHand" validate:"gte=0"`
	ToBank float64 `json:"toBank" validate:"gte=0"`
}

type contributionRequest struct {
	MemberID         string     `json:"memberId" validate:"required,uuid"`
	ContributionPaid float64    `json:"contributionPaid" validate:"gte=0"`
	InterestPaid     float64    `json:"interestPaid" validate:"gte=0"`
	FinePaid         float64    `json:"finePaid" validate:"gte=0"`
	LoanRepayment    float64    `json:"loanRepayment" validate:"gte=0"`
	PaidAt           *time.Time `json:"paidAt"`
}

type closeRequest struct {
	Expenses      float64               `json:"expenses" validate:"gte=0"`
	Contributions []contributionRequest `json:"contributions" validate:"dive"`
	Allocation    *allocationRequest    `json:"allocation"`
	ClosedAt      *time.Time            `json:"closedAt"`
}

type periodResponse struct {
	ID               uuid.UUID  `json:"id"`
	GroupID          uuid.UUID  `json:"groupId"`
	Seq              int64      `json:"seq"`
	MeetingDate      time.Time  `json:"meetingDate"`
	DueDate          time.Time  `json:"dueDate"`
	StandingAtStart  float64    `json:"standingAtStart"`
	TotalCollected   float64    `json:"totalCollected"`
	InterestEarned   float64    `json:"interestEarned"`
	LateFines        float64    `json:"lateFines"`
	NewContributions float64    `json:"newContributions"`
	Expenses         float64    `json:"expenses"`
	LoanRepayments   float64    `json:"loanRepayments"`
	CashInHandAtEnd  float64    `json:"cashInHandAtEnd"`
	CashInBankAtEnd  float64    `json:"cashInBankAtEnd"`
	StandingAtEnd    float64    `json:"standingAtEnd"`
	MembersPresent   int        `json:"membersPresent"`
	Status           string     `json:"status"`
	ClosedAt         *time.Time `json:"closedAt,omitempty"`
	ClosedBy         string     `json:"closedBy,omitempty"`
}

type contributionResponse struct {
	ID              uuid.UUID  `json:"id"`
	PeriodID        uuid.UUID  `json:"periodId"`
	MemberID        uuid.UUID  `json:"memberId"`
	DueAmount       float64    `json:"dueAmount"`
	TotalPaid       float64    `json:"totalPaid"`
	LoanRepayment   float64    `json:"loanRepayment"`
	LateFine        float64    `json:"lateFine"`
	DaysLate        int        `json:"daysLate"`
	RemainingAmount float64    `json:"remainingAmount"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	Status          string     `json:"status"`
}

type currentPeriodResponse struct {
	Period        periodResponse         `json:"period"`
	Contributions []contributionResponse `json:"contributions"`
}

type closeResponse struct {
	Period     periodResponse         `json:"period"`
	NextPeriod periodResponse         `json:"nextPeriod"`
	Members    []contributionResponse `json:"members"`
	Allocation ledger.CashAllocation  `json:"allocation"`
	Warnings   []string               `json:"warnings,omitempty"`
}

func toPeriodResponse(p ledger.Period) periodResponse {
	status := "OPEN"
	if !p.Open() {
		status = "CLOSED"
	}
	return periodResponse{
		ID:               p.ID,
		GroupID:          p.GroupID,
		Seq:              p.Seq,
		MeetingDate:      p.MeetingDate,
		DueDate:          p.DueDate,
		StandingAtStart:  p.StandingAtStart,
		TotalCollected:   p.TotalCollected,
		InterestEarned:   p.InterestEarned,
		LateFines:        p.LateFines,
		NewContributions: p.NewContributions,
		Expenses:         p.Expenses,
		LoanRepayments:   p.LoanRepayments,
		CashInHandAtEnd:  p.CashInHandAtEnd,
		CashInBankAtEnd:  p.CashInBankAtEnd,
		StandingAtEnd:    p.StandingAtEnd,
		MembersPresent:   p.MembersPresent,
		Status:           status,
		ClosedAt:         p.ClosedAt,
		ClosedBy:         p.ClosedBy,
	}
}

func toContributionResponse(c ledger.MemberContribution) contributionResponse {
	return contributionResponse{
		ID:              c.ID,
		PeriodID:        c.PeriodID,
		MemberID:        c.MemberID,
		DueAmount:       c.DueAmount,
		TotalPaid:       c.TotalPaid,
		LoanRepayment:   c.LoanRepayment,
		LateFine:        c.LateFine,
		DaysLate:        c.DaysLate,
		RemainingAmount: c.RemainingAmount,
		PaidAt:          c.PaidAt,
		Status:          string(c.Status),
	}
}

func toContributionResponses(cs []ledger.MemberContribution) []contributionResponse {
	out := make([]contributionResponse, len(cs))
	for i, c := range cs {
		out[i] = toContributionResponse(c)
	}
	return out
}

func (req contributionRequest) toInput() ledger.ContributionInput {
	memberID, _ := uuid.Parse(req.MemberID)
	return ledger.ContributionInput{
		MemberID:         memberID,
		ContributionPaid: req.ContributionPaid,
		InterestPaid:     req.InterestPaid,
		FinePaid:         req.FinePaid,
		LoanRepayment:    req.LoanRepayment,
		PaidAt:           req.PaidAt,
	}
}

func urlUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func (h *Handler) respondInvalid(w http.ResponseWriter, err error) {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Error(), fieldErrs[0].Field())
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
}

func (h *Handler) ensureOpenPeriod(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	p, err := h.service.EnsureOpenPeriod(r.Context(), groupID)
	if err != nil {
		h.logger.Error("ensure open period", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(p))
}

func (h *Handler) currentPeriod(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	p, rows, err := h.service.CurrentPeriod(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, currentPeriodResponse{
		Period:        toPeriodResponse(p),
		Contributions: toContributionResponses(rows),
	})
}

func (h *Handler) recordContribution(w http.ResponseWriter, r *http.Request) {
	periodID, ok := urlUUID(r, "periodID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "periodID must be a UUID")
		return
	}
	var req contributionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondInvalid(w, err)
		return
	}
	row, err := h.service.RecordContribution(r.Context(), periodID, req.toInput())
	if err != nil {
		h.logger.Error("record contribution", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toContributionResponse(row))
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	periodID, ok := urlUUID(r, "periodID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "periodID must be a UUID")
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondInvalid(w, err)
		return
	}
	in := ledger.CloseInput{Expenses: req.Expenses}
	if req.Allocation != nil {
		in.Allocation = &ledger.CashAllocation{ToHand: req.Allocation.ToHand, ToBank: req.Allocation.ToBank}
	}
	if req.ClosedAt != nil {
		in.ClosedAt = *req.ClosedAt
	}
	for _, c := range req.Contributions {
		in.Contributions = append(in.Contributions, c.toInput())
	}
	if caller, ok := shared.CallerFromContext(r.Context()); ok {
		in.ActorID = caller.ID
	}
	snap, err := h.service.ClosePeriod(r.Context(), periodID, in)
	if err != nil {
		h.logger.Error("close period", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, closeResponse{
		Period:     toPeriodResponse(snap.Period),
		NextPeriod: toPeriodResponse(snap.NextPeriod),
		Members:    toContributionResponses(snap.Members),
		Allocation: snap.Allocation,
		Warnings:   snap.Warnings,
	})
}
