// Package loanshttp exposes loan disbursement and balance queries over JSON.
package loanshttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/loans"
	"github.com/saheli-shg/saheli/internal/platform/httpx"
)

type loanService interface {
	Disburse(ctx context.Context, in loans.DisburseInput) (loans.Loan, error)
	CurrentBalance(ctx context.Context, groupID, memberID uuid.UUID) (float64, error)
	GroupOutstanding(ctx context.Context, groupID uuid.UUID) (float64, error)
	MarkDefaulted(ctx context.Context, id uuid.UUID) error
}

// Handler wires HTTP endpoints for loans.
type Handler struct {
	logger    *slog.Logger
	service   loanService
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service loanService) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers loan routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/groups/{groupID}/loans", func(r chi.Router) {
		r.Post("/", h.disburse)
		r.Get("/outstanding", h.groupOutstanding)
		r.Get("/members/{memberID}/balance", h.memberBalance)
	})
	r.Post("/loans/{loanID}/default", h.markDefaulted)
}

type disburseRequest struct {
	MemberID     string     `json:"memberId" validate:"required,uuid"`
	Amount       float64    `json:"amount" validate:"required,gt=0"`
	InterestRate float64    `json:"interestRate" validate:"gte=0"`
	IssuedAt     *time.Time `json:"issuedAt"`
}

type loanResponse struct {
	ID             uuid.UUID `json:"id"`
	GroupID        uuid.UUID `json:"groupId"`
	MemberID       uuid.UUID `json:"memberId"`
	OriginalAmount float64   `json:"originalAmount"`
	CurrentBalance float64   `json:"currentBalance"`
	InterestRate   float64   `json:"interestRate"`
	Status         string    `json:"status"`
	IssuedAt       time.Time `json:"issuedAt"`
}

func toLoanResponse(l loans.Loan) loanResponse {
	return loanResponse{
		ID:             l.ID,
		GroupID:        l.GroupID,
		MemberID:       l.MemberID,
		OriginalAmount: l.OriginalAmount,
		CurrentBalance: l.CurrentBalance,
		InterestRate:   l.InterestRate,
		Status:         string(l.Status),
		IssuedAt:       l.IssuedAt,
	}
}

func urlUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func (h *Handler) disburse(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	var req disburseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Error(), fieldErrs[0].Field())
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	memberID, _ := uuid.Parse(req.MemberID)
	in := loans.DisburseInput{
		GroupID:      groupID,
		MemberID:     memberID,
		Amount:       req.Amount,
		InterestRate: req.InterestRate,
	}
	if req.IssuedAt != nil {
		in.IssuedAt = *req.IssuedAt
	}
	l, err := h.service.Disburse(r.Context(), in)
	if err != nil {
		h.logger.Error("disburse loan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLoanResponse(l))
}

func (h *Handler) memberBalance(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	memberID, ok := urlUUID(r, "memberID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "memberID must be a UUID")
		return
	}
	balance, err := h.service.CurrentBalance(r.Context(), groupID, memberID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"groupId":  groupID,
		"memberId": memberID,
		"balance":  balance,
	})
}

func (h *Handler) groupOutstanding(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	total, err := h.service.GroupOutstanding(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"groupId":     groupID,
		"outstanding": total,
	})
}

func (h *Handler) markDefaulted(w http.ResponseWriter, r *http.Request) {
	loanID, ok := urlUUID(r, "loanID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "loanID must be a UUID")
		return
	}
	if err := h.service.MarkDefaulted(r.Context(), loanID); err != nil {
		h.logger.Error("mark defaulted", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(loans.StatusDefaulted)})
}
