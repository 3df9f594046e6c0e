// Package groupshttp exposes group and membership management over JSON.
package groupshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/saheli-shg/saheli/internal/groups"
	"github.com/saheli-shg/saheli/internal/latefine"
	"github.com/saheli-shg/saheli/internal/platform/httpx"
	"github.com/saheli-shg/saheli/internal/schedule"
)

type groupService interface {
	Create(ctx context.Context, in groups.CreateGroupInput) (groups.Group, error)
	Get(ctx context.Context, id uuid.UUID) (groups.Group, error)
	ResolveSchedule(cfg schedule.Config) (schedule.Schedule, error)
	UpdateSchedule(ctx context.Context, groupID uuid.UUID, cfg schedule.Config) (schedule.Schedule, error)
	SetFineRule(ctx context.Context, in groups.SetFineRuleInput) (groups.LateFineRule, error)
	Enroll(ctx context.Context, groupID, memberID uuid.UUID, initialShare, initialLoan, initialInterest float64) (groups.Membership, error)
	Members(ctx context.Context, groupID uuid.UUID) ([]groups.Membership, error)
	RegisterMember(ctx context.Context, name, email, phone string) (groups.Member, error)
}

// Handler wires HTTP endpoints for group configuration.
type Handler struct {
	logger    *slog.Logger
	service   groupService
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service groupService) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers group routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/groups", func(r chi.Router) {
		r.Post("/", h.createGroup)
		r.Post("/resolve-schedule", h.resolveSchedule)
		r.Route("/{groupID}", func(r chi.Router) {
			r.Get("/", h.getGroup)
			r.Put("/schedule", h.updateSchedule)
			r.Put("/fine-rule", h.setFineRule)
			r.Get("/members", h.listMembers)
			r.Post("/members", h.enrollMember)
		})
	})
	r.Post("/members", h.registerMember)
}

type scheduleRequest struct {
	Frequency   string `json:"frequency" validate:"required,oneof=WEEKLY FORTNIGHTLY MONTHLY YEARLY"`
	DayOfMonth  int    `json:"dayOfMonth" validate:"gte=0"`
	DayOfWeek   string `json:"dayOfWeek"`
	WeekOfMonth int    `json:"weekOfMonth" validate:"gte=0"`
}

func (req scheduleRequest) toConfig() schedule.Config {
	return schedule.Config{
		Frequency:   schedule.Frequency(req.Frequency),
		DayOfMonth:  req.DayOfMonth,
		DayOfWeek:   schedule.Weekday(req.DayOfWeek),
		WeekOfMonth: req.WeekOfMonth,
	}
}

type createGroupRequest struct {
	Name                string          `json:"name" validate:"required"`
	MonthlyContribution float64         `json:"monthlyContribution" validate:"gte=0"`
	InterestRate        float64         `json:"interestRate" validate:"gte=0"`
	Schedule            scheduleRequest `json:"schedule" validate:"required"`
	CashInHand          float64         `json:"cashInHand" validate:"gte=0"`
	BankBalance         float64         `json:"bankBalance" validate:"gte=0"`
}

type tierRequest struct {
	StartDay     int     `json:"startDay" validate:"gte=1"`
	EndDay       int     `json:"endDay" validate:"gte=1"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	IsPercentage bool    `json:"isPercentage"`
}

type fineRuleRequest struct {
	Enabled         bool          `json:"enabled"`
	RuleType        string        `json:"ruleType" validate:"required,oneof=DAILY_FIXED DAILY_PERCENTAGE TIER_BASED"`
	DailyAmount     float64       `json:"dailyAmount" validate:"gte=0"`
	DailyPercentage float64       `json:"dailyPercentage" validate:"gte=0"`
	Tiers           []tierRequest `json:"tiers" validate:"dive"`
}

type memberRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

type enrollRequest struct {
	MemberID        string  `json:"memberId" validate:"required,uuid"`
	InitialShare    float64 `json:"initialShare" validate:"gte=0"`
	InitialLoan     float64 `json:"initialLoan" validate:"gte=0"`
	InitialInterest float64 `json:"initialInterest" validate:"gte=0"`
}

type groupResponse struct {
	ID                  uuid.UUID       `json:"id"`
	Name                string          `json:"name"`
	MonthlyContribution float64         `json:"monthlyContribution"`
	InterestRate        float64         `json:"interestRate"`
	Schedule            schedule.Config `json:"schedule"`
	CashInHand          float64         `json:"cashInHand"`
	BankBalance         float64         `json:"bankBalance"`
	CreatedAt           time.Time       `json:"createdAt"`
}

func toGroupResponse(g groups.Group) groupResponse {
	return groupResponse{
		ID:                  g.ID,
		Name:                g.Name,
		MonthlyContribution: g.MonthlyContribution,
		InterestRate:        g.InterestRate,
		Schedule:            g.Schedule,
		CashInHand:          g.CashInHand,
		BankBalance:         g.BankBalance,
		CreatedAt:           g.CreatedAt,
	}
}

type scheduleResponse struct {
	Frequency   string `json:"frequency"`
	DayOfMonth  int    `json:"dayOfMonth,omitempty"`
	DayOfWeek   string `json:"dayOfWeek,omitempty"`
	WeekOfMonth int    `json:"weekOfMonth,omitempty"`
}

func toScheduleResponse(s schedule.Schedule) scheduleResponse {
	out := scheduleResponse{Frequency: string(s.Frequency)}
	switch s.Frequency {
	case schedule.FrequencyWeekly:
		out.DayOfWeek = strings.ToUpper(s.DayOfWeek.String())
	case schedule.FrequencyFortnightly:
		out.DayOfWeek = strings.ToUpper(s.DayOfWeek.String())
		out.WeekOfMonth = s.WeekOfMonth
	default:
		out.DayOfMonth = s.DayOfMonth
	}
	return out
}

func (h *Handler) respondInvalid(w http.ResponseWriter, err error) {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Error(), fieldErrs[0].Field())
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
}

func urlUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondInvalid(w, err)
		return
	}
	g, err := h.service.Create(r.Context(), groups.CreateGroupInput{
		Name:                req.Name,
		MonthlyContribution: req.MonthlyContribution,
		InterestRate:        req.InterestRate,
		Schedule:            req.Schedule.toConfig(),
		CashInHand:          req.CashInHand,
		BankBalance:         req.BankBalance,
	})
	if err != nil {
		h.logger.Error("create group", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGroupResponse(g))
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	g, err := h.service.Get(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGroupResponse(g))
}

// resolveSchedule validates and defaults a schedule configuration without
// persisting anything.
func (h *Handler) resolveSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondInvalid(w, err)
		return
	}
	resolved, err := h.service.ResolveSchedule(req.toConfig())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponse(resolved))
}

func (h *Handler) updateSchedule(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondInvalid(w, err)
		return
	}
	resolved, err := h.service.UpdateSchedule(r.Context(), groupID, req.toConfig())
	if err != nil {
		h.logger.Error("update schedule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScheduleResponse(resolved))
}

func (h *Handler) setFineRule(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	var req fineRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondInvalid(w, err)
		return
	}
	in := groups.SetFineRuleInput{
		GroupID:         groupID,
		Enabled:         req.Enabled,
		RuleType:        groups.RuleType(req.RuleType),
		DailyAmount:     req.DailyAmount,
		DailyPercentage: req.DailyPercentage,
	}
	for _, t := range req.Tiers {
		in.Tiers = append(in.Tiers, latefine.Tier{
			StartDay:     t.StartDay,
			EndDay:       t.EndDay,
			Amount:       t.Amount,
			IsPercentage: t.IsPercentage,
		})
	}
	rule, err := h.service.SetFineRule(r.Context(), in)
	if err != nil {
		h.logger.Error("set fine rule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) enrollMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	var req enrollRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondInvalid(w, err)
		return
	}
	memberID, _ := uuid.Parse(req.MemberID)
	m, err := h.service.Enroll(r.Context(), groupID, memberID, req.InitialShare, req.InitialLoan, req.InitialInterest)
	if err != nil {
		h.logger.Error("enroll member", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) registerMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondInvalid(w, err)
		return
	}
	m, err := h.service.RegisterMember(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		h.logger.Error("register member", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(r, "groupID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "groupID must be a UUID")
		return
	}
	ms, err := h.service.Members(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ms)
}
