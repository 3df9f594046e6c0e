package groupshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/saheli-shg/saheli/internal/groups"
	"github.com/saheli-shg/saheli/internal/schedule"
)

type stubService struct {
	group groups.Group
	err   error
}

func (s *stubService) Create(ctx context.Context, in groups.CreateGroupInput) (groups.Group, error) {
	if err := in.Validate(); err != nil {
		return groups.Group{}, err
	}
	return s.group, s.err
}

func (s *stubService) Get(ctx context.Context, id uuid.UUID) (groups.Group, error) {
	return s.group, s.err
}

func (s *stubService) ResolveSchedule(cfg schedule.Config) (schedule.Schedule, error) {
	return schedule.Resolve(cfg)
}

func (s *stubService) UpdateSchedule(ctx context.Context, groupID uuid.UUID, cfg schedule.Config) (schedule.Schedule, error) {
	return schedule.Resolve(cfg)
}

func (s *stubService) SetFineRule(ctx context.Context, in groups.SetFineRuleInput) (groups.LateFineRule, error) {
	return groups.LateFineRule{}, s.err
}

func (s *stubService) Enroll(ctx context.Context, groupID, memberID uuid.UUID, initialShare, initialLoan, initialInterest float64) (groups.Membership, error) {
	return groups.Membership{GroupID: groupID, MemberID: memberID}, s.err
}

func (s *stubService) Members(ctx context.Context, groupID uuid.UUID) ([]groups.Membership, error) {
	return nil, s.err
}

func (s *stubService) RegisterMember(ctx context.Context, name, email, phone string) (groups.Member, error) {
	return groups.Member{ID: uuid.New(), Name: name, Email: email, Phone: phone}, s.err
}

func newRouter(svc *stubService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(logger, svc).MountRoutes(r)
	return r
}

func TestCreateGroup(t *testing.T) {
	svc := &stubService{group: groups.Group{ID: uuid.New(), Name: "Mahila Mandal"}}
	router := newRouter(svc)

	payload := `{"name":"Mahila Mandal","monthlyContribution":500,"interestRate":2,"schedule":{"frequency":"MONTHLY","dayOfMonth":10}}`
	req := httptest.NewRequest(http.MethodPost, "/groups/", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateGroupRejectsBadFrequency(t *testing.T) {
	router := newRouter(&stubService{})
	payload := `{"name":"Mahila Mandal","schedule":{"frequency":"DAILY"}}`
	req := httptest.NewRequest(http.MethodPost, "/groups/", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveScheduleDefaults(t *testing.T) {
	router := newRouter(&stubService{})
	payload := `{"frequency":"MONTHLY"}`
	req := httptest.NewRequest(http.MethodPost, "/groups/resolve-schedule", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body scheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.DayOfMonth)
}

func TestResolveScheduleOutOfRangeDay(t *testing.T) {
	router := newRouter(&stubService{})
	payload := `{"frequency":"MONTHLY","dayOfMonth":32}`
	req := httptest.NewRequest(http.MethodPost, "/groups/resolve-schedule", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "dayOfMonth", body["field"])
}

func TestRegisterMember(t *testing.T) {
	router := newRouter(&stubService{})
	payload := `{"name":"Asha Devi","phone":"9876543210"}`
	req := httptest.NewRequest(http.MethodPost, "/members", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestRegisterMemberRequiresName(t *testing.T) {
	router := newRouter(&stubService{})
	req := httptest.NewRequest(http.MethodPost, "/members", bytes.NewReader([]byte(`{"phone":"9876543210"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrollRejectsBadMemberID(t *testing.T) {
	router := newRouter(&stubService{})
	payload := `{"memberId":"nope"}`
	req := httptest.NewRequest(http.MethodPost, "/groups/"+uuid.NewString()+"/members", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
