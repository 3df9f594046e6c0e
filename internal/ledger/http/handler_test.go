package ledgerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/saheli-shg/saheli/internal/ledger"
	"github.com/saheli-shg/saheli/internal/shared"
)

type stubService struct {
	period     ledger.Period
	rows       []ledger.MemberContribution
	row        ledger.MemberContribution
	snap       ledger.ClosedPeriodSnapshot
	err        error
	lastInput  ledger.ContributionInput
	closeInput ledger.CloseInput
}

func (s *stubService) EnsureOpenPeriod(ctx context.Context, groupID uuid.UUID) (ledger.Period, error) {
	return s.period, s.err
}

func (s *stubService) CurrentPeriod(ctx context.Context, groupID uuid.UUID) (ledger.Period, []ledger.MemberContribution, error) {
	return s.period, s.rows, s.err
}

func (s *stubService) RecordContribution(ctx context.Context, periodID uuid.UUID, in ledger.ContributionInput) (ledger.MemberContribution, error) {
	s.lastInput = in
	return s.row, s.err
}

func (s *stubService) ClosePeriod(ctx context.Context, periodID uuid.UUID, in ledger.CloseInput) (ledger.ClosedPeriodSnapshot, error) {
	s.closeInput = in
	return s.snap, s.err
}

func newRouter(svc *stubService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(logger, svc).MountRoutes(r)
	return r
}

func TestEnsureOpenPeriodEndpoint(t *testing.T) {
	svc := &stubService{period: ledger.Period{ID: uuid.New(), GroupID: uuid.New(), Seq: 1}}
	router := newRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/groups/"+svc.period.GroupID.String()+"/periods/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "OPEN", body["status"])
	require.EqualValues(t, 1, body["seq"])
}

func TestEnsureOpenPeriodRejectsBadID(t *testing.T) {
	router := newRouter(&stubService{})
	req := httptest.NewRequest(http.MethodPost, "/groups/not-a-uuid/periods/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordContributionEndpoint(t *testing.T) {
	memberID := uuid.New()
	svc := &stubService{row: ledger.MemberContribution{ID: uuid.New(), MemberID: memberID, Status: ledger.StatusPaid}}
	router := newRouter(svc)

	payload := map[string]any{"memberId": memberID.String(), "contributionPaid": 500.0, "interestPaid": 40.0}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/periods/"+uuid.NewString()+"/contributions", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, memberID, svc.lastInput.MemberID)
	require.InDelta(t, 500, svc.lastInput.ContributionPaid, 0.001)
}

func TestRecordContributionRejectsNegativeAmount(t *testing.T) {
	router := newRouter(&stubService{})
	payload := map[string]any{"memberId": uuid.NewString(), "contributionPaid": -5.0}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/periods/"+uuid.NewString()+"/contributions", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordContributionOnClosedPeriod(t *testing.T) {
	router := newRouter(&stubService{err: shared.ErrPeriodClosed})
	payload := map[string]any{"memberId": uuid.NewString(), "contributionPaid": 100.0}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/periods/"+uuid.NewString()+"/contributions", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestClosePeriodEndpoint(t *testing.T) {
	closedAt := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	svc := &stubService{snap: ledger.ClosedPeriodSnapshot{
		Period:     ledger.Period{ID: uuid.New(), Seq: 1, ClosedAt: &closedAt},
		NextPeriod: ledger.Period{ID: uuid.New(), Seq: 2},
	}}
	router := newRouter(svc)

	ctx := shared.ContextWithCaller(context.Background(), shared.Caller{ID: "key-1", Name: "treasurer"})
	raw := []byte(`{"expenses": 100}`)
	req := httptest.NewRequest(http.MethodPost, "/periods/"+uuid.NewString()+"/close", bytes.NewReader(raw)).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "key-1", svc.closeInput.ActorID)
	require.InDelta(t, 100, svc.closeInput.Expenses, 0.001)

	var body closeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "CLOSED", body.Period.Status)
	require.Equal(t, "OPEN", body.NextPeriod.Status)
}

func TestClosePeriodConflict(t *testing.T) {
	router := newRouter(&stubService{err: shared.ErrCloseInProgress})
	req := httptest.NewRequest(http.MethodPost, "/periods/"+uuid.NewString()+"/close", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}
