package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bank-risk-audit/internal/audit"
	"bank-risk-audit/internal/auth"
	"bank-risk-audit/internal/authz"
	"bank-risk-audit/internal/config"
	"bank-risk-audit/internal/httpapi"
	"bank-risk-audit/internal/metrics"
	"bank-risk-audit/internal/notify"
	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/reporting"
	"bank-risk-audit/internal/review"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router   *gin.Engine
	svc      *review.Service
	auditLog *audit.MemoryRepo
	junior   review.Auditor
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		JWTIssuer:       "bank-risk-audit",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	history := notify.NewHistory(notify.NewMemoryNotifier(), 10)
	svc := review.NewService(review.NewMemoryRepo(),
		review.WithAuthorizer(authz.New(authz.Options{ExactStage: true, Logger: log})),
		review.WithNotifier(history),
		review.WithMetrics(m),
		review.WithLogger(log),
	)
	auditLog := audit.NewMemoryRepo()
	auditSvc := audit.NewService(auditLog)

	policy, err := rbac.NewPolicy(rbac.PolicyConfig{
		Logger: log,
		OnDeny: func(ctx context.Context, s auth.Session, action rbac.Action, reason string) {
			m.IncAccessDenial(string(action))
			_ = auditSvc.LogAccessDenied(ctx, s.UserID, s.Role, string(action), reason)
		},
	})
	require.NoError(t, err)

	junior, err := svc.CreateAuditor(context.Background(), review.AuditorInput{Name: "Jun", Role: rbac.RoleAuditorJunior})
	require.NoError(t, err)

	r := newRouter(routeDeps{
		log:      log,
		auth:     mgr,
		policy:   policy,
		registry: reg,
		handlers: httpapi.Handlers{
			Auth:          mgr,
			Review:        svc,
			Reporting:     reporting.NewService(svc),
			Audit:         auditSvc,
			Notifications: history,
			IssueTokens:   true,
		},
	})
	return &apiFixture{router: r, svc: svc, auditLog: auditLog, junior: junior}
}

func (f *apiFixture) call(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (f *apiFixture) token(t *testing.T, userID string, role rbac.Role) string {
	t.Helper()
	w, out := f.call(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"user_id": userID, "role": role})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tok, _ := out["access_token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newAPIFixture(t)

	w, out := f.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])

	w, _ = f.call(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newAPIFixture(t)
	w, _ := f.call(t, http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.call(t, http.MethodGet, "/v1/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenFlow_SubmitAndClaim(t *testing.T) {
	f := newAPIFixture(t)
	customer := f.token(t, "cust-1", rbac.RoleUser)
	auditor := f.token(t, f.junior.ID, rbac.RoleAuditorJunior)

	w, out := f.call(t, http.MethodPost, "/v1/assessments", customer, map[string]any{
		"investment_amount": "2500.50",
		"risk_score":        40,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	taskID := out["task"].(map[string]any)["id"].(string)

	w, _ = f.call(t, http.MethodPost, "/v1/tasks/"+taskID+"/claim", auditor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = f.call(t, http.MethodGet, "/v1/tasks/mine", auditor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), taskID)
}

func TestCustomerCannotClaim(t *testing.T) {
	f := newAPIFixture(t)
	customer := f.token(t, "cust-1", rbac.RoleUser)

	w, out := f.call(t, http.MethodPost, "/v1/assessments", customer, map[string]any{
		"investment_amount": "100",
		"risk_score":        10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	taskID := out["task"].(map[string]any)["id"].(string)

	w, out = f.call(t, http.MethodPost, "/v1/tasks/"+taskID+"/claim", customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_ROLE", out["code"])

	events := f.auditLog.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeAccessDenied, events[0].Type)
	assert.Equal(t, "cust-1", events[0].ActorID)
	assert.Equal(t, string(rbac.ActionTaskClaim), events[0].Action)

	task, err := f.svc.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, review.TaskPending, task.Status)
}

func TestAuditorTokenRequiresKnownAuditor(t *testing.T) {
	f := newAPIFixture(t)
	w, _ := f.call(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"user_id": "ghost", "role": rbac.RoleAuditorSenior})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueIsAuditorOnly(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.token(t, "admin-1", rbac.RoleAdmin)

	w, out := f.call(t, http.MethodGet, "/v1/tasks/queue", admin, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_ROLE", out["code"])

	w, _ = f.call(t, http.MethodGet, "/v1/auditors", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditEventsAdminOnly(t *testing.T) {
	f := newAPIFixture(t)
	auditor := f.token(t, f.junior.ID, rbac.RoleAuditorJunior)
	admin := f.token(t, "admin-1", rbac.RoleAdmin)

	w, _ := f.call(t, http.MethodGet, "/v1/audit/events", auditor, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.call(t, http.MethodGet, "/v1/audit/events", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
}

func (f *apiFixture) pair(t *testing.T, userID string, role rbac.Role) (access, refresh string) {
	t.Helper()
	w, out := f.call(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"user_id": userID, "role": role})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	access, _ = out["access_token"].(string)
	refresh, _ = out["refresh_token"].(string)
	require.NotEmpty(t, refresh)
	return access, refresh
}

func TestRefreshIssuesNewPair(t *testing.T) {
	f := newAPIFixture(t)
	_, refresh := f.pair(t, "cust-1", rbac.RoleUser)

	w, out := f.call(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	access, _ := out["access_token"].(string)
	require.NotEmpty(t, access)

	w, out = f.call(t, http.MethodGet, "/v1/me", access, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cust-1", out["user_id"])
	assert.Equal(t, string(rbac.RoleUser), out["role"])
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAPIFixture(t)
	access, _ := f.pair(t, "cust-1", rbac.RoleUser)

	w, _ := f.call(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.call(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshRefusesDeactivatedAuditor(t *testing.T) {
	f := newAPIFixture(t)
	_, refresh := f.pair(t, f.junior.ID, rbac.RoleAuditorJunior)

	w, _ := f.call(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, err := f.svc.DeactivateAuditor(context.Background(), f.junior.ID)
	require.NoError(t, err)

	w, out := f.call(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(review.CodeAuditorInactive), out["code"])
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	f := newAPIFixture(t)
	_, refresh := f.pair(t, f.junior.ID, rbac.RoleAuditorJunior)

	senior := rbac.RoleAuditorSenior
	_, err := f.svc.UpdateAuditor(context.Background(), f.junior.ID, review.AuditorPatch{Role: &senior})
	require.NoError(t, err)

	w, out := f.call(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	access, _ := out["access_token"].(string)

	w, out = f.call(t, http.MethodGet, "/v1/me", access, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(senior), out["role"])
}

func TestNotificationsAreScopedToCustomer(t *testing.T) {
	f := newAPIFixture(t)
	customer := f.token(t, "cust-1", rbac.RoleUser)
	other := f.token(t, "cust-2", rbac.RoleUser)
	auditor := f.token(t, f.junior.ID, rbac.RoleAuditorJunior)
	admin := f.token(t, "admin-1", rbac.RoleAdmin)

	w, out := f.call(t, http.MethodPost, "/v1/assessments", customer, map[string]any{
		"investment_amount": "900",
		"risk_score":        55,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	taskID := out["task"].(map[string]any)["id"].(string)

	w, _ = f.call(t, http.MethodPost, "/v1/tasks/"+taskID+"/claim", auditor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = f.call(t, http.MethodPost, "/v1/tasks/"+taskID+"/complete", auditor, map[string]any{
		"decision": "RETURN",
		"comments": "missing income proof",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, out = f.call(t, http.MethodGet, "/v1/notifications?customer_id=cust-2", customer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cust-1", out["customer_id"])
	list := out["notifications"].([]any)
	require.Len(t, list, 1)
	event := list[0].(map[string]any)
	assert.Equal(t, string(notify.EventAssessmentReturned), event["type"])
	assert.Equal(t, "missing income proof", event["comments"])

	w, out = f.call(t, http.MethodGet, "/v1/notifications", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["notifications"])

	w, _ = f.call(t, http.MethodGet, "/v1/notifications", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = f.call(t, http.MethodGet, "/v1/notifications?customer_id=cust-1", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, out["notifications"], 1)
}
