package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgerdesk/internal/observability"
	"github.com/odyssey-erp/ledgerdesk/internal/posting"
	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
	"github.com/odyssey-erp/ledgerdesk/internal/workspace"
	workspacehttp "github.com/odyssey-erp/ledgerdesk/internal/workspace/http"
	"github.com/odyssey-erp/ledgerdesk/jobs"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	engine := voucher.NewEngine(tax.DefaultTable(), "IN")
	gateway, _ := posting.NewMemoryGateway(nil)
	metrics := observability.NewMetrics()
	svc := workspace.NewService(workspace.Config{Engine: engine, Gateway: gateway, Metrics: metrics})
	return NewRouter(RouterParams{
		Config:           &Config{AppEnv: "development"},
		WorkspaceHandler: workspacehttp.NewHandler(svc, nil),
		JobHandler:       jobs.NewHandler(nil, nil),
		Metrics:          metrics,
	})
}

func TestRouterServesHealthAndSecurityHeaders(t *testing.T) {
	h := newTestRouter(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestRouterMountsVoucherAPIAndMetrics(t *testing.T) {
	h := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/voucher-types", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ledgerdesk_http_requests_total")
}
