package workspacehttp

import (
	"bytes"
	"errors"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgerdesk/internal/interpreter"
	"github.com/odyssey-erp/ledgerdesk/internal/ledgers"
	"github.com/odyssey-erp/ledgerdesk/internal/posting"
	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
	"github.com/odyssey-erp/ledgerdesk/internal/workspace"
)

type fixedModel struct {
	response string
}

func (m fixedModel) Complete(context.Context, interpreter.Request) (string, error) {
	return m.response, nil
}

type staticDirectory struct {
	list []ledgers.Ledger
}

func (d staticDirectory) List(context.Context) ([]ledgers.Ledger, error) { return d.list, nil }
func (d staticDirectory) Invalidate(context.Context) error               { return nil }

func newServer(t *testing.T, modelResponse string) http.Handler {
	t.Helper()
	gateway, _ := posting.NewMemoryGateway(nil)
	return newServerWithGateway(t, modelResponse, gateway)
}

func newServerWithGateway(t *testing.T, modelResponse string, gateway posting.Gateway) http.Handler {
	t.Helper()
	engine := voucher.NewEngine(tax.DefaultTable(), "IN")
	svc := workspace.NewService(workspace.Config{
		Engine:      engine,
		Interpreter: interpreter.New(fixedModel{response: modelResponse}, engine, interpreter.Options{Timeout: time.Second}, nil),
		Gateway:     gateway,
		Directory: staticDirectory{list: []ledgers.Ledger{
			{ID: 1, Name: "Cash"},
			{ID: 2, Name: "Rent"},
		}},
	})
	r := chi.NewRouter()
	NewHandler(svc, nil).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeSession(t *testing.T, rr *httptest.ResponseRecorder) workspace.Session {
	t.Helper()
	var sess workspace.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	return sess
}

func TestCreateEditAndPostJournal(t *testing.T) {
	h := newServer(t, "")

	rr := do(t, h, http.MethodPost, "/api/vouchers", map[string]any{"voucher_type": "Journal"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sess := decodeSession(t, rr)
	base := "/api/vouchers/" + sess.Draft.ID.String()
	assert.NotEmpty(t, rr.Header().Get("ETag"))

	rr = do(t, h, http.MethodPost, base+"/actions", map[string]any{
		"expected_version": 0,
		"actions": []map[string]any{
			{"type": "update_manual_entry", "index": 0, "ledger": map[string]any{"name": "Rent"}, "debit": "1000"},
			{"type": "add_manual_entry", "ledger": map[string]any{"name": "cash"}, "credit": "1000"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, base+"/post", nil, map[string]string{"Idempotency-Key": "k-1"})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "Unresolved Ledgers")

	rr = do(t, h, http.MethodPost, base+"/resolve", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, base+"/journal", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, base+"/post", nil, map[string]string{"Idempotency-Key": "k-1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	posted := decodeSession(t, rr)
	assert.Equal(t, voucher.StatusPosted, posted.Draft.Status)

	rr = do(t, h, http.MethodPost, base+"/post", nil, map[string]string{"Idempotency-Key": "k-1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decodeSession(t, rr).Receipt.Replayed)
}

func TestUnbalancedPostReturnsDifference(t *testing.T) {
	h := newServer(t, "")
	sess := decodeSession(t, do(t, h, http.MethodPost, "/api/vouchers", map[string]any{"voucher_type": "journal"}, nil))
	base := "/api/vouchers/" + sess.Draft.ID.String()

	rr := do(t, h, http.MethodPost, base+"/actions", map[string]any{
		"actions": []map[string]any{
			{"type": "update_manual_entry", "index": 0, "ledger": map[string]any{"id": 2, "name": "Rent"}, "debit": "500"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, base+"/post", map[string]any{"idempotency_key": "k"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var problem struct {
		Title  string            `json:"title"`
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "Unbalanced Voucher", problem.Title)
	assert.Equal(t, "500", problem.Errors["difference"])
}

func TestActionErrorsMapToProblems(t *testing.T) {
	h := newServer(t, "")
	sess := decodeSession(t, do(t, h, http.MethodPost, "/api/vouchers", map[string]any{"voucher_type": "journal"}, nil))
	base := "/api/vouchers/" + sess.Draft.ID.String()

	rr := do(t, h, http.MethodPost, base+"/actions", map[string]any{
		"actions": []map[string]any{{"type": "update_manual_entry", "index": 0, "debit": "10", "credit": "10"}},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "manual_entries[0]")

	rr = do(t, h, http.MethodPost, base+"/actions", map[string]any{
		"expected_version": 9,
		"actions":          []map[string]any{{"type": "reset_lines"}},
	}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, base+"/actions", map[string]any{
		"actions": []map[string]any{{"type": "explode"}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/vouchers/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/vouchers/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = do(t, h, http.MethodPost, "/api/vouchers", map[string]any{"voucher_type": "barter"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCommandAppliesPatch(t *testing.T) {
	h := newServer(t, `{"voucherType":"journal","amount":1000,"narration":"March rent",
"entries":[{"ledger":"rent","amount":1000,"type":"debit"},{"ledger":"Cash","amount":1000,"type":"credit"}]}`)
	sess := decodeSession(t, do(t, h, http.MethodPost, "/api/vouchers", map[string]any{"voucher_type": "journal"}, nil))
	base := "/api/vouchers/" + sess.Draft.ID.String()

	rr := do(t, h, http.MethodPost, base+"/commands", map[string]any{"text": "paid rent 1000 in cash"}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decodeSession(t, rr)
	assert.Equal(t, interpreter.StateApplied, got.Conversation.State)
	assert.True(t, got.Draft.Totals.ReadyToPost())

	rr = do(t, h, http.MethodPost, base+"/commands/answer", map[string]any{"text": "rent"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPost, base+"/post", nil, nil)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestTaxSplitEndpoint(t *testing.T) {
	h := newServer(t, "")
	rr := do(t, h, http.MethodPost, "/api/tax/split", map[string]any{
		"company_region":  "MH",
		"place_of_supply": "MH",
		"lines":           []map[string]any{{"amount": "500", "rate": "18"}},
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out struct {
		Entries []tax.Entry `json:"entries"`
		Total   string      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Entries, 2)
	assert.Equal(t, "CGST", out.Entries[0].Kind)
	assert.Equal(t, "90", out.Total)

	rr = do(t, h, http.MethodGet, "/api/voucher-types", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var types []voucherTypeView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &types))
	assert.Len(t, types, 10)
}

type failingGateway struct {
	err error
}

func (g failingGateway) Post(context.Context, posting.Request) (posting.Receipt, error) {
	return posting.Receipt{}, g.err
}

func TestPersistenceFailureIsReportedVerbatim(t *testing.T) {
	h := newServerWithGateway(t, "", failingGateway{err: &posting.PersistenceError{Op: "post voucher", Err: errors.New("connection reset by peer")}})

	rr := do(t, h, http.MethodPost, "/api/vouchers", map[string]any{"voucher_type": "journal"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	base := "/api/vouchers/" + decodeSession(t, rr).Draft.ID.String()

	rr = do(t, h, http.MethodPost, base+"/actions", map[string]any{
		"actions": []map[string]any{
			{"type": "update_manual_entry", "index": 0, "ledger": map[string]any{"name": "Rent"}, "debit": "100"},
			{"type": "add_manual_entry", "ledger": map[string]any{"name": "Cash"}, "credit": "100"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, h, http.MethodPost, base+"/resolve", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, base+"/post", nil, map[string]string{"Idempotency-Key": "k-1"})
	require.Equal(t, http.StatusBadGateway, rr.Code, rr.Body.String())
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "Posting Failed", problem["title"])
	assert.Equal(t, "posting: post voucher: connection reset by peer", problem["detail"])
	assert.Equal(t, map[string]any{"op": "post voucher"}, problem["errors"])

	rr = do(t, h, http.MethodPost, base+"/actions", map[string]any{
		"actions": []map[string]any{{"type": "set_header", "narration": "still editable"}},
	}, nil)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}
