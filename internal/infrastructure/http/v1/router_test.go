package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/numerator"
	"txcalc/internal/domain"
	"txcalc/internal/domain/dispatch"
	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/fetcher"
	"txcalc/internal/domain/handlers"
	"txcalc/internal/domain/session"
	"txcalc/internal/domain/transaction"
	"txcalc/internal/infrastructure/http/v1/dto"
	"txcalc/internal/infrastructure/storage/memory"
	"txcalc/internal/metadata"
	"txcalc/pkg/logger"
)

var noRemote = fetcher.InvokerFunc(func(_ context.Context, method string, _ map[string]any) (fetcher.Response, error) {
	return fetcher.Response{}, errors.New("unexpected call to " + method)
})

type testServer struct {
	router http.Handler
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	types := doctype.Standard()
	reg := dispatch.NewRegistry()
	f := fetcher.New(noRemote)
	require.NoError(t, handlers.Register(reg, types, f))

	calc := transaction.NewCalculator(transaction.DefaultPrecision())
	store := memory.New()
	sessions := session.NewManager(session.Deps{
		Types:     types,
		Registry:  reg,
		Calc:      calc,
		Fetcher:   f,
		Store:     store,
		Numerator: numerator.NewMemory(),
	}, session.Config{})
	t.Cleanup(func() { _ = sessions.Shutdown(context.Background()) })

	router := NewRouter(RouterConfig{
		Sessions:         sessions,
		Calc:             calc,
		Store:            store,
		MetadataRegistry: metadata.NewRegistry(types),
		Logger:           logger.Nop(),
		Version:          "test",
	})
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

var draftInvoice = map[string]any{
	"doctype":          doctype.SalesInvoice,
	"company":          "Acme",
	"customer":         "Globex",
	"company_currency": "USD",
	"currency":         "USD",
	"posting_date":     "2026-10-01",
	"items": []map[string]any{
		{"item_code": "WIDGET", "qty": 10, "rate": 100, "conversion_factor": 1},
	},
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/health/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[map[string]any](t, w)
	assert.Equal(t, "test", info["version"])
	assert.EqualValues(t, 0, info["sessions"])
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"document": draftInvoice})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.SessionResponse](t, w)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, doctype.SalesInvoice, created.DocType)
	assertDec(t, "1000", created.Document.GrandTotal)

	base := "/api/v1/sessions/" + created.ID

	w = s.do(t, http.MethodPost, base+"/edits", map[string]any{"field": "items.qty", "row": 0, "value": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decode[dto.SessionResponse](t, w)
	assert.Nil(t, edited.Error)
	assertDec(t, "300", edited.Document.GrandTotal)
	assert.Greater(t, edited.Version, created.Version)

	w = s.do(t, http.MethodPost, base+"/edits", map[string]any{"field": "items.qty", "row": 0, "value": -1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	kept := decode[dto.SessionResponse](t, w)
	require.NotNil(t, kept.Error)
	assertDec(t, "-1", kept.Document.Items[0].Qty)

	w = s.do(t, http.MethodPost, base+"/edits", map[string]any{"field": "items.qty", "row": 0, "value": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, base+"/settle", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, decode[dto.SessionResponse](t, w).Pending)

	w = s.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode[dto.SessionResponse](t, w)
	assert.Equal(t, "SINV-2026-00001", saved.Document.Name)

	w = s.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, base+"/edits", map[string]any{"field": "items.qty", "row": 0, "value": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeDocumentSubmitted, decode[dto.ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodGet, "/api/v1/documents?doctype="+url.QueryEscape(doctype.SalesInvoice), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[struct {
		Items      []domain.DocumentSummary `json:"items"`
		TotalCount int64                    `json:"totalCount"`
	}](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "SINV-2026-00001", list.Items[0].Name)
	assertDec(t, "200", list.Items[0].GrandTotal)

	w = s.do(t, http.MethodGet, "/api/v1/documents/"+url.PathEscape(doctype.SalesInvoice)+"/SINV-2026-00001", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/load", map[string]any{"doctype": doctype.SalesInvoice, "name": "SINV-2026-00001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loaded := decode[dto.SessionResponse](t, w)
	assert.Equal(t, "SINV-2026-00001", loaded.Document.Name)
}

func TestSessionErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{
			name: "missing doctype", method: http.MethodPost, path: "/api/v1/sessions",
			body: map[string]any{}, wantCode: http.StatusBadRequest, wantErr: apperror.CodeValidation,
		},
		{
			name: "unknown doctype", method: http.MethodPost, path: "/api/v1/sessions",
			body: map[string]any{"doctype": "Timesheet"}, wantCode: http.StatusNotFound, wantErr: apperror.CodeNotFound,
		},
		{
			name: "unknown session", method: http.MethodPost, path: "/api/v1/sessions/nope/calculate",
			wantCode: http.StatusNotFound, wantErr: apperror.CodeNotFound,
		},
		{
			name: "unmapped target", method: http.MethodPost, path: "/api/v1/sessions/mapped",
			body:     map[string]any{"source_doctype": doctype.SalesInvoice, "source_name": "SINV-1", "target_doctype": doctype.Quotation},
			wantCode: http.StatusUnprocessableEntity, wantErr: apperror.CodeBusinessRule,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantErr, decode[dto.ErrorResponse](t, w).Code)
		})
	}

	w := s.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"doctype": doctype.SalesOrder, "company": "Acme"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[dto.SessionResponse](t, w).ID

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/edits", map[string]any{"field": "items.colour", "value": "red"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/settle?timeout=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalculateDocument(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/calculate", map[string]any{"document": draftInvoice})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	doc := decode[transaction.Document](t, w)
	assertDec(t, "1000", doc.GrandTotal)
	assert.Equal(t, 1, doc.Items[0].Idx)
}

func TestMetadata(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	defs := decode[[]metadata.EntityDef](t, w)
	assert.Len(t, defs, len(doctype.Standard().List()))

	w = s.do(t, http.MethodGet, "/api/v1/meta/"+url.PathEscape(doctype.PurchaseOrder), nil)
	require.Equal(t, http.StatusOK, w.Code)
	def := decode[metadata.EntityDef](t, w)
	assert.Equal(t, "PO", def.Prefix)

	w = s.do(t, http.MethodGet, "/api/v1/meta/Timesheet", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
