package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/domain/doctype"
	"txcalc/internal/domain/policy"
	"txcalc/pkg/logger"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	p := cfg.Precision()
	assert.Equal(t, int32(2), p.Amount)
	assert.Equal(t, int32(6), p.Qty)
	assert.True(t, p.RoundingFraction.Equal(decimal.NewFromInt(1)))
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("FRAPPE_URL", "https://erp.example.com")
	t.Setenv("FRAPPE_API_KEY", "key")
	t.Setenv("FRAPPE_API_SECRET", "secret")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("AMOUNT_PRECISION", "3")
	t.Setenv("ROUNDING_FRACTION", "0.05")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, int32(3), cfg.Precision().Amount)
	assert.True(t, cfg.RoundingFraction.Equal(decimal.RequireFromString("0.05")))
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown env", key: "APP_ENV", value: "qa"},
		{name: "port out of range", key: "APP_PORT", value: "70000"},
		{name: "bad log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "bad url", key: "FRAPPE_URL", value: "not a url"},
		{name: "key without secret", key: "FRAPPE_API_KEY", value: "key"},
		{name: "precision too large", key: "AMOUNT_PRECISION", value: "20"},
		{name: "zero rounding fraction", key: "ROUNDING_FRACTION", value: "0"},
		{name: "not a number", key: "QTY_PRECISION", value: "six"},
		{name: "bad frozen date", key: "ACCOUNTS_FROZEN_UNTIL", value: "30/06/2026"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfig_PeriodPolicy(t *testing.T) {
	cfg := &Config{StrictPeriod: true}
	assert.IsType(t, policy.OpenPolicy{}, cfg.PeriodPolicy())

	cfg.AccountsFrozenUntil = "2026-06-30"
	p := cfg.PeriodPolicy()
	assert.IsType(t, &policy.StrictPolicy{}, p)
	assert.Equal(t, "2026-06-30", p.ClosedUntil().Format("2006-01-02"))

	cfg.StrictPeriod = false
	assert.IsType(t, &policy.FlexiblePolicy{}, cfg.PeriodPolicy())
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestNew_InMemory(t *testing.T) {
	cfg := newTestConfig(t)
	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	body, _ := json.Marshal(map[string]any{"doctype": doctype.Quotation, "company": "Acme"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 1, a.Sessions().Len())

	w = httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/cache/flush", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNew_WithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := newTestConfig(t)
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache":"healthy"`)

	w = httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/cache/flush", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func createSession(t *testing.T, h http.Handler, doc map[string]any) string {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"document": doc})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func TestNew_Policies(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`
rules:
  - name: customer-required
    doctypes: [Sales Invoice]
    on: save
    expr: doc.customer != ""
    message: Customer is mandatory.
`), 0o600))

	cfg := newTestConfig(t)
	cfg.AccountsFrozenUntil = "2026-06-30"
	cfg.RulesFile = rules
	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	item := []map[string]any{{"item_code": "WIDGET", "qty": "1", "rate": "10", "conversion_factor": "1"}}
	tests := []struct {
		name     string
		doc      map[string]any
		wantCode int
		wantErr  string
	}{
		{
			name:     "frozen period",
			doc:      map[string]any{"doctype": "Sales Invoice", "company": "Acme", "currency": "USD", "company_currency": "USD", "customer": "Globex", "posting_date": "2026-06-01", "items": item},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "PERIOD_CLOSED",
		},
		{
			name:     "rule violation",
			doc:      map[string]any{"doctype": "Sales Invoice", "company": "Acme", "currency": "USD", "company_currency": "USD", "posting_date": "2026-10-01", "items": item},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "Customer is mandatory.",
		},
		{
			name:     "saved",
			doc:      map[string]any{"doctype": "Sales Invoice", "company": "Acme", "currency": "USD", "company_currency": "USD", "customer": "Globex", "posting_date": "2026-10-01", "items": item},
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := createSession(t, a.Handler(), tt.doc)
			w := httptest.NewRecorder()
			a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/save", nil))
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Contains(t, w.Body.String(), tt.wantErr)
			}
		})
	}
}

func TestNew_BadRulesFile(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestNew_BackendDown(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AppPort = 18080 + int(time.Now().UnixNano()%1000)
	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
