package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ledger-dashboard/internal/service"
)

// TestStartImport_InvalidJSON tests handling of malformed JSON
func TestStartImport_InvalidJSON(t *testing.T) {
	server := createTestServer(testServices())

	w := do(server, "POST", "/api/import", []byte("invalid json"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestListTransactions_Pagination tests that malformed pagination falls back to defaults
func TestListTransactions_Pagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantOffset int
		wantLimit  int
	}{
		{"defaults", "", 0, 0},
		{"explicit", "?offset=20&limit=10", 20, 10},
		{"non-numeric limit", "?limit=abc", 0, 0},
		{"negative values pass through", "?offset=-5&limit=-10", -5, -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			services := testServices()
			query := services.Query.(*mockQueryService)
			server := createTestServer(services)

			w := do(server, "GET", "/api/transactions"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			if query.lastInput.Offset != tt.wantOffset || query.lastInput.Limit != tt.wantLimit {
				t.Errorf("Expected offset=%d limit=%d, got %+v", tt.wantOffset, tt.wantLimit, query.lastInput)
			}
		})
	}
}

func TestListTransactions_Filters(t *testing.T) {
	services := testServices()
	query := services.Query.(*mockQueryService)
	query.result = &service.QueryResult{Total: 42}
	server := createTestServer(services)

	w := do(server, "GET", "/api/transactions?walletId=3&tokenFilter=USDC&searchQuery=abc1&sortOrder=asc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	in := query.lastInput
	if in.WalletID == nil || *in.WalletID != 3 || in.TokenFilter != "USDC" || in.SearchQuery != "abc1" || in.SortOrder != "asc" {
		t.Errorf("Filters not passed through: %+v", in)
	}

	var body map[string]interface{}
	decode(t, w, &body)
	if body["total"] != float64(42) {
		t.Errorf("Expected total 42, got %v", body["total"])
	}
}

func TestListTransactions_InvalidWalletID(t *testing.T) {
	w := do(createTestServer(testServices()), "GET", "/api/transactions?walletId=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestListTransactions_InternalErrorHidden(t *testing.T) {
	services := testServices()
	services.Query.(*mockQueryService).err = errors.New("pq: password authentication failed")
	w := do(createTestServer(services), "GET", "/api/transactions", nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("Internal error text leaked: %s", w.Body.String())
	}
}

func TestWalletTransactions_UsesPathID(t *testing.T) {
	services := testServices()
	query := services.Query.(*mockQueryService)
	server := createTestServer(services)

	do(server, "GET", "/api/wallets/5/transactions?limit=2", nil)
	if query.lastInput.WalletID == nil || *query.lastInput.WalletID != 5 || query.lastInput.Limit != 2 {
		t.Errorf("Expected wallet 5 limit 2, got %+v", query.lastInput)
	}

	w := do(server, "GET", "/api/wallets/zero/transactions", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestClearTransactions(t *testing.T) {
	w := do(createTestServer(testServices()), "DELETE", "/api/transactions", nil)
	var body map[string]int64
	decode(t, w, &body)
	if body["deleted"] != 3 {
		t.Errorf("Expected 3 deleted, got %v", body)
	}
}

func TestWalletEndpoints(t *testing.T) {
	services := testServices()
	wallets := services.Wallets.(*mockWalletService)
	server := createTestServer(services)

	w := do(server, "POST", "/api/wallets", []byte(`{"address":"0xabc","network":"ethereum"}`))
	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}

	w = do(server, "POST", "/api/wallets", []byte(`{"address":"dup","network":"ethereum"}`))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}

	w = do(server, "PATCH", "/api/wallets/7", []byte(`{"name":"Savings"}`))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = do(server, "DELETE", "/api/wallets/7", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if len(wallets.deleted) != 1 || wallets.deleted[0] != 7 {
		t.Errorf("Expected wallet 7 deleted, got %v", wallets.deleted)
	}

	w = do(server, "GET", "/api/wallets/1/balance", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	w = do(server, "GET", "/api/wallets/2/balance", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestAPIKeyEndpoints(t *testing.T) {
	server := createTestServer(testServices())

	w := do(server, "GET", "/api/api-keys", nil)
	if !strings.Contains(w.Body.String(), "ABCDEFGH...WXYZ") {
		t.Errorf("Expected masked key in listing, got %s", w.Body.String())
	}

	w = do(server, "POST", "/api/api-keys", []byte(`{"name":"main","network":"base","apiKey":"secret"}`))
	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}

	w = do(server, "DELETE", "/api/api-keys/2", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestExportTransactions(t *testing.T) {
	w := do(createTestServer(testServices()), "GET", "/api/export/transactions?walletId=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "transactions.csv") {
		t.Errorf("Expected attachment filename, got %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(w.Body.String(), "Time,Token,Type,From,To,Amount,Hash") {
		t.Errorf("Unexpected body %q", w.Body.String())
	}

	services := testServices()
	services.Export = &mockExportService{err: errors.New("boom")}
	w = do(createTestServer(services), "GET", "/api/export/transactions", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if w.Header().Get("Content-Disposition") != "" {
		t.Errorf("A failed export must not be sent as an attachment")
	}
}

func TestArtifactEndpoints(t *testing.T) {
	w := do(createTestServer(testServices()), "GET", "/api/export/artifacts", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without an archive, got %d", w.Code)
	}

	services := testServices()
	services.Archive = &mockArchive{objects: map[string]string{
		"0xabc-1/native_transfers_abc.csv": "blockNumber\n",
	}}
	server := createTestServer(services)

	w = do(server, "GET", "/api/export/artifacts", nil)
	if !strings.Contains(w.Body.String(), "native_transfers_abc.csv") {
		t.Errorf("Expected artifact in listing, got %s", w.Body.String())
	}

	w = do(server, "GET", "/api/export/artifacts/0xabc-1/native_transfers_abc.csv", nil)
	if w.Code != http.StatusOK || w.Body.String() != "blockNumber\n" {
		t.Errorf("Unexpected download: %d %q", w.Code, w.Body.String())
	}

	w = do(server, "GET", "/api/export/artifacts/0xabc-1/missing.csv", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = do(server, "GET", "/api/export/artifacts/0xabc-1/notes.txt", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestValidArtifactName(t *testing.T) {
	tests := map[string]bool{
		"a/b.csv":       true,
		"b.csv":         true,
		"a/../b.csv":    false,
		"/etc/x.csv":    false,
		"a//b.csv":      false,
		"a/b.csv.exe":   false,
		"../secret.csv": false,
	}
	for name, want := range tests {
		if got := validArtifactName(name); got != want {
			t.Errorf("validArtifactName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/transactions", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected burst of 2 then 429, got %v", codes)
	}

	req := httptest.NewRequest("GET", "/api/transactions", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Another client must have its own budget, got %d", w.Code)
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(limiterIdleTTL + time.Second)
	rl.getLimiter("b")

	if _, ok := rl.limiters["a"]; ok {
		t.Errorf("Idle limiter was not evicted")
	}
	if len(rl.limiters) != 1 {
		t.Errorf("Expected 1 limiter, got %d", len(rl.limiters))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestCompressionMiddleware(t *testing.T) {
	server := createTestServer(testServices())
	req := httptest.NewRequest("GET", "/api/wallets", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Expected gzip encoding")
	}
	gz, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Failed to open gzip body: %v", err)
	}
	body, _ := io.ReadAll(gz)
	if !strings.Contains(string(body), "0xabc") {
		t.Errorf("Unexpected decompressed body %q", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("Preflight must not reach the handler")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/import", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
}

func TestServerHandler_PreflightReachesCORS(t *testing.T) {
	server := createTestServer(testServices())
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/import", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected CORS headers")
	}
}
