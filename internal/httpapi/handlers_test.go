package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retailhub/backend/internal/service"
	"retailhub/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, 0)
	auth := NewAuthManager("test-secret-key-that-is-long-enough", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, api *API, email string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d (body: %s)", email, rec.Code, rec.Body.String())
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body.Token == "" {
		t.Fatal("expected token in login response")
	}
	return body.Token
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(map[string]string{
		"email":    "master@retailhub.test",
		"password": "master123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Token string `json:"token"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Token == "" {
		t.Fatal("expected token in response")
	}
	if body.User.Role != "master" {
		t.Fatalf("expected master role, got %s", body.User.Role)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(map[string]string{
		"email":    "master@retailhub.test",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestMissingBearerTokenRejected(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["msg"] == nil || body["msg"] == "" {
		t.Fatalf("expected msg key in error body, got %v", body)
	}
}

func TestAuthMeReflectsStoreState(t *testing.T) {
	api := newTestAPI(t)
	workerToken := loginAs(t, api, "worker@retailhub.test", "worker123")
	masterToken := loginAs(t, api, "master@retailhub.test", "master123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/auth/me", workerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var me struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if me.User.ID != "usr-worker" {
		t.Fatalf("unexpected user: %+v", me.User)
	}

	// Deactivating the worker kills the still-valid token.
	rec = doJSON(t, api, http.MethodPut, "/api/v1/users/usr-worker/toggle-active", masterToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle-active: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/auth/me", workerToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated user, got %d", rec.Code)
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	workerToken := loginAs(t, api, "worker@retailhub.test", "worker123")
	adminToken := loginAs(t, api, "admin@retailhub.test", "admin123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", workerToken, map[string]any{
		"product_id": "prd-dish-soap",
		"quantity":   2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale struct {
			ID         string `json:"id"`
			TotalCents int64  `json:"total_cents"`
		} `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if created.Sale.TotalCents != 78000 {
		t.Fatalf("unexpected total: %d", created.Sale.TotalCents)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", workerToken, map[string]any{
		"product_id": "prd-dish-soap",
		"quantity":   1000,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversell, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "only 58 available") {
		t.Fatalf("expected remaining stock in oversell message, got %s", rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPut, "/api/v1/sales/"+created.Sale.ID+"/status", adminToken, map[string]string{
		"status": "cancelled",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 cancelling sale, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Workers may not change sale status.
	rec = doJSON(t, api, http.MethodPut, "/api/v1/sales/"+created.Sale.ID+"/status", workerToken, map[string]string{
		"status": "completed",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for worker, got %d", rec.Code)
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	workerToken := loginAs(t, api, "worker@retailhub.test", "worker123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", workerToken, map[string]any{
		"product_id": "prd-dish-soap",
		"quantity":   1,
		"discount":   50,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestWorkerCannotAccessMasterDashboard(t *testing.T) {
	api := newTestAPI(t)
	workerToken := loginAs(t, api, "worker@retailhub.test", "worker123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/dashboard/master", workerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestWorkerCannotCreateProduct(t *testing.T) {
	api := newTestAPI(t)
	workerToken := loginAs(t, api, "worker@retailhub.test", "worker123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", workerToken, map[string]any{
		"name":        "Contraband",
		"price_cents": 1000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStockRequestFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	workerToken := loginAs(t, api, "worker@retailhub.test", "worker123")
	adminToken := loginAs(t, api, "admin@retailhub.test", "admin123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stock-requests", workerToken, map[string]any{
		"product_id": "prd-cooking-oil",
		"type":       "refill",
		"quantity":   10,
		"reason":     "low shelf stock",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		StockRequest struct {
			ID string `json:"id"`
		} `json:"stock_request"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	rec = doJSON(t, api, http.MethodPut, "/api/v1/stock-requests/"+created.StockRequest.ID+"/status", adminToken, map[string]string{
		"status": "approved",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resolved struct {
		StockRequest struct {
			Status string `json:"status"`
		} `json:"stock_request"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resolved); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resolved.StockRequest.Status != "approved" {
		t.Fatalf("expected approved, got %s", resolved.StockRequest.Status)
	}

	// Resolving twice conflicts with the pending-only rule.
	rec = doJSON(t, api, http.MethodPut, "/api/v1/stock-requests/"+created.StockRequest.ID+"/status", adminToken, map[string]string{
		"status": "rejected",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on double resolve, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestBranchReportCSVExport(t *testing.T) {
	api := newTestAPI(t)
	workerToken := loginAs(t, api, "worker@retailhub.test", "worker123")
	adminToken := loginAs(t, api, "admin@retailhub.test", "admin123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", workerToken, map[string]any{
		"product_id": "prd-rice-5kg",
		"quantity":   1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed sale: expected 201, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/reports/branch/export", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	body := rec.Body.String()
	if !bytes.Contains([]byte(body), []byte("summary,branch_id,br-central")) {
		t.Fatalf("csv missing branch summary: %s", body)
	}
	if !bytes.Contains([]byte(body), []byte(fmt.Sprintf("summary,revenue_cents,%d", 640000))) {
		t.Fatalf("csv missing revenue line: %s", body)
	}
}

func TestAuditLogsMasterOnly(t *testing.T) {
	api := newTestAPI(t)
	adminToken := loginAs(t, api, "admin@retailhub.test", "admin123")
	masterToken := loginAs(t, api, "master@retailhub.test", "master123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/audit-logs", adminToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/audit-logs", masterToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for master, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
