package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
	"github.com/dukerupert/cloudlicensepro/internal/config"
	"github.com/dukerupert/cloudlicensepro/internal/database"
)

const testSecret = "test-secret"

type testEnv struct {
	t      *testing.T
	server *httptest.Server
	tokens *auth.TokenVerifier
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		BaseURL:         "http://localhost",
		JWTSecret:       testSecret,
		RateLimitRPS:    1000,
		RateLimitBurst:  1000,
		RateLimitIdle:   time.Minute,
		ValidateTimeout: 5 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(db, cfg, logger).Router())
	t.Cleanup(srv.Close)

	return &testEnv{t: t, server: srv, tokens: auth.NewTokenVerifier(testSecret, "")}
}

func (e *testEnv) token(userID, role string) string {
	e.t.Helper()
	tok, err := e.tokens.Issue(auth.AuthContext{UserID: userID, Role: role}, time.Hour)
	if err != nil {
		e.t.Fatalf("issue token: %v", err)
	}
	return tok
}

// do sends body as JSON and decodes the response into out when non-nil.
func (e *testEnv) do(method, path, token string, body, out any) *http.Response {
	e.t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			e.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)
	var body map[string]string
	resp := env.do(http.MethodGet, "/health", "", nil, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupTestServer(t)

	if resp := env.do(http.MethodGet, "/api/products", "", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}
	if resp := env.do(http.MethodGet, "/api/products", env.token("r1", auth.RoleReseller), nil, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("reseller on developer route = %d, want 403", resp.StatusCode)
	}
	if resp := env.do(http.MethodGet, "/api/reseller/keys", env.token("d1", auth.RoleDeveloper), nil, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("developer on reseller route = %d, want 403", resp.StatusCode)
	}
}

type productResp struct {
	ID string `json:"id"`
}

type licenseResp struct {
	ID     string `json:"id"`
	Key    string `json:"license_key"`
	Status string `json:"status"`
}

type resultResp struct {
	Valid       bool   `json:"valid"`
	Status      string `json:"status"`
	Source      string `json:"source"`
	Kind        string `json:"error_kind"`
	Error       string `json:"error"`
	Activations *struct {
		Current int  `json:"current"`
		Max     *int `json:"max"`
	} `json:"activations"`
	Details *struct {
		Scoped bool `json:"scoped"`
	} `json:"details"`
}

func TestDeveloperLicenseLifecycle(t *testing.T) {
	env := setupTestServer(t)
	dev := env.token("dev-1", auth.RoleDeveloper)

	var product productResp
	resp := env.do(http.MethodPost, "/api/products", dev, map[string]any{
		"name":            "Photon Editor",
		"price_cents":     4900,
		"max_activations": 1,
	}, &product)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product status = %d", resp.StatusCode)
	}

	var lic licenseResp
	resp = env.do(http.MethodPost, "/api/licenses", dev, map[string]any{
		"product_id":     product.ID,
		"license_key":    "CLP-TEST-AAAA-BBBB-CCCC",
		"customer_email": "Ada@Example.com",
		"customer_name":  "Ada",
	}, &lic)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("issue license status = %d", resp.StatusCode)
	}

	if resp := env.do(http.MethodPost, "/api/licenses", dev, map[string]any{
		"product_id":  product.ID,
		"license_key": "CLP-TEST-AAAA-BBBB-CCCC",
	}, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate key status = %d, want 409", resp.StatusCode)
	}

	// Public validation is case-insensitive.
	var res resultResp
	resp = env.do(http.MethodPost, "/api/licenses/validate", "", map[string]any{
		"key":        " clp-test-aaaa-bbbb-cccc ",
		"product_id": product.ID,
	}, &res)
	if resp.StatusCode != http.StatusOK || !res.Valid {
		t.Fatalf("validate = %d %+v", resp.StatusCode, res)
	}
	if res.Source != "licenses" || res.Details == nil || !res.Details.Scoped {
		t.Errorf("unexpected result %+v", res)
	}

	// Activation limit of one.
	var act map[string]any
	resp = env.do(http.MethodPost, "/api/licenses/activate", "", map[string]any{
		"key": lic.Key, "machine_id": "mac-1",
	}, &act)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}
	if resp := env.do(http.MethodPost, "/api/licenses/activate", "", map[string]any{
		"key": lic.Key, "machine_id": "mac-2",
	}, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("second machine status = %d, want 409", resp.StatusCode)
	}

	// Revoke and validate again.
	var updated licenseResp
	resp = env.do(http.MethodPatch, "/api/licenses/"+lic.ID+"/status", dev, map[string]any{"status": "revoked"}, &updated)
	if resp.StatusCode != http.StatusOK || updated.Status != "revoked" {
		t.Fatalf("update status = %d %+v", resp.StatusCode, updated)
	}
	res = resultResp{}
	env.do(http.MethodPost, "/api/licenses/validate", "", map[string]any{"key": lic.Key}, &res)
	if res.Valid || res.Kind != "inactive_status" || res.Error != "License is revoked. Please contact support." {
		t.Errorf("revoked result = %+v", res)
	}

	// Another developer cannot see it.
	other := env.token("dev-2", auth.RoleDeveloper)
	if resp := env.do(http.MethodGet, "/api/licenses/"+lic.ID, other, nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", resp.StatusCode)
	}
	if resp := env.do(http.MethodDelete, "/api/licenses/"+lic.ID, other, nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want 404", resp.StatusCode)
	}

	var detail struct {
		licenseResp
		Activations []map[string]any `json:"activations"`
	}
	env.do(http.MethodGet, "/api/licenses/"+lic.ID, dev, nil, &detail)
	if len(detail.Activations) != 1 {
		t.Errorf("activations = %d, want 1", len(detail.Activations))
	}

	if resp := env.do(http.MethodDelete, "/api/licenses/"+lic.ID, dev, nil, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
}

func TestValidateEdgeCases(t *testing.T) {
	env := setupTestServer(t)

	var res resultResp
	env.do(http.MethodPost, "/api/licenses/validate", "", map[string]any{"key": "  short "}, &res)
	if res.Valid || res.Kind != "invalid_format" || res.Error != "Invalid license key format" {
		t.Errorf("short key = %+v", res)
	}

	res = resultResp{}
	env.do(http.MethodPost, "/api/licenses/validate", "", map[string]any{"key": "CLP-NOPE-NOPE-NOPE"}, &res)
	if res.Kind != "not_found" {
		t.Errorf("unknown key kind = %q, want not_found", res.Kind)
	}

	var display struct {
		IsValid bool   `json:"is_valid"`
		Message string `json:"message"`
	}
	env.do(http.MethodGet, "/api/licenses/validate/CLP-NOPE-NOPE-NOPE", "", nil, &display)
	if display.IsValid || display.Message != "License not found. Please check the key." {
		t.Errorf("display = %+v", display)
	}

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/licenses/validate", strings.NewReader("{"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", resp.StatusCode)
	}
}

func TestListBulkAndExport(t *testing.T) {
	env := setupTestServer(t)
	dev := env.token("dev-1", auth.RoleDeveloper)

	var product productResp
	env.do(http.MethodPost, "/api/products", dev, map[string]any{"name": "Tool"}, &product)

	var ids []string
	for i := 0; i < 3; i++ {
		var lic licenseResp
		if resp := env.do(http.MethodPost, "/api/licenses", dev, map[string]any{"product_id": product.ID}, &lic); resp.StatusCode != http.StatusCreated {
			t.Fatalf("issue license status = %d", resp.StatusCode)
		}
		ids = append(ids, lic.ID)
	}

	var bulk map[string]int
	env.do(http.MethodPost, "/api/licenses/bulk-status", dev, map[string]any{
		"ids": ids[:2], "status": "inactive",
	}, &bulk)
	if bulk["updated"] != 2 {
		t.Errorf("bulk updated = %d, want 2", bulk["updated"])
	}

	var page struct {
		Items []licenseResp `json:"items"`
		Total int           `json:"total"`
		Pages int           `json:"pages"`
	}
	env.do(http.MethodGet, "/api/licenses?status=inactive&size=1", dev, nil, &page)
	if page.Total != 2 || page.Pages != 2 || len(page.Items) != 1 {
		t.Errorf("page = total %d pages %d items %d", page.Total, page.Pages, len(page.Items))
	}

	if resp := env.do(http.MethodGet, "/api/licenses?status=bogus", dev, nil, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/licenses/export?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+dev)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q", ct)
	}
	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Errorf("csv rows = %d, want header plus 3", len(records))
	}

	var dash struct {
		Products int `json:"products"`
		Licenses int `json:"licenses"`
	}
	env.do(http.MethodGet, "/api/dashboard", dev, nil, &dash)
	if dash.Products != 1 || dash.Licenses != 3 {
		t.Errorf("dashboard = %+v", dash)
	}
}

func TestResellerFlow(t *testing.T) {
	env := setupTestServer(t)
	dev := env.token("dev-1", auth.RoleDeveloper)
	admin := env.token("admin-1", auth.RoleAdmin)
	seller := env.token("user-r1", auth.RoleReseller)

	var product productResp
	env.do(http.MethodPost, "/api/products", dev, map[string]any{
		"name": "Photon Editor", "price_cents": 10000, "default_duration_days": 30,
	}, &product)

	if resp := env.do(http.MethodGet, "/api/reseller/profile", seller, nil, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("profile before register = %d, want 403", resp.StatusCode)
	}
	if resp := env.do(http.MethodPost, "/api/admin/resellers", seller, map[string]any{}, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("reseller self-register = %d, want 403", resp.StatusCode)
	}
	if resp := env.do(http.MethodPost, "/api/admin/resellers", admin, map[string]any{
		"user_id": "user-r1", "name": "Keyshop", "email": "shop@example.com", "discount_percent": 25,
	}, nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register reseller = %d", resp.StatusCode)
	}

	var listing struct {
		ID             string `json:"id"`
		WholesaleCents int64  `json:"wholesale_cents"`
	}
	env.do(http.MethodPost, "/api/reseller/listings", seller, map[string]any{
		"product_id": product.ID, "markup_percent": 20,
	}, &listing)
	if listing.WholesaleCents != 7500 {
		t.Errorf("wholesale = %d, want 7500", listing.WholesaleCents)
	}

	if resp := env.do(http.MethodPost, "/api/reseller/listings/"+listing.ID+"/sell", seller, map[string]any{
		"customer_email": "bob@example.com",
	}, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("sell without stock = %d, want 409", resp.StatusCode)
	}

	if resp := env.do(http.MethodPost, "/api/reseller/listings/"+listing.ID+"/purchase", seller, map[string]any{
		"quantity": 2,
	}, nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("purchase = %d", resp.StatusCode)
	}

	var key struct {
		ID         string `json:"id"`
		Code       string `json:"key_code"`
		PriceCents int64  `json:"price_cents"`
	}
	resp := env.do(http.MethodPost, "/api/reseller/listings/"+listing.ID+"/sell", seller, map[string]any{
		"customer_email": "bob@example.com",
	}, &key)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("sell = %d", resp.StatusCode)
	}
	if key.PriceCents != 9000 {
		t.Errorf("retail = %d, want 9000", key.PriceCents)
	}

	var res resultResp
	env.do(http.MethodPost, "/api/licenses/validate", "", map[string]any{"key": strings.ToLower(key.Code)}, &res)
	if !res.Valid || res.Source != "customer_keys" {
		t.Fatalf("resold validate = %+v", res)
	}
	if res.Activations == nil || res.Activations.Max == nil || *res.Activations.Max != 1 {
		t.Errorf("resold activations = %+v", res.Activations)
	}

	if resp := env.do(http.MethodPost, "/api/licenses/activate", "", map[string]any{
		"key": key.Code, "machine_id": "m1",
	}, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("activate resold key = %d, want 400", resp.StatusCode)
	}

	env.do(http.MethodPatch, "/api/reseller/keys/"+key.ID+"/status", seller, map[string]any{"status": "inactive"}, nil)
	res = resultResp{}
	env.do(http.MethodPost, "/api/licenses/validate", "", map[string]any{"key": key.Code}, &res)
	if res.Kind != "inactive_status" {
		t.Errorf("deactivated resold kind = %q", res.Kind)
	}

	var profile struct {
		Summary struct {
			KeysSold    int `json:"keys_sold"`
			KeysInStock int `json:"keys_in_stock"`
		} `json:"summary"`
	}
	env.do(http.MethodGet, "/api/reseller/profile", seller, nil, &profile)
	if profile.Summary.KeysSold != 1 || profile.Summary.KeysInStock != 1 {
		t.Errorf("summary = %+v", profile.Summary)
	}
}

func TestMetricsExposed(t *testing.T) {
	env := setupTestServer(t)
	env.do(http.MethodPost, "/api/licenses/validate", "", map[string]any{"key": "CLP-NOPE-NOPE-NOPE"}, nil)

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	want := `cloudlicense_validations_total{outcome="not_found",source="none"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics missing %q", want)
	}
	if !strings.Contains(string(body), "cloudlicense_websocket_clients 0") {
		t.Error("metrics missing websocket gauge")
	}
}

func TestNotFoundJSON(t *testing.T) {
	env := setupTestServer(t)
	var body map[string]string
	resp := env.do(http.MethodGet, "/nope", "", nil, &body)
	if resp.StatusCode != http.StatusNotFound || body["error"] != "not found" {
		t.Errorf("not found = %d %v", resp.StatusCode, body)
	}
}
