package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/cloudlicensepro/internal/licensecheck"
)

func TestValidKeyLicensed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/licenses/validate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req validateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Key != "CLP-TEST-1234-5678-ABCD" {
			t.Errorf("unexpected key: %q", req.Key)
		}
		if req.ProductID != "p1" {
			t.Errorf("unexpected product: %q", req.ProductID)
		}
		json.NewEncoder(w).Encode(licensecheck.Result{
			Valid:  true,
			Status: "active",
			Source: "licenses",
		})
	}))
	defer server.Close()

	c := NewClient(Config{
		Key:       "CLP-TEST-1234-5678-ABCD",
		ProductID: "p1",
		BaseURL:   server.URL + "/",
	})

	if err := c.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !c.Licensed() {
		t.Error("expected licensed")
	}
	if got := c.Status().Result.Source; got != "licenses" {
		t.Errorf("source = %q, want %q", got, "licenses")
	}
}

func TestInvalidKeyNotLicensed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(licensecheck.Result{
			Kind:  licensecheck.KindNotFound,
			Error: "License not found. Please check the key.",
		})
	}))
	defer server.Close()

	c := NewClient(Config{Key: "CLP-NOPE-NOPE", BaseURL: server.URL})
	if err := c.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Licensed() {
		t.Error("expected not licensed")
	}
	if c.Status().Warning != "License not found. Please check the key." {
		t.Errorf("warning = %q", c.Status().Warning)
	}
}

func TestOfflineGracePeriod(t *testing.T) {
	up := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(licensecheck.Result{Valid: true, Status: "active"})
	}))
	defer server.Close()

	c := NewClient(Config{Key: "CLP-KEY-00000000", BaseURL: server.URL, GracePeriod: time.Hour})
	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	up = false
	now = now.Add(30 * time.Minute)
	if err := c.Validate(context.Background()); err == nil {
		t.Fatal("expected error while server is down")
	}
	if !c.Status().Offline {
		t.Error("expected offline status")
	}
	if !c.Licensed() {
		t.Error("expected licensed within grace period")
	}

	now = now.Add(time.Hour)
	if c.Licensed() {
		t.Error("expected unlicensed after grace period")
	}
}

func TestStartStop(t *testing.T) {
	calls := make(chan struct{}, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		json.NewEncoder(w).Encode(licensecheck.Result{Valid: true})
	}))
	defer server.Close()

	c := NewClient(Config{Key: "CLP-KEY-00000000", BaseURL: server.URL, CheckInterval: time.Hour})
	c.Start(context.Background())
	c.Stop()

	if len(calls) != 1 {
		t.Errorf("calls = %d, want 1 initial validation", len(calls))
	}
}

func TestStopWithoutStart(t *testing.T) {
	c := NewClient(Config{Key: "CLP-KEY-00000000"})

	done := make(chan struct{})
	go func() {
		c.Stop()
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop without Start did not return")
	}
}

func TestStopTwiceAfterStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(licensecheck.Result{Valid: true})
	}))
	defer server.Close()

	c := NewClient(Config{Key: "CLP-KEY-00000000", BaseURL: server.URL, CheckInterval: time.Hour})
	c.Start(context.Background())
	c.Start(context.Background())
	c.Stop()
	c.Stop()
}

func TestOnCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(licensecheck.Result{Valid: true, Status: "active"})
	}))
	defer server.Close()

	var got []Status
	c := NewClient(Config{
		Key:     "CLP-KEY-00000000",
		BaseURL: server.URL,
		OnCheck: func(s Status) { got = append(got, s) },
	})
	if err := c.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	server.Close()
	if err := c.Validate(context.Background()); err == nil {
		t.Fatal("expected error from closed server")
	}

	if len(got) != 2 {
		t.Fatalf("OnCheck calls = %d, want 2", len(got))
	}
	if !got[0].Result.Valid || got[0].Offline {
		t.Errorf("first status = %+v, want valid online", got[0])
	}
	if !got[1].Offline || !got[1].Result.Valid {
		t.Errorf("second status = %+v, want offline with last valid result", got[1])
	}
}
