package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
)

func TestHandleWebSocketRejectsMissingToken(t *testing.T) {
	hub := NewHub(slog.Default())
	v := auth.NewTokenVerifier("secret", "")
	srv := httptest.NewServer(HandleWebSocket(hub, v, nil, slog.Default()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestHandleWebSocketDeliversOwnedMessages(t *testing.T) {
	hub := NewHub(slog.Default())
	v := auth.NewTokenVerifier("secret", "")
	token, err := v.Issue(auth.AuthContext{UserID: "dev-1", Role: auth.RoleDeveloper}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	srv := httptest.NewServer(HandleWebSocket(hub, v, nil, slog.Default()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Wait for the server side to register.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast(NewMessage("dev-2", "license", "created", "other", nil))
	hub.Broadcast(NewMessage("dev-1", "license", "created", "mine", nil))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "mine" {
		t.Errorf("id = %q, want %q", got.ID, "mine")
	}
}
