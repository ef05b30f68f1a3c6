package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
)

// Verifier turns an access token into the caller's identity.
type Verifier interface {
	Verify(token string) (auth.AuthContext, error)
}

// HandleWebSocket upgrades an authenticated connection and runs it as a
// Hub client. Browsers cannot set headers on the upgrade request, so the
// token travels in the "token" query parameter.
func HandleWebSocket(hub *Hub, verifier Verifier, allowedOrigins []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, err := verifier.Verify(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: allowedOrigins,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn, ac.UserID, ac.Role == auth.RoleAdmin)
		client.Run(r.Context())
	}
}
