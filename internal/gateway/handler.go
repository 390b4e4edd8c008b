package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/confide-gg/confide/internal/authgate"
)

// Handler upgrades an HTTP request to a WebSocket connection and hands it
// to Core.Serve. AuthGate runs first (step 1 of §4.9): a missing or
// invalid ?token= never reaches the upgrade at all.
func Handler(core *Core, store authgate.SessionStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, appErr := authgate.Authenticate(r.Context(), store, r, time.Now())
		if appErr != nil {
			http.Error(w, appErr.Message, appErr.Status)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: false,
		})
		if err != nil {
			logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}
		defer conn.CloseNow()

		core.Serve(r.Context(), conn, identity.SubjectID)
	}
}
