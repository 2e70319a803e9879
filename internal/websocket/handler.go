package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/duesbot/internal/model"
)

// HandleWebSocket upgrades the request, sends the current ledger, then
// streams updates until the client goes away.
func HandleWebSocket(hub *Hub, snapshot func() model.Ledger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("accept websocket", "error", err)
			return
		}
		defer conn.CloseNow()

		data, err := json.Marshal(NewMessage(TypeSnapshot, snapshot()))
		if err != nil {
			logger.Error("marshal snapshot", "error", err)
			conn.Close(ws.StatusInternalError, "snapshot unavailable")
			return
		}

		client := NewClient(hub, conn)
		client.send <- data
		client.Run(r.Context())
	}
}
