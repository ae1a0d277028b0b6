/**
 * @description
 * This file contains the HTTP handler that upgrades a browser connection to
 * a WebSocket and starts a relay session for it. The upstream realtime
 * connection is dialed before any pumping begins, so the session
 * configuration event always precedes forwarded client traffic.
 */

package relay

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Dialer establishes the upstream realtime connection.
type Dialer interface {
	Dial(ctx context.Context) (*websocket.Conn, error)
}

// Handler upgrades client connections and runs one Session per connection.
type Handler struct {
	dialer        Dialer
	dispatcher    Dispatcher
	defaultUserID uuid.UUID
	instructions  string
	upgrader      websocket.Upgrader
}

// NewHandler creates a relay handler. defaultUserID scopes sessions that do
// not identify a user; the realtime channel itself is unauthenticated.
func NewHandler(dialer Dialer, dispatcher Dispatcher, defaultUserID uuid.UUID, instructions string) *Handler {
	return &Handler{
		dialer:        dialer,
		dispatcher:    dispatcher,
		defaultUserID: defaultUserID,
		instructions:  instructions,
		upgrader: websocket.Upgrader{
			// The browser UI runs on a different origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := h.defaultUserID
	if raw := r.URL.Query().Get("userId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid userId", http.StatusBadRequest)
			return
		}
		userID = parsed
	}

	client, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("level=warn component=relay msg=\"upgrade failed\" err=%v", err)
		return
	}

	upstream, err := h.dialer.Dial(r.Context())
	if err != nil {
		log.Printf("level=error component=relay msg=\"upstream dial failed\" err=%v", err)
		client.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "upstream unavailable"))
		client.Close()
		return
	}

	session := NewSession(client, upstream, h.dispatcher, userID, h.instructions)
	log.Printf("level=info component=relay session=%s user=%s msg=\"session started\" remote=%s", session.ID(), userID, r.RemoteAddr)
	// The request context ends when ServeHTTP returns, so the session runs
	// on its own context and lives until a peer disconnects.
	session.Run(context.Background())
}
