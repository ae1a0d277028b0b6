/**
 * @description
 * This file implements the relay session: one per client connection, owning
 * exactly one upstream realtime endpoint connection. The session pumps
 * messages verbatim in both directions, except that tool-call-completion
 * events from the upstream are intercepted, dispatched against the ledger,
 * and folded back into the conversation as a function_call_output item
 * followed by a resume-generation signal.
 *
 * Connection loss on either side is terminal for the session; there is no
 * retry or reconnect logic. Tool results for message N are injected before
 * message N+1 is processed because interception happens inline in the
 * upstream read loop.
 */

package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the session needs. It exists so
// tests can drive a session without real sockets.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dispatcher executes one tool call and always produces a JSON-serializable
// result, never an error.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID uuid.UUID, sessionKey, name, rawArgs string) map[string]any
}

// Session relays frames between a browser client and the upstream realtime
// endpoint for one connection.
type Session struct {
	id           uuid.UUID
	userID       uuid.UUID
	client       Conn
	upstream     Conn
	dispatcher   Dispatcher
	instructions string

	// gorilla/websocket allows one concurrent writer per connection; the
	// upstream socket is written by both the client pump and the tool
	// injection path.
	upstreamWriteMu sync.Mutex
	clientWriteMu   sync.Mutex
	closeOnce       sync.Once
}

// NewSession wires a client connection to an already-dialed upstream
// connection.
func NewSession(client, upstream Conn, dispatcher Dispatcher, userID uuid.UUID, instructions string) *Session {
	return &Session{
		id:           uuid.New(),
		userID:       userID,
		client:       client,
		upstream:     upstream,
		dispatcher:   dispatcher,
		instructions: instructions,
	}
}

// ID returns the session identifier used for logging and rate limiting.
func (s *Session) ID() uuid.UUID { return s.id }

// Run pumps both directions until either peer disconnects, then closes both
// connections. The session configuration is sent before any client frame is
// forwarded; frames the client sends in the meantime wait in the socket
// buffer.
func (s *Session) Run(ctx context.Context) {
	defer s.close()

	if err := s.writeUpstreamJSON(newSessionUpdate(s.instructions)); err != nil {
		log.Printf("level=error component=relay session=%s msg=\"session configuration failed\" err=%v", s.id, err)
		return
	}
	log.Printf("level=info component=relay session=%s user=%s msg=\"session configured\"", s.id, s.userID)

	errc := make(chan error, 2)
	go func() { errc <- s.pumpClientToUpstream() }()
	go func() { errc <- s.pumpUpstreamToClient(ctx) }()

	err := <-errc
	log.Printf("level=info component=relay session=%s msg=\"session closed\" err=%v", s.id, err)
	s.close()
	<-errc
}

// pumpClientToUpstream forwards every client frame to the upstream
// unmodified.
func (s *Session) pumpClientToUpstream() error {
	for {
		messageType, data, err := s.client.ReadMessage()
		if err != nil {
			return err
		}
		s.upstreamWriteMu.Lock()
		err = s.upstream.WriteMessage(messageType, data)
		s.upstreamWriteMu.Unlock()
		if err != nil {
			return err
		}
	}
}

// pumpUpstreamToClient forwards upstream frames to the client, intercepting
// tool-call-completion events. Intercepted events are consumed server-side
// and never reach the client; the assistant's subsequent reply is the
// user-visible effect.
func (s *Session) pumpUpstreamToClient(ctx context.Context) error {
	for {
		messageType, data, err := s.upstream.ReadMessage()
		if err != nil {
			return err
		}

		if messageType != websocket.TextMessage {
			if err := s.writeClient(messageType, data); err != nil {
				return err
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Not an event frame; passthrough is verbatim either way.
			log.Printf("level=warn component=relay session=%s msg=\"unparseable upstream frame forwarded\" err=%v", s.id, err)
			if err := s.writeClient(messageType, data); err != nil {
				return err
			}
			continue
		}

		if env.Type != eventTypeFunctionCallArgumentsDone {
			if err := s.writeClient(messageType, data); err != nil {
				return err
			}
			continue
		}

		if err := s.handleToolCall(ctx, data); err != nil {
			return err
		}
	}
}

// handleToolCall dispatches an intercepted tool call and injects the result
// upstream, then asks the endpoint to resume generation. Dispatch failures
// flow through the same injection path so the conversation is never left
// waiting for a tool result.
func (s *Session) handleToolCall(ctx context.Context, data []byte) error {
	var event functionCallArgumentsDone
	var result map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("level=warn component=relay session=%s msg=\"malformed tool call event\" err=%v", s.id, err)
		result = map[string]any{"error": "malformed tool call event"}
	} else {
		log.Printf("level=info component=relay session=%s msg=\"tool call\" tool=%s call_id=%s", s.id, event.Name, event.CallID)
		result = s.dispatcher.Dispatch(ctx, s.userID, s.id.String(), event.Name, event.Arguments)
	}

	output, err := json.Marshal(result)
	if err != nil {
		output = []byte(`{"error":"internal result encoding failure"}`)
	}

	item := conversationItemCreate{
		Type: eventTypeConversationItemCreate,
		Item: functionCallOutputItem{
			Type:   "function_call_output",
			CallID: event.CallID,
			Output: string(output),
		},
	}
	if err := s.writeUpstreamJSON(item); err != nil {
		return err
	}
	return s.writeUpstreamJSON(responseCreate{Type: eventTypeResponseCreate})
}

func (s *Session) writeUpstreamJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.upstreamWriteMu.Lock()
	defer s.upstreamWriteMu.Unlock()
	return s.upstream.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) writeClient(messageType int, data []byte) error {
	s.clientWriteMu.Lock()
	defer s.clientWriteMu.Unlock()
	return s.client.WriteMessage(messageType, data)
}

// close tears down both connections; either peer disconnecting closes the
// other side.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.client.Close()
		s.upstream.Close()
	})
}
