package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// testDialer connects the relay to a local stand-in for the realtime
// endpoint.
type testDialer struct {
	upstreamURL string
	err         error
}

func (d *testDialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.upstreamURL, nil)
	return conn, err
}

// startUpstreamStub runs a websocket server that records inbound frames and
// keeps the connection open until the test finishes.
func startUpstreamStub(t *testing.T) (string, chan []byte) {
	t.Helper()
	frames := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http"), frames
}

func TestHandlerRelaysClientTraffic(t *testing.T) {
	upstreamURL, upstreamFrames := startUpstreamStub(t)
	handler := NewHandler(&testDialer{upstreamURL: upstreamURL}, &recordingDispatcher{}, uuid.New(), "")

	server := httptest.NewServer(handler)
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	defer client.Close()

	// First upstream frame is the session configuration.
	var update sessionUpdate
	select {
	case data := <-upstreamFrames:
		if err := json.Unmarshal(data, &update); err != nil {
			t.Fatalf("unparseable first frame: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never received the session configuration")
	}
	if update.Type != eventTypeSessionUpdate {
		t.Fatalf("first frame type = %q, want %q", update.Type, eventTypeSessionUpdate)
	}

	// Client frames are forwarded verbatim.
	sent := []byte(`{"type":"input_audio_buffer.append","audio":"Zm9v"}`)
	if err := client.WriteMessage(websocket.TextMessage, sent); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	select {
	case data := <-upstreamFrames:
		if string(data) != string(sent) {
			t.Errorf("upstream received %q, want %q", data, sent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never received the client frame")
	}
}

func TestHandlerRejectsInvalidUserID(t *testing.T) {
	upstreamURL, _ := startUpstreamStub(t)
	handler := NewHandler(&testDialer{upstreamURL: upstreamURL}, &recordingDispatcher{}, uuid.New(), "")

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "?userId=not-a-uuid")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandlerClosesClientWhenUpstreamUnavailable(t *testing.T) {
	handler := NewHandler(&testDialer{err: errors.New("endpoint down")}, &recordingDispatcher{}, uuid.New(), "")

	server := httptest.NewServer(handler)
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected a close frame, got %v", err)
	}
	if closeErr.Code != websocket.CloseTryAgainLater {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.CloseTryAgainLater)
	}
}
