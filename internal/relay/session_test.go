package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("connection closed")

// fakeConn scripts one side of a relay session. Frames pushed into incoming
// are returned by ReadMessage; frames the session writes land in outgoing.
type fakeConn struct {
	incoming  chan []byte
	outgoing  chan writtenFrame
	closed    chan struct{}
	closeOnce sync.Once
}

type writtenFrame struct {
	messageType int
	data        []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		outgoing: make(chan writtenFrame, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.incoming:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	case c.outgoing <- writtenFrame{messageType: messageType, data: data}:
		return nil
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// recordingDispatcher returns a canned result and remembers what it was
// asked to run.
type recordingDispatcher struct {
	mu     sync.Mutex
	calls  []dispatchCall
	result map[string]any
}

type dispatchCall struct {
	userID  uuid.UUID
	name    string
	rawArgs string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, userID uuid.UUID, _, name, rawArgs string) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{userID: userID, name: name, rawArgs: rawArgs})
	if d.result != nil {
		return d.result
	}
	return map[string]any{"ok": true}
}

func (d *recordingDispatcher) recorded() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

func awaitFrame(t *testing.T, conn *fakeConn) []byte {
	t.Helper()
	select {
	case frame := <-conn.outgoing:
		return frame.data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func awaitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func startSession(t *testing.T, dispatcher Dispatcher) (*fakeConn, *fakeConn, chan struct{}) {
	t.Helper()
	client := newFakeConn()
	upstream := newFakeConn()
	session := NewSession(client, upstream, dispatcher, uuid.New(), "")

	done := make(chan struct{})
	go func() {
		session.Run(context.Background())
		close(done)
	}()
	return client, upstream, done
}

func TestSessionConfiguresUpstreamFirst(t *testing.T) {
	client, upstream, done := startSession(t, &recordingDispatcher{})
	defer func() { client.Close(); awaitDone(t, done) }()

	var update sessionUpdate
	if err := json.Unmarshal(awaitFrame(t, upstream), &update); err != nil {
		t.Fatalf("first upstream frame is not a session update: %v", err)
	}
	if update.Type != eventTypeSessionUpdate {
		t.Errorf("first frame type = %q, want %q", update.Type, eventTypeSessionUpdate)
	}
	if update.Session.Instructions != DefaultInstructions {
		t.Errorf("instructions = %q", update.Session.Instructions)
	}
	if len(update.Session.Tools) != 5 {
		t.Errorf("declared %d tools, want 5", len(update.Session.Tools))
	}
}

func TestSessionForwardsFramesVerbatim(t *testing.T) {
	client, upstream, done := startSession(t, &recordingDispatcher{})
	defer func() { client.Close(); awaitDone(t, done) }()

	awaitFrame(t, upstream) // session.update

	clientFrame := []byte(`{"type":"input_audio_buffer.append","audio":"Zm9v"}`)
	client.incoming <- clientFrame
	if got := awaitFrame(t, upstream); string(got) != string(clientFrame) {
		t.Errorf("upstream received %q, want %q", got, clientFrame)
	}

	upstreamFrame := []byte(`{"type":"response.audio.delta","delta":"YmFy"}`)
	upstream.incoming <- upstreamFrame
	if got := awaitFrame(t, client); string(got) != string(upstreamFrame) {
		t.Errorf("client received %q, want %q", got, upstreamFrame)
	}
}

func TestSessionForwardsUnparseableFrames(t *testing.T) {
	client, upstream, done := startSession(t, &recordingDispatcher{})
	defer func() { client.Close(); awaitDone(t, done) }()

	awaitFrame(t, upstream) // session.update

	garbled := []byte(`not json at all`)
	upstream.incoming <- garbled
	if got := awaitFrame(t, client); string(got) != string(garbled) {
		t.Errorf("client received %q, want the frame verbatim", got)
	}
}

func TestSessionInterceptsToolCalls(t *testing.T) {
	dispatcher := &recordingDispatcher{result: map[string]any{"balance": 5420.5}}
	client, upstream, done := startSession(t, dispatcher)
	defer func() { client.Close(); awaitDone(t, done) }()

	awaitFrame(t, upstream) // session.update

	upstream.incoming <- []byte(`{"type":"response.function_call_arguments.done","name":"get_balance","arguments":"{\"accountType\":\"Checking\"}","call_id":"call_abc"}`)

	var item conversationItemCreate
	if err := json.Unmarshal(awaitFrame(t, upstream), &item); err != nil {
		t.Fatalf("injected frame is not an item create: %v", err)
	}
	if item.Type != eventTypeConversationItemCreate {
		t.Errorf("injected type = %q", item.Type)
	}
	if item.Item.Type != "function_call_output" {
		t.Errorf("item type = %q", item.Item.Type)
	}
	if item.Item.CallID != "call_abc" {
		t.Errorf("call id = %q, want call_abc", item.Item.CallID)
	}
	if !strings.Contains(item.Item.Output, "5420.5") {
		t.Errorf("output %q does not carry the dispatch result", item.Item.Output)
	}

	var resume responseCreate
	if err := json.Unmarshal(awaitFrame(t, upstream), &resume); err != nil {
		t.Fatalf("resume frame unparseable: %v", err)
	}
	if resume.Type != eventTypeResponseCreate {
		t.Errorf("resume type = %q, want %q", resume.Type, eventTypeResponseCreate)
	}

	calls := dispatcher.recorded()
	if len(calls) != 1 {
		t.Fatalf("dispatcher ran %d times, want 1", len(calls))
	}
	if calls[0].name != "get_balance" || calls[0].rawArgs != `{"accountType":"Checking"}` {
		t.Errorf("dispatched %s(%s)", calls[0].name, calls[0].rawArgs)
	}

	// The tool-call event itself never reaches the client.
	select {
	case frame := <-client.outgoing:
		t.Errorf("client received %q, want nothing", frame.data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionClosesPeerOnDisconnect(t *testing.T) {
	client, upstream, done := startSession(t, &recordingDispatcher{})

	awaitFrame(t, upstream) // session.update

	upstream.Close()
	awaitDone(t, done)

	if !client.isClosed() {
		t.Error("client connection left open after upstream disconnect")
	}
}
