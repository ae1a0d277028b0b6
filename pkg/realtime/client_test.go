package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestDialURL(t *testing.T) {
	testCases := []struct {
		name       string
		endpoint   string
		deployment string
		apiVersion string
		wantQuery  url.Values
	}{
		{
			name:       "deployment and explicit version",
			endpoint:   "wss://example.openai.azure.com/openai/realtime",
			deployment: "gpt-realtime",
			apiVersion: "2024-10-01-preview",
			wantQuery: url.Values{
				"api-version": {"2024-10-01-preview"},
				"deployment":  {"gpt-realtime"},
			},
		},
		{
			name:     "default version when unset",
			endpoint: "wss://example.openai.azure.com/openai/realtime",
			wantQuery: url.Values{
				"api-version": {defaultAPIVersion},
			},
		},
		{
			name:       "existing query preserved",
			endpoint:   "wss://example.openai.azure.com/openai/realtime?model=gpt-4o-realtime-preview",
			deployment: "gpt-realtime",
			wantQuery: url.Values{
				"api-version": {defaultAPIVersion},
				"deployment":  {"gpt-realtime"},
				"model":       {"gpt-4o-realtime-preview"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewClient(tc.endpoint, "secret", tc.deployment, tc.apiVersion)
			raw, err := client.dialURL()
			if err != nil {
				t.Fatalf("dialURL failed: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("dialURL produced unparseable url %q: %v", raw, err)
			}
			got := u.Query()
			for key, want := range tc.wantQuery {
				if got.Get(key) != want[0] {
					t.Errorf("query %s = %q, want %q", key, got.Get(key), want[0])
				}
			}
		})
	}
}

func TestDialSendsAuthHeaders(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotAPIKey, gotBeta string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("api-key")
		gotBeta = r.Header.Get("OpenAI-Beta")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(endpoint, "test-api-key", "gpt-realtime", "")

	conn, err := client.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	conn.Close()

	if gotAPIKey != "test-api-key" {
		t.Errorf("api-key header = %q", gotAPIKey)
	}
	if gotBeta != "realtime=v1" {
		t.Errorf("OpenAI-Beta header = %q", gotBeta)
	}
}
