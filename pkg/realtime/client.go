/**
 * @description
 * This package provides the client for the hosted realtime conversational AI
 * endpoint. It knows how to build the realtime WebSocket URL (api-version and
 * deployment query parameters) and to dial it with the required auth headers.
 * The relay owns the returned connection; this client only establishes it.
 *
 * @dependencies
 * - github.com/gorilla/websocket: WebSocket dialer.
 */
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

const defaultAPIVersion = "2024-10-01-preview"

// Client dials the upstream realtime endpoint.
type Client struct {
	endpointURL string
	apiKey      string
	deployment  string
	apiVersion  string
}

// NewClient creates a realtime endpoint client. endpointURL is the wss://
// base (e.g. "wss://<resource>.openai.azure.com/openai/realtime").
func NewClient(endpointURL, apiKey, deployment, apiVersion string) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Client{
		endpointURL: endpointURL,
		apiKey:      apiKey,
		deployment:  deployment,
		apiVersion:  apiVersion,
	}
}

// dialURL builds the realtime endpoint URL with api-version and deployment
// query parameters.
func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.endpointURL)
	if err != nil {
		return "", fmt.Errorf("invalid realtime endpoint url: %w", err)
	}
	q := u.Query()
	q.Set("api-version", c.apiVersion)
	if c.deployment != "" {
		q.Set("deployment", c.deployment)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens one WebSocket connection to the realtime endpoint. The caller
// is responsible for closing it.
func (c *Client) Dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := c.dialURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("api-key", c.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime endpoint dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime endpoint dial failed: %w", err)
	}
	return conn, nil
}
