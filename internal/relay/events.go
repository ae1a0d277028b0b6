/**
 * @description
 * This file defines the wire events the relay speaks with the upstream
 * realtime AI endpoint. Only the event types the relay inspects or emits are
 * modeled; everything else passes through as opaque frames.
 */

package relay

// Upstream event types the relay cares about.
const (
	eventTypeSessionUpdate             = "session.update"
	eventTypeFunctionCallArgumentsDone = "response.function_call_arguments.done"
	eventTypeConversationItemCreate    = "conversation.item.create"
	eventTypeResponseCreate            = "response.create"
)

// envelope is used to sniff the type of an inbound upstream frame.
type envelope struct {
	Type string `json:"type"`
}

// functionCallArgumentsDone signals that a tool call's arguments are fully
// received. The relay consumes these; they are never forwarded to the client.
type functionCallArgumentsDone struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	CallID    string `json:"call_id"`
}

// sessionUpdate configures the upstream session: modalities, assistant
// instructions and the tool schema.
type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities   []string         `json:"modalities"`
	Instructions string           `json:"instructions"`
	Tools        []ToolDefinition `json:"tools"`
}

// ToolDefinition declares one callable function to the upstream endpoint.
type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// conversationItemCreate injects a synthetic conversation item carrying a
// tool result back into the upstream conversation.
type conversationItemCreate struct {
	Type string                 `json:"type"`
	Item functionCallOutputItem `json:"item"`
}

type functionCallOutputItem struct {
	Type   string `json:"type"` // always "function_call_output"
	CallID string `json:"call_id"`
	Output string `json:"output"` // JSON string of the dispatcher result
}

// responseCreate asks the upstream endpoint to resume generation after a
// tool result has been injected.
type responseCreate struct {
	Type string `json:"type"`
}
