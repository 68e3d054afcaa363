package gateway

import "github.com/ulmis/ulmanbot-go/pkg/renderdto"

type EventType string

const (
	EventCommand     EventType = "command"
	EventInteraction EventType = "interaction"
)

// Component carries a structured interaction payload: the tagged kind plus
// the selected values (empty for buttons).
type Component struct {
	Kind     string   `json:"kind"`
	CustomID string   `json:"custom_id"`
	Values   []string `json:"values,omitempty"`
}

// Event is one inbound frame from the chat-platform relay.
type Event struct {
	Type      EventType  `json:"type"`
	OriginID  string     `json:"origin_id"`
	GuildID   string     `json:"guild_id"`
	ChannelID string     `json:"channel_id"`
	UserID    string     `json:"user_id"`
	UserName  string     `json:"user_name,omitempty"`
	Command   string     `json:"command,omitempty"`
	Args      []string   `json:"args,omitempty"`
	Component *Component `json:"component,omitempty"`
}

// replyRequest is the outbound frame posted back to the relay.
type replyRequest struct {
	Type      string            `json:"type"`
	OriginID  string            `json:"origin_id"`
	ChannelID string            `json:"channel_id"`
	UserID    string            `json:"user_id,omitempty"`
	Text      string            `json:"text,omitempty"`
	Render    *renderdto.Render `json:"render,omitempty"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

type EventCallback func(ev *Event)

type StateCallback func(state WebSocketState)
