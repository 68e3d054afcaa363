package session

import (
	"context"
	"errors"

	"github.com/ulmis/ulmanbot-go/pkg/renderdto"
)

// EventKind tags the component interaction variants.
type EventKind string

const (
	KindButton EventKind = "button"
	KindSelect EventKind = "select"
)

// Origin identifies the request that opened a session. Every UI event must
// reference it, and only the authorized actor's events are routed.
type Origin struct {
	ID        string
	GuildID   string
	ChannelID string
	ActorID   string
}

// UIEvent is one user-generated component interaction.
type UIEvent struct {
	OriginID string
	Kind     EventKind
	CustomID string
	Values   []string
	ActorID  string
}

// Effect is what a handler declares after processing one event. The zero
// Effect means the event is silently ignored. Ledger mutations happen inside
// the handler before the Effect is returned, so the render always reflects
// their outcome.
type Effect struct {
	// Render replaces the session's message.
	Render *renderdto.Render
	// Notice is an ephemeral text shown only to the acting user.
	Notice string
	// FollowUp runs after the render is applied.
	FollowUp func(ctx context.Context) error
	// End transitions the session to its terminal state.
	End bool
}

// Handler processes one admitted event. Implementations are methods on a
// per-session state struct owned exclusively by that session.
type Handler func(ctx context.Context, ev UIEvent) (Effect, error)

// Sender delivers renders to the chat platform. The engine never inspects
// rendered content.
type Sender interface {
	Reply(ctx context.Context, o Origin, r renderdto.Render) error
	Update(ctx context.Context, o Origin, r renderdto.Render) error
	Ephemeral(ctx context.Context, o Origin, text string) error
}

var (
	ErrInvalidOrigin = errors.New("origin id and actor are required")
	ErrSessionExists = errors.New("session already open for origin")
)
