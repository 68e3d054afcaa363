package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ulmis/ulmanbot-go/internal/obslog"
	"github.com/ulmis/ulmanbot-go/pkg/renderdto"
)

// session is the engine-owned state of one interactive exchange. The busy
// flag is the reentrancy gate; mu serializes an in-flight handler with
// timeout expiry so the terminal render always reflects the latest applied
// state.
type session struct {
	origin   Origin
	handler  Handler
	deadline time.Time

	busy atomic.Bool

	mu    sync.Mutex
	ended bool
	last  renderdto.Render

	done chan struct{}
}

// Engine drives bounded-lifetime interactive sessions: one session per open
// call, serialized event processing per session, a single deadline set at
// open time.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*session

	sender     Sender
	failNotice string
}

func NewEngine(sender Sender, failNotice string) *Engine {
	return &Engine{
		sessions:   make(map[string]*session),
		sender:     sender,
		failNotice: failNotice,
	}
}

// Open sends the initial render and runs the session until it ends by
// timeout, an End effect, an unrecoverable handler error, or ctx
// cancellation. The caller blocks; other sessions keep being serviced
// concurrently.
func (e *Engine) Open(ctx context.Context, origin Origin, initial renderdto.Render, h Handler, timeout time.Duration) error {
	if origin.ID == "" || origin.ActorID == "" {
		return ErrInvalidOrigin
	}
	if h == nil {
		return ErrInvalidOrigin
	}

	s := &session{
		origin:   origin,
		handler:  h,
		deadline: time.Now().Add(timeout),
		last:     initial,
		done:     make(chan struct{}),
	}

	e.mu.Lock()
	if _, exists := e.sessions[origin.ID]; exists {
		e.mu.Unlock()
		return ErrSessionExists
	}
	e.sessions[origin.ID] = s
	e.mu.Unlock()
	defer e.remove(origin.ID)

	if err := e.sender.Reply(ctx, origin, initial); err != nil {
		e.endSession(s)
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		e.expire(context.WithoutCancel(ctx), s)
		return nil
	case <-ctx.Done():
		e.expire(context.WithoutCancel(ctx), s)
		return ctx.Err()
	}
}

// Dispatch routes one UI event. Events for unknown origins, foreign actors,
// or components the last render never declared are ignored, not errors.
// An event arriving while a prior handler invocation is still running is
// dropped, never queued.
func (e *Engine) Dispatch(ctx context.Context, ev UIEvent) {
	e.mu.RLock()
	s := e.sessions[ev.OriginID]
	e.mu.RUnlock()
	if s == nil {
		return
	}
	if ev.ActorID != s.origin.ActorID {
		obslog.L().Debug("session_event_foreign_actor",
			zap.String("origin_id", ev.OriginID),
			zap.String("actor_id", ev.ActorID),
		)
		return
	}

	if !s.busy.CompareAndSwap(false, true) {
		obslog.L().Debug("session_event_dropped",
			zap.String("origin_id", ev.OriginID),
			zap.String("custom_id", ev.CustomID),
			zap.String("reason", "reentrant"),
		)
		return
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || time.Now().After(s.deadline) {
		return
	}
	if !declaredComponent(s.last, ev) {
		obslog.L().Debug("session_event_unexpected_component",
			zap.String("origin_id", ev.OriginID),
			zap.String("custom_id", ev.CustomID),
		)
		return
	}

	eff, err := s.handler(ctx, ev)
	if err != nil {
		obslog.L().Error("session_handler_error",
			zap.String("origin_id", ev.OriginID),
			zap.String("custom_id", ev.CustomID),
			zap.Error(err),
		)
		if e.failNotice != "" {
			_ = e.sender.Ephemeral(ctx, s.origin, e.failNotice)
		}
		e.endLocked(s)
		return
	}
	e.applyLocked(ctx, s, ev, eff)
}

func (e *Engine) applyLocked(ctx context.Context, s *session, ev UIEvent, eff Effect) {
	if eff.Render != nil {
		if err := e.sender.Update(ctx, s.origin, *eff.Render); err != nil {
			obslog.L().Warn("session_render_error",
				zap.String("origin_id", s.origin.ID),
				zap.Error(err),
			)
		} else {
			s.last = *eff.Render
		}
	}
	if eff.Notice != "" {
		if err := e.sender.Ephemeral(ctx, s.origin, eff.Notice); err != nil {
			obslog.L().Warn("session_notice_error",
				zap.String("origin_id", s.origin.ID),
				zap.Error(err),
			)
		}
	}
	if eff.FollowUp != nil {
		if err := eff.FollowUp(ctx); err != nil {
			obslog.L().Error("session_followup_error",
				zap.String("origin_id", s.origin.ID),
				zap.String("custom_id", ev.CustomID),
				zap.Error(err),
			)
		}
	}
	if eff.End {
		e.endLocked(s)
	}
}

// expire applies the terminal render exactly once. If a handler is in
// flight when the deadline fires, the lock makes expiry wait for it.
func (e *Engine) expire(ctx context.Context, s *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	terminal := s.last.Disabled()
	if err := e.sender.Update(ctx, s.origin, terminal); err != nil {
		obslog.L().Warn("session_expire_render_error",
			zap.String("origin_id", s.origin.ID),
			zap.Error(err),
		)
	}
	s.last = terminal
	obslog.L().Info("session_expired", zap.String("origin_id", s.origin.ID))
	e.endLocked(s)
}

// End terminates the session open for the origin id, if any. The terminal
// render is not touched; Open unblocks and returns.
func (e *Engine) End(originID string) {
	e.mu.RLock()
	s := e.sessions[originID]
	e.mu.RUnlock()
	if s != nil {
		e.endSession(s)
	}
}

func (e *Engine) endSession(s *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.endLocked(s)
}

func (e *Engine) endLocked(s *session) {
	if !s.ended {
		s.ended = true
		close(s.done)
	}
}

func (e *Engine) remove(originID string) {
	e.mu.Lock()
	delete(e.sessions, originID)
	e.mu.Unlock()
}

func declaredComponent(r renderdto.Render, ev UIEvent) bool {
	switch ev.Kind {
	case KindSelect:
		return r.HasSelect(ev.CustomID)
	case KindButton:
		return r.HasButton(ev.CustomID)
	default:
		return false
	}
}
