package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/session"
)

// Engine orchestrates session creation, dispatch of inbound input to the
// current state's handler, rescheduling of expiry timers on every
// transition, and expiry handling. All session mutation goes through the
// store's compare-and-swap operations, so of any racing pair
// {user input, timer expiry} exactly one wins and the loser is dropped.
type Engine struct {
	store    *session.Store
	notifier Notifier
	defs     map[models.FlowType]*Definition
	order    []*Definition
}

// NewEngine creates an engine over the given session store and notifier.
func NewEngine(store *session.Store, notifier Notifier) *Engine {
	slog.Debug("Creating flow Engine")
	return &Engine{
		store:    store,
		notifier: notifier,
		defs:     make(map[models.FlowType]*Definition),
	}
}

// Register adds a flow definition. Definitions are consulted by the
// dispatcher in registration order.
func (e *Engine) Register(def *Definition) error {
	if def.Type == "" {
		return fmt.Errorf("flow definition missing type")
	}
	if len(def.Triggers) == 0 {
		return fmt.Errorf("flow %s declares no trigger phrases", def.Type)
	}
	if def.KeyFor == nil || def.Start == nil {
		return fmt.Errorf("flow %s missing key derivation or start function", def.Type)
	}
	if _, exists := e.defs[def.Type]; exists {
		return fmt.Errorf("flow %s already registered", def.Type)
	}
	e.defs[def.Type] = def
	e.order = append(e.order, def)
	slog.Info("Engine registered flow", "flowType", def.Type, "triggers", def.Triggers)
	return nil
}

// Definitions returns registered definitions in registration order.
func (e *Engine) Definitions() []*Definition {
	return e.order
}

// StartFlow attempts to open a new session for ev against def. A key that
// is already occupied yields the flow's busy notice and leaves the existing
// session untouched.
func (e *Engine) StartFlow(ctx context.Context, def *Definition, ev models.Event) {
	key := def.KeyFor(ev)
	dest := ev.ReplyDestination()

	snap, err := e.store.TryCreate(key, def.Type, ev.ActorID, dest, StatePreparing)
	if err != nil {
		slog.Info("Engine StartFlow rejected, previous flow still pending", "flowType", def.Type, "key", key, "actorID", ev.ActorID)
		if def.BusyNotice != "" {
			e.send(ctx, dest, models.TextMessage(def.BusyNotice))
		}
		return
	}

	slog.Info("Engine StartFlow", "flowType", def.Type, "key", key, "actorID", ev.ActorID)
	out := def.Start(ctx, ev)
	e.apply(ctx, def, snap, out)
}

// HandleActive feeds ev into the active session for def's key, if one
// exists. It returns true when a session consumed the event.
func (e *Engine) HandleActive(ctx context.Context, def *Definition, ev models.Event) bool {
	key := def.KeyFor(ev)
	snap, ok := e.store.Get(key)
	if !ok || snap.FlowType != def.Type {
		return false
	}

	text := strings.TrimSpace(ev.RawText)
	if def.MatchesCancel(text) {
		e.cancelByActor(ctx, def, snap)
		return true
	}

	sd, ok := def.States[snap.State]
	if !ok || sd.Handle == nil {
		slog.Debug("Engine input ignored, no handler for state", "flowType", def.Type, "key", key, "state", snap.State)
		return true
	}

	out := sd.Handle(ctx, snap, Input{Event: ev, Text: text})
	e.apply(ctx, def, snap, out)
	return true
}

// cancelByActor removes the session in response to an explicit cancel
// phrase. The pending timer is cancelled inside the store's remove, so no
// late expiry notification can follow.
func (e *Engine) cancelByActor(ctx context.Context, def *Definition, snap models.SessionSnapshot) {
	removed, err := e.store.Remove(snap.Key, snap.Version)
	if err != nil {
		slog.Debug("Engine cancel lost race", "key", snap.Key, "error", err)
		return
	}
	slog.Info("Engine session cancelled by actor", "flowType", def.Type, "key", removed.Key, "state", removed.State)
	if def.CancelNotice != "" {
		e.send(ctx, removed.Dest, models.TextMessage(def.CancelNotice))
	}
}

// apply realizes one outcome against the session snapshotted in snap. The
// snapshot's version is the compare-and-swap stamp: if another transition
// (or an expiry) got there first the outcome is dropped without side
// effects.
func (e *Engine) apply(ctx context.Context, def *Definition, snap models.SessionSnapshot, out Outcome) {
	switch out.Kind {
	case OutcomeIgnore:

	case OutcomeStay:
		if out.Reply != nil {
			e.send(ctx, snap.Dest, out.Reply)
		}

	case OutcomeAdvance:
		next, err := e.store.ApplyTransition(snap.Key, snap.Version, session.Mutation{State: out.Next, Set: out.Set})
		if err != nil {
			slog.Debug("Engine advance lost race", "key", snap.Key, "next", out.Next, "error", err)
			return
		}
		if sd, ok := def.States[out.Next]; ok && sd.Timeout > 0 {
			h := session.Schedule(next.Key, next.Version, sd.Timeout, e.expire)
			e.store.AttachTimer(next.Key, next.Version, h)
		}
		if out.Reply != nil {
			e.send(ctx, next.Dest, out.Reply)
		}
		if out.Async != nil {
			go e.runAsync(ctx, def, next, out.Async)
		}

	case OutcomeComplete:
		removed, err := e.store.Remove(snap.Key, snap.Version)
		if err != nil {
			slog.Debug("Engine completion lost race", "key", snap.Key, "error", err)
			return
		}
		for k, v := range out.Set {
			removed.Data[k] = v
		}
		slog.Info("Engine session completed", "flowType", def.Type, "key", removed.Key)
		if out.Reply != nil {
			e.send(ctx, removed.Dest, out.Reply)
		}
		if def.OnComplete != nil {
			go e.runCompletion(ctx, def, removed)
		}

	case OutcomeCancel:
		removed, err := e.store.Remove(snap.Key, snap.Version)
		if err != nil {
			slog.Debug("Engine cancel outcome lost race", "key", snap.Key, "error", err)
			return
		}
		slog.Info("Engine session cancelled", "flowType", def.Type, "key", removed.Key, "reason", out.Reason)
		if out.Reply != nil {
			e.send(ctx, removed.Dest, out.Reply)
		}

	default:
		slog.Error("Engine unknown outcome kind", "kind", out.Kind, "flowType", def.Type, "key", snap.Key)
	}
}

// expire is the timer expiry action. The version captured at schedule time
// must still match the live session or the firing is a no-op; the store's
// compare-and-swap remove enforces that atomically.
func (e *Engine) expire(key models.SessionKey, version int64) {
	removed, err := e.store.Remove(key, version)
	if err != nil {
		slog.Debug("Engine expiry was stale", "key", key, "version", version, "error", err)
		return
	}

	def, ok := e.defs[removed.FlowType]
	if !ok {
		slog.Error("Engine expiry for unknown flow", "flowType", removed.FlowType, "key", key)
		return
	}
	slog.Info("Engine session expired", "flowType", removed.FlowType, "key", key, "state", removed.State)

	if sd, ok := def.States[removed.State]; ok && sd.OnExpire != nil {
		if msg := sd.OnExpire(removed); msg != nil {
			e.send(context.Background(), removed.Dest, msg)
		}
	}
}

// runAsync applies a deferred outcome computed off the dispatch path. The
// session may have been cancelled or expired meanwhile; the usual
// compare-and-swap discipline absorbs that.
func (e *Engine) runAsync(ctx context.Context, def *Definition, snap models.SessionSnapshot, fn AsyncFunc) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine async follow-up panicked", "flowType", def.Type, "key", snap.Key, "panic", r)
		}
	}()
	out := fn(ctx, snap)
	e.apply(ctx, def, snap, out)
}

// runCompletion runs the flow's completion side effect in the background.
// The session is already gone; a failure is reported to the actor once and
// never reopens the flow.
func (e *Engine) runCompletion(ctx context.Context, def *Definition, s models.SessionSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine completion side effect panicked", "flowType", def.Type, "key", s.Key, "panic", r)
		}
	}()
	if err := def.OnComplete(ctx, s); err != nil {
		slog.Error("Engine completion side effect failed", "flowType", def.Type, "key", s.Key, "error", err)
		if def.FailureNotice != "" {
			e.send(ctx, s.Dest, models.TextMessage(def.FailureNotice))
		}
	}
}

func (e *Engine) send(ctx context.Context, dest models.Destination, msg models.Message) {
	if err := e.notifier.Send(ctx, dest, msg); err != nil {
		slog.Error("Engine failed to send message", "dest", dest, "error", err)
	}
}
