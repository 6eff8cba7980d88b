// Package dispatch routes inbound chat events: trigger phrases open new
// flow sessions, registered one-shot commands run immediately, and
// everything else is offered to the active sessions.
package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kanolab/fawnbot/internal/flow"
	"github.com/kanolab/fawnbot/internal/models"
)

// CommandFunc handles a one-shot command: no session, no follow-up state.
type CommandFunc func(ctx context.Context, ev models.Event)

// Dispatcher owns the routing order for inbound events. Trigger phrases are
// checked before active sessions, so re-sending a trigger mid-flow yields
// the busy notice instead of being consumed as step input.
type Dispatcher struct {
	engine   *flow.Engine
	commands map[string]CommandFunc
	cmdOrder []string
}

// NewDispatcher creates a dispatcher over the given engine.
func NewDispatcher(engine *flow.Engine) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		commands: make(map[string]CommandFunc),
	}
}

// RegisterCommand binds a one-shot command phrase. Phrases are matched
// against the trimmed message text, after flow triggers.
func (d *Dispatcher) RegisterCommand(phrase string, fn CommandFunc) {
	if _, exists := d.commands[phrase]; !exists {
		d.cmdOrder = append(d.cmdOrder, phrase)
	}
	d.commands[phrase] = fn
	slog.Info("Dispatcher registered command", "phrase", phrase)
}

// Dispatch routes one inbound event to completion. It is safe to call
// concurrently; per-session ordering is enforced by the session store, not
// here.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event) {
	text := strings.TrimSpace(ev.RawText)

	for _, def := range d.engine.Definitions() {
		if !def.MatchesTrigger(text) {
			continue
		}
		if def.GroupOnly && ev.Kind != models.MessageKindGroup {
			slog.Debug("Dispatcher dropped group-only trigger from private chat", "flowType", def.Type, "actorID", ev.ActorID)
			return
		}
		d.engine.StartFlow(ctx, def, ev)
		return
	}

	if fn, ok := d.commands[text]; ok {
		fn(ctx, ev)
		return
	}

	for _, def := range d.engine.Definitions() {
		if def.GroupOnly && ev.Kind != models.MessageKindGroup {
			continue
		}
		if d.engine.HandleActive(ctx, def, ev) {
			return
		}
	}
}

// Run consumes events until the channel closes or ctx is cancelled. Each
// event is dispatched on its own goroutine so a slow handler cannot stall
// the gateway read loop; panics are contained per event.
func (d *Dispatcher) Run(ctx context.Context, events <-chan models.Event) {
	slog.Info("Dispatcher running")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopping", "reason", ctx.Err())
			return
		case ev, ok := <-events:
			if !ok {
				slog.Info("Dispatcher event channel closed")
				return
			}
			go d.safeDispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) safeDispatch(ctx context.Context, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher recovered from panic", "actorID", ev.ActorID, "groupID", ev.GroupID, "panic", r)
		}
	}()
	d.Dispatch(ctx, ev)
}
