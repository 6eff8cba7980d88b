package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kanolab/fawnbot/internal/flow"
	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/session"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Message
}

func (n *recordingNotifier) Send(ctx context.Context, dest models.Destination, msg models.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) containsText(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.sent {
		if strings.Contains(m.PlainText(), substr) {
			return true
		}
	}
	return false
}

func groupEvent(groupID, actorID int64, text string) models.Event {
	return models.Event{
		Kind:    models.MessageKindGroup,
		GroupID: groupID,
		ActorID: actorID,
		RawText: text,
	}
}

// stepFlow is a two-step wizard: the trigger opens it, the next message
// completes it.
func stepFlow(groupOnly bool) *flow.Definition {
	return &flow.Definition{
		Type:       "step",
		Triggers:   []string{"start step"},
		GroupOnly:  groupOnly,
		BusyNotice: "previous flow still pending",
		KeyFor: func(ev models.Event) models.SessionKey {
			return "step:fixed"
		},
		Start: func(ctx context.Context, ev models.Event) flow.Outcome {
			return flow.Advance("waiting", nil, models.TextMessage("go on"))
		},
		States: map[models.StateType]flow.StateDef{
			"waiting": {
				Handle: func(ctx context.Context, s models.SessionSnapshot, in flow.Input) flow.Outcome {
					return flow.Complete(nil, models.TextMessage("finished with "+in.Text))
				},
			},
		},
	}
}

func newDispatcher(t *testing.T, defs ...*flow.Definition) (*Dispatcher, *session.Store, *recordingNotifier) {
	t.Helper()
	store := session.NewStore()
	notifier := &recordingNotifier{}
	eng := flow.NewEngine(store, notifier)
	for _, def := range defs {
		if err := eng.Register(def); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	return NewDispatcher(eng), store, notifier
}

func TestTriggerBeatsActiveSession(t *testing.T) {
	d, store, notifier := newDispatcher(t, stepFlow(false))
	ctx := context.Background()

	d.Dispatch(ctx, groupEvent(1, 100, "start step"))
	if store.Len() != 1 {
		t.Fatal("trigger did not open a session")
	}

	// Re-sending the trigger mid-flow must hit the busy path, not be
	// consumed as step input.
	d.Dispatch(ctx, groupEvent(1, 100, "start step"))
	if !notifier.containsText("previous flow still pending") {
		t.Error("duplicate trigger was not answered with the busy notice")
	}
	if store.Len() != 1 {
		t.Error("duplicate trigger disturbed the live session")
	}
	if notifier.containsText("finished with start step") {
		t.Error("duplicate trigger was consumed as step input")
	}

	d.Dispatch(ctx, groupEvent(1, 100, "anything else"))
	if store.Len() != 0 {
		t.Error("follow-up input did not complete the flow")
	}
	if !notifier.containsText("finished with anything else") {
		t.Error("missing completion reply")
	}
}

func TestGroupOnlyTriggerIgnoredInPrivateChat(t *testing.T) {
	d, store, _ := newDispatcher(t, stepFlow(true))

	d.Dispatch(context.Background(), models.Event{
		Kind:    models.MessageKindPrivate,
		ActorID: 100,
		RawText: "start step",
	})
	if store.Len() != 0 {
		t.Error("group-only flow opened from a private chat")
	}
}

func TestOneShotCommandRunsWithoutSession(t *testing.T) {
	d, store, _ := newDispatcher(t, stepFlow(false))

	var mu sync.Mutex
	calls := 0
	d.RegisterCommand("recommend art", func(ctx context.Context, ev models.Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	d.Dispatch(context.Background(), groupEvent(1, 100, "recommend art"))
	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Errorf("command calls = %d, want 1", got)
	}
	if store.Len() != 0 {
		t.Error("one-shot command created a session")
	}
}

func TestActiveSessionShadowsCommandInput(t *testing.T) {
	d, store, notifier := newDispatcher(t, stepFlow(false))
	ctx := context.Background()

	ran := false
	d.RegisterCommand("recommend art", func(ctx context.Context, ev models.Event) {
		ran = true
	})

	d.Dispatch(ctx, groupEvent(1, 100, "start step"))
	// A command phrase still beats session input per routing order.
	d.Dispatch(ctx, groupEvent(1, 100, "recommend art"))
	if !ran {
		t.Error("command phrase was swallowed by the active session")
	}
	if store.Len() != 1 {
		t.Error("command dispatch disturbed the live session")
	}
	_ = notifier
}

func TestUnmatchedEventIsDropped(t *testing.T) {
	d, store, notifier := newDispatcher(t, stepFlow(false))

	d.Dispatch(context.Background(), groupEvent(1, 100, "random chatter"))
	if store.Len() != 0 {
		t.Error("unmatched event opened a session")
	}
	notifier.mu.Lock()
	sent := len(notifier.sent)
	notifier.mu.Unlock()
	if sent != 0 {
		t.Error("unmatched event drew a reply")
	}
}

func TestRunConsumesUntilChannelCloses(t *testing.T) {
	d, store, _ := newDispatcher(t, stepFlow(false))

	events := make(chan models.Event, 1)
	events <- groupEvent(1, 100, "start step")
	close(events)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx, events)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("Run did not return after the channel closed")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && store.Len() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if store.Len() != 1 {
		t.Error("the queued trigger event was not dispatched")
	}
}
