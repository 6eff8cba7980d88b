// Package flow provides the interaction-session engine: declarative flow
// definitions, the transition/expiry orchestration, and the built-in flows
// (submission, quiz, media download wizard).
package flow

import (
	"context"
	"time"

	"github.com/kanolab/fawnbot/internal/models"
)

// Notifier abstracts sending a reply to a destination. The chat gateway
// client implements it; encoding to the wire format is its concern.
type Notifier interface {
	Send(ctx context.Context, dest models.Destination, msg models.Message) error
}

// StatePreparing is the engine-owned state a session occupies between
// creation and the first transition produced by the flow's Start function.
// Input arriving in this state is ignored unless the definition declares a
// handler for it.
const StatePreparing models.StateType = "preparing"

// OutcomeKind classifies what a handler decided about one inbound input.
type OutcomeKind string

const (
	// OutcomeAdvance moves the session to a new state.
	OutcomeAdvance OutcomeKind = "advance"
	// OutcomeComplete terminates the session successfully and triggers the
	// flow's completion side effect.
	OutcomeComplete OutcomeKind = "complete"
	// OutcomeCancel terminates the session without a completion side effect
	// (validation rejection or explicit cancel).
	OutcomeCancel OutcomeKind = "cancel"
	// OutcomeStay emits a reply without transitioning (e.g. a wrong quiz
	// answer that leaves the question open).
	OutcomeStay OutcomeKind = "stay"
	// OutcomeIgnore discards the input entirely.
	OutcomeIgnore OutcomeKind = "ignore"
)

// AsyncFunc is a follow-up computed off the dispatch path (e.g. link
// validation). It receives the snapshot as of the transition that scheduled
// it and returns the next outcome, which is applied under the same
// compare-and-swap discipline as any other transition.
type AsyncFunc func(ctx context.Context, s models.SessionSnapshot) Outcome

// Outcome is what a handler (or Start, or an AsyncFunc) decided.
type Outcome struct {
	Kind   OutcomeKind
	Next   models.StateType // target state for OutcomeAdvance
	Set    models.Payload   // payload entries to merge in
	Reply  models.Message   // message to emit, if any
	Reason string           // diagnostic cause for cancels, never sent
	Async  AsyncFunc        // optional follow-up after an advance
}

// Advance builds an advance outcome to next with reply.
func Advance(next models.StateType, set models.Payload, reply models.Message) Outcome {
	return Outcome{Kind: OutcomeAdvance, Next: next, Set: set, Reply: reply}
}

// Complete builds a successful terminal outcome.
func Complete(set models.Payload, reply models.Message) Outcome {
	return Outcome{Kind: OutcomeComplete, Set: set, Reply: reply}
}

// Cancel builds a terminal cancellation outcome with a user-facing notice.
func Cancel(reason string, reply models.Message) Outcome {
	return Outcome{Kind: OutcomeCancel, Reason: reason, Reply: reply}
}

// Stay builds a non-transitioning outcome carrying a reply.
func Stay(reply models.Message) Outcome {
	return Outcome{Kind: OutcomeStay, Reply: reply}
}

// Ignore builds an outcome that drops the input.
func Ignore() Outcome {
	return Outcome{Kind: OutcomeIgnore}
}

// Input is the raw inbound material handed to a state handler.
type Input struct {
	Event models.Event
	Text  string // trimmed raw message text
}

// HandlerFunc validates one inbound input against the session's current
// state and decides the transition.
type HandlerFunc func(ctx context.Context, s models.SessionSnapshot, in Input) Outcome

// ExpiryMessageFunc produces the notification for a timed-out session.
// A nil func on the state means silent expiry; a nil return drops the
// notification for that particular session.
type ExpiryMessageFunc func(s models.SessionSnapshot) models.Message

// StateDef declares one state of a flow: how long the engine waits for
// input, what to do with input, and what a timeout looks like to the actor.
type StateDef struct {
	Timeout  time.Duration // 0 disables the expiry timer for this state
	Handle   HandlerFunc
	OnExpire ExpiryMessageFunc
}

// StartFunc produces the first transition of a freshly created session.
// It may be slow (question generation); inputs arriving meanwhile hit
// StatePreparing. The returned outcome must be an advance or a cancel.
type StartFunc func(ctx context.Context, ev models.Event) Outcome

// CompleteFunc is the flow's completion side effect, run in the background
// after the session has been removed from the store. It must not assume the
// session still exists. A returned error is reported to the actor as a
// terminal failure notice but never reopens the flow.
type CompleteFunc func(ctx context.Context, s models.SessionSnapshot) error

// Definition is the declarative description of one flow.
type Definition struct {
	Type          models.FlowType
	Triggers      []string
	CancelPhrases []string
	GroupOnly     bool

	// BusyNotice is sent when a trigger hits an occupied key.
	BusyNotice string
	// CancelNotice is sent after an explicit cancel phrase ends the session.
	CancelNotice string
	// FailureNotice is sent when the completion side effect fails; empty
	// means the failure is only logged.
	FailureNotice string

	KeyFor     func(ev models.Event) models.SessionKey
	Start      StartFunc
	States     map[models.StateType]StateDef
	OnComplete CompleteFunc
}

// MatchesTrigger reports whether text is one of the flow's trigger phrases.
func (d *Definition) MatchesTrigger(text string) bool {
	for _, t := range d.Triggers {
		if text == t {
			return true
		}
	}
	return false
}

// MatchesCancel reports whether text is one of the flow's cancel phrases.
func (d *Definition) MatchesCancel(text string) bool {
	for _, c := range d.CancelPhrases {
		if text == c {
			return true
		}
	}
	return false
}
