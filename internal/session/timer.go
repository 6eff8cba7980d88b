// Package session implements the in-memory session core: single-fire
// cancellable timer handles bound to session versions, and a
// concurrency-safe session store with compare-and-swap updates.
package session

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kanolab/fawnbot/internal/models"
)

// ExpiryFunc is invoked when a handle fires. It receives the session key and
// the version captured at schedule time so the callee can detect staleness.
type ExpiryFunc func(key models.SessionKey, version int64)

// Handle is a cancellable, single-fire delayed action. A single-use
// compare-and-set flag guarantees that of {cancel, fire} exactly one wins,
// never both, regardless of interleaving.
type Handle struct {
	key     models.SessionKey
	version int64
	retired atomic.Bool
	timer   *time.Timer
}

// Schedule arms a handle that invokes fn after delay unless cancelled first.
func Schedule(key models.SessionKey, version int64, delay time.Duration, fn ExpiryFunc) *Handle {
	h := &Handle{key: key, version: version}
	h.timer = time.AfterFunc(delay, func() {
		if !h.retired.CompareAndSwap(false, true) {
			slog.Debug("Timer fire lost to cancel", "key", key, "version", version)
			return
		}
		slog.Debug("Timer fired", "key", key, "version", version)
		fn(key, version)
	})
	slog.Debug("Timer scheduled", "key", key, "version", version, "delay", delay)
	return h
}

// Cancel retires the handle and prevents the expiry action from running if
// it has not fired yet. Calling Cancel on a fired or already-cancelled
// handle (or a nil handle) is a no-op.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	if h.retired.CompareAndSwap(false, true) {
		h.timer.Stop()
		slog.Debug("Timer cancelled", "key", h.key, "version", h.version)
	}
}

// Version returns the session version captured when the handle was scheduled.
func (h *Handle) Version() int64 {
	return h.version
}
