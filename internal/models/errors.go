package models

import "errors"

// Error variables shared across the session core. Stale-operation errors
// (ErrSessionNotFound, ErrVersionMismatch) are absorbed inside the engine
// and never surfaced to actors.
var (
	// ErrSessionActive is returned when a trigger arrives while a session
	// already occupies the key (single-flight violation attempt).
	ErrSessionActive = errors.New("a session is already active for this key")
	// ErrSessionNotFound is returned when a session lookup or compare-and-swap
	// targets a key with no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrVersionMismatch is returned when a compare-and-swap carries a stale
	// version stamp.
	ErrVersionMismatch = errors.New("session version mismatch")
	// ErrNoSuitableContent is returned when quiz question generation exhausts
	// its attempt budget without finding usable material.
	ErrNoSuitableContent = errors.New("no suitable quiz content found")
)

// IsStaleSession reports whether err marks the losing side of a session
// race: the session moved on or was removed before the operation applied.
func IsStaleSession(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrVersionMismatch)
}
