package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kanolab/fawnbot/internal/models"
)

// record is the store-private live session. All access goes through the
// store's mutex; callers only ever see snapshots.
type record struct {
	key       models.SessionKey
	flowType  models.FlowType
	state     models.StateType
	starterID int64
	version   int64
	data      models.Payload
	dest      models.Destination
	createdAt time.Time
	updatedAt time.Time
	timer     *Handle
}

func (r *record) snapshot() models.SessionSnapshot {
	return models.SessionSnapshot{
		Key:       r.key,
		FlowType:  r.flowType,
		State:     r.state,
		StarterID: r.starterID,
		Version:   r.version,
		Data:      r.data.Clone(),
		Dest:      r.dest,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
}

// Mutation describes one accepted transition: the state to move to and the
// payload entries to merge in. Payload entries are only ever added or
// overwritten, never removed.
type Mutation struct {
	State models.StateType
	Set   models.Payload
}

// Store is the concurrency-safe mapping from session key to live session.
// Every mutation is a compare-and-swap on the session's version stamp, so
// for a single key all transitions are totally ordered and exactly one of
// any pair of racing operations wins.
type Store struct {
	mu       sync.Mutex
	sessions map[models.SessionKey]*record
}

// NewStore creates an empty session store.
func NewStore() *Store {
	slog.Debug("Creating session Store")
	return &Store{sessions: make(map[models.SessionKey]*record)}
}

// TryCreate atomically creates a session for key if none exists. It returns
// models.ErrSessionActive when the key is occupied; the caller must surface
// "previous flow still pending" rather than overwrite.
func (s *Store) TryCreate(key models.SessionKey, flowType models.FlowType, starterID int64, dest models.Destination, initial models.StateType) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[key]; exists {
		slog.Debug("Store TryCreate rejected, key occupied", "key", key, "flowType", flowType)
		return models.SessionSnapshot{}, models.ErrSessionActive
	}

	now := time.Now()
	r := &record{
		key:       key,
		flowType:  flowType,
		state:     initial,
		starterID: starterID,
		version:   1,
		data:      make(models.Payload),
		dest:      dest,
		createdAt: now,
		updatedAt: now,
	}
	s.sessions[key] = r
	slog.Info("Store session created", "key", key, "flowType", flowType, "state", initial, "starterID", starterID)
	return r.snapshot(), nil
}

// Get returns a snapshot of the session for key, if one exists.
func (s *Store) Get(key models.SessionKey) (models.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.sessions[key]
	if !ok {
		return models.SessionSnapshot{}, false
	}
	return r.snapshot(), true
}

// ApplyTransition applies mut to the session for key if and only if its
// current version equals expectedVersion. The version is bumped on success
// and any pending timer handle is retired; the caller is expected to attach
// a fresh handle for the new state. The loser of a race observes
// models.ErrVersionMismatch or models.ErrSessionNotFound and must perform
// no further action.
func (s *Store) ApplyTransition(key models.SessionKey, expectedVersion int64, mut Mutation) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.sessions[key]
	if !ok {
		slog.Debug("Store ApplyTransition on missing session", "key", key, "expectedVersion", expectedVersion)
		return models.SessionSnapshot{}, models.ErrSessionNotFound
	}
	if r.version != expectedVersion {
		slog.Debug("Store ApplyTransition version mismatch", "key", key, "expectedVersion", expectedVersion, "currentVersion", r.version)
		return models.SessionSnapshot{}, models.ErrVersionMismatch
	}

	r.timer.Cancel()
	r.timer = nil
	r.version++
	r.state = mut.State
	for k, v := range mut.Set {
		r.data[k] = v
	}
	r.updatedAt = time.Now()

	slog.Debug("Store ApplyTransition succeeded", "key", key, "state", r.state, "version", r.version)
	return r.snapshot(), nil
}

// Remove deletes the session for key under the same compare-and-swap
// discipline as ApplyTransition, cancelling any pending timer before the
// session disappears so no late expiry can follow.
func (s *Store) Remove(key models.SessionKey, expectedVersion int64) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.sessions[key]
	if !ok {
		slog.Debug("Store Remove on missing session", "key", key, "expectedVersion", expectedVersion)
		return models.SessionSnapshot{}, models.ErrSessionNotFound
	}
	if r.version != expectedVersion {
		slog.Debug("Store Remove version mismatch", "key", key, "expectedVersion", expectedVersion, "currentVersion", r.version)
		return models.SessionSnapshot{}, models.ErrVersionMismatch
	}

	r.timer.Cancel()
	delete(s.sessions, key)
	slog.Info("Store session removed", "key", key, "flowType", r.flowType, "state", r.state)
	return r.snapshot(), nil
}

// AttachTimer installs h as the session's pending timer if the session still
// exists at version. Otherwise the session has already moved on and h is
// cancelled immediately, so a handle scheduled against a dead version can
// never fire its expiry action.
func (s *Store) AttachTimer(key models.SessionKey, version int64, h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.sessions[key]
	if !ok || r.version != version {
		slog.Debug("Store AttachTimer to stale session, cancelling handle", "key", key, "version", version)
		h.Cancel()
		return
	}
	r.timer.Cancel()
	r.timer = h
}

// List returns snapshots of all live sessions, ordered by key for stable
// inspection output.
func (s *Store) List() []models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.SessionSnapshot, 0, len(s.sessions))
	for _, r := range s.sessions {
		out = append(out, r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
