// Package models defines session state structures for FawnBot flows.
package models

import "time"

// FlowType identifies which flow definition governs a session.
type FlowType string

// StateType is a state tag within a flow's declared state set.
type StateType string

// DataKey names one collected payload field.
type DataKey string

// SessionKey is the opaque identity of one conversation, derived from the
// actor and scope by the owning flow definition.
type SessionKey string

// Payload maps collected field names to values. It grows monotonically
// while a session advances and is handed to the completion side effect.
type Payload map[DataKey]string

// Clone returns an independent copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SessionSnapshot is a read-only copy of a live session, safe to hold
// outside the session store's lock.
type SessionSnapshot struct {
	Key       SessionKey  `json:"key"`
	FlowType  FlowType    `json:"flow_type"`
	State     StateType   `json:"state"`
	StarterID int64       `json:"starter_id"`
	Version   int64       `json:"version"`
	Data      Payload     `json:"data,omitempty"`
	Dest      Destination `json:"dest"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
