// Package audit keeps a tamper-evident trail of masterkey lifecycle events.
package audit

import (
	"errors"
	"time"
)

// Action is what happened to a key.
type Action string

const (
	ActionCreate           Action = "key_create"
	ActionUnlock           Action = "key_unlock"
	ActionRotate           Action = "key_rotate"
	ActionChangePassphrase Action = "key_change_passphrase"
	ActionRevoke           Action = "key_revoke"
	ActionDelete           Action = "key_delete"
)

// Status represents the outcome of an action
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Severity levels for audit events
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ErrChainBroken is returned by Verify when an event was altered, removed,
// or reordered.
var ErrChainBroken = errors.New("audit hash chain broken")

// Event is one line of the trail. PreviousHash and EventHash are filled in
// by the trail.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       Action    `json:"action"`
	KeyID        string    `json:"key_id"`
	Status       Status    `json:"status"`
	Severity     Severity  `json:"severity"`
	Revision     int32     `json:"revision,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	PreviousHash string    `json:"previous_hash,omitempty"`
	EventHash    string    `json:"event_hash"`
}

// Recorder accepts audit events.
type Recorder interface {
	Record(event *Event) error
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(*Event) error { return nil }
