package model

import (
	"fmt"
	"strings"
)

// EventKind is the streaming-protocol action carried by a FlowEvent.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ParseEventKind normalizes a kind name.
func ParseEventKind(name string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "create", "created":
		return EventCreate, nil
	case "update", "updated":
		return EventUpdate, nil
	case "delete", "deleted", "terminate", "terminated":
		return EventDelete, nil
	default:
		return "", fmt.Errorf("unsupported event kind: %s", name)
	}
}

// FlowEvent is one line of a replay input: a participant opening, changing
// or closing a stream at a point in time.
type FlowEvent struct {
	Timestamp uint32    `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Token     string    `json:"token"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Rate      string    `json:"rate,omitempty"`
}
