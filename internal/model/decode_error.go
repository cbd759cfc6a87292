package model

// EventError records a replayed event the pool rejected.
type EventError struct {
	Line      int       `json:"line"`
	Timestamp uint32    `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Token     string    `json:"token"`
	Sender    string    `json:"sender"`
	Error     string    `json:"error"`
}
