// Package queue defines message payloads exchanged over the message broker.
package queue

// CallEndedEvent is published when a metering session terminates for any
// reason. It carries enough for downstream consumers to log or trigger
// analytics without querying the primary database.
type CallEndedEvent struct {
	UserID           uint64 `json:"user_id"`
	Plan             string `json:"plan"`
	Reason           string `json:"reason"` // time-up | user-ended
	SecondsConsumed  int64  `json:"seconds_consumed"`
	SecondsRemaining int64  `json:"seconds_remaining"`
	EndedAt          string `json:"ended_at"`
}
