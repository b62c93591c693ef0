// Package queue defines message payloads exchanged over the message broker
// and the background consumer for them.
package queue

// TicketIssuedQueue is the durable queue ticket issuance events go to.
const TicketIssuedQueue = "ticket.issued"

// TicketIssuedEvent is published after a claim transaction commits.  It
// carries enough for downstream consumers to log, notify or feed
// analytics without querying the primary database.
type TicketIssuedEvent struct {
	TicketID string `json:"ticket_id"`
	EventID  uint64 `json:"event_id"`
	HolderID uint64 `json:"holder_id"`
	Kind     string `json:"kind"`
	IssuedAt string `json:"issued_at"`
}
