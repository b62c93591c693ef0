package model

import "time"

// TicketKind is fixed once at issuance from the event price.
type TicketKind string

const (
	TicketKindFree TicketKind = "FREE"
	TicketKindPaid TicketKind = "PAID"
)

// Ticket is a single issued seat.  A ticket belongs to exactly one
// event and one holder; the (EventID, HolderID) pair is unique.
// Tickets are never deleted by the claim subsystem.
//
// Fields:
//  ID          – tickets.id, a random UUID generated at issuance.
//  EventID     – event the seat belongs to.
//  HolderID    – user that claimed the seat.
//  Kind        – FREE or PAID.
//  CreatedAt   – issuance timestamp (UTC).
//  CheckedIn   – flipped by the check-in collaborator.
//  CheckedInAt – when the flip happened, nil until then.
type Ticket struct {
	ID          string     `json:"ticket_id"`
	EventID     uint64     `json:"event_id"`
	HolderID    uint64     `json:"holder_id"`
	Kind        TicketKind `json:"kind"`
	CreatedAt   time.Time  `json:"created_at"`
	CheckedIn   bool       `json:"checked_in"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}
