// Package repository holds the MySQL data access for the claim
// subsystem.  Sentinel errors defined here let the coordinator and
// handlers tell business outcomes apart from infrastructure failures
// without looking at driver error numbers.
package repository

import "errors"

// ErrEventNotFound is returned when the events row does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrTicketNotFound is returned when no ticket has the requested id.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrDuplicateTicket is returned when the (event_id, holder_id) unique
// key rejects an insert.  Handlers should translate this into 409.
var ErrDuplicateTicket = errors.New("ticket already issued for holder")

// ErrInvariantViolation is returned when a storage-layer constraint
// rejects a write that the claim protocol should never attempt, such as
// decrementing tickets_available below zero.
var ErrInvariantViolation = errors.New("inventory invariant violated")

// ErrAlreadyCheckedIn is returned when a ticket is checked in twice.
var ErrAlreadyCheckedIn = errors.New("ticket already checked in")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers should translate this into 403.
var ErrForbidden = errors.New("forbidden")
