package reservation

import (
	"context"
	"errors"

	"github.com/iliyamo/campus-ticket-claim/internal/model"
	"github.com/iliyamo/campus-ticket-claim/internal/repository"
)

// Result tags the terminal outcome of one claim attempt.
type Result int

const (
	Issued Result = iota + 1
	SoldOut
	AlreadyClaimed
	EventNotFound
	Infra
)

func (r Result) String() string {
	switch r {
	case Issued:
		return "issued"
	case SoldOut:
		return "sold_out"
	case AlreadyClaimed:
		return "already_claimed"
	case EventNotFound:
		return "event_not_found"
	case Infra:
		return "infra"
	}
	return "unknown"
}

// State is how far an attempt got through the protocol.
type State int

const (
	Started State = iota + 1
	Locked
	Validated
	IssuedState
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case Locked:
		return "locked"
	case Validated:
		return "validated"
	case IssuedState:
		return "issued"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Outcome is what the coordinator returns for every attempt.  Ticket is
// only set when Result is Issued; Err is only set when Result is Infra.
// LastState records the furthest state reached before the attempt ended
// (Committed on success).
type Outcome struct {
	Result    Result
	Ticket    model.Ticket
	Err       error
	LastState State
}

// Retryable reports whether the caller may run a fresh attempt.  Only
// transient infrastructure failures qualify; business results, caller
// cancellation and invariant violations never do.
func (o Outcome) Retryable() bool {
	if o.Result != Infra || o.Err == nil {
		return false
	}
	if errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, ErrCallerGone) {
		return false
	}
	return repository.IsTransient(o.Err)
}
