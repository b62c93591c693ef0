// Package reservation implements the ticket claim transaction.  A claim
// locks the event's inventory row, validates capacity and uniqueness,
// writes the ticket and decrements the inventory as one unit of work.
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-ticket-claim/internal/model"
	"github.com/iliyamo/campus-ticket-claim/internal/repository"
)

// ErrCallerGone is returned when the requester stopped waiting before
// the claim could commit.  The transaction is rolled back instead.
var ErrCallerGone = errors.New("caller cancelled before commit")

// UnitOfWork is one open claim transaction.  Every method runs inside
// the same transaction; LockInventory must be called first.
type UnitOfWork interface {
	LockInventory(ctx context.Context, eventID uint64) (model.EventInventory, error)
	HasTicket(ctx context.Context, eventID, holderID uint64) (bool, error)
	InsertTicket(ctx context.Context, t *model.Ticket) error
	DecrementInventory(ctx context.Context, eventID uint64) error
	Commit() error
	Rollback() error
}

// Store opens units of work.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// sqlStore adapts repository.ClaimStore to Store.
type sqlStore struct {
	s *repository.ClaimStore
}

// NewSQLStore exposes a MySQL claim store to the coordinator.
func NewSQLStore(s *repository.ClaimStore) Store { return sqlStore{s: s} }

func (s sqlStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

const defaultTxTimeout = 10 * time.Second

// Coordinator runs claim attempts.  It never retries; a sold-out or
// duplicate result is final and infrastructure failures are handed back
// to the caller, which decides whether to try again.
type Coordinator struct {
	store     Store
	log       zerolog.Logger
	txTimeout time.Duration
	now       func() time.Time
	newID     func() (string, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTxTimeout bounds the lifetime of a single claim transaction,
// including the wait for the inventory row lock.
func WithTxTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.txTimeout = d
		}
	}
}

// WithClock overrides the issuance timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides ticket id generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// NewCoordinator builds a Coordinator over the given store.
func NewCoordinator(store Store, log zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		log:       log.With().Str("component", "reservation").Logger(),
		txTimeout: defaultTxTimeout,
		now:       time.Now,
		newID:     newTicketID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newTicketID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Claim runs one attempt for holderID on eventID.
//
// The transaction runs on a context detached from the caller's
// cancellation so a client disconnect never interrupts a statement half
// way; it is bounded by the coordinator's tx timeout instead.  Before
// committing, the caller's context is checked once more and the attempt
// is rolled back if nobody is waiting for the answer.
func (c *Coordinator) Claim(ctx context.Context, eventID, holderID uint64) Outcome {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.txTimeout)
	defer cancel()

	log := c.log.With().Uint64("event_id", eventID).Uint64("holder_id", holderID).Logger()
	out := Outcome{LastState: Started}

	err := c.inTx(txCtx, ctx, func(uow UnitOfWork) (bool, error) {
		inv, err := uow.LockInventory(txCtx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				out.Result = EventNotFound
				return false, nil
			}
			return false, err
		}
		out.LastState = Locked

		// Checked only after the lock: reading the counter first and
		// locking later would let two claims decide on the same value.
		if inv.TicketsAvailable == 0 {
			out.Result = SoldOut
			return false, nil
		}
		exists, err := uow.HasTicket(txCtx, eventID, holderID)
		if err != nil {
			return false, err
		}
		if exists {
			out.Result = AlreadyClaimed
			return false, nil
		}
		out.LastState = Validated

		id, err := c.newID()
		if err != nil {
			return false, fmt.Errorf("generate ticket id: %w", err)
		}
		ticket := model.Ticket{
			ID:        id,
			EventID:   eventID,
			HolderID:  holderID,
			Kind:      inv.KindForPrice(),
			CreatedAt: c.now().UTC().Truncate(time.Microsecond),
		}
		if err := uow.InsertTicket(txCtx, &ticket); err != nil {
			if errors.Is(err, repository.ErrDuplicateTicket) {
				log.Error().Err(err).Msg("unique key rejected a ticket that passed the duplicate check")
				out.Result = AlreadyClaimed
				return false, nil
			}
			return false, err
		}
		out.LastState = IssuedState

		if err := uow.DecrementInventory(txCtx, eventID); err != nil {
			if errors.Is(err, repository.ErrInvariantViolation) {
				log.Error().Err(err).
					Uint32("capacity", inv.Capacity).
					Uint32("tickets_available", inv.TicketsAvailable).
					Msg("storage rejected inventory decrement")
			}
			return false, err
		}
		out.Ticket = ticket
		out.Result = Issued
		return true, nil
	})

	switch {
	case err != nil:
		out.Result = Infra
		out.Err = err
		out.Ticket = model.Ticket{}
		out.LastState = Aborted
		log.Warn().Err(err).Msg("claim aborted")
	case out.Result == Issued:
		out.LastState = Committed
		log.Debug().Str("ticket_id", out.Ticket.ID).Str("kind", string(out.Ticket.Kind)).Msg("ticket issued")
	default:
		out.LastState = Aborted
		log.Debug().Stringer("result", out.Result).Msg("claim rejected")
	}
	return out
}

// inTx opens a unit of work and runs fn in it.  The unit of work is
// rolled back on every path except a successful commit, and fn decides
// whether a commit is wanted at all.  caller is the requester's own
// context; it is consulted right before commit.
func (c *Coordinator) inTx(ctx, caller context.Context, fn func(UnitOfWork) (bool, error)) error {
	uow, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := uow.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.log.Warn().Err(rbErr).Msg("rollback failed")
		}
	}()

	commit, err := fn(uow)
	if err != nil || !commit {
		return err
	}
	if caller.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCallerGone, caller.Err())
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("commit claim: %w", err)
	}
	committed = true
	return nil
}
