// Package testutil provides test doubles shared by several packages.
package testutil

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/campus-ticket-claim/internal/model"
	"github.com/iliyamo/campus-ticket-claim/internal/repository"
	"github.com/iliyamo/campus-ticket-claim/internal/reservation"
)

// ErrTxClosed is returned when a unit of work is used after it ended,
// matching database/sql.
var ErrTxClosed = sql.ErrTxDone

// MemStore is an in-memory reservation.Store.  It mimics what the MySQL
// store relies on: an exclusive per-event row lock held until commit or
// rollback, writes that only become visible on commit, a unique key on
// (event_id, holder_id) and a storage guard refusing to take
// tickets_available below zero.
type MemStore struct {
	// LockWait bounds the wait for an event lock.  Exceeding it returns
	// MySQL error 1205.  Zero waits for the context only.
	LockWait time.Duration

	// Hooks let tests inject failures at a given protocol step.  They
	// run while the event lock is held.
	BeforeInsert    func(eventID, holderID uint64) error
	BeforeDecrement func(eventID uint64) error
	BeforeCommit    func() error

	// SkipDuplicateCheck makes HasTicket always report false, as a
	// stale read replica would.
	SkipDuplicateCheck bool

	mu      sync.Mutex
	events  map[uint64]*memEvent
	tickets map[string]model.Ticket
	owners  map[holderKey]string

	begins    atomic.Int64
	commits   atomic.Int64
	rollbacks atomic.Int64
}

type memEvent struct {
	inv  model.EventInventory
	lock chan struct{}
}

type holderKey struct {
	eventID  uint64
	holderID uint64
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		events:  make(map[uint64]*memEvent),
		tickets: make(map[string]model.Ticket),
		owners:  make(map[holderKey]string),
	}
}

// SeedEvent creates or replaces an event row.
func (s *MemStore) SeedEvent(eventID uint64, capacity, available, priceCents uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = &memEvent{
		inv: model.EventInventory{
			EventID:          eventID,
			Capacity:         capacity,
			TicketsAvailable: available,
			PriceCents:       priceCents,
		},
		lock: make(chan struct{}, 1),
	}
}

// SeedTicket stores a committed ticket directly.
func (s *MemStore) SeedTicket(t model.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	s.owners[holderKey{t.EventID, t.HolderID}] = t.ID
}

// SetPrice changes the committed price of an event.
func (s *MemStore) SetPrice(eventID uint64, priceCents uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := s.events[eventID]; ok {
		ev.inv.PriceCents = priceCents
	}
}

// Inventory returns the committed inventory of an event.
func (s *MemStore) Inventory(eventID uint64) (model.EventInventory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return model.EventInventory{}, false
	}
	return ev.inv, true
}

// TicketsFor returns the committed tickets of an event.
func (s *MemStore) TicketsFor(eventID uint64) []model.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Ticket, 0)
	for _, t := range s.tickets {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	return out
}

// TicketCount returns the number of committed tickets across all events.
func (s *MemStore) TicketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *MemStore) Begins() int64    { return s.begins.Load() }
func (s *MemStore) Commits() int64   { return s.commits.Load() }
func (s *MemStore) Rollbacks() int64 { return s.rollbacks.Load() }

// Begin implements reservation.Store.
func (s *MemStore) Begin(ctx context.Context) (reservation.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.begins.Add(1)
	return &memTx{store: s, decrements: make(map[uint64]uint32)}, nil
}

type memTx struct {
	store      *MemStore
	held       []*memEvent
	inserts    []model.Ticket
	decrements map[uint64]uint32
	done       bool
}

func (t *memTx) LockInventory(ctx context.Context, eventID uint64) (model.EventInventory, error) {
	if t.done {
		return model.EventInventory{}, ErrTxClosed
	}
	s := t.store
	s.mu.Lock()
	ev, ok := s.events[eventID]
	s.mu.Unlock()
	if !ok {
		return model.EventInventory{}, repository.ErrEventNotFound
	}
	if !t.holds(ev) {
		if err := t.acquire(ctx, ev); err != nil {
			return model.EventInventory{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := ev.inv
	inv.TicketsAvailable -= t.decrements[eventID]
	return inv, nil
}

func (t *memTx) acquire(ctx context.Context, ev *memEvent) error {
	var timeout <-chan time.Time
	if t.store.LockWait > 0 {
		timer := time.NewTimer(t.store.LockWait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case ev.lock <- struct{}{}:
		t.held = append(t.held, ev)
		return nil
	case <-timeout:
		return &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded; try restarting transaction"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memTx) holds(ev *memEvent) bool {
	for _, h := range t.held {
		if h == ev {
			return true
		}
	}
	return false
}

func (t *memTx) HasTicket(_ context.Context, eventID, holderID uint64) (bool, error) {
	if t.done {
		return false, ErrTxClosed
	}
	if t.store.SkipDuplicateCheck {
		return false, nil
	}
	for _, p := range t.inserts {
		if p.EventID == eventID && p.HolderID == holderID {
			return true, nil
		}
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owners[holderKey{eventID, holderID}]
	return ok, nil
}

func (t *memTx) InsertTicket(_ context.Context, ticket *model.Ticket) error {
	if t.done {
		return ErrTxClosed
	}
	if hook := t.store.BeforeInsert; hook != nil {
		if err := hook(ticket.EventID, ticket.HolderID); err != nil {
			return err
		}
	}
	for _, p := range t.inserts {
		if p.EventID == ticket.EventID && p.HolderID == ticket.HolderID {
			return repository.ErrDuplicateTicket
		}
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[holderKey{ticket.EventID, ticket.HolderID}]; ok {
		return repository.ErrDuplicateTicket
	}
	if _, ok := s.events[ticket.EventID]; !ok {
		return repository.ErrEventNotFound
	}
	t.inserts = append(t.inserts, *ticket)
	return nil
}

func (t *memTx) DecrementInventory(_ context.Context, eventID uint64) error {
	if t.done {
		return ErrTxClosed
	}
	if hook := t.store.BeforeDecrement; hook != nil {
		if err := hook(eventID); err != nil {
			return err
		}
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return repository.ErrEventNotFound
	}
	if ev.inv.TicketsAvailable <= t.decrements[eventID] {
		return repository.ErrInvariantViolation
	}
	t.decrements[eventID]++
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return ErrTxClosed
	}
	if hook := t.store.BeforeCommit; hook != nil {
		if err := hook(); err != nil {
			return err
		}
	}
	s := t.store
	s.mu.Lock()
	for _, p := range t.inserts {
		s.tickets[p.ID] = p
		s.owners[holderKey{p.EventID, p.HolderID}] = p.ID
	}
	for id, n := range t.decrements {
		s.events[id].inv.TicketsAvailable -= n
	}
	s.mu.Unlock()
	s.commits.Add(1)
	t.finish()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return ErrTxClosed
	}
	t.store.rollbacks.Add(1)
	t.finish()
	return nil
}

func (t *memTx) finish() {
	t.done = true
	for _, ev := range t.held {
		<-ev.lock
	}
	t.held = nil
	t.inserts = nil
	t.decrements = nil
}
