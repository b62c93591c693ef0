package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/campus-ticket-claim/internal/model"
)

// InventoryRepo gives access to the seat counters stored on the events
// table.  Only DecrementTx mutates tickets_available, and it must only
// be called while the caller's transaction holds the row lock taken by
// GetAndLockTx.
type InventoryRepo struct {
	db *sql.DB
}

// NewInventoryRepo returns a new InventoryRepo bound to the given database.
func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{db: db} }

// GetAndLockTx reads the inventory row of an event with SELECT ... FOR
// UPDATE.  The exclusive lock is held until the transaction commits or
// rolls back, which serializes every claim against the same event.
// Claims against other events are not affected.  ErrEventNotFound is
// returned when the event does not exist.
func (r *InventoryRepo) GetAndLockTx(ctx context.Context, tx *sql.Tx, eventID uint64) (model.EventInventory, error) {
	const q = `SELECT id, capacity, tickets_available, price_cents
               FROM events
               WHERE id = ?
               FOR UPDATE`
	var inv model.EventInventory
	err := tx.QueryRowContext(ctx, q, eventID).Scan(&inv.EventID, &inv.Capacity, &inv.TicketsAvailable, &inv.PriceCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EventInventory{}, ErrEventNotFound
		}
		return model.EventInventory{}, fmt.Errorf("lock inventory %d: %w", eventID, err)
	}
	return inv, nil
}

// DecrementTx takes one seat from the locked inventory row.  The
// statement has no "> 0" guard: the column is unsigned and constrained
// by CHECK, so the engine rejects a decrement below zero and the failure
// surfaces as ErrInvariantViolation.
func (r *InventoryRepo) DecrementTx(ctx context.Context, tx *sql.Tx, eventID uint64) error {
	const q = `UPDATE events SET tickets_available = tickets_available - 1 WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, eventID)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("decrement inventory %d: %w: %v", eventID, ErrInvariantViolation, err)
		}
		return fmt.Errorf("decrement inventory %d: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement inventory %d: %w", eventID, err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Snapshot returns the current counters without locking.  Listing and
// search pages use it; the value is a snapshot and not a promise that a
// claim will succeed.
func (r *InventoryRepo) Snapshot(ctx context.Context, eventID uint64) (model.EventInventory, error) {
	const q = `SELECT id, capacity, tickets_available, price_cents FROM events WHERE id = ?`
	var inv model.EventInventory
	err := r.db.QueryRowContext(ctx, q, eventID).Scan(&inv.EventID, &inv.Capacity, &inv.TicketsAvailable, &inv.PriceCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EventInventory{}, ErrEventNotFound
		}
		return model.EventInventory{}, fmt.Errorf("inventory snapshot %d: %w", eventID, err)
	}
	return inv, nil
}

// Discrepancy describes an event whose counters disagree with the
// ticket ledger: capacity != tickets_available + issued tickets.
type Discrepancy struct {
	EventID          uint64
	Capacity         uint32
	TicketsAvailable uint32
	TicketCount      uint32
}

// FindDiscrepancies scans every event and returns the ones that break
// the capacity invariant.  It is read-only and used by the auditor; an
// empty slice means the store is consistent.
func (r *InventoryRepo) FindDiscrepancies(ctx context.Context) ([]Discrepancy, error) {
	const q = `SELECT e.id, e.capacity, e.tickets_available, COUNT(t.id)
               FROM events e
               LEFT JOIN tickets t ON t.event_id = e.id
               GROUP BY e.id, e.capacity, e.tickets_available
               HAVING e.capacity <> e.tickets_available + COUNT(t.id)`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find discrepancies: %w", err)
	}
	defer rows.Close()
	out := make([]Discrepancy, 0)
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.EventID, &d.Capacity, &d.TicketsAvailable, &d.TicketCount); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discrepancies: %w", err)
	}
	return out, nil
}
