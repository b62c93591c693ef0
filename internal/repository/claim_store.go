package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/campus-ticket-claim/internal/model"
)

// ClaimStore opens claim transactions spanning the inventory and the
// ticket ledger.  The handle is passed explicitly to whoever needs it;
// nothing in this package keeps a process-wide connection.
type ClaimStore struct {
	db        *sql.DB
	inventory *InventoryRepo
	tickets   *TicketRepo
}

// NewClaimStore wires both repositories onto the same database handle.
func NewClaimStore(db *sql.DB, inventory *InventoryRepo, tickets *TicketRepo) *ClaimStore {
	return &ClaimStore{db: db, inventory: inventory, tickets: tickets}
}

// Begin starts one claim transaction.  READ COMMITTED keeps the
// duplicate check a plain read of the latest committed rows and avoids
// gap locks on the tickets unique index; serialization comes from the
// inventory row lock, not from the isolation level.
func (s *ClaimStore) Begin(ctx context.Context) (*ClaimTx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	return &ClaimTx{tx: tx, inventory: s.inventory, tickets: s.tickets}, nil
}

// ClaimTx is a single claim transaction.  It is not safe for concurrent
// use; the coordinator drives it from one goroutine.
type ClaimTx struct {
	tx        *sql.Tx
	inventory *InventoryRepo
	tickets   *TicketRepo
}

func (t *ClaimTx) LockInventory(ctx context.Context, eventID uint64) (model.EventInventory, error) {
	return t.inventory.GetAndLockTx(ctx, t.tx, eventID)
}

func (t *ClaimTx) HasTicket(ctx context.Context, eventID, holderID uint64) (bool, error) {
	return t.tickets.HasExistingTx(ctx, t.tx, eventID, holderID)
}

func (t *ClaimTx) InsertTicket(ctx context.Context, ticket *model.Ticket) error {
	return t.tickets.InsertTx(ctx, t.tx, ticket)
}

func (t *ClaimTx) DecrementInventory(ctx context.Context, eventID uint64) error {
	return t.inventory.DecrementTx(ctx, t.tx, eventID)
}

func (t *ClaimTx) Commit() error { return t.tx.Commit() }

// Rollback is safe to call after Commit; database/sql then returns
// sql.ErrTxDone, which callers ignore.
func (t *ClaimTx) Rollback() error { return t.tx.Rollback() }
