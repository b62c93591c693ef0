package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/campus-ticket-claim/internal/model"
)

// TicketRepo is the ticket ledger.  Rows are created by the claim
// transaction and never deleted here; the only later mutation is the
// check-in flag.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, event_id, holder_id, kind, created_at, checked_in, checked_in_at`

// HasExistingTx reports whether the holder already owns a ticket for
// the event.  It must run inside the transaction that holds the event's
// inventory lock; the claim transaction uses READ COMMITTED so this read
// observes every claim committed before the lock was granted.
func (r *TicketRepo) HasExistingTx(ctx context.Context, tx *sql.Tx, eventID, holderID uint64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM tickets WHERE event_id = ? AND holder_id = ?)`
	var exists bool
	if err := tx.QueryRowContext(ctx, q, eventID, holderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check existing ticket: %w", err)
	}
	return exists, nil
}

// InsertTx writes a ticket row inside the caller's transaction.  A hit
// on the (event_id, holder_id) unique key is reported as
// ErrDuplicateTicket.
func (r *TicketRepo) InsertTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	const q = `INSERT INTO tickets (id, event_id, holder_id, kind, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, t.ID, t.EventID, t.HolderID, string(t.Kind), t.CreatedAt.UTC())
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateTicket
		}
		if isMissingParent(err) {
			return ErrEventNotFound
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// GetByID returns a single ticket or ErrTicketNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, ticketID string) (model.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, ticketID)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Ticket{}, ErrTicketNotFound
		}
		return model.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

// ListByHolder returns every ticket owned by the holder, newest first.
func (r *TicketRepo) ListByHolder(ctx context.Context, holderID uint64) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE holder_id = ? ORDER BY created_at DESC`, holderID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	tickets := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return tickets, nil
}

// CheckIn flips checked_in for a ticket.  It never touches the
// inventory.  Checking in twice returns ErrAlreadyCheckedIn.
func (r *TicketRepo) CheckIn(ctx context.Context, ticketID string, at time.Time) (model.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("begin check-in: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	t, err := scanTicket(tx.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ? FOR UPDATE`, ticketID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Ticket{}, ErrTicketNotFound
		}
		return model.Ticket{}, fmt.Errorf("load ticket: %w", err)
	}
	if t.CheckedIn {
		return model.Ticket{}, ErrAlreadyCheckedIn
	}
	at = at.UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET checked_in = TRUE, checked_in_at = ? WHERE id = ?`, at, ticketID); err != nil {
		return model.Ticket{}, fmt.Errorf("update check-in: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Ticket{}, fmt.Errorf("commit check-in: %w", err)
	}
	committed = true
	t.CheckedIn = true
	t.CheckedInAt = &at
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (model.Ticket, error) {
	var (
		t           model.Ticket
		kind        string
		checkedInAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.HolderID, &kind, &t.CreatedAt, &t.CheckedIn, &checkedInAt); err != nil {
		return model.Ticket{}, err
	}
	t.Kind = model.TicketKind(kind)
	if checkedInAt.Valid {
		at := checkedInAt.Time
		t.CheckedInAt = &at
	}
	return t, nil
}
