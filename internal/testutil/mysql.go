package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/iliyamo/campus-ticket-claim/internal/database"
)

const testDBLock = "campus_ticket_claim_test"

// OpenTestDB connects to the MySQL database named by TEST_DB_DSN, applies
// migrations and empties the claim tables.  The test is skipped when the
// variable is unset or the server is unreachable.  A named lock held for
// the test's lifetime keeps packages tested in parallel off each other's
// rows.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set; skipping MySQL integration test")
	}
	db, err := database.OpenDSN(dsn)
	if err != nil {
		t.Skipf("skipping MySQL integration test: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	lockTestDB(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	TruncateAll(t, db)
	return db
}

// TruncateAll removes every ticket and event.
func TruncateAll(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	for _, q := range []string{`DELETE FROM tickets`, `DELETE FROM events`} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
}

// InsertEvent creates an event with the given capacity, all of it
// available, and returns its id.
func InsertEvent(t *testing.T, db *sql.DB, capacity, priceCents uint32) uint64 {
	t.Helper()
	res, err := db.ExecContext(context.Background(),
		`INSERT INTO events (title, starts_at, price_cents, capacity, tickets_available) VALUES (?, ?, ?, ?, ?)`,
		"Test event", time.Now().UTC().Add(24*time.Hour), priceCents, capacity, capacity)
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return uint64(id)
}

// SetAvailable overwrites tickets_available, bypassing the claim path.
func SetAvailable(t *testing.T, db *sql.DB, eventID uint64, available uint32) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(),
		`UPDATE events SET tickets_available = ? WHERE id = ?`, available, eventID); err != nil {
		t.Fatalf("set available: %v", err)
	}
}

func lockTestDB(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 60)`, testDBLock).Scan(&got); err != nil || got.Int64 != 1 {
		_ = conn.Close()
		t.Fatalf("acquire test lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, testDBLock)
		_ = conn.Close()
	})
}
