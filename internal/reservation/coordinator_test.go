package reservation_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-ticket-claim/internal/model"
	"github.com/iliyamo/campus-ticket-claim/internal/repository"
	"github.com/iliyamo/campus-ticket-claim/internal/reservation"
	"github.com/iliyamo/campus-ticket-claim/internal/testutil"
)

func newCoordinator(store reservation.Store, opts ...reservation.Option) *reservation.Coordinator {
	return reservation.NewCoordinator(store, zerolog.Nop(), opts...)
}

// assertBalanced checks capacity == tickets_available + issued tickets.
func assertBalanced(t *testing.T, store *testutil.MemStore, eventID uint64) {
	t.Helper()
	inv, ok := store.Inventory(eventID)
	if !ok {
		t.Fatalf("event %d missing", eventID)
	}
	issued := len(store.TicketsFor(eventID))
	if int(inv.TicketsAvailable)+issued != int(inv.Capacity) {
		t.Fatalf("inventory out of balance: capacity=%d available=%d tickets=%d",
			inv.Capacity, inv.TicketsAvailable, issued)
	}
}

func TestCoordinator_Claim(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	t.Run("issues free ticket and decrements inventory", func(t *testing.T) {
		store := testutil.NewMemStore()
		store.SeedEvent(1, 10, 10, 0)
		c := newCoordinator(store,
			reservation.WithClock(func() time.Time { return now }),
			reservation.WithIDGenerator(func() (string, error) { return "ticket-1", nil }),
		)

		out := c.Claim(context.Background(), 1, 42)
		if out.Result != reservation.Issued {
			t.Fatalf("expected issued, got %v (%v)", out.Result, out.Err)
		}
		if out.LastState != reservation.Committed {
			t.Fatalf("expected committed state, got %v", out.LastState)
		}
		if out.Ticket.ID != "ticket-1" || out.Ticket.Kind != model.TicketKindFree {
			t.Fatalf("unexpected ticket: %+v", out.Ticket)
		}
		if !out.Ticket.CreatedAt.Equal(now) {
			t.Fatalf("expected created_at %v, got %v", now, out.Ticket.CreatedAt)
		}
		inv, _ := store.Inventory(1)
		if inv.TicketsAvailable != 9 {
			t.Fatalf("expected 9 tickets left, got %d", inv.TicketsAvailable)
		}
		assertBalanced(t, store, 1)
	})

	t.Run("paid event issues paid ticket", func(t *testing.T) {
		store := testutil.NewMemStore()
		store.SeedEvent(2, 3, 3, 1500)
		out := newCoordinator(store).Claim(context.Background(), 2, 7)
		if out.Result != reservation.Issued {
			t.Fatalf("expected issued, got %v", out.Result)
		}
		if out.Ticket.Kind != model.TicketKindPaid {
			t.Fatalf("expected paid ticket, got %s", out.Ticket.Kind)
		}
		if out.Ticket.ID == "" {
			t.Fatalf("expected generated ticket id")
		}
	})

	t.Run("sold out leaves no side effects", func(t *testing.T) {
		store := testutil.NewMemStore()
		store.SeedEvent(3, 5, 0, 0)
		out := newCoordinator(store).Claim(context.Background(), 3, 1)
		if out.Result != reservation.SoldOut {
			t.Fatalf("expected sold out, got %v", out.Result)
		}
		if out.LastState != reservation.Aborted {
			t.Fatalf("expected aborted, got %v", out.LastState)
		}
		if store.TicketCount() != 0 || store.Commits() != 0 {
			t.Fatalf("expected no writes, tickets=%d commits=%d", store.TicketCount(), store.Commits())
		}
		inv, _ := store.Inventory(3)
		if inv.TicketsAvailable != 0 {
			t.Fatalf("inventory changed: %+v", inv)
		}
	})

	t.Run("missing event writes nothing", func(t *testing.T) {
		store := testutil.NewMemStore()
		out := newCoordinator(store).Claim(context.Background(), 999999, 1)
		if out.Result != reservation.EventNotFound {
			t.Fatalf("expected event not found, got %v", out.Result)
		}
		if store.TicketCount() != 0 || store.Commits() != 0 {
			t.Fatalf("expected no writes")
		}
		if store.Rollbacks() != 1 {
			t.Fatalf("expected the unit of work to be rolled back, got %d", store.Rollbacks())
		}
	})

	t.Run("repeat claim is rejected", func(t *testing.T) {
		store := testutil.NewMemStore()
		store.SeedEvent(4, 5, 5, 0)
		c := newCoordinator(store)
		first := c.Claim(context.Background(), 4, 9)
		if first.Result != reservation.Issued {
			t.Fatalf("expected first claim issued, got %v", first.Result)
		}
		for i := 0; i < 3; i++ {
			again := c.Claim(context.Background(), 4, 9)
			if again.Result != reservation.AlreadyClaimed {
				t.Fatalf("attempt %d: expected already claimed, got %v", i, again.Result)
			}
		}
		if n := len(store.TicketsFor(4)); n != 1 {
			t.Fatalf("expected one ticket, got %d", n)
		}
		assertBalanced(t, store, 4)
	})

	t.Run("kind follows price at issuance only", func(t *testing.T) {
		store := testutil.NewMemStore()
		store.SeedEvent(5, 5, 5, 0)
		c := newCoordinator(store)
		free := c.Claim(context.Background(), 5, 1)
		store.SetPrice(5, 2000)
		paid := c.Claim(context.Background(), 5, 2)
		if free.Ticket.Kind != model.TicketKindFree || paid.Ticket.Kind != model.TicketKindPaid {
			t.Fatalf("unexpected kinds: %s, %s", free.Ticket.Kind, paid.Ticket.Kind)
		}
		for _, tk := range store.TicketsFor(5) {
			if tk.HolderID == 1 && tk.Kind != model.TicketKindFree {
				t.Fatalf("issued ticket changed kind after price update")
			}
		}
	})
}

func TestCoordinator_ScenarioA_LastSeat(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.SeedEvent(10, 1, 1, 0)
	c := newCoordinator(store)

	results := claimConcurrently(c, 10, []uint64{100, 200})
	if results[reservation.Issued] != 1 || results[reservation.SoldOut] != 1 {
		t.Fatalf("expected one issued and one sold out, got %v", results)
	}
	assertBalanced(t, store, 10)
}

func TestCoordinator_ScenarioB_SameHolder(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.SeedEvent(11, 5, 5, 0)
	c := newCoordinator(store)

	results := claimConcurrently(c, 11, []uint64{7, 7, 7})
	if results[reservation.Issued] != 1 || results[reservation.AlreadyClaimed] != 2 {
		t.Fatalf("expected one issued and two already claimed, got %v", results)
	}
	inv, _ := store.Inventory(11)
	if inv.TicketsAvailable != 4 {
		t.Fatalf("expected 4 left, got %d", inv.TicketsAvailable)
	}
	assertBalanced(t, store, 11)
}

func TestCoordinator_NoOversellUnderContention(t *testing.T) {
	t.Parallel()
	const capacity = 10
	store := testutil.NewMemStore()
	store.SeedEvent(12, capacity, capacity, 0)
	c := newCoordinator(store)

	holders := make([]uint64, 0, 60)
	for i := uint64(1); i <= 50; i++ {
		holders = append(holders, i)
	}
	// a few holders race themselves as well
	holders = append(holders, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	results := claimConcurrently(c, 12, holders)
	if results[reservation.Issued] != capacity {
		t.Fatalf("expected %d issued, got %v", capacity, results)
	}
	if results[reservation.Infra] != 0 {
		t.Fatalf("unexpected infra failures: %v", results)
	}
	seen := make(map[uint64]bool)
	for _, tk := range store.TicketsFor(12) {
		if seen[tk.HolderID] {
			t.Fatalf("holder %d owns two tickets", tk.HolderID)
		}
		seen[tk.HolderID] = true
	}
	assertBalanced(t, store, 12)
}

func TestCoordinator_DifferentEventsDoNotBlock(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.SeedEvent(20, 5, 5, 0)
	store.SeedEvent(21, 5, 5, 0)

	// hold event 20's row lock in a transaction that never finishes
	// during the claim below
	uow, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := uow.LockInventory(context.Background(), 20); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer uow.Rollback()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out := newCoordinator(store).Claim(ctx, 21, 1)
	if out.Result != reservation.Issued {
		t.Fatalf("expected claim on another event to proceed, got %v (%v)", out.Result, out.Err)
	}
}

func TestCoordinator_LockWaitTimeoutIsTransient(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.LockWait = 20 * time.Millisecond
	store.SeedEvent(30, 5, 5, 0)

	uow, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := uow.LockInventory(context.Background(), 30); err != nil {
		t.Fatalf("lock: %v", err)
	}

	out := newCoordinator(store).Claim(context.Background(), 30, 1)
	_ = uow.Rollback()

	if out.Result != reservation.Infra {
		t.Fatalf("expected infra failure, got %v", out.Result)
	}
	if !out.Retryable() {
		t.Fatalf("expected lock wait timeout to be retryable: %v", out.Err)
	}
	if store.TicketCount() != 0 {
		t.Fatalf("expected no tickets")
	}
}

func TestCoordinator_TxTimeoutWhileWaitingForLock(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.SeedEvent(31, 5, 5, 0)

	uow, _ := store.Begin(context.Background())
	if _, err := uow.LockInventory(context.Background(), 31); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer uow.Rollback()

	out := newCoordinator(store, reservation.WithTxTimeout(20*time.Millisecond)).Claim(context.Background(), 31, 1)
	if out.Result != reservation.Infra || !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v (%v)", out.Result, out.Err)
	}
	if !out.Retryable() {
		t.Fatalf("expected tx timeout to be retryable")
	}
}

func TestCoordinator_AtomicityUnderFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		inject    func(s *testutil.MemStore)
		retryable bool
	}{
		{
			name: "connection lost between insert and decrement",
			inject: func(s *testutil.MemStore) {
				s.BeforeDecrement = func(uint64) error { return driver.ErrBadConn }
			},
			retryable: true,
		},
		{
			name: "deadlock victim on insert",
			inject: func(s *testutil.MemStore) {
				s.BeforeInsert = func(uint64, uint64) error {
					return &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
				}
			},
			retryable: true,
		},
		{
			name: "commit fails",
			inject: func(s *testutil.MemStore) {
				s.BeforeCommit = func() error { return mysql.ErrInvalidConn }
			},
			retryable: true,
		},
		{
			name: "storage rejects decrement",
			inject: func(s *testutil.MemStore) {
				s.BeforeDecrement = func(uint64) error {
					return fmt.Errorf("decrement: %w", repository.ErrInvariantViolation)
				}
			},
			retryable: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := testutil.NewMemStore()
			store.SeedEvent(40, 3, 3, 0)
			tt.inject(store)

			out := newCoordinator(store).Claim(context.Background(), 40, 1)
			if out.Result != reservation.Infra {
				t.Fatalf("expected infra failure, got %v", out.Result)
			}
			if out.Retryable() != tt.retryable {
				t.Fatalf("expected retryable=%v for %v", tt.retryable, out.Err)
			}
			if out.Ticket.ID != "" {
				t.Fatalf("failed attempt must not return a ticket")
			}
			if store.TicketCount() != 0 {
				t.Fatalf("orphan ticket left behind")
			}
			inv, _ := store.Inventory(40)
			if inv.TicketsAvailable != 3 {
				t.Fatalf("inventory changed to %d", inv.TicketsAvailable)
			}
			if store.Rollbacks() != 1 {
				t.Fatalf("expected one rollback, got %d", store.Rollbacks())
			}
		})
	}
}

func TestCoordinator_UniqueKeyBacksUpDuplicateCheck(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.SeedEvent(50, 5, 4, 0)
	store.SeedTicket(model.Ticket{ID: "existing", EventID: 50, HolderID: 3, Kind: model.TicketKindFree})
	store.SkipDuplicateCheck = true

	out := newCoordinator(store).Claim(context.Background(), 50, 3)
	if out.Result != reservation.AlreadyClaimed {
		t.Fatalf("expected already claimed, got %v", out.Result)
	}
	if n := len(store.TicketsFor(50)); n != 1 {
		t.Fatalf("expected one ticket, got %d", n)
	}
	assertBalanced(t, store, 50)
}

func TestCoordinator_CallerGoneBeforeCommit(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.SeedEvent(60, 2, 2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	store.BeforeDecrement = func(uint64) error {
		cancel()
		return nil
	}

	out := newCoordinator(store).Claim(ctx, 60, 1)
	if out.Result != reservation.Infra || !errors.Is(out.Err, reservation.ErrCallerGone) {
		t.Fatalf("expected caller gone, got %v (%v)", out.Result, out.Err)
	}
	if out.Retryable() {
		t.Fatalf("caller cancellation must not be retried")
	}
	if store.TicketCount() != 0 || store.Commits() != 0 {
		t.Fatalf("ticket committed after the caller left")
	}
}

func TestMemStore_StorageGuardRejectsNegativeInventory(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.SeedEvent(70, 1, 1, 0)

	uow, _ := store.Begin(context.Background())
	defer uow.Rollback()
	if _, err := uow.LockInventory(context.Background(), 70); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := uow.DecrementInventory(context.Background(), 70); err != nil {
		t.Fatalf("first decrement: %v", err)
	}
	if err := uow.DecrementInventory(context.Background(), 70); !errors.Is(err, repository.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func claimConcurrently(c *reservation.Coordinator, eventID uint64, holders []uint64) map[reservation.Result]int {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		start   = make(chan struct{})
		results = make(map[reservation.Result]int)
	)
	for _, h := range holders {
		wg.Add(1)
		go func(holderID uint64) {
			defer wg.Done()
			<-start
			out := c.Claim(context.Background(), eventID, holderID)
			mu.Lock()
			results[out.Result]++
			mu.Unlock()
		}(h)
	}
	close(start)
	wg.Wait()
	return results
}
