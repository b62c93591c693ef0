// Package audit periodically reconciles event inventory against the
// ticket ledger and reports events where capacity no longer equals
// tickets_available plus issued tickets.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-ticket-claim/internal/repository"
)

// DiscrepancyFinder is implemented by repository.InventoryRepo.
type DiscrepancyFinder interface {
	FindDiscrepancies(ctx context.Context) ([]repository.Discrepancy, error)
}

type Auditor struct {
	finder  DiscrepancyFinder
	log     zerolog.Logger
	timeout time.Duration
}

func NewAuditor(finder DiscrepancyFinder, log zerolog.Logger) *Auditor {
	return &Auditor{
		finder:  finder,
		log:     log.With().Str("component", "inventory-audit").Logger(),
		timeout: 30 * time.Second,
	}
}

// Run performs one reconciliation pass.  Every discrepancy is logged at
// error level since the claim path should make them impossible.
func (a *Auditor) Run(ctx context.Context) ([]repository.Discrepancy, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	found, err := a.finder.FindDiscrepancies(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("inventory audit failed")
		return nil, err
	}
	for _, d := range found {
		a.log.Error().
			Uint64("event_id", d.EventID).
			Uint32("capacity", d.Capacity).
			Uint32("tickets_available", d.TicketsAvailable).
			Uint32("tickets_issued", d.TicketCount).
			Msg("inventory does not match ticket ledger")
	}
	if len(found) == 0 {
		a.log.Debug().Msg("inventory consistent")
	}
	return found, nil
}

// Start schedules Run every interval and returns the running scheduler.
// Overlapping runs are skipped.  The caller owns Shutdown.
func (a *Auditor) Start(interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("audit interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { _, _ = a.Run(context.Background()) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("inventory-audit"),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule audit: %w", err)
	}
	s.Start()
	a.log.Info().Dur("interval", interval).Msg("inventory auditor started")
	return s, nil
}
