// Package service holds the application layer between HTTP handlers and
// the reservation coordinator: input validation, retry of transient
// failures, result mapping and post-commit notifications.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-ticket-claim/internal/config"
	"github.com/iliyamo/campus-ticket-claim/internal/model"
	q "github.com/iliyamo/campus-ticket-claim/internal/queue"
	"github.com/iliyamo/campus-ticket-claim/internal/reservation"
)

// FailureKind is the caller-visible category of a failed claim.
type FailureKind int

const (
	InvalidInput FailureKind = iota + 1
	EventNotFound
	SoldOut
	AlreadyClaimed
	Internal
)

func (k FailureKind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case EventNotFound:
		return "event_not_found"
	case SoldOut:
		return "sold_out"
	case AlreadyClaimed:
		return "already_claimed"
	case Internal:
		return "internal"
	}
	return "unknown"
}

// ClaimError is returned for every claim that did not issue a ticket.
type ClaimError struct {
	Kind FailureKind
	Err  error
}

func (e *ClaimError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ClaimError) Unwrap() error { return e.Err }

// KindOf returns the failure kind carried by err, or 0 if err is not a
// ClaimError.
func KindOf(err error) FailureKind {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// ClaimInput is a claim request as received from the transport.  The
// holder comes from the authenticated identity, never from the body.
type ClaimInput struct {
	EventID  string `validate:"required,numeric"`
	HolderID uint64 `validate:"required"`
}

// Claimer runs single claim attempts.
type Claimer interface {
	Claim(ctx context.Context, eventID, holderID uint64) reservation.Outcome
}

// Publisher receives ticket events after a claim commits.
type Publisher interface {
	PublishTicketIssued(ctx context.Context, ev q.TicketIssuedEvent) error
}

const publishTimeout = 2 * time.Second

// ClaimService is the claim gateway.
type ClaimService struct {
	claimer   Claimer
	publisher Publisher
	cfg       config.ClaimConfig
	validate  *validator.Validate
	log       zerolog.Logger

	// jitter picks the actual sleep in [0, d]; replaced in tests.
	jitter func(d time.Duration) time.Duration
}

// NewClaimService builds the gateway.  publisher may be nil.
func NewClaimService(claimer Claimer, publisher Publisher, cfg config.ClaimConfig, log zerolog.Logger) *ClaimService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &ClaimService{
		claimer:   claimer,
		publisher: publisher,
		cfg:       cfg,
		validate:  validator.New(),
		log:       log.With().Str("component", "claim-gateway").Logger(),
		jitter:    fullJitter,
	}
}

func fullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

// backoff returns the upper bound of the sleep before attempt n+1.
func (s *ClaimService) backoff(n int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if s.cfg.BackoffMax > 0 && d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if s.cfg.BackoffMax > 0 && d > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return d
}

// Claim validates in and runs claim attempts until one reaches a final
// result.  Only transient infrastructure failures are retried, up to the
// configured number of attempts.
func (s *ClaimService) Claim(ctx context.Context, in ClaimInput) (model.Ticket, error) {
	eventID, err := s.parse(in)
	if err != nil {
		return model.Ticket{}, &ClaimError{Kind: InvalidInput, Err: err}
	}
	log := s.log.With().Uint64("event_id", eventID).Uint64("holder_id", in.HolderID).Logger()

	for attempt := 1; ; attempt++ {
		out := s.claimer.Claim(ctx, eventID, in.HolderID)
		switch out.Result {
		case reservation.Issued:
			s.publish(ctx, out.Ticket)
			return out.Ticket, nil
		case reservation.SoldOut:
			return model.Ticket{}, &ClaimError{Kind: SoldOut}
		case reservation.AlreadyClaimed:
			return model.Ticket{}, &ClaimError{Kind: AlreadyClaimed}
		case reservation.EventNotFound:
			return model.Ticket{}, &ClaimError{Kind: EventNotFound}
		}

		if !out.Retryable() {
			log.Error().Err(out.Err).Int("attempt", attempt).Msg("claim failed")
			return model.Ticket{}, &ClaimError{Kind: Internal, Err: out.Err}
		}
		if attempt >= s.cfg.MaxAttempts {
			log.Error().Err(out.Err).Int("attempts", attempt).Msg("claim retries exhausted")
			return model.Ticket{}, &ClaimError{Kind: Internal, Err: out.Err}
		}

		wait := s.jitter(s.backoff(attempt))
		log.Warn().Err(out.Err).Int("attempt", attempt).Dur("backoff", wait).Msg("transient claim failure, retrying")
		if err := sleep(ctx, wait); err != nil {
			return model.Ticket{}, &ClaimError{Kind: Internal, Err: err}
		}
	}
}

func (s *ClaimService) parse(in ClaimInput) (uint64, error) {
	if err := s.validate.Struct(in); err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(in.EventID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("event id: %w", err)
	}
	if id == 0 {
		return 0, errors.New("event id must be positive")
	}
	return id, nil
}

// publish notifies downstream consumers.  The ticket is already
// committed, so a failure here is logged and otherwise ignored.
func (s *ClaimService) publish(ctx context.Context, t model.Ticket) {
	if s.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	ev := q.TicketIssuedEvent{
		TicketID: t.ID,
		EventID:  t.EventID,
		HolderID: t.HolderID,
		Kind:     string(t.Kind),
		IssuedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.publisher.PublishTicketIssued(pctx, ev); err != nil {
		s.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("ticket event not published")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
