package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-query/internal/events"
	"github.com/rovshanmuradov/solana-query/internal/storage/models"
)

const (
	defaultSaveAttempts = 3
	defaultSaveBackoff  = 100 * time.Millisecond
)

// Recorder persists OutcomeEvents delivered by the bus. Save failures are
// retried a few times and then logged; they never reach the publisher.
type Recorder struct {
	store    Storage
	attempts uint
	backoff  time.Duration
	logger   *zap.Logger
	sub      events.Subscription
}

// NewRecorder создает Recorder поверх store.
func NewRecorder(store Storage, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:    store,
		attempts: defaultSaveAttempts,
		backoff:  defaultSaveBackoff,
		logger:   logger.Named("storage"),
	}
}

// Attach subscribes the recorder to outcome events.
func (r *Recorder) Attach(bus *events.Bus) {
	r.sub = bus.Subscribe(events.OutcomeRecorded, r)
}

// Detach removes the subscription made by Attach.
func (r *Recorder) Detach() {
	if r.sub != nil {
		r.sub.Unsubscribe()
		r.sub = nil
	}
}

// Handle implements events.Handler.
func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	outcome, ok := event.(events.OutcomeEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, event.Type())
	}
	rec := RecordFromOutcome(outcome)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.backoff
	policy.MaxInterval = r.backoff * 10

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.store.SaveRecord(ctx, rec)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(r.attempts))
	if err != nil {
		r.logger.Error("Failed to save record",
			zap.String("operation", rec.Operation),
			zap.String("key", rec.Key),
			zap.Error(err))
		return err
	}

	r.logger.Debug("Record saved",
		zap.String("operation", rec.Operation),
		zap.Bool("success", rec.Success))
	return nil
}

// RecordFromOutcome converts an outcome event into a storable record.
func RecordFromOutcome(e events.OutcomeEvent) *models.Record {
	return &models.Record{
		Operation:  e.Operation,
		Key:        e.Key,
		Success:    e.Success,
		Error:      e.Error,
		Signature:  e.Signature,
		Endpoint:   e.Endpoint,
		DurationMs: e.Duration.Milliseconds(),
		RecordedAt: e.Timestamp().UTC(),
	}
}
