package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payhook/internal/domains/outbox/model"
	"payhook/internal/domains/outbox/repository"
	"payhook/internal/domains/webhook/dispatcher"
	webhookmodel "payhook/internal/domains/webhook/model"
	"payhook/pkg/logger"
)

// =====================================================
// OUTBOX DRAINER
// =====================================================

const DefaultBatchSize = 50

// DrainStats summarizes one drain pass
type DrainStats struct {
	Fetched    int
	Delivered  int
	Retried    int
	DeadLetter int
}

// Drainer delivers queued dispatches. FOR UPDATE SKIP LOCKED in the
// fetch keeps concurrent drainers off each other's entries, so
// running several workers is safe.
type Drainer struct {
	outboxRepo  repository.OutboxRepoInterface
	dispatcher  *dispatcher.Dispatcher
	batchSize   int
	backoffBase time.Duration
}

func NewDrainer(outboxRepo repository.OutboxRepoInterface, d *dispatcher.Dispatcher, batchSize int, backoffBase time.Duration) *Drainer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Drainer{
		outboxRepo:  outboxRepo,
		dispatcher:  d,
		batchSize:   batchSize,
		backoffBase: backoffBase,
	}
}

// DrainOnce delivers one batch of due entries. An entry is processed
// only when every subscribed handler succeeded; otherwise it is
// retried with exponential backoff until the dead letter threshold.
func (d *Drainer) DrainOnce(ctx context.Context) (DrainStats, error) {
	var stats DrainStats

	entries, err := d.outboxRepo.FetchDue(ctx, d.batchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch due entries: %w", err)
	}
	stats.Fetched = len(entries)

	for _, entry := range entries {
		if err := d.deliver(ctx, entry, &stats); err != nil {
			logger.ErrorFields("outbox delivery bookkeeping failed", err, map[string]interface{}{
				"entry_id":   entry.ID,
				"event_type": entry.EventType,
			})
		}
	}
	return stats, nil
}

func (d *Drainer) deliver(ctx context.Context, entry *model.Entry, stats *DrainStats) error {
	var payload webhookmodel.DispatchPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		// The payload will never become parseable; dead-letter it now
		entry.RetryCount = entry.MaxRetries
		entry.RecordFailure(fmt.Errorf("unparseable payload: %w", err), d.backoffBase, time.Now().UTC())
		stats.DeadLetter++
		return d.outboxRepo.MarkFailed(ctx, entry)
	}

	results := d.dispatcher.Dispatch(ctx, &payload, entry.RetryCount, false)

	if failure := firstFailure(results); failure != nil {
		if entry.RecordFailure(failure, d.backoffBase, time.Now().UTC()) {
			stats.DeadLetter++
			logger.ErrorFields("outbox entry dead-lettered", failure, map[string]interface{}{
				"entry_id":   entry.ID,
				"event_type": entry.EventType,
				"retries":    entry.RetryCount,
			})
		} else {
			stats.Retried++
		}
		return d.outboxRepo.MarkFailed(ctx, entry)
	}

	entry.MarkProcessed(time.Now().UTC())
	stats.Delivered++
	return d.outboxRepo.MarkProcessed(ctx, entry)
}

// firstFailure returns the first handler error, or nil when every
// handler (possibly none) succeeded
func firstFailure(results []dispatcher.Result) error {
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("handler %s: %w", r.HandlerName, r.Err)
		}
	}
	return nil
}
