package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

// AuditWorker drains unpublished rows from the security ledger and hands them
// to the publisher. Appends stay transactional with the use-case that caused
// them; broker delivery happens here, after commit.
type AuditWorker struct {
	logger     *slog.Logger
	ledger     ports.SecurityEventRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

// NewAuditWorker constructs the ledger publish loop with sane defaults.
func NewAuditWorker(
	logger *slog.Logger,
	ledger ports.SecurityEventRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *AuditWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &AuditWorker{
		logger:     logger,
		ledger:     ledger,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
	}
}

// Run executes the periodic publish loop until context cancellation.
func (w *AuditWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "audit iteration failed",
				"module", "events.audit_worker",
				"layer", "adapter",
				"operation", "audit_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *AuditWorker) processOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.ledger.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	published := 0
	failed := 0
	deadLettered := 0
	for _, rec := range records {
		if rec.RetryCount >= w.maxRetries {
			deadLettered++
			_ = w.ledger.MarkDeadLettered(ctx, rec.EventID, claimToken, "retry threshold reached before publish", now)
			continue
		}

		eventType := eventTypeFor(rec)
		payload, err := json.Marshal(auditMessage{
			EventID:    rec.EventID.String(),
			Kind:       string(rec.Kind),
			UserID:     userIDString(rec.UserID),
			Email:      rec.Email,
			Origin:     rec.Origin,
			Detail:     rec.Detail,
			OccurredAt: rec.CreatedAt,
		})
		if err != nil {
			deadLettered++
			_ = w.ledger.MarkDeadLettered(ctx, rec.EventID, claimToken, "encode payload: "+err.Error(), now)
			continue
		}

		if err := w.publisher.Publish(ctx, eventType, payload, partitionKeyFor(rec)); err != nil {
			failed++
			retriesAfterFailure := rec.RetryCount + 1
			if retriesAfterFailure >= w.maxRetries {
				deadLettered++
				w.logger.ErrorContext(ctx, "audit event moved to dlq",
					"module", "events.audit_worker",
					"layer", "adapter",
					"operation", "publish_event",
					"outcome", "failure",
					"event_id", rec.EventID,
					"event_type", eventType,
					"payload_bytes", len(payload),
					"retry_count", retriesAfterFailure,
					"error", err,
				)
				_ = w.ledger.MarkDeadLettered(ctx, rec.EventID, claimToken, err.Error(), now)
				continue
			}

			w.logger.WarnContext(ctx, "audit publish failed; retry scheduled",
				"module", "events.audit_worker",
				"layer", "adapter",
				"operation", "publish_event",
				"outcome", "failure",
				"event_id", rec.EventID,
				"event_type", eventType,
				"payload_bytes", len(payload),
				"retry_count", retriesAfterFailure,
				"error", err,
			)
			_ = w.ledger.MarkFailed(ctx, rec.EventID, claimToken, err.Error(), now)
			continue
		}
		published++
		_ = w.ledger.MarkPublished(ctx, rec.EventID, claimToken, now)
	}
	if len(records) > 0 {
		w.logger.InfoContext(ctx, "audit batch processed",
			"module", "events.audit_worker",
			"layer", "adapter",
			"operation", "audit_process_once",
			"outcome", "success",
			"batch_size", len(records),
			"published_count", published,
			"failed_count", failed,
			"dead_lettered_count", deadLettered,
		)
	}
	return nil
}

// auditMessage is the broker payload. Detail carries the ledger row's JSON
// untouched.
type auditMessage struct {
	EventID    string          `json:"event_id"`
	Kind       string          `json:"kind"`
	UserID     string          `json:"user_id,omitempty"`
	Email      string          `json:"email,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func eventTypeFor(rec ports.SecurityEventRecord) string {
	return "auth." + strings.ToLower(string(rec.Kind))
}

// partitionKeyFor keeps one subject's events on one partition: the user when
// known, otherwise the attempted email, otherwise the event itself.
func partitionKeyFor(rec ports.SecurityEventRecord) string {
	if rec.UserID != nil {
		return rec.UserID.String()
	}
	if rec.Email != "" {
		return rec.Email
	}
	return rec.EventID.String()
}

func userIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
