package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ledgersync/app/models"
	"github.com/ManuelReschke/ledgersync/app/repository"
)

// PayloadArchiver keeps the full body of deliveries too large for the row.
type PayloadArchiver interface {
	ArchivePayload(ctx context.Context, key string, body []byte) error
	FetchPayload(ctx context.Context, key string) ([]byte, error)
}

// DeliveryInput describes an inbound delivery before it is understood.
type DeliveryInput struct {
	DeliveryID          string
	RequestID           string
	Source              string
	RawPayload          []byte
	SignatureValid      bool
	VerificationWarning string
	ReplayOf            *uint
	ReceivedAt          time.Time
}

// Outcome is the terminal result of processing one delivery.
type Outcome struct {
	Status    string
	Summary   Summary
	Processed []string
	Skipped   []string
	Errors    []string
	Duration  time.Duration
}

// EventLog is the durable, append-only record of webhook deliveries.
type EventLog struct {
	repo     repository.DeliveryRepository
	archiver PayloadArchiver
}

func NewEventLog(repo repository.DeliveryRepository, archiver PayloadArchiver) *EventLog {
	return &EventLog{repo: repo, archiver: archiver}
}

// RecordReceived stores the raw body with status received and returns the
// row id. Bodies above models.MaxStoredPayloadBytes are truncated in the row
// and, with an archiver configured, stored in full elsewhere.
func (l *EventLog) RecordReceived(ctx context.Context, in DeliveryInput) (uint, error) {
	row := l.newRow(ctx, in)
	row.Status = models.DeliveryStatusReceived
	if err := l.repo.Create(ctx, row); err != nil {
		return 0, fmt.Errorf("record delivery %s: %w", in.DeliveryID, err)
	}
	return row.ID, nil
}

func (l *EventLog) AnnotateVerification(ctx context.Context, id uint, warning string) error {
	return l.repo.AnnotateVerification(ctx, id, warning)
}

// UpdateOutcome writes the terminal status. It returns
// repository.ErrDeliveryFinalized when the row is already terminal.
func (l *EventLog) UpdateOutcome(ctx context.Context, id uint, out Outcome) error {
	return l.repo.Finalize(ctx, id, repository.DeliveryOutcome{
		Status:            out.Status,
		Topic:             out.Summary.Topic,
		EntityType:        out.Summary.EntityType,
		Action:            out.Summary.Action,
		ProcessedEntities: out.Processed,
		SkippedEntities:   out.Skipped,
		Errors:            out.Errors,
		ProcessingTimeMs:  out.Duration.Milliseconds(),
		ProcessedAt:       time.Now(),
	})
}

// RecordTerminal writes a fresh row that is already terminal. It is the
// fallback when the received row could not be written.
func (l *EventLog) RecordTerminal(ctx context.Context, in DeliveryInput, out Outcome) (uint, error) {
	row := l.newRow(ctx, in)
	now := time.Now()
	row.Status = out.Status
	row.Topic = out.Summary.Topic
	row.EntityType = out.Summary.EntityType
	row.Action = out.Summary.Action
	row.ProcessedEntities = out.Processed
	row.SkippedEntities = out.Skipped
	row.Errors = out.Errors
	row.ProcessingTimeMs = out.Duration.Milliseconds()
	row.ProcessedAt = &now
	if err := l.repo.Create(ctx, row); err != nil {
		return 0, fmt.Errorf("record terminal delivery %s: %w", in.DeliveryID, err)
	}
	return row.ID, nil
}

func (l *EventLog) Get(ctx context.Context, id uint) (*models.WebhookDelivery, error) {
	return l.repo.GetByID(ctx, id)
}

// Payload returns the complete body of a stored delivery, reading archived
// bodies back when the row holds a truncated copy.
func (l *EventLog) Payload(ctx context.Context, row *models.WebhookDelivery) ([]byte, error) {
	if !row.PayloadTruncated {
		body, err := row.DecodedPayload()
		if err != nil {
			return nil, fmt.Errorf("decode stored payload of delivery row %d: %w", row.ID, err)
		}
		return body, nil
	}
	if row.PayloadArchiveKey == "" || l.archiver == nil {
		return nil, ErrNotReprocessable
	}
	body, err := l.archiver.FetchPayload(ctx, row.PayloadArchiveKey)
	if err != nil {
		return nil, fmt.Errorf("fetch archived payload %s: %w", row.PayloadArchiveKey, err)
	}
	return body, nil
}

func (l *EventLog) List(ctx context.Context, filter repository.DeliveryFilter, offset, limit int) ([]models.WebhookDelivery, error) {
	return l.repo.List(ctx, filter, offset, limit)
}

func (l *EventLog) ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]models.WebhookDelivery, error) {
	return l.repo.ListStuck(ctx, time.Now().Add(-olderThan), limit)
}

func (l *EventLog) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return l.repo.CountByStatus(ctx)
}

func (l *EventLog) newRow(ctx context.Context, in DeliveryInput) *models.WebhookDelivery {
	stored, encoding, truncated := models.EncodePayload(in.RawPayload)
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	row := &models.WebhookDelivery{
		DeliveryID:          models.BoundIdentifier(in.DeliveryID, models.MaxDeliveryIDLength),
		RequestID:           models.BoundIdentifier(in.RequestID, models.MaxRequestIDLength),
		Source:              in.Source,
		RawPayload:          stored,
		PayloadEncoding:     encoding,
		PayloadTruncated:    truncated,
		SignatureValid:      in.SignatureValid,
		VerificationWarning: in.VerificationWarning,
		ReplayOf:            in.ReplayOf,
		ReceivedAt:          receivedAt,
	}
	if truncated && l.archiver != nil {
		key := archiveKey(in.Source, receivedAt, row.RequestID)
		if err := l.archiver.ArchivePayload(ctx, key, in.RawPayload); err != nil {
			log.Errorf("[Webhook] failed to archive oversized payload for delivery %s: %v", in.DeliveryID, err)
		} else {
			row.PayloadArchiveKey = key
		}
	}
	return row
}

func archiveKey(source string, at time.Time, requestID string) string {
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("webhooks/%s/%s/%s.json", source, at.UTC().Format("2006/01/02"), requestID)
}
