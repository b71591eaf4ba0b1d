package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ledgersync/internal/pkg/webhook"
)

// processWebhookReplayJob reprocesses one stored delivery through the supervisor
func (q *Queue) processWebhookReplayJob(ctx context.Context, job *Job) error {
	payload, err := WebhookReplayJobPayloadFromMap(job.Payload)
	if err != nil {
		return &permanentError{fmt.Errorf("invalid replay payload: %w", err)}
	}
	if payload.DeliveryRowID == 0 {
		return &permanentError{errors.New("replay payload has no delivery row id")}
	}
	if q.replayer == nil {
		return errors.New("no replayer configured")
	}

	rowID, err := q.replayer.Reprocess(ctx, payload.DeliveryRowID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, webhook.ErrNotReprocessable):
		return &permanentError{err}
	case err != nil:
		return err
	}

	log.Infof("[JobQueue] Replayed delivery row %d as row %d (%s)", payload.DeliveryRowID, rowID, payload.Reason)
	return nil
}
