package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ledgersync/app/models"
	"github.com/ManuelReschke/ledgersync/app/repository"
	"github.com/ManuelReschke/ledgersync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ledgersync/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ledgersync/internal/pkg/middleware"
)

const (
	deliveriesPerPage = 50
	adminQueryTimeout = 5 * time.Second
)

// ReplayQueue is the part of the job queue the admin API needs.
type ReplayQueue interface {
	EnqueueWebhookReplay(ctx context.Context, rowID uint, reason string) (*jobqueue.Job, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
}

// CounterStore exposes the outcome counters.
type CounterStore interface {
	Snapshot(ctx context.Context) (counter.Snapshot, error)
	Reset(ctx context.Context) (counter.Snapshot, error)
}

// ============================================================================
// ADMIN DELIVERY CONTROLLER - Repository Pattern
// ============================================================================

// AdminDeliveryController serves the operator JSON API over the event log.
type AdminDeliveryController struct {
	deliveryRepo repository.DeliveryRepository
	entityRepo   repository.EntityRepository
	queue        ReplayQueue
	counters     CounterStore
}

func NewAdminDeliveryController(deliveryRepo repository.DeliveryRepository, entityRepo repository.EntityRepository, queue ReplayQueue, counters CounterStore) *AdminDeliveryController {
	return &AdminDeliveryController{
		deliveryRepo: deliveryRepo,
		entityRepo:   entityRepo,
		queue:        queue,
		counters:     counters,
	}
}

type deliverySummary struct {
	ID               uint        `json:"id"`
	DeliveryID       string      `json:"delivery_id"`
	RequestID        string      `json:"request_id"`
	Source           string      `json:"source"`
	EntityType       string      `json:"entity_type"`
	Action           string      `json:"action"`
	Status           string      `json:"status"`
	SignatureValid   bool        `json:"signature_valid"`
	ErrorCount       int         `json:"error_count"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	ReplayOf         *uint       `json:"replay_of,omitempty"`
	ReceivedAt       string      `json:"received_at"`
	ProcessedAt      interface{} `json:"processed_at"`
}

func summarizeDelivery(d models.WebhookDelivery) deliverySummary {
	return deliverySummary{
		ID:               d.ID,
		DeliveryID:       d.DeliveryID,
		RequestID:        d.RequestID,
		Source:           d.Source,
		EntityType:       d.EntityType,
		Action:           d.Action,
		Status:           d.Status,
		SignatureValid:   d.SignatureValid,
		ErrorCount:       len(d.Errors),
		ProcessingTimeMs: d.ProcessingTimeMs,
		ReplayOf:         d.ReplayOf,
		ReceivedAt:       d.ReceivedAt.UTC().Format(time.RFC3339),
		ProcessedAt:      formatTimePtr(d.ProcessedAt),
	}
}

// HandleListDeliveries returns one page of deliveries, newest first.
func (ac *AdminDeliveryController) HandleListDeliveries(c *fiber.Ctx) error {
	filter := repository.DeliveryFilter{
		Status:     c.Query("status"),
		EntityType: c.Query("entity_type"),
		DeliveryID: c.Query("delivery_id"),
	}
	if filter.Status != "" && filter.Status != models.DeliveryStatusReceived && !models.IsTerminalDeliveryStatus(filter.Status) {
		return jsonError(c, fiber.StatusBadRequest, "invalid_status", "status must be received, completed or failed")
	}
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), adminQueryTimeout)
	defer cancel()

	total, err := ac.deliveryRepo.Count(ctx, filter)
	if err != nil {
		log.Errorf("[Admin] failed to count deliveries: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to count deliveries")
	}
	rows, err := ac.deliveryRepo.List(ctx, filter, (page-1)*deliveriesPerPage, deliveriesPerPage)
	if err != nil {
		log.Errorf("[Admin] failed to list deliveries: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to list deliveries")
	}

	items := make([]deliverySummary, 0, len(rows))
	for _, row := range rows {
		items = append(items, summarizeDelivery(row))
	}
	totalPages := int((total + deliveriesPerPage - 1) / deliveriesPerPage)

	return c.JSON(fiber.Map{
		"items":       items,
		"page":        page,
		"per_page":    deliveriesPerPage,
		"total":       total,
		"total_pages": totalPages,
	})
}

// HandleGetDelivery returns the full row including the raw payload.
func (ac *AdminDeliveryController) HandleGetDelivery(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid_id", "delivery id must be a positive integer")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), adminQueryTimeout)
	defer cancel()

	row, err := ac.deliveryRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "delivery not found")
		}
		log.Errorf("[Admin] failed to load delivery %d: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load delivery")
	}
	return c.JSON(row)
}

// HandleReplayDelivery enqueues a replay job for a delivery row.
func (ac *AdminDeliveryController) HandleReplayDelivery(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid_id", "delivery id must be a positive integer")
	}
	if ac.queue == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "queue_unavailable", "job queue is not running")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), adminQueryTimeout)
	defer cancel()

	if _, err := ac.deliveryRepo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "delivery not found")
		}
		log.Errorf("[Admin] failed to load delivery %d: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load delivery")
	}

	reason := "admin replay"
	if user := middleware.AdminUser(c); user != "" {
		reason = "admin replay by " + user
	}
	job, err := ac.queue.EnqueueWebhookReplay(ctx, id, reason)
	if err != nil {
		log.Errorf("[Admin] failed to enqueue replay for delivery %d: %v", id, err)
		return jsonError(c, fiber.StatusServiceUnavailable, "queue_unavailable", "failed to enqueue replay")
	}
	log.Infof("[Admin] enqueued replay job %s for delivery %d", job.ID, id)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":      job.ID,
		"delivery_id": id,
		"status":      job.Status,
	})
}

// HandleStats reports delivery status counts, synchronized entity counts,
// outcome counters, queue depth and job totals. Parts that fail to load are reported as
// null rather than failing the whole response.
func (ac *AdminDeliveryController) HandleStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), adminQueryTimeout)
	defer cancel()

	stats := fiber.Map{}

	if byStatus, err := ac.deliveryRepo.CountByStatus(ctx); err != nil {
		log.Errorf("[Admin] failed to count deliveries by status: %v", err)
		stats["deliveries"] = nil
	} else {
		stats["deliveries"] = byStatus
	}

	if ac.entityRepo != nil {
		if byType, err := ac.entityRepo.CountByType(ctx); err != nil {
			log.Errorf("[Admin] failed to count entities: %v", err)
			stats["entities"] = nil
		} else {
			stats["entities"] = byType
		}
	}

	stats["counters"] = nil
	if ac.counters != nil {
		if snap, err := ac.counters.Snapshot(ctx); err != nil {
			log.Warnf("[Admin] failed to read counters: %v", err)
		} else {
			stats["counters"] = snap
		}
	}

	stats["queue"] = nil
	if ac.queue != nil {
		pending, perr := ac.queue.GetQueueSize(ctx)
		processing, rerr := ac.queue.GetProcessingSize(ctx)
		if perr == nil && rerr == nil {
			stats["queue"] = fiber.Map{"pending": pending, "processing": processing}
		} else {
			log.Warnf("[Admin] failed to read queue sizes: %v", errors.Join(perr, rerr))
		}
		if jobs, err := ac.queue.GetJobStats(ctx); err != nil {
			log.Warnf("[Admin] failed to read job stats: %v", err)
			stats["jobs"] = nil
		} else {
			stats["jobs"] = jobs
		}
	}

	return c.JSON(stats)
}

// HandleResetCounters clears the outcome counters and returns their values
// from just before the reset.
func (ac *AdminDeliveryController) HandleResetCounters(c *fiber.Ctx) error {
	if ac.counters == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "counters_unavailable", "counters are not enabled")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), adminQueryTimeout)
	defer cancel()

	drained, err := ac.counters.Reset(ctx)
	if err != nil {
		log.Errorf("[Admin] failed to reset counters: %v", err)
		return jsonError(c, fiber.StatusServiceUnavailable, "counters_unavailable", "failed to reset counters")
	}
	log.Infof("[Admin] counters reset by %s", middleware.AdminUser(c))
	return c.JSON(fiber.Map{"reset": true, "previous": drained})
}
