package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ledgersync/app/models"
	"gorm.io/gorm"
)

// ErrDeliveryFinalized is returned when a terminal outcome is written to a
// delivery that already has one.
var ErrDeliveryFinalized = errors.New("webhook delivery already finalized")

// DeliveryOutcome is the terminal state written once per delivery. The
// first-notification summary travels with it; empty summary fields are left
// untouched.
type DeliveryOutcome struct {
	Status            string
	Topic             string
	EntityType        string
	Action            string
	ProcessedEntities []string
	SkippedEntities   []string
	Errors            []string
	ProcessingTimeMs  int64
	ProcessedAt       time.Time
}

// DeliveryFilter narrows delivery listings. Empty fields match everything.
type DeliveryFilter struct {
	Status     string
	EntityType string
	DeliveryID string
}

// DeliveryRepository defines the durable event log operations
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *models.WebhookDelivery) error
	AnnotateVerification(ctx context.Context, id uint, warning string) error
	Finalize(ctx context.Context, id uint, outcome DeliveryOutcome) error
	GetByID(ctx context.Context, id uint) (*models.WebhookDelivery, error)
	List(ctx context.Context, filter DeliveryFilter, offset, limit int) ([]models.WebhookDelivery, error)
	Count(ctx context.Context, filter DeliveryFilter) (int64, error)
	ListStuck(ctx context.Context, receivedBefore time.Time, limit int) ([]models.WebhookDelivery, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// EntityRepository defines the idempotent merge operations for synchronized entities
type EntityRepository interface {
	UpsertCustomer(ctx context.Context, customer *models.Customer) error
	UpsertInvoice(ctx context.Context, invoice *models.Invoice) error
	UpsertPayment(ctx context.Context, payment *models.Payment) error
	MarkRemoteDeleted(ctx context.Context, entityType, externalID string, at time.Time) (bool, error)
	GetCustomerByExternalID(ctx context.Context, externalID string) (*models.Customer, error)
	GetInvoiceByExternalID(ctx context.Context, externalID string) (*models.Invoice, error)
	GetPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	CountByType(ctx context.Context) (map[string]int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Delivery DeliveryRepository
	Entity   EntityRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Delivery: NewDeliveryRepository(db),
		Entity:   NewEntityRepository(db),
	}
}
