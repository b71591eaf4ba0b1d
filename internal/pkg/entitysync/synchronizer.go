package entitysync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuelReschke/ledgersync/app/models"
	"github.com/ManuelReschke/ledgersync/app/repository"
)

// mappedSynchronizer implements fetch, map and upsert for one local model.
type mappedSynchronizer[M any] struct {
	entityType string
	fetcher    Fetcher
	mapRemote  func(raw json.RawMessage, realmID string) (*M, error)
	upsert     func(ctx context.Context, row *M) error
}

func (s *mappedSynchronizer[M]) EntityType() string {
	return s.entityType
}

func (s *mappedSynchronizer[M]) Sync(ctx context.Context, entityID, realmID string) Result {
	raw, err := s.fetcher.FetchEntity(ctx, realmID, s.entityType, entityID)
	if err != nil {
		return failed(s.entityType, entityID, err)
	}
	row, err := s.mapRemote(raw, realmID)
	if err != nil {
		return failed(s.entityType, entityID, fmt.Errorf("map remote %s: %w", s.entityType, err))
	}
	if err := s.upsert(ctx, row); err != nil {
		return failed(s.entityType, entityID, fmt.Errorf("upsert %s: %w", s.entityType, err))
	}
	return succeeded(s.entityType, entityID)
}

// NewCustomerSynchronizer merges remote customers into the customers table.
func NewCustomerSynchronizer(fetcher Fetcher, repo repository.EntityRepository, source string) Synchronizer {
	return &mappedSynchronizer[models.Customer]{
		entityType: models.EntityTypeCustomer,
		fetcher:    fetcher,
		mapRemote: func(raw json.RawMessage, realmID string) (*models.Customer, error) {
			return MapCustomer(raw, realmID, source)
		},
		upsert: repo.UpsertCustomer,
	}
}

// NewInvoiceSynchronizer merges remote invoices into the invoices table.
func NewInvoiceSynchronizer(fetcher Fetcher, repo repository.EntityRepository, source string) Synchronizer {
	return &mappedSynchronizer[models.Invoice]{
		entityType: models.EntityTypeInvoice,
		fetcher:    fetcher,
		mapRemote: func(raw json.RawMessage, realmID string) (*models.Invoice, error) {
			return MapInvoice(raw, realmID, source)
		},
		upsert: repo.UpsertInvoice,
	}
}

// NewPaymentSynchronizer merges remote payments into the payments table.
func NewPaymentSynchronizer(fetcher Fetcher, repo repository.EntityRepository, source string) Synchronizer {
	return &mappedSynchronizer[models.Payment]{
		entityType: models.EntityTypePayment,
		fetcher:    fetcher,
		mapRemote: func(raw json.RawMessage, realmID string) (*models.Payment, error) {
			return MapPayment(raw, realmID, source)
		},
		upsert: repo.UpsertPayment,
	}
}
