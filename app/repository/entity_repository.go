package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/ledgersync/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entityRepository implements the EntityRepository interface
type entityRepository struct {
	db *gorm.DB
}

// NewEntityRepository creates a new entity repository instance
func NewEntityRepository(db *gorm.DB) EntityRepository {
	return &entityRepository{db: db}
}

func (r *entityRepository) UpsertCustomer(ctx context.Context, customer *models.Customer) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"realm_id",
			"display_name",
			"given_name",
			"family_name",
			"company_name",
			"email",
			"phone",
			"balance",
			"active",
			"sync_token",
			"remote_updated_at",
			"remote_deleted_at",
			"raw_payload_json",
			"source",
			"updated_at",
		}),
	}).Create(customer).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert. The driver may report the id of a
	// conflicting insert rather than the stored row.
	customer.ID = 0
	return r.db.WithContext(ctx).Where("external_id = ?", customer.ExternalID).First(customer).Error
}

func (r *entityRepository) UpsertInvoice(ctx context.Context, invoice *models.Invoice) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"realm_id",
			"doc_number",
			"customer_external_id",
			"customer_name",
			"txn_date",
			"due_date",
			"total_amount",
			"balance",
			"currency_code",
			"lines",
			"sync_token",
			"remote_updated_at",
			"remote_deleted_at",
			"raw_payload_json",
			"source",
			"updated_at",
		}),
	}).Create(invoice).Error; err != nil {
		return err
	}

	invoice.ID = 0
	return r.db.WithContext(ctx).Where("external_id = ?", invoice.ExternalID).First(invoice).Error
}

func (r *entityRepository) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"realm_id",
			"customer_external_id",
			"txn_date",
			"amount",
			"unapplied_amount",
			"currency_code",
			"payment_method",
			"reference_number",
			"sync_token",
			"remote_updated_at",
			"remote_deleted_at",
			"raw_payload_json",
			"source",
			"updated_at",
		}),
	}).Create(payment).Error; err != nil {
		return err
	}

	payment.ID = 0
	return r.db.WithContext(ctx).Where("external_id = ?", payment.ExternalID).First(payment).Error
}

// MarkRemoteDeleted stamps remote_deleted_at on a local row. Rows are never
// removed; false is returned when no local row exists yet.
func (r *entityRepository) MarkRemoteDeleted(ctx context.Context, entityType, externalID string, at time.Time) (bool, error) {
	model, err := modelForEntityType(entityType)
	if err != nil {
		return false, err
	}
	tx := r.db.WithContext(ctx).Model(model).
		Where("external_id = ?", externalID).
		Update("remote_deleted_at", &at)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *entityRepository) GetCustomerByExternalID(ctx context.Context, externalID string) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *entityRepository) GetInvoiceByExternalID(ctx context.Context, externalID string) (*models.Invoice, error) {
	var i models.Invoice
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&i).Error; err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *entityRepository) GetPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *entityRepository) CountByType(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 3)
	for _, entityType := range []string{models.EntityTypeCustomer, models.EntityTypeInvoice, models.EntityTypePayment} {
		model, _ := modelForEntityType(entityType)
		var count int64
		if err := r.db.WithContext(ctx).Model(model).Count(&count).Error; err != nil {
			return nil, err
		}
		out[entityType] = count
	}
	return out, nil
}

func modelForEntityType(entityType string) (interface{}, error) {
	switch entityType {
	case models.EntityTypeCustomer:
		return &models.Customer{}, nil
	case models.EntityTypeInvoice:
		return &models.Invoice{}, nil
	case models.EntityTypePayment:
		return &models.Payment{}, nil
	default:
		return nil, fmt.Errorf("unsupported entity type: %s", entityType)
	}
}
