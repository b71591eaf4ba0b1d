package models

import (
	"time"

	"gorm.io/datatypes"
)

// Entity type names as used by the accounting provider.
const (
	EntityTypeCustomer = "Customer"
	EntityTypeInvoice  = "Invoice"
	EntityTypePayment  = "Payment"
)

// Customer mirrors a remote accounting customer keyed by its external id.
type Customer struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ExternalID      string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_customers_external_id" json:"external_id"`
	RealmID         string     `gorm:"type:varchar(64);not null;default:''" json:"realm_id"`
	DisplayName     string     `gorm:"type:varchar(255);not null;default:''" json:"display_name"`
	GivenName       string     `gorm:"type:varchar(100);default:''" json:"given_name"`
	FamilyName      string     `gorm:"type:varchar(100);default:''" json:"family_name"`
	CompanyName     string     `gorm:"type:varchar(255);default:''" json:"company_name"`
	Email           string     `gorm:"type:varchar(200);default:''" json:"email"`
	Phone           string     `gorm:"type:varchar(50);default:''" json:"phone"`
	Balance         float64    `gorm:"type:decimal(15,2);default:0" json:"balance"`
	Active          bool       `gorm:"not null" json:"active"`
	SyncToken       string     `gorm:"type:varchar(32);default:''" json:"sync_token"`
	RemoteUpdatedAt *time.Time `gorm:"default:null" json:"remote_updated_at,omitempty"`
	RemoteDeletedAt *time.Time `gorm:"default:null" json:"remote_deleted_at,omitempty"`
	RawPayloadJSON  string     `gorm:"type:longtext" json:"-"`
	Source          string     `gorm:"type:varchar(50);not null;default:''" json:"source"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceLine is a single line item stored as JSON on the invoice row.
type InvoiceLine struct {
	LineNum     int     `json:"line_num"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
	DetailType  string  `json:"detail_type,omitempty"`
	ItemRef     string  `json:"item_ref,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
}

// Invoice mirrors a remote accounting invoice keyed by its external id.
type Invoice struct {
	ID                 uint                              `gorm:"primaryKey" json:"id"`
	ExternalID         string                            `gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_external_id" json:"external_id"`
	RealmID            string                            `gorm:"type:varchar(64);not null;default:''" json:"realm_id"`
	DocNumber          string                            `gorm:"type:varchar(64);default:''" json:"doc_number"`
	CustomerExternalID string                            `gorm:"type:varchar(64);default:'';index" json:"customer_external_id"`
	CustomerName       string                            `gorm:"type:varchar(255);default:''" json:"customer_name"`
	TxnDate            *time.Time                        `gorm:"type:date;default:null" json:"txn_date,omitempty"`
	DueDate            *time.Time                        `gorm:"type:date;default:null" json:"due_date,omitempty"`
	TotalAmount        float64                           `gorm:"type:decimal(15,2);default:0" json:"total_amount"`
	Balance            float64                           `gorm:"type:decimal(15,2);default:0" json:"balance"`
	CurrencyCode       string                            `gorm:"type:varchar(8);default:''" json:"currency_code"`
	Lines              datatypes.JSONSlice[InvoiceLine]  `gorm:"type:json" json:"lines"`
	SyncToken          string                            `gorm:"type:varchar(32);default:''" json:"sync_token"`
	RemoteUpdatedAt    *time.Time                        `gorm:"default:null" json:"remote_updated_at,omitempty"`
	RemoteDeletedAt    *time.Time                        `gorm:"default:null" json:"remote_deleted_at,omitempty"`
	RawPayloadJSON     string                            `gorm:"type:longtext" json:"-"`
	Source             string                            `gorm:"type:varchar(50);not null;default:''" json:"source"`
	CreatedAt          time.Time                         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                         `gorm:"autoUpdateTime" json:"updated_at"`
}

// Payment mirrors a remote accounting payment keyed by its external id.
type Payment struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	ExternalID         string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_external_id" json:"external_id"`
	RealmID            string     `gorm:"type:varchar(64);not null;default:''" json:"realm_id"`
	CustomerExternalID string     `gorm:"type:varchar(64);default:'';index" json:"customer_external_id"`
	TxnDate            *time.Time `gorm:"type:date;default:null" json:"txn_date,omitempty"`
	Amount             float64    `gorm:"type:decimal(15,2);default:0" json:"amount"`
	UnappliedAmount    float64    `gorm:"type:decimal(15,2);default:0" json:"unapplied_amount"`
	CurrencyCode       string     `gorm:"type:varchar(8);default:''" json:"currency_code"`
	PaymentMethod      string     `gorm:"type:varchar(100);default:''" json:"payment_method"`
	ReferenceNumber    string     `gorm:"type:varchar(100);default:''" json:"reference_number"`
	SyncToken          string     `gorm:"type:varchar(32);default:''" json:"sync_token"`
	RemoteUpdatedAt    *time.Time `gorm:"default:null" json:"remote_updated_at,omitempty"`
	RemoteDeletedAt    *time.Time `gorm:"default:null" json:"remote_deleted_at,omitempty"`
	RawPayloadJSON     string     `gorm:"type:longtext" json:"-"`
	Source             string     `gorm:"type:varchar(50);not null;default:''" json:"source"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
