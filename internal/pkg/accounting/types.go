package accounting

import (
	"strings"
	"time"
)

// Ref is the provider's {"value": ..., "name": ...} reference shape.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type MetaData struct {
	CreateTime      string `json:"CreateTime"`
	LastUpdatedTime string `json:"LastUpdatedTime"`
}

// LastUpdated parses LastUpdatedTime; nil when absent or malformed.
func (m *MetaData) LastUpdated() *time.Time {
	if m == nil {
		return nil
	}
	return ParseTimestamp(m.LastUpdatedTime)
}

type EmailAddress struct {
	Address string `json:"Address"`
}

type PhoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type Customer struct {
	ID               string        `json:"Id"`
	SyncToken        string        `json:"SyncToken"`
	DisplayName      string        `json:"DisplayName"`
	GivenName        string        `json:"GivenName"`
	FamilyName       string        `json:"FamilyName"`
	CompanyName      string        `json:"CompanyName"`
	PrimaryEmailAddr *EmailAddress `json:"PrimaryEmailAddr"`
	PrimaryPhone     *PhoneNumber  `json:"PrimaryPhone"`
	Balance          float64       `json:"Balance"`
	Active           *bool         `json:"Active"`
	MetaData         *MetaData     `json:"MetaData"`
}

type SalesItemLineDetail struct {
	ItemRef   *Ref    `json:"ItemRef"`
	Qty       float64 `json:"Qty"`
	UnitPrice float64 `json:"UnitPrice"`
}

type Line struct {
	ID                  string               `json:"Id"`
	LineNum             int                  `json:"LineNum"`
	Description         string               `json:"Description"`
	Amount              float64              `json:"Amount"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail"`
}

type Invoice struct {
	ID          string    `json:"Id"`
	SyncToken   string    `json:"SyncToken"`
	DocNumber   string    `json:"DocNumber"`
	TxnDate     string    `json:"TxnDate"`
	DueDate     string    `json:"DueDate"`
	TotalAmt    float64   `json:"TotalAmt"`
	Balance     float64   `json:"Balance"`
	CustomerRef *Ref      `json:"CustomerRef"`
	CurrencyRef *Ref      `json:"CurrencyRef"`
	Line        []Line    `json:"Line"`
	MetaData    *MetaData `json:"MetaData"`
}

type Payment struct {
	ID               string    `json:"Id"`
	SyncToken        string    `json:"SyncToken"`
	TxnDate          string    `json:"TxnDate"`
	TotalAmt         float64   `json:"TotalAmt"`
	UnappliedAmt     float64   `json:"UnappliedAmt"`
	CustomerRef      *Ref      `json:"CustomerRef"`
	CurrencyRef      *Ref      `json:"CurrencyRef"`
	PaymentMethodRef *Ref      `json:"PaymentMethodRef"`
	PaymentRefNum    string    `json:"PaymentRefNum"`
	MetaData         *MetaData `json:"MetaData"`
}

// RefValue returns the value of a possibly nil reference.
func RefValue(r *Ref) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Value)
}

// RefName returns the display name of a possibly nil reference.
func RefName(r *Ref) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Name)
}

// ParseDate parses the provider's YYYY-MM-DD dates.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

// ParseTimestamp parses RFC3339 timestamps as sent in MetaData and webhooks.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
