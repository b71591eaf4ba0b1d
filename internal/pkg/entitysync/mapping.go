package entitysync

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ManuelReschke/ledgersync/app/models"
	"github.com/ManuelReschke/ledgersync/internal/pkg/accounting"
)

var errMissingID = errors.New("remote entity has no Id")

// MapCustomer maps a remote customer. Absent fields become zero values.
func MapCustomer(raw json.RawMessage, realmID, source string) (*models.Customer, error) {
	var remote accounting.Customer
	if err := json.Unmarshal(raw, &remote); err != nil {
		return nil, err
	}
	if strings.TrimSpace(remote.ID) == "" {
		return nil, errMissingID
	}

	c := &models.Customer{
		ExternalID:      strings.TrimSpace(remote.ID),
		RealmID:         realmID,
		DisplayName:     strings.TrimSpace(remote.DisplayName),
		GivenName:       strings.TrimSpace(remote.GivenName),
		FamilyName:      strings.TrimSpace(remote.FamilyName),
		CompanyName:     strings.TrimSpace(remote.CompanyName),
		Balance:         remote.Balance,
		Active:          true,
		SyncToken:       remote.SyncToken,
		RemoteUpdatedAt: remote.MetaData.LastUpdated(),
		RawPayloadJSON:  string(raw),
		Source:          source,
	}
	if remote.PrimaryEmailAddr != nil {
		c.Email = strings.TrimSpace(remote.PrimaryEmailAddr.Address)
	}
	if remote.PrimaryPhone != nil {
		c.Phone = strings.TrimSpace(remote.PrimaryPhone.FreeFormNumber)
	}
	if remote.Active != nil {
		c.Active = *remote.Active
	}
	return c, nil
}

// MapInvoice maps a remote invoice including its line items.
func MapInvoice(raw json.RawMessage, realmID, source string) (*models.Invoice, error) {
	var remote accounting.Invoice
	if err := json.Unmarshal(raw, &remote); err != nil {
		return nil, err
	}
	if strings.TrimSpace(remote.ID) == "" {
		return nil, errMissingID
	}

	lines := make([]models.InvoiceLine, 0, len(remote.Line))
	for _, l := range remote.Line {
		line := models.InvoiceLine{
			LineNum:     l.LineNum,
			Description: strings.TrimSpace(l.Description),
			Amount:      l.Amount,
			DetailType:  l.DetailType,
		}
		if d := l.SalesItemLineDetail; d != nil {
			line.ItemRef = accounting.RefValue(d.ItemRef)
			line.Quantity = d.Qty
			line.UnitPrice = d.UnitPrice
		}
		lines = append(lines, line)
	}

	return &models.Invoice{
		ExternalID:         strings.TrimSpace(remote.ID),
		RealmID:            realmID,
		DocNumber:          strings.TrimSpace(remote.DocNumber),
		CustomerExternalID: accounting.RefValue(remote.CustomerRef),
		CustomerName:       accounting.RefName(remote.CustomerRef),
		TxnDate:            accounting.ParseDate(remote.TxnDate),
		DueDate:            accounting.ParseDate(remote.DueDate),
		TotalAmount:        remote.TotalAmt,
		Balance:            remote.Balance,
		CurrencyCode:       accounting.RefValue(remote.CurrencyRef),
		Lines:              lines,
		SyncToken:          remote.SyncToken,
		RemoteUpdatedAt:    remote.MetaData.LastUpdated(),
		RawPayloadJSON:     string(raw),
		Source:             source,
	}, nil
}

// MapPayment maps a remote payment.
func MapPayment(raw json.RawMessage, realmID, source string) (*models.Payment, error) {
	var remote accounting.Payment
	if err := json.Unmarshal(raw, &remote); err != nil {
		return nil, err
	}
	if strings.TrimSpace(remote.ID) == "" {
		return nil, errMissingID
	}

	method := accounting.RefName(remote.PaymentMethodRef)
	if method == "" {
		method = accounting.RefValue(remote.PaymentMethodRef)
	}

	return &models.Payment{
		ExternalID:         strings.TrimSpace(remote.ID),
		RealmID:            realmID,
		CustomerExternalID: accounting.RefValue(remote.CustomerRef),
		TxnDate:            accounting.ParseDate(remote.TxnDate),
		Amount:             remote.TotalAmt,
		UnappliedAmount:    remote.UnappliedAmt,
		CurrencyCode:       accounting.RefValue(remote.CurrencyRef),
		PaymentMethod:      method,
		ReferenceNumber:    strings.TrimSpace(remote.PaymentRefNum),
		SyncToken:          remote.SyncToken,
		RemoteUpdatedAt:    remote.MetaData.LastUpdated(),
		RawPayloadJSON:     string(raw),
		Source:             source,
	}, nil
}
