package models

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

const (
	DeliveryStatusReceived  = "received"
	DeliveryStatusCompleted = "completed"
	DeliveryStatusFailed    = "failed"
)

// MaxStoredPayloadBytes bounds the raw payload kept in the delivery row.
const MaxStoredPayloadBytes = 64 << 10

// Column widths of sender-supplied identifiers.
const (
	MaxDeliveryIDLength = 191
	MaxRequestIDLength  = 64
)

// Payload encodings. Bodies that are not valid UTF-8 are stored as base64 so
// a utf8mb4 column accepts them unchanged.
const (
	PayloadEncodingText   = ""
	PayloadEncodingBase64 = "base64"
)

// WebhookDelivery is one inbound webhook HTTP call. The row is written from the
// raw body before any parsing happens and finalized exactly once.
type WebhookDelivery struct {
	ID                  uint                         `gorm:"primaryKey" json:"id"`
	DeliveryID          string                       `gorm:"type:varchar(191);not null;index" json:"delivery_id"`
	RequestID           string                       `gorm:"type:varchar(64);not null;default:''" json:"request_id"`
	Source              string                       `gorm:"type:varchar(50);not null;index" json:"source"`
	Topic               string                       `gorm:"type:varchar(100);not null;default:''" json:"topic"`
	EntityType          string                       `gorm:"type:varchar(50);not null;default:'';index" json:"entity_type"`
	Action              string                       `gorm:"type:varchar(50);not null;default:''" json:"action"`
	RawPayload          string                       `gorm:"type:longtext;not null" json:"raw_payload"`
	PayloadEncoding     string                       `gorm:"type:varchar(10);not null;default:''" json:"payload_encoding,omitempty"`
	PayloadTruncated    bool                         `gorm:"default:false" json:"payload_truncated"`
	PayloadArchiveKey   string                       `gorm:"type:varchar(255);default:''" json:"payload_archive_key,omitempty"`
	SignatureValid      bool                         `gorm:"default:false;index" json:"signature_valid"`
	VerificationWarning string                       `gorm:"type:varchar(255);default:''" json:"verification_warning,omitempty"`
	Status              string                       `gorm:"type:varchar(20);not null;default:'received';index" json:"status"`
	ProcessedEntities   datatypes.JSONSlice[string]  `gorm:"type:json" json:"processed_entities"`
	SkippedEntities     datatypes.JSONSlice[string]  `gorm:"type:json" json:"skipped_entities"`
	Errors              datatypes.JSONSlice[string]  `gorm:"type:json" json:"errors"`
	ProcessingTimeMs    int64                        `gorm:"default:0" json:"processing_time_ms"`
	ReplayOf            *uint                        `gorm:"index" json:"replay_of,omitempty"`
	ReceivedAt          time.Time                    `gorm:"not null;index" json:"received_at"`
	ProcessedAt         *time.Time                   `gorm:"default:null" json:"processed_at,omitempty"`
	CreatedAt           time.Time                    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time                    `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the delivery has reached completed or failed.
func (d *WebhookDelivery) IsTerminal() bool {
	return IsTerminalDeliveryStatus(d.Status)
}

func IsTerminalDeliveryStatus(status string) bool {
	return status == DeliveryStatusCompleted || status == DeliveryStatusFailed
}

// TruncatePayload returns the payload cut to MaxStoredPayloadBytes and whether
// it was cut. The cut never splits a UTF-8 sequence.
func TruncatePayload(raw []byte) (string, bool) {
	if len(raw) <= MaxStoredPayloadBytes {
		return string(raw), false
	}
	cut := MaxStoredPayloadBytes
	for cut > 0 && cut > MaxStoredPayloadBytes-4 && raw[cut]&0xC0 == 0x80 {
		cut--
	}
	return string(raw[:cut]), true
}

// EncodePayload prepares a raw body for the raw_payload column. Valid UTF-8
// is kept as text, anything else is base64 encoded. The result is cut to
// MaxStoredPayloadBytes.
func EncodePayload(raw []byte) (stored, encoding string, truncated bool) {
	if utf8.Valid(raw) {
		stored, truncated = TruncatePayload(raw)
		return stored, PayloadEncodingText, truncated
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	if len(encoded) > MaxStoredPayloadBytes {
		return encoded[:MaxStoredPayloadBytes], PayloadEncodingBase64, true
	}
	return encoded, PayloadEncodingBase64, false
}

// DecodedPayload returns the stored body as the sender sent it. It is only
// complete when PayloadTruncated is false.
func (d *WebhookDelivery) DecodedPayload() ([]byte, error) {
	if d.PayloadEncoding == PayloadEncodingBase64 {
		return base64.StdEncoding.DecodeString(d.RawPayload)
	}
	return []byte(d.RawPayload), nil
}

// BoundIdentifier makes a sender-supplied identifier fit a column of max
// bytes. Invalid UTF-8 is replaced and oversized values are replaced by a
// sha256 digest, so equal inputs still map to equal ids.
func BoundIdentifier(v string, max int) string {
	if !utf8.ValidString(v) {
		v = strings.ToValidUTF8(v, "?")
	}
	if len(v) <= max {
		return v
	}
	sum := sha256.Sum256([]byte(v))
	digest := hex.EncodeToString(sum[:])
	if len(digest) > max {
		digest = digest[:max]
	}
	return digest
}
