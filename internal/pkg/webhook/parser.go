package webhook

import (
	"encoding/json"
	"strings"

	"github.com/ManuelReschke/ledgersync/internal/pkg/entitysync"
)

// Parse failure messages, stored verbatim in the delivery's errors list.
const (
	ParseErrInvalidJSON      = "JSON parse failed"
	ParseErrMissingEnvelope  = "missing eventNotifications list"
	defaultNotificationTopic = "dataChangeEvent"
)

// ParseError reports a body that is not a change notification envelope.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Notification is one entity change announced by the provider.
type Notification struct {
	RealmID     string
	EntityType  string
	EntityID    string
	Operation   string
	LastUpdated string
	DeletedID   string
}

// Token is the "{type}:{id}" form used in delivery logs.
func (n Notification) Token() string {
	return n.EntityType + ":" + n.EntityID
}

// Change converts the notification into a dispatchable change.
func (n Notification) Change() entitysync.Change {
	return entitysync.Change{
		EntityType: n.EntityType,
		EntityID:   n.EntityID,
		Operation:  n.Operation,
		RealmID:    n.RealmID,
		DeletedID:  n.DeletedID,
	}
}

type envelope struct {
	EventNotifications *[]struct {
		RealmID         string `json:"realmId"`
		DataChangeEvent *struct {
			Entities []struct {
				Name        string `json:"name"`
				ID          string `json:"id"`
				Operation   string `json:"operation"`
				LastUpdated string `json:"lastUpdated"`
				DeletedID   string `json:"deletedId"`
			} `json:"entities"`
		} `json:"dataChangeEvent"`
	} `json:"eventNotifications"`
}

// ParseNotifications flattens the webhook envelope into notifications in
// document order. An empty eventNotifications list yields no notifications.
func ParseNotifications(raw []byte) ([]Notification, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Message: ParseErrInvalidJSON, Err: err}
	}
	if env.EventNotifications == nil {
		return nil, &ParseError{Message: ParseErrMissingEnvelope}
	}

	var out []Notification
	for _, en := range *env.EventNotifications {
		if en.DataChangeEvent == nil {
			continue
		}
		for _, e := range en.DataChangeEvent.Entities {
			out = append(out, Notification{
				RealmID:     strings.TrimSpace(en.RealmID),
				EntityType:  strings.TrimSpace(e.Name),
				EntityID:    strings.TrimSpace(e.ID),
				Operation:   normalizeOperation(e.Operation),
				LastUpdated: strings.TrimSpace(e.LastUpdated),
				DeletedID:   strings.TrimSpace(e.DeletedID),
			})
		}
	}
	return out, nil
}

func normalizeOperation(op string) string {
	return strings.ToLower(strings.TrimSpace(op))
}

// Summary is the first-notification digest stored on the delivery row.
type Summary struct {
	Topic      string
	EntityType string
	Action     string
}

// Summarize describes a parsed delivery by its first notification.
func Summarize(ns []Notification) Summary {
	if len(ns) == 0 {
		return Summary{}
	}
	return Summary{
		Topic:      defaultNotificationTopic,
		EntityType: ns[0].EntityType,
		Action:     ns[0].Operation,
	}
}
