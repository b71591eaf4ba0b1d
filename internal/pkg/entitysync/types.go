package entitysync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Operations carried by change notifications, lower-cased.
const (
	OperationCreate  = "create"
	OperationUpdate  = "update"
	OperationDelete  = "delete"
	OperationMerge   = "merge"
	OperationVoid    = "void"
	OperationEmailed = "emailed"
)

// Fetcher retrieves one remote entity as raw JSON.
type Fetcher interface {
	Configured() bool
	FetchEntity(ctx context.Context, realmID, entityType, entityID string) (json.RawMessage, error)
}

// RemoteDeletionMarker records that a remote entity no longer exists.
type RemoteDeletionMarker interface {
	MarkRemoteDeleted(ctx context.Context, entityType, externalID string, at time.Time) (bool, error)
}

// Synchronizer merges one entity type.
type Synchronizer interface {
	EntityType() string
	Sync(ctx context.Context, entityID, realmID string) Result
}

// Change is one entity reference taken from a webhook notification.
type Change struct {
	EntityType string
	EntityID   string
	Operation  string
	RealmID    string
	DeletedID  string
}

// Result is the outcome of synchronizing a single entity.
type Result struct {
	EntityType string
	EntityID   string
	OK         bool
	Skipped    bool
	Reason     string
	Err        error
}

// Token is the "{type}:{id}" form used in delivery logs.
func (r Result) Token() string {
	return r.EntityType + ":" + r.EntityID
}

// Describe renders "{type}:{id} - {message}" for failed or skipped results.
func (r Result) Describe() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s - %s", r.Token(), r.Err.Error())
	case r.Reason != "":
		return fmt.Sprintf("%s - %s", r.Token(), r.Reason)
	default:
		return r.Token()
	}
}

func succeeded(entityType, entityID string) Result {
	return Result{EntityType: entityType, EntityID: entityID, OK: true}
}

func failed(entityType, entityID string, err error) Result {
	return Result{EntityType: entityType, EntityID: entityID, Err: err}
}

func skipped(entityType, entityID, reason string) Result {
	return Result{EntityType: entityType, EntityID: entityID, Skipped: true, Reason: reason}
}
