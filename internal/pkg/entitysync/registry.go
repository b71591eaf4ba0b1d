package entitysync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Registry maps entity type names to synchronizers.
type Registry struct {
	mu      sync.RWMutex
	byType  map[string]Synchronizer
	fetcher Fetcher
	marker  RemoteDeletionMarker
	now     func() time.Time
}

// NewRegistry returns an empty registry. fetcher may be nil, in which case
// every non-delete change is skipped as unconfigured.
func NewRegistry(fetcher Fetcher, marker RemoteDeletionMarker) *Registry {
	return &Registry{
		byType:  make(map[string]Synchronizer),
		fetcher: fetcher,
		marker:  marker,
		now:     time.Now,
	}
}

// Register adds or replaces the synchronizer for its entity type.
func (r *Registry) Register(s Synchronizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[strings.ToLower(s.EntityType())] = s
}

// Lookup finds the synchronizer for entityType, case-insensitively.
func (r *Registry) Lookup(entityType string) (Synchronizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byType[strings.ToLower(strings.TrimSpace(entityType))]
	return s, ok
}

// Types lists the registered entity types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for _, s := range r.byType {
		out = append(out, s.EntityType())
	}
	sort.Strings(out)
	return out
}

// Dispatch synchronizes the entity named by one change. It never panics;
// a panicking synchronizer is reported as a failed result.
func (r *Registry) Dispatch(ctx context.Context, change Change) (res Result) {
	entityType := strings.TrimSpace(change.EntityType)
	entityID := strings.TrimSpace(change.EntityID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("[EntitySync] panic while syncing %s:%s: %v", entityType, entityID, rec)
			res = failed(entityType, entityID, fmt.Errorf("panic: %v", rec))
		}
	}()

	s, ok := r.Lookup(entityType)
	if !ok {
		return skipped(entityType, entityID, "unsupported entity type")
	}
	// Report under the canonical name of the registered type.
	entityType = s.EntityType()

	if entityID == "" {
		return failed(entityType, entityID, fmt.Errorf("missing entity id"))
	}

	op := strings.ToLower(strings.TrimSpace(change.Operation))
	if op == OperationDelete {
		return r.markDeleted(ctx, entityType, entityID)
	}

	if r.fetcher == nil || !r.fetcher.Configured() {
		return skipped(entityType, entityID, "accounting API not configured")
	}

	res = s.Sync(ctx, entityID, change.RealmID)
	if !res.OK || op != OperationMerge {
		return res
	}

	deletedID := strings.TrimSpace(change.DeletedID)
	if deletedID == "" || deletedID == entityID {
		return res
	}
	if del := r.markDeleted(ctx, entityType, deletedID); del.Err != nil {
		log.Warnf("[EntitySync] merge %s:%s could not mark %s as deleted: %v", entityType, entityID, deletedID, del.Err)
	}
	return res
}

func (r *Registry) markDeleted(ctx context.Context, entityType, entityID string) Result {
	if r.marker == nil {
		return skipped(entityType, entityID, "deletion tracking not available")
	}
	found, err := r.marker.MarkRemoteDeleted(ctx, entityType, entityID, r.now())
	if err != nil {
		return failed(entityType, entityID, fmt.Errorf("mark deleted: %w", err))
	}
	if !found {
		return skipped(entityType, entityID, "deleted remotely, no local row")
	}
	return succeeded(entityType, entityID)
}
