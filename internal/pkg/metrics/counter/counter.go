package counter

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	deliveriesKey = "ledgersync:counters:deliveries"
	entitiesKey   = "ledgersync:counters:entities"
)

// Counters keeps running totals of webhook outcomes in Redis hashes.
type Counters struct {
	client *redis.Client
}

func New(client *redis.Client) *Counters {
	return &Counters{client: client}
}

// RecordDelivery increments the total for a terminal delivery status.
func (c *Counters) RecordDelivery(ctx context.Context, status string) {
	c.incr(ctx, deliveriesKey, status)
}

// RecordEntity increments the total for an entity type and sync result,
// stored under the field "{type}:{result}".
func (c *Counters) RecordEntity(ctx context.Context, entityType, result string) {
	c.incr(ctx, entitiesKey, entityType+":"+result)
}

func (c *Counters) incr(ctx context.Context, key, field string) {
	if c == nil || c.client == nil || field == "" {
		return
	}
	if err := c.client.HIncrBy(context.WithoutCancel(ctx), key, field, 1).Err(); err != nil {
		log.Debugf("[Counter] failed to increment %s %s: %v", key, field, err)
	}
}

// Snapshot is the current state of all counters.
type Snapshot struct {
	Deliveries map[string]int64            `json:"deliveries"`
	Entities   map[string]map[string]int64 `json:"entities"`
}

// Snapshot reads all counters.
func (c *Counters) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Deliveries: map[string]int64{},
		Entities:   map[string]map[string]int64{},
	}

	deliveries, err := c.client.HGetAll(ctx, deliveriesKey).Result()
	if err != nil {
		return snap, err
	}
	for status, v := range deliveries {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			snap.Deliveries[status] = n
		}
	}

	entities, err := c.client.HGetAll(ctx, entitiesKey).Result()
	if err != nil {
		return snap, err
	}
	for field, v := range entities {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		entityType, result, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		if snap.Entities[entityType] == nil {
			snap.Entities[entityType] = map[string]int64{}
		}
		snap.Entities[entityType][result] = n
	}
	return snap, nil
}

// Reset clears both hashes and returns what they held just before.
func (c *Counters) Reset(ctx context.Context) (Snapshot, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return snap, err
	}
	if err := c.client.Del(ctx, deliveriesKey, entitiesKey).Err(); err != nil {
		return snap, err
	}
	return snap, nil
}
