// Package entitysync merges remote accounting entities into local tables.
//
// Each entity type is served by a Synchronizer that fetches the authoritative
// representation from the remote API, maps it onto the local schema and
// upserts it by external id. Synchronizers are looked up through a Registry,
// so adding an entity type means registering one more implementation.
//
// Re-running a synchronization for the same external id converges to the
// same stored row; failures are reported per entity and never abort sibling
// entities of the same delivery.
package entitysync
