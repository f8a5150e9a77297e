package cachecore

import (
	"context"
	"fmt"
	"time"

	"graphqlcache/internal/store"
)

// SnapshotEntry is one persisted record in a Snapshot, matching the
// exported format's {key, value, metadata} shape.
type SnapshotEntry struct {
	Key          string
	Value        interface{}
	CacheControl string
	StoredAt     time.Time
	Tag          string
}

// Snapshot is the persisted form of all three tiers, as returned by
// Export and accepted by Import.
type Snapshot struct {
	Responses    []SnapshotEntry
	QueryPaths   []SnapshotEntry
	DataEntities []SnapshotEntry
}

// Export dumps every live entry across the three tiers. When tag is
// non-empty, only Response entries written with a matching tag are
// included (query-paths and data-entities are not tag-scoped since they
// are shared across requests).
func (m *Manager) Export(ctx context.Context, tag string) (*Snapshot, error) {
	snap := &Snapshot{}

	respEntries, err := m.responses.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("cachecore: export responses: %w", err)
	}
	for key, entry := range respEntries {
		resp, ok := entry.Value.(Response)
		if !ok {
			continue
		}
		if tag != "" && resp.Tag != tag {
			continue
		}
		snap.Responses = append(snap.Responses, SnapshotEntry{
			Key:          key,
			Value:        resp.Data,
			CacheControl: dehydrate(resp.CacheMetadata),
			StoredAt:     entry.StoredAt,
			Tag:          resp.Tag,
		})
	}

	pathEntries, err := m.queryPaths.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("cachecore: export query paths: %w", err)
	}
	for key, entry := range pathEntries {
		qv, ok := entry.Value.(queryPathValue)
		if !ok {
			continue
		}
		snap.QueryPaths = append(snap.QueryPaths, SnapshotEntry{
			Key:          key,
			Value:        qv.Value,
			CacheControl: qv.Cacheability.String(),
			StoredAt:     entry.StoredAt,
		})
	}

	entityEntries, err := m.dataEntities.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("cachecore: export data entities: %w", err)
	}
	for key, entry := range entityEntries {
		entity, ok := entry.Value.(DataEntity)
		if !ok {
			continue
		}
		snap.DataEntities = append(snap.DataEntities, SnapshotEntry{
			Key:      key,
			Value:    entity,
			StoredAt: entry.StoredAt,
		})
	}

	return snap, nil
}

// Import replaces the contents of all three tiers with snap's entries.
func (m *Manager) Import(ctx context.Context, snap *Snapshot) error {
	responses := make(map[string]store.Entry, len(snap.Responses))
	for _, e := range snap.Responses {
		meta, err := hydrate(e.CacheControl)
		if err != nil {
			return fmt.Errorf("cachecore: import response %s: %w", e.Key, err)
		}
		responses[e.Key] = store.Entry{
			Value:    Response{Data: e.Value, CacheMetadata: meta, Tag: e.Tag},
			StoredAt: e.StoredAt,
			TTL:      ttlFromMetadata(meta),
		}
	}
	if err := m.responses.Import(ctx, responses); err != nil {
		return fmt.Errorf("cachecore: import responses: %w", err)
	}

	paths := make(map[string]store.Entry, len(snap.QueryPaths))
	for _, e := range snap.QueryPaths {
		c, err := parseCacheability(e.CacheControl)
		if err != nil {
			return fmt.Errorf("cachecore: import query path %s: %w", e.Key, err)
		}
		paths[e.Key] = store.Entry{
			Value:    queryPathValue{Value: e.Value, Cacheability: c},
			StoredAt: e.StoredAt,
			TTL:      time.Duration(c.Metadata().TTL) * time.Second,
		}
	}
	if err := m.queryPaths.Import(ctx, paths); err != nil {
		return fmt.Errorf("cachecore: import query paths: %w", err)
	}

	entities := make(map[string]store.Entry, len(snap.DataEntities))
	for _, e := range snap.DataEntities {
		entity, ok := e.Value.(DataEntity)
		if !ok {
			continue
		}
		entities[e.Key] = store.Entry{Value: entity, StoredAt: e.StoredAt}
	}
	if err := m.dataEntities.Import(ctx, entities); err != nil {
		return fmt.Errorf("cachecore: import data entities: %w", err)
	}

	return nil
}

// GetCacheSize returns the live entry count of one named tier
// ("responses", "queryPaths" or "dataEntities").
func (m *Manager) GetCacheSize(ctx context.Context, tier string) (int, error) {
	s, err := m.tierByName(tier)
	if err != nil {
		return 0, err
	}
	return s.Size(ctx)
}

// GetCacheEntry returns the raw store entry for key in the named tier.
func (m *Manager) GetCacheEntry(ctx context.Context, tier, key string) (store.Entry, bool, error) {
	s, err := m.tierByName(tier)
	if err != nil {
		return store.Entry{}, false, err
	}
	return s.Get(ctx, key)
}

func (m *Manager) tierByName(tier string) (store.Store, error) {
	switch tier {
	case "responses":
		return m.responses, nil
	case "queryPaths":
		return m.queryPaths, nil
	case "dataEntities":
		return m.dataEntities, nil
	default:
		return nil, fmt.Errorf("cachecore: unknown cache tier %q", tier)
	}
}
