package cachecore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"graphqlcache/internal/astutil"
	"graphqlcache/internal/cacheability"
	"graphqlcache/internal/store"
	"graphqlcache/pkg/gqlerr"
	"graphqlcache/pkg/logging"
)

// DefaultCacheControls are the Cache-Control directive strings applied
// to every resolved response of each operation type (TypeCacheControls
// override them per type); a Cache-Control value reported by the
// executor is not consulted.
type DefaultCacheControls struct {
	Query        string
	Mutation     string
	Subscription string
}

// Config configures a Manager.
type Config struct {
	Responses    store.Store
	QueryPaths   store.Store
	DataEntities store.Store

	// ResourceKey is the field name read as an entity's id; default "id".
	ResourceKey string

	DefaultCacheControls DefaultCacheControls
	// TypeCacheControls overrides DefaultCacheControls per GraphQL type
	// name, keyed by type name.
	TypeCacheControls map[string]string

	Logger logging.Logger
}

// pendingWaiter is signalled once with the outcome of the in-flight
// request it joined.
type pendingWaiter struct {
	result chan pendingOutcome
}

type pendingOutcome struct {
	data interface{}
	meta CacheMetadata
	err  error
}

// Manager is component D: the three-tier cache plus the active/pending
// request registries that let concurrent callers for the same
// fingerprint share one fetch.
type Manager struct {
	responses    store.Store
	queryPaths   store.Store
	dataEntities store.Store

	resourceKey          string
	defaultCacheControls DefaultCacheControls
	typeCacheControls    map[string]string
	logger               logging.Logger

	mu      sync.Mutex
	active  map[astutil.Fingerprint]string
	pending map[astutil.Fingerprint][]*pendingWaiter
}

// New constructs a Manager. Responses/QueryPaths/DataEntities must all
// be supplied; callers typically back them with store.NewMemoryStore or
// store.NewSQLStore.
func New(cfg Config) (*Manager, error) {
	if cfg.Responses == nil || cfg.QueryPaths == nil || cfg.DataEntities == nil {
		return nil, gqlerr.NewConfigError("cachecore: all three stores are required")
	}
	resourceKey := cfg.ResourceKey
	if resourceKey == "" {
		resourceKey = "id"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNoop()
	}

	return &Manager{
		responses:            cfg.Responses,
		queryPaths:            cfg.QueryPaths,
		dataEntities:          cfg.DataEntities,
		resourceKey:           resourceKey,
		defaultCacheControls:  cfg.DefaultCacheControls,
		typeCacheControls:     cfg.TypeCacheControls,
		logger:                logger,
		active:                make(map[astutil.Fingerprint]string),
		pending:               make(map[astutil.Fingerprint][]*pendingWaiter),
	}, nil
}

// IsValid reports whether c is still valid, delegating to Cacheability.
func (m *Manager) IsValid(c cacheability.Cacheability) bool {
	return c.IsValid(time.Now())
}

// GetResponse returns the cached Response for h, if any and valid.
func (m *Manager) GetResponse(ctx context.Context, h astutil.Fingerprint) (*Response, bool, error) {
	entry, ok, err := m.responses.Get(ctx, h.String())
	if err != nil || !ok {
		return nil, false, err
	}
	resp, ok := entry.Value.(Response)
	if !ok {
		return nil, false, nil
	}
	if top, hasTop := resp.CacheMetadata[QueryKey]; hasTop && !top.IsValid(time.Now()) {
		return nil, false, nil
	}
	return &resp, true, nil
}

// BeginActive registers h as in-flight and returns (true, nil) when the
// caller should perform the fetch itself, or (false, waiter) when
// another caller is already fetching and this caller should block on
// waiter.
func (m *Manager) BeginActive(h astutil.Fingerprint, query string) (lead bool, waiter *pendingWaiter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, inFlight := m.active[h]; inFlight {
		w := &pendingWaiter{result: make(chan pendingOutcome, 1)}
		m.pending[h] = append(m.pending[h], w)
		return false, w
	}
	m.active[h] = query
	return true, nil
}

// CompleteActive resolves every pending waiter for h with the same
// outcome, then clears both registries for h. It must be called exactly
// once by the lead caller of BeginActive, on both success and failure.
func (m *Manager) CompleteActive(h astutil.Fingerprint, data interface{}, meta CacheMetadata, err error) {
	m.mu.Lock()
	waiters := m.pending[h]
	delete(m.pending, h)
	delete(m.active, h)
	m.mu.Unlock()

	outcome := pendingOutcome{data: data, meta: meta, err: err}
	for _, w := range waiters {
		w.result <- outcome
	}
}

// Wait blocks until the lead caller for this waiter's fingerprint
// completes, returning the shared outcome.
func (w *pendingWaiter) Wait(ctx context.Context) (interface{}, CacheMetadata, error) {
	select {
	case out := <-w.result:
		return out.data, out.meta, out.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Clear empties all three stores.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.responses.Clear(ctx); err != nil {
		return fmt.Errorf("cachecore: clear responses: %w", err)
	}
	if err := m.queryPaths.Clear(ctx); err != nil {
		return fmt.Errorf("cachecore: clear query paths: %w", err)
	}
	if err := m.dataEntities.Clear(ctx); err != nil {
		return fmt.Errorf("cachecore: clear data entities: %w", err)
	}
	return nil
}

// cacheabilityForType returns the configured Cacheability for typeName,
// falling back to the operation-level default.
func (m *Manager) cacheabilityForType(typeName string, fallback string) cacheability.Cacheability {
	directive := fallback
	if override, ok := m.typeCacheControls[typeName]; ok {
		directive = override
	}
	c, err := cacheability.ParseCacheControl(directive)
	if err != nil {
		m.logger.Warn("invalid cache-control directive, defaulting to no-store", logging.Fields{
			"typeName":  typeName,
			"directive": directive,
		})
		return cacheability.NoStoreCacheability()
	}
	return c
}
