package graphqlcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vektah/gqlparser/v2/ast"

	"graphqlcache/internal/cachecore"
	"graphqlcache/internal/store"
	"graphqlcache/pkg/gqlerr"
	"graphqlcache/pkg/logging"
)

var cfgValidator = validator.New()

// Config configures a Client. Only Executor is required; a Subscriber is
// required only when the caller actually issues subscription operations.
type Config struct {
	// Schema is the parsed GraphQL schema used to validate requests and
	// to resolve each field's declared type for entity normalisation.
	// When nil, requests are parsed but not validated, and cached
	// objects are denormalised in place rather than split into entities
	// (there is no type information to key them by).
	Schema *ast.Schema

	// Executor resolves query and mutation documents against the real
	// endpoint. Required.
	Executor Executor `validate:"required"`
	// Subscriber drives subscription operations. Required only if
	// Subscribe is ever called.
	Subscriber Subscriber

	// ResourceKey is the response field read as an entity's id; default
	// "id".
	ResourceKey string

	DefaultCacheControls cachecore.DefaultCacheControls
	// TypeCacheControls overrides DefaultCacheControls per GraphQL type
	// name.
	TypeCacheControls map[string]string

	// Responses, QueryPaths and DataEntities back the three cache
	// tiers. Any left nil default to an in-memory store built from
	// CachemapOptions.
	Responses    store.Store
	QueryPaths   store.Store
	DataEntities store.Store
	// CachemapOptions configures the default in-memory stores; ignored
	// for any tier that was supplied explicitly.
	CachemapOptions store.MemoryConfig

	// FetchTimeout bounds a single Executor.Resolve call; zero means no
	// additional timeout beyond the caller's context.
	FetchTimeout time.Duration
	// Headers are sent with every Executor/Subscriber call, merged
	// under any per-request headers passed to Request.
	Headers map[string]string

	// Mode selects the operating posture: "default" runs the full
	// client-side cache pipeline; "server" skips the responses-tier
	// lookup and the sharing of identical in-flight requests, so every
	// request is analysed against the query-path and entity tiers and
	// fetched on its own. Resolved responses are still written to all
	// three tiers in both modes.
	Mode string `validate:"omitempty,oneof=default server"`

	// InstanceKey scopes Create's instance cache; Clients sharing a key
	// share one Manager unless NewInstance is set. Defaults to
	// "default".
	InstanceKey string
	// NewInstance forces Create to build a fresh Client rather than
	// reuse one previously returned for the same InstanceKey.
	NewInstance bool

	Logger logging.Logger
}

const modeServer = "server"

var (
	instancesMu sync.Mutex
	instances   = map[string]*Client{}
)

// Create builds a Client from cfg, or returns the previously created
// Client for cfg.InstanceKey unless cfg.NewInstance is set.
func Create(cfg Config) (*Client, error) {
	if err := cfgValidator.Struct(cfg); err != nil {
		return nil, buildConfigValidationError(err)
	}

	key := cfg.InstanceKey
	if key == "" {
		key = "default"
	}
	if !cfg.NewInstance {
		instancesMu.Lock()
		if existing, ok := instances[key]; ok {
			instancesMu.Unlock()
			return existing, nil
		}
		instancesMu.Unlock()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNoop()
	}

	responses := cfg.Responses
	if responses == nil {
		responses = store.NewMemoryStore(cfg.CachemapOptions, store.NewMetrics("responses"))
	}
	queryPaths := cfg.QueryPaths
	if queryPaths == nil {
		queryPaths = store.NewMemoryStore(cfg.CachemapOptions, store.NewMetrics("queryPaths"))
	}
	dataEntities := cfg.DataEntities
	if dataEntities == nil {
		dataEntities = store.NewMemoryStore(cfg.CachemapOptions, store.NewMetrics("dataEntities"))
	}

	mgr, err := cachecore.New(cachecore.Config{
		Responses:            responses,
		QueryPaths:           queryPaths,
		DataEntities:         dataEntities,
		ResourceKey:          cfg.ResourceKey,
		DefaultCacheControls: cfg.DefaultCacheControls,
		TypeCacheControls:    cfg.TypeCacheControls,
		Logger:               logger,
	})
	if err != nil {
		return nil, fmt.Errorf("graphqlcache: %w", err)
	}

	client := &Client{
		mgr:          mgr,
		schema:       cfg.Schema,
		executor:     cfg.Executor,
		subscriber:   cfg.Subscriber,
		fetchTimeout: cfg.FetchTimeout,
		headers:      cfg.Headers,
		mode:         cfg.Mode,
		logger:       logger,
		listeners:    map[string][]func(Event){},
	}

	instancesMu.Lock()
	instances[key] = client
	instancesMu.Unlock()

	return client, nil
}

// buildConfigValidationError turns the first failing validator.FieldError
// into a KindConfig *gqlerr.Error naming the offending field and tag.
func buildConfigValidationError(err error) *gqlerr.Error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return gqlerr.NewConfigError("invalid configuration")
	}

	first := validationErrors[0]
	switch first.Field() {
	case "Executor":
		return gqlerr.NewConfigError("Executor is required")
	case "Mode":
		return gqlerr.NewConfigError(`Mode must be "default" or "server"`)
	default:
		return gqlerr.Newf(gqlerr.KindConfig, "%s failed %q validation", first.Field(), first.Tag())
	}
}
