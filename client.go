package graphqlcache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"graphqlcache/internal/astutil"
	"graphqlcache/internal/cachecore"
	"graphqlcache/pkg/gqlerr"
	"graphqlcache/pkg/logging"
	"graphqlcache/internal/reqparser"
)

// Client is the entry point built by Create: it normalises requests,
// consults the three-tier cache, and delegates whatever the cache
// cannot answer to an Executor or Subscriber.
type Client struct {
	mgr          *cachecore.Manager
	schema       *ast.Schema
	executor     Executor
	subscriber   Subscriber
	fetchTimeout time.Duration
	headers      map[string]string
	mode         string
	logger       logging.Logger

	mu        sync.RWMutex
	listeners map[string][]func(Event)
}

// RequestOptions carries the per-call pieces of a request.
type RequestOptions struct {
	Variables     map[string]interface{}
	OperationName string
	// Fragments are extra fragment definitions to prepend to query.
	Fragments string
	// Tag scopes a response-cache entry so ExportCaches can target just
	// this family of requests; ClearCache clears every entry regardless
	// of tag.
	Tag string
	// Headers are merged over the Client's configured headers for this
	// call only.
	Headers map[string]string
	// AwaitDataCached requests that Request not return until the cache
	// write for this response has completed. The implementation always
	// writes the cache synchronously before returning, so this is
	// honoured unconditionally; it exists so callers porting code from
	// an async-write cache are not surprised by its absence.
	AwaitDataCached bool
}

// Result is what Request and a subscription message both return.
type Result struct {
	Data          interface{}
	CacheMetadata cachecore.CacheMetadata
	FromCache     bool
}

// Request normalises query, serves it from cache where possible, and
// fetches whatever is missing through the configured Executor.
func (c *Client) Request(ctx context.Context, query string, opts RequestOptions) (*Result, error) {
	parsed, err := reqparser.Parse(c.schema, query, reqparser.Options{
		Fragments:     opts.Fragments,
		Variables:     opts.Variables,
		OperationName: opts.OperationName,
	}, reqparser.RequestContext{
		HandlID:       newHandlID(),
		OperationName: opts.OperationName,
	})
	if err != nil {
		c.emit(Event{Type: EventError, Query: query, Err: err})
		return nil, err
	}

	c.emit(Event{Type: EventRequest, OperationName: parsed.Operation.Name, Query: parsed.Query})

	switch parsed.Operation.Operation {
	case ast.Mutation:
		return c.requestMutation(ctx, parsed, opts)
	case ast.Subscription:
		return nil, gqlerr.New(gqlerr.KindValidation, "subscription operations must be issued through Subscribe, not Request")
	default:
		return c.requestQuery(ctx, parsed, opts)
	}
}

func (c *Client) requestQuery(ctx context.Context, parsed *reqparser.Result, opts RequestOptions) (*Result, error) {
	h := astutil.HashRequest(parsed.Query)

	if c.mode != modeServer {
		if resp, ok, err := c.mgr.GetResponse(ctx, h); err != nil {
			return nil, err
		} else if ok {
			c.emit(Event{Type: EventCacheHit, OperationName: parsed.Operation.Name, Data: resp.Data, CacheMetadata: resp.CacheMetadata})
			return &Result{Data: resp.Data, CacheMetadata: resp.CacheMetadata, FromCache: true}, nil
		}

		lead, waiter := c.mgr.BeginActive(h, parsed.Query)
		if !lead {
			data, meta, err := waiter.Wait(ctx)
			if err != nil {
				c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
				return nil, err
			}
			c.emit(Event{Type: EventCacheHit, OperationName: parsed.Operation.Name, Data: data, CacheMetadata: meta})
			return &Result{Data: data, CacheMetadata: meta, FromCache: true}, nil
		}
	}

	analysed, err := c.mgr.Analyse(ctx, parsed.Operation, parsed.Document.Fragments)
	if err != nil {
		if c.mode != modeServer {
			c.mgr.CompleteActive(h, nil, nil, err)
		}
		c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
		return nil, err
	}

	if analysed.FullHit {
		if c.mode != modeServer {
			c.mgr.CompleteActive(h, analysed.CachedData, analysed.CacheMetadata, nil)
		}
		c.emit(Event{Type: EventCacheHit, OperationName: parsed.Operation.Name, Data: analysed.CachedData, CacheMetadata: analysed.CacheMetadata})
		return &Result{Data: analysed.CachedData, CacheMetadata: analysed.CacheMetadata, FromCache: true}, nil
	}

	fetchOp := &ast.OperationDefinition{
		Operation:    parsed.Operation.Operation,
		Name:         parsed.Operation.Name,
		SelectionSet: analysed.UpdatedSelectionSet,
		Position:     parsed.Operation.Position,
	}
	fetchQuery := printOperation(fetchOp)

	c.emit(Event{Type: EventFetch, OperationName: parsed.Operation.Name, Query: fetchQuery})

	fetchCtx := ctx
	var cancel context.CancelFunc
	if c.fetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	execResult, err := c.executor.Resolve(fetchCtx, fetchQuery, fetchOp, ExecutorOptions{
		OperationName: opts.OperationName,
		Headers:       mergeHeaderMaps(c.headers, opts.Headers),
	})
	if err != nil {
		if c.mode != modeServer {
			c.mgr.CompleteActive(h, nil, nil, err)
		}
		c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
		return nil, err
	}
	if len(execResult.Errors) > 0 {
		err := gqlerr.NewExecutorError("executor returned errors", nil, execResult.Errors[0])
		if c.mode != modeServer {
			c.mgr.CompleteActive(h, nil, nil, err)
		}
		c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
		return nil, err
	}

	merged, _ := analysed.CachedData.(map[string]interface{})
	merged = mergeData(merged, execResult.Data)

	resolved, err := c.mgr.ResolveQuery(ctx, h, parsed.Operation, parsed.Document.Fragments, parsed.FieldTypeMap, merged, cachecore.ResolveOptions{Tag: opts.Tag})
	if c.mode != modeServer {
		if err != nil {
			c.mgr.CompleteActive(h, nil, nil, err)
		} else {
			c.mgr.CompleteActive(h, resolved.Data, resolved.CacheMetadata, nil)
		}
	}
	if err != nil {
		c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
		return nil, err
	}

	c.emit(Event{Type: EventCacheMiss, OperationName: parsed.Operation.Name, Data: resolved.Data, CacheMetadata: resolved.CacheMetadata})
	return &Result{Data: resolved.Data, CacheMetadata: resolved.CacheMetadata}, nil
}

func (c *Client) requestMutation(ctx context.Context, parsed *reqparser.Result, opts RequestOptions) (*Result, error) {
	fetchCtx := ctx
	var cancel context.CancelFunc
	if c.fetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	c.emit(Event{Type: EventFetch, OperationName: parsed.Operation.Name, Query: parsed.Query})

	execResult, err := c.executor.Resolve(fetchCtx, parsed.Query, parsed.Operation, ExecutorOptions{
		OperationName: opts.OperationName,
		Headers:       mergeHeaderMaps(c.headers, opts.Headers),
	})
	if err != nil {
		c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
		return nil, err
	}
	if len(execResult.Errors) > 0 {
		err := gqlerr.NewExecutorError("executor returned errors", nil, execResult.Errors[0])
		c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
		return nil, err
	}

	resolved, err := c.mgr.ResolveMutation(ctx, parsed.Operation, parsed.Document.Fragments, parsed.FieldTypeMap, execResult.Data, cachecore.ResolveOptions{Tag: opts.Tag})
	if err != nil {
		c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
		return nil, err
	}

	return &Result{Data: resolved.Data, CacheMetadata: resolved.CacheMetadata}, nil
}

// ClearCache empties every cache tier.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.mgr.Clear(ctx)
}

// ExportCaches returns a snapshot of every tier, optionally scoped to
// responses written with the given tag.
func (c *Client) ExportCaches(ctx context.Context, tag string) (*cachecore.Snapshot, error) {
	return c.mgr.Export(ctx, tag)
}

// ImportCaches replaces every tier with snap's contents.
func (c *Client) ImportCaches(ctx context.Context, snap *cachecore.Snapshot) error {
	return c.mgr.Import(ctx, snap)
}

// GetCacheSize returns the live entry count of tier ("responses",
// "queryPaths" or "dataEntities").
func (c *Client) GetCacheSize(ctx context.Context, tier string) (int, error) {
	return c.mgr.GetCacheSize(ctx, tier)
}

// GetCacheEntry returns the raw cache entry for key in tier.
func (c *Client) GetCacheEntry(ctx context.Context, tier, key string) (interface{}, bool, error) {
	entry, ok, err := c.mgr.GetCacheEntry(ctx, tier, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return entry.Value, true, nil
}

func printOperation(op *ast.OperationDefinition) string {
	var sb strings.Builder
	formatter.NewFormatter(&sb).FormatQueryDocument(&ast.QueryDocument{Operations: ast.OperationList{op}})
	return sb.String()
}

// mergeData recursively overlays fetched onto cached, preferring
// fetched's value at any key both sides define so a partial-synthesis
// fetch response augments rather than replaces already-cached fields.
func mergeData(cached map[string]interface{}, fetched map[string]interface{}) map[string]interface{} {
	if cached == nil {
		cached = map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(cached)+len(fetched))
	for k, v := range cached {
		out[k] = v
	}
	for k, fv := range fetched {
		cv, exists := out[k]
		if !exists {
			out[k] = fv
			continue
		}
		out[k] = mergeValue(cv, fv)
	}
	return out
}

func mergeValue(cached, fetched interface{}) interface{} {
	cm, cok := cached.(map[string]interface{})
	fm, fok := fetched.(map[string]interface{})
	if cok && fok {
		return mergeData(cm, fm)
	}

	cl, clok := cached.([]interface{})
	fl, flok := fetched.([]interface{})
	if clok && flok {
		n := len(cl)
		if len(fl) > n {
			n = len(fl)
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			switch {
			case i < len(cl) && i < len(fl):
				out[i] = mergeValue(cl[i], fl[i])
			case i < len(fl):
				out[i] = fl[i]
			default:
				out[i] = cl[i]
			}
		}
		return out
	}

	return fetched
}

func mergeHeaderMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func newHandlID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
