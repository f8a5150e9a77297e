// Package cachecore implements component D: the three-tier
// content-addressed cache (responses, query-paths, data-entities) and
// the analyse/resolve pipeline that binds them.
package cachecore

import (
	"github.com/vektah/gqlparser/v2/ast"

	"graphqlcache/internal/cacheability"
)

// CacheMetadata maps a cache-path string to the Cacheability observed
// there. The reserved key "query" carries the whole response's
// top-level directive. A path not present takes the merge of all its
// present ancestors (see EffectiveCacheability).
type CacheMetadata map[string]cacheability.Cacheability

// QueryKey is the reserved CacheMetadata path for a response's
// top-level directive.
const QueryKey = "query"

// DataEntity is a normalised object keyed by "${typeName}:${id}".
// Scalar fields are stored by value; references to other entities are
// stored as their key string; lists of entities are stored as
// []interface{} holding key strings; lists of scalars are stored as
// []interface{}.
type DataEntity struct {
	TypeName string
	ID       string
	Fields   map[string]interface{}
}

// EntityKey builds the canonical "${typeName}:${id}" key for an entity.
func EntityKey(typeName, id string) string {
	return typeName + ":" + id
}

// Response is the record kept in the responses store: the response data
// with its parsed CacheMetadata and tag.
type Response struct {
	Data         interface{}
	CacheMetadata CacheMetadata
	Tag          string
}

// AnalyseResult is the outcome of Analyse.
type AnalyseResult struct {
	// CachedData is the portion of the response fully reconstructed
	// from cache, shaped like the final response.
	CachedData interface{}
	// CacheMetadata is returned empty: Analyse does not record the
	// Cacheability of the paths it serves from cache.
	CacheMetadata CacheMetadata
	// Filtered is true iff at least one field was served from cache and
	// at least one field is still missing.
	Filtered bool
	// FullHit is true iff every requested field was served from cache.
	FullHit bool
	// UpdatedSelectionSet is the pruned selection set to send to the
	// external executor; nil when FullHit is true.
	UpdatedSelectionSet ast.SelectionSet
}

// ResolveOptions carries the per-request knobs that affect how resolve
// writes into the tiers.
type ResolveOptions struct {
	Tag string
}

// ResolveResult is returned by ResolveQuery/ResolveMutation/ResolveSubscription.
type ResolveResult struct {
	Data          interface{}
	CacheMetadata CacheMetadata
}

// EffectiveCacheability walks every ancestor of path (including path
// itself) present in meta and merges them, per the ancestor-minimum TTL
// rule; falls back to meta[QueryKey] if no ancestor is present.
func EffectiveCacheability(meta CacheMetadata, path string) (cacheability.Cacheability, bool) {
	segments := splitPath(path)

	var (
		result cacheability.Cacheability
		found  bool
	)
	for i := range segments {
		prefix := joinPath(segments[:i+1])
		if c, ok := meta[prefix]; ok {
			if !found {
				result = c
				found = true
			} else {
				result = cacheability.Merge(result, c)
			}
		}
	}
	if !found {
		if c, ok := meta[QueryKey]; ok {
			return c, true
		}
		return cacheability.Cacheability{}, false
	}
	return result, true
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	depth := 0
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				segs = append(segs, path[start:i])
				start = i + 1
			}
		}
	}
	segs = append(segs, path[start:])
	return segs
}

func joinPath(segs []string) string {
	out := segs[0]
	for _, s := range segs[1:] {
		out += "." + s
	}
	return out
}
