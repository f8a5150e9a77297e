package cachecore

import (
	"encoding/json"
	"time"

	"graphqlcache/internal/cacheability"
)

// dehydrated is the JSON-serialisable form of a CacheMetadata, matching
// the persisted snapshot format's requirement that Cacheability travel
// as directive strings, not parsed objects.
type dehydrated map[string]string

// dehydrate renders meta as a stable string encoding every path's
// Cache-Control directive.
func dehydrate(meta CacheMetadata) string {
	out := make(dehydrated, len(meta))
	for path, c := range meta {
		out[path] = c.String()
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// hydrate is dehydrate's inverse.
func hydrate(s string) (CacheMetadata, error) {
	if s == "" {
		return CacheMetadata{}, nil
	}
	var raw dehydrated
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	meta := make(CacheMetadata, len(raw))
	for path, directive := range raw {
		c, err := cacheability.ParseCacheControl(directive)
		if err != nil {
			return nil, err
		}
		meta[path] = c
	}
	return meta, nil
}

func parseCacheability(directive string) (cacheability.Cacheability, error) {
	if directive == "" {
		return cacheability.NoStoreCacheability(), nil
	}
	return cacheability.ParseCacheControl(directive)
}

func ttlFromMetadata(meta CacheMetadata) time.Duration {
	top, ok := meta[QueryKey]
	if !ok {
		return 0
	}
	return time.Duration(top.Metadata().TTL) * time.Second
}
