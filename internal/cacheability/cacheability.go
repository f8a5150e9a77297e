// Package cacheability implements component A of the cache core: a
// parsed Cache-Control directive and its validity predicate.
package cacheability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cacheability holds a parsed Cache-Control directive plus the time it
// was stored, which anchors IsValid's TTL computation.
type Cacheability struct {
	MaxAge               int
	SMaxAge              *int
	NoCache              bool
	NoStore              bool
	Public               bool
	Private              bool
	StaleWhileRevalidate *int
	StoredAt             time.Time

	// Extra preserves unknown directives verbatim so String can
	// round-trip them.
	Extra map[string]string
}

// Metadata is the dehydrated view of a Cacheability returned to callers.
type Metadata struct {
	CacheControl string
	ETag         string
	TTL          int
}

// New returns a Cacheability with the given max-age, stored now.
func New(maxAge int) Cacheability {
	return Cacheability{MaxAge: maxAge, StoredAt: time.Now()}
}

// NoStoreCacheability returns the directive used for mutations and
// subscriptions: max-age=0, no-cache, no-store.
func NoStoreCacheability() Cacheability {
	return Cacheability{MaxAge: 0, NoCache: true, NoStore: true, StoredAt: time.Now()}
}

// ParseCacheControl parses a Cache-Control header value. Unknown
// directives are tolerated and preserved for String.
func ParseCacheControl(s string) (Cacheability, error) {
	c := Cacheability{StoredAt: time.Now(), Extra: map[string]string{}}
	if strings.TrimSpace(s) == "" {
		return c, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, hasValue := strings.Cut(part, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.Trim(strings.TrimSpace(value), `"`)

		switch name {
		case "max-age":
			n, err := strconv.Atoi(value)
			if err != nil {
				return c, fmt.Errorf("cacheability: invalid max-age %q: %w", value, err)
			}
			c.MaxAge = n
		case "s-maxage":
			n, err := strconv.Atoi(value)
			if err != nil {
				return c, fmt.Errorf("cacheability: invalid s-maxage %q: %w", value, err)
			}
			c.SMaxAge = &n
		case "stale-while-revalidate":
			n, err := strconv.Atoi(value)
			if err != nil {
				return c, fmt.Errorf("cacheability: invalid stale-while-revalidate %q: %w", value, err)
			}
			c.StaleWhileRevalidate = &n
		case "no-cache":
			c.NoCache = true
		case "no-store":
			c.NoStore = true
		case "public":
			c.Public = true
		case "private":
			c.Private = true
		default:
			if hasValue {
				c.Extra[name] = value
			} else {
				c.Extra[name] = ""
			}
		}
	}
	return c, nil
}

// String prints the canonical Cache-Control directive, including any
// unrecognised directives that were preserved at parse time.
func (c Cacheability) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("max-age=%d", c.MaxAge))
	if c.SMaxAge != nil {
		parts = append(parts, fmt.Sprintf("s-maxage=%d", *c.SMaxAge))
	}
	if c.NoCache {
		parts = append(parts, "no-cache")
	}
	if c.NoStore {
		parts = append(parts, "no-store")
	}
	if c.Public {
		parts = append(parts, "public")
	}
	if c.Private {
		parts = append(parts, "private")
	}
	if c.StaleWhileRevalidate != nil {
		parts = append(parts, fmt.Sprintf("stale-while-revalidate=%d", *c.StaleWhileRevalidate))
	}

	extraKeys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		if v := c.Extra[k]; v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		} else {
			parts = append(parts, k)
		}
	}

	return strings.Join(parts, ", ")
}

// effectiveMaxAge prefers s-maxage over max-age, matching HTTP
// Cache-Control semantics; stale-while-revalidate extends validity by
// its own window for the purposes of this core (callers outside the
// core decide whether to trigger a background revalidation).
func (c Cacheability) effectiveMaxAge() int {
	maxAge := c.MaxAge
	if c.SMaxAge != nil {
		maxAge = *c.SMaxAge
	}
	if c.StaleWhileRevalidate != nil {
		maxAge += *c.StaleWhileRevalidate
	}
	return maxAge
}

// IsValid reports whether the Cacheability is still valid at now. A
// zero now defaults to time.Now().
func (c Cacheability) IsValid(now time.Time) bool {
	if c.NoStore || c.NoCache {
		return false
	}
	if now.IsZero() {
		now = time.Now()
	}
	expiry := c.StoredAt.Add(time.Duration(c.effectiveMaxAge()) * time.Second)
	return !expiry.Before(now)
}

// Metadata returns the dehydrated view of this Cacheability.
func (c Cacheability) Metadata() Metadata {
	return Metadata{
		CacheControl: c.String(),
		TTL:          c.effectiveMaxAge(),
	}
}

// Merge combines two Cacheabilities as used when composing CacheMetadata:
// the minimum max-age and the union (OR) of restrictive flags.
func Merge(a, b Cacheability) Cacheability {
	out := Cacheability{
		MaxAge:   minInt(a.effectiveMaxAge(), b.effectiveMaxAge()),
		NoCache:  a.NoCache || b.NoCache,
		NoStore:  a.NoStore || b.NoStore,
		Private:  a.Private || b.Private,
		Public:   a.Public && b.Public,
		StoredAt: laterTime(a.StoredAt, b.StoredAt),
		Extra:    map[string]string{},
	}
	for k, v := range a.Extra {
		out.Extra[k] = v
	}
	for k, v := range b.Extra {
		out.Extra[k] = v
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func laterTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
