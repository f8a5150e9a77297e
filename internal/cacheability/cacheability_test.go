package cacheability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCacheControl_RoundTrip(t *testing.T) {
	c, err := ParseCacheControl("max-age=120, public, stale-while-revalidate=30")
	require.NoError(t, err)
	assert.Equal(t, 120, c.MaxAge)
	assert.True(t, c.Public)
	require.NotNil(t, c.StaleWhileRevalidate)
	assert.Equal(t, 30, *c.StaleWhileRevalidate)
	assert.Equal(t, "max-age=120, public, stale-while-revalidate=30", c.String())
}

func TestParseCacheControl_UnknownDirectivePreserved(t *testing.T) {
	c, err := ParseCacheControl("max-age=60, proxy-revalidate")
	require.NoError(t, err)
	assert.Contains(t, c.String(), "proxy-revalidate")
}

func TestIsValid_NoStoreAlwaysInvalid(t *testing.T) {
	c := Cacheability{MaxAge: 999999, NoStore: true, StoredAt: time.Now()}
	assert.False(t, c.IsValid(time.Now()))
}

func TestIsValid_ExpiresAfterMaxAge(t *testing.T) {
	c := Cacheability{MaxAge: 10, StoredAt: time.Now().Add(-20 * time.Second)}
	assert.False(t, c.IsValid(time.Now()))

	c2 := Cacheability{MaxAge: 30, StoredAt: time.Now().Add(-10 * time.Second)}
	assert.True(t, c2.IsValid(time.Now()))
}

func TestMerge_TakesMinMaxAgeAndUnionsRestrictiveFlags(t *testing.T) {
	a := Cacheability{MaxAge: 300, StoredAt: time.Now()}
	b := Cacheability{MaxAge: 60, NoCache: true, StoredAt: time.Now()}

	merged := Merge(a, b)
	assert.Equal(t, 60, merged.MaxAge)
	assert.True(t, merged.NoCache)
}

func TestMetadata_ReflectsEffectiveTTL(t *testing.T) {
	c := Cacheability{MaxAge: 45, StoredAt: time.Now()}
	md := c.Metadata()
	assert.Equal(t, 45, md.TTL)
	assert.Contains(t, md.CacheControl, "max-age=45")
}
