package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{CleanupInterval: time.Hour}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "value", time.Minute))
	entry, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", entry.Value)
}

func TestMemoryStore_ExpiredEntryIsMiss(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{CleanupInterval: time.Hour}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "value", time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_DeletePattern(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{CleanupInterval: time.Hour}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "user.1.name", "a", 0))
	require.NoError(t, s.Set(ctx, "user.1.email", "b", 0))
	require.NoError(t, s.Set(ctx, "user.2.name", "c", 0))

	require.NoError(t, s.DeletePattern(ctx, "user.1.*"))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestMemoryStore_ExportImportRoundTrip(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{CleanupInterval: time.Hour}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	require.NoError(t, s.Set(ctx, "b", "2", 0))

	dump, err := s.Export(ctx)
	require.NoError(t, err)
	require.Len(t, dump, 2)

	s2 := NewMemoryStore(MemoryConfig{CleanupInterval: time.Hour}, nil)
	defer s2.Close()
	require.NoError(t, s2.Import(ctx, dump))

	size, err := s2.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestMemoryStore_MaxEntriesEvicts(t *testing.T) {
	s := NewMemoryStore(MemoryConfig{CleanupInterval: time.Hour, MaxEntries: 1}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	require.NoError(t, s.Set(ctx, "b", "2", 0))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}
