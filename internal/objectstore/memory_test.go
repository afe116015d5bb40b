package objectstore

import (
	"context"
	"testing"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreWriteThenRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "b", "k", []byte("hello world")))

	got, err := s.Read(ctx, "b", "k", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestMemoryStoreRangedRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "b", "k", []byte("0123456789")))

	got, err := s.Read(ctx, "b", "k", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(got))
}

func TestMemoryStoreReadMissingIsNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Read(context.Background(), "b", "missing", 0, -1)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindStoreNotFound, kind)
}

func TestReadAllHelper(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "b", "k", []byte("abc")))

	got, err := ReadAll(ctx, s, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
