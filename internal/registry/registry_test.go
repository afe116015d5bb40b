package registry

import (
	"testing"
	"time"

	"github.com/splicevod/splicevod/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndLookup(t *testing.T) {
	r := New()
	defer r.Stop()

	sess := &planner.Session{ID: "abc", ExpiresAt: time.Now().Add(time.Hour), DurationMS: 1000}
	r.Insert(sess)

	got := r.Lookup("abc")
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.ID)
}

func TestLookupMissingReturnsNil(t *testing.T) {
	r := New()
	defer r.Stop()

	assert.Nil(t, r.Lookup("nope"))
}

func TestExpiryRemovesSession(t *testing.T) {
	r := New()
	defer r.Stop()

	sess := &planner.Session{ID: "short-lived", ExpiresAt: time.Now(), DurationMS: 0}
	r.Insert(sess)

	require.Eventually(t, func() bool {
		return r.Lookup("short-lived") == nil
	}, time.Second, 5*time.Millisecond)
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := New()
	defer r.Stop()

	sess := &planner.Session{ID: "x", ExpiresAt: time.Now().Add(time.Hour), DurationMS: 0}
	r.Insert(sess)
	r.Remove("x")
	r.Remove("x")
	assert.Nil(t, r.Lookup("x"))
}
