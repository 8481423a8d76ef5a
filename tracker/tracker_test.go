package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finopskit/kosten/storage"
)

func openStore(t *testing.T) *storage.Registry {
	t.Helper()
	r, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestBegin_NoCursorForcesFull(t *testing.T) {
	tr := New(openStore(t))

	plan, err := tr.Begin("conn-1")
	require.NoError(t, err)
	require.True(t, plan.Full)
	require.Equal(t, "no prior cursor", plan.Reason)
}

func TestCommitThenDelta(t *testing.T) {
	tr := New(openStore(t))

	require.NoError(t, tr.Commit("conn-1", "wm-1"))

	plan, err := tr.Begin("conn-1")
	require.NoError(t, err)
	require.False(t, plan.Full)
	require.Equal(t, "wm-1", plan.Watermark)
}

func TestBegin_StaleCursorForcesFull(t *testing.T) {
	now := time.Now()
	tr := New(openStore(t), WithStaleness(time.Hour), withClock(func() time.Time { return now }))

	require.NoError(t, tr.Commit("conn-1", "wm-1"))

	now = now.Add(2 * time.Hour)
	plan, err := tr.Begin("conn-1")
	require.NoError(t, err)
	require.True(t, plan.Full)
	require.Equal(t, "cursor stale", plan.Reason)
}

func TestBegin_FailureThresholdForcesFull(t *testing.T) {
	tr := New(openStore(t), WithFailureThreshold(2))

	require.NoError(t, tr.Commit("conn-1", "wm-1"))
	for i := 1; i <= 3; i++ {
		count, err := tr.Fail("conn-1")
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	plan, err := tr.Begin("conn-1")
	require.NoError(t, err)
	require.True(t, plan.Full)
	require.Equal(t, "failure threshold exceeded", plan.Reason)
}

func TestFail_PreservesWatermark(t *testing.T) {
	store := openStore(t)
	tr := New(store)

	require.NoError(t, tr.Commit("conn-1", "wm-1"))
	_, err := tr.Fail("conn-1")
	require.NoError(t, err)

	cursor, found, err := store.GetCursor("conn-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "wm-1", cursor.Watermark)
	require.Equal(t, 1, cursor.ConsecutiveFailures)
}

func TestCommit_ResetsFailureCount(t *testing.T) {
	store := openStore(t)
	tr := New(store)

	require.NoError(t, tr.Commit("conn-1", "wm-1"))
	_, err := tr.Fail("conn-1")
	require.NoError(t, err)

	require.NoError(t, tr.Commit("conn-1", "wm-2"))
	cursor, _, err := store.GetCursor("conn-1")
	require.NoError(t, err)
	require.Zero(t, cursor.ConsecutiveFailures)
}

func TestReset(t *testing.T) {
	tr := New(openStore(t))

	require.NoError(t, tr.Commit("conn-1", "wm-1"))
	require.NoError(t, tr.Reset("conn-1"))

	plan, err := tr.Begin("conn-1")
	require.NoError(t, err)
	require.True(t, plan.Full)
}
