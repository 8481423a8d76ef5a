package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	event := Event{
		Type:         EventConnectionDegraded,
		ConnectionID: "conn-1",
		Reason:       "credential failure",
		OccurredAt:   time.Now(),
	}
	require.NoError(t, rec.Emit(context.Background(), event))

	events := rec.Events()
	require.Len(t, events, 1)
	require.Equal(t, EventConnectionDegraded, events[0].Type)
}

func TestMultiEmitter(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	multi := NewMultiEmitter(a, b)

	require.NoError(t, multi.Emit(context.Background(), Event{Type: EventSyncDurationSpike}))
	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	require.NoError(t, multi.Close())
}
