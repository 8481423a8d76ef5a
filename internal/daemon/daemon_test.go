package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finopskit/kosten/connector"
	"github.com/finopskit/kosten/connector/static"
	"github.com/finopskit/kosten/metrics"
	"github.com/finopskit/kosten/orchestrator"
	"github.com/finopskit/kosten/reconciler"
	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/tracker"
	"github.com/finopskit/kosten/types"
)

func newTestDaemon(t *testing.T, cfg Config) (*Daemon, *storage.Registry) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	conn := static.New("static", []types.RawResource{
		{NativeID: "i-1", Kind: types.KindCompute, Status: types.StatusActive},
	})
	orch := orchestrator.New(store, tracker.New(store), reconciler.NewEngine(store),
		metrics.NewPipeline(store), orchestrator.Config{MaxRetries: 1},
		orchestrator.WithConnectorFactory(func(_ context.Context, _ types.ProviderConnection) (connector.Connector, error) {
			return conn, nil
		}),
	)

	connections := []types.ProviderConnection{{ID: "conn-1", Provider: "static"}}
	return New(orch, metrics.NewPipeline(store), store, connections, cfg), store
}

func TestNew_AppliesDefaults(t *testing.T) {
	d, _ := newTestDaemon(t, Config{})

	assert.Equal(t, 15*time.Minute, d.cfg.SyncInterval)
	assert.Equal(t, time.Hour, d.cfg.CompactionInterval)
	assert.Equal(t, ":9464", d.cfg.ListenAddr)
}

func TestDaemon_RunStopsOnContextCancel(t *testing.T) {
	d, _ := newTestDaemon(t, Config{
		SyncInterval: time.Hour,
		ListenAddr:   "127.0.0.1:0",
	})

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	// Give the actors time to start, then simulate shutdown.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Daemon did not shut down within timeout")
	}
}

func TestDaemon_SyncLoopRunsImmediately(t *testing.T) {
	d, store := newTestDaemon(t, Config{SyncInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.syncLoop(ctx) }()

	require.Eventually(t, func() bool {
		return d.SyncCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-errCh

	// The immediate cycle must have reconciled the static inventory.
	live, err := store.LiveResources("conn-1")
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestDaemon_HealthEndpoint(t *testing.T) {
	d, store := newTestDaemon(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	d.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(0))

	// A degraded connection flips the overall status and the code.
	require.NoError(t, store.PutHealth(types.ConnectionHealth{
		ConnectionID:        "conn-1",
		Status:              types.ConnectionDegraded,
		ConsecutiveFailures: 4,
	}))

	rec = httptest.NewRecorder()
	d.handleHealth(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	require.Len(t, resp.Connections, 1)
	assert.Equal(t, 4, resp.Connections[0].ConsecutiveFailures)
}
