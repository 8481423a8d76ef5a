// Package static provides an in-memory connector for tests and local
// runs. Listings are paginated and restartable like a real provider's.
package static

import (
	"context"
	"strconv"
	"sync"

	"github.com/finopskit/kosten/connector"
	"github.com/finopskit/kosten/types"
)

// Connector serves a fixed inventory from memory.
type Connector struct {
	mu        sync.RWMutex
	name      string
	pageSize  int
	resources []types.RawResource
	samples   []types.MetricSample
	watermark string
	err       error
}

// New creates a static connector with the given inventory.
func New(name string, resources []types.RawResource) *Connector {
	return &Connector{name: name, pageSize: 100, resources: resources}
}

func init() {
	connector.Register("static", func(_ context.Context, conn types.ProviderConnection) (connector.Connector, error) {
		return New(conn.Provider, nil), nil
	})
}

// WithPageSize bounds each page.
func (c *Connector) WithPageSize(n int) *Connector {
	c.pageSize = n
	return c
}

// SetResources swaps the inventory between runs.
func (c *Connector) SetResources(resources []types.RawResource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = resources
}

// SetSamples sets the metric samples DescribeMetrics returns.
func (c *Connector) SetSamples(samples []types.MetricSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = samples
}

// SetWatermark sets the watermark returned on the final page.
func (c *Connector) SetWatermark(w string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watermark = w
}

// FailWith makes every call return err until cleared with nil.
func (c *Connector) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Name implements connector.Connector.
func (c *Connector) Name() string { return c.name }

// Capabilities implements connector.Connector.
func (c *Connector) Capabilities() []connector.Capability {
	return []connector.Capability{
		connector.CapListResources,
		connector.CapIncremental,
		connector.CapMetrics,
	}
}

// ListResources implements connector.Connector. The cursor is a plain
// offset, so a retried call with the same cursor returns the same page.
func (c *Connector) ListResources(ctx context.Context, cursor string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.err != nil {
		return nil, c.err
	}

	// Numeric cursors resume mid-listing; anything else is a watermark
	// from an earlier run and restarts the stream from the top.
	offset := 0
	if cursor != "" {
		if parsed, err := strconv.Atoi(cursor); err == nil {
			offset = parsed
		}
	}
	if offset > len(c.resources) {
		offset = len(c.resources)
	}

	end := offset + c.pageSize
	if end >= len(c.resources) {
		return &Page{
			Resources: c.resources[offset:],
			Cursor:    c.watermark,
			HasMore:   false,
		}, nil
	}
	return &Page{
		Resources: c.resources[offset:end],
		Cursor:    strconv.Itoa(end),
		HasMore:   true,
	}, nil
}

// DescribeMetrics implements connector.MetricsSource.
func (c *Connector) DescribeMetrics(ctx context.Context, nativeIDs []string) ([]types.MetricSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	want := make(map[string]bool, len(nativeIDs))
	for _, id := range nativeIDs {
		want[id] = true
	}
	var out []types.MetricSample
	for _, s := range c.samples {
		if want[s.ResourceID] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Page aliases the connector page type for brevity.
type Page = connector.Page
