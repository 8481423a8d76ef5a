// Package connector defines the provider plugin contract: each connector
// speaks one provider's API and returns raw normalized resource records.
package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/finopskit/kosten/types"
)

// Capability names one optional connector feature.
type Capability string

const (
	// CapListResources is mandatory; every connector lists inventory.
	CapListResources Capability = "list_resources"
	// CapIncremental means the connector can serve delta syncs from a
	// watermark instead of a full snapshot each run.
	CapIncremental Capability = "fetch_incremental"
	// CapMetrics means the connector can describe usage samples for
	// resources it listed.
	CapMetrics Capability = "describe_metrics"
)

// Page is one bounded chunk of inventory. Cursor restarts the listing at
// the same position; a retried call with the same cursor must not lose or
// duplicate items relative to a successful call.
type Page struct {
	Resources []types.RawResource
	Cursor    string
	HasMore   bool
}

// Connector speaks a single provider's API. Implementations do not
// interpret attributes; they only normalize ids, kind and status.
type Connector interface {
	Name() string
	Capabilities() []Capability

	// ListResources fetches one page starting at cursor. An empty cursor
	// starts a full listing. When HasMore is false the returned Cursor is
	// the watermark for the next delta sync (for connectors with
	// CapIncremental; others return an empty watermark).
	ListResources(ctx context.Context, cursor string) (*Page, error)
}

// MetricsSource is implemented by connectors with CapMetrics.
type MetricsSource interface {
	// DescribeMetrics returns usage samples for the given native ids.
	DescribeMetrics(ctx context.Context, nativeIDs []string) ([]types.MetricSample, error)
}

// HasCapability checks a connector's advertised capability set.
func HasCapability(c Connector, cap Capability) bool {
	for _, got := range c.Capabilities() {
		if got == cap {
			return true
		}
	}
	return false
}

// EachResource drives pagination lazily: pages are fetched one at a time
// and fed to fn, bounding memory for large accounts. It returns the final
// watermark cursor.
func EachResource(ctx context.Context, c Connector, cursor string, fn func(types.RawResource) error) (string, error) {
	for {
		page, err := c.ListResources(ctx, cursor)
		if err != nil {
			return "", err
		}
		for _, raw := range page.Resources {
			if err := fn(raw); err != nil {
				return "", err
			}
		}
		cursor = page.Cursor
		if !page.HasMore {
			return cursor, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

// Factory builds a connector for one provider connection.
type Factory func(ctx context.Context, conn types.ProviderConnection) (Connector, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a provider factory available by name.
func Register(provider string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[provider] = factory
}

// New builds a connector for the connection's provider.
func New(ctx context.Context, conn types.ProviderConnection) (Connector, error) {
	factoriesMu.RLock()
	factory, ok := factories[conn.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", conn.Provider)
	}
	return factory(ctx, conn)
}

// Providers returns registered provider names, sorted.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
