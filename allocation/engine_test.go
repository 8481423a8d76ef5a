package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/types"
)

func testRuleSet(t *testing.T) *RuleSet {
	t.Helper()
	rs := &RuleSet{
		Version: 2,
		Rules: []Rule{
			{Name: "prod-compute", When: `tags["env"] == "prod" && kind == "compute"`, Unit: "platform-prod"},
			{Name: "all-databases", When: `kind == "database"`, Unit: "data-team"},
			{Name: "tagged-cost-center", When: `"cost-center" in tags`, Unit: "finance-tracked"},
		},
	}
	require.NoError(t, rs.Validate())
	return rs
}

func TestAllocate_FirstMatchWins(t *testing.T) {
	engine, err := NewEngine(testRuleSet(t))
	require.NoError(t, err)

	res := &types.Resource{Kind: types.KindCompute, Provider: "aws", Status: types.StatusActive}
	tags := types.TagSet{
		"env":         {Key: "env", Value: "prod", Provenance: types.ProvenanceProvider},
		"cost-center": {Key: "cost-center", Value: "cc-1", Provenance: types.ProvenanceHuman},
	}

	// Matches both prod-compute and tagged-cost-center; the first rule
	// in order wins.
	result := engine.Allocate(res, tags)
	require.True(t, result.Matched)
	require.Equal(t, "platform-prod", result.BusinessUnit)
	require.Equal(t, "prod-compute", result.RuleName)
	require.Equal(t, 2, result.RuleVersion)
}

func TestAllocate_Unallocated(t *testing.T) {
	engine, err := NewEngine(testRuleSet(t))
	require.NoError(t, err)

	res := &types.Resource{Kind: types.KindNetwork, Provider: "aws"}
	result := engine.Allocate(res, nil)
	require.False(t, result.Matched)
	require.Equal(t, Unallocated, result.BusinessUnit)
}

func TestAllocate_Idempotent(t *testing.T) {
	engine, err := NewEngine(testRuleSet(t))
	require.NoError(t, err)

	res := &types.Resource{Kind: types.KindDatabase, Provider: "aws"}
	first := engine.Allocate(res, nil)
	second := engine.Allocate(res, nil)
	require.Equal(t, first, second)
}

func TestNewEngine_RejectsBadPredicates(t *testing.T) {
	_, err := NewEngine(&RuleSet{Version: 1, Rules: []Rule{
		{Name: "broken", When: `kind ==`, Unit: "x"},
	}})
	require.Error(t, err)

	_, err = NewEngine(&RuleSet{Version: 1, Rules: []Rule{
		{Name: "not-bool", When: `kind`, Unit: "x"},
	}})
	require.Error(t, err)
}

func TestRuleSetValidate(t *testing.T) {
	require.Error(t, (&RuleSet{Version: 0}).Validate())
	require.Error(t, (&RuleSet{Version: 1, Rules: []Rule{{When: "true", Unit: "x"}}}).Validate())
	require.Error(t, (&RuleSet{Version: 1, Rules: []Rule{
		{Name: "a", When: "true", Unit: "x"},
		{Name: "a", When: "true", Unit: "y"},
	}}).Validate())
}

func TestService_ReevaluateAndSummary(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	now := time.Now().UTC()
	mk := func(id, native string, kind types.ResourceKind, tags types.TagSet) types.Change {
		return types.Change{
			Kind: types.ChangeCreated,
			Resource: types.Resource{
				ID: id, ConnectionID: "conn-1", NativeID: native, Provider: "aws",
				Kind: kind, Status: types.StatusActive,
				FirstSeenAt: now, LastSeenAt: now, LastSyncedAt: now,
			},
			Tags: tags,
		}
	}
	_, err = store.ApplyChangeSet(&types.ChangeSet{
		ConnectionID: "conn-1",
		Created: []types.Change{
			mk("res-a", "i-a", types.KindCompute, types.TagSet{
				"env": {Key: "env", Value: "prod", Provenance: types.ProvenanceProvider},
			}),
			mk("res-b", "db-b", types.KindDatabase, nil),
			mk("res-c", "vpc-c", types.KindNetwork, nil),
		},
	})
	require.NoError(t, err)

	engine, err := NewEngine(testRuleSet(t))
	require.NoError(t, err)
	svc := NewService(store, engine)

	updated, err := svc.ReevaluateAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, updated)

	alloc, found, err := store.GetAllocation("res-a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "platform-prod", alloc.BusinessUnit)

	alloc, _, err = store.GetAllocation("res-c")
	require.NoError(t, err)
	require.Equal(t, Unallocated, alloc.BusinessUnit)

	ts := now.Truncate(time.Hour)
	for i, resID := range []string{"res-a", "res-a", "res-b"} {
		require.NoError(t, store.AppendSample(types.MetricSample{
			ResourceID: resID,
			MetricName: "cost_usd",
			Timestamp:  ts.Add(time.Duration(i) * time.Minute),
			Value:      10,
		}))
	}

	totals, err := svc.CostSummary(context.Background(), "cost_usd", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, totals, 3)
	require.Equal(t, "platform-prod", totals[0].BusinessUnit)
	require.True(t, totals[0].Total.Equal(decimal.NewFromInt(20)))
	require.Equal(t, "data-team", totals[1].BusinessUnit)
	require.True(t, totals[1].Total.Equal(decimal.NewFromInt(10)))
}
