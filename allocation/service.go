package allocation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finopskit/kosten/storage"
	"github.com/finopskit/kosten/telemetry"
	"github.com/finopskit/kosten/types"
)

// Service materializes current business-unit assignments into the
// registry. Re-evaluation happens when tags change or rules are updated
// and never rewrites past billing periods.
type Service struct {
	store  *storage.Registry
	engine *Engine
	logger *telemetry.Logger
	now    func() time.Time
}

// NewService creates an allocation service.
func NewService(store *storage.Registry, engine *Engine) *Service {
	return &Service{
		store:  store,
		engine: engine,
		logger: telemetry.NewLogger("allocation"),
		now:    time.Now,
	}
}

// Reevaluate recomputes assignments for the given resources. Tombstoned
// resources keep their last assignment for lineage.
func (s *Service) Reevaluate(ctx context.Context, resourceIDs []string) (int, error) {
	updated := 0
	for _, id := range resourceIDs {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		res, err := s.store.GetResource(id)
		if err != nil {
			return updated, fmt.Errorf("reevaluate %s: %w", id, err)
		}
		if res.IsDeleted() {
			continue
		}
		tags, err := s.store.TagsFor(id)
		if err != nil {
			return updated, err
		}
		result := s.engine.Allocate(res, tags)
		err = s.store.PutAllocation(storage.Allocation{
			ResourceID:   id,
			BusinessUnit: result.BusinessUnit,
			RuleName:     result.RuleName,
			RuleVersion:  result.RuleVersion,
			EvaluatedAt:  s.now().UTC(),
		})
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// ReevaluateAll recomputes assignments for every live resource, used
// after a rule set update.
func (s *Service) ReevaluateAll(ctx context.Context) (int, error) {
	resources, err := s.store.ListResources(types.ResourceFilter{})
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(resources))
	for i, res := range resources {
		ids[i] = res.ID
	}
	updated, err := s.Reevaluate(ctx, ids)
	if err != nil {
		return updated, err
	}
	s.logger.WithContext(ctx).Info().
		Int("resources", updated).
		Int("rule_version", s.engine.Version()).
		Msg("allocations reevaluated")
	return updated, nil
}

// UnitTotal is the cost attributed to one business unit over a window.
type UnitTotal struct {
	BusinessUnit string          `json:"business_unit"`
	Total        decimal.Decimal `json:"total"`
	Resources    int             `json:"resources"`
}

// CostSummary sums a cost metric per business unit over [from, to),
// reading both raw samples and compacted rollups.
func (s *Service) CostSummary(ctx context.Context, metricName string, from, to time.Time) ([]UnitTotal, error) {
	allocations, err := s.store.ListAllocations()
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*UnitTotal)
	for _, alloc := range allocations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		total, err := s.resourceCost(alloc.ResourceID, metricName, from, to)
		if err != nil {
			return nil, err
		}
		unit := totals[alloc.BusinessUnit]
		if unit == nil {
			unit = &UnitTotal{BusinessUnit: alloc.BusinessUnit, Total: decimal.Zero}
			totals[alloc.BusinessUnit] = unit
		}
		unit.Total = unit.Total.Add(total)
		unit.Resources++
	}

	out := make([]UnitTotal, 0, len(totals))
	for _, unit := range totals {
		out = append(out, *unit)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out, nil
}

func (s *Service) resourceCost(resourceID, metricName string, from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	samples, err := s.store.SamplesFor(resourceID, metricName, from, to)
	if err != nil {
		return total, err
	}
	for _, sample := range samples {
		total = total.Add(decimal.NewFromFloat(sample.Value))
	}
	rollups, err := s.store.RollupsFor(resourceID, metricName, from, to)
	if err != nil {
		return total, err
	}
	for _, rollup := range rollups {
		total = total.Add(decimal.NewFromFloat(rollup.Sum))
	}
	return total, nil
}
