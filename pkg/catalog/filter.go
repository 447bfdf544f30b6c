package catalog

import (
	"sort"

	"github.com/finchops/azreserve/pkg/config"
)

// FilterPolicy selects which resources are worth detailed pricing.
//
// Two composable rules: a projected-savings threshold, and a minimum-count
// floor that relaxes the threshold when a small fleet would otherwise
// produce a uselessly short report. The floor only admits candidates with
// strictly positive projected savings.
type FilterPolicy struct {
	MinAnnualSavings float64
	MinCount         int
}

// DefaultFilterPolicy returns the policy with stock thresholds.
func DefaultFilterPolicy() FilterPolicy {
	cfg := config.DefaultFilterConfig()
	return FilterPolicy{MinAnnualSavings: cfg.MinAnnualSavings, MinCount: cfg.MinCount}
}

// Apply returns the filtered candidate list, deterministically ordered by
// projected annual savings descending, ties broken by name.
func (p FilterPolicy) Apply(resources []ResourceDescriptor) []ResourceDescriptor {
	ranked := make([]ResourceDescriptor, len(resources))
	copy(ranked, resources)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ProjectedAnnualSavings != ranked[j].ProjectedAnnualSavings {
			return ranked[i].ProjectedAnnualSavings > ranked[j].ProjectedAnnualSavings
		}
		return ranked[i].Name < ranked[j].Name
	})

	var kept []ResourceDescriptor
	for _, r := range ranked {
		if r.ProjectedAnnualSavings >= p.MinAnnualSavings {
			kept = append(kept, r)
		}
	}

	// Floor: top up from the next-highest band until min(MinCount, total).
	if len(kept) < p.MinCount {
		for _, r := range ranked {
			if len(kept) >= p.MinCount {
				break
			}
			if r.ProjectedAnnualSavings >= p.MinAnnualSavings {
				continue // already kept
			}
			if r.ProjectedAnnualSavings > 0 {
				kept = append(kept, r)
			}
		}
	}

	return kept
}
