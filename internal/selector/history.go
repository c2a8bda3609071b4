package selector

import (
	"fmt"
	"sync"
	"time"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/state"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// History tuning constants.
const (
	historyTTL = 5 * time.Minute
	// minSamples is the minimum number of recorded outcomes before
	// history influences a recommendation.
	minSamples = 3
	// upgradeBelow upgrades the tier when its success rate falls under it.
	upgradeBelow = 0.7
	// downgradeAt allows a downgrade when the current tier succeeds at
	// least this often...
	downgradeAt = 0.9
	// ...and the cheaper tier holds at least this rate itself.
	cheaperFloor = 0.85
)

// OutcomeSource supplies aggregated outcome stats per (task type, model).
type OutcomeSource interface {
	OutcomesFor(taskType, model string) (state.OutcomeStats, error)
}

type cachedStats struct {
	stats   state.OutcomeStats
	fetched time.Time
}

// History adjusts tier recommendations based on recorded outcomes,
// caching aggregates briefly so hot paths don't hammer the database.
type History struct {
	source OutcomeSource

	mu    sync.Mutex
	cache map[string]cachedStats
	now   func() time.Time
}

// NewHistory builds a History over an outcome source.
func NewHistory(source OutcomeSource) *History {
	return &History{
		source: source,
		cache:  map[string]cachedStats{},
		now:    time.Now,
	}
}

func (h *History) statsFor(taskType, model string) (state.OutcomeStats, error) {
	key := taskType + "\x00" + model
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.cache[key]; ok && h.now().Sub(c.fetched) < historyTTL {
		return c.stats, nil
	}
	stats, err := h.source.OutcomesFor(taskType, model)
	if err != nil {
		return state.OutcomeStats{}, err
	}
	h.cache[key] = cachedStats{stats: stats, fetched: h.now()}
	return stats, nil
}

// Invalidate drops the cached aggregate for one (task type, model) pair.
// Called after every recorded outcome so fresh data wins over the TTL.
func (h *History) Invalidate(taskType, model string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.cache, taskType+"\x00"+model)
}

// Adjust nudges a tier up or down based on recorded outcomes for the
// task type. Fewer than minSamples recorded outcomes leaves the tier
// untouched. The returned reason is empty when nothing changed.
func (h *History) Adjust(taskType string, tier models.ModelTier, modelFor func(models.ModelTier) string) (models.ModelTier, string, error) {
	stats, err := h.statsFor(taskType, modelFor(tier))
	if err != nil {
		return tier, "", err
	}
	if stats.Samples < minSamples {
		return tier, "", nil
	}

	if stats.SuccessRate < upgradeBelow && tier != models.TierPremium {
		up := tier.Upgrade()
		upper, err := h.statsFor(taskType, modelFor(up))
		if err != nil {
			return tier, "", err
		}
		// Upgrading only helps when the bigger model has actually done
		// better on this task type.
		if upper.Samples >= minSamples && upper.SuccessRate > stats.SuccessRate {
			reason := fmt.Sprintf("history: %s success rate %.0f%% over %d samples for %s tasks, upgrading to %s (%.0f%%)",
				tier, stats.SuccessRate*100, stats.Samples, taskType, up, upper.SuccessRate*100)
			return up, reason, nil
		}
		return tier, "", nil
	}

	if stats.SuccessRate >= downgradeAt && tier != models.TierCheap {
		down := tier.Downgrade()
		cheaper, err := h.statsFor(taskType, modelFor(down))
		if err != nil {
			return tier, "", err
		}
		if cheaper.Samples >= minSamples && cheaper.SuccessRate >= cheaperFloor {
			reason := fmt.Sprintf("history: %s holds %.0f%% on %s tasks, downgrading to %s",
				down, cheaper.SuccessRate*100, taskType, down)
			return down, reason, nil
		}
	}
	return tier, "", nil
}
