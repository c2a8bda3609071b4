package selector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/config"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// Budget warning thresholds as a fraction of the limit.
const (
	warnAt     = 0.80
	critWarnAt = 0.95
)

// applyBudget clamps a tier recommendation so the project cannot
// overshoot its budget. A zero limit disables enforcement. The returned
// reason is empty when the tier passed through unchanged.
func applyBudget(cfg config.BudgetConfig, spentCents int64, tier models.ModelTier, logger *zap.Logger) (models.ModelTier, string) {
	if cfg.LimitCents <= 0 {
		return tier, ""
	}

	remaining := cfg.LimitCents - spentCents
	used := float64(spentCents) / float64(cfg.LimitCents)

	if used >= critWarnAt {
		logger.Warn("budget nearly exhausted",
			zap.Int64("spent_cents", spentCents),
			zap.Int64("limit_cents", cfg.LimitCents),
			zap.Int64("remaining_cents", remaining))
	} else if used >= warnAt {
		logger.Warn("budget past warning threshold",
			zap.Int64("spent_cents", spentCents),
			zap.Int64("limit_cents", cfg.LimitCents),
			zap.Int64("remaining_cents", remaining))
	}

	if remaining <= 0 || remaining < cfg.LowWaterCents {
		if tier != models.TierCheap {
			return models.TierCheap, fmt.Sprintf(
				"budget: %d cents remaining, forcing cheap tier", max64(remaining, 0))
		}
		return tier, ""
	}
	if remaining < cfg.MidWaterCents && tier == models.TierPremium {
		return models.TierMid, fmt.Sprintf(
			"budget: %d cents remaining, capping at mid tier", remaining)
	}
	return tier, ""
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
