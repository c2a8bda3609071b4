// Package selector picks a model tier for each task. The decision chain
// runs fixed overrides first (task, priority, task type), then complexity
// scoring, then historical outcome adjustment, and finally budget
// clamping, which always has the last word.
package selector

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/config"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/state"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// OutcomeRecorder persists task outcomes for the history adjuster.
type OutcomeRecorder interface {
	AddQualityCheck(q *state.QualityCheck) error
}

// Recommendation is the selector's output for one task.
type Recommendation struct {
	Tier models.ModelTier
	// Model is the concrete model identifier resolved from config.
	Model string
	// Reasoning lists each step of the chain that shaped the decision.
	Reasoning []string
	// EstimatedCostCents is a rough a-priori cost estimate.
	EstimatedCostCents int64
}

// Selector recommends a model tier per task.
type Selector struct {
	cfg     *config.Config
	history *History
	store   OutcomeRecorder
	logger  *zap.Logger
}

// New builds a Selector. The outcome source and recorder are usually
// the same state store.
func New(cfg *config.Config, source OutcomeSource, store OutcomeRecorder, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		cfg:     cfg,
		history: NewHistory(source),
		store:   store,
		logger:  logger,
	}
}

// Recommend picks a tier for the task. taskType classifies the work for
// history lookups; spentCents is the project's spend so far.
//
// Overrides short-circuit the scoring chain but never the budget clamp.
func (s *Selector) Recommend(task *models.Task, taskType string, spentCents int64) (*Recommendation, error) {
	var reasons []string
	var tier models.ModelTier
	overridden := false

	switch {
	case task.Metadata.ModelOverride != "":
		t, ok := models.ParseTier(task.Metadata.ModelOverride)
		if !ok {
			return nil, fmt.Errorf("task %s: invalid model override %q", task.ID, task.Metadata.ModelOverride)
		}
		tier = t
		overridden = true
		reasons = append(reasons, fmt.Sprintf("task override: %s", tier))

	case s.priorityOverride(task.Priority) != "":
		tier = s.priorityOverride(task.Priority)
		overridden = true
		reasons = append(reasons, fmt.Sprintf("priority %d override: %s", task.Priority, tier))

	case s.taskTypeOverride(task) != "":
		tier = s.taskTypeOverride(task)
		overridden = true
		reasons = append(reasons, fmt.Sprintf("task type override: %s", tier))
	}

	score := ScoreComplexity(task)
	if !overridden {
		tier = TierForScore(score.Total)
		reasons = append(reasons, fmt.Sprintf("complexity %.2f: %s", score.Total, tier))

		adjusted, reason, err := s.history.Adjust(taskType, tier, s.cfg.ModelForTier)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			tier = adjusted
			reasons = append(reasons, reason)
		}
	}

	if clamped, reason := applyBudget(s.cfg.Budget, spentCents, tier, s.logger); reason != "" {
		tier = clamped
		reasons = append(reasons, reason)
	}

	rec := &Recommendation{
		Tier:               tier,
		Model:              s.cfg.ModelForTier(tier),
		Reasoning:          reasons,
		EstimatedCostCents: s.estimateCost(tier, score),
	}
	s.logger.Debug("model recommended",
		zap.String("task_id", task.ID),
		zap.String("tier", string(tier)),
		zap.Strings("reasoning", reasons))
	return rec, nil
}

// RecordOutcome persists one task outcome and invalidates the cached
// aggregate it feeds so the next recommendation sees it.
func (s *Selector) RecordOutcome(q *state.QualityCheck) error {
	if err := s.store.AddQualityCheck(q); err != nil {
		return err
	}
	s.history.Invalidate(q.TaskType, q.Model)
	return nil
}

func (s *Selector) priorityOverride(priority int) models.ModelTier {
	if t, ok := s.cfg.Models.PriorityOverrides[priority]; ok && t.Valid() {
		return t
	}
	return ""
}

func (s *Selector) taskTypeOverride(task *models.Task) models.ModelTier {
	text := strings.ToLower(task.Text())
	for keyword, t := range s.cfg.Models.TaskTypeOverrides {
		if t.Valid() && strings.Contains(text, strings.ToLower(keyword)) {
			return t
		}
	}
	return ""
}

// estimateCost projects token usage from the complexity score and prices
// it at the tier's rates. Deliberately rough; used for reporting only.
func (s *Selector) estimateCost(tier models.ModelTier, score ComplexityScore) int64 {
	p := s.cfg.PricingForTier(tier)
	inTokens := int64(8000 + score.Total*32000)
	outTokens := int64(2000 + score.Total*8000)
	return (inTokens*p.InputCentsPerMTok + outTokens*p.OutputCentsPerMTok) / 1_000_000
}
