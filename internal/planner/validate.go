package planner

import (
	"fmt"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// conflictRateWarning is the conflict-to-task ratio above which the plan
// is flagged as suspiciously serial.
const conflictRateWarning = 0.5

// ValidatePlan returns human-readable warnings for a built plan. Warnings
// never block execution.
func ValidatePlan(p *models.ExecutionPlan) []string {
	var warnings []string

	if len(p.Batches) == 0 {
		warnings = append(warnings, "plan contains no batches")
	}
	for _, b := range p.Batches {
		if len(b.TaskIDs) == 0 {
			warnings = append(warnings, fmt.Sprintf("batch %d is empty", b.BatchID))
		}
		for _, id := range b.TaskIDs {
			if _, ok := p.WorktreeAssignments[id]; !ok {
				warnings = append(warnings, fmt.Sprintf("task %s has no worktree assignment", id))
			}
		}
	}

	if total := p.TaskCount(); total > 0 {
		rate := float64(len(p.PredictedConflicts)) / float64(total)
		if rate > conflictRateWarning {
			warnings = append(warnings, fmt.Sprintf(
				"conflict rate %.0f%% exceeds %.0f%%; most batches will run sequentially",
				rate*100, conflictRateWarning*100))
		}
	}

	return warnings
}
