package planner

import (
	"errors"
	"reflect"
	"testing"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/internal/resolver"
	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

func TestExtractPredictedFiles(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "backticked path",
			text: "Update `src/auth/login.go` to add rate limiting",
			want: []string{"src/auth/login.go"},
		},
		{
			name: "quoted path",
			text: `Edit "api/routes/user.ts" and nothing else`,
			want: []string{"api/routes/user.ts"},
		},
		{
			name: "bare prefixed path",
			text: "Refactor internal/state/db.go for clarity",
			want: []string{"internal/state/db.go"},
		},
		{
			name: "well known root file",
			text: "Bump the version in package.json",
			want: []string{"package.json"},
		},
		{
			name: "ecosystem names excluded",
			text: "Migrate the app from Express.js to plain Node.js",
			want: []string{},
		},
		{
			name: "backticked identifier excluded",
			text: "Rename `getUserByID` everywhere",
			want: []string{},
		},
		{
			name: "deduplicated",
			text: "Touch `src/a.go` then touch `src/a.go` again",
			want: []string{"src/a.go"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPredictedFiles(tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ExtractPredictedFiles(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPredictConflictsSameFile(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t1", Description: "Edit `src/shared/util.go`"},
		{ID: "t2", Description: "Also edit `src/shared/util.go`"},
		{ID: "t3", Description: "Edit `docs/readme.md`"},
	}
	conflicts := PredictConflicts(tasks)

	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %+v, want exactly one", conflicts)
	}
	c := conflicts[0]
	if c.ConflictType != models.ConflictSameFile {
		t.Fatalf("conflict type = %s", c.ConflictType)
	}
	if !reflect.DeepEqual(c.TaskIDs, []string{"t1", "t2"}) {
		t.Fatalf("conflict tasks = %v", c.TaskIDs)
	}
	if !reflect.DeepEqual(tasks[0].Metadata.PredictedFiles, []string{"src/shared/util.go"}) {
		t.Fatalf("predicted files not written to metadata: %v", tasks[0].Metadata.PredictedFiles)
	}
}

func TestPredictConflictsSameDirectory(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t1", Description: "Create `src/auth/login.go`"},
		{ID: "t2", Description: "Create `src/auth/logout.go`"},
	}
	conflicts := PredictConflicts(tasks)

	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %+v, want exactly one", conflicts)
	}
	if conflicts[0].ConflictType != models.ConflictSameDirectory {
		t.Fatalf("conflict type = %s", conflicts[0].ConflictType)
	}
}

func TestPredictConflictsDirectorySuppressedWhenFileCovers(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t1", Description: "Edit `src/auth/login.go`"},
		{ID: "t2", Description: "Edit `src/auth/login.go` too"},
	}
	conflicts := PredictConflicts(tasks)

	for _, c := range conflicts {
		if c.ConflictType == models.ConflictSameDirectory {
			t.Fatalf("same_directory emitted although same_file covers the pair: %+v", conflicts)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"User Auth", "user-auth"},
		{"data_layer", "data-layer"},
		{"API!! v2", "api-v2"},
		{"---", "epic"},
		{"", "epic"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAssignWorktrees(t *testing.T) {
	epics := []*models.Epic{
		{ID: "e1", Name: "Auth"},
		{ID: "e2", Name: "Billing"},
		{ID: "e3", Name: "Docs"},
	}
	tasks := []*models.Task{
		{ID: "t1", EpicID: "e1"},
		{ID: "t2", EpicID: "e1"},
		{ID: "t3", EpicID: "e1"},
		{ID: "t4", EpicID: "e2"},
		{ID: "t5", EpicID: "e2"},
		{ID: "t6", EpicID: "e3"},
		{ID: "t7"},
	}

	got := AssignWorktrees(tasks, epics, 2)

	if got["t1"] != "worktree-auth" {
		t.Errorf("largest epic should get its own worktree, got %s", got["t1"])
	}
	if got["t4"] != "worktree-billing" {
		t.Errorf("second epic should get its own worktree, got %s", got["t4"])
	}
	// e3 overflows the cap and round-robins into the pool.
	if got["t6"] != "worktree-auth" {
		t.Errorf("overflow epic assignment = %s, want worktree-auth", got["t6"])
	}
	if got["t7"] != DefaultWorktree {
		t.Errorf("epicless task assignment = %s, want %s", got["t7"], DefaultWorktree)
	}
}

func TestAssignWorktreesSlugCollision(t *testing.T) {
	epics := []*models.Epic{
		{ID: "e1", Name: "Core API"},
		{ID: "e2", Name: "core_api"},
	}
	tasks := []*models.Task{
		{ID: "t1", EpicID: "e1"},
		{ID: "t2", EpicID: "e2"},
	}

	got := AssignWorktrees(tasks, epics, 4)
	if got["t1"] == got["t2"] {
		t.Fatalf("distinct epics share worktree %s", got["t1"])
	}
}

func TestBuildPlan(t *testing.T) {
	epics := []*models.Epic{{ID: "e1", Name: "Auth"}, {ID: "e2", Name: "Billing"}}
	tasks := []*models.Task{
		{ID: "t1", EpicID: "e1", Description: "Create `src/auth/login.go`", Priority: 1},
		{ID: "t2", EpicID: "e2", Description: "Create `src/billing/invoice.go`", Priority: 1},
		{ID: "t3", EpicID: "e1", Description: "Wire login into `src/app.go`", Priority: 1, DependsOn: []string{"t1"}},
	}

	plan, err := BuildPlan("p1", tasks, epics, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Batches) != 2 {
		t.Fatalf("batches = %+v", plan.Batches)
	}
	if !plan.Batches[0].CanParallel {
		t.Error("first batch has no conflicts and two tasks; should parallelize")
	}
	if plan.Batches[1].CanParallel {
		t.Error("single-task batch cannot parallelize")
	}
	if !reflect.DeepEqual(plan.Batches[1].DependsOn, []int{0}) {
		t.Errorf("batch 1 depends_on = %v", plan.Batches[1].DependsOn)
	}
	if plan.Metadata.TotalTasks != 3 {
		t.Errorf("metadata total = %d", plan.Metadata.TotalTasks)
	}
	if models.SelectMode(plan) != models.ModeParallel {
		t.Error("plan with a parallelizable batch must select parallel mode")
	}
}

func TestBuildPlanConflictDowngradesBatch(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t1", Description: "Edit `src/shared/util.go`"},
		{ID: "t2", Description: "Edit `src/shared/util.go` as well"},
	}
	plan, err := BuildPlan("p1", tasks, nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Batches[0].CanParallel {
		t.Fatal("conflicting tasks must not run in parallel")
	}
	if models.SelectMode(plan) != models.ModeSequential {
		t.Fatal("fully conflicted plan must select sequential mode")
	}
}

func TestBuildPlanCycleFails(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t1", DependsOn: []string{"t2"}},
		{ID: "t2", DependsOn: []string{"t1"}},
	}
	_, err := BuildPlan("p1", tasks, nil, 4)
	if !errors.Is(err, resolver.ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}
}

func TestValidatePlanWarnings(t *testing.T) {
	plan := &models.ExecutionPlan{
		Batches:             []models.Batch{{BatchID: 0, TaskIDs: []string{"t1", "t2"}}},
		WorktreeAssignments: map[string]string{"t1": "worktree-a"},
		PredictedConflicts: []models.PredictedConflict{
			{TaskIDs: []string{"t1", "t2"}, ConflictType: models.ConflictSameFile},
			{TaskIDs: []string{"t1", "t2"}, ConflictType: models.ConflictSameDirectory},
		},
		Metadata: models.PlanMetadata{TotalTasks: 2, ConflictsDetected: 2},
	}
	warnings := ValidatePlan(plan)
	if len(warnings) == 0 {
		t.Fatal("expected warnings for missing assignment and high conflict rate")
	}
}
