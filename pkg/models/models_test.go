package models

import (
	"testing"
	"time"
)

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name string
		plan *ExecutionPlan
		want ExecutionMode
	}{
		{"nil plan", nil, ModeSequential},
		{"empty plan", &ExecutionPlan{}, ModeSequential},
		{
			"single task batches",
			&ExecutionPlan{Batches: []Batch{
				{BatchID: 0, TaskIDs: []string{"a"}, CanParallel: true},
				{BatchID: 1, TaskIDs: []string{"b"}},
			}},
			ModeSequential,
		},
		{
			"parallelizable pair",
			&ExecutionPlan{Batches: []Batch{
				{BatchID: 0, TaskIDs: []string{"a", "b"}, CanParallel: true},
			}},
			ModeParallel,
		},
		{
			"conflicted pair stays sequential",
			&ExecutionPlan{Batches: []Batch{
				{BatchID: 0, TaskIDs: []string{"a", "b"}, CanParallel: false},
			}},
			ModeSequential,
		},
		{
			"one parallel batch is enough",
			&ExecutionPlan{Batches: []Batch{
				{BatchID: 0, TaskIDs: []string{"a"}},
				{BatchID: 1, TaskIDs: []string{"b", "c"}, CanParallel: true},
			}},
			ModeParallel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectMode(tt.plan); got != tt.want {
				t.Fatalf("SelectMode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlanRoundTrip(t *testing.T) {
	plan := &ExecutionPlan{
		ProjectID: "p1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Batches: []Batch{
			{BatchID: 0, TaskIDs: []string{"a", "b"}, CanParallel: true},
			{BatchID: 1, TaskIDs: []string{"c"}, DependsOn: []int{0}},
		},
		WorktreeAssignments: map[string]string{"a": "worktree-auth"},
		PredictedConflicts: []PredictedConflict{
			{TaskIDs: []string{"a", "b"}, PredictedFiles: []string{"x.go"}, ConflictType: ConflictSameFile},
		},
		Metadata: PlanMetadata{TotalTasks: 3, ConflictsDetected: 1},
	}

	data, err := MarshalPlan(plan)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalPlan(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.TaskCount() != 3 {
		t.Errorf("task count = %d", got.TaskCount())
	}
	if len(got.Batches) != 2 || got.Batches[0].TaskIDs[1] != "b" {
		t.Errorf("batches = %+v", got.Batches)
	}
	if got.PredictedConflicts[0].ConflictType != ConflictSameFile {
		t.Errorf("conflicts = %+v", got.PredictedConflicts)
	}

	if _, err := UnmarshalPlan([]byte("{")); err == nil {
		t.Error("truncated JSON must fail")
	}
}

func TestTierTransitions(t *testing.T) {
	if TierCheap.Upgrade() != TierMid || TierMid.Upgrade() != TierPremium || TierPremium.Upgrade() != TierPremium {
		t.Error("upgrade chain broken")
	}
	if TierPremium.Downgrade() != TierMid || TierMid.Downgrade() != TierCheap || TierCheap.Downgrade() != TierCheap {
		t.Error("downgrade chain broken")
	}
}

func TestParseTier(t *testing.T) {
	for _, s := range []string{"cheap", "mid", "premium"} {
		if _, ok := ParseTier(s); !ok {
			t.Errorf("ParseTier(%q) rejected", s)
		}
	}
	if _, ok := ParseTier("turbo"); ok {
		t.Error("unknown tier accepted")
	}
}

func TestStaleThreshold(t *testing.T) {
	tests := []struct {
		typ  SessionType
		want time.Duration
	}{
		{SessionInitializer, 35 * time.Minute},
		{SessionCoding, 15 * time.Minute},
		{SessionReview, 10 * time.Minute},
		{SessionType("unknown"), 15 * time.Minute},
	}
	for _, tt := range tests {
		if got := tt.typ.StaleThreshold(); got != tt.want {
			t.Errorf("StaleThreshold(%s) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestTaskText(t *testing.T) {
	short := &Task{Description: "fix the bug"}
	if short.Text() != "fix the bug" {
		t.Errorf("text = %q", short.Text())
	}
	full := &Task{Description: "fix the bug", Action: "start in handler.go"}
	if full.Text() != "fix the bug\nstart in handler.go" {
		t.Errorf("text = %q", full.Text())
	}
}
