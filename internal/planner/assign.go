package planner

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// DefaultWorktree receives tasks that belong to no epic.
const DefaultWorktree = "worktree-default"

var slugStripRe = regexp.MustCompile(`[^a-z0-9-]+`)
var slugCollapseRe = regexp.MustCompile(`-{2,}`)

// Slug reduces an epic name to a worktree-safe token.
func Slug(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugCollapseRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "epic"
	}
	return s
}

// AssignWorktrees maps every task to a worktree name. Epics are sorted by
// task count descending; the first maxWorktrees epics get their own
// worktree, the rest round-robin into the existing set. Tasks without an
// epic fall into the default worktree.
func AssignWorktrees(tasks []*models.Task, epics []*models.Epic, maxWorktrees int) map[string]string {
	if maxWorktrees < 1 {
		maxWorktrees = 1
	}

	epicName := make(map[string]string, len(epics))
	for _, e := range epics {
		epicName[e.ID] = e.Name
	}

	counts := make(map[string]int)
	var epicOrder []string
	for _, t := range tasks {
		if t.EpicID == "" {
			continue
		}
		if counts[t.EpicID] == 0 {
			epicOrder = append(epicOrder, t.EpicID)
		}
		counts[t.EpicID]++
	}
	// Largest epics first; stable tiebreak on id keeps assignment
	// deterministic.
	sort.SliceStable(epicOrder, func(i, j int) bool {
		if counts[epicOrder[i]] != counts[epicOrder[j]] {
			return counts[epicOrder[i]] > counts[epicOrder[j]]
		}
		return epicOrder[i] < epicOrder[j]
	})

	epicWorktree := make(map[string]string, len(epicOrder))
	var pool []string
	for i, epicID := range epicOrder {
		if i < maxWorktrees {
			name := "worktree-" + Slug(epicName[epicID])
			// Distinct epics may slug identically; suffix keeps names unique.
			base := name
			for n := 2; contains(pool, name); n++ {
				name = base + "-" + strconv.Itoa(n)
			}
			epicWorktree[epicID] = name
			pool = append(pool, name)
		} else {
			epicWorktree[epicID] = pool[(i-maxWorktrees)%len(pool)]
		}
	}

	assignments := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if t.EpicID == "" {
			assignments[t.ID] = DefaultWorktree
			continue
		}
		assignments[t.ID] = epicWorktree[t.EpicID]
	}
	return assignments
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
