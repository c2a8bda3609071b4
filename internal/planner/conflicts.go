package planner

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// File-conflict prediction is deliberately conservative and text-based: it
// can both miss real conflicts and report false ones (a doc mentioning a
// path counts). Predictions only downgrade parallelism; correctness never
// depends on them.

var (
	// Backtick-quoted tokens that look like files or paths.
	backtickRe = regexp.MustCompile("`([^`\\s]+)`")
	// Quoted strings containing a path separator.
	quotedPathRe = regexp.MustCompile(`["']([^"'\s]*/[^"'\s]*)["']`)
	// Bare tokens rooted at a known source prefix.
	prefixedPathRe = regexp.MustCompile(`\b((?:src|api|app|lib|cmd|pkg|internal|tests?|components|services|utils|config|docs|migrations|scripts)/[A-Za-z0-9_./-]+)`)
	// Bare well-known root files.
	rootFileRe = regexp.MustCompile(`\b(index\.[a-z]+|main\.[a-z]+|package\.json|go\.mod|setup\.py|requirements\.txt|Makefile|Dockerfile|docker-compose\.ya?ml)\b`)

	fileLikeRe = regexp.MustCompile(`^[A-Za-z0-9_./-]+\.[A-Za-z0-9]+$`)
)

// ecosystemStopList contains tokens that resemble filenames but name
// runtimes or frameworks, not project files.
var ecosystemStopList = map[string]bool{
	"node.js":      true,
	"next.js":      true,
	"vue.js":       true,
	"react.js":     true,
	"express.js":   true,
	"angular.js":   true,
	"ember.js":     true,
	"backbone.js":  true,
	"three.js":     true,
	"d3.js":        true,
	"nuxt.js":      true,
	"nest.js":      true,
	"socket.io":    true,
	"asp.net":      true,
	"objective-c":  true,
	"styled.d.ts":  true,
	"tailwind.css": false, // real file name, keep
}

// ExtractPredictedFiles scans task text for file paths using the
// conservative regex set.
func ExtractPredictedFiles(text string) []string {
	seen := make(map[string]bool)
	add := func(p string) {
		p = strings.Trim(p, ".,;:()[]{}")
		if p == "" {
			return
		}
		lower := strings.ToLower(p)
		if ecosystemStopList[lower] {
			return
		}
		// Backticked tokens may be identifiers; require a path separator
		// or file extension shape.
		if !strings.Contains(p, "/") && !fileLikeRe.MatchString(p) {
			return
		}
		seen[path.Clean(p)] = true
	}

	for _, m := range backtickRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range quotedPathRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range prefixedPathRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range rootFileRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	files := make([]string, 0, len(seen))
	for p := range seen {
		files = append(files, p)
	}
	sort.Strings(files)
	return files
}

// PredictConflicts extracts predicted files for every task (writing them
// into task metadata) and reports overlapping references.
//
// A path referenced by two or more tasks yields a same_file conflict with
// exactly those tasks. A directory referenced by two or more tasks yields
// a same_directory conflict unless a same_file conflict already covers
// that task pair.
func PredictConflicts(tasks []*models.Task) []models.PredictedConflict {
	byFile := make(map[string][]string)
	byDir := make(map[string]map[string]bool)
	for _, t := range tasks {
		files := ExtractPredictedFiles(t.Text())
		t.Metadata.PredictedFiles = files
		for _, f := range files {
			byFile[f] = append(byFile[f], t.ID)
			dir := path.Dir(f)
			if dir != "." && dir != "/" {
				if byDir[dir] == nil {
					byDir[dir] = make(map[string]bool)
				}
				byDir[dir][t.ID] = true
			}
		}
	}

	var conflicts []models.PredictedConflict
	coveredPairs := make(map[string]bool)
	pairKey := func(a, b string) string {
		if a > b {
			a, b = b, a
		}
		return a + "\x00" + b
	}

	var files []string
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		ids := dedupeSorted(byFile[f])
		if len(ids) < 2 {
			continue
		}
		conflicts = append(conflicts, models.PredictedConflict{
			TaskIDs:        ids,
			PredictedFiles: []string{f},
			ConflictType:   models.ConflictSameFile,
		})
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				coveredPairs[pairKey(ids[i], ids[j])] = true
			}
		}
	}

	var dirs []string
	for d := range byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		var ids []string
		for id := range byDir[d] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) < 2 {
			continue
		}
		allCovered := true
		for i := 0; i < len(ids) && allCovered; i++ {
			for j := i + 1; j < len(ids); j++ {
				if !coveredPairs[pairKey(ids[i], ids[j])] {
					allCovered = false
					break
				}
			}
		}
		if allCovered {
			continue
		}
		conflicts = append(conflicts, models.PredictedConflict{
			TaskIDs:        ids,
			PredictedFiles: []string{d + "/"},
			ConflictType:   models.ConflictSameDirectory,
		})
	}

	return conflicts
}

func dedupeSorted(ids []string) []string {
	sort.Strings(ids)
	out := ids[:0]
	var last string
	for i, id := range ids {
		if i == 0 || id != last {
			out = append(out, id)
		}
		last = id
	}
	return append([]string(nil), out...)
}
