package worktree

import (
	"fmt"
	"strings"
)

// Windows reserved device names. A branch named after one breaks
// checkouts on that platform, so they get prefixed.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

const maxBranchLen = 100

// SanitizeBranchName turns arbitrary epic names into safe branch name
// components: lowercase, hyphen-separated, ASCII alphanumerics plus
// dots, capped in length, never a reserved device name, never empty.
func SanitizeBranchName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-.")

	if len(s) > maxBranchLen {
		s = strings.Trim(s[:maxBranchLen], "-.")
	}
	if s == "" {
		return "epic"
	}
	if reservedNames[s] {
		return "epic-" + s
	}
	return s
}

// BranchForEpic builds the canonical branch name for an epic.
func BranchForEpic(epicID, epicName string) string {
	return fmt.Sprintf("epic-%s-%s", epicID, SanitizeBranchName(epicName))
}
