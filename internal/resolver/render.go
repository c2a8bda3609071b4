package resolver

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderOptions filters the diagnostic renderings.
type RenderOptions struct {
	// Epic restricts output to tasks of one epic; empty shows all.
	Epic string
	// Batch restricts output to one batch index; negative shows all.
	Batch int
}

// AllBatches renders everything.
var AllBatches = RenderOptions{Batch: -1}

func (o RenderOptions) includes(g *Graph, batchIdx int, taskID string) bool {
	if o.Batch >= 0 && batchIdx != o.Batch {
		return false
	}
	if o.Epic != "" {
		t := g.Task(taskID)
		if t == nil || t.EpicID != o.Epic {
			return false
		}
	}
	return true
}

// Mermaid renders the graph as a Mermaid flowchart. Hard edges are solid,
// soft edges dashed. Diagnostic only.
func (g *Graph) Mermaid(opts RenderOptions) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for i, batch := range g.Batches {
		for _, id := range batch {
			if !opts.includes(g, i, id) {
				continue
			}
			t := g.Task(id)
			label := id
			if t != nil && t.Description != "" {
				label = truncate(t.Description, 40)
			}
			fmt.Fprintf(&b, "    %s[\"%s\"]\n", sanitizeMermaidID(id), escapeMermaid(label))
		}
	}
	for id, deps := range g.hard {
		for _, dep := range deps {
			fmt.Fprintf(&b, "    %s --> %s\n", sanitizeMermaidID(dep), sanitizeMermaidID(id))
		}
	}
	for id, deps := range g.SoftEdges {
		for _, dep := range deps {
			fmt.Fprintf(&b, "    %s -.-> %s\n", sanitizeMermaidID(dep), sanitizeMermaidID(id))
		}
	}
	for _, cycle := range g.Cycles {
		fmt.Fprintf(&b, "    %%%% cycle: %s\n", strings.Join(cycle, " -> "))
	}
	return b.String()
}

var (
	batchHeaderStyle = lipgloss.NewStyle().Bold(true)
	cycleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	softStyle        = lipgloss.NewStyle().Faint(true)
)

// ASCII renders a fixed-width batch listing.
func (g *Graph) ASCII(opts RenderOptions) string {
	var b strings.Builder
	for i, batch := range g.Batches {
		var lines []string
		for _, id := range batch {
			if !opts.includes(g, i, id) {
				continue
			}
			t := g.Task(id)
			desc := ""
			if t != nil {
				desc = truncate(t.Description, 48)
			}
			line := fmt.Sprintf("  %-24s %s", truncate(id, 24), desc)
			if deps := g.hard[id]; len(deps) > 0 {
				line += fmt.Sprintf("  <- %s", strings.Join(deps, ", "))
			}
			if soft := g.SoftEdges[id]; len(soft) > 0 {
				line += softStyle.Render(fmt.Sprintf("  (soft: %s)", strings.Join(soft, ", ")))
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		b.WriteString(batchHeaderStyle.Render(fmt.Sprintf("batch %d (%d tasks)", i, len(batch))))
		b.WriteString("\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	for _, cycle := range g.Cycles {
		b.WriteString(cycleStyle.Render(fmt.Sprintf("cycle: %s", strings.Join(cycle, " -> "))))
		b.WriteString("\n")
	}
	for _, d := range g.Dangling {
		b.WriteString(fmt.Sprintf("dangling: %s -> %s (dropped)\n", d.TaskID, d.MissingID))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func sanitizeMermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, `"`, `'`)
}
