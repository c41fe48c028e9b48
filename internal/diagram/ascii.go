package diagram

import (
	"fmt"
	"strings"
)

// RenderASCII renders a Model as a vertical text diagram using
// box-drawing characters. Advisory edges are listed after the chain.
func RenderASCII(model *Model) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	for i, node := range model.Nodes {
		renderBox(&b, node)
		if i < len(model.Nodes)-1 {
			b.WriteString("   │\n")
			b.WriteString("   ▼\n")
		}
	}

	var advisory []Edge
	for _, e := range model.Edges {
		if e.Label != "" {
			advisory = append(advisory, e)
		}
	}
	if len(advisory) > 0 {
		b.WriteString("\n--- advisory transitions ---\n")
		for _, e := range advisory {
			b.WriteString(fmt.Sprintf("%s --%s--> %s\n", e.From, e.Label, e.To))
		}
	}

	return b.String()
}

// statusTag returns a short ASCII indicator for a step status.
func statusTag(status string) string {
	switch status {
	case "success":
		return "[OK]"
	case "failed":
		return "[FAIL]"
	case "running":
		return "[RUN]"
	case "skipped":
		return "[SKIP]"
	case "pending":
		return "[PEND]"
	default:
		return ""
	}
}

func renderBox(b *strings.Builder, node *Node) {
	var lines []string
	lines = append(lines, node.Label)
	if node.Kind != NodeKindStart && node.Kind != NodeKindEnd {
		lines = append(lines, fmt.Sprintf("(%s)", node.Kind))
	}
	if node.Status != nil {
		if tag := statusTag(node.Status.Status); tag != "" {
			lines = append(lines, tag)
		}
		if node.Status.DurationMs > 0 {
			lines = append(lines, fmt.Sprintf("%dms", node.Status.DurationMs))
		}
	}

	width := 0
	for _, l := range lines {
		if n := len([]rune(l)); n > width {
			width = n
		}
	}

	b.WriteString("┌─" + strings.Repeat("─", width) + "─┐\n")
	for _, l := range lines {
		pad := width - len([]rune(l))
		b.WriteString("│ " + l + strings.Repeat(" ", pad) + " │\n")
	}
	b.WriteString("└─" + strings.Repeat("─", width) + "─┘\n")
}
