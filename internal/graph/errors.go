package graph

import (
	"fmt"
	"strings"
)

// NodeRef identifies a node in an error report.
type NodeRef struct {
	ID    uint64
	Label string
}

func (r NodeRef) String() string { return r.Label }

// CycleError reports a dependency cycle: a node that was re-entered along
// a single DFS path. Path holds the cycle in order, starting at Node.
type CycleError struct {
	Node NodeRef
	Path []NodeRef
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString("dependency cycle detected:\n\n")

	if len(e.Path) == 0 {
		b.WriteString(fmt.Sprintf("    %s\n", e.Node))
		b.WriteString("      ↓\n")
		b.WriteString(fmt.Sprintf("    %s (cycle)\n", e.Node))
	} else {
		for _, node := range e.Path {
			b.WriteString(fmt.Sprintf("    %s\n", node))
			b.WriteString("      ↓\n")
		}
		b.WriteString(fmt.Sprintf("    %s (cycle)\n", e.Path[0]))
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Split one provider so the shared state has its own key\n")
	b.WriteString("  • Seed one of the keys into the scope instead of providing it\n")
	b.WriteString("  • Restructure to remove the circular relationship\n")

	return b.String()
}
