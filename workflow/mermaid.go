package workflow

import (
	"fmt"
	"strings"
)

// Mermaid renders the graph as a Mermaid flowchart. Static edges are solid,
// conditional edges are dotted and labelled with the router label.
func (g *CompiledGraph) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString("    __start__([start])\n")
	b.WriteString("    __end__([end])\n")
	for _, name := range g.order {
		fmt.Fprintf(&b, "    %s[%s]\n", mermaidID(name), name)
	}
	fmt.Fprintf(&b, "    __start__ --> %s\n", mermaidID(g.entry))
	for _, name := range g.order {
		e, ok := g.edges[name]
		if !ok {
			continue
		}
		if !e.IsConditional() {
			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(name), mermaidID(e.to))
			continue
		}
		for _, label := range e.Labels() {
			fmt.Fprintf(&b, "    %s -.->|%s| %s\n", mermaidID(name), label, mermaidID(e.routes[label]))
		}
	}
	return b.String()
}

func mermaidID(name string) string {
	if name == END {
		return END
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
