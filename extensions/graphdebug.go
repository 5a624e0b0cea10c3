package extensions

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/m1gwings/treedrawer/tree"
	synapse "github.com/synapse-engine/synapse"
)

// GraphDebugExtension logs an ASCII tree of the failing node's outgoing
// wires whenever a node reports an error, so an operator staring at a
// terminal can see where the pulse was when things went wrong. A critical
// error is logged as its message only; the scope stack is not rendered.
//
// Grounded on the teacher's extensions/graph_debug.go (treedrawer-based
// dependency-tree rendering, driven off an OnError hook, logged through
// slog.Logger); narrowed from the teacher's resolve-dependency graph to a
// node-topology graph, since this engine's "dependencies" are outgoing
// wires, not DI resolution edges.
type GraphDebugExtension struct {
	synapse.BaseExtension
	logger    *slog.Logger
	adjacency *synapse.WireAdjacency
	nodeNames map[string]string
}

func NewGraphDebugExtension(logger *slog.Logger, adjacency *synapse.WireAdjacency, nodeNames map[string]string) *GraphDebugExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphDebugExtension{
		BaseExtension: synapse.BaseExtension{ExtensionName: "graph-debug"},
		logger:        logger,
		adjacency:     adjacency,
		nodeNames:     nodeNames,
	}
}

func (e *GraphDebugExtension) OnNodeError(nodeID, message string) {
	e.logger.Error("node error", "node", nodeID, "message", message, "topology", e.renderFrom(nodeID))
}

func (e *GraphDebugExtension) OnCriticalError(message string) {
	e.logger.Error("critical error", "message", message)
}

// renderFrom builds an ASCII tree rooted at nodeID, one level of outgoing
// wires deep, using treedrawer the way the teacher renders dependency
// subtrees.
func (e *GraphDebugExtension) renderFrom(nodeID string) string {
	if e.adjacency == nil {
		return "(no topology indexed)"
	}
	root := tree.NewTree(tree.NodeString(e.label(nodeID)))
	wires := e.adjacency.OutgoingFrom(nodeID)
	sort.Slice(wires, func(i, j int) bool { return wires[i].ToNode < wires[j].ToNode })
	for _, w := range wires {
		root.AddChild(tree.NodeString(fmt.Sprintf("%s (%s->%s)", e.label(w.ToNode), w.FromPort, w.ToPort)))
	}
	return root.String()
}

func (e *GraphDebugExtension) label(nodeID string) string {
	if name, ok := e.nodeNames[nodeID]; ok {
		return name
	}
	return nodeID
}
