// Package extensions holds the engine's built-in Extension
// implementations: trace, graph-debug, and metrics.
package extensions

import (
	"fmt"
	"io"
	"os"

	synapse "github.com/synapse-engine/synapse"
)

// TraceExtension emits the exact single-line stdout protocol of
// spec.md §6 ("Trace protocol"). Line formats are fixed by that contract
// and must not be altered — UI front-ends parse them directly.
//
// Grounded on the teacher's extensions/logging.go (BaseExtension embedding
// + Printf-based event lines); the event set is rewired from
// resolve/update operations to the pulse-lifecycle events this engine
// emits.
type TraceExtension struct {
	synapse.BaseExtension
	out io.Writer
}

func NewTraceExtension() *TraceExtension {
	return &TraceExtension{
		BaseExtension: synapse.BaseExtension{ExtensionName: "trace"},
		out:           os.Stdout,
	}
}

func (e *TraceExtension) OnNodeStart(nodeID string) {
	fmt.Fprintf(e.out, "[NODE_START] %s\n", nodeID)
}

func (e *TraceExtension) OnNodeStop(nodeID string) {
	fmt.Fprintf(e.out, "[NODE_STOP] %s\n", nodeID)
}

func (e *TraceExtension) OnFlow(fromID, fromPort, toID, toPort string, priority, delayMs int) {
	fmt.Fprintf(e.out, "[FLOW] %s:%s -> %s:%s [P:%d] [D:%dms]\n", fromID, fromPort, toID, toPort, priority, delayMs)
}

func (e *TraceExtension) OnNodeWaitingStart(nodeID string, ms int) {
	fmt.Fprintf(e.out, "[NODE_WAITING_START] %s | %d\n", nodeID, ms)
}

func (e *TraceExtension) OnNodeWaitingPulse(nodeID string, ms int) {
	fmt.Fprintf(e.out, "[NODE_WAITING_PULSE] %s | %d\n", nodeID, ms)
}

func (e *TraceExtension) OnWireless(tag string) {
	fmt.Fprintf(e.out, "[WIRELESS] Broadcasting tag: %s\n", tag)
}

func (e *TraceExtension) OnServiceStart(nodeID string) {
	fmt.Fprintf(e.out, "[SERVICE_START] %s\n", nodeID)
}

func (e *TraceExtension) OnNodeError(nodeID, message string) {
	fmt.Fprintf(e.out, "[NODE_ERROR] %s | %s\n", nodeID, message)
}

func (e *TraceExtension) OnSubgraphActivity(parentID string) {
	fmt.Fprintf(e.out, "[SYNP_SUBGRAPH_ACTIVITY] %s\n", parentID)
}

func (e *TraceExtension) OnSubgraphFinished(parentID string) {
	fmt.Fprintf(e.out, "[SYNP_SUBGRAPH_FINISHED] %s\n", parentID)
}

func (e *TraceExtension) OnHotReload(path string) {
	fmt.Fprintf(e.out, "[HOT_RELOAD] %s\n", path)
}

func (e *TraceExtension) OnCriticalError(message string) {
	fmt.Fprintf(e.out, "[CRITICAL ERROR] %s\n", message)
}
