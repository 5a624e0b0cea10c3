package synapse

import "context"

// HandlerCtx is what a node's Handler receives: its gathered inputs, the
// current scope stack, and accessors for publishing outputs and branch
// hints back onto the bridge (spec.md §4.7 "set_output(port, value)...,
// may signal branch selection by writing ActivePorts/Condition").
type HandlerCtx struct {
	ctx context.Context

	NodeID      string
	TriggerPort string
	StackTrace  []string // context_stack at dispatch time

	Inputs map[string]any
	bridge *Bridge
	node   *Node
}

func (h *HandlerCtx) Context() context.Context { return h.ctx }

// Input returns a gathered input value, or nil if the port has no value.
func (h *HandlerCtx) Input(port string) any {
	return h.Inputs[port]
}

// SetOutput publishes value under the legacy "{node_id}_{port}" bridge key
// (LegacyKey), not under the Port Registry's output identifier; input
// gathering falls back to that key when the identifier holds no value.
func (h *HandlerCtx) SetOutput(port string, value any) {
	_ = h.bridge.Set(LegacyKey(h.NodeID, port), value, h.NodeID)
}

// SetActivePorts writes the node's explicit branch-selection hint
// (spec.md §4.3 "ActivePorts").
func (h *HandlerCtx) SetActivePorts(ports []string) {
	anyPorts := make([]any, len(ports))
	for i, p := range ports {
		anyPorts[i] = p
	}
	_ = h.bridge.Set(LegacyKey(h.NodeID, "ActivePorts"), anyPorts, h.NodeID)
}

// SetCondition writes the node's true/false branch hint (spec.md §4.3
// "Condition").
func (h *HandlerCtx) SetCondition(value bool) {
	_ = h.bridge.Set(LegacyKey(h.NodeID, "Condition"), value, h.NodeID)
}

func (h *HandlerCtx) reset(ctx context.Context, node *Node, bridge *Bridge, trigger string, stack []string, inputs map[string]any) {
	h.ctx = ctx
	h.node = node
	h.NodeID = node.ID
	h.bridge = bridge
	h.TriggerPort = trigger
	h.StackTrace = stack
	h.Inputs = inputs
}
