package nodes

import (
	synapse "github.com/synapse-engine/synapse"
)

// ReturnContract is the canonical return node: it declares no fixed input
// ports (spec.md §4.7 "allow_dynamic_inputs") since the engine's own step
// handling gathers and deposits every wired-in value into the scope's
// lockbox before dispatch ever reaches this node's handler.
type ReturnContract struct{}

func (ReturnContract) DefineSchema(n *synapse.Node) {
	n.Flags.AllowDynamicInputs = true
}

func (ReturnContract) RegisterHandlers(n *synapse.Node) {
	n.Handlers["Exec"] = func(ctx *synapse.HandlerCtx) error {
		return nil
	}
}

func NewReturn(id string) *synapse.Node {
	n := synapse.NewNode(id, "Return", "1.0.0")
	c := ReturnContract{}
	c.DefineSchema(n)
	c.RegisterHandlers(n)
	return n
}
