// Package nodes holds the sample node library (spec.md §4.7 EXPANSION): a
// handful of concrete node contracts sufficient to exercise and test the
// engine end-to-end, not a general-purpose node catalogue.
package nodes

import (
	synapse "github.com/synapse-engine/synapse"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// StartContract is the provider-less entry point of a graph: a single
// Flow output port, no inputs, no handler logic of its own.
type StartContract struct{}

func (StartContract) DefineSchema(n *synapse.Node) {
	n.OutputSchema["Flow"] = schema.Flow
}

func (StartContract) RegisterHandlers(n *synapse.Node) {
	n.Handlers["Exec"] = func(ctx *synapse.HandlerCtx) error {
		return nil
	}
}

// NewStart builds a ready-to-register Start node.
func NewStart(id string) *synapse.Node {
	n := synapse.NewNode(id, "Start", "1.0.0")
	c := StartContract{}
	c.DefineSchema(n)
	c.RegisterHandlers(n)
	return n
}
