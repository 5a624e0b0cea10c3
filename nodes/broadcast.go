package nodes

import (
	synapse "github.com/synapse-engine/synapse"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// BroadcastContract is the sender half of the wireless mechanism
// (spec.md §4.3 "route_wireless"): the engine recognizes this node by name
// and, after its handler runs, pushes a pulse at port "Wireless" to every
// node whose `tag` property matches its Tag input.
type BroadcastContract struct{}

func (BroadcastContract) DefineSchema(n *synapse.Node) {
	n.InputSchema["Tag"] = schema.String
	n.OutputSchema["Flow"] = schema.Flow
}

func (BroadcastContract) RegisterHandlers(n *synapse.Node) {
	n.Handlers["Exec"] = func(ctx *synapse.HandlerCtx) error {
		return nil
	}
}

func NewBroadcast(id string) *synapse.Node {
	n := synapse.NewNode(id, "Broadcast", "1.0.0")
	c := BroadcastContract{}
	c.DefineSchema(n)
	c.RegisterHandlers(n)
	return n
}
