package nodes

import (
	synapse "github.com/synapse-engine/synapse"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// WhileContract fires Body while its Condition input is true, then fires
// the completion port Flow. The loop-back wire from the body's tail node to
// While's own Condition input is ordinary graph wiring; the node itself only
// ever looks at the Condition value it was given on this pulse.
type WhileContract struct{}

func (WhileContract) DefineSchema(n *synapse.Node) {
	n.Flags.IsProvider = true
	n.InputSchema["Condition"] = schema.Boolean
	n.OutputSchema["Body"] = schema.Flow
	n.OutputSchema["Flow"] = schema.Flow
}

func (WhileContract) RegisterHandlers(n *synapse.Node) {
	n.Handlers["Exec"] = func(ctx *synapse.HandlerCtx) error {
		cond, _ := ctx.Input("Condition").(bool)
		if cond {
			ctx.SetActivePorts([]string{"Body"})
		} else {
			ctx.SetActivePorts([]string{"Flow"})
		}
		return nil
	}
}

func NewWhile(id string) *synapse.Node {
	n := synapse.NewNode(id, "While", "1.0.0")
	c := WhileContract{}
	c.DefineSchema(n)
	c.RegisterHandlers(n)
	return n
}
