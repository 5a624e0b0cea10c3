package nodes

import (
	synapse "github.com/synapse-engine/synapse"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// DivideContract is a native node computing Numerator/Denominator, routing
// to Flow on success or Error Flow on division by zero (spec.md §4.7,
// the validation-failure-as-output-port path described in spec §7).
type DivideContract struct{}

func (DivideContract) DefineSchema(n *synapse.Node) {
	n.Flags.IsNative = true
	n.InputSchema["Numerator"] = schema.Number
	n.InputSchema["Denominator"] = schema.Number
	n.OutputSchema["Result"] = schema.Number
	n.OutputSchema["Flow"] = schema.Flow
	n.OutputSchema["Error Flow"] = schema.Flow
}

func (DivideContract) RegisterHandlers(n *synapse.Node) {
	n.Handlers["Exec"] = func(ctx *synapse.HandlerCtx) error {
		num, _ := ctx.Input("Numerator").(float64)
		den, _ := ctx.Input("Denominator").(float64)
		if den == 0 {
			ctx.SetActivePorts([]string{"Error Flow"})
			return nil
		}
		ctx.SetOutput("Result", num/den)
		ctx.SetActivePorts([]string{"Flow"})
		return nil
	}
}

func NewDivide(id string) *synapse.Node {
	n := synapse.NewNode(id, "Divide", "1.0.0")
	c := DivideContract{}
	c.DefineSchema(n)
	c.RegisterHandlers(n)
	return n
}
