package nodes

import (
	"log/slog"

	synapse "github.com/synapse-engine/synapse"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// DebugContract logs its Message input through the structured logger, then
// fires Flow.
type DebugContract struct {
	Log *slog.Logger
}

func (DebugContract) DefineSchema(n *synapse.Node) {
	n.InputSchema["Message"] = schema.String
	n.OutputSchema["Flow"] = schema.Flow
}

func (c DebugContract) RegisterHandlers(n *synapse.Node) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	n.Handlers["Exec"] = func(ctx *synapse.HandlerCtx) error {
		msg, _ := ctx.Input("Message").(string)
		log.Info("debug", "node", ctx.NodeID, "message", msg)
		return nil
	}
}

func NewDebug(id string, log *slog.Logger) *synapse.Node {
	n := synapse.NewNode(id, "Debug", "1.0.0")
	c := DebugContract{Log: log}
	c.DefineSchema(n)
	c.RegisterHandlers(n)
	return n
}
