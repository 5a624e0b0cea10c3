package nodes

import (
	"context"
	"log/slog"

	synapse "github.com/synapse-engine/synapse"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// ProviderContract is a minimal provider node: it opens a scope over
// whatever is wired to Provider Flow, and fires Flow once every pulse that
// entered that scope has drained (spec.md §4.6 step 10, §4.7).
type ProviderContract struct {
	Log *slog.Logger
}

func (ProviderContract) DefineSchema(n *synapse.Node) {
	n.Flags.IsProvider = true
	n.OutputSchema["Provider Flow"] = schema.ProviderFlow
	n.OutputSchema["Flow"] = schema.Flow
}

func (c ProviderContract) RegisterHandlers(n *synapse.Node) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	n.Handlers["Exec"] = func(ctx *synapse.HandlerCtx) error {
		ctx.SetActivePorts([]string{"Provider Flow"})
		return nil
	}
}

// NewProvider builds a provider node with id-scoped register/cleanup hooks.
func NewProvider(id string, log *slog.Logger) *synapse.Node {
	n := synapse.NewNode(id, "Provider", "1.0.0")
	c := ProviderContract{Log: log}
	c.DefineSchema(n)
	c.RegisterHandlers(n)

	n.RegisterProviderContext = func() string { return "provider:" + id }
	n.CleanupProviderContext = func(ctx context.Context) error {
		if log != nil {
			log.Debug("provider scope closed", "node", id)
		}
		return nil
	}
	return n
}
