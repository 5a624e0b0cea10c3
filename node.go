package synapse

import (
	"context"

	"github.com/synapse-engine/synapse/pkg/props"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// Handler is a node's per-input-port body (spec.md §4.7 "register_handlers()
// binding one handler per input flow port"). It reads its inputs and the
// current scope stack from ctx, and publishes outputs via ctx.SetOutput /
// ctx.SetActivePorts / ctx.SetCondition.
type Handler func(ctx *HandlerCtx) error

// NodeFlags is the small flags record from spec.md §3.
type NodeFlags struct {
	IsNative            bool
	IsAsync             bool
	IsService           bool
	IsProvider          bool
	AllowDynamicInputs  bool
	AllowDynamicOutputs bool
	RequiredProviders   []string
}

// Node is a unit of work with a unique identifier, typed input/output
// schemas, one handler per input flow port, a property bag of per-port
// defaults, and the flags record (spec.md §3 "Node").
type Node struct {
	ID      string
	Name    string
	Version string

	InputSchema  map[string]schema.DataType
	OutputSchema map[string]schema.DataType
	Handlers     map[string]Handler
	Properties   props.Bag
	Flags        NodeFlags

	// RegisterProviderContext returns this node's provider-type tag when it
	// opens a scope (spec.md §4.7). Nil for non-provider nodes.
	RegisterProviderContext func() string
	// CleanupProviderContext runs when the provider's scope is torn down,
	// either normally or via error unwinding (spec.md §3 invariants, §7),
	// unless the provider was declared singleton (cleanupSingleton).
	CleanupProviderContext func(ctx context.Context) error
	CleanupSingleton       bool

	// Terminate runs on hot-reload removal or engine shutdown (spec.md
	// §4.6.4, §4.6 "stop all registered services").
	Terminate func()

	// LifecycleOnCreate/OnDestroy are optional lifecycle hooks carried on
	// the node (spec.md §4.7); the engine does not invoke them.
	LifecycleOnCreate  func()
	LifecycleOnDestroy func()
}

// NewNode builds a Node with empty schemas/handlers/properties ready for a
// node contract implementation to populate via DefineSchema/RegisterHandlers.
func NewNode(id, name, version string) *Node {
	return &Node{
		ID:           id,
		Name:         name,
		Version:      version,
		InputSchema:  make(map[string]schema.DataType),
		OutputSchema: make(map[string]schema.DataType),
		Handlers:     make(map[string]Handler),
		Properties:   make(props.Bag),
	}
}

// Contract is what every concrete node type implements (spec.md §4.7). Each
// node constructor in package nodes calls DefineSchema and RegisterHandlers
// once, against a fresh *Node from NewNode; the engine does not call them —
// this mirrors the teacher's Provide/Derive
// pattern of a factory populating a long-lived struct, generalized from a
// single return value to a full schema+handler table since a node here has
// many named ports instead of one typed output.
type Contract interface {
	DefineSchema(n *Node)
	RegisterHandlers(n *Node)
}
