package synapse

import "github.com/synapse-engine/synapse/pkg/schema"

// Wire is an edge from one node's output port to another node's input port
// (spec.md §3 "Wire"). It carries either a control pulse, when FromPort is a
// flow-class port on the source node's output schema, or a data value
// cached on the bridge under the output's key and read on pulse arrival.
type Wire struct {
	FromNode string
	FromPort string
	ToNode   string
	ToPort   string

	// slots for cached bridge keys of both endpoints (spec.md §3 "plus
	// cached bridge-keys for both endpoints"). Nothing in this package
	// populates or reads them; input gathering resolves keys through the
	// Port Registry on each read.
	fromKey string
	toKey   string
}

// wireDataType resolves the DataType of the wire by inspecting the source
// node's declared output schema.
func wireDataType(w *Wire, nodes map[string]*Node) schema.DataType {
	n, ok := nodes[w.FromNode]
	if !ok {
		return schema.Any
	}
	if dt, ok := n.OutputSchema[w.FromPort]; ok {
		return dt
	}
	return schema.Any
}
