package synapse

import (
	"encoding/json"
	"fmt"
	"os"
)

// GraphFileNode is one node object in the persisted graph file
// (spec.md §6 "Graph file"). UI-only fields (position, colour, label) are
// not decoded.
type GraphFileNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// GraphFileWire is one wire object. The optional *_uuid fields are
// engine-local and regenerated on load, so they are ignored here entirely.
type GraphFileWire struct {
	FromNode string `json:"from_node"`
	FromPort string `json:"from_port"`
	ToNode   string `json:"to_node"`
	ToPort   string `json:"to_port"`
}

// GraphFile is the minimum persisted topology schema (spec.md §6).
type GraphFile struct {
	Nodes              []GraphFileNode `json:"nodes"`
	Wires              []GraphFileWire `json:"wires"`
	ProjectName        string          `json:"project_name,omitempty"`
	ProjectCategory    string          `json:"project_category,omitempty"`
	ProjectDescription string          `json:"project_description,omitempty"`
}

// LoadGraphFile reads and parses a graph file from disk.
func LoadGraphFile(path string) (*GraphFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("synapse: read graph file: %w", err)
	}
	var gf GraphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("synapse: parse graph file: %w", err)
	}
	return &gf, nil
}

// GraphDiff is the result of comparing two graph-file snapshots for hot
// reload (spec.md §4.6.4): which node ids were added and which disappeared.
type GraphDiff struct {
	Added   []string
	Removed []string
}

// DiffNodes compares the node-id sets of two graph files.
func DiffNodes(previous, next *GraphFile) GraphDiff {
	prevIDs := make(map[string]bool, len(previous.Nodes))
	for _, n := range previous.Nodes {
		prevIDs[n.ID] = true
	}
	nextIDs := make(map[string]bool, len(next.Nodes))
	for _, n := range next.Nodes {
		nextIDs[n.ID] = true
	}

	var diff GraphDiff
	for id := range nextIDs {
		if !prevIDs[id] {
			diff.Added = append(diff.Added, id)
		}
	}
	for id := range prevIDs {
		if !nextIDs[id] {
			diff.Removed = append(diff.Removed, id)
		}
	}
	return diff
}

// WireAdjacency is the adjacency-list index over a graph's wires, built
// fresh on every hot-reload (spec.md §4.6.4 "re-initialise any data
// structures that indexed by wire").
//
// Grounded on the teacher's graph.go ReactiveGraph (map-of-slices adjacency
// with a RWMutex), narrowed from the teacher's executor-dependency graph to
// two plain indexes by node id: wires leaving a node (output routing) and
// wires arriving at a node (input gathering).
type WireAdjacency struct {
	outgoing map[string][]*Wire
	incoming map[string][]*Wire
}

func BuildWireAdjacency(wires []*Wire) *WireAdjacency {
	adj := &WireAdjacency{
		outgoing: make(map[string][]*Wire, len(wires)),
		incoming: make(map[string][]*Wire, len(wires)),
	}
	for _, w := range wires {
		adj.outgoing[w.FromNode] = append(adj.outgoing[w.FromNode], w)
		adj.incoming[w.ToNode] = append(adj.incoming[w.ToNode], w)
	}
	return adj
}

func (a *WireAdjacency) OutgoingFrom(nodeID string) []*Wire {
	return a.outgoing[nodeID]
}

func (a *WireAdjacency) IncomingTo(nodeID string) []*Wire {
	return a.incoming[nodeID]
}
