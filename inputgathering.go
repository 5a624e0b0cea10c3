package synapse

import (
	"regexp"
	"strings"
	"time"

	"github.com/synapse-engine/synapse/pkg/props"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// dateExpressionPattern matches strings of the form "#...#" that the
// engine evaluates as date expressions during input gathering
// (spec.md §4.6.1).
var dateExpressionPattern = regexp.MustCompile(`^#(.+)#$`)

// GatherInputs implements spec.md §4.6.1: reads each incoming non-flow
// wire's source value off the bridge, falls back to the source node's
// aliased property, then to declared-but-unwired input ports via the
// parent bridge or this node's own property bag, and finally soft-casts
// every value to its declared port type.
func GatherInputs(node *Node, incoming []*Wire, nodes map[string]*Node, bridge *Bridge, parentBridge *Bridge, registry *PortRegistry) (map[string]any, error) {
	gathered := make(map[string]any)

	for _, w := range incoming {
		if dt, ok := node.InputSchema[w.ToPort]; ok && dt.IsFlowClass() {
			continue
		}
		if containsBlockedKeyword(w.ToPort) {
			continue
		}

		value, ok := readWireValue(w, nodes, bridge, registry)
		if !ok {
			if srcNode, exists := nodes[w.FromNode]; exists {
				if v, found := props.Lookup(srcNode.Properties, w.FromPort); found {
					value, ok = v, true
				}
			}
		}
		if ok {
			gathered[w.ToPort] = value
		}
	}

	for port := range node.InputSchema {
		if _, present := gathered[port]; present {
			continue
		}
		if parentBridge != nil {
			if v := parentBridge.Get(LegacyKey(node.ID, port), nil); v != nil {
				gathered[port] = v
				continue
			}
		}
		if v, ok := props.Lookup(node.Properties, port); ok {
			gathered[port] = v
		}
	}

	result := make(map[string]any, len(gathered))
	for port, value := range gathered {
		target, declared := node.InputSchema[port]
		if !declared {
			result[port] = value
			continue
		}
		result[port] = softCastValue(value, target)
	}
	return result, nil
}

func readWireValue(w *Wire, nodes map[string]*Node, bridge *Bridge, registry *PortRegistry) (any, bool) {
	if id, ok := registry.GetIdentifier(w.FromNode, w.FromPort, DirectionOutput); ok {
		if v := bridge.Get(id, nil); v != nil {
			return v, true
		}
	}
	legacy := LegacyKey(w.FromNode, w.FromPort)
	if v := bridge.Get(legacy, nil); v != nil {
		return v, true
	}
	return nil, false
}

// softCastValue applies spec.md §4.6.1's date-expression special case on
// top of the general soft-cast in pkg/schema.
func softCastValue(value any, target schema.DataType) any {
	if s, ok := value.(string); ok {
		if m := dateExpressionPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
			if evaluated, ok := evaluateDateExpression(m[1]); ok {
				value = evaluated
			}
		}
	}
	cast, _ := schema.Cast(value, target)
	return cast
}

// evaluateDateExpression handles the small set of relative-date tokens
// used by graph authors inside "#...#" markers (e.g. "#now#", "#today#").
// Anything unrecognized is left for the caller to pass through unchanged.
func evaluateDateExpression(expr string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case "now":
		return time.Now().Format(time.RFC3339), true
	case "today":
		return time.Now().Format("2006-01-02"), true
	default:
		return "", false
	}
}
