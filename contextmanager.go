package synapse

// catchPorts is the set of wire origin ports that count as a catch handler
// (spec.md §4.4).
var catchPorts = map[string]bool{"Catch": true, "Error Flow": true}

// ContextManager maintains the provider-scope stack across pulses and
// routes uncaught errors to the nearest enclosing catch wire
// (spec.md §4.4).
//
// Grounded on the teacher's context.go (ExecutionContext, a stack of scope
// frames threaded through Resolve calls); generalized from a single
// linear dependency-resolution stack to the pulse scope_stack, and from a
// panic-recovery callback to the explicit handle_error walk spec.md
// describes.
type ContextManager struct {
	nodes map[string]*Node
}

func NewContextManager(nodes map[string]*Node) *ContextManager {
	return &ContextManager{nodes: nodes}
}

// UpdateStack pushes the node's id onto stack if it is a provider firing
// its scope-entry port, pops if the trigger is the provider's close port,
// otherwise returns stack unchanged.
func (cm *ContextManager) UpdateStack(node *Node, stack []string, triggerPort string) []string {
	if node == nil {
		return stack
	}
	if node.Flags.IsProvider && isProviderEntryPort(node, triggerPort) {
		return append(append([]string(nil), stack...), node.ID)
	}
	if isProviderClosePort(triggerPort) && len(stack) > 0 && stack[len(stack)-1] == node.ID {
		return stack[:len(stack)-1]
	}
	return stack
}

func isProviderEntryPort(node *Node, port string) bool {
	dt, ok := node.OutputSchema[port]
	return ok && dt.IsFlowClass() && port != "Provider Flow"
}

func isProviderClosePort(port string) bool {
	return port == "Close" || port == "Provider Close"
}

// CatchTarget is the result of walking the stack for an enclosing catch
// handler.
type CatchTarget struct {
	CatchNodeID  string
	ParentStack  []string
	CatchWires   []*Wire
}

// HandleError walks stack from innermost outward looking for an enclosing
// node with a catch wire (spec.md §4.4). Returns (target, true) on a hit,
// or (CatchTarget{}, false) if no catch handler exists.
func (cm *ContextManager) HandleError(failingNode string, stack []string, wires []*Wire) (CatchTarget, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		var catchWires []*Wire
		for _, w := range wires {
			if w.FromNode == frame && catchPorts[w.FromPort] {
				catchWires = append(catchWires, w)
			}
		}
		if len(catchWires) > 0 {
			return CatchTarget{
				CatchNodeID: frame,
				ParentStack: append([]string(nil), stack[:i+1]...),
				CatchWires:  catchWires,
			}, true
		}
	}
	return CatchTarget{}, false
}

// errorMapping maps runtime error-kind names to stable numeric codes for
// publishing to the bridge's last-error keys (spec.md §4.4).
var errorMapping = map[errorCode]int{
	errCodeUnknown:         0,
	errCodeValidation:      1,
	errCodeRuntime:         2,
	errCodePanic:           3,
	errCodeLockTimeout:     4,
	errCodeMissingProvider: 5,
}

func errorNumericCode(err error) int {
	if code, ok := errorMapping[classifyError(err)]; ok {
		return code
	}
	return 0
}
