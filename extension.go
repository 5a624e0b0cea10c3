package synapse

// Extension hooks into the engine's pulse lifecycle (spec.md §6 "Trace
// protocol" lists the event surface; extensions/trace.go, graphdebug.go,
// and metrics.go are the concrete implementations).
//
// Adapted from the teacher's extension.go (Extension interface +
// BaseExtension default implementations, hooked to Resolve/Update/Flow
// operations); the operation set is rewired here to the pulse-dispatch and
// pulse-routing events this engine actually emits, since there is no
// reactive-resolution operation in a pulse scheduler.
type Extension interface {
	Name() string

	OnNodeStart(nodeID string)
	OnNodeStop(nodeID string)
	OnFlow(fromID, fromPort, toID, toPort string, priority int, delayMs int)
	OnNodeWaitingStart(nodeID string, ms int)
	OnNodeWaitingPulse(nodeID string, ms int)
	OnWireless(tag string)
	OnServiceStart(nodeID string)
	OnNodeError(nodeID, message string)
	OnSubgraphActivity(parentID string)
	OnSubgraphFinished(parentID string)
	OnHotReload(path string)
	OnCriticalError(message string)
}

// BaseExtension provides no-op defaults so a concrete extension only
// implements the hooks it cares about.
type BaseExtension struct {
	ExtensionName string
}

func (e *BaseExtension) Name() string                                                      { return e.ExtensionName }
func (e *BaseExtension) OnNodeStart(nodeID string)                                          {}
func (e *BaseExtension) OnNodeStop(nodeID string)                                           {}
func (e *BaseExtension) OnFlow(fromID, fromPort, toID, toPort string, priority, delayMs int) {}
func (e *BaseExtension) OnNodeWaitingStart(nodeID string, ms int)                            {}
func (e *BaseExtension) OnNodeWaitingPulse(nodeID string, ms int)                            {}
func (e *BaseExtension) OnWireless(tag string)                                              {}
func (e *BaseExtension) OnServiceStart(nodeID string)                                       {}
func (e *BaseExtension) OnNodeError(nodeID, message string)                                 {}
func (e *BaseExtension) OnSubgraphActivity(parentID string)                                 {}
func (e *BaseExtension) OnSubgraphFinished(parentID string)                                 {}
func (e *BaseExtension) OnHotReload(path string)                                            {}
func (e *BaseExtension) OnCriticalError(message string)                                     {}

// ExtensionSet fans every hook out to all registered extensions.
type ExtensionSet struct {
	extensions []Extension
}

func NewExtensionSet(extensions ...Extension) *ExtensionSet {
	return &ExtensionSet{extensions: extensions}
}

func (s *ExtensionSet) NodeStart(id string) {
	for _, e := range s.extensions {
		e.OnNodeStart(id)
	}
}

func (s *ExtensionSet) NodeStop(id string) {
	for _, e := range s.extensions {
		e.OnNodeStop(id)
	}
}

func (s *ExtensionSet) Flow(fromID, fromPort, toID, toPort string, priority, delayMs int) {
	for _, e := range s.extensions {
		e.OnFlow(fromID, fromPort, toID, toPort, priority, delayMs)
	}
}

func (s *ExtensionSet) NodeWaitingStart(id string, ms int) {
	for _, e := range s.extensions {
		e.OnNodeWaitingStart(id, ms)
	}
}

func (s *ExtensionSet) NodeWaitingPulse(id string, ms int) {
	for _, e := range s.extensions {
		e.OnNodeWaitingPulse(id, ms)
	}
}

func (s *ExtensionSet) Wireless(tag string) {
	for _, e := range s.extensions {
		e.OnWireless(tag)
	}
}

func (s *ExtensionSet) ServiceStart(id string) {
	for _, e := range s.extensions {
		e.OnServiceStart(id)
	}
}

func (s *ExtensionSet) NodeError(id, message string) {
	for _, e := range s.extensions {
		e.OnNodeError(id, message)
	}
}

func (s *ExtensionSet) SubgraphActivity(parentID string) {
	for _, e := range s.extensions {
		e.OnSubgraphActivity(parentID)
	}
}

func (s *ExtensionSet) SubgraphFinished(parentID string) {
	for _, e := range s.extensions {
		e.OnSubgraphFinished(parentID)
	}
}

func (s *ExtensionSet) HotReload(path string) {
	for _, e := range s.extensions {
		e.OnHotReload(path)
	}
}

func (s *ExtensionSet) CriticalError(message string) {
	for _, e := range s.extensions {
		e.OnCriticalError(message)
	}
}
