package synapse

import (
	"container/heap"
	"sync"
	"time"

	"github.com/synapse-engine/synapse/pkg/props"
)

// legacyCompletionPorts is the legacy completion port set from spec.md
// §4.3 step 3.
var legacyCompletionPorts = map[string]bool{
	"Flow": true, "True": true, "False": true, "Out": true, "Exec": true,
	"Then": true, "Else": true, "Loop": true, "Try": true, "Catch": true,
	"Finished Flow": true, "Done": true, "Success": true, "Failure": true,
}

// Pulse is the scheduler's unit of work (spec.md §3 "Pulse").
type Pulse struct {
	NodeID      string
	ScopeStack  []string
	TriggerPort string
	Priority    int
	ReadyTime   time.Time

	seq int64
}

// pulseHeap orders the main queue by (-priority, arrival_sequence):
// highest priority first, FIFO within a priority tier.
type pulseHeap []*Pulse

func (h pulseHeap) Len() int { return len(h) }
func (h pulseHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h pulseHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pulseHeap) Push(x any)        { *h = append(*h, x.(*Pulse)) }
func (h *pulseHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// delayedHeap orders the delayed queue by ready_time.
type delayedHeap []*Pulse

func (h delayedHeap) Len() int            { return len(h) }
func (h delayedHeap) Less(i, j int) bool  { return h[i].ReadyTime.Before(h[j].ReadyTime) }
func (h delayedHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *delayedHeap) Push(x any)         { *h = append(*h, x.(*Pulse)) }
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// RouteOptions narrows or overrides an output-resolution pass
// (spec.md §4.3).
type RouteOptions struct {
	PortInclude       map[string]bool
	PortExclude       map[string]bool
	ForceTrigger      bool
	StackOverrideMap  map[string][]string
	DelayMsOverride   int
	PriorityOverride  *int
}

// FlowController picks what runs next and turns a just-finished node's
// outputs into new pulses (spec.md §4.3).
//
// The priority/delayed queues are plain container/heap implementations: no
// repo in the retrieval pack reaches for a third-party priority-queue
// library for this kind of in-process scheduling concern, so this stays on
// the standard library by the same idiom the corpus shows elsewhere
// (worker pools, adjacency lists) for purely-local data structures.
type FlowController struct {
	mu      sync.Mutex
	main    pulseHeap
	delayed delayedHeap
	seq     int64
}

func NewFlowController() *FlowController {
	fc := &FlowController{}
	heap.Init(&fc.main)
	heap.Init(&fc.delayed)
	return fc
}

// Push enqueues a pulse; a nonzero delayMs routes it to the delayed queue.
func (fc *FlowController) Push(nodeID string, stack []string, triggerPort string, priority int, delayMs int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.seq++
	p := &Pulse{
		NodeID:      nodeID,
		ScopeStack:  append([]string(nil), stack...),
		TriggerPort: triggerPort,
		Priority:    priority,
		seq:         fc.seq,
	}
	if delayMs > 0 {
		p.ReadyTime = time.Now().Add(time.Duration(delayMs) * time.Millisecond)
		heap.Push(&fc.delayed, p)
		return
	}
	p.ReadyTime = time.Now()
	heap.Push(&fc.main, p)
}

// HasNext moves ready items from the delayed queue to the main queue and
// reports whether either is non-empty.
func (fc *FlowController) HasNext() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.promoteReadyLocked()
	return fc.main.Len() > 0 || fc.delayed.Len() > 0
}

func (fc *FlowController) promoteReadyLocked() {
	now := time.Now()
	for fc.delayed.Len() > 0 && !fc.delayed[0].ReadyTime.After(now) {
		p := heap.Pop(&fc.delayed).(*Pulse)
		heap.Push(&fc.main, p)
	}
}

// Pop returns the next eligible pulse, or (nil, false) if the main queue is
// empty (whether or not the delayed queue still holds future items).
func (fc *FlowController) Pop() (*Pulse, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.promoteReadyLocked()
	if fc.main.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&fc.main).(*Pulse), true
}

// OnlyDelayedRemain reports whether the main queue is drained but the
// delayed queue still holds future work.
func (fc *FlowController) OnlyDelayedRemain() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.main.Len() == 0 && fc.delayed.Len() > 0
}

// RouteOutputs implements the output-resolution algorithm of spec.md §4.3:
// reads ActivePorts/Condition hints from the bridge, decides which outgoing
// wires fire, and returns the resulting pulses without pushing them (the
// engine decides whether to push to the main thread or spawn a branch).
func (fc *FlowController) RouteOutputs(nodeID string, wires []*Wire, bridge *Bridge, stack []string, priority int, delayMs int, opts RouteOptions) []*Pulse {
	var activePorts []string
	if raw := bridge.Get(LegacyKey(nodeID, "ActivePorts"), nil); raw != nil {
		if list, ok := raw.([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					activePorts = append(activePorts, s)
				}
			}
		}
	}
	var condition *bool
	if raw := bridge.Get(LegacyKey(nodeID, "Condition"), nil); raw != nil {
		if b, ok := raw.(bool); ok {
			condition = &b
		}
	}

	var pulses []*Pulse
	for _, w := range wires {
		if w.FromNode != nodeID {
			continue
		}
		if opts.PortInclude != nil && !opts.PortInclude[w.FromPort] {
			continue
		}
		if opts.PortExclude != nil && opts.PortExclude[w.FromPort] {
			continue
		}

		fires := opts.ForceTrigger
		if !fires {
			switch {
			case activePorts != nil:
				fires = containsStr(activePorts, w.FromPort)
			case condition != nil && (w.FromPort == "True" || w.FromPort == "False"):
				fires = (w.FromPort == "True") == *condition
			default:
				fires = legacyCompletionPorts[w.FromPort]
			}
		}
		if !fires {
			continue
		}

		pulseStack := stack
		if override, ok := opts.StackOverrideMap[w.FromPort]; ok {
			pulseStack = override
		}
		effDelay := delayMs
		if opts.DelayMsOverride > 0 {
			effDelay = opts.DelayMsOverride
		}
		effPriority := priority
		if opts.PriorityOverride != nil {
			effPriority = *opts.PriorityOverride
		}

		fc.mu.Lock()
		fc.seq++
		seq := fc.seq
		fc.mu.Unlock()

		p := &Pulse{
			NodeID:      w.ToNode,
			ScopeStack:  append([]string(nil), pulseStack...),
			TriggerPort: w.ToPort,
			Priority:    effPriority,
			seq:         seq,
		}
		if effDelay > 0 {
			p.ReadyTime = time.Now().Add(time.Duration(effDelay) * time.Millisecond)
		} else {
			p.ReadyTime = time.Now()
		}
		pulses = append(pulses, p)
	}
	return pulses
}

// RouteWireless pushes a pulse at port "Wireless" to every node whose
// `tag` property matches (spec.md §4.3 "broadcast sender").
func (fc *FlowController) RouteWireless(tag string, nodes map[string]*Node, stack []string) []*Pulse {
	var out []*Pulse
	for id, n := range nodes {
		if v, ok := props.Lookup(n.Properties, "tag"); ok {
			if s, ok := v.(string); ok && s == tag {
				fc.Push(id, stack, "Wireless", 0, 0)
				out = append(out, &Pulse{NodeID: id, ScopeStack: stack, TriggerPort: "Wireless"})
			}
		}
	}
	return out
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
