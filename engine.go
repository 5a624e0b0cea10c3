package synapse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrStopped is returned by Run when the main loop exited because a stop
// signal was observed (bridge KeyStop, the parent bridge's KeyStop, or the
// configured stop-file) rather than because the pulse queue and all scopes
// drained normally (spec.md §6 "nonzero on explicit stop").
var ErrStopped = errors.New("synapse: run stopped via external signal")

// pendingTermination is a deferred completion-flow description recorded
// for a provider scope that has at least one live sub-pulse
// (spec.md §4.6 step 13).
type pendingTermination struct {
	stack    []string
	priority int
	delayMs  int
}

// Engine is the single coherent pulse-processing loop (spec.md §4.6).
//
// Grounded on the teacher's Scope (scope.go) for the "one struct owns all
// shared runtime state, protected by one mutex" shape, generalized from a
// DI-resolution cache to the scope_pulse_counts/pending_terminations/
// lockbox tables a pulse scheduler needs instead.
type Engine struct {
	nodes    map[string]*Node
	wires    []*Wire
	adj      *WireAdjacency
	registry *PortRegistry

	bridge     *Bridge
	flow       *FlowController
	ctxMgr     *ContextManager
	dispatcher *Dispatcher
	lockbox    *Lockbox
	pool       *PoolManager
	exts       *ExtensionSet
	sweeper    *Sweeper

	parentBridge *Bridge
	parentNodeID string

	defaultScope string

	mu                   sync.Mutex
	scopePulseCounts     map[string]int64
	pendingTerminations  map[string]*pendingTermination
	servicesRegistered   map[string]bool

	cfg *EngineConfig
	log *slog.Logger

	graphPath    string
	graphMtime   time.Time

	branchWG sync.WaitGroup
}

// NewEngine constructs an engine instance (spec.md §4.6 "Construction").
// defaultScope should already be the sanitised file stem (plus, for child
// engines, a short random suffix) per spec.md §4.6 step 1.
func NewEngine(cfg *EngineConfig, nodes map[string]*Node, wires []*Wire, defaultScope string, bridge *Bridge, parentBridge *Bridge, parentNodeID string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	registry := NewPortRegistry()
	for _, n := range nodes {
		for port := range n.InputSchema {
			registry.Register(n.ID, port, DirectionInput, n.Name)
		}
		for port := range n.OutputSchema {
			registry.Register(n.ID, port, DirectionOutput, n.Name)
		}
	}

	pool := NewPoolManager()
	e := &Engine{
		nodes:               nodes,
		wires:               wires,
		adj:                 BuildWireAdjacency(wires),
		registry:            registry,
		bridge:              bridge,
		flow:                NewFlowController(),
		ctxMgr:              NewContextManager(nodes),
		dispatcher:          NewDispatcher(bridge, pool),
		lockbox:             NewLockbox(),
		pool:                pool,
		exts:                NewExtensionSet(),
		sweeper:             NewSweeper(log),
		parentBridge:        parentBridge,
		parentNodeID:        parentNodeID,
		defaultScope:        defaultScope,
		scopePulseCounts:    map[string]int64{ScopeRoot: 0},
		pendingTerminations: make(map[string]*pendingTermination),
		servicesRegistered:  make(map[string]bool),
		cfg:                 cfg,
		log:                 log,
	}
	return e
}

// UseExtensions attaches trace/metrics/debug extensions before Run.
func (e *Engine) UseExtensions(exts ...Extension) {
	e.exts = NewExtensionSet(exts...)
}

func (e *Engine) incrementScopes(scopes []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scopePulseCounts[ScopeRoot]++
	for _, s := range scopes {
		e.scopePulseCounts[s]++
	}
}

func (e *Engine) decrementScopes(scopes []string) {
	e.mu.Lock()
	e.scopePulseCounts[ScopeRoot]--
	for _, s := range scopes {
		e.scopePulseCounts[s]--
	}
	e.mu.Unlock()
	e.scopeTerminationSweep()
}

// Run validates the start node, seeds the scheduler, and enters the main
// loop (spec.md §4.6 step 2-3).
func (e *Engine) Run(ctx context.Context, startNodeID string, initialStack []string) error {
	if _, ok := e.nodes[startNodeID]; !ok {
		return fmt.Errorf("synapse: start node %q does not exist", startNodeID)
	}
	hasReturn := false
	for _, n := range e.nodes {
		if n.Flags.IsService == false && n.Name == "Return" {
			hasReturn = true
		}
	}
	if !hasReturn {
		e.log.Warn("no return node present in graph")
	}

	runID := uuid.New().String()
	_ = e.bridge.Set(KeyRunID, runID, "engine")

	e.flow.Push(startNodeID, initialStack, "Exec", 0, 0)
	e.incrementScopes(initialStack)

	if e.cfg != nil && e.cfg.GraphPath != "" {
		e.graphPath = e.cfg.GraphPath
		if fi, err := os.Stat(e.graphPath); err == nil {
			e.graphMtime = fi.ModTime()
		}
		_ = e.sweeper.AddHotReload(func() { e.checkHotReload() })
		e.sweeper.Start()
		defer e.sweeper.Stop()
	}

	stopped := e.mainLoop(ctx)

	e.finalFlush()
	if stopped {
		return ErrStopped
	}
	return nil
}

// mainLoop drives the scheduler until the queue and all scopes drain, a
// stop signal is observed, or a yield is requested. It reports whether the
// exit was stop-triggered so Run can surface a nonzero exit to the caller
// (spec.md §6 "nonzero on explicit stop").
func (e *Engine) mainLoop(ctx context.Context) bool {
	for {
		e.mu.Lock()
		rootCount := e.scopePulseCounts[ScopeRoot]
		e.mu.Unlock()

		if !e.flow.HasNext() && rootCount <= 0 {
			return false
		}
		if !e.flow.HasNext() && rootCount > 0 {
			e.scopeTerminationSweep()
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if e.stopRequested() {
			return true
		}
		if e.yieldRequested() {
			e.bridge.Set(KeyYield, false, "engine")
			return false
		}

		pulse, ok := e.flow.Pop()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if e.step(ctx, pulse) {
			return false
		}
	}
}

func (e *Engine) stopRequested() bool {
	if v, ok := e.bridge.Get(KeyStop, false).(bool); ok && v {
		return true
	}
	if e.parentBridge != nil {
		if v, ok := e.parentBridge.Get(KeyStop, false).(bool); ok && v {
			return true
		}
	}
	if e.cfg != nil && e.cfg.StopFilePath != "" {
		if _, err := os.Stat(e.cfg.StopFilePath); err == nil {
			return true
		}
	}
	return false
}

func (e *Engine) yieldRequested() bool {
	v, ok := e.bridge.Get(KeyYield, false).(bool)
	return ok && v
}

// applyControls honours the speed-delay and pause-file runtime controls
// (spec.md §4.6 step 4, §6 "Runtime control files"): it sleeps the
// configured inter-step delay in small slices (re-reading the speed-file
// each slice so a live edit takes effect without waiting out a long delay),
// then, while the pause-file exists, sleeps in a poll loop. Both loops
// check the stop signal throughout so a stop request is never blocked on.
func (e *Engine) applyControls() {
	if e.cfg == nil {
		return
	}

	const slice = 50 * time.Millisecond
	start := time.Now()
	for {
		elapsed := time.Since(start)
		delay := e.readSpeedDelay()
		if elapsed >= delay {
			break
		}
		if e.stopRequested() {
			return
		}
		wait := delay - elapsed
		if wait > slice {
			wait = slice
		}
		time.Sleep(wait)
	}

	for e.pauseFileExists() {
		if e.stopRequested() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// readSpeedDelay prefers a live numeric value from the configured
// speed-file over the static StepDelay config value.
func (e *Engine) readSpeedDelay() time.Duration {
	if e.cfg.SpeedFilePath != "" {
		if data, err := os.ReadFile(e.cfg.SpeedFilePath); err == nil {
			if v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); err == nil {
				return time.Duration(v * float64(time.Second))
			}
		}
	}
	return e.cfg.StepDelay
}

func (e *Engine) pauseFileExists() bool {
	if e.cfg.PauseFilePath == "" {
		return false
	}
	_, err := os.Stat(e.cfg.PauseFilePath)
	return err == nil
}

func (e *Engine) checkHotReload() {
	if e.graphPath == "" {
		return
	}
	fi, err := os.Stat(e.graphPath)
	if err != nil || !fi.ModTime().After(e.graphMtime) {
		return
	}
	e.graphMtime = fi.ModTime()

	gf, err := LoadGraphFile(e.graphPath)
	if err != nil {
		e.log.Warn("hot reload: failed to parse graph file", "path", e.graphPath, "err", err)
		return
	}

	e.mu.Lock()
	var previousNodes []GraphFileNode
	for id, n := range e.nodes {
		previousNodes = append(previousNodes, GraphFileNode{ID: id, Type: n.Name})
	}
	diff := DiffNodes(&GraphFile{Nodes: previousNodes}, gf)
	for _, removedID := range diff.Removed {
		if n, ok := e.nodes[removedID]; ok && n.Terminate != nil {
			n.Terminate()
		}
		delete(e.nodes, removedID)
	}
	wires := make([]*Wire, 0, len(gf.Wires))
	for _, gw := range gf.Wires {
		wires = append(wires, &Wire{FromNode: gw.FromNode, FromPort: gw.FromPort, ToNode: gw.ToNode, ToPort: gw.ToPort})
	}
	e.wires = wires
	e.adj = BuildWireAdjacency(wires)
	e.mu.Unlock()

	e.exts.HotReload(e.graphPath)
}

// step runs one pulse through the full algorithm of spec.md §4.6 and
// returns true if the engine should terminate its loop entirely.
func (e *Engine) step(ctx context.Context, p *Pulse) bool {
	// 1. Cancellation check.
	for _, scope := range p.ScopeStack {
		if v, ok := e.bridge.Get(CancelScopeKey(scope), false).(bool); ok && v {
			e.decrementScopes(p.ScopeStack)
			return false
		}
	}

	// 2. Missing-node check.
	node, ok := e.nodes[p.NodeID]
	if !ok {
		e.log.Warn("step: unknown node, dropping pulse", "node", p.NodeID)
		e.decrementScopes(p.ScopeStack)
		return false
	}

	e.exts.NodeStart(node.ID)
	defer e.exts.NodeStop(node.ID)

	// 3. Return-node handling.
	if node.Name == "Return" && !e.isLoopScope(p.ScopeStack) {
		scope := e.currentScope(p.ScopeStack)
		fields, _ := GatherInputs(node, e.adj.IncomingTo(node.ID), e.nodes, e.bridge, e.parentBridge, e.registry)
		e.lockbox.Deposit(scope, node.Name, fields)

		e.mu.Lock()
		otherLive := e.scopePulseCounts[scope] > 1
		e.mu.Unlock()
		if otherLive {
			e.decrementScopes(p.ScopeStack)
			return false
		}
	}

	// 4. Controls (speed-delay and pause-file), spec.md §4.6 step 4.
	e.applyControls()

	// 5. Provider-requirement validation.
	if len(node.Flags.RequiredProviders) > 0 {
		if !e.stackHasProviders(p.ScopeStack, node.Flags.RequiredProviders) {
			err := &ValidationError{NodeID: node.ID, Message: "missing required provider"}
			e.routeError(ctx, node, p, err)
			e.decrementScopes(p.ScopeStack)
			return false
		}
	}

	// 6. Input gathering.
	inputs, err := GatherInputs(node, e.adj.IncomingTo(node.ID), e.nodes, e.bridge, e.parentBridge, e.registry)
	if err != nil {
		e.routeError(ctx, node, p, err)
		e.decrementScopes(p.ScopeStack)
		return false
	}

	// 7. Stack update.
	newStack := e.ctxMgr.UpdateStack(node, p.ScopeStack, p.TriggerPort)

	// 8. Sanitise signals.
	_ = e.bridge.Set(LegacyKey(node.ID, "ActivePorts"), nil, node.ID)
	_ = e.bridge.Set(LegacyKey(node.ID, "Condition"), nil, node.ID)

	// 9. Dispatch.
	future := e.dispatcher.Dispatch(ctx, node, p.TriggerPort, inputs, newStack)
	dispatchErr := future.Wait()
	if dispatchErr != nil {
		e.exts.NodeError(node.ID, dispatchErr.Error())
		target, found := e.ctxMgr.HandleError(node.ID, newStack, e.wires)
		if found {
			e.autoCleanup(newStack, target.ParentStack)
			for _, w := range target.CatchWires {
				e.flow.Push(w.ToNode, target.ParentStack, w.ToPort, p.Priority, 0)
				e.incrementScopes(target.ParentStack)
			}
		} else {
			e.panicHandler(dispatchErr, node)
		}
		e.decrementScopes(p.ScopeStack)
		return false
	}

	// Wireless broadcast (spec.md §4.3 "route_wireless"): the engine
	// recognizes the Broadcast node by name and pushes a pulse at port
	// "Wireless" to every node whose tag property matches.
	if node.Name == "Broadcast" {
		tag, _ := inputs["Tag"].(string)
		if tag != "" {
			broadcast := e.flow.RouteWireless(tag, e.nodes, newStack)
			for _, b := range broadcast {
				e.incrementScopes(b.ScopeStack)
			}
			_ = e.bridge.BubbleSet(WirelessKey(tag), true, node.ID)
			e.exts.Wireless(tag)
		}
	}

	// 10. Output resolution.
	routeOpts := RouteOptions{}
	isProviderWithFlow := node.Flags.IsProvider && e.hasProviderFlowWire(node.ID)
	if isProviderWithFlow {
		routeOpts.StackOverrideMap = map[string][]string{"Provider Flow": append(append([]string(nil), newStack...), node.ID)}
		routeOpts.PortExclude = legacyCompletionPorts
		e.mu.Lock()
		if _, exists := e.scopePulseCounts[node.ID]; !exists {
			e.scopePulseCounts[node.ID] = 0
		}
		e.mu.Unlock()
	}
	pulses := e.flow.RouteOutputs(node.ID, e.adj.OutgoingFrom(node.ID), e.bridge, newStack, p.Priority, 0, routeOpts)
	for _, out := range pulses {
		e.exts.Flow(node.ID, p.TriggerPort, out.NodeID, out.TriggerPort, out.Priority, 0)
	}

	// 12. Branch spawning.
	if len(pulses) > 0 {
		e.pushPulse(pulses[0])
		for _, extra := range pulses[1:] {
			e.spawnBranch(ctx, extra)
		}
	}

	// 13. Provider completion-pending.
	if isProviderWithFlow {
		if len(pulses) > 0 {
			e.mu.Lock()
			e.pendingTerminations[node.ID] = &pendingTermination{stack: newStack, priority: p.Priority}
			e.mu.Unlock()
		} else {
			completion := e.flow.RouteOutputs(node.ID, e.adj.OutgoingFrom(node.ID), e.bridge, newStack, p.Priority, 0, RouteOptions{
				PortInclude:  legacyCompletionPorts,
				ForceTrigger: true,
			})
			for _, c := range completion {
				e.pushPulse(c)
			}
		}
	}

	// 15. Service registration.
	if node.Flags.IsService {
		e.mu.Lock()
		alreadyRegistered := e.servicesRegistered[node.ID]
		e.servicesRegistered[node.ID] = true
		e.mu.Unlock()
		if !alreadyRegistered {
			e.exts.ServiceStart(node.ID)
		}
	}

	// 14. Decrement.
	e.decrementScopes(p.ScopeStack)
	return false
}

func (e *Engine) pushPulse(p *Pulse) {
	e.flow.Push(p.NodeID, p.ScopeStack, p.TriggerPort, p.Priority, 0)
	e.incrementScopes(p.ScopeStack)
}

// spawnBranch starts an isolated mini-scheduler for one fired pulse
// (spec.md §4.6 step 12, "Parallel branches").
func (e *Engine) spawnBranch(ctx context.Context, seed *Pulse) {
	e.incrementScopes(seed.ScopeStack)
	branchFlow := NewFlowController()
	branchFlow.Push(seed.NodeID, seed.ScopeStack, seed.TriggerPort, seed.Priority, 0)

	e.branchWG.Add(1)
	go func() {
		defer e.branchWG.Done()
		for {
			if !branchFlow.HasNext() {
				if e.stopRequested() {
					return
				}
				e.mu.Lock()
				root := e.scopePulseCounts[ScopeRoot]
				e.mu.Unlock()
				if root <= 0 {
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}
			pulse, ok := branchFlow.Pop()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			e.stepBranch(ctx, pulse, branchFlow)
		}
	}()
}

// stepBranch runs a reduced form of step for a branch pulse: it gathers
// inputs, updates the scope stack, dispatches, and pushes fired sub-pulses
// back onto the branch's own flow controller instead of the main one. It
// does not perform step's cancellation check, return-node lockbox deposit,
// control-file handling, provider validation, provider scope handling or
// catch/panic routing; a dispatch error emits NodeError and drops the pulse.
func (e *Engine) stepBranch(ctx context.Context, p *Pulse, branchFlow *FlowController) {
	node, ok := e.nodes[p.NodeID]
	if !ok {
		e.decrementScopes(p.ScopeStack)
		return
	}
	e.exts.NodeStart(node.ID)
	defer e.exts.NodeStop(node.ID)

	inputs, _ := GatherInputs(node, e.adj.IncomingTo(node.ID), e.nodes, e.bridge, e.parentBridge, e.registry)
	newStack := e.ctxMgr.UpdateStack(node, p.ScopeStack, p.TriggerPort)

	future := e.dispatcher.Dispatch(ctx, node, p.TriggerPort, inputs, newStack)
	if err := future.Wait(); err != nil {
		e.exts.NodeError(node.ID, err.Error())
		e.decrementScopes(p.ScopeStack)
		return
	}

	pulses := e.flow.RouteOutputs(node.ID, e.adj.OutgoingFrom(node.ID), e.bridge, newStack, p.Priority, 0, RouteOptions{})
	for _, out := range pulses {
		branchFlow.Push(out.NodeID, out.ScopeStack, out.TriggerPort, out.Priority, 0)
		e.incrementScopes(out.ScopeStack)
	}
	e.decrementScopes(p.ScopeStack)
}

// scopeTerminationSweep repeatedly scans for drained scopes, firing
// pending completion flows and flushing lockboxes (spec.md §4.6
// "Scope-termination sweep").
func (e *Engine) scopeTerminationSweep() {
	for {
		changed := false
		e.mu.Lock()
		var drained []string
		for scope, count := range e.scopePulseCounts {
			if scope != ScopeRoot && count <= 0 {
				drained = append(drained, scope)
			}
		}
		e.mu.Unlock()

		for _, scope := range drained {
			e.mu.Lock()
			term, hasTerm := e.pendingTerminations[scope]
			delete(e.pendingTerminations, scope)
			e.mu.Unlock()

			// The drained scope's own node is a provider context that just
			// exited normally: run its cleanup hook exactly once, same as
			// the error-unwinding path in autoCleanup (spec.md §8 Scenario
			// 3, "cleanup_provider_context is called on normal exit").
			if node, ok := e.nodes[scope]; ok && node.CleanupProviderContext != nil && !node.CleanupSingleton {
				_ = node.CleanupProviderContext(context.Background())
			}

			if hasTerm {
				completion := e.flow.RouteOutputs(scope, e.adj.OutgoingFrom(scope), e.bridge, term.stack, term.priority, term.delayMs, RouteOptions{
					PortInclude:  legacyCompletionPorts,
					ForceTrigger: true,
				})
				for _, c := range completion {
					e.flow.Push(c.NodeID, c.ScopeStack, c.TriggerPort, c.Priority, 0)
					e.mu.Lock()
					for _, s := range c.ScopeStack {
						e.scopePulseCounts[s]++
					}
					e.mu.Unlock()
				}
			}

			if payload, has := e.lockbox.Flush(scope); has {
				key := SubgraphReturnKey(e.parentNodeID)
				existing, _ := e.bridge.Get(key, map[string]any{}).(map[string]any)
				merged := FilterReturnPayload(existing)
				for k, v := range payload {
					merged[k] = v
				}
				_ = e.bridge.Set(key, merged, scope)
			}

			e.mu.Lock()
			delete(e.scopePulseCounts, scope)
			e.mu.Unlock()
			changed = true
		}

		if !changed {
			return
		}
	}
}

// panicHandler implements spec.md §4.6.3.
func (e *Engine) panicHandler(err error, node *Node) {
	_ = e.bridge.Set(KeyLastErrorCode, errorNumericCode(err), "engine")
	_ = e.bridge.Set(KeyLastErrorMsg, err.Error(), "engine")
	_ = e.bridge.Set(KeyLastErrorNode, node.ID, "engine")
	_ = e.bridge.Set(KeyLastErrorName, node.Name, "engine")
	_ = e.bridge.Set(KeyPanicked, true, "engine")

	e.exts.CriticalError(err.Error())

	for _, w := range e.wires {
		if w.FromPort == "Error Flow" || w.FromPort == "Error" || w.FromPort == "Panic" {
			e.flow.Push(w.ToNode, []string{ScopeRoot}, w.ToPort, 0, 0)
			e.incrementScopes([]string{ScopeRoot})
			return
		}
	}
	e.log.Warn("unhandled panic, no error path wired", "node", node.ID, "err", err)
}

func (e *Engine) routeError(ctx context.Context, node *Node, p *Pulse, err error) {
	e.exts.NodeError(node.ID, err.Error())
	routedLocally := false
	for _, w := range e.adj.OutgoingFrom(node.ID) {
		if w.FromPort == "Error Flow" {
			e.flow.Push(w.ToNode, p.ScopeStack, w.ToPort, p.Priority, 0)
			e.incrementScopes(p.ScopeStack)
			routedLocally = true
		}
	}
	if routedLocally {
		return
	}
	target, found := e.ctxMgr.HandleError(node.ID, p.ScopeStack, e.wires)
	if found {
		for _, w := range target.CatchWires {
			e.flow.Push(w.ToNode, target.ParentStack, w.ToPort, p.Priority, 0)
			e.incrementScopes(target.ParentStack)
		}
		return
	}
	e.panicHandler(err, node)
}

// autoCleanup invokes the cleanup hook of every provider scope dropped
// between a pre-error stack and the target stack it is unwinding to
// (spec.md §4.6 step 9, §3 invariants).
func (e *Engine) autoCleanup(from, to []string) {
	for i := len(to); i < len(from); i++ {
		scopeID := from[i]
		node, ok := e.nodes[scopeID]
		if !ok || node.CleanupProviderContext == nil || node.CleanupSingleton {
			continue
		}
		_ = node.CleanupProviderContext(context.Background())
	}
}

func (e *Engine) stackHasProviders(stack []string, required []string) bool {
	present := make(map[string]bool, len(stack))
	for _, scopeID := range stack {
		if n, ok := e.nodes[scopeID]; ok && n.RegisterProviderContext != nil {
			present[n.RegisterProviderContext()] = true
		}
	}
	for _, r := range required {
		if !present[r] {
			return false
		}
	}
	return true
}

func (e *Engine) hasProviderFlowWire(nodeID string) bool {
	for _, w := range e.adj.OutgoingFrom(nodeID) {
		if w.FromPort == "Provider Flow" {
			return true
		}
	}
	return false
}

func (e *Engine) isLoopScope(stack []string) bool {
	if len(stack) == 0 {
		return false
	}
	n, ok := e.nodes[stack[len(stack)-1]]
	return ok && n.Name == "While"
}

func (e *Engine) currentScope(stack []string) string {
	if len(stack) == 0 {
		return ScopeRoot
	}
	return stack[len(stack)-1]
}

// finalFlush aggregates every remaining lockbox payload, signals the
// parent, and stops all registered services (spec.md §4.6 "On exit from
// run").
func (e *Engine) finalFlush() {
	e.branchWG.Wait()

	e.mu.Lock()
	scopes := make([]string, 0, len(e.scopePulseCounts))
	for scope := range e.scopePulseCounts {
		scopes = append(scopes, scope)
	}
	e.mu.Unlock()

	key := SubgraphReturnKey(e.parentNodeID)
	merged, _ := e.bridge.Get(key, map[string]any{}).(map[string]any)
	merged = FilterReturnPayload(merged)
	for _, scope := range scopes {
		if payload, ok := e.lockbox.Flush(scope); ok {
			for k, v := range payload {
				merged[k] = v
			}
		}
	}
	_ = e.bridge.Set(key, merged, ScopeRoot)

	if e.parentBridge != nil {
		e.exts.SubgraphFinished(e.parentNodeID)
	}

	for id, registered := range e.servicesRegistered {
		if !registered {
			continue
		}
		if n, ok := e.nodes[id]; ok && n.Terminate != nil {
			n.Terminate()
		}
	}

	e.dispatcher.Shutdown()
}
