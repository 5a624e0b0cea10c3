package synapse

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-engine/synapse/pkg/schema"
)

// drainEngine pops and steps pulses off the engine's main queue until it is
// empty, bailing out loudly rather than hanging if a test graph never
// drains.
func drainEngine(t *testing.T, e *Engine, ctx context.Context, maxSteps int) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		if !e.flow.HasNext() {
			return
		}
		p, ok := e.flow.Pop()
		if !ok {
			return
		}
		e.step(ctx, p)
	}
	t.Fatalf("engine did not drain within %d steps", maxSteps)
}

func newFlowNode(id, name string) *Node {
	n := NewNode(id, name, "1.0.0")
	n.OutputSchema["Flow"] = schema.Flow
	return n
}

func TestScenario_LinearFlow(t *testing.T) {
	start := newFlowNode("start", "Start")
	start.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	debug := newFlowNode("debug", "Debug")
	debug.InputSchema["Message"] = schema.String
	debug.Properties["Message"] = "hi"
	var seenMessage string
	debug.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		seenMessage, _ = ctx.Input("Message").(string)
		return nil
	}

	ret := newFlowNode("ret", "Return")
	ret.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	nodes := map[string]*Node{"start": start, "debug": debug, "ret": ret}
	wires := []*Wire{
		{FromNode: "start", FromPort: "Flow", ToNode: "debug", ToPort: "Exec"},
		{FromNode: "debug", FromPort: "Flow", ToNode: "ret", ToPort: "Exec"},
	}

	bridge := NewBridge(ScopeRoot, nil, nil)
	e := NewEngine(nil, nodes, wires, ScopeRoot, bridge, nil, "", nil)

	ctx := context.Background()
	e.flow.Push("start", []string{ScopeRoot}, "Exec", 0, 0)
	e.incrementScopes([]string{ScopeRoot})

	drainEngine(t, e, ctx, 50)
	e.finalFlush()

	assert.Equal(t, "hi", seenMessage)
	merged, _ := bridge.Get(SubgraphReturnKey(""), map[string]any{}).(map[string]any)
	require.NotNil(t, merged)
	assert.Equal(t, "Return", merged["__RETURN_NODE_LABEL__"])
}

func TestScenario_ErrorRouting(t *testing.T) {
	start := newFlowNode("start", "Start")
	start.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	provider := newFlowNode("provider", "Provider")
	provider.Flags.IsProvider = true
	provider.OutputSchema["Provider Flow"] = schema.ProviderFlow
	provider.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		ctx.SetActivePorts([]string{"Provider Flow"})
		return nil
	}

	failing := newFlowNode("failing", "Failing")
	failing.Flags.IsNative = true
	failing.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		return &RuntimeError{NodeID: "failing", Cause: assert.AnError}
	}

	caught := false
	handler := newFlowNode("handler", "Handler")
	handler.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		caught = true
		return nil
	}

	nodes := map[string]*Node{
		"start": start, "provider": provider, "failing": failing, "handler": handler,
	}
	wires := []*Wire{
		{FromNode: "start", FromPort: "Flow", ToNode: "provider", ToPort: "Exec"},
		{FromNode: "provider", FromPort: "Provider Flow", ToNode: "failing", ToPort: "Exec"},
		{FromNode: "provider", FromPort: "Error Flow", ToNode: "handler", ToPort: "Exec"},
	}

	bridge := NewBridge(ScopeRoot, nil, nil)
	e := NewEngine(nil, nodes, wires, ScopeRoot, bridge, nil, "", nil)

	ctx := context.Background()
	e.flow.Push("start", []string{ScopeRoot}, "Exec", 0, 0)
	e.incrementScopes([]string{ScopeRoot})

	drainEngine(t, e, ctx, 50)

	assert.True(t, caught)
	panicked, _ := bridge.Get(KeyPanicked, false).(bool)
	assert.False(t, panicked)
}

func TestScenario_ProviderScope(t *testing.T) {
	start := newFlowNode("start", "Start")
	start.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	provider := newFlowNode("provider", "Provider")
	provider.Flags.IsProvider = true
	provider.OutputSchema["Provider Flow"] = schema.ProviderFlow
	provider.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		ctx.SetActivePorts([]string{"Provider Flow"})
		return nil
	}
	cleanupCalls := 0
	provider.CleanupProviderContext = func(ctx context.Context) error {
		cleanupCalls++
		return nil
	}

	child := newFlowNode("child", "Debug")
	child.Properties["Note"] = "hello-from-child"
	child.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	childReturn := newFlowNode("childReturn", "Return")
	childReturn.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	after := newFlowNode("after", "Return")
	after.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	nodes := map[string]*Node{
		"start": start, "provider": provider, "child": child,
		"childReturn": childReturn, "after": after,
	}
	wires := []*Wire{
		{FromNode: "start", FromPort: "Flow", ToNode: "provider", ToPort: "Exec"},
		{FromNode: "provider", FromPort: "Provider Flow", ToNode: "child", ToPort: "Exec"},
		{FromNode: "provider", FromPort: "Flow", ToNode: "after", ToPort: "Exec"},
		{FromNode: "child", FromPort: "Flow", ToNode: "childReturn", ToPort: "Exec"},
		{FromNode: "child", FromPort: "Note", ToNode: "childReturn", ToPort: "Marker"},
	}

	bridge := NewBridge(ScopeRoot, nil, nil)
	e := NewEngine(nil, nodes, wires, ScopeRoot, bridge, nil, "", nil)

	ctx := context.Background()
	e.flow.Push("start", []string{ScopeRoot}, "Exec", 0, 0)
	e.incrementScopes([]string{ScopeRoot})

	drainEngine(t, e, ctx, 50)
	e.finalFlush()

	merged, _ := bridge.Get(SubgraphReturnKey(""), map[string]any{}).(map[string]any)
	require.NotNil(t, merged)
	assert.Equal(t, "hello-from-child", merged["Marker"])
	assert.Equal(t, 1, cleanupCalls)
}

func TestScenario_SubgraphReturnAggregation(t *testing.T) {
	start := newFlowNode("start", "Start")
	start.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	mkProvider := func(id string) *Node {
		p := newFlowNode(id, "Provider")
		p.Flags.IsProvider = true
		p.OutputSchema["Provider Flow"] = schema.ProviderFlow
		p.Handlers["Exec"] = func(ctx *HandlerCtx) error {
			ctx.SetActivePorts([]string{"Provider Flow"})
			return nil
		}
		return p
	}

	p1 := mkProvider("p1")
	p1Return := newFlowNode("p1Return", "Return")
	p1Return.Properties["A"] = 1
	p1Return.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	p2 := mkProvider("p2")
	p2Return := newFlowNode("p2Return", "Return")
	p2Return.Properties["B"] = 2
	p2Return.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	final := newFlowNode("final", "Return")
	final.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	nodes := map[string]*Node{
		"start": start, "p1": p1, "p1Return": p1Return,
		"p2": p2, "p2Return": p2Return, "final": final,
	}
	// p1Return/p2Return carry their payload fields through their own
	// property bag, picked up by GatherInputs's declared-but-unwired
	// fallback — no data wiring is required for that path.
	p1Return.InputSchema["A"] = schema.Number
	p2Return.InputSchema["B"] = schema.Number

	wires := []*Wire{
		{FromNode: "start", FromPort: "Flow", ToNode: "p1", ToPort: "Exec"},
		{FromNode: "p1", FromPort: "Provider Flow", ToNode: "p1Return", ToPort: "Exec"},
		{FromNode: "p1", FromPort: "Flow", ToNode: "p2", ToPort: "Exec"},
		{FromNode: "p2", FromPort: "Provider Flow", ToNode: "p2Return", ToPort: "Exec"},
		{FromNode: "p2", FromPort: "Flow", ToNode: "final", ToPort: "Exec"},
	}

	bridge := NewBridge(ScopeRoot, nil, nil)
	e := NewEngine(nil, nodes, wires, ScopeRoot, bridge, nil, "", nil)

	ctx := context.Background()
	e.flow.Push("start", []string{ScopeRoot}, "Exec", 0, 0)
	e.incrementScopes([]string{ScopeRoot})

	drainEngine(t, e, ctx, 100)
	e.finalFlush()

	merged, _ := bridge.Get(SubgraphReturnKey(""), map[string]any{}).(map[string]any)
	require.NotNil(t, merged)
	assert.Equal(t, 1.0, merged["A"])
	assert.Equal(t, 2.0, merged["B"])
}

func TestScenario_LoopWithBreak(t *testing.T) {
	start := newFlowNode("start", "Start")
	start.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	while := newFlowNode("while", "While")
	while.Flags.IsProvider = true
	while.InputSchema["Condition"] = schema.Boolean
	while.OutputSchema["Body"] = schema.Flow
	while.Properties["Condition"] = true
	while.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		cond, _ := ctx.Input("Condition").(bool)
		if cond {
			ctx.SetActivePorts([]string{"Body"})
		} else {
			ctx.SetActivePorts([]string{"Flow"})
		}
		return nil
	}

	counterCalls := 0
	counter := newFlowNode("counter", "Counter")
	counter.Flags.IsNative = true
	counter.OutputSchema["Cond"] = schema.Boolean
	counter.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		counterCalls++
		ctx.SetOutput("Cond", counterCalls < 3)
		ctx.SetActivePorts([]string{"Flow"})
		return nil
	}

	doneCalls := 0
	done := newFlowNode("done", "Debug")
	done.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		doneCalls++
		return nil
	}

	nodes := map[string]*Node{"start": start, "while": while, "counter": counter, "done": done}
	wires := []*Wire{
		{FromNode: "start", FromPort: "Flow", ToNode: "while", ToPort: "Exec"},
		{FromNode: "while", FromPort: "Body", ToNode: "counter", ToPort: "Exec"},
		{FromNode: "counter", FromPort: "Flow", ToNode: "while", ToPort: "Exec"},
		{FromNode: "counter", FromPort: "Cond", ToNode: "while", ToPort: "Condition"},
		{FromNode: "while", FromPort: "Flow", ToNode: "done", ToPort: "Exec"},
	}

	bridge := NewBridge(ScopeRoot, nil, nil)
	e := NewEngine(nil, nodes, wires, ScopeRoot, bridge, nil, "", nil)

	ctx := context.Background()
	e.flow.Push("start", []string{ScopeRoot}, "Exec", 0, 0)
	e.incrementScopes([]string{ScopeRoot})

	drainEngine(t, e, ctx, 200)

	assert.Equal(t, 3, counterCalls)
	assert.Equal(t, 1, doneCalls)
}

func TestScenario_PriorityAndDelay(t *testing.T) {
	var order []string

	mk := func(id string) *Node {
		n := newFlowNode(id, "Debug")
		n.Handlers["Exec"] = func(ctx *HandlerCtx) error {
			order = append(order, id)
			return nil
		}
		return n
	}

	a := mk("a")
	b := mk("b")
	c := mk("c")

	nodes := map[string]*Node{"a": a, "b": b, "c": c}
	bridge := NewBridge(ScopeRoot, nil, nil)
	e := NewEngine(nil, nodes, nil, ScopeRoot, bridge, nil, "", nil)

	ctx := context.Background()
	e.flow.Push("b", []string{ScopeRoot}, "Exec", 1, 0)
	e.flow.Push("a", []string{ScopeRoot}, "Exec", 10, 0)
	e.flow.Push("c", []string{ScopeRoot}, "Exec", 0, 30)
	e.incrementScopes([]string{ScopeRoot})
	e.incrementScopes([]string{ScopeRoot})
	e.incrementScopes([]string{ScopeRoot})

	assert.False(t, e.flow.OnlyDelayedRemain()) // a and b are ready immediately

	p, ok := e.flow.Pop()
	require.True(t, ok)
	e.step(ctx, p)
	p, ok = e.flow.Pop()
	require.True(t, ok)
	e.step(ctx, p)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.True(t, e.flow.OnlyDelayedRemain())

	time.Sleep(40 * time.Millisecond)
	drainEngine(t, e, ctx, 10)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestApplyControlsReadsSpeedFile(t *testing.T) {
	speedPath := filepath.Join(t.TempDir(), "speed")
	require.NoError(t, os.WriteFile(speedPath, []byte("0.05"), 0644))

	e := NewEngine(&EngineConfig{SpeedFilePath: speedPath}, map[string]*Node{}, nil, ScopeRoot, NewBridge(ScopeRoot, nil, nil), nil, "", nil)

	start := time.Now()
	e.applyControls()
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

func TestApplyControlsPauseFileBlocksUntilRemoved(t *testing.T) {
	pausePath := filepath.Join(t.TempDir(), "pause")
	require.NoError(t, os.WriteFile(pausePath, nil, 0644))

	e := NewEngine(&EngineConfig{PauseFilePath: pausePath}, map[string]*Node{}, nil, ScopeRoot, NewBridge(ScopeRoot, nil, nil), nil, "", nil)

	done := make(chan struct{})
	go func() {
		e.applyControls()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("applyControls returned before the pause-file was removed")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, os.Remove(pausePath))
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("applyControls did not return after pause-file removal")
	}
}

func TestApplyControlsStopSignalInterruptsPause(t *testing.T) {
	pausePath := filepath.Join(t.TempDir(), "pause")
	require.NoError(t, os.WriteFile(pausePath, nil, 0644))

	bridge := NewBridge(ScopeRoot, nil, nil)
	e := NewEngine(&EngineConfig{PauseFilePath: pausePath}, map[string]*Node{}, nil, ScopeRoot, bridge, nil, "", nil)
	_ = bridge.Set(KeyStop, true, "test")

	done := make(chan struct{})
	go func() {
		e.applyControls()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("applyControls did not return despite a pending stop signal")
	}
}

func TestRunReturnsErrStoppedOnStopSignal(t *testing.T) {
	start := newFlowNode("start", "Start")
	start.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }
	nodes := map[string]*Node{"start": start}

	bridge := NewBridge(ScopeRoot, nil, nil)
	e := NewEngine(nil, nodes, nil, ScopeRoot, bridge, nil, "", nil)
	_ = bridge.Set(KeyStop, true, "test")

	err := e.Run(context.Background(), "start", []string{ScopeRoot})
	assert.ErrorIs(t, err, ErrStopped)
}
