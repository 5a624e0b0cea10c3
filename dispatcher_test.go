package synapse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchMissingHandler(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	d := NewDispatcher(b, NewPoolManager())
	defer d.Shutdown()

	n := NewNode("n1", "Empty", "1.0.0")
	future := d.Dispatch(context.Background(), n, "Exec", nil, nil)
	err := future.Wait()
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDispatchNativeSuccess(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	d := NewDispatcher(b, NewPoolManager())
	defer d.Shutdown()

	n := NewNode("n1", "Native", "1.0.0")
	n.Flags.IsNative = true
	n.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		ctx.SetOutput("Result", 7)
		return nil
	}

	future := d.Dispatch(context.Background(), n, "Exec", nil, []string{"ROOT"})
	require.NoError(t, future.Wait())
	assert.Equal(t, 7, b.Get(LegacyKey("n1", "Result"), nil))
}

func TestDispatchRecoversPanic(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	d := NewDispatcher(b, NewPoolManager())
	defer d.Shutdown()

	n := NewNode("n1", "Panicky", "1.0.0")
	n.Flags.IsNative = true
	n.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		panic("boom")
	}

	future := d.Dispatch(context.Background(), n, "Exec", nil, nil)
	err := future.Wait()
	require.Error(t, err)
	var perr *PanicError
	assert.ErrorAs(t, err, &perr)
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	d := NewDispatcher(b, NewPoolManager())
	defer d.Shutdown()

	n := NewNode("n1", "Failing", "1.0.0")
	n.Flags.IsNative = true
	wantErr := errors.New("boom")
	n.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		return wantErr
	}

	future := d.Dispatch(context.Background(), n, "Exec", nil, nil)
	assert.Equal(t, wantErr, future.Wait())
}

func TestDispatchHeavyModeRejectsUnserialisableInputs(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	d := NewDispatcher(b, NewPoolManager())
	defer d.Shutdown()

	n := NewNode("n1", "Heavy", "1.0.0")
	n.Handlers["Exec"] = func(ctx *HandlerCtx) error { return nil }

	inputs := map[string]any{"bad": make(chan int)}
	future := d.Dispatch(context.Background(), n, "Exec", inputs, nil)
	err := future.Wait()
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDispatchAugmentsTriggerAndStack(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	d := NewDispatcher(b, NewPoolManager())
	defer d.Shutdown()

	n := NewNode("n1", "Native", "1.0.0")
	n.Flags.IsNative = true
	gotTrigger := ""
	var gotStack []string
	n.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		gotTrigger = ctx.Input("_trigger").(string)
		gotStack = ctx.Input("_context_stack").([]string)
		return nil
	}

	future := d.Dispatch(context.Background(), n, "Exec", nil, []string{"ROOT", "p1"})
	require.NoError(t, future.Wait())
	assert.Equal(t, "Exec", gotTrigger)
	assert.Equal(t, []string{"ROOT", "p1"}, gotStack)
}

func TestDispatchWaitBlocksUntilResolved(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	d := NewDispatcher(b, NewPoolManager())
	defer d.Shutdown()

	n := NewNode("n1", "Slow", "1.0.0")
	n.Flags.IsNative = true
	n.Handlers["Exec"] = func(ctx *HandlerCtx) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	start := time.Now()
	future := d.Dispatch(context.Background(), n, "Exec", nil, nil)
	require.NoError(t, future.Wait())
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
