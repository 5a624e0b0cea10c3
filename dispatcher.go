package synapse

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
)

const nativePoolSize = 32

// Future is the blocking handle returned by Dispatch (spec.md §4.5: "a
// future-like handle... supports blocking wait() that re-raises any
// error").
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the dispatched handler returns, then returns its
// error (nil on success).
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

type dispatchJob struct {
	fn func()
}

// Dispatcher runs a node by its declared execution mode and returns a
// future-like handle (spec.md §4.5). Three pools back the three modes:
// a fixed native worker-thread pool, a single cooperative worker, and a
// goroutine pool for heavy nodes sized to host parallelism.
//
// The spec's original "process pool of worker processes" for heavy nodes
// is redesigned here as a bounded goroutine pool (see SPEC_FULL.md §4.5
// EXPANSION / DESIGN.md): an OS-process pool is the wrong shape for a
// single static Go binary, and spec.md §9's own design notes call for
// memory-safety over raw process isolation for this mode. Inputs are
// still checked with encoding/json (json.Marshal) before dispatch so the
// "inputs must be serialisable" invariant for heavy nodes is preserved;
// the handler receives the original input map, not a decoded copy.
type Dispatcher struct {
	nativeJobs chan dispatchJob
	coopJobs   chan dispatchJob
	heavyJobs  chan dispatchJob

	stopOnce sync.Once
	stopped  chan struct{}

	bridge *Bridge
	pool   *PoolManager
}

func NewDispatcher(bridge *Bridge, pool *PoolManager) *Dispatcher {
	d := &Dispatcher{
		nativeJobs: make(chan dispatchJob),
		coopJobs:   make(chan dispatchJob),
		heavyJobs:  make(chan dispatchJob),
		stopped:    make(chan struct{}),
		bridge:     bridge,
		pool:       pool,
	}
	for i := 0; i < nativePoolSize; i++ {
		go d.worker(d.nativeJobs)
	}
	go d.worker(d.coopJobs)
	heavySize := runtime.NumCPU()
	if heavySize < 1 {
		heavySize = 1
	}
	for i := 0; i < heavySize; i++ {
		go d.worker(d.heavyJobs)
	}
	return d
}

func (d *Dispatcher) worker(jobs chan dispatchJob) {
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			job.fn()
		case <-d.stopped:
			return
		}
	}
}

// Dispatch runs node's handler for triggerPort on the pool matching its
// flags, augmenting inputs with "_trigger"/"_context_stack" and consulting
// the hijack registry first (spec.md §4.5, §4.6 step 9).
func (d *Dispatcher) Dispatch(ctx context.Context, node *Node, triggerPort string, inputs map[string]any, stack []string) *Future {
	future := newFuture()

	handler, ok := node.Handlers[triggerPort]
	if !ok {
		future.resolve(&ValidationError{NodeID: node.ID, Port: triggerPort, Message: "no handler registered for trigger port"})
		return future
	}

	augmented := make(map[string]any, len(inputs)+2)
	for k, v := range inputs {
		augmented[k] = v
	}
	augmented["_trigger"] = triggerPort
	augmented["_context_stack"] = stack

	if handlerNodeID, ok := d.bridge.GetHijackHandler(stack, node.Name); ok {
		augmented["hijack_provider_id"] = handlerNodeID
		augmented["hijack_active"] = true
	}

	if node.Flags.IsService {
		augmented["_service_payload"], _ = json.Marshal(inputs)
	}

	run := func() {
		hctx := d.pool.AcquireHandlerCtx()
		hctx.reset(ctx, node, d.bridge, triggerPort, stack, augmented)
		defer d.pool.ReleaseHandlerCtx(hctx)

		err := d.invoke(handler, hctx, node)
		future.resolve(err)
	}

	switch {
	case node.Flags.IsAsync:
		d.coopJobs <- dispatchJob{fn: run}
	case !node.Flags.IsNative:
		// Heavy mode: inputs must round-trip through JSON to respect the
		// serialisability invariant even though no process boundary is
		// actually crossed here.
		if _, err := json.Marshal(inputs); err != nil {
			future.resolve(&ValidationError{NodeID: node.ID, Message: "heavy-mode inputs are not serialisable: " + err.Error()})
			return future
		}
		d.heavyJobs <- dispatchJob{fn: run}
	default:
		d.nativeJobs <- dispatchJob{fn: run}
	}

	return future
}

// invoke calls handler, converting a recovered panic into a *PanicError
// rather than crashing the worker (spec.md §4.6.3).
func (d *Dispatcher) invoke(handler Handler, hctx *HandlerCtx, node *Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(node.ID, r)
		}
	}()
	return handler(hctx)
}

// Shutdown marks the dispatcher stopped: stops the cooperative loop and
// worker pools without waiting for in-flight jobs (spec.md §4.5).
func (d *Dispatcher) Shutdown() {
	d.stopOnce.Do(func() {
		close(d.stopped)
	})
}
