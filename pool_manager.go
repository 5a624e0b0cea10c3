package synapse

import "sync"

// PoolManager manages object pools for memory-efficient pulse dispatch,
// avoiding an allocation per step for the objects handed to every node
// handler invocation.
//
// Adapted from the teacher's pool_manager.go (PoolManager wrapping
// sync.Pool per reusable context type, with hit/miss metrics); kept the
// same acquire/release shape and metrics bookkeeping, swapped the pooled
// types from ResolveCtx/ExecutionCtx to HandlerCtx since dispatch here
// hands a node its inputs and output sink rather than resolving a DI
// executor.
type PoolManager struct {
	handlerCtxPool sync.Pool

	metrics PoolMetrics
}

// PoolMetrics tracks pool usage statistics.
type PoolMetrics struct {
	mu    sync.RWMutex
	hits  uint64
	misses uint64
}

func NewPoolManager() *PoolManager {
	return &PoolManager{
		handlerCtxPool: sync.Pool{
			New: func() any {
				return &HandlerCtx{}
			},
		},
	}
}

// AcquireHandlerCtx gets a HandlerCtx from the pool or creates a new one.
func (pm *PoolManager) AcquireHandlerCtx() *HandlerCtx {
	ctx, ok := pm.handlerCtxPool.Get().(*HandlerCtx)
	pm.metrics.mu.Lock()
	if ok {
		pm.metrics.hits++
	} else {
		pm.metrics.misses++
		ctx = &HandlerCtx{}
	}
	pm.metrics.mu.Unlock()
	return ctx
}

// ReleaseHandlerCtx returns a HandlerCtx to the pool.
func (pm *PoolManager) ReleaseHandlerCtx(ctx *HandlerCtx) {
	if ctx == nil {
		return
	}
	ctx.ctx = nil
	ctx.node = nil
	ctx.bridge = nil
	ctx.Inputs = nil
	pm.handlerCtxPool.Put(ctx)
}

// GetMetrics returns a copy of the current pool metrics.
func (pm *PoolManager) GetMetrics() PoolMetrics {
	pm.metrics.mu.RLock()
	defer pm.metrics.mu.RUnlock()
	return PoolMetrics{hits: pm.metrics.hits, misses: pm.metrics.misses}
}
