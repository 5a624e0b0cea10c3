package synapse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeSetGetRoundTrip(t *testing.T) {
	b := NewBridge("TestScope", nil, nil)
	require.NoError(t, b.Set("greeting", "hello", "test"))
	assert.Equal(t, "hello", b.Get("greeting", nil))
}

func TestBridgeGetDefault(t *testing.T) {
	b := NewBridge("TestScope", nil, nil)
	assert.Equal(t, "fallback", b.Get("missing", "fallback"))
}

func TestBridgeScopeResolutionChain(t *testing.T) {
	b := NewBridge("TestScope", nil, nil)
	require.NoError(t, b.Set("k", "global-value", "test", "Global"))
	assert.Equal(t, "global-value", b.Get("k", nil, "SomeOtherScope"))
}

func TestBridgeChildSharesLocksAndIdentities(t *testing.T) {
	root := NewBridge("ROOT", nil, nil)
	root.RegisterIdentity("app1", identity{"auth": map[string]any{}})
	child := root.NewChildBridge("child-scope")

	_, ok := child.GetIdentity("app1")
	assert.True(t, ok)

	require.NoError(t, child.Set("key", "child-value", "test"))
	assert.Nil(t, root.Get("key", nil, "child-scope"))
}

func TestBridgeIncrementDecrement(t *testing.T) {
	b := NewBridge("TestScope", nil, nil)
	v, err := b.Increment("counter", 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = b.Decrement("counter", 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestBridgeHijackRegistry(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	b.RegisterSuperFunction("providerA", "Divide", "handlerNode1")

	handler, ok := b.GetHijackHandler([]string{"providerA"}, "Divide")
	assert.True(t, ok)
	assert.Equal(t, "handlerNode1", handler)

	b.UnregisterSuperFunctions("providerA")
	_, ok = b.GetHijackHandler([]string{"providerA"}, "Divide")
	assert.False(t, ok)
}

func TestBridgeLockTimeout(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	require.NoError(t, b.Lock("resource", "node1", time.Second))

	err := b.Lock("resource", "node2", 20*time.Millisecond)
	assert.Error(t, err)
	var lockErr *LockTimeoutError
	assert.ErrorAs(t, err, &lockErr)

	b.Unlock("resource", "node1")
	assert.NoError(t, b.Lock("resource", "node2", time.Second))
}

func TestBridgeClear(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	require.NoError(t, b.Set("a", 1, "test"))
	b.Clear()
	assert.Nil(t, b.Get("a", nil))
}

func TestBridgeExportImportState(t *testing.T) {
	backend := newMemoryBackend()
	b := NewBridge("ROOT", backend, nil)
	require.NoError(t, b.Set("a", "x", "test"))
	snap := b.ExportState()

	b2 := NewBridge("ROOT", backend, nil)
	b2.ImportState(snap)
	assert.Equal(t, "x", b2.Get("a", nil))
}
