package synapse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowControllerPriorityOrdering(t *testing.T) {
	fc := NewFlowController()
	fc.Push("low", nil, "Exec", 1, 0)
	fc.Push("high", nil, "Exec", 10, 0)
	fc.Push("mid", nil, "Exec", 5, 0)

	p, ok := fc.Pop()
	require.True(t, ok)
	assert.Equal(t, "high", p.NodeID)

	p, ok = fc.Pop()
	require.True(t, ok)
	assert.Equal(t, "mid", p.NodeID)

	p, ok = fc.Pop()
	require.True(t, ok)
	assert.Equal(t, "low", p.NodeID)
}

func TestFlowControllerFIFOWithinPriority(t *testing.T) {
	fc := NewFlowController()
	fc.Push("first", nil, "Exec", 0, 0)
	fc.Push("second", nil, "Exec", 0, 0)

	p, _ := fc.Pop()
	assert.Equal(t, "first", p.NodeID)
	p, _ = fc.Pop()
	assert.Equal(t, "second", p.NodeID)
}

func TestFlowControllerDelayedPromotion(t *testing.T) {
	fc := NewFlowController()
	fc.Push("delayed", nil, "Exec", 0, 20)

	_, ok := fc.Pop()
	assert.False(t, ok)
	assert.True(t, fc.OnlyDelayedRemain())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, fc.HasNext())
	p, ok := fc.Pop()
	require.True(t, ok)
	assert.Equal(t, "delayed", p.NodeID)
}

func TestRouteOutputsDefaultCompletionPort(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	fc := NewFlowController()
	wires := []*Wire{{FromNode: "a", FromPort: "Flow", ToNode: "b", ToPort: "Exec"}}

	pulses := fc.RouteOutputs("a", wires, b, []string{"ROOT"}, 0, 0, RouteOptions{})
	require.Len(t, pulses, 1)
	assert.Equal(t, "b", pulses[0].NodeID)
}

func TestRouteOutputsRespectsCondition(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	fc := NewFlowController()
	wires := []*Wire{
		{FromNode: "a", FromPort: "True", ToNode: "whenTrue", ToPort: "Exec"},
		{FromNode: "a", FromPort: "False", ToNode: "whenFalse", ToPort: "Exec"},
	}
	require.NoError(t, b.Set(LegacyKey("a", "Condition"), true, "a"))

	pulses := fc.RouteOutputs("a", wires, b, []string{"ROOT"}, 0, 0, RouteOptions{})
	require.Len(t, pulses, 1)
	assert.Equal(t, "whenTrue", pulses[0].NodeID)
}

func TestRouteOutputsRespectsActivePorts(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	fc := NewFlowController()
	wires := []*Wire{
		{FromNode: "a", FromPort: "Flow", ToNode: "b", ToPort: "Exec"},
		{FromNode: "a", FromPort: "Error Flow", ToNode: "c", ToPort: "Exec"},
	}
	require.NoError(t, b.Set(LegacyKey("a", "ActivePorts"), []any{"Error Flow"}, "a"))

	pulses := fc.RouteOutputs("a", wires, b, []string{"ROOT"}, 0, 0, RouteOptions{})
	require.Len(t, pulses, 1)
	assert.Equal(t, "c", pulses[0].NodeID)
}

func TestRouteOutputsPortExclude(t *testing.T) {
	b := NewBridge("ROOT", nil, nil)
	fc := NewFlowController()
	wires := []*Wire{{FromNode: "provider", FromPort: "Flow", ToNode: "after", ToPort: "Exec"}}

	pulses := fc.RouteOutputs("provider", wires, b, []string{"ROOT"}, 0, 0, RouteOptions{
		PortExclude: legacyCompletionPorts,
	})
	assert.Len(t, pulses, 0)
}
