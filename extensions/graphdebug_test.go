package extensions

import (
	"bytes"
	"log/slog"
	"testing"

	synapse "github.com/synapse-engine/synapse"
	"github.com/stretchr/testify/assert"
)

func TestGraphDebugOnNodeErrorLogsTopology(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	wires := []*synapse.Wire{
		{FromNode: "a", FromPort: "Flow", ToNode: "b", ToPort: "Exec"},
	}
	adj := synapse.BuildWireAdjacency(wires)
	names := map[string]string{"a": "NodeA", "b": "NodeB"}

	ext := NewGraphDebugExtension(logger, adj, names)
	ext.OnNodeError("a", "boom")

	out := buf.String()
	assert.Contains(t, out, "node error")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "NodeA")
}

func TestGraphDebugDefaultsLoggerWhenNil(t *testing.T) {
	assert.NotPanics(t, func() {
		ext := NewGraphDebugExtension(nil, nil, nil)
		ext.OnNodeError("a", "boom")
	})
}

func TestGraphDebugLabelFallsBackToID(t *testing.T) {
	ext := NewGraphDebugExtension(slog.Default(), synapse.BuildWireAdjacency(nil), nil)
	assert.Equal(t, "unknown-node", ext.label("unknown-node"))
}
