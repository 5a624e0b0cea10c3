package synapse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortRegistryRegisterIdempotent(t *testing.T) {
	r := NewPortRegistry()
	id1 := r.Register("n1", "Flow", DirectionOutput, "Start")
	id2 := r.Register("n1", "Flow", DirectionOutput, "Start")
	assert.Equal(t, id1, id2)
}

func TestPortRegistryCaseInsensitive(t *testing.T) {
	r := NewPortRegistry()
	id1 := r.Register("n1", "Flow", DirectionOutput, "Start")
	id2 := r.Register("n1", "FLOW", DirectionOutput, "Start")
	assert.Equal(t, id1, id2)
}

func TestPortRegistryDistinctDirections(t *testing.T) {
	r := NewPortRegistry()
	out := r.Register("n1", "Flow", DirectionOutput, "Start")
	in := r.Register("n1", "Flow", DirectionInput, "Start")
	assert.NotEqual(t, out, in)
}

func TestPortRegistryGetIdentifierMiss(t *testing.T) {
	r := NewPortRegistry()
	_, ok := r.GetIdentifier("never", "registered", DirectionOutput)
	assert.False(t, ok)
}

func TestPortRegistryResolve(t *testing.T) {
	r := NewPortRegistry()
	id := r.Register("n1", "Flow", DirectionOutput, "Start")
	name, ok := r.Resolve(id)
	assert.True(t, ok)
	assert.Equal(t, "Start.Flow", name)
}

func TestLegacyKeyFormat(t *testing.T) {
	assert.Equal(t, "n1_Flow", LegacyKey("n1", "Flow"))
}
