package props

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupDirect(t *testing.T) {
	bag := Bag{"Message": "hello"}
	v, ok := Lookup(bag, "Message")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestLookupCaseInsensitive(t *testing.T) {
	bag := Bag{"message": "hello"}
	v, ok := Lookup(bag, "Message")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestLookupAlias(t *testing.T) {
	bag := Bag{"value": 42}
	v, ok := Lookup(bag, "result")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestLookupMiss(t *testing.T) {
	_, ok := Lookup(Bag{"a": 1}, "b")
	assert.False(t, ok)
}

func TestLookupNilBag(t *testing.T) {
	_, ok := Lookup(nil, "anything")
	assert.False(t, ok)
}

func TestGetTypedConversion(t *testing.T) {
	source := map[string]any{"count": int64(5)}
	v, err := Get[int](source, "count")
	assert.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestGetMissingKey(t *testing.T) {
	_, err := Get[string](map[string]any{}, "missing")
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	source := map[string]any{}
	Set(source, "k", "v")
	assert.Equal(t, "v", source["k"])
}
