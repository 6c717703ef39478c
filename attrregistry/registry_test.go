package attrregistry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/relaydb-go/attrregistry"
)

func TestAddAndLookup(t *testing.T) {
	r := attrregistry.New()
	require.True(t, r.Add(attrregistry.Descriptor{ID: "attr-1", Namespace: "todos", AttributeName: "text"}))

	id, ok := r.AttrID("todos", "text")
	require.True(t, ok)
	require.Equal(t, "attr-1", id)

	d, ok := r.Lookup("attr-1")
	require.True(t, ok)
	require.Equal(t, "todos", d.Namespace)
}

func TestAppendOnlyNeverRemaps(t *testing.T) {
	// once attr-1 maps to (todos, text), it never maps to anything else.
	r := attrregistry.New()
	require.True(t, r.Add(attrregistry.Descriptor{ID: "attr-1", Namespace: "todos", AttributeName: "text"}))

	ok := r.Add(attrregistry.Descriptor{ID: "attr-1", Namespace: "todos", AttributeName: "title"})
	require.False(t, ok)

	d, _ := r.Lookup("attr-1")
	require.Equal(t, "text", d.AttributeName)
}

func TestReAddingSameDescriptorIsFine(t *testing.T) {
	r := attrregistry.New()
	d := attrregistry.Descriptor{ID: "attr-1", Namespace: "todos", AttributeName: "text"}
	require.True(t, r.Add(d))
	require.True(t, r.Add(d))
	require.Equal(t, 1, r.Len())
}

func TestUnknownAttrIDNotFound(t *testing.T) {
	r := attrregistry.New()
	_, ok := r.Lookup("nope")
	require.False(t, ok)
	_, ok = r.AttrID("todos", "nope")
	require.False(t, ok)
}
