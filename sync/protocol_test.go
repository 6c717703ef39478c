package sync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStepAddTripleRoundTrip(t *testing.T) {
	s := Step{Kind: StepAddTriple, EntityID: "E1", AttrID: "A1", Value: "hello"}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `["add-triple","E1","A1","hello"]`, string(b))

	var out Step
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, s.Kind, out.Kind)
	require.Equal(t, s.EntityID, out.EntityID)
	require.Equal(t, s.AttrID, out.AttrID)
	require.Equal(t, s.Value, out.Value)
}

func TestStepDeleteEntityRoundTrip(t *testing.T) {
	s := Step{Kind: StepDeleteEntity, EntityID: "E1", Namespace: "todos"}
	b, err := json.Marshal(s)
	require.NoError(t, err)

	var out Step
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, StepDeleteEntity, out.Kind)
	require.Equal(t, "E1", out.EntityID)
	require.Equal(t, "todos", out.Namespace)
}

func TestStepAddAttrRoundTrip(t *testing.T) {
	s := Step{Kind: StepAddAttr, Descriptor: &AttrDescriptorPayload{ID: "A1", ForwardIdentity: []string{"_", "todos", "text"}}}
	b, err := json.Marshal(s)
	require.NoError(t, err)

	var out Step
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, StepAddAttr, out.Kind)
	require.NotNil(t, out.Descriptor)
	require.Equal(t, "A1", out.Descriptor.ID)
	require.Equal(t, []string{"_", "todos", "text"}, out.Descriptor.ForwardIdentity)
}

func TestStepUnmarshalUnknownKindDoesNotError(t *testing.T) {
	var out Step
	err := json.Unmarshal([]byte(`["mystery-step", 1, 2]`), &out)
	require.NoError(t, err)
	require.Equal(t, StepKind("mystery-step"), out.Kind)
}

func TestDecodeFrameKeepsRawBytes(t *testing.T) {
	f, err := decodeFrame([]byte(`{"op":"init-ok","session-id":"s1"}`))
	require.NoError(t, err)
	require.Equal(t, "init-ok", f.Op)
	require.NotEmpty(t, f.Raw)
}
