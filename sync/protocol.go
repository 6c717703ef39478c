/*
Package sync implements the Sync Engine: owns the remote WebSocket
connection and makes local and remote state converge, per the session
lifecycle, outbound translation, inbound dispatch, and query-response
decoding rules.

PURPOSE:
  sync.Engine is the only component that speaks the wire protocol. It
  turns locally-applied Transactions into outbound frames, and turns
  inbound frames into locally-applied (synced) Transactions, keeping the
  Attribute Registry and query-result cache current along the way.

KEY CONCEPTS IN THIS FILE (protocol.go):
  - Frame: the outer {op, ...} wire envelope
  - Step: one tx-steps array entry, with a custom JSON codec since its
    shape is heterogeneous ([string, ...] rather than a fixed struct)

SEE ALSO:
  - engine.go: state machine and dispatch loop
  - outbound.go: local transaction -> wire-step translation
  - inbound.go: op dispatch table
  - querydecode.go: datalog/collection decoding, differential deletion
*/
package sync

import (
	"encoding/json"
	"fmt"
)

// Frame is the outer wire envelope every message (in either direction)
// carries.
type Frame struct {
	Op            string          `json:"op"`
	Raw           json.RawMessage `json:"-"`
	ClientEventID string          `json:"client-event-id,omitempty"`
}

// decodeFrame parses the outer envelope, keeping the raw bytes so
// handlers can decode op-specific fields themselves.
func decodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("sync: decode frame: %w", err)
	}
	f.Raw = raw
	return f, nil
}

// StepKind identifies the three recognised tx-steps entries.
type StepKind string

const (
	StepAddTriple    StepKind = "add-triple"
	StepDeleteEntity StepKind = "delete-entity"
	StepAddAttr      StepKind = "add-attr"
)

// Step is one tx-steps array entry. Its wire shape is a heterogeneous
// JSON array, not an object, so it gets a custom MarshalJSON/UnmarshalJSON
// rather than struct tags.
type Step struct {
	Kind       StepKind
	EntityID   string // add-triple, delete-entity
	AttrID     string // add-triple
	Value      any    // add-triple
	Namespace  string // delete-entity
	Descriptor *AttrDescriptorPayload // add-attr
}

// AttrDescriptorPayload is the inbound add-attr step's payload, matching
// the shape the Attribute Registry is populated from on init-ok.
type AttrDescriptorPayload struct {
	ID              string   `json:"id"`
	ForwardIdentity []string `json:"forward-identity"`
}

// MarshalJSON renders a Step as its wire array form.
func (s Step) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StepAddTriple:
		return json.Marshal([]any{string(s.Kind), s.EntityID, s.AttrID, s.Value})
	case StepDeleteEntity:
		return json.Marshal([]any{string(s.Kind), s.EntityID, s.Namespace})
	case StepAddAttr:
		return json.Marshal([]any{string(s.Kind), s.Descriptor})
	default:
		return nil, fmt.Errorf("sync: marshal step: unknown kind %q", s.Kind)
	}
}

// UnmarshalJSON parses a Step from its wire array form. Unrecognised
// kinds are kept as a zero-value Step with Kind set so callers can log
// and skip rather than fail the whole batch.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sync: unmarshal step: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("sync: unmarshal step: empty array")
	}
	var kind string
	if err := json.Unmarshal(raw[0], &kind); err != nil {
		return fmt.Errorf("sync: unmarshal step: kind: %w", err)
	}
	s.Kind = StepKind(kind)

	switch s.Kind {
	case StepAddTriple:
		if len(raw) < 4 {
			return fmt.Errorf("sync: add-triple step: expected 4 elements, got %d", len(raw))
		}
		_ = json.Unmarshal(raw[1], &s.EntityID)
		_ = json.Unmarshal(raw[2], &s.AttrID)
		var v any
		if err := json.Unmarshal(raw[3], &v); err != nil {
			return fmt.Errorf("sync: add-triple step: value: %w", err)
		}
		s.Value = v
	case StepDeleteEntity:
		if len(raw) < 3 {
			return fmt.Errorf("sync: delete-entity step: expected 3 elements, got %d", len(raw))
		}
		_ = json.Unmarshal(raw[1], &s.EntityID)
		_ = json.Unmarshal(raw[2], &s.Namespace)
	case StepAddAttr:
		if len(raw) < 2 {
			return fmt.Errorf("sync: add-attr step: expected 2 elements, got %d", len(raw))
		}
		var d AttrDescriptorPayload
		if err := json.Unmarshal(raw[1], &d); err != nil {
			return fmt.Errorf("sync: add-attr step: descriptor: %w", err)
		}
		s.Descriptor = &d
	default:
		// unknown kind: leave fields zeroed, caller logs and skips.
	}
	return nil
}

// initFrame builds the outbound "init" message.
func initFrame(appID, refreshToken, clientEventID string) map[string]any {
	m := map[string]any{
		"op":              "init",
		"app-id":          appID,
		"client-event-id": clientEventID,
		"versions":        map[string]string{"client": "relaydb-go"},
	}
	if refreshToken != "" {
		m["refresh-token"] = refreshToken
	} else {
		m["refresh-token"] = nil
	}
	return m
}

// transactFrame builds the outbound "transact" message.
func transactFrame(steps []Step, clientEventID string, createdMillis int64, order int) map[string]any {
	return map[string]any{
		"op":              "transact",
		"tx-steps":        steps,
		"created":         createdMillis,
		"order":           order,
		"client-event-id": clientEventID,
	}
}

// addQueryFrame builds the outbound "add-query" message.
func addQueryFrame(q any, clientEventID, sessionID string) map[string]any {
	return map[string]any{
		"op":              "add-query",
		"q":               q,
		"client-event-id": clientEventID,
		"session-id":      sessionID,
		"subscribe":       true,
	}
}

// joinRoomFrame / leaveRoomFrame build the room passthrough messages.
func joinRoomFrame(roomType, roomID, clientEventID string) map[string]any {
	return map[string]any{"op": "join-room", "room-type": roomType, "room-id": roomID, "client-event-id": clientEventID}
}

func leaveRoomFrame(roomType, roomID, clientEventID string) map[string]any {
	return map[string]any{"op": "leave-room", "room-type": roomType, "room-id": roomID, "client-event-id": clientEventID}
}
