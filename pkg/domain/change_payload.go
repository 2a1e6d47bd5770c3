package domain

import "encoding/json"

// ChangePayload wraps a JSON snapshot of an entity captured before or after a
// mutation. Rules decode it into the concrete entity type they care about.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload builds a payload from raw JSON. The bytes are cloned so
// callers cannot mutate recorded history.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// NewChangePayloadFromValue marshals an entity into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{defined: true, raw: raw}, nil
}

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p ChangePayload) IsEmpty() bool {
	return !p.defined || len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// DecodePayload decodes a payload into T. It reports false when the payload is
// undefined, empty or does not unmarshal into T.
func DecodePayload[T any](payload ChangePayload) (T, bool) {
	var out T
	if payload.IsEmpty() {
		return out, false
	}
	if err := json.Unmarshal(payload.raw, &out); err != nil {
		return out, false
	}
	return out, true
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
