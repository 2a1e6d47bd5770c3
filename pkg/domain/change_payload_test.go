package domain

import (
	"encoding/json"
	"testing"
)

func TestChangePayloadDefinedAndEmpty(t *testing.T) {
	var undefined ChangePayload
	if undefined.Defined() || !undefined.IsEmpty() || undefined.Raw() != nil {
		t.Fatalf("expected zero payload to be undefined and empty")
	}

	empty := NewChangePayload(nil)
	if !empty.Defined() || !empty.IsEmpty() {
		t.Fatalf("expected defined empty payload")
	}

	raw := json.RawMessage(`{"id":"123"}`)
	defined := NewChangePayload(raw)
	raw[2] = 'X'
	if string(defined.Raw()) != `{"id":"123"}` {
		t.Fatalf("payload must not alias caller bytes: %s", defined.Raw())
	}
	out := defined.Raw()
	out[2] = 'Y'
	if string(defined.Raw()) != `{"id":"123"}` {
		t.Fatalf("Raw must return a copy")
	}
}

func TestDecodePayload(t *testing.T) {
	payload, err := NewChangePayloadFromValue(Release{Base: Base{ID: "r1"}, Status: ReleasePending})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	release, ok := DecodePayload[Release](payload)
	if !ok || release.ID != "r1" || release.Status != ReleasePending {
		t.Fatalf("unexpected decode %+v", release)
	}
	if _, ok := DecodePayload[Release](ChangePayload{}); ok {
		t.Fatalf("expected undefined payload to fail decode")
	}
	if _, ok := DecodePayload[Release](NewChangePayload(json.RawMessage(`[1,2]`))); ok {
		t.Fatalf("expected mismatched payload to fail decode")
	}
}
