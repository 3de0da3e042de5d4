// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

type samplePosition struct {
	Network  string    `cbor:"network"`
	Sequence int64     `cbor:"sequence"`
	Time     time.Time `cbor:"time"`
}

func TestRoundTripKeepsMicroseconds(t *testing.T) {
	original := samplePosition{
		Network:  "IU",
		Sequence: 0x1A,
		Time:     time.Date(2002, time.August, 5, 14, 0, 0, 123456000, time.UTC),
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded samplePosition
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Network != original.Network || decoded.Sequence != original.Sequence || !decoded.Time.Equal(original.Time) {
		t.Errorf("round trip = %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"network": "GE", "sequence": 7, "extra": "ignored"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded samplePosition
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Network != "GE" || decoded.Sequence != 7 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	inner, err := Marshal(samplePosition{Network: "IU"})
	if err != nil {
		t.Fatal(err)
	}
	envelope, err := Marshal(struct {
		Body RawMessage `cbor:"body"`
	}{Body: inner})
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Body RawMessage `cbor:"body"`
	}
	if err := Unmarshal(envelope, &decoded); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded.Body, inner) {
		t.Errorf("raw body = %x, want %x", decoded.Body, inner)
	}
}
