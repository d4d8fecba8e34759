package protocol

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestVarIntRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		value   int32
		encoded []byte
	}{
		{name: "zero", value: 0, encoded: []byte{0x00}},
		{name: "single byte max", value: 127, encoded: []byte{0x7f}},
		{name: "two bytes", value: 128, encoded: []byte{0x80, 0x01}},
		{name: "255", value: 255, encoded: []byte{0xff, 0x01}},
		{name: "int32 max", value: 2147483647, encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
		{name: "negative one", value: -1, encoded: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeVarInt(&buf, tt.value)
			if diff := cmp.Diff(tt.encoded, buf.Bytes()); diff != "" {
				t.Errorf("encoding did not match; diff:\n%s", diff)
			}
			if got := varIntLen(tt.value); got != len(tt.encoded) {
				t.Errorf("varIntLen() = %d, want %d", got, len(tt.encoded))
			}

			decoded, err := readVarInt(bytes.NewReader(tt.encoded))
			if err != nil {
				t.Fatalf("readVarInt() returned an unexpected error: %v", err)
			}
			if decoded != tt.value {
				t.Errorf("readVarInt() = %d, want %d", decoded, tt.value)
			}
		})
	}
}

func TestReadVarIntRejectsOverlongEncoding(t *testing.T) {
	_, err := readVarInt(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}))
	if err == nil {
		t.Fatal("readVarInt() accepted a six byte encoding")
	}
}

func TestStringRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "empty", value: ""},
		{name: "ascii", value: "steve"},
		{name: "multibyte", value: "héllo wörld"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeString(&buf, tt.value)

			got, err := readString(bytes.NewReader(buf.Bytes()), 255)
			if err != nil {
				t.Fatalf("readString() returned an unexpected error: %v", err)
			}
			if got != tt.value {
				t.Errorf("readString() = %q, want %q", got, tt.value)
			}
		})
	}
}

func TestReadStringEnforcesLimit(t *testing.T) {
	var buf bytes.Buffer
	writeString(&buf, "this is far too long")

	if _, err := readString(bytes.NewReader(buf.Bytes()), 5); err == nil {
		t.Fatal("readString() accepted a string over the limit")
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	id := uuid.MustParse("af74a02d-19cb-445b-b07f-6866a861f783")

	var buf bytes.Buffer
	writeUUID(&buf, id)
	got, err := readUUID(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("readUUID() returned an unexpected error: %v", err)
	}
	if got != id {
		t.Errorf("readUUID() = %s, want %s", got, id)
	}
}
