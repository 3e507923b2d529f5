package wireformat

import (
	"bytes"
	"testing"
)

func TestVarIntRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000, 1 << 40}
	for _, v := range values {
		var buf bytes.Buffer
		if err := WriteVarInt(&buf, v); err != nil {
			t.Fatalf("WriteVarInt(%d): %v", v, err)
		}
		got, err := ReadVarInt(&buf)
		if err != nil {
			t.Fatalf("ReadVarInt after writing %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %d: got %d", v, got)
		}
	}
}

func TestReadVarIntRejectsNonCanonicalEncoding(t *testing.T) {
	cases := [][]byte{
		{0xfd, 0x0a, 0x00},             // 10 encoded as 3-byte form, should be 1 byte
		{0xfe, 0xff, 0x00, 0x00, 0x00}, // 255 encoded as 5-byte form
		{0xff, 0x01, 0, 0, 0, 0, 0, 0, 0}, // 1 encoded as 9-byte form
	}
	for _, c := range cases {
		if _, err := ReadVarInt(bytes.NewReader(c)); err != ErrNonCanonicalVarInt {
			t.Fatalf("expected ErrNonCanonicalVarInt for %x, got %v", c, err)
		}
	}
}

func TestReadVarIntTruncated(t *testing.T) {
	if _, err := ReadVarInt(bytes.NewReader([]byte{0xfd, 0x01})); err == nil {
		t.Fatal("expected error reading truncated varint")
	}
}

func TestDoubleSHA256Deterministic(t *testing.T) {
	a := DoubleSHA256([]byte("doge"))
	b := DoubleSHA256([]byte("doge"))
	if a != b {
		t.Fatal("expected DoubleSHA256 to be deterministic")
	}
	c := DoubleSHA256([]byte("shib"))
	if a == c {
		t.Fatal("expected different input to produce a different digest")
	}
}
