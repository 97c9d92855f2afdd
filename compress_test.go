package kdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"
)

// -18!2000#1b
var bytes2KTrue = []byte{0x01, 0x00, 0x01, 0x00, 0x26, 0x00, 0x00, 0x00, 0xde, 0x07, 0x00, 0x00, 0x00, 0x01, 0x00, 0xd0, 0x07, 0x00, 0x00, 0x01, 0x01, 0xff, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff, 0x00, 0xc5}

func TestCompress(t *testing.T) {
	true2K := make([]bool, 2000)
	for i := range true2K {
		true2K[i] = true
	}
	buf := new(bytes.Buffer)
	_ = Encode(buf, ASYNC, &K{KB, NONE, true2K})
	bc := buf.Bytes()
	if !bytes.Equal(bc, bytes2KTrue) {
		t.Errorf("Compress failed expected/got: \n%v\n%v\n", bytes2KTrue, bc)
	}
}

func TestUncompress(t *testing.T) {
	true2K := make([]bool, 2000)
	for i := range true2K {
		true2K[i] = true
	}
	buf := new(bytes.Buffer)
	_ = Encode(buf, ASYNC, &K{KB, NONE, true2K})
	uc2, err := Uncompress(bytes2KTrue[8:], binary.LittleEndian)
	if err != nil {
		t.Fatalf("Uncompress(fixture) failed: %s", err)
	}
	uc1, err := Uncompress(buf.Bytes()[8:], binary.LittleEndian)
	if err != nil {
		t.Fatalf("Uncompress(encoded) failed: %s", err)
	}
	if !bytes.Equal(uc1, uc2) {
		t.Errorf("Uncompress failed expected/got: \n%v\n%v\n", uc2, uc1)
	}
}

func TestUncompressRejectsTruncated(t *testing.T) {
	for n := 0; n < len(bytes2KTrue[8:]); n++ {
		_, err := Uncompress(bytes2KTrue[8:8+n], binary.LittleEndian)
		if err == nil {
			t.Fatalf("Uncompress accepted a stream truncated to %d bytes", n)
		}
	}
}

func TestCompressRoundtrip(t *testing.T) {
	true2K := make([]bool, 2000)
	for i := range true2K {
		true2K[i] = true
	}
	k1 := &K{KB, NONE, true2K}
	buf := new(bytes.Buffer)
	if err := Encode(buf, ASYNC, k1); err != nil {
		t.Fatalf("Encode failed: %s", err)
	}
	k2, _, err := Decode(bufio.NewReader(buf))
	if err != nil {
		t.Fatalf("Decode failed: %s", err)
	}
	if !reflect.DeepEqual(k1, k2) {
		t.Errorf("Roundtrip failed expected/got: \n%v\n%v\n", k1, k2)
	}
}

func TestCompressRoundtripBigEndian(t *testing.T) {
	true2K := make([]bool, 2000)
	for i := range true2K {
		true2K[i] = true
	}
	k1 := &K{KB, NONE, true2K}
	buf := new(bytes.Buffer)
	if err := EncodeWithEndianness(buf, ASYNC, k1, binary.BigEndian); err != nil {
		t.Fatalf("EncodeWithEndianness failed: %s", err)
	}
	raw := buf.Bytes()
	if raw[0] != 0 {
		t.Fatalf("expected a big-endian byte-order flag, got %#x", raw[0])
	}
	if raw[2] != 1 {
		t.Fatalf("2000 bools should have compressed, got Compressed flag %#x", raw[2])
	}
	k2, _, err := Decode(bufio.NewReader(buf))
	if err != nil {
		t.Fatalf("Decode failed: %s", err)
	}
	if !reflect.DeepEqual(k1, k2) {
		t.Errorf("big-endian compressed roundtrip failed expected/got: \n%v\n%v\n", k1, k2)
	}
}

func BenchmarkUncompress(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Uncompress(bytes2KTrue[8:], binary.LittleEndian)
	}
}
