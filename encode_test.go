package kdb

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/nu7hatch/gouuid"
)

var encodingTests = []struct {
	desc     string
	input    *K
	expected []byte
}{
	// Boolean
	{"0b", &K{-KB, NONE, false}, []byte{0x01, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00, 0xff, 0x00}},
	{"01b", &K{KB, NONE, []bool{false, true}}, []byte{0x01, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x01}},

	// UUID
	{"8c6b8b64-6815-6084-0a3e-178401251b68", &K{-UU, NONE, uuid.UUID{0x8c, 0x6b, 0x8b, 0x64, 0x68, 0x15, 0x60, 0x84, 0x0a, 0x3e, 0x17, 0x84, 0x01, 0x25, 0x1b, 0x68}},
		[]byte{0x01, 0x00, 0x00, 0x00, 0x19, 0x00, 0x00, 0x00, 0xfe, 0x8c, 0x6b, 0x8b, 0x64, 0x68, 0x15, 0x60, 0x84, 0x0a, 0x3e, 0x17, 0x84, 0x01, 0x25, 0x1b, 0x68}},
	{"00010203-... 10111213-...", &K{UU, NONE, []uuid.UUID{
		{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f},
		{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f},
	}}, []byte{
		0x01, 0x00, 0x00, 0x00, 0x2e, 0x00, 0x00, 0x00, 0x02, 0x00, 0x02, 0x00, 0x00, 0x00,
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
		0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f,
	}},

	// Byte/Int8
	{"0x01", &K{-KG, NONE, byte(1)}, []byte{0x01, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x00, 0xfc, 0x01}},
	{"0x0102", &K{KG, NONE, []byte{1, 2}}, []byte{0x01, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x04, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01, 0x02}},

	// Short/Int16
	{"1h", &K{-KH, NONE, int16(1)}, []byte{0x01, 0x00, 0x00, 0x00, 0x0b, 0x00, 0x00, 0x00, 0xfb, 0x01, 0x00}},
	{"1 2h", &K{KH, NONE, []int16{1, 2}}, []byte{0x01, 0x00, 0x00, 0x00, 0x12, 0x00, 0x00, 0x00, 0x05, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00}},

	// Int/Int32
	{"1i", Int(1), []byte{0x01, 0x00, 0x00, 0x00, 0x0d, 0x00, 0x00, 0x00, 0xfa, 0x01, 0x00, 0x00, 0x00}},
	{"1 2i", &K{KI, NONE, []int32{1, 2}}, []byte{0x01, 0x00, 0x00, 0x00, 0x16, 0x00, 0x00, 0x00, 0x06, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}},

	// Long/Int64
	{"1j", Long(1), []byte{0x01, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00, 0xf9, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
	{"1 2j", &K{KJ, NONE, []int64{1, 2}}, []byte{0x01, 0x00, 0x00, 0x00, 0x1e, 0x00, 0x00, 0x00, 0x07, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},

	// Real/float32, Float/float64
	{"1.5e", Real(1.5), []byte{0x01, 0x00, 0x00, 0x00, 0x0d, 0x00, 0x00, 0x00, 0xf8, 0x00, 0x00, 0xc0, 0x3f}},
	{"1.5f", Float(1.5), []byte{0x01, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00, 0xf7, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf8, 0x3f}},

	{`"GOOG"`, &K{KC, NONE, "GOOG"}, []byte{0x01, 0x00, 0x00, 0x00, 0x12, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x04, 0x00, 0x00, 0x00, 0x47, 0x4f, 0x4f, 0x47}},
	{"`abc`bc`c", SymbolV([]string{"abc", "bc", "c"}), []byte{
		0x01, 0x00, 0x00, 0x00, 0x17, 0x00, 0x00, 0x00, 0x0b, 0x00, 0x03, 0x00, 0x00, 0x00,
		0x61, 0x62, 0x63, 0x00, 0x62, 0x63, 0x00, 0x63, 0x00,
	}},
	{"`a`b!2 3", NewDict(SymbolV([]string{"a", "b"}), &K{KI, NONE, []int32{2, 3}}), []byte{
		0x01, 0x00, 0x00, 0x00, 0x21, 0x00, 0x00, 0x00, 0x63,
		0x0b, 0x00, 0x02, 0x00, 0x00, 0x00, 0x61, 0x00, 0x62, 0x00,
		0x06, 0x00, 0x02, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
	}},
	{"'type", Error(errors.New("type")), []byte{0x01, 0x00, 0x00, 0x00, 0x0e, 0x00, 0x00, 0x00, 0x80, 0x74, 0x79, 0x70, 0x65, 0x00}},
	{"(\"ac\";`b;`)", NewList(&K{KC, NONE, "ac"}, Symbol("b"), Symbol("")), []byte{
		0x01, 0x00, 0x00, 0x00, 0x1b, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
		0x0a, 0x00, 0x02, 0x00, 0x00, 0x00, 0x61, 0x63,
		0xf5, 0x62, 0x00,
		0xf5, 0x00,
	}},
	{"([]a:enlist 2;b:enlist 3)", NewTable([]string{"a", "b"},
		[]*K{{KI, NONE, []int32{2}}, {KI, NONE, []int32{3}}}), []byte{
		0x01, 0x00, 0x00, 0x00, 0x2f, 0x00, 0x00, 0x00,
		0x62, 0x00,
		0x63,
		0x0b, 0x00, 0x02, 0x00, 0x00, 0x00, 0x61, 0x00, 0x62, 0x00,
		0x00, 0x00, 0x02, 0x00, 0x00, 0x00,
		0x06, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00,
		0x06, 0x00, 0x01, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
	}},

	// Temporal atoms, one nanosecond (timestamp, timespan) or five
	// units (month, date, minute, second, time) past their respective
	// epoch so the payload bytes stay easy to read by eye.
	{"2000.01.01D00:00:00.000000001", Timestamp(qEpoch.Add(1)), []byte{
		0x01, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00,
		0xf4, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}},
	{"2000.06m", MonthAtom(qEpoch.AddDate(0, 5, 0)), []byte{
		0x01, 0x00, 0x00, 0x00, 0x0d, 0x00, 0x00, 0x00,
		0xf3, 0x05, 0x00, 0x00, 0x00,
	}},
	{"2000.01.06", Date(qEpoch.AddDate(0, 0, 5)), []byte{
		0x01, 0x00, 0x00, 0x00, 0x0d, 0x00, 0x00, 0x00,
		0xf2, 0x05, 0x00, 0x00, 0x00,
	}},
	{"0D00:00:00.000000001", Timespan(1), []byte{
		0x01, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00,
		0xf0, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}},
	{"00:05", MinuteOf(5), []byte{
		0x01, 0x00, 0x00, 0x00, 0x0d, 0x00, 0x00, 0x00,
		0xef, 0x05, 0x00, 0x00, 0x00,
	}},
	{"00:00:05", SecondOf(5), []byte{
		0x01, 0x00, 0x00, 0x00, 0x0d, 0x00, 0x00, 0x00,
		0xee, 0x05, 0x00, 0x00, 0x00,
	}},
	{"00:00:00.005", TimeOf(5), []byte{
		0x01, 0x00, 0x00, 0x00, 0x0d, 0x00, 0x00, 0x00,
		0xed, 0x05, 0x00, 0x00, 0x00,
	}},

	// Temporal vectors, two elements each so both the length field and
	// per-element striding get exercised.
	{"2000.01.01D00:00:00.000000000 2000.01.01D00:00:00.000000001",
		TimestampV([]time.Time{qEpoch, qEpoch.Add(1)}), []byte{
			0x01, 0x00, 0x00, 0x00, 0x1e, 0x00, 0x00, 0x00,
			0x0c, 0x00, 0x02, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}},
	{"2000.01.06 2000.01.07", DateV([]time.Time{qEpoch.AddDate(0, 0, 5), qEpoch.AddDate(0, 0, 6)}), []byte{
		0x01, 0x00, 0x00, 0x00, 0x16, 0x00, 0x00, 0x00,
		0x0e, 0x00, 0x02, 0x00, 0x00, 0x00,
		0x05, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00,
	}},

	// ([]t:enlist 2000.01.01D00:00:00.000000000) - a one-column,
	// one-row table whose only column is a timestamp vector.
	{"([]t:enlist 2000.01.01D)", NewTable([]string{"t"}, []*K{TimestampV([]time.Time{qEpoch})}), []byte{
		0x01, 0x00, 0x00, 0x00, 0x27, 0x00, 0x00, 0x00,
		0x62, 0x00,
		0x63,
		0x0b, 0x00, 0x01, 0x00, 0x00, 0x00, 0x74, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
		0x0c, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}},
}

// TestEncodeDatetimeRequiresOptIn checks that encoding a KZ (datetime)
// value without EncodeOptions.EmitDeprecatedDateTime fails, and that
// setting it lets the same value through with the documented
// days-since-epoch-as-float64 wire form.
func TestEncodeDatetimeRequiresOptIn(t *testing.T) {
	k := Datetime(qEpoch)
	buf := new(bytes.Buffer)
	if err := Encode(buf, ASYNC, k); !errors.Is(err, ErrTypeError) {
		t.Fatalf("expected ErrTypeError encoding KZ without opt-in, got %v", err)
	}

	buf.Reset()
	opts := EncodeOptions{EmitDeprecatedDateTime: true}
	if err := EncodeOpts(buf, ASYNC, k, opts); err != nil {
		t.Fatalf("EncodeOpts with opt-in failed: %s", err)
	}
	want := []byte{
		0x01, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00,
		0xf1, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("encoded datetime atom incorrectly.\nExpected %#v\ngot      %#v\n", want, buf.Bytes())
	}

	vec := DatetimeV([]time.Time{qEpoch, qEpoch})
	buf.Reset()
	if err := EncodeOpts(buf, ASYNC, vec, opts); err != nil {
		t.Fatalf("EncodeOpts with opt-in failed for vector: %s", err)
	}
	wantVec := []byte{
		0x01, 0x00, 0x00, 0x00, 0x1e, 0x00, 0x00, 0x00,
		0x0f, 0x00, 0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(buf.Bytes(), wantVec) {
		t.Errorf("encoded datetime vector incorrectly.\nExpected %#v\ngot      %#v\n", wantVec, buf.Bytes())
	}

	got, mode, err := DecodeOpts(bufio.NewReader(buf), DecodeOptions{})
	if err != nil {
		t.Fatalf("decoding datetime vector: %s", err)
	}
	if mode != ASYNC {
		t.Errorf("decoded mode = %v, want ASYNC", mode)
	}
	if got.String() != vec.String() {
		t.Errorf("datetime vector roundtrip mismatch: sent %v, got %v", vec, got)
	}
}

func TestEncoding(t *testing.T) {
	for _, tt := range encodingTests {
		buf := new(bytes.Buffer)
		err := Encode(buf, ASYNC, tt.input)
		if err != nil {
			t.Errorf("Encoding %q failed: %s", tt.desc, err)
			continue
		}
		if !bytes.Equal(buf.Bytes(), tt.expected) {
			t.Errorf("Encoded %q incorrectly.\nExpected %#v\ngot      %#v\n", tt.desc, tt.expected, buf.Bytes())
		}
	}
}

// roundtripTests covers values whose wire form is easiest to verify by
// decoding what was just encoded, rather than hand-deriving byte
// literals: keyed tables, dictionaries of vectors and functions.
var roundtripTests = []*K{
	NewKeyedTable([]string{"a"}, []*K{{KI, NONE, []int32{2}}}, []string{"b"}, []*K{{KI, NONE, []int32{3}}}),
	NewDict(SymbolV([]string{"a", "b"}), &K{K0, NONE, []*K{{KI, NONE, []int32{2}}, {KI, NONE, []int32{3}}}}),
	NewFunc("", "{x+y}"),
	NewFunc("d", "{x+y}"),
	MonthV([]Month{5, 6}),
	TimespanV([]time.Duration{0, 1}),
	MinuteV([]Minute{0, 5}),
	SecondV([]Second{0, 5}),
	TimeV([]Time{0, 5}),
	NewTable([]string{"t"}, []*K{TimestampV([]time.Time{qEpoch, qEpoch.Add(1)})}),
}

// TestDecodeTableRejectsMismatchedColumnLengths is the decode-side
// mirror of table.go's FlipE: a wire table whose columns don't all
// have the same length must be rejected as malformed, not accepted
// into an inconsistent *K. The fixture is "([]a:enlist 2;b:enlist 3)"
// from encodingTests with column b widened to two elements without
// updating a to match.
func TestDecodeTableRejectsMismatchedColumnLengths(t *testing.T) {
	raw := []byte{
		0x01, 0x00, 0x00, 0x00, 0x33, 0x00, 0x00, 0x00,
		0x62, 0x00,
		0x63,
		0x0b, 0x00, 0x02, 0x00, 0x00, 0x00, 0x61, 0x00, 0x62, 0x00,
		0x00, 0x00, 0x02, 0x00, 0x00, 0x00,
		0x06, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00,
		0x06, 0x00, 0x02, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00,
	}
	_, _, err := Decode(bufio.NewReader(bytes.NewReader(raw)))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage for a table with mismatched column lengths, got %v", err)
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	for _, k := range roundtripTests {
		buf := new(bytes.Buffer)
		if err := Encode(buf, ASYNC, k); err != nil {
			t.Errorf("encoding %v: %s", k, err)
			continue
		}
		got, mode, err := Decode(bufio.NewReader(buf))
		if err != nil {
			t.Errorf("decoding %v: %s", k, err)
			continue
		}
		if mode != ASYNC {
			t.Errorf("decoded mode = %v, want ASYNC", mode)
		}
		if got.String() != k.String() {
			t.Errorf("roundtrip mismatch: sent %v, got %v", k, got)
		}
	}
}
