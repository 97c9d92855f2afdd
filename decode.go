package kdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"time"
	"unicode/utf8"

	"github.com/golang/glog"
)

// DecodeOptions controls policy choices the wire format leaves to the
// implementer (spec's open questions).
type DecodeOptions struct {
	// StrictUTF8 rejects symbol payloads that are not valid UTF-8 with
	// MalformedMessage. Default (false) stores the bytes as-is,
	// matching the documented tolerance of the reference source.
	StrictUTF8 bool
}

// Decode reads one q-IPC frame from r: the 8-byte header, then exactly
// header.MsgSize-8 further bytes, decompressing first if the header's
// compressed flag is set. On success it returns one fully-formed K
// value and the message's mode; it is a MalformedMessage error if any
// payload bytes remain unconsumed.
func Decode(r *bufio.Reader) (*K, MessageType, error) {
	return DecodeOpts(r, DecodeOptions{})
}

// DecodeOpts is Decode with explicit policy options.
func DecodeOpts(r *bufio.Reader, opts DecodeOptions) (*K, MessageType, error) {
	var raw [8]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, ErrPeerClosed
		}
		return nil, 0, err
	}
	h := ipcHeader{
		ByteOrder:  raw[0],
		Mode:       raw[1],
		Compressed: raw[2],
		Reserved:   raw[3],
	}
	order := h.order()
	if h.Mode > byte(RESPONSE) {
		return nil, 0, malformed("unknown message mode %d", h.Mode)
	}
	h.MsgSize = int32(order.Uint32(raw[4:8]))
	if h.MsgSize < 8 {
		return nil, 0, malformed("declared frame length %d is shorter than the header", h.MsgSize)
	}
	// try to pull the whole message in with one syscall when it fits.
	r.Peek(int(h.MsgSize - 8))
	body := make([]byte, h.MsgSize-8)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, ErrPeerClosed
		}
		return nil, 0, err
	}
	if h.Compressed == 1 {
		uncompressed, err := Uncompress(body, order)
		if err != nil {
			return nil, MessageType(h.Mode), err
		}
		if len(uncompressed) < 8 {
			return nil, MessageType(h.Mode), malformed("decompressed message shorter than a header")
		}
		body = uncompressed[8:]
	}
	dr := newByteReader(body, order, opts)
	data, err := dr.readK()
	if err != nil {
		return nil, MessageType(h.Mode), err
	}
	if dr.remaining() != 0 {
		return nil, MessageType(h.Mode), malformed("%d trailing bytes after decoded message", dr.remaining())
	}
	return data, MessageType(h.Mode), nil
}

// byteReader is a small cursor over an in-memory payload, used instead
// of re-wrapping in another bufio.Reader so remaining() can report
// leftover bytes precisely per the "no trailing bytes" requirement.
type byteReader struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
	opts  DecodeOptions
}

func newByteReader(buf []byte, order binary.ByteOrder, opts DecodeOptions) *byteReader {
	return &byteReader{buf: buf, order: order, opts: opts}
}

func (r *byteReader) remaining() int { return len(r.buf) - r.pos }

func (r *byteReader) need(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, malformed("need %d bytes but only %d remain", n, r.remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) int8() (int8, error) {
	b, err := r.need(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *byteReader) byte() (byte, error) {
	b, err := r.need(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) int16() (int16, error) {
	b, err := r.need(2)
	if err != nil {
		return 0, err
	}
	return int16(r.order.Uint16(b)), nil
}

func (r *byteReader) int32() (int32, error) {
	b, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return int32(r.order.Uint32(b)), nil
}

func (r *byteReader) int64() (int64, error) {
	b, err := r.need(8)
	if err != nil {
		return 0, err
	}
	return int64(r.order.Uint64(b)), nil
}

func (r *byteReader) float32() (float32, error) {
	v, err := r.int32()
	return math.Float32frombits(uint32(v)), err
}

func (r *byteReader) float64() (float64, error) {
	v, err := r.int64()
	return math.Float64frombits(uint64(v)), err
}

func (r *byteReader) guid() (Guid, error) {
	b, err := r.need(16)
	if err != nil {
		return Guid{}, err
	}
	var g Guid
	copy(g[:], b)
	return g, nil
}

// symbol reads a zero-terminated byte string. MalformedMessage if the
// buffer runs out before a zero byte, or (StrictUTF8) if the bytes are
// not valid UTF-8.
func (r *byteReader) symbol() (string, error) {
	start := r.pos
	for r.pos < len(r.buf) {
		if r.buf[r.pos] == 0 {
			s := r.buf[start:r.pos]
			r.pos++
			if r.opts.StrictUTF8 && !utf8.Valid(s) {
				return "", malformed("symbol is not valid UTF-8")
			}
			return string(s), nil
		}
		r.pos++
	}
	return "", malformed("symbol not zero-terminated within buffer")
}

func (r *byteReader) attr() (Attr, error) {
	v, err := r.int8()
	return Attr(v), err
}

func (r *byteReader) length() (int32, error) {
	n, err := r.int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, malformed("negative length %d", n)
	}
	return n, nil
}

func (r *byteReader) readK() (*K, error) {
	tag, err := r.int8()
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("kdb: decoding tag %d", tag)
	switch tag {
	case KNL:
		if _, err := r.byte(); err != nil {
			return nil, err
		}
		return &K{Type: KNL, Attr: NONE, Data: nil}, nil
	case KERR:
		msg, err := r.symbol()
		if err != nil {
			return nil, err
		}
		return &K{Type: KERR, Attr: NONE, Data: msg}, nil
	case K0:
		return r.readList()
	case XD:
		return r.readDict()
	case XT:
		return r.readTable()
	case KFUNC:
		return r.readFunc()
	case KFUNCBP, KFUNCTR:
		if _, err := r.byte(); err != nil {
			return nil, err
		}
		return &K{Type: tag, Attr: NONE, Data: nil}, nil
	case KPROJ, KCOMP:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		items := make([]*K, n)
		for i := range items {
			items[i], err = r.readK()
			if err != nil {
				return nil, err
			}
		}
		return &K{Type: tag, Attr: NONE, Data: items}, nil
	case KEACH, KOVER, KSCAN, KPRIOR, KEACHRIGHT, KEACHLEFT:
		return r.readK()
	case KDYNLOAD:
		return nil, malformed("dynamic load values are not supported")
	}
	if IsAtom(tag) {
		return r.readAtom(tag)
	}
	if IsVector(tag) {
		return r.readVector(tag)
	}
	return nil, malformed("unknown type tag %d", tag)
}

func (r *byteReader) readAtom(tag int8) (*K, error) {
	switch tag {
	case -KB:
		b, err := r.byte()
		return &K{Type: tag, Attr: NONE, Data: b != 0}, err
	case -KG:
		b, err := r.byte()
		return &K{Type: tag, Attr: NONE, Data: b}, err
	case -KH:
		v, err := r.int16()
		return &K{Type: tag, Attr: NONE, Data: v}, err
	case -KI:
		v, err := r.int32()
		return &K{Type: tag, Attr: NONE, Data: v}, err
	case -KJ:
		v, err := r.int64()
		return &K{Type: tag, Attr: NONE, Data: v}, err
	case -KE:
		v, err := r.float32()
		return &K{Type: tag, Attr: NONE, Data: v}, err
	case -KF:
		v, err := r.float64()
		return &K{Type: tag, Attr: NONE, Data: v}, err
	case -KC:
		b, err := r.byte()
		return &K{Type: tag, Attr: NONE, Data: b}, err
	case -KS:
		s, err := r.symbol()
		return &K{Type: tag, Attr: NONE, Data: s}, err
	case -UU:
		g, err := r.guid()
		return &K{Type: tag, Attr: NONE, Data: g}, err
	case -KP:
		ns, err := r.int64()
		return &K{Type: tag, Attr: NONE, Data: qEpoch.Add(time.Duration(ns))}, err
	case -KM:
		v, err := r.int32()
		return &K{Type: tag, Attr: NONE, Data: Month(v)}, err
	case -KD:
		v, err := r.int32()
		return &K{Type: tag, Attr: NONE, Data: qEpoch.AddDate(0, 0, int(v))}, err
	case -KZ:
		v, err := r.float64()
		return &K{Type: tag, Attr: NONE, Data: qEpoch.Add(time.Duration(v * float64(24*time.Hour)))}, err
	case -KN:
		ns, err := r.int64()
		return &K{Type: tag, Attr: NONE, Data: time.Duration(ns)}, err
	case -KU:
		v, err := r.int32()
		return &K{Type: tag, Attr: NONE, Data: Minute(v)}, err
	case -KV:
		v, err := r.int32()
		return &K{Type: tag, Attr: NONE, Data: Second(v)}, err
	case -KT:
		v, err := r.int32()
		return &K{Type: tag, Attr: NONE, Data: Time(v)}, err
	}
	return nil, malformed("unsupported atom tag %d", tag)
}

func (r *byteReader) readVector(tag int8) (*K, error) {
	attr, err := r.attr()
	if err != nil {
		return nil, err
	}
	if tag == KC {
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		b, err := r.need(int(n))
		if err != nil {
			return nil, err
		}
		return &K{Type: KC, Attr: attr, Data: string(b)}, nil
	}
	if tag == KS {
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		out := make([]string, n)
		for i := range out {
			out[i], err = r.symbol()
			if err != nil {
				return nil, err
			}
		}
		return &K{Type: KS, Attr: attr, Data: out}, nil
	}
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	switch tag {
	case KB:
		out := make([]bool, n)
		for i := range out {
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			out[i] = b != 0
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KG:
		b, err := r.need(int(n))
		if err != nil {
			return nil, err
		}
		return &K{Type: tag, Attr: attr, Data: append([]byte(nil), b...)}, nil
	case KH:
		out := make([]int16, n)
		for i := range out {
			if out[i], err = r.int16(); err != nil {
				return nil, err
			}
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KI:
		out := make([]int32, n)
		for i := range out {
			if out[i], err = r.int32(); err != nil {
				return nil, err
			}
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KJ:
		out := make([]int64, n)
		for i := range out {
			if out[i], err = r.int64(); err != nil {
				return nil, err
			}
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KE:
		out := make([]float32, n)
		for i := range out {
			if out[i], err = r.float32(); err != nil {
				return nil, err
			}
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KF:
		out := make([]float64, n)
		for i := range out {
			if out[i], err = r.float64(); err != nil {
				return nil, err
			}
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case UU:
		out := make([]Guid, n)
		for i := range out {
			if out[i], err = r.guid(); err != nil {
				return nil, err
			}
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KP:
		out := make([]time.Time, n)
		for i := range out {
			ns, err := r.int64()
			if err != nil {
				return nil, err
			}
			out[i] = qEpoch.Add(time.Duration(ns))
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KD:
		out := make([]time.Time, n)
		for i := range out {
			d, err := r.int32()
			if err != nil {
				return nil, err
			}
			out[i] = qEpoch.AddDate(0, 0, int(d))
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KZ:
		out := make([]time.Time, n)
		for i := range out {
			f, err := r.float64()
			if err != nil {
				return nil, err
			}
			out[i] = qEpoch.Add(time.Duration(f * float64(24*time.Hour)))
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KN:
		out := make([]time.Duration, n)
		for i := range out {
			ns, err := r.int64()
			if err != nil {
				return nil, err
			}
			out[i] = time.Duration(ns)
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KM:
		out := make([]Month, n)
		for i := range out {
			v, err := r.int32()
			if err != nil {
				return nil, err
			}
			out[i] = Month(v)
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KU:
		out := make([]Minute, n)
		for i := range out {
			v, err := r.int32()
			if err != nil {
				return nil, err
			}
			out[i] = Minute(v)
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KV:
		out := make([]Second, n)
		for i := range out {
			v, err := r.int32()
			if err != nil {
				return nil, err
			}
			out[i] = Second(v)
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	case KT:
		out := make([]Time, n)
		for i := range out {
			v, err := r.int32()
			if err != nil {
				return nil, err
			}
			out[i] = Time(v)
		}
		return &K{Type: tag, Attr: attr, Data: out}, nil
	}
	return nil, malformed("unsupported vector tag %d", tag)
}

func (r *byteReader) readList() (*K, error) {
	attr, err := r.attr()
	if err != nil {
		return nil, err
	}
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	items := make([]*K, n)
	for i := range items {
		if items[i], err = r.readK(); err != nil {
			return nil, err
		}
	}
	return &K{Type: K0, Attr: attr, Data: items}, nil
}

func (r *byteReader) readDict() (*K, error) {
	keys, err := r.readK()
	if err != nil {
		return nil, err
	}
	values, err := r.readK()
	if err != nil {
		return nil, err
	}
	if keys.Len() != values.Len() {
		return nil, malformed("dictionary keys (len %d) and values (len %d) differ", keys.Len(), values.Len())
	}
	return &K{Type: XD, Attr: NONE, Data: Dict{Keys: keys, Values: values}}, nil
}

func (r *byteReader) readTable() (*K, error) {
	attr, err := r.attr()
	if err != nil {
		return nil, err
	}
	d, err := r.readK()
	if err != nil {
		return nil, err
	}
	if d.Type != XD {
		return nil, malformed("table body is not a dictionary (tag %d)", d.Type)
	}
	dict := d.Data.(Dict)
	names, ok := dict.Keys.Data.([]string)
	if !ok {
		return nil, malformed("table columns are not a symbol vector")
	}
	cols, ok := dict.Values.Data.([]*K)
	if !ok {
		return nil, malformed("table values are not a compound list")
	}
	if len(names) != len(cols) {
		return nil, malformed("table has %d column names but %d columns", len(names), len(cols))
	}
	rows := -1
	for i, col := range cols {
		if !IsVector(col.Type) {
			return nil, malformed("table column %q is not a typed vector (tag %d)", names[i], col.Type)
		}
		if rows == -1 {
			rows = col.Len()
		} else if col.Len() != rows {
			return nil, malformed("table column %q has length %d, expected %d", names[i], col.Len(), rows)
		}
	}
	return &K{Type: XT, Attr: attr, Data: Table{Columns: names, Data: cols}}, nil
}

func (r *byteReader) readFunc() (*K, error) {
	ns, err := r.symbol()
	if err != nil {
		return nil, err
	}
	body, err := r.readK()
	if err != nil {
		return nil, err
	}
	bodyStr, ok := body.Data.(string)
	if !ok {
		return nil, malformed("function body is not a char vector")
	}
	return &K{Type: KFUNC, Attr: NONE, Data: Function{Namespace: ns, Body: bodyStr}}, nil
}
