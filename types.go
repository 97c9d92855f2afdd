// Package kdb implements the kdb+ IPC (q-IPC) wire protocol: a typed
// value tree ("K objects"), its wire codec, and a session layer for
// talking to or acting as a kdb+ process over TCP or Unix domain
// sockets, optionally under TLS.
package kdb

import "math"

// Type tags. Negative values are atoms; the corresponding positive
// value is a vector of that atom. 0 is a compound (mixed) list, 98 a
// table, 99 a dictionary, 101 generic null, -128 an error.
const (
	K0 int8 = 0 // mixed/compound list

	KB int8 = 1  // boolean
	UU int8 = 2  // guid
	KG int8 = 4  // byte
	KH int8 = 5  // short
	KI int8 = 6  // int
	KJ int8 = 7  // long
	KE int8 = 8  // real
	KF int8 = 9  // float
	KC int8 = 10 // char
	KS int8 = 11 // symbol

	KP int8 = 12 // timestamp  (ns since 2000.01.01)
	KM int8 = 13 // month      (months since 2000.01.01)
	KD int8 = 14 // date       (days since 2000.01.01)
	KZ int8 = 15 // datetime   (days since 2000.01.01, fractional) - deprecated
	KN int8 = 16 // timespan   (ns)
	KU int8 = 17 // minute
	KV int8 = 18 // second
	KT int8 = 19 // time       (ms)

	XT  int8 = 98  // table (flipped dictionary)
	XD  int8 = 99  // dictionary
	KNL int8 = 101 // generic null

	// KFUNC and the adverb/derived-function tags below are opaque
	// function forms. KFUNC can be built with NewFunc and encoded; the
	// other tags are decode-only, never constructed by this package.
	// The embedding ABI that would let a host call them back into q
	// is out of scope; these exist only so a value tree containing a
	// function (e.g. nested inside an error trace or a .Q.s dump)
	// still decodes instead of aborting the stream.
	KFUNC      int8 = 100
	KFUNCBP    int8 = 102
	KFUNCTR    int8 = 103
	KPROJ      int8 = 104
	KCOMP      int8 = 105
	KEACH      int8 = 106
	KOVER      int8 = 107
	KSCAN      int8 = 108
	KPRIOR     int8 = 109
	KEACHRIGHT int8 = 110
	KEACHLEFT  int8 = 111
	KDYNLOAD   int8 = 112

	KERR int8 = -128 // error
)

// NONE attribute and friends for vectors.
type Attr int8

const (
	NONE Attr = iota
	SORTED
	UNIQUE
	PARTED
	GROUPED
)

// MessageType is the IPC message mode carried in byte 1 of the header.
type MessageType int8

const (
	ASYNC    MessageType = 0
	SYNC     MessageType = 1
	RESPONSE MessageType = 2
)

// ConnectionMethod selects the transport (and whether it is
// TLS-wrapped) a Dial or Listener should use.
type ConnectionMethod int

const (
	TCP ConnectionMethod = iota
	UDS
	TCPTLS
	UDSTLS
)

func (m ConnectionMethod) tls() bool {
	return m == TCPTLS || m == UDSTLS
}

func (m ConnectionMethod) network() string {
	if m == UDS || m == UDSTLS {
		return "unix"
	}
	return "tcp"
}

// IsAtom reports whether tag identifies a scalar (negative, non-error,
// non-null tag).
func IsAtom(tag int8) bool {
	return tag < 0 && tag != KERR
}

// IsVector reports whether tag identifies a typed vector (positive,
// excluding the compound-list/table/dict/function tags).
func IsVector(tag int8) bool {
	switch tag {
	case KB, UU, KG, KH, KI, KJ, KE, KF, KC, KS, KP, KM, KD, KZ, KN, KU, KV, KT:
		return tag > 0
	}
	return false
}

// AtomType returns the atom tag (negative) corresponding to a vector
// tag, or ok=false if tag is not a vector tag.
func AtomType(vectorTag int8) (atomTag int8, ok bool) {
	if !IsVector(vectorTag) {
		return 0, false
	}
	return -vectorTag, true
}

// ElementWidth returns the fixed on-the-wire width in bytes of one
// element of the vector identified by tag (0 for the variable-width
// symbol vector, whose elements are zero-terminated strings), or -1 if
// tag names none of the fixed-width atom/vector types (the special
// K0/XT/XD/KNL/KERR tags and the function family all fall outside the
// catalogue ElementWidth covers).
func ElementWidth(tag int8) int {
	a := tag
	if a < 0 {
		a = -a
	}
	switch a {
	case KB, KG, KC:
		return 1
	case KH:
		return 2
	case KI, KM, KD, KU, KV, KT:
		return 4
	case KJ, KP, KN:
		return 8
	case UU:
		return 16
	case KE:
		return 4
	case KF, KZ:
		return 8
	case KS:
		return 0
	}
	return -1
}

// Sentinel bit patterns. Null is the documented missing-value pattern
// for the type; infPos/infNeg are the documented ± infinity patterns
// where the type admits them, and nil for types with no declared
// infinity (byte, char, symbol, guid). Sentinel's ok is false for tags
// with no documented null at all (boolean and the non-atom tags).
var (
	NullByte  byte    = 0x00
	NullShort int16   = math.MinInt16
	InfShort  int16   = math.MaxInt16
	NInfShort int16   = math.MinInt16 + 1
	NullInt   int32   = math.MinInt32
	InfInt    int32   = math.MaxInt32
	NInfInt   int32   = math.MinInt32 + 1
	NullLong  int64   = math.MinInt64
	InfLong   int64   = math.MaxInt64
	NInfLong  int64   = math.MinInt64 + 1
	NullReal  float32 = float32(math.NaN())
	InfReal   float32 = float32(math.Inf(1))
	NInfReal  float32 = float32(math.Inf(-1))
	NullFloat float64 = math.NaN()
	InfFloat  float64 = math.Inf(1)
	NInfFloat float64 = math.Inf(-1)
	NullChar  byte    = ' '
)

// Sentinel reports the null (and, where it exists, ± infinity) bit
// pattern for an atom tag's underlying primitive representation.
func Sentinel(tag int8) (null, infPos, infNeg interface{}, ok bool) {
	a := tag
	if a < 0 {
		a = -a
	}
	switch a {
	case KG:
		return NullByte, nil, nil, true
	case KH:
		return NullShort, InfShort, NInfShort, true
	case KI, KM, KD, KU, KV, KT:
		return NullInt, InfInt, NInfInt, true
	case KJ, KP, KN:
		return NullLong, InfLong, NInfLong, true
	case KE:
		return NullReal, InfReal, NInfReal, true
	case KF, KZ:
		return NullFloat, InfFloat, NInfFloat, true
	case KC:
		return NullChar, nil, nil, true
	case KS:
		return "", nil, nil, true
	case UU:
		return Guid{}, nil, nil, true
	}
	return nil, nil, nil, false
}
