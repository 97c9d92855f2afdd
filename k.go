package kdb

import "time"

// K is a node in the q value tree: a type tag, a vector attribute,
// and the payload. The codec carries Attr for typed vectors and
// compound lists; atoms and dictionaries have no attribute byte on the
// wire and decode with NONE, and a table's attribute byte is always
// encoded as NONE. Data holds whichever Go representation is
// documented for Type:
//
//	atom   -> bool, byte (byte and char atoms), int16, int32, int64,
//	          float32, float64, string (symbol atom), Guid, time.Time,
//	          time.Duration, Month, Minute, Second, Time
//	vector -> []bool, []byte, []int16, []int32, []int64, []float32,
//	          []float64, string (char vector), []string (symbol
//	          vector), []Guid, []time.Time, []time.Duration, []Month,
//	          []Minute, []Second, []Time
//	K0     -> []*K              (compound list)
//	XD     -> Dict
//	XT     -> Table
//	KERR   -> string            (error text, see Error/Err)
//	KNL    -> nil               (generic null)
//	KFUNC  -> Function
type K struct {
	Type int8
	Attr Attr
	Data interface{}
}

// Len reports the number of elements in a vector, compound list,
// dictionary (key count) or table (row count); atoms and the generic
// null report 0.
func (k *K) Len() int {
	switch k.Type {
	case K0:
		return len(k.Data.([]*K))
	case XD:
		return k.Data.(Dict).Keys.Len()
	case XT:
		t := k.Data.(Table)
		if len(t.Data) == 0 {
			return 0
		}
		return t.Data[0].Len()
	}
	if IsVector(k.Type) {
		switch d := k.Data.(type) {
		case string:
			return len(d)
		case []bool:
			return len(d)
		case []byte:
			return len(d)
		case []int16:
			return len(d)
		case []int32:
			return len(d)
		case []int64:
			return len(d)
		case []float32:
			return len(d)
		case []float64:
			return len(d)
		case []string:
			return len(d)
		case []Guid:
			return len(d)
		case []time.Time:
			return len(d)
		case []time.Duration:
			return len(d)
		case []Month:
			return len(d)
		case []Minute:
			return len(d)
		case []Second:
			return len(d)
		case []Time:
			return len(d)
		}
	}
	return 0
}

// ---- atom constructors ----

func Bool(v bool) *K         { return &K{Type: -KB, Attr: NONE, Data: v} }
func Byte(v byte) *K         { return &K{Type: -KG, Attr: NONE, Data: v} }
func Short(v int16) *K       { return &K{Type: -KH, Attr: NONE, Data: v} }
func Int(v int32) *K         { return &K{Type: -KI, Attr: NONE, Data: v} }
func Long(v int64) *K        { return &K{Type: -KJ, Attr: NONE, Data: v} }
func Real(v float32) *K      { return &K{Type: -KE, Attr: NONE, Data: v} }
func Float(v float64) *K     { return &K{Type: -KF, Attr: NONE, Data: v} }
func Char(v byte) *K         { return &K{Type: -KC, Attr: NONE, Data: v} }
func Symbol(v string) *K     { return &K{Type: -KS, Attr: NONE, Data: v} }
func GuidAtom(v Guid) *K     { return &K{Type: -UU, Attr: NONE, Data: v} }
func Timespan(d time.Duration) *K {
	return &K{Type: -KN, Attr: NONE, Data: d}
}
func MinuteOf(v Minute) *K { return &K{Type: -KU, Attr: NONE, Data: v} }
func SecondOf(v Second) *K { return &K{Type: -KV, Attr: NONE, Data: v} }
func TimeOf(v Time) *K     { return &K{Type: -KT, Attr: NONE, Data: v} }

// Timestamp builds a KP atom holding a wall-clock time; the encoder
// writes it as nanoseconds since the q epoch.
func Timestamp(t time.Time) *K {
	return &K{Type: -KP, Attr: NONE, Data: t}
}

// MonthAtom builds a KM atom from a wall-clock time, truncating to the
// month.
func MonthAtom(t time.Time) *K {
	return &K{Type: -KM, Attr: NONE, Data: Month(monthsSinceEpoch(t))}
}

// Date builds a KD atom holding a wall-clock time; the encoder writes
// it as whole days since the q epoch, dropping the time of day.
func Date(t time.Time) *K {
	return &K{Type: -KD, Attr: NONE, Data: t}
}

// Datetime builds a (deprecated) KZ atom. Construction is always
// allowed; encoding it requires EncodeOptions.EmitDeprecatedDateTime
// (Conn.EmitDeprecatedDateTime on a Conn), and plain Encode rejects it.
func Datetime(t time.Time) *K {
	return &K{Type: -KZ, Attr: NONE, Data: t}
}

// ---- vector constructors: consume a homogeneous Go slice ----

func BoolV(v []bool) *K               { return &K{Type: KB, Attr: NONE, Data: v} }
func ByteV(v []byte) *K               { return &K{Type: KG, Attr: NONE, Data: v} }
func ShortV(v []int16) *K             { return &K{Type: KH, Attr: NONE, Data: v} }
func IntV(v []int32) *K               { return &K{Type: KI, Attr: NONE, Data: v} }
func LongV(v []int64) *K              { return &K{Type: KJ, Attr: NONE, Data: v} }
func RealV(v []float32) *K            { return &K{Type: KE, Attr: NONE, Data: v} }
func FloatV(v []float64) *K           { return &K{Type: KF, Attr: NONE, Data: v} }
func CharArray(v string) *K           { return &K{Type: KC, Attr: NONE, Data: v} }
func SymbolV(v []string) *K           { return &K{Type: KS, Attr: NONE, Data: v} }
func GuidV(v []Guid) *K               { return &K{Type: UU, Attr: NONE, Data: v} }
func TimestampV(v []time.Time) *K     { return &K{Type: KP, Attr: NONE, Data: v} }
func MonthV(v []Month) *K             { return &K{Type: KM, Attr: NONE, Data: v} }
func DateV(v []time.Time) *K          { return &K{Type: KD, Attr: NONE, Data: v} }
func DatetimeV(v []time.Time) *K      { return &K{Type: KZ, Attr: NONE, Data: v} }
func TimespanV(v []time.Duration) *K  { return &K{Type: KN, Attr: NONE, Data: v} }
func MinuteV(v []Minute) *K           { return &K{Type: KU, Attr: NONE, Data: v} }
func SecondV(v []Second) *K           { return &K{Type: KV, Attr: NONE, Data: v} }
func TimeV(v []Time) *K               { return &K{Type: KT, Attr: NONE, Data: v} }

// NewVector constructs a zero-valued vector of tag with n elements.
func NewVector(tag int8, n int) (*K, error) {
	if !IsVector(tag) {
		return nil, typeError("tag %d is not a vector type", tag)
	}
	switch tag {
	case KB:
		return BoolV(make([]bool, n)), nil
	case KG:
		return ByteV(make([]byte, n)), nil
	case KH:
		return ShortV(make([]int16, n)), nil
	case KI:
		return IntV(make([]int32, n)), nil
	case KJ:
		return LongV(make([]int64, n)), nil
	case KE:
		return RealV(make([]float32, n)), nil
	case KF:
		return FloatV(make([]float64, n)), nil
	case KC:
		return CharArray(string(make([]byte, n))), nil
	case KS:
		return SymbolV(make([]string, n)), nil
	case UU:
		return GuidV(make([]Guid, n)), nil
	case KP, KD:
		return &K{Type: tag, Attr: NONE, Data: make([]time.Time, n)}, nil
	case KZ:
		return DatetimeV(make([]time.Time, n)), nil
	case KM:
		return MonthV(make([]Month, n)), nil
	case KN:
		return TimespanV(make([]time.Duration, n)), nil
	case KU:
		return MinuteV(make([]Minute, n)), nil
	case KV:
		return SecondV(make([]Second, n)), nil
	case KT:
		return TimeV(make([]Time, n)), nil
	}
	return nil, typeError("tag %d is not a vector type", tag)
}

// NewList constructs a compound (mixed) list, tag K0.
func NewList(items ...*K) *K {
	return &K{Type: K0, Attr: NONE, Data: items}
}

// Append grows a typed vector or compound list by one element. v must
// be the Go type documented for k.Type's atom (or *K, for a compound
// list); anything else is a TypeError. Appending clears Attr to NONE,
// since the documented sort/uniqueness attributes no longer hold once
// the vector has grown.
func (k *K) Append(v interface{}) error {
	if k.Type == K0 {
		item, ok := v.(*K)
		if !ok {
			return typeError("cannot append %T to a compound list", v)
		}
		k.Data = append(k.Data.([]*K), item)
		k.Attr = NONE
		return nil
	}
	if !IsVector(k.Type) {
		return typeError("tag %d does not support Append", k.Type)
	}
	switch k.Type {
	case KB:
		e, ok := v.(bool)
		if !ok {
			return typeError("cannot append %T to a boolean vector", v)
		}
		k.Data = append(k.Data.([]bool), e)
	case KG:
		e, ok := v.(byte)
		if !ok {
			return typeError("cannot append %T to a byte vector", v)
		}
		k.Data = append(k.Data.([]byte), e)
	case KH:
		e, ok := v.(int16)
		if !ok {
			return typeError("cannot append %T to a short vector", v)
		}
		k.Data = append(k.Data.([]int16), e)
	case KI:
		e, ok := v.(int32)
		if !ok {
			return typeError("cannot append %T to an int vector", v)
		}
		k.Data = append(k.Data.([]int32), e)
	case KJ:
		e, ok := v.(int64)
		if !ok {
			return typeError("cannot append %T to a long vector", v)
		}
		k.Data = append(k.Data.([]int64), e)
	case KE:
		e, ok := v.(float32)
		if !ok {
			return typeError("cannot append %T to a real vector", v)
		}
		k.Data = append(k.Data.([]float32), e)
	case KF:
		e, ok := v.(float64)
		if !ok {
			return typeError("cannot append %T to a float vector", v)
		}
		k.Data = append(k.Data.([]float64), e)
	case KC:
		e, ok := v.(byte)
		if !ok {
			return typeError("cannot append %T to a char vector", v)
		}
		k.Data = k.Data.(string) + string([]byte{e})
	case KS:
		e, ok := v.(string)
		if !ok {
			return typeError("cannot append %T to a symbol vector", v)
		}
		k.Data = append(k.Data.([]string), e)
	case UU:
		e, ok := v.(Guid)
		if !ok {
			return typeError("cannot append %T to a guid vector", v)
		}
		k.Data = append(k.Data.([]Guid), e)
	case KP, KD:
		e, ok := v.(time.Time)
		if !ok {
			return typeError("cannot append %T to a temporal vector", v)
		}
		k.Data = append(k.Data.([]time.Time), e)
	case KZ:
		e, ok := v.(time.Time)
		if !ok {
			return typeError("cannot append %T to a datetime vector", v)
		}
		k.Data = append(k.Data.([]time.Time), e)
	case KM:
		e, ok := v.(Month)
		if !ok {
			return typeError("cannot append %T to a month vector", v)
		}
		k.Data = append(k.Data.([]Month), e)
	case KN:
		e, ok := v.(time.Duration)
		if !ok {
			return typeError("cannot append %T to a timespan vector", v)
		}
		k.Data = append(k.Data.([]time.Duration), e)
	case KU:
		e, ok := v.(Minute)
		if !ok {
			return typeError("cannot append %T to a minute vector", v)
		}
		k.Data = append(k.Data.([]Minute), e)
	case KV:
		e, ok := v.(Second)
		if !ok {
			return typeError("cannot append %T to a second vector", v)
		}
		k.Data = append(k.Data.([]Second), e)
	case KT:
		e, ok := v.(Time)
		if !ok {
			return typeError("cannot append %T to a time vector", v)
		}
		k.Data = append(k.Data.([]Time), e)
	}
	k.Attr = NONE
	return nil
}

// AppendSymbol appends a symbol to a KS vector, truncating s to an
// explicit length n when n < len(s) (n<0 means use len(s) as-is). An n
// longer than s leaves s unchanged; s is never padded.
func (k *K) AppendSymbol(s string, n int) error {
	if k.Type != KS {
		return typeError("AppendSymbol requires a symbol vector, got tag %d", k.Type)
	}
	if n >= 0 && n < len(s) {
		s = s[:n]
	}
	return k.Append(s)
}
