package kdb

import "fmt"

// Dict pairs a keys vector with an equally-long values vector (wire
// tag XD). Values may themselves be a Table, in which case Keys is
// conventionally also a Table: that is q's keyed table.
type Dict struct {
	Keys   *K
	Values *K
}

func (d Dict) String() string {
	return fmt.Sprintf("%v!%v", renderK(d.Keys), renderK(d.Values))
}

// Table is a flipped dictionary: Columns names a symbol-keyed set of
// equally-long typed vectors held in Data, in column order.
type Table struct {
	Columns []string
	Data    []*K
}

func (t Table) String() string {
	return fmt.Sprintf("+%v!%v", t.Columns, t.Data)
}

// NewDictE constructs a dictionary from two conforming K vectors. It
// is a TypeError for keys and values to have unequal length.
func NewDictE(keys, values *K) (*K, error) {
	if keys.Len() != values.Len() {
		return nil, typeError("dictionary keys (len %d) and values (len %d) must have equal length", keys.Len(), values.Len())
	}
	return &K{Type: XD, Attr: NONE, Data: Dict{Keys: keys, Values: values}}, nil
}

// NewDict is the convenience form of NewDictE: it panics if keys and
// values do not conform, the way a composite literal would if handed
// mismatched vectors directly.
func NewDict(keys, values *K) *K {
	d, err := NewDictE(keys, values)
	if err != nil {
		panic(err)
	}
	return d
}

// FlipE turns a dictionary whose keys are a symbol vector and whose
// values are a compound list of equally-long typed vectors into a
// table. It is a TypeError if d's values are not such a list, or if
// the columns are not uniformly lengthed.
func FlipE(d *K) (*K, error) {
	if d.Type != XD {
		return nil, typeError("cannot flip a non-dictionary (tag %d)", d.Type)
	}
	dict := d.Data.(Dict)
	names, ok := dict.Keys.Data.([]string)
	if !ok {
		return nil, typeError("cannot flip a dictionary whose keys are not a symbol vector")
	}
	cols, ok := dict.Values.Data.([]*K)
	if !ok {
		return nil, typeError("cannot flip a dictionary whose values are not a compound list")
	}
	if len(names) != len(cols) {
		return nil, typeError("flip: %d column names but %d columns", len(names), len(cols))
	}
	rows := -1
	for i, c := range cols {
		if !IsVector(c.Type) {
			return nil, typeError("flip: column %q is not a typed vector", names[i])
		}
		if rows == -1 {
			rows = c.Len()
		} else if c.Len() != rows {
			return nil, typeError("flip: column %q has length %d, expected %d", names[i], c.Len(), rows)
		}
	}
	return &K{Type: XT, Attr: NONE, Data: Table{Columns: names, Data: cols}}, nil
}

// Flip is the convenience, panicking form of FlipE.
func Flip(d *K) *K {
	t, err := FlipE(d)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable builds a table directly from column names and column
// vectors, equivalent to Flip(NewDict(SymbolV(columns), NewList(data...))).
func NewTable(columns []string, data []*K) *K {
	return Flip(NewDict(SymbolV(columns), NewList(data...)))
}

// NewKeyedTable builds a keyed table: a dictionary whose keys and
// values are both tables, sharing the same row count.
func NewKeyedTable(keyCols []string, keyData []*K, valCols []string, valData []*K) *K {
	keys := NewTable(keyCols, keyData)
	values := NewTable(valCols, valData)
	return NewDict(keys, values)
}
