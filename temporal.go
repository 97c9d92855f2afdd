package kdb

import (
	"fmt"
	"time"

	"github.com/nu7hatch/gouuid"
)

// Guid is the 16-byte q guid representation, backed by the teacher's
// existing uuid dependency rather than a bespoke array type.
type Guid = uuid.UUID

// qEpoch is the zero point every temporal type other than timespan,
// minute, second and time is measured from: 2000.01.01T00:00:00 UTC.
var qEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Month is a q month atom: months elapsed since 2000.01m.
type Month int32

func (m Month) String() string {
	total := int(m)
	year := 2000 + floorDiv(total, 12)
	month := 1 + floorMod(total, 12)
	return fmt.Sprintf("%04d.%02dm", year, month)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}

// Minute is a q minute-of-day atom.
type Minute int32

func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Second is a q second-of-day atom.
type Second int32

func (s Second) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(s)/3600, (int(s)/60)%60, int(s)%60)
}

// Time is a q millisecond-of-day atom.
type Time int32

func (t Time) String() string {
	ms := int(t)
	s := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", s/3600, (s/60)%60, s%60, ms%1000)
}

// Function is the opaque representation of a q lambda: the
// namespace it was defined in (possibly empty, meaning the root) and
// its source text. Constructing one lets a host round-trip a lambda
// value through the wire without being able to evaluate it locally -
// evaluation requires the embedding ABI, which is out of scope.
type Function struct {
	Namespace string
	Body      string
}

// NewFunc builds an opaque lambda value for the wire. namespace may be
// empty for a lambda defined at the root.
func NewFunc(namespace, body string) *K {
	return &K{Type: KFUNC, Attr: NONE, Data: Function{Namespace: namespace, Body: body}}
}

func monthsSinceEpoch(t time.Time) int32 {
	return int32((t.Year()-2000)*12 + int(t.Month()) - 1)
}

func daysSinceEpoch(t time.Time) int32 {
	d := t.Truncate(24 * time.Hour).Sub(qEpoch.Truncate(24 * time.Hour))
	return int32(d.Hours() / 24)
}
