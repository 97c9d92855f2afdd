package kdb

import (
	"fmt"
	"strings"
)

// String renders k in q-like diagnostic syntax. It is meant for logs
// and error messages, not for round-tripping: no guarantee is made
// that q itself would parse the output back to the same value.
func (k *K) String() string {
	return renderK(k)
}

func renderK(k *K) string {
	if k == nil {
		return "(nil)"
	}
	switch k.Type {
	case KNL:
		return "::"
	case KERR:
		return "'" + k.Data.(string)
	case K0:
		items := k.Data.([]*K)
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = renderK(it)
		}
		return "(" + strings.Join(parts, ";") + ")"
	case XD:
		return k.Data.(Dict).String()
	case XT:
		return k.Data.(Table).String()
	case KFUNC:
		f := k.Data.(Function)
		if f.Namespace == "" {
			return f.Body
		}
		return f.Body + " in ." + f.Namespace
	}
	if IsAtom(k.Type) {
		return renderAtom(k.Type, k.Data)
	}
	if IsVector(k.Type) {
		return renderVector(k.Type, k.Data)
	}
	return fmt.Sprintf("%v", k.Data)
}

func renderAtom(tag int8, v interface{}) string {
	switch tag {
	case -KB:
		if v.(bool) {
			return "1b"
		}
		return "0b"
	case -KG:
		return fmt.Sprintf("0x%02x", v.(byte))
	case -KS:
		return "`" + v.(string)
	case -KC:
		return fmt.Sprintf("%q", string(v.(byte)))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func renderVector(tag int8, v interface{}) string {
	switch tag {
	case KC:
		return fmt.Sprintf("%q", v.(string))
	case KS:
		names := v.([]string)
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = "`" + n
		}
		return strings.Join(parts, "")
	default:
		return fmt.Sprintf("%v", v)
	}
}
