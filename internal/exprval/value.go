// Package exprval implements the small dynamically-typed value kernel that
// backs Step.when conditions and Step.params templating (spec §9: "Dynamic
// templating without dynamic typing"). There is no ready-made library in
// the corpus for this — the teacher's DSL packages (dsl/, expr/) are a
// compile-time Go code generator, not a runtime expression evaluator over
// arbitrary YAML-declared data — so this is a hand-rolled kernel, modeled
// after the tagged-union shape of runtime/agent/model.Part: a closed set of
// concrete types behind an unexported marker method.
package exprval

import "fmt"

// Kind identifies the dynamic type of a Value.
type Kind int

// The seven kinds the kernel supports, per spec §9.
const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged sum over the kernel's seven kinds. The zero Value is
// Null. Construct with the Of* helpers; inspect with Kind()/As*().
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool
	list []Value
	m    map[string]Value
}

// Null is the canonical null Value.
var Null = Value{kind: KindNull}

// OfString wraps a string.
func OfString(s string) Value { return Value{kind: KindString, str: s} }

// OfInt wraps an int64.
func OfInt(i int64) Value { return Value{kind: KindInt, i: i} }

// OfFloat wraps a float64.
func OfFloat(f float64) Value { return Value{kind: KindFloat, f: f} }

// OfBool wraps a bool.
func OfBool(b bool) Value { return Value{kind: KindBool, b: b} }

// OfList wraps an ordered list of Values.
func OfList(l []Value) Value { return Value{kind: KindList, list: l} }

// OfMap wraps a string-keyed map of Values.
func OfMap(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind returns the dynamic type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string form of v for template substitution. Numbers
// and bools are formatted; lists/maps/null render as their Go zero-ish
// textual form since templates should not normally reference them directly.
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNull:
		return ""
	default:
		return fmt.Sprintf("%v", v.Native())
	}
}

// AsBool reports the boolean value of v, following the kernel's truthiness
// rules: bool is itself, non-empty/non-zero string/int/float is true, null
// and empty collections are false.
func (v Value) AsBool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		return v.str != ""
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindNull:
		return false
	case KindList:
		return len(v.list) > 0
	case KindMap:
		return len(v.m) > 0
	default:
		return false
	}
}

// AsList returns the underlying slice (nil if v is not a list).
func (v Value) AsList() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// AsMap returns the underlying map (nil if v is not a map).
func (v Value) AsMap() map[string]Value {
	if v.kind != KindMap {
		return nil
	}
	return v.m
}

// Field looks up a dotted-path segment against a map Value, returning
// (Null, false) when v is not a map or the key is absent.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindMap {
		return Null, false
	}
	val, ok := v.m[name]
	return val, ok
}

// Native converts v back into a plain any (string/int64/float64/bool/nil/
// []any/map[string]any) for JSON re-encoding or adapter params.
func (v Value) Native() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindNull:
		return nil
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// FromNative lifts a plain any (as decoded from JSON or YAML) into a Value.
func FromNative(n any) Value {
	switch t := n.(type) {
	case nil:
		return Null
	case string:
		return OfString(t)
	case bool:
		return OfBool(t)
	case int:
		return OfInt(int64(t))
	case int64:
		return OfInt(t)
	case float64:
		// YAML/JSON decode whole numbers as float64; they stay float here,
		// and an integral value still renders cleanly through AsString.
		return OfFloat(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromNative(e)
		}
		return OfList(out)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromNative(e)
		}
		return OfMap(out)
	case []Value:
		return OfList(t)
	case map[string]Value:
		return OfMap(t)
	default:
		return OfString(fmt.Sprintf("%v", t))
	}
}

// Equal reports whether two Values are equal, comparing across the int/
// float kinds numerically so `1 == 1.0` holds in `when` expressions.
func Equal(a, b Value) bool {
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == b.kind
	}
	an, aok := a.numeric()
	bn, bok := b.numeric()
	if aok && bok {
		return an == bn
	}
	if a.kind != b.kind {
		return a.AsString() == b.AsString()
	}
	switch a.kind {
	case KindString:
		return a.str == b.str
	case KindBool:
		return a.b == b.b
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}
