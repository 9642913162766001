// Package value defines the closed set of argument values stored in the ledger.
//
// Every decoded event argument is reduced to one of six shapes: String, Int,
// Bool, Null, Seq and Map. Int only ever holds integers whose magnitude fits
// in 53 bits; anything wider is carried as a base-10 String so consumers
// working with IEEE-754 doubles never lose precision.
package value

import (
	"math/big"
	"strconv"
)

// MaxSafeInt is the largest integer a float64 represents exactly (2^53 - 1).
const MaxSafeInt = 1<<53 - 1

// MinSafeInt is the negated MaxSafeInt.
const MinSafeInt = -MaxSafeInt

// Kind identifies the shape of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
	KindSeq
	KindMap
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindString: "string",
	KindInt:    "int",
	KindBool:   "bool",
	KindSeq:    "seq",
	KindMap:    "map",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is implemented only by the types in this package.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	// String is a text value, also used for integers outside the safe range.
	String string

	// Int is an integer within [MinSafeInt, MaxSafeInt].
	Int int64

	// Bool is a boolean value.
	Bool bool

	// Null is the absent value.
	Null struct{}

	// Seq is an ordered list of values.
	Seq []Value

	// Map is an ordered list of named values. Field order is significant.
	Map []Field
)

// Field is one named entry of a Map.
type Field struct {
	Name  string
	Value Value
}

func (String) Kind() Kind { return KindString }
func (Int) Kind() Kind    { return KindInt }
func (Bool) Kind() Kind   { return KindBool }
func (Null) Kind() Kind   { return KindNull }
func (Seq) Kind() Kind    { return KindSeq }
func (Map) Kind() Kind    { return KindMap }

func (String) isValue() {}
func (Int) isValue()    {}
func (Bool) isValue()   {}
func (Null) isValue()   {}
func (Seq) isValue()    {}
func (Map) isValue()    {}

// IsSafeInt reports whether n can be carried as an Int.
func IsSafeInt(n int64) bool {
	return n >= MinSafeInt && n <= MaxSafeInt
}

// FromInt64 returns Int when n is in the safe range and its decimal String otherwise.
func FromInt64(n int64) Value {
	if IsSafeInt(n) {
		return Int(n)
	}
	return String(strconv.FormatInt(n, 10))
}

// FromUint64 returns Int when n is in the safe range and its decimal String otherwise.
func FromUint64(n uint64) Value {
	if n <= MaxSafeInt {
		return Int(int64(n))
	}
	return String(strconv.FormatUint(n, 10))
}

// FromBig returns Int when n is in the safe range and its decimal String otherwise.
// A nil n yields Null.
func FromBig(n *big.Int) Value {
	if n == nil {
		return Null{}
	}
	if n.IsInt64() {
		return FromInt64(n.Int64())
	}
	return String(n.String())
}

// Get returns the value of the first field named name.
func (m Map) Get(name string) (Value, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the field names in order.
func (m Map) Names() []string {
	names := make([]string, len(m))
	for i, f := range m {
		names[i] = f.Name
	}
	return names
}

// Equal reports whether a and b have the same shape and contents.
// A nil Value is treated as Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case Seq:
		bv := b.(Seq)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv := b.(Map)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].Name != bv[i].Name || !Equal(av[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Walk calls fn for v and, depth-first, for every value nested in it.
func Walk(v Value, fn func(Value)) {
	if v == nil {
		return
	}
	fn(v)

	switch t := v.(type) {
	case Seq:
		for _, e := range t {
			Walk(e, fn)
		}
	case Map:
		for _, f := range t {
			Walk(f.Value, fn)
		}
	}
}
