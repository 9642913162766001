package normalize

import (
	"cmp"
	"fmt"
	"math/big"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/skillswap/chainledger/pkg/value"
)

var addressType = reflect.TypeOf(common.Address{})

// Normalize converts a decoded ABI value into a value.Value.
//
// The conversion is total and deterministic: integers outside the safe
// range become base-10 strings, byte strings become 0x-hex, tuples become
// maps in declaration order and anything unrecognized falls back to its
// fmt representation. Text that is not valid UTF-8 is stored as 0x-hex.
// Values that are already a value.Value are rebuilt under the same rules.
func Normalize(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null{}
	case value.Value:
		return revalidate(t)
	case string:
		return fromString(t)
	case bool:
		return value.Bool(t)
	case int:
		return value.FromInt64(int64(t))
	case int8:
		return value.Int(t)
	case int16:
		return value.Int(t)
	case int32:
		return value.Int(t)
	case int64:
		return value.FromInt64(t)
	case uint:
		return value.FromUint64(uint64(t))
	case uint8:
		return value.Int(t)
	case uint16:
		return value.Int(t)
	case uint32:
		return value.Int(t)
	case uint64:
		return value.FromUint64(t)
	case *big.Int:
		return value.FromBig(t)
	case big.Int:
		return value.FromBig(&t)
	case *uint256.Int:
		if t == nil {
			return value.Null{}
		}
		return fromUint256(t)
	case uint256.Int:
		return fromUint256(&t)
	case common.Address:
		return value.String(t.Hex())
	case common.Hash:
		return value.String(t.Hex())
	case []byte:
		return value.String(hexutil.Encode(t))
	}

	return normalizeReflect(reflect.ValueOf(v))
}

// fromString keeps valid UTF-8 text as is. Solidity strings are arbitrary
// bytes, so anything else is stored as 0x-hex to survive JSON encoding.
func fromString(s string) value.Value {
	if utf8.ValidString(s) {
		return value.String(s)
	}
	return value.String(hexutil.Encode([]byte(s)))
}

// revalidate rebuilds an existing value so it holds only safe ints and valid text.
func revalidate(v value.Value) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null{}
	case value.Int:
		return value.FromInt64(int64(t))
	case value.String:
		return fromString(string(t))
	case value.Seq:
		out := make(value.Seq, len(t))
		for i, elem := range t {
			out[i] = revalidate(elem)
		}
		return out
	case value.Map:
		out := make(value.Map, len(t))
		for i, f := range t {
			out[i] = value.Field{Name: f.Name, Value: revalidate(f.Value)}
		}
		return out
	default:
		return v
	}
}

func fromUint256(n *uint256.Int) value.Value {
	if n.IsUint64() {
		return value.FromUint64(n.Uint64())
	}
	return value.String(n.Dec())
}

func normalizeReflect(rv reflect.Value) value.Value {
	switch rv.Kind() {
	case reflect.Invalid:
		return value.Null{}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return value.Null{}
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Bool:
		return value.Bool(rv.Bool())
	case reflect.String:
		return fromString(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.FromInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return value.FromUint64(rv.Uint())
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return value.String(hexutil.Encode(byteSlice(rv)))
		}
		return normalizeSeq(rv)
	case reflect.Slice:
		if rv.IsNil() {
			return value.Seq{}
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return value.String(hexutil.Encode(byteSlice(rv)))
		}
		return normalizeSeq(rv)
	case reflect.Struct:
		return normalizeStruct(rv)
	case reflect.Map:
		return normalizeMap(rv)
	default:
		return fromString(fmt.Sprint(rv.Interface()))
	}
}

func byteSlice(rv reflect.Value) []byte {
	buf := make([]byte, rv.Len())
	for i := range buf {
		buf[i] = byte(rv.Index(i).Uint())
	}
	return buf
}

func normalizeSeq(rv reflect.Value) value.Value {
	seq := make(value.Seq, rv.Len())
	for i := range rv.Len() {
		seq[i] = Normalize(rv.Index(i).Interface())
	}
	return seq
}

// normalizeStruct handles ABI tuples, which go-ethereum decodes into
// anonymous structs whose fields carry the component name in a json tag.
func normalizeStruct(rv reflect.Value) value.Value {
	rt := rv.Type()

	m := make(value.Map, 0, rt.NumField())
	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		m = append(m, value.Field{Name: fieldName(field), Value: Normalize(rv.Field(i).Interface())})
	}

	if len(m) == 0 && rv.CanInterface() {
		if s, ok := rv.Interface().(fmt.Stringer); ok {
			return fromString(s.String())
		}
	}

	return m
}

func fieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

func normalizeMap(rv reflect.Value) value.Value {
	type entry struct {
		key string
		val reflect.Value
	}

	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: mapKey(iter.Key()), val: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.key, b.key) })

	m := make(value.Map, len(entries))
	for i, e := range entries {
		m[i] = value.Field{Name: e.key, Value: Normalize(e.val.Interface())}
	}
	return m
}

func mapKey(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10)
	}

	if s, ok := Normalize(k.Interface()).(value.String); ok {
		return string(s)
	}
	return fmt.Sprint(k.Interface())
}

// Args builds the ordered argument map for an event: one field per input,
// in ABI declaration order. Inputs missing from values are Null.
func Args(inputs abi.Arguments, values map[string]any) value.Map {
	m := make(value.Map, 0, len(inputs))
	for _, input := range inputs {
		m = append(m, value.Field{Name: input.Name, Value: Normalize(values[input.Name])})
	}
	return m
}

// Participants returns every address found in the decoded values, lower-cased
// and de-duplicated, in ABI input order.
func Participants(inputs abi.Arguments, values map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(addr common.Address) {
		key := strings.ToLower(addr.Hex())
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}

	for _, input := range inputs {
		collectAddresses(reflect.ValueOf(values[input.Name]), add)
	}

	return out
}

func collectAddresses(rv reflect.Value, add func(common.Address)) {
	if !rv.IsValid() {
		return
	}

	if rv.Type() == addressType {
		add(rv.Interface().(common.Address)) //nolint:forcetypeassert
		return
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			collectAddresses(rv.Elem(), add)
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return
		}
		for i := range rv.Len() {
			collectAddresses(rv.Index(i), add)
		}
	case reflect.Struct:
		for i := range rv.NumField() {
			if rv.Type().Field(i).IsExported() {
				collectAddresses(rv.Field(i), add)
			}
		}
	}
}
