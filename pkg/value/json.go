package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	_ json.Marshaler = String("")
	_ json.Marshaler = Int(0)
	_ json.Marshaler = Bool(false)
	_ json.Marshaler = Null{}
	_ json.Marshaler = Seq(nil)
	_ json.Marshaler = Map(nil)
)

// Marshal encodes v as JSON, keeping Map field order. A nil v encodes as null.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }
func (i Int) MarshalJSON() ([]byte, error)    { return []byte(strconv.FormatInt(int64(i), 10)), nil }
func (b Bool) MarshalJSON() ([]byte, error)   { return []byte(strconv.FormatBool(bool(b))), nil }
func (Null) MarshalJSON() ([]byte, error)     { return []byte("null"), nil }
func (s Seq) MarshalJSON() ([]byte, error)    { return Marshal(s) }
func (m Map) MarshalJSON() ([]byte, error)    { return Marshal(m) }

func encode(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		b, err := json.Marshal(string(t))
		if err != nil {
			return err
		}
		buf.Write(b)
	case Int:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(t)))
	case Seq:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		for i, f := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Name)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encode(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

// Unmarshal decodes JSON into a Value. Object key order is preserved.
// Integer literals within the safe range become Int; every other number
// is kept as its literal String.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decode(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}

	return v, nil
}

// UnmarshalMap decodes a JSON object into a Map.
func UnmarshalMap(data []byte) (Map, error) {
	v, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}

	switch m := v.(type) {
	case Map:
		return m, nil
	case Null:
		return Map{}, nil
	default:
		return nil, fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
}

func decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if n, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return FromInt64(n), nil
		}
		return String(t.String()), nil
	case json.Delim:
		switch t {
		case '[':
			seq := Seq{}
			for dec.More() {
				e, err := decode(dec)
				if err != nil {
					return nil, err
				}
				seq = append(seq, e)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return seq, nil
		case '{':
			m := Map{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				e, err := decode(dec)
				if err != nil {
					return nil, err
				}
				m = append(m, Field{Name: key, Value: e})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		}
	}

	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}
