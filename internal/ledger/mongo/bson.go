package mongo

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/skillswap/chainledger/pkg/value"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toBSONDoc keeps field order by encoding maps as bson.D.
func toBSONDoc(m value.Map) bson.D {
	doc := make(bson.D, 0, len(m))
	for _, f := range m {
		doc = append(doc, bson.E{Key: f.Name, Value: toBSON(f.Value)})
	}
	return doc
}

func toBSON(v value.Value) any {
	switch t := v.(type) {
	case nil, value.Null:
		return nil
	case value.String:
		return string(t)
	case value.Int:
		return int64(t)
	case value.Bool:
		return bool(t)
	case value.Seq:
		arr := make(bson.A, len(t))
		for i, item := range t {
			arr[i] = toBSON(item)
		}
		return arr
	case value.Map:
		return toBSONDoc(t)
	default:
		return fmt.Sprint(t)
	}
}

func fromBSONDoc(doc bson.D) value.Map {
	m := make(value.Map, 0, len(doc))
	for _, e := range doc {
		m = append(m, value.Field{Name: e.Key, Value: fromBSON(e.Value)})
	}
	return m
}

func fromBSON(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null{}
	case string:
		return value.String(t)
	case bool:
		return value.Bool(t)
	case int32:
		return value.Int(t)
	case int64:
		return value.FromInt64(t)
	case float64:
		return value.String(strconv.FormatFloat(t, 'f', -1, 64))
	case bson.D:
		return fromBSONDoc(t)
	case bson.M:
		m := make(value.Map, 0, len(t))
		for _, k := range slices.Sorted(maps.Keys(t)) {
			m = append(m, value.Field{Name: k, Value: fromBSON(t[k])})
		}
		return m
	case bson.A:
		seq := make(value.Seq, len(t))
		for i, item := range t {
			seq[i] = fromBSON(item)
		}
		return seq
	case primitive.Null:
		return value.Null{}
	default:
		return value.String(fmt.Sprint(t))
	}
}
