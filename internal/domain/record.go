package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FieldUID is the identity column every record is keyed by.
const FieldUID = "uid"

// Record is one row fetched from a table: an ordered mapping from field name to scalar
// value. Field order is the column order the row was read in and survives encoding.
type Record struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{fields: orderedmap.New[string, any]()}
}

// RecordOf builds a record from alternating key/value pairs. It panics on an odd
// argument count or a non-string key and is meant for literals in tests and fixtures.
func RecordOf(pairs ...any) *Record {
	if len(pairs)%2 != 0 {
		panic("RecordOf: odd number of arguments")
	}
	r := NewRecord()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("RecordOf: key at position %d is not a string", i))
		}
		r.Set(key, pairs[i+1])
	}
	return r
}

// Set stores a value, keeping the original position of an existing key.
func (r *Record) Set(key string, value any) {
	if r.fields == nil {
		r.fields = orderedmap.New[string, any]()
	}
	r.fields.Set(key, NormalizeValue(value))
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil || r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil || r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// Keys returns field names in record order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, r.Len())
	r.Each(func(key string, _ any) {
		keys = append(keys, key)
	})
	return keys
}

// Each calls fn for every field in record order.
func (r *Record) Each(fn func(key string, value any)) {
	if r == nil || r.fields == nil {
		return
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Filter returns a new record holding the fields keep accepts, in record order.
func (r *Record) Filter(keep func(key string) bool) *Record {
	out := NewRecord()
	r.Each(func(key string, value any) {
		if keep(key) {
			out.fields.Set(key, value)
		}
	})
	return out
}

// Clone returns a shallow copy.
func (r *Record) Clone() *Record {
	return r.Filter(func(string) bool { return true })
}

// UID returns the record's uid field as an integer.
func (r *Record) UID() (int64, error) {
	v, ok := r.Get(FieldUID)
	if !ok {
		return 0, errors.New("record has no uid field")
	}
	uid, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %v: %w", v, err)
	}
	return uid, nil
}

// Equal reports whether both records hold the same fields, in the same order, with
// equal values.
func (r *Record) Equal(other *Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	a, b := r.Keys(), other.Keys()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
		va, _ := r.Get(a[i])
		vb, _ := other.Get(b[i])
		if !reflect.DeepEqual(va, vb) {
			return false
		}
	}
	return true
}

// String renders the record as JSON for logs and error messages.
func (r *Record) String() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid record: %v>", err)
	}
	return string(data)
}

// MarshalJSON writes the record as a JSON object with keys in record order. An empty
// record is always "{}", never an array.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	r.Each(func(key string, value any) {
		if err != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		var k, v []byte
		if k, err = json.Marshal(key); err != nil {
			return
		}
		if v, err = marshalValue(value); err != nil {
			err = fmt.Errorf("field %q: %w", key, err)
			return
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order. Numbers without a fraction or
// exponent become int64, other numbers float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	fields := orderedmap.New[string, any]()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		fields.Set(key, normalizeJSON(value))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON object")
	}

	r.fields = fields
	return nil
}

// marshalValue encodes a field value. Floats always carry a fraction or an exponent so
// that they decode as floats again.
func marshalValue(value any) ([]byte, error) {
	f, ok := value.(float64)
	if !ok {
		return json.Marshal(value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported float value %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// NormalizeValue maps driver values onto the scalar set a record holds: string, int64,
// float64, bool and nil.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, int64, float64, bool:
		return val
	case []byte:
		return string(val)
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		return cast.ToInt64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case json.Number:
		return normalizeJSON(val)
	default:
		return val
	}
}

func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if !strings.ContainsAny(val.String(), ".eE") {
			if i, err := val.Int64(); err == nil {
				return i
			}
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	default:
		return val
	}
}
