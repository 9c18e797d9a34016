// Package codec turns projected relation records into storage-safe strings for a
// single index field and back.
//
// An encoded value is the base64 form of the record's JSON object. Multi-value fields
// hold a container: a JSON array of encoded values.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sha1n/structured-relation/internal/domain"
)

var encoding = base64.StdEncoding.Strict()

// Encode serializes a record into an encoded value.
func Encode(r *domain.Record) (string, error) {
	data, err := r.MarshalJSON()
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(data), nil
}

// Decode reverses Encode. It fails with *domain.DecodeError for anything Encode could
// not have produced.
func Decode(value string) (*domain.Record, error) {
	data, err := encoding.DecodeString(value)
	if err != nil {
		return nil, &domain.DecodeError{Reason: "value must be a valid base64 string produced during indexing", Err: err}
	}

	r := domain.NewRecord()
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, &domain.DecodeError{Reason: "invalid record payload", Err: err}
	}
	return r, nil
}

// EncodeAll encodes every record, keeping order.
func EncodeAll(records []*domain.Record) ([]string, error) {
	values := make([]string, 0, len(records))
	for _, r := range records {
		v, err := Encode(r)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// EncodeList wraps encoded values into one container string.
func EncodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeList splits a container back into its encoded values.
func DecodeList(container string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(container), &values); err != nil {
		return nil, &domain.DecodeError{Reason: "invalid multi value container", Err: err}
	}
	if values == nil {
		return nil, &domain.DecodeError{Reason: "invalid multi value container", Err: errors.New("null container")}
	}
	return values, nil
}

// Parse is the display helper: it decodes a stored index value into records. A
// multi-value field is read as a container of encoded values; an empty value yields no
// records.
func Parse(value string, multiValue bool) ([]*domain.Record, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	if !multiValue {
		r, err := Decode(value)
		if err != nil {
			return nil, err
		}
		return []*domain.Record{r}, nil
	}

	values, err := DecodeList(value)
	if err != nil {
		return nil, err
	}
	return ParseValues(values)
}

// ParseValues decodes values read from a multi-valued index field.
func ParseValues(values []string) ([]*domain.Record, error) {
	records := make([]*domain.Record, 0, len(values))
	for _, v := range values {
		r, err := Decode(v)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
