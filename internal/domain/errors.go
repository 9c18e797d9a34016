package domain

import "fmt"

// CardinalityError is returned when a single-value field resolves to more than one
// related record.
type CardinalityError struct {
	Field string
	Count int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("cannot glue %d related records into single value field %q, consider a multi value field", e.Count, e.Field)
}

// DecodeError is returned for values that were not produced by the encoder.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode structured relation value: %s: %v", e.Reason, e.Err)
	}
	return "decode structured relation value: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ResolutionError is returned when fetched rows and resolved identifiers disagree.
type ResolutionError struct {
	Table string
	UID   int64
	Msg   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s:%d: %s", e.Table, e.UID, e.Msg)
}

// StoreError wraps a failure of the underlying data store.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
