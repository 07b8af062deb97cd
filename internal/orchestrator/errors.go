package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// Cycle stages, as reported in errors and the "stage" log field.
const (
	StageFetch         = "fetch"
	StageValidate      = "validate"
	StageReconcile     = "reconcile"
	StageReadRaw       = "read raw"
	StageReadFeatures  = "read features"
	StageWriteFeatures = "write features"
)

// FetchError reports an upstream failure. The cycle is abandoned before any
// write is attempted.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch was aborted by its deadline.
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// StoreError reports a read or write failure against a store.
type StoreError struct {
	Symbol string
	Stage  string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Symbol, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DataError reports a fetched batch that failed validation, such as points
// labelled with another symbol. Nothing is written.
type DataError struct {
	Symbol string
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("validate %s: %v", e.Symbol, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// stageOf returns the cycle stage err was raised in, or "" if unknown.
func stageOf(err error) string {
	var (
		fe *FetchError
		de *DataError
		se *StoreError
	)
	switch {
	case errors.As(err, &fe):
		return StageFetch
	case errors.As(err, &de):
		return StageValidate
	case errors.As(err, &se):
		return se.Stage
	}
	return ""
}
