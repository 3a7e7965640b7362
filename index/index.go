// Package index defines the search-index contract shared by the VP-tree
// family, along with the error types surfaced at build and query time.
package index

import (
	"errors"
	"fmt"

	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/queue"
	"github.com/hupe1980/metrigo/space"
)

var (
	// ErrEmptyDataset is returned when an index is built over zero objects.
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ConfigError indicates an invalid or inconsistent parameter combination.
// It is fatal to the operation that produced it.
type ConfigError struct {
	Reason string
	cause  error
}

// NewConfigError creates a ConfigError with a formatted reason.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// WrapConfigError attaches a cause (e.g. a params parse failure).
func WrapConfigError(err error) *ConfigError {
	return &ConfigError{Reason: err.Error(), cause: err}
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.cause }

// UnsupportedOperationError indicates an operation a method cannot perform
// (e.g. range search without dbScanFrac on a surrogate wrapper).
type UnsupportedOperationError struct {
	Method    string
	Operation string
	Reason    string
}

func (e *UnsupportedOperationError) Error() string {
	msg := fmt.Sprintf("%s does not support %s", e.Method, e.Operation)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Result is a single query answer.
type Result[D space.Dist] struct {
	// ID is the dataset identifier of the matched object.
	ID uint32

	// Dist is the distance between the query and the matched object.
	Dist D
}

// Index is a read-only search structure over a fixed dataset. A built index
// is immutable apart from SetQueryTimeParams; queries may run concurrently.
type Index[D space.Dist] interface {
	// Name identifies the method (e.g. "vptree").
	Name() string

	// KNNQuery returns the k approximately closest objects in ascending
	// distance order.
	KNNQuery(q *space.Object, k int) ([]Result[D], error)

	// RangeQuery returns every object within radius r of q in ascending
	// distance order.
	RangeQuery(q *space.Object, r D) ([]Result[D], error)

	// SetQueryTimeParams reconfigures query-time behavior. Setting the
	// current values is a no-op. Unknown keys are an error.
	SetQueryTimeParams(p params.Params) error
}

// ResultsFromItems converts collector items into results.
func ResultsFromItems[D space.Dist](items []queue.Item[D]) []Result[D] {
	out := make([]Result[D], len(items))
	for i, it := range items {
		out[i] = Result[D]{ID: it.Obj.ID(), Dist: it.Dist}
	}
	return out
}
