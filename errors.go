package metrigo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/params"
)

var (
	// ErrEmptyDataset is returned when an index is built over zero objects.
	ErrEmptyDataset = index.ErrEmptyDataset

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = index.ErrInvalidK

	// ErrUnknownMethod is returned for a method name Build does not know.
	ErrUnknownMethod = errors.New("unknown method")
)

// translateError normalizes sub-package errors to the facade surface.
// Unclaimed-parameter errors are wrapped in *index.ConfigError unless one is
// already in the chain. Every other error, including a malformed parameter
// value or a rejected pruner setting, is returned unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var unclaimed *params.UnclaimedError
	if errors.As(err, &unclaimed) {
		var cfg *index.ConfigError
		if !errors.As(err, &cfg) {
			return index.WrapConfigError(err)
		}
	}
	return err
}

func unknownMethod(method string) error {
	return fmt.Errorf("%w: %q (want %s, %s, %s or %s)", ErrUnknownMethod, method,
		MethodVPTree, MethodProjVPTree, MethodPermVPTree, MethodPermBinVPTree)
}
