package pgstore

import "errors"

// ErrIncrementFunctionMissing means the increment_usage() SQL function is not
// installed; callers should run migrations or use the non-atomic fallback.
var ErrIncrementFunctionMissing = errors.New("pgstore: increment_usage function is missing")
