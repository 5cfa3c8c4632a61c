package transfer

import "errors"

// ErrAlreadyPending rejects a second snapshot request while one is still
// outstanding for the same room. The existing request keeps its deadline.
var ErrAlreadyPending = errors.New("snapshot transfer already in progress")
