package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Caches, stores and clients return
// these (optionally wrapped) so callers can branch with errors.Is:
// - ErrNotFound: entry does not exist or has expired
// - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
