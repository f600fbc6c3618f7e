package remote

import (
	"errors"
	"fmt"

	"github.com/plateful/plateful/internal/model"
)

// The remote layer reports failures as a closed set of typed results so the
// engine never branches on response shapes or error strings:
//
//   - *VersionConflictError — precondition failed (HTTP 409)
//   - common.ErrNotFound    — record gone server-side (HTTP 404)
//   - *TransientError       — timeouts, connection failures, 5xx, 429
//   - *PermanentError       — remaining 4xx, including validation (422)

// VersionConflictError is returned when the server rejects a conditional
// write because the asserted version is no longer current. Server carries
// the server's current record when the body could be decoded.
type VersionConflictError struct {
	ServerVersion int64
	Server        *model.Record
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: server at version %d", e.ServerVersion)
}

// TransientError wraps failures worth retrying with backoff.
type TransientError struct {
	Op     string
	Status int // 0 for network-level failures
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transient server error (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps rejections that will not succeed on retry; the
// payload has to change first.
type PermanentError struct {
	Op     string
	Status int
	Detail string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: rejected with status %d: %s", e.Op, e.Status, e.Detail)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
