package webdav

import (
	"errors"
	"io"
	"net/http"

	"github.com/marmos91/dittodav/pkg/auth"
	"github.com/marmos91/dittodav/pkg/storage"
)

// StatusInsufficientStorage is returned for partial PUTs.
const StatusInsufficientStorage = http.StatusInsufficientStorage

// Result is the outcome of a verb handler.
type Result struct {
	// Status is the HTTP status to send.
	Status int

	// Body is sent as is. Content-Type defaults to XML when Body is set.
	Body []byte

	// Stream is copied to the client and closed. Used by GET.
	Stream io.ReadCloser

	// Err is the failure behind a 5xx status. It is logged, never sent.
	Err error
}

// halt ends a request with a bare status.
func halt(status int) Result {
	return Result{Status: status}
}

// fail ends a request with the status err maps to.
func fail(err error) Result {
	return Result{Status: statusFor(err), Err: err}
}

// statusFor maps errors to HTTP statuses:
//
//   - auth.ErrUnauthorized: 401
//   - storage.ErrNotFound, storage.ErrOutsideRoot: 404
//   - storage.ErrPermission and raw EACCES/EPERM: 403
//   - storage.ErrIsDirectory, storage.ErrNotDirectory, storage.ErrExists: 405
//   - anything else: 500
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case storage.IsNotFound(err), errors.Is(err, storage.ErrOutsideRoot):
		return http.StatusNotFound
	case storage.IsPermission(err):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrIsDirectory),
		errors.Is(err, storage.ErrNotDirectory),
		errors.Is(err, storage.ErrExists):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}
