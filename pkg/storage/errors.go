package storage

import (
	"errors"
	"io/fs"
	"syscall"
)

// Errors shared by every adapter. Implementations wrap them with context:
//
//	return fmt.Errorf("stat %s: %w", p, storage.ErrNotFound)
//
// The WebDAV layer maps them to status codes with errors.Is.
var (
	// ErrNotFound indicates the node does not exist.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrNotFound = errors.New("node not found")

	// ErrOutsideRoot indicates a path that resolves outside the adapter root,
	// for example through ".." components.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrOutsideRoot = errors.New("path outside adapter root")

	// ErrPermission indicates the backend refused access.
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrPermission = errors.New("permission denied")

	// ErrIsDirectory indicates a file operation on a directory.
	ErrIsDirectory = errors.New("node is a directory")

	// ErrNotDirectory indicates a directory operation on a file.
	ErrNotDirectory = errors.New("node is not a directory")

	// ErrExists indicates the target of a create or rename already exists.
	ErrExists = errors.New("node already exists")
)

// IsNotFound reports whether err means the node is absent, including raw
// filesystem errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// IsPermission reports whether err is an access refusal, including raw
// EACCES and EPERM from the operating system.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EPERM)
}
