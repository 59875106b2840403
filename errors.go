package smbpoll

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionClosed indicates the connection has been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrPoolExhausted indicates all connections in the pool are in use.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrAuthenticationFailed indicates authentication failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidPath indicates the path is invalid.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotDirectory indicates the path is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrTraversalFailed indicates a directory could not be listed during a poll.
	ErrTraversalFailed = errors.New("traversal failed")

	// ErrTransferFailed indicates the share rejected a store operation.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrDirectoryCreate indicates a parent directory could not be built
	// before an upload. It is only ever reported as a warning.
	ErrDirectoryCreate = errors.New("cannot build directory")
)

// PathError records an error and the operation and path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// wrapPathError wraps an error with operation and path information.
func wrapPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	// If it's already a PathError for the same path, don't double-wrap
	var pe *PathError
	if errors.As(err, &pe) && pe.Path == path {
		return err
	}

	return &PathError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// TraversalError is returned by a poll when listing a directory failed.
// Files accumulated before the failure are discarded.
type TraversalError struct {
	Path string
	Err  error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("poll %s: %v: %v", e.Path, ErrTraversalFailed, e.Err)
}

func (e *TraversalError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTraversalFailed.
func (e *TraversalError) Is(target error) bool { return target == ErrTraversalFailed }

// newTraversalError wraps a listing failure, keeping the innermost path when
// the failure bubbles up through several recursive calls.
func newTraversalError(path string, err error) error {
	var te *TraversalError
	if errors.As(err, &te) {
		return err
	}
	return &TraversalError{Path: path, Err: err}
}

// TransferError is returned by a write when the store operation failed.
type TransferError struct {
	Name string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("error writing file [%s]: %v", e.Name, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransferFailed.
func (e *TransferError) Is(target error) bool { return target == ErrTransferFailed }

// DirectoryCreateWarning describes a parent directory that could not be
// built ahead of an upload. The upload is attempted regardless.
type DirectoryCreateWarning struct {
	Dir string
	Err error
}

func (w *DirectoryCreateWarning) Error() string {
	return fmt.Sprintf("%v [%s]: %v", ErrDirectoryCreate, w.Dir, w.Err)
}

func (w *DirectoryCreateWarning) Unwrap() error { return w.Err }

// Is reports whether target is ErrDirectoryCreate.
func (w *DirectoryCreateWarning) Is(target error) bool { return target == ErrDirectoryCreate }

// convertError converts common errors to fs package errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	// Already a standard error
	if errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrInvalid) ||
		errors.Is(err, fs.ErrClosed) {
		return err
	}

	switch {
	case errors.Is(err, ErrConnectionClosed):
		return fs.ErrClosed
	case errors.Is(err, ErrInvalidPath):
		return fs.ErrInvalid
	case errors.Is(err, ErrAuthenticationFailed):
		return fs.ErrPermission
	}

	return err
}

// netError interface for network errors.
type netError interface {
	Timeout() bool
	Temporary() bool
}

// isRetryable returns true if the error indicates a transient failure
// that might succeed if retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr netError
	if errors.As(err, &netErr) {
		if netErr.Temporary() {
			return true
		}
		if netErr.Timeout() {
			return true
		}
	}

	switch {
	case errors.Is(err, ErrConnectionClosed):
		return true
	case errors.Is(err, ErrPoolExhausted):
		return true
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != nil && unwrapped != err {
		return isRetryable(unwrapped)
	}

	return false
}
