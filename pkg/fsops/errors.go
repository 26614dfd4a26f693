package fsops

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrNotFound is returned by registry lookups for unknown operation IDs,
// including operations already retired.
var ErrNotFound = errors.New("operation not found")

// ErrorCode classifies operation failures for callers and event payloads.
type ErrorCode string

const (
	CodeSourceNotFound          ErrorCode = "SourceNotFound"
	CodeDestinationExists       ErrorCode = "DestinationExists"
	CodePermissionDenied        ErrorCode = "PermissionDenied"
	CodeInsufficientSpace       ErrorCode = "InsufficientSpace"
	CodeSameLocation            ErrorCode = "SameLocation"
	CodeDestinationInsideSource ErrorCode = "DestinationInsideSource"
	CodeSymlinkLoopDetected     ErrorCode = "SymlinkLoopDetected"
	CodeCancelled               ErrorCode = "Cancelled"
	CodeIoError                 ErrorCode = "IoError"
)

// OpError is the operation failure type. Code is always set; Path, Dest and
// the space fields are filled where the code calls for them.
type OpError struct {
	Code ErrorCode
	Path string
	Dest string
	// Required and Available are set for CodeInsufficientSpace.
	Required  int64
	Available int64
	Cause     error
}

func (e *OpError) Error() string {
	switch {
	case e.Code == CodeInsufficientSpace:
		return fmt.Sprintf("%s: need %d bytes, %d available at %s", e.Code, e.Required, e.Available, e.Path)
	case e.Cause != nil && e.Path != "":
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Path)
	default:
		return string(e.Code)
	}
}

func (e *OpError) Unwrap() error {
	return e.Cause
}

// Message renders a user-facing description without internal detail.
func (e *OpError) Message() string {
	switch e.Code {
	case CodeSourceNotFound:
		return fmt.Sprintf("Source not found: %s", e.Path)
	case CodeDestinationExists:
		return fmt.Sprintf("Destination already exists: %s", e.Path)
	case CodePermissionDenied:
		return fmt.Sprintf("Permission denied: %s", e.Path)
	case CodeInsufficientSpace:
		return fmt.Sprintf("Not enough space: need %s, %s available",
			formatBytes(e.Required), formatBytes(e.Available))
	case CodeSameLocation:
		return "Source and destination are the same location"
	case CodeDestinationInsideSource:
		return "Cannot place a folder inside itself"
	case CodeSymlinkLoopDetected:
		return fmt.Sprintf("Symbolic link loop detected at %s", e.Path)
	case CodeCancelled:
		return "Operation cancelled"
	default:
		if e.Cause != nil {
			return fmt.Sprintf("I/O error: %v", e.Cause)
		}
		return "I/O error"
	}
}

// IsCode reports whether err is an *OpError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && opErr.Code == code
}

func sourceNotFound(path string) *OpError {
	return &OpError{Code: CodeSourceNotFound, Path: path}
}

func cancelled() *OpError {
	return &OpError{Code: CodeCancelled}
}

// ioError classifies a raw filesystem error, promoting permission failures
// to their own code.
func ioError(path string, err error) *OpError {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr
	}
	code := CodeIoError
	if errors.Is(err, fs.ErrPermission) {
		code = CodePermissionDenied
	}
	return &OpError{Code: code, Path: path, Cause: err}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
