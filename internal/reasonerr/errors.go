// Package reasonerr defines the closed error taxonomy shared by every
// component. All externally surfaced failures are a ClassifiedError with a
// category, a stable short code, a retryability flag, and suggested next
// steps. Classification is idempotent.
package reasonerr

import (
	"errors"
	"fmt"
)

// Category is the top-level bucket of the taxonomy.
type Category string

const (
	CategorySession    Category = "session"
	CategoryAPI        Category = "api"
	CategoryFilesystem Category = "filesystem"
	CategoryUnknown    Category = "unknown"
)

// Code is a stable short identifier within a category.
type Code string

const (
	// session
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeSessionLocked   Code = "SESSION_LOCKED"
	CodeSessionTimeout  Code = "SESSION_TIMEOUT"

	// api
	CodeAPIAuth    Code = "API_AUTH_ERROR"
	CodeRateLimit  Code = "RATE_LIMIT_ERROR"
	CodeAPIParse   Code = "API_PARSE_ERROR"
	CodeAPITimeout Code = "API_TIMEOUT"

	// filesystem
	CodePathTraversal   Code = "PATH_TRAVERSAL"
	CodeInvalidFileType Code = "INVALID_FILE_TYPE"
	CodeFileTooLarge    Code = "FILE_TOO_LARGE"
	CodeNotAFile        Code = "NOT_A_FILE"
	CodeFSError         Code = "FS_ERROR"

	// unknown
	CodeUnknown Code = "UNKNOWN_ERROR"
)

// ClassifiedError is the one error type that crosses component boundaries.
type ClassifiedError struct {
	Category    Category
	Code        Code
	Message     string
	Retryable   bool
	Suggestions []string
	cause       error
}

func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error, preserving classification.
func (e *ClassifiedError) WithCause(err error) *ClassifiedError {
	clone := *e
	clone.cause = err
	return &clone
}

// WithContext prefixes the message with extra context (session id,
// hypothesis id). The classification is untouched.
func (e *ClassifiedError) WithContext(format string, args ...interface{}) *ClassifiedError {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...) + ": " + e.Message
	return &clone
}

// suggestions holds the fixed next-step lists per code, capped at four.
var suggestions = map[Code][]string{
	CodeSessionNotFound: {
		"Verify the session id",
		"The session may have timed out; start a new conversation",
	},
	CodeSessionLocked: {
		"Another operation is in progress on this session",
		"Retry after the current operation completes",
	},
	CodeSessionTimeout: {
		"The session was idle past the 30 minute limit",
		"Start a new conversation",
	},
	CodeAPIAuth: {
		"Check that GEMINI_API_KEY is set and valid",
		"Verify the key has access to the configured model",
	},
	CodeRateLimit: {
		"The remote service is rate limiting requests",
		"Retry after the suggested delay",
		"Reduce tournament parallelism",
	},
	CodeAPIParse: {
		"The remote response did not contain parseable JSON",
		"Retry the finalization",
		"Lower the requested detail level",
	},
	CodeAPITimeout: {
		"The remote call exceeded its deadline",
		"Retry with a larger time budget",
	},
	CodePathTraversal: {
		"File paths must stay within the project root",
		"Use paths relative to the project root",
	},
	CodeInvalidFileType: {
		"Only source, config, and documentation files are readable",
	},
	CodeFileTooLarge: {
		"Files over 10 MiB are not read",
		"Point the analysis at a narrower scope",
	},
	CodeNotAFile: {
		"The path does not name a regular file",
	},
	CodeFSError: {
		"Check that the file exists and is readable",
	},
	CodeUnknown: {
		"Check the logs for details",
	},
}

// retryable codes: rate limiting, lock contention, and remote deadlines may
// succeed on a later attempt; everything else will not.
var retryable = map[Code]bool{
	CodeSessionLocked: true,
	CodeRateLimit:     true,
	CodeAPITimeout:    true,
}

func categoryOf(code Code) Category {
	switch code {
	case CodeSessionNotFound, CodeSessionLocked, CodeSessionTimeout:
		return CategorySession
	case CodeAPIAuth, CodeRateLimit, CodeAPIParse, CodeAPITimeout:
		return CategoryAPI
	case CodePathTraversal, CodeInvalidFileType, CodeFileTooLarge, CodeNotAFile, CodeFSError:
		return CategoryFilesystem
	default:
		return CategoryUnknown
	}
}

// New builds a ClassifiedError for a known code.
func New(code Code, format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Category:    categoryOf(code),
		Code:        code,
		Message:     fmt.Sprintf(format, args...),
		Retryable:   retryable[code],
		Suggestions: suggestions[code],
	}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
