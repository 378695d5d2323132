package reasonerr

import (
	"context"
	"errors"
	"io/fs"
	"strings"
)

// Classify maps an arbitrary error to a ClassifiedError. Errors that are
// already classified pass through unchanged, which makes Classify idempotent.
// Heterogeneous errors from third-party code are mapped by substring
// heuristics over their message.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeAPITimeout, "operation deadline exceeded").WithCause(err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return New(CodeFSError, "file does not exist").WithCause(err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return New(CodeFSError, "permission denied").WithCause(err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "rate limit", "quota", "resource exhausted", "429", "too many requests"):
		return New(CodeRateLimit, "remote service rate limit").WithCause(err)
	case containsAny(msg, "api key", "unauthorized", "unauthenticated", "401", "403", "permission denied"):
		return New(CodeAPIAuth, "remote service rejected credentials").WithCause(err)
	case containsAny(msg, "deadline exceeded", "timed out", "timeout"):
		return New(CodeAPITimeout, "remote call timed out").WithCause(err)
	case containsAny(msg, "no such file", "not a directory"):
		return New(CodeFSError, "filesystem error").WithCause(err)
	}

	return New(CodeUnknown, "unclassified error").WithCause(err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
