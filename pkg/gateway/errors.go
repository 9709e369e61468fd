package gateway

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error taxonomy. Every backend failure surfaces wrapped around one of
// these sentinels so callers can branch with errors.Is.
var (
	// ErrUnavailable covers transport failures and exceeded deadlines.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrThrottled covers rate and quota rejections.
	ErrThrottled = errors.New("backend throttled")

	// ErrInvalid covers argument and shape failures.
	ErrInvalid = errors.New("invalid request")

	// ErrNotFound marks an absent document or user.
	ErrNotFound = errors.New("not found")
)

// classify maps a backend error onto the taxonomy, keeping the original
// message and the failed operation in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	case codes.ResourceExhausted:
		return fmt.Errorf("%s: %w: %v", op, ErrThrottled, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return fmt.Errorf("%s: %w: %v", op, ErrInvalid, err)
	case codes.NotFound:
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// IsTransient reports whether an error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrThrottled)
}
