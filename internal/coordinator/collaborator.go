package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/kazz187/agentgate/internal/action"
)

// Executor runs an allowed action against the outside world on behalf of an
// issue's task. Nothing runs before an Allow verdict.
type Executor interface {
	Run(ctx context.Context, issueNumber int, act action.Action) (string, error)
}

// TransientError marks a collaborator failure worth retrying with backoff.
// Anything not wrapped in one terminates the task on first failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so the coordinator retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
