package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
)

// withStoreTimeout bounds one resolver call against the store.
func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// timeoutError wraps a deadline failure with a hint, keeping the original
// error class for errors.Is.
func timeoutError(err error, timeout time.Duration) error {
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return vcerrors.UserError{
		Message:    "Secret store request timed out",
		Details:    fmt.Sprintf("No response within %s", timeout),
		Suggestion: timeoutSuggestion(timeout),
		Err:        err,
	}
}

func timeoutSuggestion(timeout time.Duration) string {
	if timeout < 5*time.Second {
		return "Vault can be slow behind a proxy. Try raising request_timeout to 10 or more"
	}
	return "Check Vault connectivity and authentication. Verify VAULT_ADDR"
}
