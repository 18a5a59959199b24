package vault

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/vault/api"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/metrics"
)

var notRenewableMarkers = []string{
	"not renewable",
	"past max ttl",
	"past the max ttl",
	"lease is not renewable",
}

// classify maps a raw vault/api error onto the store error classes.
// Context cancellation passes through untouched.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var storeErr *vcerrors.StoreError
	if errors.As(err, &storeErr) {
		return err
	}

	wrap := func(kind error, status int) error {
		return &vcerrors.StoreError{Op: op, Path: path, Status: status, Kind: kind, Err: err}
	}

	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.StatusCode; {
		case code == http.StatusUnauthorized, code == http.StatusForbidden:
			return wrap(vcerrors.ErrForbidden, code)
		case code == http.StatusNotFound:
			return wrap(vcerrors.ErrNotFound, code)
		case code == http.StatusBadGateway, code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
			return wrap(vcerrors.ErrUnreachable, code)
		case code == http.StatusBadRequest && op == "renew-self" && mentionsNotRenewable(respErr.Errors):
			return wrap(vcerrors.ErrNotRenewable, code)
		default:
			return wrap(vcerrors.ErrStore, code)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(vcerrors.ErrUnreachable, 0)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(vcerrors.ErrUnreachable, 0)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return wrap(vcerrors.ErrUnreachable, 0)
	}

	return wrap(vcerrors.ErrStore, 0)
}

func mentionsNotRenewable(msgs []string) bool {
	for _, m := range msgs {
		lower := strings.ToLower(m)
		for _, marker := range notRenewableMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

func isUnreachable(err error) bool {
	return errors.Is(err, vcerrors.ErrUnreachable)
}

// resultLabel is the metrics label for an outcome.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, vcerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, vcerrors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, vcerrors.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func recordResult(op string, err error) {
	metrics.RecordStoreRequest(op, resultLabel(err))
}
