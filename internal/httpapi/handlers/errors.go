package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/splicevod/splicevod/internal/apperr"
)

// statusFor maps an apperr.Kind to the HTTP status §7 assigns it. This
// is the one place in the system that maps a Kind to an HTTP status —
// every internal package returns a Kind and leaves the transport mapping
// to the HTTP boundary.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindExpired:
		return http.StatusRequestTimeout
	case apperr.KindStoreNotFound:
		return http.StatusNotFound
	case apperr.KindStoreTransient:
		return http.StatusServiceUnavailable
	case apperr.KindAssemblerFailed:
		return http.StatusInternalServerError
	default:
		// bad-request, unknown-session, unknown-representation,
		// corrupt-metadata, unsupported-metadata-version, no-such-track,
		// degenerate-track, out-of-range-low, out-of-range-high, no-rap:
		// all synchronous parse/plan failures reported as 400.
		return http.StatusBadRequest
	}
}

// toHumaError translates any error into a huma.StatusError, using its
// apperr.Kind when present and falling back to 500 for anything else
// (a bug, not a modeled failure).
func toHumaError(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := apperr.KindOf(err)
	if !ok {
		return huma.Error500InternalServerError(err.Error())
	}
	return huma.NewError(statusFor(kind), err.Error(), err)
}
