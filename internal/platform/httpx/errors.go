package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// Client facing titles. Upstream detail only reaches the logs.
const (
	TitleInvalid      = "Invalid parameters"
	TitleUnauthorized = "Unauthorized"
	TitleForbidden    = "Forbidden"
	TitleNotFound     = "Not found"
	TitleTimeout      = "Query timeout"
	TitleInternal     = "Internal server error"

	timeoutMessage = "The query took too long. Narrow the date range or the filters and try again."
)

// Fail maps err onto a response. Requests abandoned by the client get no body.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusBadRequest, ErrorBody{Error: TitleInvalid, Details: verr.Details})
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, TitleUnauthorized)
	case errors.Is(err, shared.ErrForbidden):
		logger.Warn(op+" forbidden", slog.Any("error", err))
		Problem(w, http.StatusForbidden, TitleForbidden)
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, TitleNotFound)
	case shared.IsTimeout(err):
		logger.Warn(op+" timeout", slog.Any("error", err))
		JSON(w, http.StatusInternalServerError, ErrorBody{Error: TitleTimeout, Message: timeoutMessage, Retryable: true})
	case errors.Is(err, context.Canceled) && r != nil && r.Context().Err() != nil:
		logger.Info(op+" cancelled by client", slog.String("path", r.URL.Path))
	default:
		logger.Error(op+" failed", slog.Any("error", err))
		Problem(w, http.StatusInternalServerError, TitleInternal)
	}
}
