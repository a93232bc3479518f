package http

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/shadowing/internal/errors"
	"github.com/windfall/shadowing/pkg/response"
)

func handleError(w http.ResponseWriter, log zerolog.Logger, err error) {
	if appErr, ok := errors.As(err); ok {
		if appErr.HTTPStatus() >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("Request failed")
		}
		response.Error(w, appErr.HTTPStatus(), appErr)
		return
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		response.Error(w, http.StatusGatewayTimeout, errors.Wrap(errors.ErrTimeout, "request timed out", err))
		return
	}
	log.Error().Err(err).Msg("Unhandled error")
	response.Error(w, http.StatusInternalServerError, errors.Internal("internal server error"))
}

// idParam reads a positive integer URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validation("invalid " + name)
	}
	return id, nil
}
