package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// statusFor maps domain sentinel errors onto HTTP status codes.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, true
	case errors.Is(err, models.ErrAliasConflict), errors.Is(err, models.ErrMergeConflict):
		return http.StatusConflict, true
	case errors.Is(err, models.ErrInvalidMerge), errors.Is(err, models.ErrMergeVetoed):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, true
	}
	return 0, false
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if status, ok := statusFor(err); ok {
			code = status
			message = err.Error()
			var conflict *models.AliasConflictError
			if errors.As(err, &conflict) {
				meta["existing_team_id"] = conflict.Existing.TeamID
				meta["attempted_team_id"] = conflict.Attempted.TeamID
			}
		}

		if httperror.IsHTTPError(err) {
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			if httperr.Meta != nil {
				meta = httperr.Meta
			}
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
