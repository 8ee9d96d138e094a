package backend

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jo-hoe/gopicture/internal/core"
	"github.com/labstack/echo/v4"
)

type successBody struct {
	Message  string `json:"message"`
	Resource string `json:"resource"`
}

type successEnvelope struct {
	Success successBody `json:"success"`
}

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func successResponse(ctx echo.Context, status int, message, resource string) error {
	return ctx.JSON(status, successEnvelope{Success: successBody{Message: message, Resource: resource}})
}

func errorResponse(ctx echo.Context, status int, message string) error {
	return ctx.JSON(status, errorEnvelope{Error: errorBody{Status: status, Message: message}})
}

// failureResponse writes err as an error envelope, using the status and message of a *core.Error
func failureResponse(ctx echo.Context, handler string, err error) error {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		slog.Error(handler+": unexpected error", "status", http.StatusInternalServerError, "error", err)
		return errorResponse(ctx, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}

	if coreErr.Status >= http.StatusInternalServerError {
		slog.Error(handler+": request failed",
			"status", coreErr.Status, "kind", coreErr.Kind, "path", ctx.Request().URL.Path, "error", err)
	} else {
		slog.Warn(handler+": request rejected",
			"status", coreErr.Status, "kind", coreErr.Kind, "path", ctx.Request().URL.Path, "error", err)
	}
	return errorResponse(ctx, coreErr.Status, coreErr.Message)
}

// HTTPErrorHandler renders errors raised by echo itself (unknown routes, body limits) as error envelopes
func HTTPErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		message = http.StatusText(status)
		if status == http.StatusNotFound {
			message = core.MessageMissing
		}
	}
	if status >= http.StatusInternalServerError {
		slog.Error("HTTPErrorHandler: unhandled error", "status", status, "error", err)
	}

	var writeErr error
	if ctx.Request().Method == http.MethodHead {
		writeErr = ctx.NoContent(status)
	} else {
		writeErr = errorResponse(ctx, status, message)
	}
	if writeErr != nil {
		slog.Error("HTTPErrorHandler: failed to write error response", "error", writeErr)
	}
}
