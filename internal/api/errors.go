package api

import (
	"errors"
	"fmt"
	"net/http"

	"botvac-bridge/internal/utils"

	"github.com/labstack/echo/v4"
)

type AppError struct {
	Code    int    // HTTP status code
	Message string // User-facing message
	err     error  // logged, never sent
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.err
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: message}
}

func NewBadRequestError(message string, originalError ...error) *AppError {
	e := &AppError{Code: http.StatusBadRequest, Message: message}
	if len(originalError) > 0 {
		e.err = originalError[0]
	}
	return e
}

func NewInternalServerError(message string, originalError error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: message, err: originalError}
}

// HTTPErrorHandler renders every handler error as a StandardResponse.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *AppError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		if internal := appErr.Unwrap(); internal != nil {
			utils.Logger.WithField("status_code", appErr.Code).
				Infof("Error handled: %s: %v", appErr.Message, internal)
		}
		_ = c.JSON(appErr.Code, ErrorResponse(appErr.Message))
	case errors.As(err, &httpErr):
		_ = c.JSON(httpErr.Code, ErrorResponse(fmt.Sprint(httpErr.Message)))
	default:
		utils.Logger.Errorf("Unhandled error occurred (%T): %v", err, err)
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse("An unexpected internal error occurred."))
	}
}
