package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/streamify/backend/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// friendshipError maps workflow errors to HTTP errors. Unknown errors become a 500 whose
// detail is only logged.
func friendshipError(err error) error {
	switch {
	case errors.Is(err, services.ErrSelfRequest),
		errors.Is(err, services.ErrAlreadyFriends),
		errors.Is(err, services.ErrDuplicateRequest),
		errors.Is(err, services.ErrRequestNotPending):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotAuthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrRecipientNotFound),
		errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return internalError(err)
	}
}

func internalError(err error) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)).SetInternal(err)
}

// HTTPErrorHandler renders errors as {"message": "..."} and logs server side failures with
// their internal cause.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		he = internalError(err)
	}

	message, ok := he.Message.(string)
	if !ok || he.Code >= http.StatusInternalServerError {
		message = http.StatusText(he.Code)
	}

	if he.Code >= http.StatusInternalServerError {
		cause := he.Internal
		if cause == nil {
			cause = err
		}
		logrus.WithFields(logrus.Fields{
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			"method":     c.Request().Method,
			"uri":        c.Request().RequestURI,
			"status":     he.Code,
		}).WithError(cause).Error("Request failed")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.JSON(he.Code, ErrorResponse{Message: message})
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to write error response")
	}
}
