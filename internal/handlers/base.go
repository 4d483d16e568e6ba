package handlers

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/compliance"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/portal"
	"github.com/Ramsey-B/clover/pkg/reconcile"
)

// BindRequest binds and validates a request body.
func BindRequest[T any](c echo.Context) (T, error) {
	var v T
	if err := c.Bind(&v); err != nil {
		return v, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := models.Validate(v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}
	return v, nil
}

// RequireParam returns a path parameter or a 400.
func RequireParam(c echo.Context, param string) (string, error) {
	value := c.Param(param)
	if value == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}
	return value, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// ToHTTPError maps portal errors onto status codes for the error middleware.
func ToHTTPError(err error) error {
	if err == nil || httperror.IsHTTPError(err) {
		return err
	}

	var (
		violation *compliance.ViolationError
		storeErr  *docstore.StoreError
		notFound  *portal.NotFoundError
		input     *portal.InputError
	)
	switch {
	case errors.Is(err, portal.ErrNotLoggedIn), errors.Is(err, access.ErrAuthenticationFailed):
		return httperror.NewHTTPError(http.StatusUnauthorized, err.Error())
	case access.IsDenied(err):
		return httperror.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.As(err, &violation):
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error()).AddMetaValue("blocked", violation.Blocked)
	case docstore.IsUnavailable(err):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case docstore.IsRejected(err):
		he := httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		if errors.As(err, &storeErr) && storeErr.Suggestion != "" {
			he = he.AddMetaValue("suggestion", storeErr.Suggestion)
		}
		return he
	case errors.As(err, &notFound), errors.Is(err, reconcile.ErrConversationNotFound), errors.Is(err, reconcile.ErrPageNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &input), errors.Is(err, portal.ErrEmptyMessage), compliance.IsInvalidContent(err):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, portal.ErrPageNotConnected), errors.Is(err, reconcile.ErrPageNotSyncable):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}
	if perr, ok := graph.AsPlatformError(err); ok {
		return httperror.NewHTTPError(http.StatusBadGateway, perr.Error()).AddMetaValue("platform_code", perr.Code)
	}
	return httperror.WrapError(http.StatusInternalServerError, err)
}

// Unauthorized returns a 401 Unauthorized error
func Unauthorized(message string) error {
	return httperror.NewHTTPError(http.StatusUnauthorized, message)
}
