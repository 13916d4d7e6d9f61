// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusOf(kind auth.Kind) int {
	switch kind {
	case auth.KindUnauthorized, auth.KindInvalidToken:
		return http.StatusUnauthorized
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindInvalidInput:
		return http.StatusBadRequest
	case auth.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func resultOf(kind auth.Kind) string {
	switch kind {
	case auth.KindUnauthorized:
		return observability.ResultRejected
	case auth.KindConflict:
		return observability.ResultConflict
	case auth.KindInvalidToken, auth.KindInvalidInput:
		return observability.ResultInvalid
	default:
		return observability.ResultUnavailable
	}
}

func badBody(err error) error {
	return oops.Code("HTTP_BAD_BODY").With("cause", err.Error()).Wrap(auth.ErrInvalidInput)
}

// fail writes the error body for err's kind. Detail goes to the log only.
func (s *Server) fail(c echo.Context, op string, count func(string), err error) error {
	kind := auth.KindOf(err)
	status := statusOf(kind)
	if count != nil {
		count(resultOf(kind))
	}

	ctx := c.Request().Context()
	attrs := []any{"operation", op, "kind", kind.String()}
	if status >= http.StatusInternalServerError {
		errutil.LogError(ctx, s.logger, "request failed", err, attrs...)
	} else {
		s.logger.DebugContext(ctx, "request rejected", append(attrs, errutil.Attrs(err)...)...)
	}

	if status == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, auth.TokenType)
	}
	return c.JSON(status, errorResponse{Error: kind.String()})
}

// handleEchoError renders errors raised by echo itself (unknown routes,
// body limits, panics) in the same shape as handler errors.
func (s *Server) handleEchoError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}

	body := errorResponse{Error: http.StatusText(status)}
	switch {
	case status == http.StatusInternalServerError:
		errutil.LogError(c.Request().Context(), s.logger, "unhandled error", err)
		body.Error = auth.KindInternal.String()
	case status == http.StatusRequestEntityTooLarge, status == http.StatusUnsupportedMediaType:
		body.Error = auth.KindInvalidInput.String()
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Error("write error response", "error", err)
	}
}
