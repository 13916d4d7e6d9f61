// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

const userContextKey = "gatehouse.user"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	Status string         `json:"status"`
	User   *auth.UserView `json:"user"`
}

type tokenResponse struct {
	Status string `json:"status"`
	auth.InBandTokens
}

func (s *Server) signup(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, "signup", s.countSignup, badBody(err))
	}
	view, err := s.svc.Signup(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return s.fail(c, "signup", s.countSignup, err)
	}
	s.countSignup(observability.ResultSuccess)
	return c.JSON(http.StatusCreated, signupResponse{Status: "created", User: view})
}

func (s *Server) login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, "login", s.countLogin, badBody(err))
	}
	_, pair, err := s.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return s.fail(c, "login", s.countLogin, err)
	}
	s.countLogin(observability.ResultSuccess)
	return s.deliver(c, pair)
}

func (s *Server) refresh(c echo.Context) error {
	cookie, err := c.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return s.fail(c, "refresh", s.countRefresh, auth.NewInvalidTokenError("missing refresh cookie"))
	}
	_, pair, err := s.svc.Refresh(c.Request().Context(), cookie.Value)
	if err != nil {
		if auth.KindOf(err) == auth.KindInvalidToken {
			c.SetCookie(s.cookies.expired())
		}
		return s.fail(c, "refresh", s.countRefresh, err)
	}
	s.countRefresh(observability.ResultSuccess)
	return s.deliver(c, pair)
}

func (s *Server) logout(c echo.Context) error {
	c.SetCookie(s.cookies.expired())
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) me(c echo.Context) error {
	user, ok := c.Get(userContextKey).(*auth.UserRecord)
	if !ok {
		return s.fail(c, "me", nil, auth.NewInvalidTokenError("missing user"))
	}
	return c.JSON(http.StatusOK, user.View())
}

// deliver routes each credential by its Restricted flag: restricted ones go
// only into http-only cookies, the rest into the body and, for the access
// token, the Authorization header.
func (s *Server) deliver(c echo.Context, pair *auth.IssuedTokenPair) error {
	if pair.Access.Restricted {
		c.SetCookie(s.cookies.access(pair.Access.Value, pair.Access.ExpiresAt))
	} else {
		c.Response().Header().Set(echo.HeaderAuthorization, auth.TokenType+" "+pair.Access.Value)
	}
	if pair.Refresh.Restricted {
		c.SetCookie(s.cookies.refresh(pair.Refresh.Value, pair.Refresh.ExpiresAt))
	}
	return c.JSON(http.StatusOK, tokenResponse{Status: "success", InBandTokens: pair.InBand()})
}

// requireBearer resolves the Authorization bearer token, or a restricted
// access token cookie, to a user.
func (s *Server) requireBearer() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization + ",cookie:" + AccessCookieName,
		AuthScheme: auth.TokenType,
		Validator: func(key string, c echo.Context) (bool, error) {
			user, err := s.svc.CurrentUser(c.Request().Context(), key)
			if err != nil {
				return false, err
			}
			c.Set(userContextKey, user)
			return true, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			if auth.KindOf(err) == auth.KindInternal {
				err = auth.NewInvalidTokenError("missing bearer token")
			}
			return s.fail(c, "authenticate", nil, err)
		},
	})
}

func (s *Server) countSignup(result string) {
	if s.metrics != nil {
		s.metrics.SignupsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Server) countLogin(result string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Server) countRefresh(result string) {
	if s.metrics != nil {
		s.metrics.RefreshesTotal.WithLabelValues(result).Inc()
	}
}
