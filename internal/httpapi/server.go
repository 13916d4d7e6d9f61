// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the auth service over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// Service is the slice of auth.Service the handlers call.
type Service interface {
	Signup(ctx context.Context, email, password string) (*auth.UserView, error)
	Login(ctx context.Context, email, password string) (*auth.UserRecord, *auth.IssuedTokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.UserRecord, *auth.IssuedTokenPair, error)
	CurrentUser(ctx context.Context, accessToken string) (*auth.UserRecord, error)
}

// Options configures a Server. Metrics may be nil.
type Options struct {
	Logger       *slog.Logger
	Metrics      *observability.Metrics
	CookieSecure bool
	CookieDomain string
	// BodyLimit caps request bodies, in echo's size syntax. Default "64K".
	BodyLimit string
}

// Server is the HTTP front of the auth service.
type Server struct {
	echo       *echo.Echo
	svc        Service
	logger     *slog.Logger
	metrics    *observability.Metrics
	cookies    cookieJar
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// New builds the echo instance and registers the /auth routes.
func New(svc Service, opts Options) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("auth service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BodyLimit == "" {
		opts.BodyLimit = "64K"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  opts.Logger.With("component", "http"),
		metrics: opts.Metrics,
		cookies: cookieJar{secure: opts.CookieSecure, domain: opts.CookieDomain},
	}
	e.HTTPErrorHandler = s.handleEchoError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "0",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))
	e.Use(middleware.BodyLimit(opts.BodyLimit))
	e.Use(tracing)
	e.Use(s.requestLogger())
	e.Use(noStore)

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	g := s.echo.Group("/auth")
	g.POST("/signup", s.signup)
	g.POST("/login", s.login)
	g.POST("/refresh", s.refresh)
	g.POST("/logout", s.logout)
	g.GET("/me", s.me, s.requireBearer())
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and serves in the background. The returned channel
// carries a serve failure and is closed when the server stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_RUNNING").Errorf("http server already running")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	})
}

// tracing opens a server span per request with the global tracer provider,
// so request logs carry trace and span ids when a provider is installed.
func tracing(next echo.HandlerFunc) echo.HandlerFunc {
	tracer := otel.Tracer("github.com/gatehouse/gatehouse/internal/httpapi")
	return func(c echo.Context) error {
		req := c.Request()
		ctx, span := tracer.Start(req.Context(), req.Method+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			span.RecordError(err)
		}
		span.SetAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("http.route", c.Path()),
		)
		return err
	}
}

// noStore keeps credentials out of shared caches.
func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
		return next(c)
	}
}
