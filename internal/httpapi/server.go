// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

// Package httpapi exposes the auth and user-directory operations over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/DuncanCos/rust-auth-back/internal/auth"
	"github.com/DuncanCos/rust-auth-back/internal/observability"
	"github.com/DuncanCos/rust-auth-back/internal/session"
	"github.com/DuncanCos/rust-auth-back/pkg/errutil"
)

// Server wires the auth service, user repository, and session store into a
// gin router.
type Server struct {
	auth    *auth.Service
	users   auth.UserRepository
	store   session.Store
	cookies session.CookieOptions
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewServer creates a Server. metrics may be nil to disable instrumentation.
func NewServer(
	authSvc *auth.Service,
	users auth.UserRepository,
	store session.Store,
	cookies session.CookieOptions,
	metrics *observability.Metrics,
	logger *slog.Logger,
) (*Server, error) {
	if authSvc == nil {
		return nil, oops.Code("SERVER_INVALID").Errorf("auth service is required")
	}
	if users == nil {
		return nil, oops.Code("SERVER_INVALID").Errorf("user repository is required")
	}
	if store == nil {
		return nil, oops.Code("SERVER_INVALID").Errorf("session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		auth:    authSvc,
		users:   users,
		store:   store,
		cookies: cookies,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Router builds the route tree. Session resolution wraps everything; the
// access gate wraps only the protected routes (/session and /users).
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	// The observed deployment fronts a browser SPA from any origin.
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowCredentials = false
	r.Use(cors.New(corsCfg))

	r.Use(s.Sessions())

	r.POST("/subscribe", s.handleSubscribe)
	r.POST("/login", s.handleLogin)
	r.GET("/logout", s.handleLogout)

	gated := r.Group("", s.RequireSession())
	gated.GET("/session", s.handleSessionEcho)

	users := gated.Group("/users")
	users.GET("", s.handleListUsers)
	users.POST("", s.handleCreateUser)
	users.GET("/:id", s.handleGetUser)
	users.PUT("/:id", s.handleUpdateUser)
	users.DELETE("/:id", s.handleDeleteUser)

	return r
}

// requestLog emits one structured log line per request and feeds the
// request counter.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()
		}
	}
}

// writeError maps an operation failure to its fixed status and message.
// Nothing from the underlying error reaches the response body; details are
// logged server-side only.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	if oopsErr, ok := oops.AsOops(err); ok {
		switch oopsErr.Code() {
		case "AUTH_INVALID_CREDENTIALS":
			status, message = http.StatusNotAcceptable, "wrong email or password"
		case "AUTH_REQUIRED":
			status, message = http.StatusForbidden, "not connected"
		case "USER_CONFLICT":
			status, message = http.StatusExpectationFailed, "user already exists"
		case "SESSION_STORE_FAILED":
			status, message = http.StatusExpectationFailed, "session store failure"
		case "USER_NOT_FOUND":
			status, message = http.StatusNotFound, "user not found"
		case "USER_INVALID_USERNAME", "USER_INVALID_EMAIL", "AUTH_EMPTY_PASSWORD":
			status, message = http.StatusBadRequest, oopsErr.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		errutil.LogError(s.logger, "request failed", err)
	}
	c.JSON(status, gin.H{"error": message})
}
