// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DuncanCos/rust-auth-back/internal/session"
	"github.com/DuncanCos/rust-auth-back/pkg/errutil"
)

// sessionContextKey is the gin context key holding the request's session handle.
const sessionContextKey = "authd.session"

// SessionFrom returns the session handle bound to the request.
// The session middleware guarantees it is present on every route.
func SessionFrom(c *gin.Context) *session.Handle {
	h, _ := c.MustGet(sessionContextKey).(*session.Handle)
	return h
}

// Sessions resolves the caller's session cookie into a per-request Handle
// and exposes it to downstream handlers. Handlers that mutate the session
// persist it with saveSession before writing their response; this
// middleware flushes anything left behind so no committed mutation is lost
// (a cookie can no longer be issued at that point, which is logged).
func (s *Server) Sessions() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := session.ReadCookie(c.Request, s.cookies)
		if id != "" {
			// Only IDs the store itself issued are honored. A planted or
			// expired cookie value means no session, so any state this
			// request creates lands under a freshly generated ID.
			known, err := s.store.Exists(c.Request.Context(), id)
			if err != nil {
				errutil.LogError(s.logger, "session lookup failed", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session store failure"})
				return
			}
			if !known {
				id = ""
			}
		}
		h := session.NewHandle(s.store, id)
		c.Set(sessionContextKey, h)

		c.Next()

		hadID := h.ID() != ""
		if err := h.Flush(c.Request.Context()); err != nil {
			errutil.LogError(s.logger, "session flush after handler failed", err)
			return
		}
		if !hadID && h.ID() != "" {
			s.logger.Warn("session created after response was written; cookie not issued",
				"path", c.Request.URL.Path)
		}
	}
}

// RequireSession is the access gate for protected routes: callers without
// an authenticated session are rejected before the downstream handler
// runs. It only reads the session, never writes it.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := SessionFrom(c).Identity(c.Request.Context())
		if err != nil {
			errutil.LogError(s.logger, "session lookup failed in access gate", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session store failure"})
			return
		}
		if ident == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not connected"})
			return
		}
		c.Next()
	}
}

// saveSession flushes buffered session mutations and keeps the caller's
// cookie in step: issued when this request allocated the session, cleared
// when the session was destroyed. Must run before the response is written.
func (s *Server) saveSession(c *gin.Context) error {
	h := SessionFrom(c)
	if h.Destroyed() {
		session.ClearCookie(c.Writer, s.cookies)
		return nil
	}
	if err := h.Flush(c.Request.Context()); err != nil {
		return err
	}
	if h.Fresh() {
		session.SetCookie(c.Writer, h.ID(), s.cookies)
	}
	return nil
}
