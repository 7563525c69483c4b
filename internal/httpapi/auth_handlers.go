// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DuncanCos/rust-auth-back/pkg/errutil"
)

type subscribeRequest struct {
	Username string `json:"username" binding:"required"`
	Mail     string `json:"mail" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, mail and password are required"})
		return
	}

	user, err := s.auth.Subscribe(c.Request.Context(), req.Username, req.Mail, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "created",
		"id":     user.ID.String(),
	})
}

type loginRequest struct {
	Mail     string `json:"mail" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mail and password are required"})
		return
	}

	res, err := s.auth.Login(c.Request.Context(), SessionFrom(c), req.Mail, req.Password)
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(loginOutcome(err)).Inc()
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	// The cookie must reach the caller before the body does.
	if err := s.saveSession(c); err != nil {
		s.writeError(c, err)
		return
	}

	if res.AlreadyAuthenticated {
		c.JSON(http.StatusAccepted, gin.H{
			"status":   "already connected",
			"username": res.Username,
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "connected",
		"username": res.Username,
	})
}

func loginOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return "failure"
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.auth.Logout(c.Request.Context(), SessionFrom(c)); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.saveSession(c); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// handleSessionEcho is a debug endpoint behind the access gate: it bumps a
// per-session counter and echoes the session's visible state. The counter
// exercises non-authentication session payload.
func (s *Server) handleSessionEcho(c *gin.Context) {
	ctx := c.Request.Context()
	h := SessionFrom(c)

	count, err := h.GetInt(ctx, "counter")
	if err != nil {
		s.writeError(c, err)
		return
	}
	count++
	h.Set("counter", count)

	ident, err := h.Identity(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.saveSession(c); err != nil {
		errutil.LogError(s.logger, "session save failed", err)
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"username": ident,
		"counter":  count,
	})
}
