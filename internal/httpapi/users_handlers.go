// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/DuncanCos/rust-auth-back/internal/auth"
)

// userResponse is the wire shape of a directory row. The password hash
// never leaves the service.
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Mail      string    `json:"mail"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Mail:      u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.users.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetUser(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := s.users.GetByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// handleCreateUser registers a row through the same path as /subscribe so
// the password-hashing invariant holds for directory edits too.
func (s *Server) handleCreateUser(c *gin.Context) {
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
	c.JSON(http.StatusCreated, toUserResponse(user))
}

type updateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Mail     string `json:"mail" binding:"required"`
}

func (s *Server) handleUpdateUser(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and mail are required"})
		return
	}
	if err := auth.ValidateUsername(req.Username); err != nil {
		s.writeError(c, err)
		return
	}
	if err := auth.ValidateEmail(req.Mail); err != nil {
		s.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	user.Username = req.Username
	user.Email = req.Mail
	if err := s.users.Update(ctx, user); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "modified"})
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := s.users.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
