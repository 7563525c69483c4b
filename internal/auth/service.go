// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/DuncanCos/rust-auth-back/internal/session"
)

// Service provides the subscribe, login, and logout operations.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewService creates a new Service.
func NewService(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  users,
		hasher: hasher,
		logger: logger,
	}, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Subscribe registers a new user. The password is hashed first; a hashing
// failure aborts the registration with no row written, it is never
// downgraded to storing a placeholder value. No session is established.
func (s *Service) Subscribe(ctx context.Context, username, email, password string) (*User, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, email, hash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code("USER_CONFLICT").
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("USER_PERSIST_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	s.logger.Info("user subscribed", "username", username)
	return user, nil
}

// LoginResult reports the outcome of a successful or idempotent login.
type LoginResult struct {
	Username string

	// AlreadyAuthenticated is true when the caller's session was already
	// logged in and the login was a no-op.
	AlreadyAuthenticated bool
}

// Login authenticates a caller against the user directory and marks the
// session as authenticated. An already-authenticated session short-circuits
// without touching the stored entry. Unknown emails still run a hash
// verification against a fixed dummy hash so that "no such account" and
// "wrong password" are indistinguishable by response time.
func (s *Service) Login(ctx context.Context, sess *session.Handle, email, password string) (LoginResult, error) {
	ident, err := sess.Identity(ctx)
	if err != nil {
		return LoginResult{}, err
	}
	if ident != "" {
		return LoginResult{Username: ident, AlreadyAuthenticated: true}, nil
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	// Pick the hash to verify against: the stored one, or the dummy when
	// the account does not exist, to keep timing uniform.
	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return LoginResult{}, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		// A malformed stored hash is logged server-side but reported to
		// the caller exactly like a wrong password, to avoid an oracle
		// distinguishing corrupt data from bad credentials.
		if userExists {
			s.logger.Error("stored password hash failed verification",
				"username", user.Username, "error", verifyErr)
		}
		valid = false
	}

	if !userExists || !valid {
		return LoginResult{}, oops.Code("AUTH_INVALID_CREDENTIALS").
			Errorf("invalid email or password")
	}

	// The sole authenticating action.
	sess.SetIdentity(user.Username)

	s.logger.Info("user logged in", "username", user.Username)
	return LoginResult{Username: user.Username}, nil
}

// Logout destroys the caller's session entirely. An unauthenticated caller
// is rejected; a store failure during removal is reported as a server-side
// failure, distinct from "not authenticated".
func (s *Service) Logout(ctx context.Context, sess *session.Handle) error {
	ident, err := sess.Identity(ctx)
	if err != nil {
		return err
	}
	if ident == "" {
		return oops.Code("AUTH_REQUIRED").Errorf("not connected")
	}

	if err := sess.Destroy(ctx); err != nil {
		return err
	}

	s.logger.Info("user logged out", "username", ident)
	return nil
}
