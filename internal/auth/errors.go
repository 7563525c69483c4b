// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with an existing row,
// e.g. a subscribe attempt reusing an already-registered email.
var ErrConflict = errors.New("conflict")
