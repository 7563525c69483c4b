// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

// Package auth provides credential verification and the account use cases
// for the rust-auth-back service.
//
// # Domain Types
//
// User is the directory row behind every account. Users should be created
// through NewUser, which validates the username, email, and password hash;
// direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated values.
//
// # Service
//
// Service coordinates the three account operations:
//   - Subscribe - registration; hashes the password and persists the user
//   - Login - credential check against the stored hash, then marks the
//     caller's session as authenticated
//   - Logout - removes the caller's session entirely
//
// All failures carry oops error codes; the HTTP layer maps codes to
// statuses and never sees raw hashes or plaintext passwords.
package auth
