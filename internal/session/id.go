// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package session

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/samber/oops"
)

// IDBytes is the entropy of a session ID. 32 bytes = 256 bits, well above
// the 128-bit minimum for unguessable tokens.
const IDBytes = 32

// GenerateID generates a cryptographically secure session ID.
func GenerateID() (string, error) {
	b := make([]byte, IDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_ID_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", IDBytes).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
