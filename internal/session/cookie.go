// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package session

import "net/http"

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "id"

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Name     string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// normalize applies safe defaults without breaking callers.
func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// ReadCookie extracts the session ID from the request, or "" when the
// caller has no session cookie.
func ReadCookie(r *http.Request, opts CookieOptions) string {
	opts = opts.normalize()
	c, err := r.Cookie(opts.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetCookie issues the session cookie to the client. Session cookies carry
// no Expires attribute; lifetime is governed server-side by idle expiry.
func SetCookie(w http.ResponseWriter, sessionID string, opts CookieOptions) {
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    sessionID,
		Path:     opts.Path,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     opts.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
