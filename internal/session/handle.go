// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package session

import (
	"context"

	"github.com/samber/oops"
)

// Handle is a per-request view of one caller's session. It buffers
// mutations and applies them to the Store on Flush, so a handler that
// fails midway leaves the stored entry untouched. Handles are bound to a
// single request and must not be shared across requests.
type Handle struct {
	store Store

	id        string // "" until a write allocates one
	fresh     bool   // id allocated during this request
	destroyed bool

	pending  map[string]any
	identity *string
}

// NewHandle binds a handle to a store-issued session ID, or to no session
// when id is empty. A raw cookie value must be vetted with Store.Exists
// before being passed here; the handle trusts its ID.
func NewHandle(store Store, id string) *Handle {
	return &Handle{
		store:   store,
		id:      id,
		pending: make(map[string]any),
	}
}

// ID returns the bound session ID, or "" if none has been allocated.
func (h *Handle) ID() string {
	return h.id
}

// Fresh reports whether the session ID was allocated during this request,
// meaning the caller still needs to receive the cookie.
func (h *Handle) Fresh() bool {
	return h.fresh
}

// Destroyed reports whether Destroy was called, meaning the caller's
// cookie must be invalidated.
func (h *Handle) Destroyed() bool {
	return h.destroyed
}

// IsEmpty reports whether the session holds nothing: no ID yet, or an
// entry with zero fields, no identity, and no buffered writes.
func (h *Handle) IsEmpty(ctx context.Context) (bool, error) {
	if len(h.pending) > 0 || h.identity != nil {
		return false, nil
	}
	if h.id == "" || h.destroyed {
		return true, nil
	}
	ident, err := h.store.Identity(ctx, h.id)
	if err != nil {
		return false, oops.Code("SESSION_STORE_FAILED").Wrap(err)
	}
	if ident != "" {
		return false, nil
	}
	fields, err := h.store.Fields(ctx, h.id)
	if err != nil {
		return false, oops.Code("SESSION_STORE_FAILED").Wrap(err)
	}
	return len(fields) == 0, nil
}

// Identity returns the authenticated username, or "" when the caller is
// not authenticated. Buffered identity from this request wins.
func (h *Handle) Identity(ctx context.Context) (string, error) {
	if h.identity != nil {
		return *h.identity, nil
	}
	if h.id == "" || h.destroyed {
		return "", nil
	}
	ident, err := h.store.Identity(ctx, h.id)
	if err != nil {
		return "", oops.Code("SESSION_STORE_FAILED").Wrap(err)
	}
	return ident, nil
}

// SetIdentity buffers the authenticating write. This is the sole action
// that marks a session as logged in.
func (h *Handle) SetIdentity(username string) {
	h.identity = &username
	h.destroyed = false
}

// deletedField marks a buffered field removal in the pending map.
var deletedField any = &struct{}{}

// Get returns a session field value. Absent fields return (nil, false, nil);
// absence is never an error.
func (h *Handle) Get(ctx context.Context, field string) (any, bool, error) {
	if v, ok := h.pending[field]; ok {
		if v == deletedField {
			return nil, false, nil
		}
		return v, true, nil
	}
	if h.id == "" || h.destroyed {
		return nil, false, nil
	}
	v, ok, err := h.store.Get(ctx, h.id, field)
	if err != nil {
		return nil, false, oops.Code("SESSION_STORE_FAILED").Wrap(err)
	}
	return v, ok, nil
}

// GetString returns a string field, or "" when absent or of another type.
func (h *Handle) GetString(ctx context.Context, field string) (string, error) {
	v, ok, err := h.Get(ctx, field)
	if err != nil || !ok {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// GetInt returns an int field, or 0 when absent or of another type.
func (h *Handle) GetInt(ctx context.Context, field string) (int, error) {
	v, ok, err := h.Get(ctx, field)
	if err != nil || !ok {
		return 0, err
	}
	n, _ := v.(int)
	return n, nil
}

// Set buffers a field write.
func (h *Handle) Set(field string, value any) {
	h.pending[field] = value
	h.destroyed = false
}

// Delete buffers a field removal. Removing from a session that was never
// allocated stays a no-op through Flush.
func (h *Handle) Delete(field string) {
	h.pending[field] = deletedField
}

// Flush applies buffered mutations to the Store, allocating a session ID
// first if the caller had none. Invoked before the response is sent; a
// client disconnect after Flush does not roll the mutations back.
func (h *Handle) Flush(ctx context.Context) error {
	if h.destroyed {
		return nil
	}
	if h.id == "" {
		// Removals against a session that does not exist target nothing;
		// dropping them avoids allocating an entry just to delete from it.
		for field, value := range h.pending {
			if value == deletedField {
				delete(h.pending, field)
			}
		}
	}
	if len(h.pending) == 0 && h.identity == nil {
		return nil
	}

	if h.id == "" {
		id, err := h.store.Create(ctx)
		if err != nil {
			return oops.Code("SESSION_STORE_FAILED").
				With("operation", "create session").
				Wrap(err)
		}
		h.id = id
		h.fresh = true
	}

	for field, value := range h.pending {
		var err error
		if value == deletedField {
			err = h.store.Delete(ctx, h.id, field)
		} else {
			err = h.store.Set(ctx, h.id, field, value)
		}
		if err != nil {
			return oops.Code("SESSION_STORE_FAILED").
				With("operation", "apply session field").
				Wrap(err)
		}
	}
	h.pending = make(map[string]any)

	if h.identity != nil {
		if err := h.store.SetIdentity(ctx, h.id, *h.identity); err != nil {
			return oops.Code("SESSION_STORE_FAILED").
				With("operation", "set session identity").
				Wrap(err)
		}
		h.identity = nil
	}

	return nil
}

// Destroy removes the entry from the Store entirely and discards buffered
// writes. The middleware invalidates the caller's cookie afterwards. The ID
// is dropped with the entry: state written after a Destroy goes to a fresh
// session under a fresh ID, never back under the old one.
func (h *Handle) Destroy(ctx context.Context) error {
	h.pending = make(map[string]any)
	h.identity = nil

	if h.id != "" {
		if err := h.store.Remove(ctx, h.id); err != nil {
			return oops.Code("SESSION_STORE_FAILED").
				With("operation", "remove session").
				Wrap(err)
		}
	}
	h.id = ""
	h.fresh = false
	h.destroyed = true
	return nil
}
