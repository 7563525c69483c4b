// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuncanCos/rust-auth-back/internal/auth"
	"github.com/DuncanCos/rust-auth-back/internal/session"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeUserRepo is an in-memory auth.UserRepository mirroring the error
// codes of the PostgreSQL implementation, so handler tests exercise the
// same failure mapping the real server does.
type fakeUserRepo struct {
	users map[ulid.ULID]*auth.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[ulid.ULID]*auth.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *auth.User) error {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return oops.Code("USER_CONFLICT").
				With("email", user.Email).
				Wrap(auth.ErrConflict)
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").
		With("email", email).
		Wrap(auth.ErrNotFound)
}

func (r *fakeUserRepo) List(_ context.Context) ([]*auth.User, error) {
	out := make([]*auth.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *auth.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id ulid.ULID) error {
	if _, ok := r.users[id]; !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	delete(r.users, id)
	return nil
}

type testEnv struct {
	router *gin.Engine
	repo   *fakeUserRepo
	store  *session.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newFakeUserRepo()
	svc, err := auth.NewService(repo, auth.NewArgon2idHasher(), logger)
	require.NoError(t, err)

	store := session.NewMemoryStore()
	srv, err := NewServer(svc, repo, store, session.CookieOptions{}, nil, logger)
	require.NoError(t, err)

	return &testEnv{router: srv.Router(), repo: repo, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "id", Value: cookie})
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// subscribe registers a user and returns its ID.
func (e *testEnv) subscribe(t *testing.T, username, mail, password string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/subscribe", gin.H{
		"username": username,
		"mail":     mail,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeBody(t, rec)["id"].(string)
}

// login authenticates and returns the issued session cookie.
func (e *testEnv) login(t *testing.T, mail, password string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/login", gin.H{
		"mail":     mail,
		"password": password,
	}, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	cookie := sessionCookie(rec)
	require.NotEmpty(t, cookie, "login must issue a session cookie")
	return cookie
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// sessionCookie extracts the "id" cookie value from a response, or "".
func sessionCookie(rec *httptest.ResponseRecorder) string {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "id" {
			return c.Value
		}
	}
	return ""
}

func TestNewServer_NilDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newFakeUserRepo()
	svc, err := auth.NewService(repo, auth.NewArgon2idHasher(), logger)
	require.NoError(t, err)
	store := session.NewMemoryStore()

	tests := []struct {
		name  string
		auth  *auth.Service
		users auth.UserRepository
		store session.Store
	}{
		{name: "nil auth service", auth: nil, users: repo, store: store},
		{name: "nil user repository", auth: svc, users: nil, store: store},
		{name: "nil session store", auth: svc, users: repo, store: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.auth, tt.users, tt.store, session.CookieOptions{}, nil, logger)
			require.Error(t, err)
		})
	}
}

func TestSubscribe(t *testing.T) {
	t.Run("creates user", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/subscribe", gin.H{
			"username": "alice",
			"mail":     "alice@example.com",
			"password": "hunter2hunter2",
		}, "")

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "created", body["status"])
		_, err := ulid.Parse(body["id"].(string))
		assert.NoError(t, err)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodPost, "/subscribe", gin.H{
			"username": "alice2",
			"mail":     "ALICE@example.com",
			"password": "otherpassword",
		}, "")

		require.Equal(t, http.StatusExpectationFailed, rec.Code)
		assert.Equal(t, "user already exists", decodeBody(t, rec)["error"])
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/subscribe", gin.H{
			"username": "alice",
		}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodPost, "/subscribe", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid username rejected", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/subscribe", gin.H{
			"username": "9starts_with_digit",
			"mail":     "nine@example.com",
			"password": "hunter2hunter2",
		}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials issue a session", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodPost, "/login", gin.H{
			"mail":     "alice@example.com",
			"password": "hunter2hunter2",
		}, "")

		require.Equal(t, http.StatusAccepted, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "connected", body["status"])
		assert.Equal(t, "alice", body["username"])
		assert.NotEmpty(t, sessionCookie(rec))
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodPost, "/login", gin.H{
			"mail":     "alice@example.com",
			"password": "wrong",
		}, "")

		require.Equal(t, http.StatusNotAcceptable, rec.Code)
		assert.Equal(t, "wrong email or password", decodeBody(t, rec)["error"])
		assert.Empty(t, sessionCookie(rec))
	})

	t.Run("unknown email rejected identically", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/login", gin.H{
			"mail":     "ghost@example.com",
			"password": "whatever",
		}, "")

		require.Equal(t, http.StatusNotAcceptable, rec.Code)
		assert.Equal(t, "wrong email or password", decodeBody(t, rec)["error"])
	})

	t.Run("repeat login is idempotent", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodPost, "/login", gin.H{
			"mail":     "alice@example.com",
			"password": "hunter2hunter2",
		}, cookie)

		require.Equal(t, http.StatusAccepted, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "already connected", body["status"])
		assert.Equal(t, "alice", body["username"])
		assert.Empty(t, sessionCookie(rec), "no new cookie on an authenticated session")
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/login", gin.H{"mail": "alice@example.com"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("planted cookie is never adopted", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")

		// A cookie value the store never issued must not become the
		// session ID of the login it rides on.
		planted := "attacker-chosen-session-id"
		rec := env.do(t, http.MethodPost, "/login", gin.H{
			"mail":     "alice@example.com",
			"password": "hunter2hunter2",
		}, planted)

		require.Equal(t, http.StatusAccepted, rec.Code)
		issued := sessionCookie(rec)
		require.NotEmpty(t, issued, "login must replace the unknown cookie")
		assert.NotEqual(t, planted, issued)

		ident, err := env.store.Identity(context.Background(), planted)
		require.NoError(t, err)
		assert.Empty(t, ident, "no state may materialize under the planted ID")

		rec = env.do(t, http.MethodGet, "/session", nil, planted)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = env.do(t, http.MethodGet, "/session", nil, issued)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("destroys the session and clears the cookie", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodGet, "/logout", nil, cookie)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "disconnected", decodeBody(t, rec)["status"])

		var cleared bool
		for _, c := range rec.Result().Cookies() {
			if c.Name == "id" && c.MaxAge < 0 {
				cleared = true
			}
		}
		assert.True(t, cleared, "logout must clear the session cookie")

		// The old cookie no longer opens the gate.
		rec = env.do(t, http.MethodGet, "/session", nil, cookie)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unauthenticated caller is rejected", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/logout", nil, "")
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "not connected", decodeBody(t, rec)["error"])
	})

	t.Run("stale cookie is rejected", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/logout", nil, "no-such-session")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestSessionEcho(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/session", nil, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "not connected", decodeBody(t, rec)["error"])

		rec = env.do(t, http.MethodGet, "/session", nil, "forged-session-id")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("counter survives across requests", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodGet, "/session", nil, cookie)
		require.Equal(t, http.StatusAccepted, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, float64(1), body["counter"])

		rec = env.do(t, http.MethodGet, "/session", nil, cookie)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, float64(2), decodeBody(t, rec)["counter"])
	})
}

func TestUserDirectory(t *testing.T) {
	t.Run("all routes are gated", func(t *testing.T) {
		env := newTestEnv(t)
		id := ulid.Make().String()

		paths := []struct {
			method string
			path   string
		}{
			{http.MethodGet, "/users"},
			{http.MethodPost, "/users"},
			{http.MethodGet, "/users/" + id},
			{http.MethodPut, "/users/" + id},
			{http.MethodDelete, "/users/" + id},
		}
		for _, p := range paths {
			rec := env.do(t, p.method, p.path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
		}
	})

	t.Run("list returns rows without password material", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		env.subscribe(t, "bob", "bob@example.com", "correcthorse")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodGet, "/users", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		var rows []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 2)
		for _, row := range rows {
			assert.NotContains(t, row, "password_hash")
			assert.NotContains(t, row, "password")
		}
		assert.NotContains(t, rec.Body.String(), "$argon2id$")
	})

	t.Run("get by id", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodGet, "/users/"+id, nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, "alice@example.com", body["mail"])
	})

	t.Run("get unknown id", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodGet, "/users/"+ulid.Make().String(), nil, cookie)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "user not found", decodeBody(t, rec)["error"])
	})

	t.Run("get malformed id", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodGet, "/users/not-a-ulid", nil, cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("create goes through the hashing path", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodPost, "/users", gin.H{
			"username": "bob",
			"mail":     "bob@example.com",
			"password": "correcthorse",
		}, cookie)

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "bob", body["username"])

		id, err := ulid.Parse(body["id"].(string))
		require.NoError(t, err)
		stored, err := env.repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"),
			"directory creation must store a hash, not the password")
	})

	t.Run("update", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodPut, "/users/"+id, gin.H{
			"username": "alice_renamed",
			"mail":     "renamed@example.com",
		}, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "modified", decodeBody(t, rec)["status"])

		rec = env.do(t, http.MethodGet, "/users/"+id, nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "alice_renamed", body["username"])
		assert.Equal(t, "renamed@example.com", body["mail"])
	})

	t.Run("update with invalid username", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodPut, "/users/"+id, gin.H{
			"username": "a",
			"mail":     "alice@example.com",
		}, cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update unknown id", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodPut, "/users/"+ulid.Make().String(), gin.H{
			"username": "ghost",
			"mail":     "ghost@example.com",
		}, cookie)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		bobID := env.subscribe(t, "bob", "bob@example.com", "correcthorse")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodDelete, "/users/"+bobID, nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "deleted", decodeBody(t, rec)["status"])

		rec = env.do(t, http.MethodGet, "/users/"+bobID, nil, cookie)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete unknown id", func(t *testing.T) {
		env := newTestEnv(t)
		env.subscribe(t, "alice", "alice@example.com", "hunter2hunter2")
		cookie := env.login(t, "alice@example.com", "hunter2hunter2")

		rec := env.do(t, http.MethodDelete, "/users/"+ulid.Make().String(), nil, cookie)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// failingStore wraps a real store but fails every read, to drive the
// store-failure branches of the middleware.
type failingStore struct {
	session.Store
}

func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, oops.Code("SESSION_STORE_FAILED").Errorf("backend unavailable")
}

func (failingStore) Identity(context.Context, string) (string, error) {
	return "", oops.Code("SESSION_STORE_FAILED").Errorf("backend unavailable")
}

func TestRequireSession_StoreFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newFakeUserRepo()
	svc, err := auth.NewService(repo, auth.NewArgon2idHasher(), logger)
	require.NoError(t, err)

	srv, err := NewServer(svc, repo, failingStore{session.NewMemoryStore()},
		session.CookieOptions{}, nil, logger)
	require.NoError(t, err)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(&http.Cookie{Name: "id", Value: "whatever"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCookieOptions_RespectedByRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newFakeUserRepo()
	svc, err := auth.NewService(repo, auth.NewArgon2idHasher(), logger)
	require.NoError(t, err)

	srv, err := NewServer(svc, repo, session.NewMemoryStore(), session.CookieOptions{
		Name:   "sid",
		Secure: true,
	}, nil, logger)
	require.NoError(t, err)
	router := srv.Router()

	body, err := json.Marshal(gin.H{
		"username": "alice", "mail": "alice@example.com", "password": "hunter2hunter2",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/subscribe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	body, err = json.Marshal(gin.H{"mail": "alice@example.com", "password": "hunter2hunter2"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			found = c
		}
	}
	require.NotNil(t, found, "renamed session cookie must be issued")
	assert.True(t, found.Secure)
	assert.True(t, found.HttpOnly)
	assert.Equal(t, "/", found.Path)
}
