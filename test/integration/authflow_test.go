// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/auth/redisreg"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/httpapi"
)

// memUserStore backs the integration server without PostgreSQL.
type memUserStore struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[ulid.ULID]*auth.User)}
}

func (m *memUserStore) Create(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return auth.ErrDuplicateAccount
		}
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memUserStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUserStore) GetBySessionHash(_ context.Context, sessionHash string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.SessionHash != nil && *u.SessionHash == sessionHash {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUserStore) GetByResetHash(_ context.Context, resetHash string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetHash != nil && *u.ResetHash == resetHash {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUserStore) UpdateSessionHash(_ context.Context, id ulid.ULID, sessionHash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.SessionHash = sessionHash
	return nil
}

func (m *memUserStore) UpdateResetHash(_ context.Context, id ulid.ULID, resetHash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.ResetHash = resetHash
	return nil
}

func (m *memUserStore) ReplacePassword(_ context.Context, resetHash, passwordHash string) (ulid.ULID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetHash != nil && *u.ResetHash == resetHash {
			u.PasswordHash = passwordHash
			u.ResetHash = nil
			return u.ID, nil
		}
	}
	return ulid.ULID{}, auth.ErrNotFound
}

// env is a running Gatewarden server plus a cookie-aware client.
type env struct {
	server *httptest.Server
	client *http.Client
}

func startEnv(sessions auth.SessionStore, users auth.UserStore) *env {
	hasher := auth.NewBcryptHasherWithCost(bcrypt.MinCost)
	svc, err := auth.NewService(users, sessions, hasher)
	Expect(err).NotTo(HaveOccurred())

	authn, err := auth.NewSessionAuthenticator(sessions, users)
	Expect(err).NotTo(HaveOccurred())

	api, err := httpapi.NewServer(svc, authn, config.Default().Server, nil, nil)
	Expect(err).NotTo(HaveOccurred())

	server := httptest.NewServer(api.Handler())

	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &env{server: server, client: client}
}

func (e *env) postForm(path string, form url.Values) *http.Response {
	resp, err := e.client.PostForm(e.server.URL+path, form)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func (e *env) request(method, path string, form url.Values) *http.Response {
	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequest(method, e.server.URL+path, strings.NewReader(form.Encode()))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequest(method, e.server.URL+path, nil)
		Expect(err).NotTo(HaveOccurred())
	}
	resp, err := e.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decodeBody(resp *http.Response) map[string]any {
	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body
}

var _ = Describe("Account lifecycle", func() {
	var e *env

	BeforeEach(func() {
		users := newMemUserStore()
		sessions, err := auth.NewSingleSessionStore(users)
		Expect(err).NotTo(HaveOccurred())
		e = startEnv(sessions, users)
		DeferCleanup(e.server.Close)
	})

	It("registers, logs in, reads the profile, and logs out", func() {
		By("registering a new account")
		resp := e.postForm("/users", url.Values{
			"email":    {"alice@example.com"},
			"password": {"s3cret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decodeBody(resp)).To(HaveKeyWithValue("message", "user created"))

		By("rejecting a duplicate registration")
		resp = e.postForm("/users", url.Values{
			"email":    {"alice@example.com"},
			"password": {"other"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(decodeBody(resp)).To(HaveKeyWithValue("message", "email already registered"))

		By("refusing the profile before login")
		resp = e.request(http.MethodGet, "/profile", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		_ = resp.Body.Close()

		By("logging in")
		resp = e.postForm("/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"s3cret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decodeBody(resp)).To(HaveKeyWithValue("message", "logged in"))

		By("reading the profile with the session cookie")
		resp = e.request(http.MethodGet, "/profile", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decodeBody(resp)).To(HaveKeyWithValue("email", "alice@example.com"))

		By("logging out")
		resp = e.request(http.MethodDelete, "/sessions", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusFound))
		Expect(resp.Header.Get("Location")).To(Equal("/"))
		_ = resp.Body.Close()

		By("refusing the profile after logout")
		resp = e.request(http.MethodGet, "/profile", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		_ = resp.Body.Close()
	})

	It("rejects a login with the wrong password", func() {
		resp := e.postForm("/users", url.Values{
			"email":    {"alice@example.com"},
			"password": {"s3cret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()

		resp = e.postForm("/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"wrong"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		_ = resp.Body.Close()
	})
})

var _ = Describe("Password reset", func() {
	var e *env

	BeforeEach(func() {
		users := newMemUserStore()
		sessions, err := auth.NewSingleSessionStore(users)
		Expect(err).NotTo(HaveOccurred())
		e = startEnv(sessions, users)
		DeferCleanup(e.server.Close)

		resp := e.postForm("/users", url.Values{
			"email":    {"alice@example.com"},
			"password": {"s3cret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()
	})

	It("replaces the password with a single-use token", func() {
		By("issuing a reset token")
		resp := e.postForm("/reset_password", url.Values{
			"email": {"alice@example.com"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		body := decodeBody(resp)
		token, _ := body["reset_token"].(string)
		Expect(token).NotTo(BeEmpty())

		By("applying the token")
		form := url.Values{
			"email":        {"alice@example.com"},
			"reset_token":  {token},
			"new_password": {"n3w-s3cret"},
		}
		resp = e.request(http.MethodPut, "/reset_password", form)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decodeBody(resp)).To(HaveKeyWithValue("message", "Password updated"))

		By("rejecting the old password")
		resp = e.postForm("/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"s3cret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		_ = resp.Body.Close()

		By("accepting the new password")
		resp = e.postForm("/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"n3w-s3cret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()

		By("rejecting a token replay")
		resp = e.request(http.MethodPut, "/reset_password", form)
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		_ = resp.Body.Close()
	})

	It("refuses to issue a token for an unknown account", func() {
		resp := e.postForm("/reset_password", url.Values{
			"email": {"ghost@example.com"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		_ = resp.Body.Close()
	})
})

var _ = Describe("Multi-session policy on Redis", func() {
	var (
		e     *env
		users *memUserStore
	)

	BeforeEach(func() {
		mr := miniredis.RunT(GinkgoTB())
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(func() { _ = client.Close() })

		registry, err := redisreg.NewRegistry(client, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		users = newMemUserStore()
		e = startEnv(registry, users)
		DeferCleanup(e.server.Close)

		resp := e.postForm("/users", url.Values{
			"email":    {"alice@example.com"},
			"password": {"s3cret"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()
	})

	login := func() *http.Client {
		jar, err := cookiejar.New(nil)
		Expect(err).NotTo(HaveOccurred())
		client := &http.Client{Jar: jar}
		resp, err := client.PostForm(e.server.URL+"/sessions", url.Values{
			"email":    {"alice@example.com"},
			"password": {"s3cret"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		_ = resp.Body.Close()
		return client
	}

	profileStatus := func(client *http.Client) int {
		resp, err := client.Get(e.server.URL + "/profile")
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	It("keeps concurrent sessions alive until logout destroys them all", func() {
		first := login()
		second := login()

		Expect(profileStatus(first)).To(Equal(http.StatusOK))
		Expect(profileStatus(second)).To(Equal(http.StatusOK))

		By("logging out from the first client")
		req, err := http.NewRequest(http.MethodDelete, e.server.URL+"/sessions", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := first.Do(req)
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()

		Expect(profileStatus(first)).To(Equal(http.StatusForbidden))
		Expect(profileStatus(second)).To(Equal(http.StatusForbidden))
	})
})
