// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/auth/token"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

// testEnv holds a running API backed by a throwaway PostgreSQL.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	api       *httpapi.Server
	baseURL   string
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gatehouse_test"),
		postgres.WithUsername("gatehouse"),
		postgres.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	if err := env.start(); err != nil {
		env.cleanup()
		return nil, err
	}
	return env, nil
}

func (e *testEnv) start() error {
	connStr, err := e.container.ConnectionString(e.ctx, "sslmode=disable")
	if err != nil {
		return err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return err
	}
	if err := migrator.Close(); err != nil {
		return err
	}

	e.pool, err = store.Connect(e.ctx, connStr, 3)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))
	signer, err := token.New(token.DeriveKey([]byte(strings.Repeat("k", 32))))
	if err != nil {
		return err
	}
	hasher, err := auth.NewArgon2idHasherWithParams(auth.HashParams{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc, err := auth.NewService(authpg.NewDirectory(e.pool), hasher, signer,
		auth.SessionConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour},
		auth.WithLogger(logger),
		auth.WithHashLimiter(auth.NewHashLimiter(4, metrics.ObserveHashWait)),
	)
	if err != nil {
		return err
	}

	e.api, err = httpapi.New(svc, httpapi.Options{Logger: logger, Metrics: metrics})
	if err != nil {
		return err
	}
	if _, err := e.api.Start("127.0.0.1:0"); err != nil {
		return err
	}
	e.baseURL = "http://" + e.api.Addr()
	return nil
}

func (e *testEnv) cleanup() {
	if e.api != nil {
		_ = e.api.Stop(context.Background())
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	e.cancel()
}

// client is a browser-like caller that carries the refresh cookie between
// requests itself, since a jar would drop it for a non-TLS origin.
type client struct {
	http    *http.Client
	baseURL string
	refresh *http.Cookie
}

func newClient(baseURL string) *client {
	return &client{http: &http.Client{Timeout: 10 * time.Second}, baseURL: baseURL}
}

func (c *client) post(path string, body any, bearer string) (*http.Response, map[string]any) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, bearer)
}

func (c *client) get(path, bearer string) (*http.Response, map[string]any) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	Expect(err).NotTo(HaveOccurred())
	return c.do(req, bearer)
}

func (c *client) do(req *http.Request, bearer string) (*http.Response, map[string]any) {
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if c.refresh != nil {
		req.AddCookie(c.refresh)
	}
	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	for _, ck := range resp.Cookies() {
		if ck.Name != httpapi.RefreshCookieName {
			continue
		}
		if ck.MaxAge < 0 || ck.Value == "" {
			c.refresh = nil
		} else {
			c.refresh = &http.Cookie{Name: ck.Name, Value: ck.Value}
		}
	}

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	var out map[string]any
	if len(data) > 0 {
		Expect(json.Unmarshal(data, &out)).To(Succeed())
	}
	return resp, out
}

func creds(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

var _ = Describe("Auth API over PostgreSQL", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if env != nil {
			env.cleanup()
		}
	})

	It("signs up, rejects a duplicate and logs in", func() {
		c := newClient(env.baseURL)

		resp, body := c.post("/auth/signup", creds("a@x.com", "pw1"), "")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		Expect(body).To(HaveKeyWithValue("status", "created"))

		resp, body = c.post("/auth/signup", creds("A@X.com", "pw2"), "")
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		Expect(body).To(HaveKeyWithValue("error", "email_in_use"))

		resp, body = c.post("/auth/login", creds("a@x.com", "pw1"), "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(HaveKey("access_token"))
		Expect(c.refresh).NotTo(BeNil())

		resp, _ = c.post("/auth/login", creds("a@x.com", "pw2"), "")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("answers an unknown email exactly like a wrong password", func() {
		c := newClient(env.baseURL)

		ghost, ghostBody := c.post("/auth/login", creds("ghost@x.com", "pw1"), "")
		wrong, wrongBody := c.post("/auth/login", creds("a@x.com", "nope"), "")

		Expect(ghost.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(wrong.StatusCode).To(Equal(ghost.StatusCode))
		Expect(wrongBody).To(Equal(ghostBody))
		Expect(c.refresh).To(BeNil())
	})

	It("refreshes with the cookie and serves /auth/me with the new token", func() {
		c := newClient(env.baseURL)
		_, _ = c.post("/auth/login", creds("a@x.com", "pw1"), "")
		Expect(c.refresh).NotTo(BeNil())

		resp, body := c.post("/auth/refresh", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		access, ok := body["access_token"].(string)
		Expect(ok).To(BeTrue())

		resp, body = c.get("/auth/me", access)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("email", "a@x.com"))

		resp, _ = c.post("/auth/logout", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		Expect(c.refresh).To(BeNil())

		resp, _ = c.post("/auth/refresh", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("lets exactly one of many concurrent signups for an email win", func() {
		const n = 12
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			statuses = map[int]int{}
		)
		for range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				resp, _ := newClient(env.baseURL).post("/auth/signup", creds("race@x.com", "pw"), "")
				mu.Lock()
				statuses[resp.StatusCode]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		Expect(statuses).To(Equal(map[int]int{
			http.StatusCreated:  1,
			http.StatusConflict: n - 1,
		}))
	})
})
