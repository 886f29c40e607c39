// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
	Data    json.RawMessage   `json:"data"`
}

// client is a browser-like client with its own cookie jar.
type client struct {
	http   *http.Client
	bearer string
}

func newClient() *client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &client{http: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

func (c *client) do(method, path string, body any) (*http.Response, envelope) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "coursevoice-integration")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var out envelope
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp, out
}

type loginData struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	Role      string `json:"role"`
}

func (c *client) login(email, password string) loginData {
	resp, body := c.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	Expect(resp.StatusCode).To(Equal(http.StatusOK), body.Message)
	var data loginData
	Expect(json.Unmarshal(body.Data, &data)).To(Succeed())
	return data
}

var _ = Describe("Authentication API", func() {
	Describe("student registration and login", Ordered, func() {
		var (
			browser  *client
			email    string
			password = "student-pass-1"
			token    string
		)

		BeforeAll(func() {
			browser = newClient()
			email = uniqueEmail("student")
		})

		It("registers a student", func() {
			resp, body := browser.do(http.MethodPost, "/auth/register", map[string]string{
				"email":          email,
				"password":       password,
				"role":           "student",
				"student_number": "20261234",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated), body.Message)
			Expect(body.Success).To(BeTrue())
		})

		It("rejects a duplicate email", func() {
			resp, _ := newClient().do(http.MethodPost, "/auth/register", map[string]string{
				"email":          email,
				"password":       password,
				"role":           "student",
				"student_number": "20269999",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("logs in and stores the session in Redis", func() {
			data := browser.login(email, password)
			Expect(data.Role).To(Equal("student"))
			Expect(data.ExpiresIn).To(Equal(int64(3600)))
			token = data.Token
			Expect(env.sessionKeys()).NotTo(BeEmpty())
		})

		It("resolves the session cookie", func() {
			resp, body := browser.do(http.MethodGet, "/auth/me", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body.Data)).To(ContainSubstring(`"source":"session"`))
		})

		It("resolves the bearer token without cookies", func() {
			api := newClient()
			api.bearer = token
			resp, body := api.do(http.MethodGet, "/auth/me", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body.Data)).To(ContainSubstring(`"source":"bearer"`))
		})

		It("keeps students out of lecturer routes", func() {
			resp, _ := browser.do(http.MethodGet, "/lecturer/ping", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		})

		It("ends the session on logout", func() {
			resp, _ := browser.do(http.MethodPost, "/auth/logout", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, _ = browser.do(http.MethodGet, "/auth/me", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("provisioned admin", func() {
		It("reaches admin routes with a bearer token", func() {
			api := newClient()
			api.bearer = api.login("admin@uni.example", "admin-password-123").Token

			resp, _ := api.do(http.MethodGet, "/admin/ping", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp, _ = api.do(http.MethodGet, "/lecturer/ping", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("failed login throttling", func() {
		It("backs off and then locks the session out", func() {
			browser := newClient()
			wrong := map[string]string{"email": "admin@uni.example", "password": "wrong-password"}

			// Attempts inside the backoff window are refused without counting.
			rejected := 0
			Eventually(func() int {
				resp, _ := browser.do(http.MethodPost, "/auth/login", wrong)
				if resp.StatusCode == http.StatusUnauthorized {
					rejected++
				}
				return rejected
			}, 10*time.Second, 250*time.Millisecond).Should(Equal(2))

			resp, body := browser.do(http.MethodPost, "/auth/login",
				map[string]string{"email": "admin@uni.example", "password": "admin-password-123"})
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests), body.Message)
			Expect(resp.Header.Get("Retry-After")).NotTo(BeEmpty())
		})
	})

	Describe("password reset through the mail queue", Ordered, func() {
		var (
			email string
			raw   string
		)

		BeforeAll(func() {
			email = uniqueEmail("lecturer")
			resp, body := newClient().do(http.MethodPost, "/auth/register", map[string]string{
				"email":    email,
				"password": "lecturer-pass-1",
				"role":     "lecturer",
				"staff_id": "STAFF42",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated), body.Message)
		})

		It("answers the same for unknown addresses", func() {
			before := env.mail.count()
			resp, body := newClient().do(http.MethodPost, "/auth/password-reset/request",
				map[string]string{"email": "nobody@uni.example"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body.Success).To(BeTrue())
			Consistently(env.mail.count, 500*time.Millisecond).Should(Equal(before))
		})

		It("delivers a reset link through the worker", func() {
			before := env.mail.count()
			resp, _ := newClient().do(http.MethodPost, "/auth/password-reset/request",
				map[string]string{"email": email})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Eventually(env.mail.count, 15*time.Second, 100*time.Millisecond).Should(Equal(before + 1))
			raw = env.mail.lastToken()
			Expect(raw).To(HaveLen(64))
		})

		It("sets the new password once", func() {
			body := map[string]string{"token": raw, "new_password": "lecturer-pass-2"}
			resp, _ := newClient().do(http.MethodPost, "/auth/password-reset", body)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, again := newClient().do(http.MethodPost, "/auth/password-reset", body)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(again.Message).To(Equal("Invalid or expired token"))
		})

		It("accepts only the new password", func() {
			resp, _ := newClient().do(http.MethodPost, "/auth/login",
				map[string]string{"email": email, "password": "lecturer-pass-1"})
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			Expect(newClient().login(email, "lecturer-pass-2").Role).To(Equal("lecturer"))
		})
	})
})
