package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/metrics/export/prometheus"
	"github.com/MrEthical07/otpauth/middleware"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *inbox) Deliver(_ context.Context, d otpauth.Delivery) otpauth.DeliveryOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[d.To+"/"+string(d.Purpose)] = d.Code
	return otpauth.Simulated()
}

func (b *inbox) code(t *testing.T, to string, purpose otpauth.Purpose) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	code, ok := b.codes[to+"/"+string(purpose)]
	if !ok {
		t.Fatalf("no %s code delivered to %s", purpose, to)
	}
	return code
}

type fixture struct {
	srv   *httptest.Server
	inbox *inbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := otpauth.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true

	box := &inbox{codes: map[string]string{}}
	engine, err := otpauth.New().WithConfig(cfg).WithNotifier(box).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	tickets, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "otpauth-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	srv := httptest.NewServer(NewRouter(Options{
		Engine:  engine,
		Tickets: tickets,
		Metrics: prometheus.New(engine).Handler(),
	}))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, inbox: box}
}

// client returns a browser-like client with its own cookie jar that does not
// follow redirects.
func (f *fixture) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *fixture) do(t *testing.T, c *http.Client, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	expectStatus(t, resp, http.StatusSeeOther)
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("expected Location %q, got %q", location, got)
	}
}

func register(t *testing.T, f *fixture, c *http.Client) {
	t.Helper()
	resp, _ := f.do(t, c, http.MethodPost, "/register", registerRequest{
		Username: "alice", Email: "alice@example.com", Password: "correct horse",
	})
	expectStatus(t, resp, http.StatusCreated)
}

func TestLoginFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	register(t, f, c)

	resp, _ := f.do(t, c, http.MethodGet, "/dashboard", nil)
	expectRedirect(t, resp, "/login")

	resp, body := f.do(t, c, http.MethodPost, "/login", loginRequest{Identifier: "alice", Password: "correct horse"})
	expectStatus(t, resp, http.StatusOK)
	if body["phase"] != "password-verified" || body["delivery"] != "simulated" {
		t.Fatalf("unexpected login body %v", body)
	}
	if _, leaked := body["code"]; leaked {
		t.Fatal("response must not carry the code")
	}

	resp, _ = f.do(t, c, http.MethodGet, "/dashboard", nil)
	expectRedirect(t, resp, "/login")

	resp, _ = f.do(t, c, http.MethodPost, "/login/verify", codeRequest{Code: "000000x"})
	expectStatus(t, resp, http.StatusUnauthorized)

	code := f.inbox.code(t, "alice@example.com", otpauth.PurposeLoginOTP)
	resp, body = f.do(t, c, http.MethodPost, "/login/verify", codeRequest{Code: code})
	expectStatus(t, resp, http.StatusOK)
	if body["phase"] != "fully-authenticated" {
		t.Fatalf("unexpected verify body %v", body)
	}

	resp, body = f.do(t, c, http.MethodGet, "/dashboard", nil)
	expectStatus(t, resp, http.StatusOK)
	if body["username"] != "alice" || body["email"] != "alice@example.com" {
		t.Fatalf("unexpected dashboard %v", body)
	}

	other := f.client(t)
	resp, _ = f.do(t, other, http.MethodGet, "/dashboard", nil)
	expectRedirect(t, resp, "/login")

	resp, _ = f.do(t, c, http.MethodPost, "/logout", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp, _ = f.do(t, c, http.MethodGet, "/dashboard", nil)
	expectRedirect(t, resp, "/login")
}

func sessionCookie(t *testing.T, f *fixture, c *http.Client) *http.Cookie {
	t.Helper()
	u, err := url.Parse(f.srv.URL)
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	for _, cookie := range c.Jar.Cookies(u) {
		if cookie.Name == middleware.DefaultCookieName {
			return cookie
		}
	}
	t.Fatal("no session cookie in jar")
	return nil
}

func TestLoginRotatesSessionCookie(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	register(t, f, c)

	resp, _ := f.do(t, c, http.MethodPost, "/login", loginRequest{Identifier: "alice", Password: "correct horse"})
	expectStatus(t, resp, http.StatusOK)
	before := sessionCookie(t, f, c)

	code := f.inbox.code(t, "alice@example.com", otpauth.PurposeLoginOTP)
	resp, _ = f.do(t, c, http.MethodPost, "/login/verify", codeRequest{Code: code})
	expectStatus(t, resp, http.StatusOK)
	after := sessionCookie(t, f, c)
	if after.Value == before.Value {
		t.Fatal("session ticket must change once login completes")
	}

	resp, _ = f.do(t, c, http.MethodGet, "/dashboard", nil)
	expectStatus(t, resp, http.StatusOK)

	// A client still holding the pre-login ticket is not authenticated.
	stale := f.client(t)
	u, _ := url.Parse(f.srv.URL)
	stale.Jar.SetCookies(u, []*http.Cookie{{Name: before.Name, Value: before.Value, Path: "/"}})
	resp, _ = f.do(t, stale, http.MethodGet, "/dashboard", nil)
	expectRedirect(t, resp, "/login")
}

func TestLoginErrorsOverHTTP(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	register(t, f, c)

	resp, _ := f.do(t, c, http.MethodPost, "/register", registerRequest{
		Username: "alice", Email: "other@example.com", Password: "pw",
	})
	expectStatus(t, resp, http.StatusConflict)

	resp, _ = f.do(t, c, http.MethodPost, "/register", registerRequest{Username: "bob"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	resp, _ = f.do(t, c, http.MethodPost, "/login", loginRequest{Identifier: "alice", Password: "wrong"})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp, _ = f.do(t, c, http.MethodPost, "/login/verify", codeRequest{Code: "123456"})
	expectRedirect(t, resp, "/login")

	resp, _ = f.do(t, c, http.MethodPost, "/login/resend", nil)
	expectRedirect(t, resp, "/login")
}

func TestResendOverHTTP(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	register(t, f, c)

	f.do(t, c, http.MethodPost, "/login", loginRequest{Identifier: "alice@example.com", Password: "correct horse"})
	first := f.inbox.code(t, "alice@example.com", otpauth.PurposeLoginOTP)

	resp, _ := f.do(t, c, http.MethodPost, "/login/resend", nil)
	expectStatus(t, resp, http.StatusOK)
	second := f.inbox.code(t, "alice@example.com", otpauth.PurposeLoginOTP)

	if first != second {
		resp, _ = f.do(t, c, http.MethodPost, "/login/verify", codeRequest{Code: first})
		expectStatus(t, resp, http.StatusUnauthorized)
	}
	resp, _ = f.do(t, c, http.MethodPost, "/login/verify", codeRequest{Code: second})
	expectStatus(t, resp, http.StatusOK)
}

func TestRecoveryFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	register(t, f, c)

	resp, unknown := f.do(t, c, http.MethodPost, "/recovery", recoveryRequest{Email: "nobody@example.com"})
	expectStatus(t, resp, http.StatusAccepted)

	resp, _ = f.do(t, c, http.MethodPost, "/recovery/reset", resetRequest{Password: "new password", Confirm: "new password"})
	expectRedirect(t, resp, "/recovery")

	resp, known := f.do(t, c, http.MethodPost, "/recovery", recoveryRequest{Email: "alice@example.com"})
	expectStatus(t, resp, http.StatusAccepted)
	if unknown["message"] != known["message"] {
		t.Fatalf("recovery responses differ: %v vs %v", unknown, known)
	}

	code := f.inbox.code(t, "alice@example.com", otpauth.PurposePasswordReset)
	resp, body := f.do(t, c, http.MethodPost, "/recovery/verify", codeRequest{Code: code})
	expectStatus(t, resp, http.StatusOK)
	if body["phase"] != "code-verified" {
		t.Fatalf("unexpected verify body %v", body)
	}

	resp, _ = f.do(t, c, http.MethodPost, "/recovery/reset", resetRequest{Password: "new password", Confirm: "different"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp, _ = f.do(t, c, http.MethodPost, "/recovery/reset", resetRequest{Password: "new", Confirm: "new"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp, _ = f.do(t, c, http.MethodPost, "/recovery/reset", resetRequest{Password: "new password", Confirm: "new password"})
	expectStatus(t, resp, http.StatusOK)

	resp, _ = f.do(t, c, http.MethodPost, "/login", loginRequest{Identifier: "alice", Password: "correct horse"})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp, _ = f.do(t, c, http.MethodPost, "/login", loginRequest{Identifier: "alice", Password: "new password"})
	expectStatus(t, resp, http.StatusOK)
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/login", strings.NewReader(`{"identifier":`))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	resp, _ = f.do(t, c, http.MethodPost, "/login", map[string]string{"identifier": "a", "password": "b", "extra": "c"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	register(t, f, c)

	resp, _ := f.do(t, c, http.MethodGet, "/health", nil)
	expectStatus(t, resp, http.StatusOK)

	resp, err := c.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "otpauth_register_success_total 1") {
		t.Fatalf("expected register counter in metrics, got:\n%s", buf.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, f.client(t), http.MethodGet, "/login", nil)
	expectStatus(t, resp, http.StatusMethodNotAllowed)
}
