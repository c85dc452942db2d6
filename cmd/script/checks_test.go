package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digitfellas_api_smoke/internal/cmstwin"
)

var checkOrder = []string{
	"health_check",
	"site_endpoint",
	"resource_endpoints",
	"auth_login",
	"auth_me",
	"protected_write_unauthorized",
	"protected_write_authorized",
	"uploads_unauthorized",
	"uploads_authorized",
	"auth_logout",
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func startTwin(t *testing.T, faults cmstwin.Faults) (*cmstwin.Twin, *httptest.Server) {
	t.Helper()
	twin := cmstwin.New(cmstwin.Config{Faults: faults}, testLogger())
	srv := httptest.NewServer(twin.Handler())
	t.Cleanup(srv.Close)
	return twin, srv
}

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:       baseURL,
		Email:         defaultEmail,
		Password:      defaultPassword,
		ExpectedBrand: defaultBrandName,
	}
}

func runAllChecks(t *testing.T, cfg *Config) *RunResult {
	t.Helper()
	tester, err := NewTester(cfg)
	require.NoError(t, err)
	return NewRunner(testLogger(), cfg.APIBase(), io.Discard).Run(context.Background(), tester.Checks())
}

func TestChecksOrder(t *testing.T) {
	tester, err := NewTester(testConfig("http://localhost:3000"))
	require.NoError(t, err)
	var ids []string
	for _, c := range tester.Checks() {
		ids = append(ids, c.ID)
		assert.NotEmpty(t, c.Title)
		assert.NotNil(t, c.Fn)
	}
	assert.Equal(t, checkOrder, ids)
}

func TestAllChecksPassAgainstHealthyAPI(t *testing.T) {
	twin, srv := startTwin(t, cmstwin.Faults{})

	result := runAllChecks(t, testConfig(srv.URL))

	require.Len(t, result.Results, len(checkOrder))
	for i, res := range result.Results {
		assert.Equal(t, checkOrder[i], res.ID)
		assert.True(t, res.Passed, "%s: %s", res.ID, res.Error)
	}
	assert.True(t, result.Passed())
	assert.Equal(t, 10, result.Stats.Passed)

	// The write check puts the brand name back.
	assert.Equal(t, cmstwin.DefaultBrand, twin.BrandName())
	assert.Len(t, twin.Uploads(), 1)
	assert.Equal(t, "test_authorized.txt", twin.Uploads()[0].OriginalName)
}

func TestFaultsFailTheExpectedChecks(t *testing.T) {
	tests := []struct {
		name   string
		faults cmstwin.Faults
		failed []string
	}{
		{
			name:   "writes without a session are accepted",
			faults: cmstwin.Faults{AnonymousWrites: true},
			failed: []string{"protected_write_unauthorized", "uploads_unauthorized"},
		},
		{
			name:   "login sets no cookie",
			faults: cmstwin.Faults{NoSessionCookie: true},
			failed: []string{"auth_login", "auth_me", "protected_write_authorized", "uploads_authorized"},
		},
		{
			name:   "logout keeps the session",
			faults: cmstwin.Faults{StickyLogout: true},
			failed: []string{"auth_logout"},
		},
		{
			name:   "uploads without ids",
			faults: cmstwin.Faults{DropUploadIDs: true},
			failed: []string{"uploads_authorized"},
		},
		{
			name:   "site writes not reflected",
			faults: cmstwin.Faults{IgnoreSiteWrites: true},
			failed: []string{"protected_write_authorized"},
		},
		{
			name:   "one resource endpoint down",
			faults: cmstwin.Faults{FailPaths: map[string]int{"/blog": http.StatusInternalServerError}},
			failed: []string{"resource_endpoints"},
		},
		{
			name:   "health endpoint down",
			faults: cmstwin.Faults{FailPaths: map[string]int{"/": http.StatusServiceUnavailable}},
			failed: []string{"health_check"},
		},
		{
			name:   "site read broken",
			faults: cmstwin.Faults{FailPaths: map[string]int{"/site": http.StatusInternalServerError}},
			failed: []string{"site_endpoint", "protected_write_unauthorized", "protected_write_authorized"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := startTwin(t, tt.faults)
			result := runAllChecks(t, testConfig(srv.URL))

			require.Len(t, result.Results, len(checkOrder))
			failed := make(map[string]bool)
			for _, id := range tt.failed {
				failed[id] = true
			}
			for _, res := range result.Results {
				if failed[res.ID] {
					assert.False(t, res.Passed, "%s should fail", res.ID)
					assert.NotEmpty(t, res.Error, res.ID)
				} else {
					assert.True(t, res.Passed, "%s should pass: %s", res.ID, res.Error)
				}
			}
			assert.Equal(t, len(tt.failed), result.Stats.Failed)
			assert.False(t, result.Passed())
		})
	}
}

func TestWrongCredentials(t *testing.T) {
	_, srv := startTwin(t, cmstwin.Faults{})
	cfg := testConfig(srv.URL)
	cfg.Password = "not-the-password"

	outcomes := runAllChecks(t, cfg).Outcomes()

	assert.True(t, outcomes["health_check"])
	assert.True(t, outcomes["protected_write_unauthorized"])
	assert.True(t, outcomes["uploads_unauthorized"])
	assert.False(t, outcomes["auth_login"])
	assert.False(t, outcomes["auth_me"])
	assert.False(t, outcomes["protected_write_authorized"])
	assert.False(t, outcomes["uploads_authorized"])
	// Logout answers ok and /auth/me reports no user either way.
	assert.True(t, outcomes["auth_logout"])
}

func TestBrandMismatchIsNotFatal(t *testing.T) {
	_, srv := startTwin(t, cmstwin.Faults{})
	cfg := testConfig(srv.URL)
	cfg.ExpectedBrand = "Someone Else"

	outcomes := runAllChecks(t, cfg).Outcomes()
	assert.True(t, outcomes["site_endpoint"])
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	result := runAllChecks(t, testConfig(baseURL))

	require.Len(t, result.Results, len(checkOrder))
	for _, res := range result.Results {
		assert.False(t, res.Passed, res.ID)
		assert.NotEmpty(t, res.Error, res.ID)
	}
	assert.Equal(t, len(checkOrder), result.Stats.Failed)
}

func TestLoginCapturesSessionCookie(t *testing.T) {
	_, srv := startTwin(t, cmstwin.Faults{})
	tester, err := NewTester(testConfig(srv.URL))
	require.NoError(t, err)
	ctx := context.Background()

	var logs bytes.Buffer
	assert.Nil(t, tester.AuthCookie())
	ok, err := tester.checkLogin(ctx, log.NewLogger(log.NewTerminalHandler(&logs, false)))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, tester.AuthCookie())
	assert.Equal(t, sessionCookieName, tester.AuthCookie().Name)
	assert.NotEmpty(t, tester.AuthCookie().Value)
	assert.Contains(t, logs.String(), "cookie="+sessionCookieName)
	assert.Contains(t, logs.String(), "expires=168h0m0s")

	ok, err = tester.checkLogout(ctx, testLogger())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, tester.AuthCookie())
}

func TestCookieExpiry(t *testing.T) {
	assert.Equal(t, "1h0m0s", cookieExpiry(&http.Cookie{MaxAge: 3600}))
	assert.Equal(t, "2030-01-02T03:04:05Z", cookieExpiry(&http.Cookie{Expires: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)}))
	assert.Equal(t, "session", cookieExpiry(&http.Cookie{}))
}

func TestSessionUserEmailMustMatchExactly(t *testing.T) {
	twin := cmstwin.New(cmstwin.Config{}, testLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/me" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"user":{"email":"Admin@Digitfellas.com","role":"admin"}}`))
			return
		}
		twin.Handler().ServeHTTP(w, r)
	}))
	defer srv.Close()

	tester, err := NewTester(testConfig(srv.URL))
	require.NoError(t, err)
	ok, err := tester.checkLogin(context.Background(), testLogger())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tester.checkMe(context.Background(), testLogger())
	assert.False(t, ok)
	assert.ErrorContains(t, err, `unexpected user "Admin@Digitfellas.com"`)
}

// restoreFailingHandler accepts the first site write and rejects the next one.
func restoreFailingHandler(twin *cmstwin.Twin) http.Handler {
	var writes atomic.Int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/api/site" && r.Header.Get("Cookie") != "" {
			if writes.Add(1) > 1 {
				http.Error(w, `{"error":"storage unavailable"}`, http.StatusInternalServerError)
				return
			}
		}
		twin.Handler().ServeHTTP(w, r)
	})
}

func TestRestoreFailure(t *testing.T) {
	for _, strict := range []bool{false, true} {
		twin := cmstwin.New(cmstwin.Config{}, testLogger())
		srv := httptest.NewServer(restoreFailingHandler(twin))
		defer srv.Close()

		cfg := testConfig(srv.URL)
		cfg.StrictRestore = strict
		tester, err := NewTester(cfg)
		require.NoError(t, err)
		ctx := context.Background()

		ok, err := tester.checkLogin(ctx, testLogger())
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = tester.checkAuthorizedWrite(ctx, testLogger())
		if strict {
			assert.False(t, ok)
			assert.ErrorContains(t, err, "restore")
		} else {
			assert.NoError(t, err)
			assert.True(t, ok)
		}
		assert.Equal(t, updatedBrandName, twin.BrandName())
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{float64(0), false},
		{float64(2), true},
		{"", false},
		{"yes", true},
		{[]any{}, false},
		{[]any{1}, true},
		{map[string]any{}, false},
		{map[string]any{"a": 1}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truthy(tt.v), "%#v", tt.v)
	}
}

func TestJSONKind(t *testing.T) {
	assert.Equal(t, "null", jsonKind(nil))
	assert.Equal(t, "array", jsonKind([]any{}))
	assert.Equal(t, "object", jsonKind(map[string]any{}))
	assert.Equal(t, "string", jsonKind("x"))
	assert.Equal(t, "number", jsonKind(float64(1)))
}
