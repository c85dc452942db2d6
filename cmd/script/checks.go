package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

const (
	sessionCookieName = "df_session"
	updatedBrandName  = "Digitfellas Updated"
)

// CheckFunc runs one check. A false result with a nil error is still a failure.
type CheckFunc func(ctx context.Context, log log.Logger) (bool, error)

// Check is one named step of a run.
type Check struct {
	ID    string
	Title string
	Fn    CheckFunc
}

// Tester holds the state shared by the checks of a single run: the main
// session and the captured session cookie. Create a new Tester per run.
type Tester struct {
	cfg        *Config
	session    *Session
	authCookie *http.Cookie
}

func NewTester(cfg *Config) (*Tester, error) {
	s, err := NewSession(cfg.APIBase(), cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Tester{cfg: cfg, session: s}, nil
}

// AuthCookie returns the session cookie captured by the last login, or nil.
func (t *Tester) AuthCookie() *http.Cookie {
	return t.authCookie
}

// Checks returns the checks in the order they must run. Later checks depend on
// the session state left by earlier ones.
func (t *Tester) Checks() []Check {
	return []Check{
		{ID: "health_check", Title: "Health Check", Fn: t.checkHealth},
		{ID: "site_endpoint", Title: "Site Endpoint", Fn: t.checkSite},
		{ID: "resource_endpoints", Title: "Resource Endpoints", Fn: t.checkResources},
		{ID: "auth_login", Title: "Auth Login", Fn: t.checkLogin},
		{ID: "auth_me", Title: "Auth Me", Fn: t.checkMe},
		{ID: "protected_write_unauthorized", Title: "Protected Write (Unauthorized)", Fn: t.checkUnauthorizedWrite},
		{ID: "protected_write_authorized", Title: "Protected Write (Authorized)", Fn: t.checkAuthorizedWrite},
		{ID: "uploads_unauthorized", Title: "Uploads (Unauthorized)", Fn: t.checkUnauthorizedUpload},
		{ID: "uploads_authorized", Title: "Uploads (Authorized)", Fn: t.checkAuthorizedUpload},
		{ID: "auth_logout", Title: "Auth Logout", Fn: t.checkLogout},
	}
}

func (t *Tester) checkHealth(ctx context.Context, log log.Logger) (bool, error) {
	resp, err := t.session.Get(ctx, "/")
	if err != nil {
		return false, err
	}
	log.Info("Health check response", "status", resp.StatusCode, "latency", resp.Latency)
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return false, err
	}
	body, err := resp.Object()
	if err != nil {
		return false, err
	}
	if !truthy(body["ok"]) {
		return false, errors.New("health response has no truthy ok")
	}
	if _, ok := body["name"]; !ok {
		return false, errors.New("health response has no name")
	}
	log.Info("API is healthy", "name", body["name"], "storage", body["storage"])
	return true, nil
}

var siteKeys = []string{"brand", "navigation", "home", "pages", "footer", "_meta"}

func (t *Tester) checkSite(ctx context.Context, log log.Logger) (bool, error) {
	resp, err := t.session.Get(ctx, "/site")
	if err != nil {
		return false, err
	}
	log.Info("Site endpoint response", "status", resp.StatusCode, "latency", resp.Latency)
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return false, err
	}
	site, err := resp.Object()
	if err != nil {
		return false, err
	}

	var missing []string
	for _, key := range siteKeys {
		if _, ok := site[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return false, errors.Errorf("site is missing keys: %s", strings.Join(missing, ", "))
	}

	// A different brand name is informational only.
	if name := brandName(site); name == t.cfg.ExpectedBrand {
		log.Info("Brand name matches", "brand", name)
	} else {
		log.Warn("Unexpected brand name", "expected", t.cfg.ExpectedBrand, "got", name)
	}
	return true, nil
}

type resourceEndpoint struct {
	path  string
	array bool
}

var resourceEndpoints = []resourceEndpoint{
	{path: "/services", array: true},
	{path: "/projects", array: true},
	{path: "/blog", array: true},
	{path: "/navigation", array: false},
	{path: "/footer", array: false},
}

func (t *Tester) checkResources(ctx context.Context, log log.Logger) (bool, error) {
	var failures []string
	for _, ep := range resourceEndpoints {
		if err := t.checkResource(ctx, ep); err != nil {
			log.Warn("Resource endpoint failed", "path", ep.path, "err", err)
			failures = append(failures, err.Error())
			continue
		}
		log.Info("Resource endpoint ok", "path", ep.path)
	}
	if len(failures) > 0 {
		return false, errors.Errorf("%d/%d resource endpoints failed: %s",
			len(failures), len(resourceEndpoints), strings.Join(failures, "; "))
	}
	return true, nil
}

func (t *Tester) checkResource(ctx context.Context, ep resourceEndpoint) error {
	resp, err := t.session.Get(ctx, ep.path)
	if err != nil {
		return err
	}
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return err
	}
	v, err := resp.JSON()
	if err != nil {
		return err
	}
	switch v.(type) {
	case []any:
		if ep.array {
			return nil
		}
	case map[string]any:
		if !ep.array {
			return nil
		}
	}
	want := "object"
	if ep.array {
		want = "array"
	}
	return errors.Errorf("%s: expected a JSON %s, got %s", ep.path, want, jsonKind(v))
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (t *Tester) login(ctx context.Context) (*Response, error) {
	return t.session.SendJSON(ctx, http.MethodPost, "/auth/login", credentials{
		Email:    t.cfg.Email,
		Password: t.cfg.Password,
	})
}

// captureSessionCookie remembers the df_session cookie set by resp and makes
// sure the main session sends it.
func (t *Tester) captureSessionCookie(resp *Response) *http.Cookie {
	c := resp.Cookie(sessionCookieName)
	if c == nil {
		return nil
	}
	t.authCookie = c
	t.session.SetCookie(c)
	return c
}

func (t *Tester) checkLogin(ctx context.Context, log log.Logger) (bool, error) {
	resp, err := t.login(ctx)
	if err != nil {
		return false, err
	}
	log.Info("Login response", "status", resp.StatusCode, "latency", resp.Latency)
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return false, err
	}
	body, err := resp.Object()
	if err != nil {
		return false, err
	}
	if !truthy(body["ok"]) {
		return false, errors.New("login response has no truthy ok")
	}
	if _, ok := body["user"]; !ok {
		return false, errors.New("login response has no user")
	}
	if t.captureSessionCookie(resp) == nil {
		return false, errors.Errorf("login did not set the %s cookie", sessionCookieName)
	}
	c := t.AuthCookie()
	log.Info("Logged in", "email", t.cfg.Email, "cookie", c.Name, "expires", cookieExpiry(c))
	return true, nil
}

func cookieExpiry(c *http.Cookie) string {
	switch {
	case c.MaxAge > 0:
		return (time.Duration(c.MaxAge) * time.Second).String()
	case !c.Expires.IsZero():
		return c.Expires.UTC().Format(time.RFC3339)
	default:
		return "session"
	}
}

func (t *Tester) checkMe(ctx context.Context, log log.Logger) (bool, error) {
	resp, err := t.session.Get(ctx, "/auth/me")
	if err != nil {
		return false, err
	}
	log.Info("Auth me response", "status", resp.StatusCode, "latency", resp.Latency)
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return false, err
	}
	body, err := resp.Object()
	if err != nil {
		return false, err
	}
	user, ok := body["user"].(map[string]any)
	if !ok {
		return false, errors.New("auth/me returned no user for the logged in session")
	}
	email, _ := user["email"].(string)
	role, _ := user["role"].(string)
	if email != t.cfg.Email || role != "admin" {
		return false, errors.Errorf("unexpected user %q with role %q", email, role)
	}
	log.Info("Session user verified", "email", email, "role", role)
	return true, nil
}

func (t *Tester) checkUnauthorizedWrite(ctx context.Context, log log.Logger) (bool, error) {
	anon, err := NewSession(t.cfg.APIBase(), t.cfg.Timeout)
	if err != nil {
		return false, err
	}
	update := map[string]any{"brand": map[string]any{"name": "Test Update"}}
	resp, err := anon.SendJSON(ctx, http.MethodPut, "/site", update)
	if err != nil {
		return false, err
	}
	log.Info("Unauthorized write response", "status", resp.StatusCode)
	if err := resp.ExpectStatus(http.StatusUnauthorized); err != nil {
		return false, errors.Wrap(err, "write without a session was not rejected")
	}
	return true, nil
}

func (t *Tester) checkAuthorizedWrite(ctx context.Context, log log.Logger) (bool, error) {
	resp, err := t.session.Get(ctx, "/site")
	if err != nil {
		return false, errors.Wrap(err, "could not get current site data")
	}
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return false, errors.Wrap(err, "could not get current site data")
	}
	site, err := resp.Object()
	if err != nil {
		return false, err
	}
	brand, ok := site["brand"].(map[string]any)
	if !ok {
		return false, errors.New("site has no brand object")
	}
	original, hadName := brand["name"].(string)
	if !hadName {
		original = t.cfg.ExpectedBrand
	}

	brand["name"] = updatedBrandName
	put, err := t.session.SendJSON(ctx, http.MethodPut, "/site", site)
	if err != nil {
		return false, err
	}
	log.Info("Authorized write response", "status", put.StatusCode, "latency", put.Latency)
	if err := put.ExpectStatus(http.StatusOK); err != nil {
		return false, err
	}
	echoed, err := put.Object()
	if err != nil {
		return false, err
	}
	if got := brandName(echoed); got != updatedBrandName {
		return false, errors.Errorf("site update not reflected: brand.name is %q", got)
	}
	log.Info("Site update reflected", "brand", updatedBrandName)

	brand["name"] = original
	if err := t.restoreSite(ctx, site); err != nil {
		RecordRestoreFailure()
		if t.cfg.StrictRestore {
			return false, errors.Wrap(err, "failed to restore brand name")
		}
		log.Warn("Failed to restore brand name", "brand", original, "err", err)
		return true, nil
	}
	log.Info("Restored brand name", "brand", original)
	return true, nil
}

func (t *Tester) restoreSite(ctx context.Context, site map[string]any) error {
	resp, err := t.session.SendJSON(ctx, http.MethodPut, "/site", site)
	if err != nil {
		return err
	}
	return resp.ExpectStatus(http.StatusOK)
}

func (t *Tester) checkUnauthorizedUpload(ctx context.Context, log log.Logger) (bool, error) {
	anon, err := NewSession(t.cfg.APIBase(), t.cfg.Timeout)
	if err != nil {
		return false, err
	}
	path, err := writeTempFile("df-smoke-*.txt", "Test upload content")
	if err != nil {
		return false, err
	}
	defer os.Remove(path)

	resp, err := anon.WithoutJSON().UploadFile(ctx, "/uploads", "files", path, "test.txt", "text/plain")
	if err != nil {
		return false, err
	}
	log.Info("Unauthorized upload response", "status", resp.StatusCode)
	if err := resp.ExpectStatus(http.StatusUnauthorized); err != nil {
		return false, errors.Wrap(err, "upload without a session was not rejected")
	}
	return true, nil
}

func (t *Tester) checkAuthorizedUpload(ctx context.Context, log log.Logger) (bool, error) {
	login, err := t.login(ctx)
	if err != nil {
		return false, errors.Wrap(err, "could not login for upload test")
	}
	if err := login.ExpectStatus(http.StatusOK); err != nil {
		return false, errors.Wrap(err, "could not login for upload test")
	}
	t.captureSessionCookie(login)

	path, err := writeTempFile("df-smoke-*.txt", "Test upload content for authorized user")
	if err != nil {
		return false, err
	}
	defer os.Remove(path)

	resp, err := t.session.WithoutJSON().UploadFile(ctx, "/uploads", "files", path, "test_authorized.txt", "text/plain")
	if err != nil {
		return false, err
	}
	log.Info("Authorized upload response", "status", resp.StatusCode, "latency", resp.Latency)
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return false, err
	}
	body, err := resp.Object()
	if err != nil {
		return false, err
	}
	uploaded, ok := body["uploaded"].([]any)
	if !ok || len(uploaded) == 0 {
		return false, errors.New("upload response has no uploaded entries")
	}
	for i, item := range uploaded {
		entry, ok := item.(map[string]any)
		if !ok || !present(entry["url"]) || !present(entry["id"]) {
			return false, errors.Errorf("uploaded entry %d has no url or id", i)
		}
		log.Info("File uploaded", "url", entry["url"], "id", entry["id"])
	}
	return true, nil
}

func (t *Tester) checkLogout(ctx context.Context, log log.Logger) (bool, error) {
	resp, err := t.session.Do(ctx, http.MethodPost, "/auth/logout", nil, "")
	if err != nil {
		return false, err
	}
	log.Info("Logout response", "status", resp.StatusCode, "latency", resp.Latency)
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return false, err
	}
	body, err := resp.Object()
	if err != nil {
		return false, err
	}
	if !truthy(body["ok"]) {
		return false, errors.New("logout response has no truthy ok")
	}

	me, err := t.session.Get(ctx, "/auth/me")
	if err != nil {
		return false, errors.Wrap(err, "could not verify logout status")
	}
	if err := me.ExpectStatus(http.StatusOK); err != nil {
		return false, errors.Wrap(err, "could not verify logout status")
	}
	meBody, err := me.Object()
	if err != nil {
		return false, err
	}
	if meBody["user"] != nil {
		return false, errors.New("session still has a user after logout")
	}
	t.authCookie = nil
	log.Info("Logged out")
	return true, nil
}

func brandName(site map[string]any) string {
	brand, _ := site["brand"].(map[string]any)
	name, _ := brand["name"].(string)
	return name
}

// truthy follows JSON truthiness: false, null, 0, "" and empty containers are
// false.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
