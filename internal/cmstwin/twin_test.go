package cmstwin

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTwin(t *testing.T, faults Faults) (*Twin, *httptest.Server) {
	t.Helper()
	twin := New(Config{Faults: faults}, log.NewLogger(log.DiscardHandler()))
	srv := httptest.NewServer(twin.Handler())
	t.Cleanup(srv.Close)
	return twin, srv
}

func doJSON(t *testing.T, method, url string, body any, cookies ...*http.Cookie) (*http.Response, map[string]any) {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func login(t *testing.T, srv *httptest.Server) *http.Cookie {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", map[string]string{
		"email":    "  Admin@Digitfellas.com ",
		"password": DefaultPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func uploadBody(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		w, err := mw.CreateFormFile(field, "hello.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte("hello"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("variant", "mobile"))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestRoot(t *testing.T) {
	_, srv := newTestTwin(t, Faults{})
	for _, path := range []string{"/api", "/api/", "/api/root"} {
		resp, body := doJSON(t, http.MethodGet, srv.URL+path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, "Digitfellas dynamic site API", body["name"])
	}
}

func TestSiteAndResources(t *testing.T) {
	_, srv := newTestTwin(t, Faults{})

	resp, site := doJSON(t, http.MethodGet, srv.URL+"/api/site", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, key := range []string{"brand", "navigation", "home", "pages", "footer"} {
		assert.Contains(t, site, key)
	}

	for _, path := range []string{"/services", "/projects", "/blog"} {
		resp, err := http.Get(srv.URL + "/api" + path)
		require.NoError(t, err)
		var v any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
		resp.Body.Close()
		assert.IsType(t, []any{}, v, path)
	}
	for _, path := range []string{"/navigation", "/footer"} {
		resp, body := doJSON(t, http.MethodGet, srv.URL+"/api"+path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotNil(t, body, path)
	}
}

func TestLoginErrors(t *testing.T) {
	_, srv := newTestTwin(t, Faults{})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", map[string]string{"email": DefaultEmail})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", map[string]string{
		"email":    DefaultEmail,
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body["error"])
}

func TestSessionLifecycle(t *testing.T) {
	twin, srv := newTestTwin(t, Faults{})

	_, me := doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", nil)
	assert.Nil(t, me["user"])

	cookie := login(t, srv)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 1, twin.ActiveSessions())

	_, me = doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", nil, cookie)
	user, ok := me["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, DefaultEmail, user["email"])
	assert.Equal(t, "admin", user["role"])

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, twin.ActiveSessions())

	_, me = doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", nil, cookie)
	assert.Nil(t, me["user"])
}

func TestProtectedSiteWrite(t *testing.T) {
	twin, srv := newTestTwin(t, Faults{})
	update := map[string]any{"brand": map[string]any{"name": "Changed"}}

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/site", update)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", body["error"])
	assert.Equal(t, DefaultBrand, twin.BrandName())

	cookie := login(t, srv)
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/site", update, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Changed", twin.BrandName())
	meta, ok := body["_meta"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, meta["updatedAt"])
}

func TestUploads(t *testing.T) {
	twin, srv := newTestTwin(t, Faults{})

	body, ct := uploadBody(t, "files")
	resp, err := http.Post(srv.URL+"/api/uploads", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cookie := login(t, srv)
	send := func(field string) (*http.Response, map[string]any) {
		body, ct := uploadBody(t, field)
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/uploads", body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", ct)
		req.AddCookie(cookie)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp, out
	}

	resp, out := send("other")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "files")

	resp, out = send("files")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	uploaded, ok := out["uploaded"].([]any)
	require.True(t, ok)
	require.Len(t, uploaded, 1)
	entry := uploaded[0].(map[string]any)
	assert.NotEmpty(t, entry["id"])
	assert.True(t, strings.HasPrefix(entry["url"].(string), "/uploads/"))
	assert.Equal(t, "hello.txt", entry["originalName"])
	assert.Equal(t, "image", entry["kind"])
	assert.Equal(t, "mobile", entry["variant"])
	assert.EqualValues(t, 5, entry["size"])
	assert.Len(t, twin.Uploads(), 1)
}

func TestFaults(t *testing.T) {
	t.Run("anonymous writes", func(t *testing.T) {
		_, srv := newTestTwin(t, Faults{AnonymousWrites: true})
		resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/site", map[string]any{"brand": map[string]any{}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("no session cookie", func(t *testing.T) {
		_, srv := newTestTwin(t, Faults{NoSessionCookie: true})
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", map[string]string{
			"email":    DefaultEmail,
			"password": DefaultPassword,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
		assert.Empty(t, resp.Cookies())
	})

	t.Run("sticky logout", func(t *testing.T) {
		twin, srv := newTestTwin(t, Faults{StickyLogout: true})
		cookie := login(t, srv)
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/logout", nil, cookie)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, twin.ActiveSessions())
	})

	t.Run("ignore site writes", func(t *testing.T) {
		twin, srv := newTestTwin(t, Faults{IgnoreSiteWrites: true})
		cookie := login(t, srv)
		_, body := doJSON(t, http.MethodPut, srv.URL+"/api/site", map[string]any{"brand": map[string]any{"name": "X"}}, cookie)
		assert.Equal(t, DefaultBrand, body["brand"].(map[string]any)["name"])
		assert.Equal(t, DefaultBrand, twin.BrandName())
	})

	t.Run("fail paths", func(t *testing.T) {
		twin, srv := newTestTwin(t, Faults{})
		twin.SetFaults(Faults{FailPaths: map[string]int{"/services": http.StatusBadGateway}})
		resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/services", nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/projects", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
