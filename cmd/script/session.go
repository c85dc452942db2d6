package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

const (
	userAgent       = "DigitfellasAPITester/1.0"
	jsonContentType = "application/json"

	// maxErrorBody caps how much of a response body is quoted in errors.
	maxErrorBody = 200
)

// Session is an HTTP client bound to the API root. It keeps cookies between
// requests and sends a fixed set of default headers.
type Session struct {
	apiBase string
	client  *http.Client
	jar     http.CookieJar
	headers http.Header
}

// NewSession returns a session with its own cookie jar and the default JSON
// headers.
func NewSession(apiBase string, timeout time.Duration) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}
	headers := make(http.Header)
	headers.Set("Content-Type", jsonContentType)
	headers.Set("User-Agent", userAgent)
	return &Session{
		apiBase: strings.TrimRight(apiBase, "/"),
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		jar:     jar,
		headers: headers,
	}, nil
}

// WithoutJSON returns a session sharing this session's cookies that only sends
// the User-Agent header.
func (s *Session) WithoutJSON() *Session {
	headers := s.headers.Clone()
	headers.Del("Content-Type")
	return &Session{
		apiBase: s.apiBase,
		client:  s.client,
		jar:     s.jar,
		headers: headers,
	}
}

func (s *Session) apiURL() *url.URL {
	u, err := url.Parse(s.apiBase + "/")
	if err != nil {
		return &url.URL{}
	}
	return u
}

// SetCookie stores c in the jar for the API host.
func (s *Session) SetCookie(c *http.Cookie) {
	if c == nil {
		return
	}
	s.jar.SetCookies(s.apiURL(), []*http.Cookie{c})
}

// Cookie returns the named cookie the jar would send to the API, or nil.
func (s *Session) Cookie(name string) *http.Cookie {
	for _, c := range s.jar.Cookies(s.apiURL()) {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Response is a fully read HTTP response.
type Response struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Cookies    []*http.Cookie
	Body       []byte
	Latency    time.Duration
}

// Cookie returns the named cookie set by this response, or nil.
func (r *Response) Cookie(name string) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// JSON decodes the body into generic JSON values.
func (r *Response) JSON() (any, error) {
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		RecordRequestError(r.Method, r.Path, "decode_error")
		return nil, errors.Wrapf(err, "%s %s: response is not JSON", r.Method, r.Path)
	}
	return v, nil
}

// Object decodes the body and requires a JSON object.
func (r *Response) Object() (map[string]any, error) {
	v, err := r.JSON()
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.Errorf("%s %s: expected a JSON object, got %s", r.Method, r.Path, jsonKind(v))
	}
	return obj, nil
}

// ExpectStatus returns an error quoting the body if the status is not want.
func (r *Response) ExpectStatus(want int) error {
	if r.StatusCode == want {
		return nil
	}
	return errors.Errorf("%s %s: expected status %d, got %d: %s", r.Method, r.Path, want, r.StatusCode, r.snippet())
}

func (r *Response) snippet() string {
	body := strings.TrimSpace(string(r.Body))
	if len(body) > maxErrorBody {
		return body[:maxErrorBody] + "..."
	}
	return body
}

// Do sends a request to apiBase+path and reads the whole response. A non-empty
// contentType overrides the default header.
func (s *Session) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.apiBase+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	for k, vs := range s.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	startTime := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(startTime)
	if err != nil {
		RecordRequestError(method, path, classifyRequestError(err))
		return nil, errors.Wrapf(err, "%s %s: request failed", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		RecordRequestError(method, path, classifyRequestError(err))
		return nil, errors.Wrapf(err, "%s %s: failed to read response", method, path)
	}
	RecordRequestLatency(method, path, resp.StatusCode, float64(latency.Milliseconds()))

	return &Response{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
		Body:       data,
		Latency:    latency,
	}, nil
}

func (s *Session) Get(ctx context.Context, path string) (*Response, error) {
	return s.Do(ctx, http.MethodGet, path, nil, "")
}

// SendJSON encodes v as the request body.
func (s *Session) SendJSON(ctx context.Context, method, path string, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request body")
	}
	return s.Do(ctx, method, path, bytes.NewReader(body), jsonContentType)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadFile posts the file at filePath as a single multipart part named field.
func (s *Session) UploadFile(ctx context.Context, path, field, filePath, fileName, contentType string) (*Response, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open upload file")
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create multipart part")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, errors.Wrap(err, "failed to write multipart part")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart body")
	}
	return s.Do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType())
}

// writeTempFile writes content to a new temporary file. The caller removes it.
func writeTempFile(pattern, content string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "failed to write temp file")
	}
	return f.Name(), nil
}

func classifyRequestError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout_error"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout_error"
	}
	return "request_error"
}
