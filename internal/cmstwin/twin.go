// Package cmstwin is an in-memory twin of the Digitfellas CMS API.
//
// It serves the routes the smoke tester exercises with the response shapes of
// the real backend, and exposes fault knobs so individual behaviors can be
// broken on purpose when rehearsing failure reports.
package cmstwin

import (
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	SessionCookie   = "df_session"
	DefaultEmail    = "admin@digitfellas.com"
	DefaultPassword = "admin123"
	DefaultBrand    = "Digitfellas"

	sessionTTL = 7 * 24 * time.Hour
)

// Faults makes the twin misbehave in specific, checkable ways.
type Faults struct {
	// AnonymousWrites lets PUT /site and POST /uploads through without a session.
	AnonymousWrites bool
	// NoSessionCookie makes login succeed without setting df_session.
	NoSessionCookie bool
	// StickyLogout answers logout with ok but keeps the session alive.
	StickyLogout bool
	// DropUploadIDs returns uploaded entries without an id.
	DropUploadIDs bool
	// IgnoreSiteWrites answers PUT /site with the stored site instead of the new one.
	IgnoreSiteWrites bool
	// FailPaths forces a status code for a path relative to /api (eg. "/services").
	FailPaths map[string]int
}

type Config struct {
	Email     string
	Password  string
	BrandName string
	Faults    Faults
}

// User is the admin account the twin authenticates.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// Upload is one stored media item.
type Upload struct {
	ID           string `json:"id,omitempty"`
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	Kind         string `json:"kind"`
	Variant      string `json:"variant"`
	Size         int    `json:"size"`
}

type session struct {
	user      User
	expiresAt time.Time
}

// Twin holds the CMS state behind a chi router.
type Twin struct {
	router *chi.Mux
	log    log.Logger

	mu       sync.Mutex
	cfg      Config
	user     User
	site     map[string]any
	sessions map[string]session
	uploads  []Upload
}

// New creates a Twin seeded with the default site.
func New(cfg Config, logger log.Logger) *Twin {
	if cfg.Email == "" {
		cfg.Email = DefaultEmail
	}
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}
	if cfg.BrandName == "" {
		cfg.BrandName = DefaultBrand
	}
	if logger == nil {
		logger = log.Root()
	}

	t := &Twin{
		log: logger,
		cfg: cfg,
		user: User{
			ID:    uuid.NewString(),
			Email: cfg.Email,
			Name:  "Admin",
			Role:  "admin",
		},
		site:     defaultSite(cfg.BrandName),
		sessions: make(map[string]session),
	}
	t.router = t.routes()
	return t
}

func (t *Twin) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(t.requestLog)

	r.Route("/api", func(r chi.Router) {
		r.Use(t.forcedFailures)

		r.Get("/", t.handleRoot)
		r.Get("/root", t.handleRoot)

		r.Get("/site", t.handleGetSite)
		r.Put("/site", t.requireSession(t.handlePutSite))

		r.Get("/services", t.handleList("services"))
		r.Get("/projects", t.handleList("projects"))
		r.Get("/blog", t.handleList("blog"))
		r.Get("/navigation", t.handleSection("navigation"))
		r.Get("/footer", t.handleSection("footer"))

		r.Post("/auth/login", t.handleLogin)
		r.Get("/auth/me", t.handleMe)
		r.Post("/auth/logout", t.handleLogout)

		r.Post("/uploads", t.requireSession(t.handleUpload))
	})
	return r
}

// Handler returns the twin's HTTP handler.
func (t *Twin) Handler() http.Handler {
	return t.router
}

// SetFaults replaces the active fault set.
func (t *Twin) SetFaults(f Faults) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Faults = f
}

func (t *Twin) faults() Faults {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Faults
}

// BrandName returns brand.name of the stored site, or "" if it is missing.
func (t *Twin) BrandName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	brand, _ := t.site["brand"].(map[string]any)
	name, _ := brand["name"].(string)
	return name
}

// Uploads returns a copy of the stored uploads.
func (t *Twin) Uploads() []Upload {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Upload, len(t.uploads))
	copy(out, t.uploads)
	return out
}

// ActiveSessions returns the number of unexpired sessions.
func (t *Twin) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	now := time.Now()
	for _, s := range t.sessions {
		if now.Before(s.expiresAt) {
			n++
		}
	}
	return n
}

func (t *Twin) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		t.log.Debug("twin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (t *Twin) forcedFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		path := r.URL.Path
		if rctx != nil && rctx.RoutePath != "" {
			path = rctx.RoutePath
		}
		if status, ok := t.faults().FailPaths[path]; ok {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}
