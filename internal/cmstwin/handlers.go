package cmstwin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxUploadMemory = 32 << 20

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (t *Twin) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"name":    "Digitfellas dynamic site API",
		"storage": "memory",
	})
}

func (t *Twin) handleGetSite(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	site := cloneValue(t.site)
	t.mu.Unlock()
	writeJSON(w, http.StatusOK, site)
}

func (t *Twin) handlePutSite(w http.ResponseWriter, r *http.Request, _ User) {
	var next map[string]any
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if next == nil {
		next = map[string]any{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.Faults.IgnoreSiteWrites {
		writeJSON(w, http.StatusOK, cloneValue(t.site))
		return
	}
	meta, _ := next["_meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	next["_meta"] = meta
	t.site = next
	writeJSON(w, http.StatusOK, cloneValue(next))
}

func (t *Twin) handleList(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, ok := seedCollections[kind]
		if !ok {
			items = []any{}
		}
		writeJSON(w, http.StatusOK, cloneValue(items))
	}
}

func (t *Twin) handleSection(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.mu.Lock()
		section, ok := t.site[key].(map[string]any)
		section = cloneValue(section)
		t.mu.Unlock()
		if !ok || section == nil {
			section = map[string]any{}
		}
		writeJSON(w, http.StatusOK, section)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (t *Twin) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	t.mu.Lock()
	if email != strings.ToLower(t.cfg.Email) || body.Password != t.cfg.Password {
		t.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token := uuid.NewString()
	t.sessions[token] = session{user: t.user, expiresAt: time.Now().Add(sessionTTL)}
	user := t.user
	setCookie := !t.cfg.Faults.NoSessionCookie
	t.mu.Unlock()

	if setCookie {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(sessionTTL.Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": user})
}

func (t *Twin) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := t.sessionUser(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (t *Twin) handleLogout(w http.ResponseWriter, r *http.Request) {
	if t.faults().StickyLogout {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		t.mu.Lock()
		delete(t.sessions, c.Value)
		t.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (t *Twin) handleUpload(w http.ResponseWriter, r *http.Request, _ User) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "No files provided (field name: files)")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No files provided (field name: files)")
		return
	}
	kind := r.FormValue("kind")
	if kind == "" {
		kind = "image"
	}
	variant := r.FormValue("variant")
	if variant == "" {
		variant = "desktop"
	}

	dropIDs := t.faults().DropUploadIDs
	saved := make([]Upload, 0, len(files))
	for _, fh := range files {
		name := fh.Filename
		if name == "" {
			name = "upload"
		}
		safe := unsafeNameChars.ReplaceAllString(name, "_")
		if len(safe) > 64 {
			safe = safe[:64]
		}
		ext := filepath.Ext(name)
		filename := fmt.Sprintf("%d_%s_%s_%s%s", time.Now().UnixMilli(), uuid.NewString(), variant, safe, ext)

		up := Upload{
			URL:          "/uploads/" + filename,
			OriginalName: name,
			Kind:         kind,
			Variant:      variant,
			Size:         int(fh.Size),
		}
		if !dropIDs {
			up.ID = uuid.NewString()
		}
		saved = append(saved, up)
	}

	t.mu.Lock()
	t.uploads = append(t.uploads, saved...)
	t.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"uploaded": saved})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, user User)

func (t *Twin) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := t.sessionUser(r)
		if !ok && !t.faults().AnonymousWrites {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, user)
	}
}

func (t *Twin) sessionUser(r *http.Request) (User, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return User{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[c.Value]
	if !ok {
		return User{}, false
	}
	if time.Now().After(s.expiresAt) {
		delete(t.sessions, c.Value)
		return User{}, false
	}
	return s.user, true
}
