package auth

import (
	"crypto/sha256"
	"encoding/gob"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
)

const SessionName = "safehaven-session"

const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot status message, shown on the next rendered page only.
type Flash struct {
	Kind string
	Text string
}

func init() {
	gob.Register(Flash{})
}

// Manager wraps the cookie session store. It is passed to handlers
// explicitly instead of living in a package-level variable.
type Manager struct {
	store *sessions.CookieStore
}

func NewManager(secret string, secure bool) *Manager {
	// Derive two 32-byte keys from the session key
	// Auth key for signing (HMAC)
	authKey := sha256.Sum256([]byte(secret + "auth"))
	// Encryption key for content encryption (AES)
	encKey := sha256.Sum256([]byte(secret + "encryption"))

	store := sessions.NewCookieStore(authKey[:], encKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   0, // browser-session cookie
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{store: store}
}

func (m *Manager) UserID(r *http.Request) string {
	session, _ := m.store.Get(r, SessionName)
	if id, ok := session.Values["userID"].(string); ok {
		return id
	}
	return ""
}

func (m *Manager) Username(r *http.Request) string {
	session, _ := m.store.Get(r, SessionName)
	if name, ok := session.Values["username"].(string); ok {
		return name
	}
	return ""
}

// save writes the session cookie, replacing any Set-Cookie this response
// already holds for it. A handler may mutate the session several times
// (clear, then flash, then redirect); the response must carry exactly one
// final cookie, not a stack of intermediate ones.
func (m *Manager) save(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	header := w.Header()
	if existing := header["Set-Cookie"]; len(existing) > 0 {
		kept := existing[:0]
		for _, c := range existing {
			if !strings.HasPrefix(c, SessionName+"=") {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			header.Del("Set-Cookie")
		} else {
			header["Set-Cookie"] = kept
		}
	}
	session.Save(r, w)
}

func (m *Manager) SetSession(w http.ResponseWriter, r *http.Request, userID, username string) {
	session, _ := m.store.Get(r, SessionName)
	session.Values["userID"] = userID
	session.Values["username"] = username
	m.save(w, r, session)
}

// ClearSession drops every value (identity included) but keeps the cookie
// itself alive so a flash added afterwards still reaches the next page.
func (m *Manager) ClearSession(w http.ResponseWriter, r *http.Request) {
	session, _ := m.store.Get(r, SessionName)
	session.Values = make(map[interface{}]interface{})
	m.save(w, r, session)
}

func (m *Manager) Flash(w http.ResponseWriter, r *http.Request, kind, text string) {
	session, _ := m.store.Get(r, SessionName)
	session.AddFlash(Flash{Kind: kind, Text: text})
	m.save(w, r, session)
}

// Flashes consumes all pending flash messages. Must be called before the
// response body is written, since consuming them rewrites the cookie.
func (m *Manager) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	session, _ := m.store.Get(r, SessionName)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	m.save(w, r, session)

	flashes := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			flashes = append(flashes, f)
		}
	}
	return flashes
}
