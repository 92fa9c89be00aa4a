package utils

import "net/http"

// SessionCookie reads and writes the opaque session identifier.
type SessionCookie struct {
	Name   string
	Secure bool
}

// Read returns the session identifier carried by r, or "".
func (c SessionCookie) Read(r *http.Request) string {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Write sets the session cookie on w. It must run before the body is written.
func (c SessionCookie) Write(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return "session_id"
	}
	return c.Name
}
