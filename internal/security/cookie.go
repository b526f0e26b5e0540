package security

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	TokenCookie = "tagbox_login"
	tokenKey    = "token"
)

// CookieTransport carries the opaque session token between the provider
// and the client in a signed cookie.
type CookieTransport struct {
	store *sessions.CookieStore
}

func NewCookieTransport(secret []byte, ttl time.Duration, secure bool) *CookieTransport {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &CookieTransport{store: store}
}

// ReadToken returns the token carried by r, or "" if there is none or the
// cookie signature does not verify.
func (c *CookieTransport) ReadToken(r *http.Request) string {
	session, err := c.store.Get(r, TokenCookie)
	if err != nil {
		return ""
	}
	token, _ := session.Values[tokenKey].(string)
	return token
}

func (c *CookieTransport) WriteToken(w http.ResponseWriter, r *http.Request, token string) error {
	session, _ := c.store.Get(r, TokenCookie)
	session.Values[tokenKey] = token
	return session.Save(r, w)
}

// ClearToken expires the cookie on the client.
func (c *CookieTransport) ClearToken(w http.ResponseWriter, r *http.Request) error {
	session, _ := c.store.Get(r, TokenCookie)
	delete(session.Values, tokenKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
