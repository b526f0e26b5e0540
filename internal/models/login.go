package models

import "time"

// Login is a time-bounded session proving a prior successful
// authentication.
type Login struct {
	Username string    `json:"username"`
	Token    string    `json:"-"`
	Expiry   time.Time `json:"expires_at"`
}

// Valid reports whether the login is still usable at now. A login
// stops being valid at its expiry instant.
func (l *Login) Valid(now time.Time) bool {
	return l != nil && now.Before(l.Expiry)
}
