// Package csrf implements double-submit cookie CSRF protection: the token is
// set in a cookie at session creation and must be echoed back in a request
// header; the server accepts state-mutating requests only when both match.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

const (
	// CookieName is the cookie carrying the CSRF token.
	CookieName = "csrf_token"
	// HeaderName is the request header clients echo the token in.
	HeaderName = "X-Csrf-Token"

	tokenBytes = 32
)

// NewToken returns a 64-character hex token from a cryptographically secure
// source. The process cannot operate safely without entropy, so failure to
// read it panics.
func NewToken() string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: secure random source unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Validate compares the request-supplied token against the cookie token in
// constant time. Missing values and length mismatches are false; it never
// errors on malformed input.
func Validate(fromRequest, fromCookie string) bool {
	if fromRequest == "" || fromCookie == "" {
		return false
	}
	if len(fromRequest) != len(fromCookie) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(fromRequest), []byte(fromCookie)) == 1
}

// SetCookie writes the CSRF cookie. HttpOnly is deliberately false: the
// double-submit pattern requires client code to read the cookie and re-send
// the value in the header.
func SetCookie(w http.ResponseWriter, token string, maxAgeSeconds int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// FromRequest extracts the echoed header token and the cookie token.
func FromRequest(r *http.Request) (fromHeader, fromCookie string) {
	fromHeader = r.Header.Get(HeaderName)
	if cookie, err := r.Cookie(CookieName); err == nil {
		fromCookie = cookie.Value
	}
	return fromHeader, fromCookie
}

// ValidateRequest applies Validate to the header/cookie pair of a request.
func ValidateRequest(r *http.Request) bool {
	fromHeader, fromCookie := FromRequest(r)
	return Validate(fromHeader, fromCookie)
}
