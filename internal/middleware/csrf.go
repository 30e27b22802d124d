package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

type contextKey string

const CSRFTokenKey contextKey = "csrf_token"

const (
	csrfCookie = "csrf_token"
	csrfField  = "csrf_token"
	csrfHeader = "X-CSRF-Token"
)

func GenerateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Token returns the request's CSRF token, if the middleware ran.
func Token(ctx context.Context) string {
	token, _ := ctx.Value(CSRFTokenKey).(string)
	return token
}

// CSRF issues a per-browser token cookie and checks it on POST. The token
// may arrive as a form field or in the X-CSRF-Token header, which is how
// datastar actions send it.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		cookie, err := r.Cookie(csrfCookie)
		if err != nil || cookie.Value == "" {
			token = GenerateToken()
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookie,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		} else {
			token = cookie.Value
		}

		if r.Method == http.MethodPost {
			reqToken := r.Header.Get(csrfHeader)
			if reqToken == "" {
				reqToken = r.FormValue(csrfField)
			}
			if subtle.ConstantTimeCompare([]byte(reqToken), []byte(token)) != 1 {
				http.Error(w, "Invalid CSRF Token", http.StatusForbidden)
				return
			}
		}

		ctx := context.WithValue(r.Context(), CSRFTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
