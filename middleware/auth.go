package middleware

import (
	"net/http"

	"leadwise-backend/utils"
)

// WithAuth wraps a handler that needs an authenticated caller. The
// authenticate func returns the parsed claims and the freshly loaded user, or
// a non-zero status with the reason the request must be rejected.
func WithAuth[C any, U any](
	authenticate func(*http.Request) (C, U, int, error),
	next func(http.ResponseWriter, *http.Request, C, U),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, user, status, err := authenticate(r)
		if err != nil {
			utils.JSONErr(w, status, err.Error())
			return
		}
		next(w, r, claims, user)
	}
}

// WithAdmin guards a plain handler behind an admin check.
func WithAdmin(check func(*http.Request) (int, error), next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if status, err := check(r); err != nil {
			utils.JSONErr(w, status, err.Error())
			return
		}
		next(w, r)
	}
}
