package controller

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// bearerToken returns the token from "Authorization: Bearer ..." or, for websocket clients that
// cannot set headers, the token query parameter.
func bearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// ValidateToken checks the request carries an HS256 token signed with JWTSecret.
func (c *Controller) ValidateToken(r *http.Request) bool {
	raw := bearerToken(r)
	if raw == "" {
		return false
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && tok.Valid
}

// RequireAuth middleware. It is a pass-through when no secret is configured.
func (c *Controller) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(c.JWTSecret) == 0 || c.ValidateToken(r) {
			next.ServeHTTP(w, r)
			return
		}
		c.writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}
