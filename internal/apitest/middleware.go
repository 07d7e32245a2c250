package apitest

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type ctxKey string

const ctxKeyUsername ctxKey = "username"

func usernameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(ctxKeyUsername).(string)
	return name
}

// countHits records every request path and its Authorization header.
func (b *Backend) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		b.authHeaders[r.URL.Path] = append(b.authHeaders[r.URL.Path], r.Header.Get("Authorization"))
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// requireToken validates the bearer JWT and stores its subject in context.
func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			respondDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims := &jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(Secret), nil
		})
		if err != nil || !tok.Valid || claims.Subject == "" {
			respondDetail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUsername, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
