package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"minutepad/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ParticipantIDKey contextKey = "participantID"

// ParticipantID pulls the authenticated participant id out of the request
// context. Empty means the request never passed the auth middleware.
func ParticipantID(r *http.Request) string {
	id, _ := r.Context().Value(ParticipantIDKey).(string)
	return id
}

// Auth validates the bearer token and threads the participant id ('sub'
// claim) through the request context. The engine itself never sees tokens,
// only the opaque participant id.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Pollers may pass the token in the query string; fall back
			// to the Authorization header.
			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				authHeader := r.Header.Get("Authorization")
				tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			}

			if tokenString == "" {
				http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				if secret == "" {
					return nil, fmt.Errorf("server is not configured to validate tokens")
				}
				return []byte(secret), nil
			})

			if err != nil || !token.Valid {
				logger.Sugar.Infof("Invalid token: %v", err)
				http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Unauthorized: Could not parse token claims", http.StatusUnauthorized)
				return
			}
			participantID, ok := claims["sub"].(string)
			if !ok || participantID == "" {
				http.Error(w, "Unauthorized: Participant ID (sub) claim is missing or invalid", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ParticipantIDKey, participantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
