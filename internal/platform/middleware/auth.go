package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "landregistry/pkg/domain"
	"landregistry/pkg/requestcontext"
)

// ActorClaims is the identity the actor directory asserts for a caller.
// The core treats the role as opaque and never re-derives it.
type ActorClaims struct {
	ActorID id.ActorID
	Role    id.Role
}

// TokenValidator resolves a bearer token to actor claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*ActorClaims, error)
}

// JWTValidator validates HS256 tokens issued by the actor directory.
type JWTValidator struct {
	signingKey []byte
}

// NewJWTValidator creates a validator over the shared signing key.
func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies a token, extracting the actor identity
// from the sub and role claims.
func (v *JWTValidator) ValidateToken(tokenString string) (*ActorClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("token missing subject: %w", err)
	}
	actorID, err := id.ParseActorID(sub)
	if err != nil {
		return nil, fmt.Errorf("token subject is not an actor id: %w", err)
	}

	rawRole, _ := claims["role"].(string)
	role, err := id.ParseRole(rawRole)
	if err != nil {
		return nil, fmt.Errorf("token role: %w", err)
	}

	return &ActorClaims{ActorID: actorID, Role: role}, nil
}

// RequireAuth validates the bearer token and injects the actor identity into
// the request context. Requests without a valid token never reach handlers.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithActor(ctx, claims.ActorID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":"unauthorized","error_description":%q}`, description)
}
