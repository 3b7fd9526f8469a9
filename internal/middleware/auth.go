package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartpark/backend/internal/services"
	"go.uber.org/zap"
)

// RoleAdmin is the role claim that grants the wallet and tag capabilities.
const RoleAdmin = "admin"

type contextKey string

const actorKey contextKey = "actor"

var ErrInvalidToken = errors.New("invalid token")

// Authenticator checks HS256 bearer tokens carrying "sub" and "role" claims.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// AuthMiddleware rejects requests without a valid bearer token and puts the
// caller on the request context as a services.Actor.
func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
			return
		}

		actor, err := a.validateToken(parts[1])
		if err != nil {
			zap.L().Warn("Rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (a *Authenticator) validateToken(tokenString string) (services.Actor, error) {
	if len(a.secret) == 0 {
		return services.Actor{}, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return services.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return services.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return services.Actor{}, ErrInvalidToken
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return services.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role, _ := claims["role"].(string)

	return services.Actor{ID: subject, IsAdmin: role == RoleAdmin}, nil
}

// AdminOnly must run after AuthMiddleware. Authenticated callers without
// the admin role get 403.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok || !actor.IsAdmin {
			services.SendErrorResponse(w, "Admin role required", http.StatusForbidden, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithActor(ctx context.Context, actor services.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (services.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(services.Actor)
	return actor, ok
}
