package middleware

import (
	"context"

	"tagbox/internal/models"
)

type contextKey int

const (
	userKey contextKey = iota
	tokenKey
)

// WithUser stores the caller resolved for this request.
func WithUser(ctx context.Context, user *models.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}

// UserFrom returns the caller of the request, or Guest if none was
// resolved.
func UserFrom(ctx context.Context) *models.User {
	if user, ok := ctx.Value(userKey).(*models.User); ok && user != nil {
		return user
	}
	return models.Guest()
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
