package session

import (
	"context"

	"sitecms/api/internal/auth"
)

type contextKey struct{}

func WithUser(ctx context.Context, user auth.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func UserFromContext(ctx context.Context) (auth.User, bool) {
	user, ok := ctx.Value(contextKey{}).(auth.User)
	return user, ok
}
