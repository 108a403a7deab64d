package server

import (
	"context"

	"director/internal/database"
)

type contextKey string

const userContextKey contextKey = "user"

// setUserContext adds the authenticated user to the request context.
func setUserContext(ctx context.Context, user *database.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// getUserFromContext retrieves the authenticated user, or nil.
func getUserFromContext(ctx context.Context) *database.User {
	user, _ := ctx.Value(userContextKey).(*database.User)
	return user
}
