package userctx

import (
	"context"
)

type ctxKey string

const userKey ctxKey = "user"

// Create a new context with steam id of the user
func New(ctx context.Context, steamID string) context.Context {
	return context.WithValue(ctx, userKey, steamID)
}

// Extract steam id of the user from the context
func FromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey).(string)
	return u, ok && u != ""
}
