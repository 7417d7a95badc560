package ctxutil

import "context"

type identityKey struct{}

// Identity is the ambient caller identity established by the auth middleware. UserID is
// opaque and stable; it is never parsed.
type Identity struct {
	UserID string
	Email  string
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
