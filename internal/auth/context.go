package auth

import (
	"context"

	"library-gateway/internal/model"
)

type identityKey struct{}

// WithIdentity attaches id to ctx for the rest of the request.
func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the validated identity of the current request, if any.
func IdentityFrom(ctx context.Context) (*model.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*model.Identity)
	return id, ok && id != nil
}
