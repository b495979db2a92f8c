package auth

import (
	"context"

	"github.com/alphabot-ai/blogapi/internal/model"
)

// Resource is anything a caller may try to change. An empty OwnerID means
// the resource belongs to nobody and only admins may act on it.
type Resource interface {
	OwnerID() string
}

type moderation struct{}

func (moderation) OwnerID() string { return "" }

// Moderation stands for the comment approval queue.
var Moderation Resource = moderation{}

// CanModify reports whether id may update, delete or approve r. Owned
// resources are reserved to their owner, admins included.
func CanModify(id Identity, r Resource) bool {
	if owner := r.OwnerID(); owner != "" {
		return id.UserID == owner
	}
	return id.Role == model.RoleAdmin
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
