package authctx

import (
	"context"

	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
)

// User is the authenticated caller derived from the bearer token plus the
// role claim resolved by the claim store.
type User struct {
	ID    string
	Email string
	Role  identitydomain.Role
}

type userContextKey struct{}

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the authenticated user from context, if set.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	user, ok := ctx.Value(userContextKey{}).(User)
	return user, ok
}
