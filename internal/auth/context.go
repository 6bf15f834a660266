package auth

import (
	"context"

	"github.com/frahmantamala/payapp/internal"
)

type ctxKey string

const ContextUserKey ctxKey = "authUser"

// WithUser stores the principal and its id in ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	ctx = context.WithValue(ctx, ContextUserKey, u)
	return internal.ContextWithUserID(ctx, u.ID)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok
}
