package actorctx

import (
	"context"

	"github.com/geocoder89/chatauth/internal/domain/account"
)

type ctxKey struct{}

// WithAccount returns a copy of ctx carrying the authenticated account
// resolved by the authorization gate.
func WithAccount(ctx context.Context, a account.Account) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func AccountFrom(ctx context.Context) (account.Account, bool) {
	a, ok := ctx.Value(ctxKey{}).(account.Account)

	return a, ok && a.ID != ""
}

func AccountIDFrom(ctx context.Context) (string, bool) {
	a, ok := AccountFrom(ctx)

	return a.ID, ok
}
