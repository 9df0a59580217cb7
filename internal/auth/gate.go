package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/chatauth/internal/domain/account"
)

// Keep these small interfaces so tests can fake them easily.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type AccountFinder interface {
	FindByID(ctx context.Context, id string) (account.Account, error)
}

// Gate turns a bearer token into the current state of the account it names.
// Profile data is always re-read from the store; the token only carries the id.
type Gate struct {
	tokens   TokenVerifier
	accounts AccountFinder
}

func NewGate(tokens TokenVerifier, accounts AccountFinder) *Gate {
	return &Gate{tokens: tokens, accounts: accounts}
}

// Authenticate returns account.ErrUnauthenticated for a missing or invalid
// token and for tokens whose account no longer exists. Any other error is a
// store failure.
func (g *Gate) Authenticate(ctx context.Context, rawToken string) (account.Account, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return account.Account{}, account.ErrUnauthenticated
	}

	accountID, err := g.tokens.Verify(rawToken)
	if err != nil {
		return account.Account{}, account.ErrUnauthenticated
	}

	a, err := g.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Account{}, account.ErrUnauthenticated
		}
		return account.Account{}, fmt.Errorf("resolve session account: %w", err)
	}

	return a, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
