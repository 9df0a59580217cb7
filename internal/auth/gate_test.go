package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/chatauth/internal/auth"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/repo/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingFinder struct{ err error }

func (f failingFinder) FindByID(ctx context.Context, id string) (account.Account, error) {
	return account.Account{}, f.err
}

func TestGate_Authenticate(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Now()}
	m := newManager(t, c)
	repo := memory.NewAccountsRepo()
	gate := auth.NewGate(m, repo)

	ann, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", Bio: "hi"})
	require.NoError(t, err)

	tok, err := m.Issue(ann.ID)
	require.NoError(t, err)

	t.Run("resolves current account state", func(t *testing.T) {
		_, err := repo.Update(ctx, ann.ID, account.Patch{Bio: ptrTo("changed after issue")})
		require.NoError(t, err)

		got, err := gate.Authenticate(ctx, tok.Value)
		require.NoError(t, err)
		assert.Equal(t, ann.ID, got.ID)
		assert.Equal(t, "changed after issue", got.Bio)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := gate.Authenticate(ctx, "  ")
		assert.ErrorIs(t, err, account.ErrUnauthenticated)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := gate.Authenticate(ctx, "garbage")
		assert.ErrorIs(t, err, account.ErrUnauthenticated)
	})

	t.Run("expired token", func(t *testing.T) {
		c.t = c.t.Add(2 * time.Hour)
		defer func() { c.t = c.t.Add(-2 * time.Hour) }()

		_, err := gate.Authenticate(ctx, tok.Value)
		assert.ErrorIs(t, err, account.ErrUnauthenticated)
	})

	t.Run("account deleted after issue", func(t *testing.T) {
		bob, err := repo.Insert(ctx, account.Account{FullName: "Bob", Email: "bob@x.com", Bio: "yo"})
		require.NoError(t, err)
		bobTok, err := m.Issue(bob.ID)
		require.NoError(t, err)

		repo.Delete(bob.ID)

		_, err = gate.Authenticate(ctx, bobTok.Value)
		assert.ErrorIs(t, err, account.ErrUnauthenticated)
	})

	t.Run("store failure is not unauthenticated", func(t *testing.T) {
		boom := errors.New("connection reset")
		g := auth.NewGate(m, failingFinder{err: boom})

		_, err := g.Authenticate(ctx, tok.Value)
		require.Error(t, err)
		assert.NotErrorIs(t, err, account.ErrUnauthenticated)
		assert.ErrorIs(t, err, boom)
	})
}

func ptrTo(s string) *string { return &s }
