package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/repo/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestAccountsRepo_InsertAndFind(t *testing.T) {
	repo := memory.NewAccountsRepo()
	ctx := context.Background()

	created, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byEmail, err := repo.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", byID.FullName)

	_, err = repo.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountsRepo_DuplicateEmailUnderRace(t *testing.T) {
	repo := memory.NewAccountsRepo()

	var wg sync.WaitGroup
	var ok, dup atomic.Int32

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Insert(context.Background(), account.Account{FullName: "Ann", Email: "ann@x.com"})
			switch err {
			case nil:
				ok.Add(1)
			case account.ErrDuplicateEmail:
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 15, dup.Load())
}

func TestAccountsRepo_UpdatePatch(t *testing.T) {
	repo := memory.NewAccountsRepo()
	ctx := context.Background()

	created, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", Bio: "hi"})
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, account.Patch{Bio: ptr("new bio"), AvatarURL: ptr("https://cdn/a.png")})
	require.NoError(t, err)
	assert.Equal(t, "Ann", updated.FullName)
	assert.Equal(t, "new bio", updated.Bio)
	require.NotNil(t, updated.AvatarURL)
	assert.Equal(t, "https://cdn/a.png", *updated.AvatarURL)

	// returned copies must not alias stored state
	*updated.AvatarURL = "mutated"
	again, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.png", *again.AvatarURL)

	_, err = repo.Update(ctx, "missing", account.Patch{Bio: ptr("x")})
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountsRepo_Delete(t *testing.T) {
	repo := memory.NewAccountsRepo()
	ctx := context.Background()

	created, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com"})
	require.NoError(t, err)

	repo.Delete(created.ID)

	_, err = repo.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com"})
	assert.NoError(t, err, "email should be free again after delete")
}
