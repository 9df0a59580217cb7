package redis_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/repo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*redis.AccountsRepo, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.New(redis.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(context.Background()))

	return redis.NewAccountsRepo(client, nil), mr
}

func ptrTo(s string) *string { return &s }

func TestAccountsRepo_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t)

	ann, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "hi"})
	require.NoError(t, err)

	got, err := mr.Get("account:email:ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, got)

	byEmail, err := repo.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, byEmail.ID)
	assert.Equal(t, "h", byEmail.CredentialHash)
	assert.Nil(t, byEmail.AvatarURL)
	assert.True(t, ann.CreatedAt.Equal(byEmail.CreatedAt))

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = repo.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountsRepo_ConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "hi"})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, account.ErrDuplicateEmail):
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dupes)
}

func TestAccountsRepo_InsertTakesOverDanglingIndex(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t)

	require.NoError(t, mr.Set("account:email:ann@x.com", "ghost-id"))

	_, err := repo.FindByEmail(ctx, "ann@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)

	ann, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "hi"})
	require.NoError(t, err)

	got, err := repo.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, got.ID)

	_, err = repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h"})
	assert.ErrorIs(t, err, account.ErrDuplicateEmail)
}

func TestAccountsRepo_Update(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	ann, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "hi"})
	require.NoError(t, err)

	got, err := repo.Update(ctx, ann.ID, account.Patch{Bio: ptrTo("updated")})
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FullName)
	assert.Equal(t, "updated", got.Bio)
	assert.Nil(t, got.AvatarURL)

	got, err = repo.Update(ctx, ann.ID, account.Patch{AvatarURL: ptrTo("https://cdn.example.com/a.png")})
	require.NoError(t, err)
	require.NotNil(t, got.AvatarURL)
	assert.Equal(t, "https://cdn.example.com/a.png", *got.AvatarURL)
	assert.Equal(t, "updated", got.Bio)

	_, err = repo.Update(ctx, "missing", account.Patch{Bio: ptrTo("x")})
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountsRepo_StoreDown(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t)
	mr.Close()

	_, err := repo.FindByID(ctx, "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, account.ErrNotFound)
}

func TestAccountsRepo_ConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	ann, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "hi"})
	require.NoError(t, err)

	const n = 64
	bios := make(map[string]bool, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		bio := fmt.Sprintf("bio-%d", i)
		bios[bio] = true

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, ann.ID, account.Patch{Bio: &bio})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := repo.FindByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.True(t, bios[got.Bio], "bio %q was not written by any update", got.Bio)
	assert.Equal(t, "Ann", got.FullName)
}
