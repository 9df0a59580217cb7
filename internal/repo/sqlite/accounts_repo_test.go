package sqlite_test

import (
	"context"
	"sync"
	"testing"

	"github.com/geocoder89/chatauth/internal/db"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/repo/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *sqlite.AccountsRepo {
	t.Helper()

	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return sqlite.NewAccountsRepo(sqlDB, nil)
}

func ptrTo(s string) *string { return &s }

func TestAccountsRepo_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	ann, err := repo.Insert(ctx, account.Account{
		FullName:       "Ann",
		Email:          "ann@x.com",
		CredentialHash: "$2a$10$hash",
		Bio:            "hi",
	})
	require.NoError(t, err)
	require.NotEmpty(t, ann.ID)

	byEmail, err := repo.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, byEmail.ID)
	assert.Equal(t, "$2a$10$hash", byEmail.CredentialHash)
	assert.Nil(t, byEmail.AvatarURL)
	assert.True(t, ann.CreatedAt.Equal(byEmail.CreatedAt))

	byID, err := repo.FindByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", byID.FullName)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = repo.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountsRepo_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "hi"})
	require.NoError(t, err)

	_, err = repo.Insert(ctx, account.Account{FullName: "Other Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "yo"})
	assert.ErrorIs(t, err, account.ErrDuplicateEmail)
}

func TestAccountsRepo_ConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

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

func TestAccountsRepo_Update(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	ann, err := repo.Insert(ctx, account.Account{FullName: "Ann", Email: "ann@x.com", CredentialHash: "h", Bio: "hi"})
	require.NoError(t, err)

	got, err := repo.Update(ctx, ann.ID, account.Patch{Bio: ptrTo("updated")})
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FullName)
	assert.Equal(t, "updated", got.Bio)
	assert.Nil(t, got.AvatarURL)

	got, err = repo.Update(ctx, ann.ID, account.Patch{
		FullName:  ptrTo("Ann B"),
		AvatarURL: ptrTo("https://cdn.example.com/a.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ann B", got.FullName)
	assert.Equal(t, "updated", got.Bio)
	require.NotNil(t, got.AvatarURL)
	assert.Equal(t, "https://cdn.example.com/a.png", *got.AvatarURL)

	stored, err := repo.FindByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, got.FullName, stored.FullName)
	assert.Equal(t, got.AvatarURL, stored.AvatarURL)

	_, err = repo.Update(ctx, "missing", account.Patch{Bio: ptrTo("x")})
	assert.ErrorIs(t, err, account.ErrNotFound)
}
