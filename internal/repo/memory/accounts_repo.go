package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/google/uuid"
)

// AccountsRepo keeps accounts in process memory. The email index is checked
// and written under the same lock, so duplicate inserts are rejected
// atomically.
type AccountsRepo struct {
	mu      sync.RWMutex
	items   map[string]account.Account // id -> account
	byEmail map[string]string          // email -> id
	now     func() time.Time
}

func NewAccountsRepo() *AccountsRepo {
	return &AccountsRepo{
		items:   make(map[string]account.Account),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *AccountsRepo) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}

	return clone(r.items[id]), nil
}

func (r *AccountsRepo) FindByID(ctx context.Context, id string) (account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}

	return clone(a), nil
}

func (r *AccountsRepo) Insert(ctx context.Context, a account.Account) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	now := r.now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[a.Email]; taken {
		return account.Account{}, account.ErrDuplicateEmail
	}

	a = clone(a)
	r.items[a.ID] = a
	r.byEmail[a.Email] = a.ID

	return clone(a), nil
}

func (r *AccountsRepo) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}

	a = patch.Apply(a)
	a.UpdatedAt = r.now().UTC()
	r.items[id] = a

	return clone(a), nil
}

// Delete removes an account. Not part of the repository port; used by tests
// and tooling to simulate accounts disappearing under live sessions.
func (r *AccountsRepo) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.items[id]; ok {
		delete(r.byEmail, a.Email)
		delete(r.items, id)
	}
}

func clone(a account.Account) account.Account {
	if a.AvatarURL != nil {
		url := *a.AvatarURL
		a.AvatarURL = &url
	}
	return a
}
