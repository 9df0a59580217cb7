// Package redis stores accounts as hashes with a separate email index key.
package redis

import (
	"context"
	"time"

	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/observability"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldFullName  = "full_name"
	fieldEmail     = "email"
	fieldHash      = "credential_hash"
	fieldBio       = "bio"
	fieldAvatarURL = "avatar_url"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

func accountKey(id string) string { return "account:" + id }

func emailKey(email string) string { return "account:email:" + email }

type AccountsRepo struct {
	rdb  *goredis.Client
	prom *observability.Prom
	now  func() time.Time
}

// NewAccountsRepo builds the redis account store. prom may be nil.
func NewAccountsRepo(c *Client, prom *observability.Prom) *AccountsRepo {
	return &AccountsRepo{rdb: c.Raw(), prom: prom, now: time.Now}
}

func (r *AccountsRepo) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	var id string

	err := r.prom.ObserveDB("accounts.find_by_email", func() error {
		var err error
		id, err = r.rdb.Get(ctx, emailKey(email)).Result()
		return err
	})
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "find account by email")
	}

	return r.FindByID(ctx, id)
}

func (r *AccountsRepo) FindByID(ctx context.Context, id string) (account.Account, error) {
	var fields map[string]string

	err := r.prom.ObserveDB("accounts.find_by_id", func() error {
		var err error
		fields, err = r.rdb.HGetAll(ctx, accountKey(id)).Result()
		return err
	})
	if err != nil {
		return account.Account{}, errors.Wrap(err, "find account by id")
	}
	if len(fields) == 0 {
		return account.Account{}, account.ErrNotFound
	}

	return decodeAccount(id, fields)
}

// insertScript claims the email index and writes the record in one step.
// An index entry whose record is gone is taken over.
//
// KEYS: email index, account hash. ARGV: account key prefix, id, field/value pairs.
var insertScript = goredis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if owner and redis.call('EXISTS', ARGV[1] .. owner) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('HSET', KEYS[2], unpack(ARGV, 3))
return 1
`)

// updateScript merges fields into an existing record. It never creates one.
//
// KEYS: account hash. ARGV: field/value pairs.
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

func (r *AccountsRepo) Insert(ctx context.Context, a account.Account) (account.Account, error) {
	now := r.now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	args := append([]any{accountKey(""), a.ID}, flatten(encodeAccount(a))...)

	var claimed int
	err := r.prom.ObserveDB("accounts.insert", func() error {
		var err error
		claimed, err = insertScript.Run(ctx, r.rdb, []string{emailKey(a.Email), accountKey(a.ID)}, args...).Int()
		return err
	})
	if err != nil {
		return account.Account{}, errors.Wrap(err, "insert account")
	}
	if claimed == 0 {
		return account.Account{}, account.ErrDuplicateEmail
	}

	return a, nil
}

// Update merges the patch server-side, so overlapping updates never abort;
// the last one to run wins field by field.
func (r *AccountsRepo) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	values := map[string]any{fieldUpdatedAt: r.now().UTC().Format(time.RFC3339Nano)}
	if patch.FullName != nil {
		values[fieldFullName] = *patch.FullName
	}
	if patch.Bio != nil {
		values[fieldBio] = *patch.Bio
	}
	if patch.AvatarURL != nil {
		values[fieldAvatarURL] = *patch.AvatarURL
	}

	var found int
	err := r.prom.ObserveDB("accounts.update", func() error {
		var err error
		found, err = updateScript.Run(ctx, r.rdb, []string{accountKey(id)}, flatten(values)...).Int()
		return err
	})
	if err != nil {
		return account.Account{}, errors.Wrap(err, "update account")
	}
	if found == 0 {
		return account.Account{}, account.ErrNotFound
	}

	return r.FindByID(ctx, id)
}

func flatten(values map[string]any) []any {
	out := make([]any, 0, 2*len(values))
	for k, v := range values {
		out = append(out, k, v)
	}
	return out
}

func encodeAccount(a account.Account) map[string]any {
	values := map[string]any{
		fieldFullName:  a.FullName,
		fieldEmail:     a.Email,
		fieldHash:      a.CredentialHash,
		fieldBio:       a.Bio,
		fieldCreatedAt: a.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.AvatarURL != nil {
		values[fieldAvatarURL] = *a.AvatarURL
	}
	return values
}

func decodeAccount(id string, fields map[string]string) (account.Account, error) {
	a := account.Account{
		ID:             id,
		FullName:       fields[fieldFullName],
		Email:          fields[fieldEmail],
		CredentialHash: fields[fieldHash],
		Bio:            fields[fieldBio],
	}

	if url, ok := fields[fieldAvatarURL]; ok {
		a.AvatarURL = &url
	}

	var err error
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err != nil {
		return account.Account{}, errors.Wrapf(err, "decode account %s created_at", id)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt]); err != nil {
		return account.Account{}, errors.Wrapf(err, "decode account %s updated_at", id)
	}

	return a, nil
}

var _ account.Repository = (*AccountsRepo)(nil)
