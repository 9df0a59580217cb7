package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

const accountColumns = `id, full_name, email, credential_hash, bio, avatar_url, created_at, updated_at`

type AccountsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

// NewAccountsRepo builds the Postgres account store. prom may be nil.
func NewAccountsRepo(pool *pgxpool.Pool, prom *observability.Prom) *AccountsRepo {
	return &AccountsRepo{pool: pool, prom: prom}
}

func (r *AccountsRepo) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	var a account.Account

	err := r.prom.ObserveDB("accounts.find_by_email", func() error {
		return scanAccount(r.pool.QueryRow(ctx,
			`SELECT `+accountColumns+`
			 FROM accounts
			 WHERE email = $1`,
			email,
		), &a)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "find account by email")
	}

	return a, nil
}

func (r *AccountsRepo) FindByID(ctx context.Context, id string) (account.Account, error) {
	var a account.Account

	err := r.prom.ObserveDB("accounts.find_by_id", func() error {
		return scanAccount(r.pool.QueryRow(ctx,
			`SELECT `+accountColumns+`
			 FROM accounts
			 WHERE id = $1`,
			id,
		), &a)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "find account by id")
	}

	return a, nil
}

// Insert relies on the unique index on email so concurrent registrations for
// the same address cannot both succeed.
func (r *AccountsRepo) Insert(ctx context.Context, a account.Account) (account.Account, error) {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	err := r.prom.ObserveDB("accounts.insert", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO accounts (`+accountColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.FullName, a.Email, a.CredentialHash, a.Bio, a.AvatarURL, a.CreatedAt, a.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return account.Account{}, account.ErrDuplicateEmail
		}
		return account.Account{}, errors.Wrap(err, "insert account")
	}

	return a, nil
}

// Update writes every non-nil patch field in one statement; nil fields keep
// their stored value.
func (r *AccountsRepo) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	var a account.Account

	err := r.prom.ObserveDB("accounts.update", func() error {
		return scanAccount(r.pool.QueryRow(ctx,
			`UPDATE accounts
			 SET full_name  = COALESCE($2, full_name),
			     bio        = COALESCE($3, bio),
			     avatar_url = COALESCE($4, avatar_url),
			     updated_at = now()
			 WHERE id = $1
			 RETURNING `+accountColumns,
			id, patch.FullName, patch.Bio, patch.AvatarURL,
		), &a)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "update account")
	}

	return a, nil
}

func scanAccount(row pgx.Row, a *account.Account) error {
	return row.Scan(
		&a.ID,
		&a.FullName,
		&a.Email,
		&a.CredentialHash,
		&a.Bio,
		&a.AvatarURL,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ account.Repository = (*AccountsRepo)(nil)
