// Package sqlite stores accounts in a single SQLite file, for local runs and
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/observability"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const accountColumns = `id, full_name, email, credential_hash, bio, avatar_url, created_at, updated_at`

type AccountsRepo struct {
	db   *sql.DB
	prom *observability.Prom
	now  func() time.Time
}

// NewAccountsRepo expects a handle opened by db.OpenSQLite. prom may be nil.
func NewAccountsRepo(sqlDB *sql.DB, prom *observability.Prom) *AccountsRepo {
	return &AccountsRepo{db: sqlDB, prom: prom, now: time.Now}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func (r *AccountsRepo) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	var a account.Account

	err := r.prom.ObserveDB("accounts.find_by_email", func() error {
		return scanAccount(r.db.QueryRowContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email), &a)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "find account by email")
	}

	return a, nil
}

func (r *AccountsRepo) FindByID(ctx context.Context, id string) (account.Account, error) {
	var a account.Account

	err := r.prom.ObserveDB("accounts.find_by_id", func() error {
		return scanAccount(r.db.QueryRowContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id), &a)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "find account by id")
	}

	return a, nil
}

func (r *AccountsRepo) Insert(ctx context.Context, a account.Account) (account.Account, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Millisecond)
	a.UpdatedAt = now

	err := r.prom.ObserveDB("accounts.insert", func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.FullName, a.Email, a.CredentialHash, a.Bio, nullString(a.AvatarURL),
			toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
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

func (r *AccountsRepo) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	var a account.Account

	err := r.prom.ObserveDB("accounts.update", func() error {
		return scanAccount(r.db.QueryRowContext(ctx,
			`UPDATE accounts
			 SET full_name  = COALESCE(?, full_name),
			     bio        = COALESCE(?, bio),
			     avatar_url = COALESCE(?, avatar_url),
			     updated_at = ?
			 WHERE id = ?
			 RETURNING `+accountColumns,
			nullString(patch.FullName), nullString(patch.Bio), nullString(patch.AvatarURL),
			toMillis(r.now()), id,
		), &a)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "update account")
	}

	return a, nil
}

func scanAccount(row *sql.Row, a *account.Account) error {
	var (
		avatar    sql.NullString
		createdAt int64
		updatedAt int64
	)

	if err := row.Scan(&a.ID, &a.FullName, &a.Email, &a.CredentialHash, &a.Bio, &avatar, &createdAt, &updatedAt); err != nil {
		return err
	}

	if avatar.Valid {
		url := avatar.String
		a.AvatarURL = &url
	}
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)

	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "accounts.email")
}

var _ account.Repository = (*AccountsRepo)(nil)
