// Package service implements registration, login, session resolution and
// profile updates on top of the account store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/chatauth/internal/auth"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/security"
	"github.com/geocoder89/chatauth/internal/upload"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/geocoder89/chatauth/internal/service")

type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, hash string) (bool, error)
}

type TokenIssuer interface {
	Issue(accountID string) (auth.Token, error)
}

type SessionResolver interface {
	Authenticate(ctx context.Context, rawToken string) (account.Account, error)
}

// Metrics is satisfied by *observability.Prom.
type Metrics interface {
	ObserveOutcome(op, result string)
	ObserveHash(op string, d time.Duration)
	ObserveUpload(err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOutcome(string, string)     {}
func (nopMetrics) ObserveHash(string, time.Duration) {}
func (nopMetrics) ObserveUpload(error)               {}

type Options struct {
	// UnifyLoginErrors reports unknown emails as invalid credentials.
	UnifyLoginErrors bool
	MaxImageBytes    int
	Logger           *slog.Logger
	Metrics          Metrics
}

// Session is what a successful register or login hands back.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   account.Profile `json:"account"`
}

type Accounts struct {
	repo     account.Repository
	hasher   PasswordHasher
	tokens   TokenIssuer
	sessions SessionResolver
	uploader upload.Uploader

	unifyLoginErrors bool
	maxImageBytes    int
	logger           *slog.Logger
	metrics          Metrics

	decoyMu   sync.Mutex
	decoyHash string
}

func NewAccounts(
	repo account.Repository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	sessions SessionResolver,
	uploader upload.Uploader,
	opts Options,
) *Accounts {
	s := &Accounts{
		repo:             repo,
		hasher:           hasher,
		tokens:           tokens,
		sessions:         sessions,
		uploader:         uploader,
		unifyLoginErrors: opts.UnifyLoginErrors,
		maxImageBytes:    opts.MaxImageBytes,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
	}
	if s.maxImageBytes <= 0 {
		s.maxImageBytes = upload.DefaultMaxImageBytes
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// Register creates an account and opens a session for it.
func (s *Accounts) Register(ctx context.Context, in account.RegisterInput) (sess Session, err error) {
	ctx, span := tracer.Start(ctx, "accounts.register")
	defer func() { s.finish(span, "register", err) }()

	in = in.Normalize()
	if err := account.Validate(in); err != nil {
		return Session{}, err
	}
	if err := checkPasswordBytes(in.Password); err != nil {
		return Session{}, err
	}

	// cheap pre-check; the store's unique key is what actually guarantees it
	_, err = s.repo.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return Session{}, account.ErrConflict
	case !errors.Is(err, account.ErrNotFound):
		return Session{}, s.internal(ctx, "register: lookup email", err)
	}

	hash, err := s.hash(ctx, in.Password)
	if err != nil {
		return Session{}, s.internal(ctx, "register: hash password", err)
	}

	a, err := s.repo.Insert(ctx, account.Account{
		FullName:       in.FullName,
		Email:          in.Email,
		CredentialHash: hash,
		Bio:            in.Bio,
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			return Session{}, account.ErrConflict
		}
		return Session{}, s.internal(ctx, "register: insert account", err)
	}
	span.SetAttributes(attribute.String("account.id", a.ID))

	return s.openSession(ctx, "register", a)
}

// Login checks credentials and opens a fresh session.
func (s *Accounts) Login(ctx context.Context, in account.LoginInput) (sess Session, err error) {
	ctx, span := tracer.Start(ctx, "accounts.login")
	defer func() { s.finish(span, "login", err) }()

	in = in.Normalize()
	if err := account.Validate(in); err != nil {
		return Session{}, err
	}
	if err := checkPasswordBytes(in.Password); err != nil {
		return Session{}, err
	}

	a, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			return Session{}, s.internal(ctx, "login: lookup email", err)
		}
		if !s.unifyLoginErrors {
			return Session{}, account.ErrNotFound
		}
		// spend the same bcrypt work as a real mismatch
		var werr error
		if decoy, ok := s.decoy(ctx); ok {
			_, werr = s.verify(ctx, in.Password, decoy)
		} else {
			_, werr = s.hash(ctx, in.Password)
		}
		if werr != nil && ctx.Err() != nil {
			return Session{}, s.internal(ctx, "login: verify password", werr)
		}
		return Session{}, account.ErrInvalidCredentials
	}
	span.SetAttributes(attribute.String("account.id", a.ID))

	ok, err := s.verify(ctx, in.Password, a.CredentialHash)
	if err != nil {
		return Session{}, s.internal(ctx, "login: verify password", err)
	}
	if !ok {
		return Session{}, account.ErrInvalidCredentials
	}

	return s.openSession(ctx, "login", a)
}

// Authenticate resolves a bearer token to the current profile of its account.
func (s *Accounts) Authenticate(ctx context.Context, rawToken string) (account.Account, error) {
	a, err := s.sessions.Authenticate(ctx, rawToken)
	if err != nil {
		if errors.Is(err, account.ErrUnauthenticated) {
			return account.Account{}, err
		}
		return account.Account{}, s.internal(ctx, "authenticate", err)
	}
	return a, nil
}

// UpdateProfile merges the provided fields into the account. A new avatar is
// uploaded first; if that fails nothing is written.
func (s *Accounts) UpdateProfile(ctx context.Context, accountID string, in account.ProfileUpdate) (p account.Profile, err error) {
	ctx, span := tracer.Start(ctx, "accounts.update_profile", trace.WithAttributes(attribute.String("account.id", accountID)))
	defer func() { s.finish(span, "update_profile", err) }()

	in = in.Normalize()
	if err := account.Validate(in); err != nil {
		return account.Profile{}, err
	}

	var img upload.Image
	if in.AvatarImage != nil {
		img, err = upload.DecodeDataURL(*in.AvatarImage, s.maxImageBytes)
		if err != nil {
			return account.Profile{}, account.NewValidationError(account.FieldError{
				Field:   "avatarImage",
				Rule:    "image",
				Message: err.Error(),
			})
		}
	}

	patch := account.Patch{FullName: in.FullName, Bio: in.Bio}

	if in.AvatarImage != nil {
		url, err := s.uploader.Upload(ctx, img)
		s.metrics.ObserveUpload(err)
		if err != nil {
			s.logger.WarnContext(ctx, "avatar.upload_failed",
				slog.String("account_id", accountID),
				slog.String("content_type", img.ContentType),
				slog.Int("bytes", len(img.Data)),
				slog.Any("err", err),
			)
			return account.Profile{}, fmt.Errorf("%w: %v", account.ErrUpload, err)
		}
		patch.AvatarURL = &url
	}

	if patch.Empty() {
		a, err := s.repo.FindByID(ctx, accountID)
		if err != nil {
			return account.Profile{}, s.storeErr(ctx, "update profile: load account", err)
		}
		return a.Profile(), nil
	}

	a, err := s.repo.Update(ctx, accountID, patch)
	if err != nil {
		if patch.AvatarURL != nil {
			s.logger.WarnContext(ctx, "avatar.orphaned",
				slog.String("account_id", accountID),
				slog.String("url", *patch.AvatarURL),
			)
		}
		return account.Profile{}, s.storeErr(ctx, "update profile: persist", err)
	}

	return a.Profile(), nil
}

func (s *Accounts) openSession(ctx context.Context, op string, a account.Account) (Session, error) {
	tok, err := s.tokens.Issue(a.ID)
	if err != nil {
		return Session{}, s.internal(ctx, op+": issue token", err)
	}

	return Session{Token: tok.Value, ExpiresAt: tok.ExpiresAt, Account: a.Profile()}, nil
}

func (s *Accounts) hash(ctx context.Context, plain string) (string, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveHash("hash", time.Since(start)) }()

	return s.hasher.Hash(ctx, plain)
}

func (s *Accounts) verify(ctx context.Context, plain, hash string) (bool, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveHash("verify", time.Since(start)) }()

	return s.hasher.Verify(ctx, plain, hash)
}

// decoy returns a hash of a throwaway secret, used to keep the unknown-email
// path as slow as a real password check. A failed computation is not
// cached; the next call tries again.
func (s *Accounts) decoy(ctx context.Context) (string, bool) {
	s.decoyMu.Lock()
	defer s.decoyMu.Unlock()

	if s.decoyHash != "" {
		return s.decoyHash, true
	}

	h, err := s.hasher.Hash(context.WithoutCancel(ctx), "decoy-password-for-timing")
	if err != nil {
		s.logger.WarnContext(ctx, "login.decoy_hash_failed", slog.Any("err", err))
		return "", false
	}
	s.decoyHash = h
	return h, true
}

// storeErr keeps NotFound visible (the account vanished mid-request) and
// hides everything else.
func (s *Accounts) storeErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, account.ErrNotFound) {
		return account.ErrNotFound
	}
	return s.internal(ctx, op, err)
}

// internal logs the cause and returns an opaque error.
func (s *Accounts) internal(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "accounts.internal_error",
		slog.String("op", op),
		slog.Any("err", err),
	)
	return fmt.Errorf("%s: %w", op, account.ErrInternal)
}

func (s *Accounts) finish(span trace.Span, op string, err error) {
	result := outcome(err)
	s.metrics.ObserveOutcome(op, result)

	span.SetAttributes(attribute.String("accounts.result", result))
	if result == "internal" {
		span.SetStatus(codes.Error, "internal error")
	}
	span.End()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, account.ErrValidation):
		return "validation"
	case errors.Is(err, account.ErrConflict):
		return "conflict"
	case errors.Is(err, account.ErrNotFound):
		return "not_found"
	case errors.Is(err, account.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, account.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, account.ErrUpload):
		return "upload"
	default:
		return "internal"
	}
}

func checkPasswordBytes(password string) error {
	if len(password) <= security.MaxPasswordBytes {
		return nil
	}
	return account.NewValidationError(account.FieldError{
		Field:   "password",
		Rule:    "max",
		Param:   fmt.Sprint(security.MaxPasswordBytes),
		Message: fmt.Sprintf("must be at most %d bytes", security.MaxPasswordBytes),
	})
}
