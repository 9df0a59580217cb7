package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/geocoder89/chatauth/internal/actorctx"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_AddsAccountID(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "dev")

	ctx := actorctx.WithAccount(context.Background(), account.Account{ID: "acc-1"})
	log.InfoContext(ctx, "profile_updated")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "acc-1", rec["account_id"])
	assert.Equal(t, "profile_updated", rec["msg"])
}

func TestLogger_LevelByEnv(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "prod").Debug("hidden")
	assert.Zero(t, buf.Len())

	newLogger(&buf, "dev").Debug("shown")
	assert.NotZero(t, buf.Len())
}

func TestObserveDB(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	_ = p.ObserveDB("accounts.find_by_email", func() error { return pgx.ErrNoRows })
	assert.Zero(t, testutil.CollectAndCount(p.DbErrorsTotal))

	err := p.ObserveDB("accounts.insert", func() error { return &pgconn.PgError{Code: "23505"} })
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("accounts.insert", "unique_violation")))

	assert.Equal(t, 2, testutil.CollectAndCount(p.DbQueryDuration))
}

func TestObserveDB_NilProm(t *testing.T) {
	var p *Prom
	boom := errors.New("boom")
	assert.ErrorIs(t, p.ObserveDB("op", func() error { return boom }), boom)
}

func TestClassifyDBErr(t *testing.T) {
	assert.Equal(t, "deadlock", classifyDBErr(&pgconn.PgError{Code: "40P01"}))
	assert.Equal(t, "timeout", classifyDBErr(context.DeadlineExceeded))
	assert.Equal(t, "unique_violation", classifyDBErr(errors.New("UNIQUE constraint failed: accounts.email")))
	assert.Equal(t, "unknown", classifyDBErr(errors.New("weird")))
}

func TestInitTracer_NoEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{ServiceName: "chatauth"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
