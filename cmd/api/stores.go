package main

import (
	"context"
	"fmt"

	"github.com/geocoder89/chatauth/internal/config"
	"github.com/geocoder89/chatauth/internal/db"
	"github.com/geocoder89/chatauth/internal/domain/account"
	"github.com/geocoder89/chatauth/internal/http/handlers"
	"github.com/geocoder89/chatauth/internal/observability"
	"github.com/geocoder89/chatauth/internal/repo/memory"
	"github.com/geocoder89/chatauth/internal/repo/postgres"
	"github.com/geocoder89/chatauth/internal/repo/redis"
	"github.com/geocoder89/chatauth/internal/repo/sqlite"
	"github.com/geocoder89/chatauth/internal/upload"
)

type accountStore struct {
	repo  account.Repository
	ping  func(ctx context.Context) error
	close func()
}

func openAccountStore(ctx context.Context, cfg config.Config, prom *observability.Prom) (accountStore, error) {
	switch cfg.AccountStore {
	case "postgres":
		pool, err := db.NewPool(cfg.DBURL, cfg.DB.MaxConns)
		if err != nil {
			return accountStore{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return accountStore{}, err
		}
		return accountStore{
			repo:  postgres.NewAccountsRepo(pool, prom),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil

	case "sqlite":
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return accountStore{}, err
		}
		return accountStore{
			repo:  sqlite.NewAccountsRepo(sqlDB, prom),
			ping:  sqlDB.PingContext,
			close: func() { _ = sqlDB.Close() },
		}, nil

	case "redis":
		client := redis.New(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return accountStore{}, fmt.Errorf("connect redis: %w", err)
		}
		return accountStore{
			repo:  redis.NewAccountsRepo(client, prom),
			ping:  client.Ping,
			close: func() { _ = client.Close() },
		}, nil

	case "memory":
		return accountStore{repo: memory.NewAccountsRepo(), close: func() {}}, nil

	default:
		return accountStore{}, fmt.Errorf("unknown account store %q", cfg.AccountStore)
	}
}

type avatarStore struct {
	uploader upload.Uploader
	// reader is set only when avatars are served by this process
	reader handlers.AvatarReader
	close  func()
}

func openAvatarStore(ctx context.Context, cfg config.Config) (avatarStore, error) {
	switch cfg.Upload.Driver {
	case "s3":
		u, err := upload.NewS3Uploader(ctx, upload.S3Config{
			Bucket:          cfg.Upload.S3Bucket,
			Region:          cfg.Upload.S3Region,
			Endpoint:        cfg.Upload.S3Endpoint,
			AccessKeyID:     cfg.Upload.S3AccessKeyID,
			SecretAccessKey: cfg.Upload.S3SecretAccessKey,
			UsePathStyle:    cfg.Upload.S3UsePathStyle,
			Prefix:          cfg.Upload.Prefix,
			PublicBaseURL:   cfg.Upload.PublicBaseURL,
		})
		if err != nil {
			return avatarStore{}, err
		}
		return avatarStore{uploader: u, close: func() {}}, nil

	default:
		base := cfg.Upload.PublicBaseURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d/media", cfg.Port)
		}

		u, err := upload.OpenBlobUploader(ctx, cfg.Upload.BucketURL, cfg.Upload.Prefix, base)
		if err != nil {
			return avatarStore{}, err
		}
		return avatarStore{uploader: u, reader: u, close: func() { _ = u.Close() }}, nil
	}
}
