package main

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"ops-dashboard/internal/config"
	"ops-dashboard/internal/store/kv"
	"ops-dashboard/internal/store/tasks"
)

// openSnapshots builds the configured snapshot backend.
func openSnapshots(ctx context.Context, cfg *config.Config, db *gorm.DB, client *http.Client) (kv.Store, error) {
	switch cfg.Storage.Snapshots {
	case "sqlite":
		return kv.NewSQLiteStore(db)
	case "redis":
		return kv.NewRedisStore(ctx, cfg.Redis.Addr,
			kv.WithRedisPassword(cfg.Redis.Password),
			kv.WithRedisDB(cfg.Redis.DB),
			kv.WithRedisPrefix(cfg.Redis.Prefix),
		)
	case "file":
		return kv.NewFileStore(cfg.Files.SnapshotDir, cfg.Files.Aliases)
	case "supabase":
		sessions := kv.NewSessionCache(kv.SupabaseCredentials{
			URL:      cfg.Supabase.URL,
			AnonKey:  cfg.Supabase.AnonKey,
			Email:    cfg.Supabase.Email,
			Password: cfg.Supabase.Password,
		}, cfg.Supabase.SessionTTL, client)
		return kv.NewSupabaseStore(sessions, client), nil
	}
	return nil, errors.Newf("unknown snapshot backend %q", cfg.Storage.Snapshots)
}

// openTasks builds the configured task backend.
func openTasks(cfg *config.Config, db *gorm.DB, client *http.Client) (tasks.Store, error) {
	switch cfg.Storage.Tasks {
	case "sqlite":
		return tasks.NewSQLiteStore(db)
	case "notion":
		key, err := cfg.NotionAPIKey()
		if err != nil {
			return nil, err
		}
		return tasks.NewNotionStore(cfg.Notion.BaseURL, key, cfg.Notion.DatabaseID, client)
	}
	return nil, errors.Newf("unknown task backend %q", cfg.Storage.Tasks)
}
