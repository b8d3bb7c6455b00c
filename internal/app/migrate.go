package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pricewatch/internal/config"
	"pricewatch/internal/storage"
	"pricewatch/internal/tracking"
)

// MigrateOptions select the source store. The destination is the configured store.
type MigrateOptions struct {
	FromDriver string
	FromPath   string
	DryRun     bool
	// Merge keeps destination items whose id is absent from the source.
	Merge bool
}

// Migrate copies the collection from another backend into the configured one,
// e.g. a legacy products.json into redis.
func (a *App) Migrate(ctx context.Context, opts MigrateOptions) error {
	srcCfg := a.Config.Storage
	srcCfg.Driver = opts.FromDriver
	if opts.FromPath != "" {
		switch strings.ToLower(opts.FromDriver) {
		case "", "file":
			srcCfg.File = config.FileStoreConfig{Path: opts.FromPath}
		case "sqlite":
			srcCfg.SQLite = config.SQLiteConfig{Path: opts.FromPath}
		default:
			return fmt.Errorf("--from-path only applies to file and sqlite sources")
		}
	}
	if sameStore(srcCfg, a.Config.Storage) {
		return errors.New("source and destination are the same store")
	}

	src, closeSrc, err := storage.Open(ctx, srcCfg, a.Logger)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer closeSrc()

	items, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}

	dst, closeDst, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer closeDst()

	if opts.Merge {
		existing, err := dst.Load(ctx)
		if err != nil {
			return fmt.Errorf("load destination: %w", err)
		}
		items = mergeItems(existing, items)
	}

	invalid := 0
	for _, it := range items {
		if err := tracking.ValidateTarget(it.Mode, it.DesiredValue); err != nil {
			invalid++
			a.Logger.Warn().Err(err).Str("id", it.ID).Msg("item has an invalid target; copied as is")
		}
	}

	if opts.DryRun {
		a.Logger.Warn().Int("items", len(items)).Int("invalid", invalid).Msg("migrate dry-run: nothing written")
		return nil
	}
	if err := dst.Save(ctx, items); err != nil {
		return fmt.Errorf("save destination: %w", err)
	}
	a.Logger.Info().Int("items", len(items)).Str("from", srcCfg.Driver).Str("to", a.Config.Storage.Driver).Msg("migration complete")
	return nil
}

// mergeItems keeps dst order, replaces items with a matching id from src, and
// appends new src items.
func mergeItems(dst, src []tracking.Item) []tracking.Item {
	byID := make(map[string]tracking.Item, len(src))
	for _, it := range src {
		byID[it.ID] = it
	}
	out := make([]tracking.Item, 0, len(dst)+len(src))
	for _, it := range dst {
		if repl, ok := byID[it.ID]; ok {
			out = append(out, repl)
			delete(byID, it.ID)
			continue
		}
		out = append(out, it)
	}
	for _, it := range src {
		if _, ok := byID[it.ID]; ok {
			out = append(out, it)
		}
	}
	return out
}

func sameStore(a, b config.StorageConfig) bool {
	da, db := normDriver(a.Driver), normDriver(b.Driver)
	if da != db {
		return false
	}
	switch da {
	case "file":
		return a.File.Path == b.File.Path
	case "sqlite":
		return a.SQLite.Path == b.SQLite.Path
	case "redis":
		return a.Redis == b.Redis
	case "postgres":
		return a.Database.DSN == b.Database.DSN
	}
	return false
}

func normDriver(d string) string {
	d = strings.ToLower(d)
	if d == "" {
		return "file"
	}
	return d
}
