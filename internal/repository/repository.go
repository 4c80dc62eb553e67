// Package repository opens everything a workspace needs: its config, the
// badger database, the history and the workspace bridge.
package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"lvcs/internal/config"
	"lvcs/internal/history"
	"lvcs/internal/logging"
	"lvcs/internal/snapshot"
	"lvcs/internal/workspace"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// ConfigFile is the per-workspace config inside workspace.MetaDir.
const ConfigFile = "config.yaml"

type Repository struct {
	Root      string
	Config    *config.Config
	DB        *badger.DB
	History   *history.History
	Workspace *workspace.LocalWorkspace
	Logger    *logging.Logger
}

type Options struct {
	// Config file to use instead of the workspace one
	ConfigPath string
	Logger     *logging.Logger
}

// Initialize creates the metadata directory under root and writes the
// default config into it unless one exists.
func Initialize(root string) error {
	metaDir := filepath.Join(root, workspace.MetaDir)
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return fmt.Errorf("creating %s directory: %w", workspace.MetaDir, err)
	}

	cfgPath := filepath.Join(metaDir, ConfigFile)
	if _, err := os.Stat(cfgPath); err == nil {
		return nil
	}
	if err := config.DefaultConfig().Save(cfgPath); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// Open finds the workspace containing startDir and opens its history.
func Open(ctx context.Context, startDir string, opts Options) (*Repository, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	root, err := workspace.FindRoot(startDir)
	if err != nil {
		return nil, err
	}

	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		cfgPath = filepath.Join(root, workspace.MetaDir, ConfigFile)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	db, err := OpenDB(cfg, root)
	if err != nil {
		return nil, err
	}

	h, err := history.Open(ctx, db, history.Options{
		SnapshotInterval: cfg.History.SnapshotInterval,
		CacheSize:        cfg.History.CacheSize,
		Compression: snapshot.CompressionOptions{
			MinSize: snapshot.DefaultCompressionOptions().MinSize,
			Level:   cfg.History.CompressionLevel,
		},
		Logger: opts.Logger.Logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening history: %w", err)
	}

	opts.Logger.Debug("repository opened",
		zap.String("root", root),
		zap.Int("revision", h.Revision()))

	return &Repository{
		Root:      root,
		Config:    cfg,
		DB:        db,
		History:   h,
		Workspace: workspace.NewLocalWorkspace(root, cfg.Workspace.Ignore, opts.Logger.Logger),
		Logger:    opts.Logger,
	}, nil
}

// OpenDB opens the badger database the config names.
func OpenDB(cfg *config.Config, root string) (*badger.DB, error) {
	var opts badger.Options
	if cfg.Database.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := cfg.DatabasePath(root)
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		opts = badger.DefaultOptions(path).
			WithNumVersionsToKeep(1).
			WithLoggingLevel(badger.WARNING)
	}
	opts.Logger = nil // Disable logging noise

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func (r *Repository) Close() error {
	herr := r.History.Close()
	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return herr
}
