package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/thuinanutshell/ux-interviewer/config"
	"github.com/thuinanutshell/ux-interviewer/metrics"
	"github.com/thuinanutshell/ux-interviewer/storage"
)

var (
	// ErrResetNotConfirmed is returned when the operator did not confirm the reset
	ErrResetNotConfirmed = errors.New("database reset not confirmed")
	// ErrResetInProduction is returned for production resets without force
	ErrResetInProduction = errors.New("refusing to reset a production database without force")
	// ErrUnsafeInstanceDir is returned when the instance directory would delete something it must not
	ErrUnsafeInstanceDir = errors.New("unsafe instance directory")
)

// ResetOptions gate the destructive reset.
type ResetOptions struct {
	Confirmed bool
	Force     bool
}

// CheckReset applies the safety gate without touching the filesystem.
func CheckReset(cfg *config.Config, opts ResetOptions) error {
	if !opts.Confirmed {
		return ErrResetNotConfirmed
	}
	if cfg.IsProduction() && !opts.Force {
		return ErrResetInProduction
	}
	return checkInstanceDir(cfg.InstanceDir)
}

func checkInstanceDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: empty path", ErrUnsafeInstanceDir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeInstanceDir, err)
	}
	if abs == filepath.Dir(abs) {
		return fmt.Errorf("%w: %s is a filesystem root", ErrUnsafeInstanceDir, abs)
	}
	if cwd, err := os.Getwd(); err == nil && abs == cwd {
		return fmt.Errorf("%w: %s is the working directory", ErrUnsafeInstanceDir, abs)
	}
	if home, err := os.UserHomeDir(); err == nil && abs == home {
		return fmt.Errorf("%w: %s is the home directory", ErrUnsafeInstanceDir, abs)
	}
	return nil
}

// ResetDatabase deletes the instance directory, recreates it empty and creates
// every table. Failures are logged and returned; nothing is rolled back.
func ResetDatabase(ctx context.Context, cfg *config.Config, opts ResetOptions, sugar *zap.SugaredLogger) error {
	sugar.Info("Starting fresh database setup...")

	if err := CheckReset(cfg, opts); err != nil {
		sugar.Errorw("Database reset refused", "error", err)
		return err
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		sugar.Errorw("Error during database setup", "error", err)
		return err
	}

	if _, err := os.Stat(cfg.InstanceDir); err == nil {
		if err := os.RemoveAll(cfg.InstanceDir); err != nil {
			sugar.Errorw("Error during database setup", "step", "remove instance directory", "error", err)
			return fmt.Errorf("failed to remove instance directory: %w", err)
		}
		sugar.Infow("Removed existing instance directory", "path", cfg.InstanceDir)
	}

	if err := os.MkdirAll(cfg.InstanceDir, 0755); err != nil {
		sugar.Errorw("Error during database setup", "step", "create instance directory", "error", err)
		return fmt.Errorf("failed to create instance directory: %w", err)
	}
	sugar.Infow("Created fresh instance directory", "path", cfg.InstanceDir)

	db, err := storage.NewSQLite(dbPath, sugar)
	if err != nil {
		sugar.Errorw("Error during database setup", "step", "open database", "error", err)
		sugar.Error(ClassifySQLiteError(err, dbPath))
		return err
	}
	defer db.Close()

	if err := db.CreateAll(ctx); err != nil {
		sugar.Errorw("Error during database setup", "step", "create schema", "error", err)
		return err
	}

	metrics.DatabaseResets.Inc()
	sugar.Infow("Created new database with current schema", "path", dbPath)
	sugar.Info("Database setup completed successfully")
	return nil
}
