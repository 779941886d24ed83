package metrics

import (
	"path/filepath"

	"codeberg.org/mutker/ecctl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	defaultDBPath   = "/var/lib/ecctl/metrics.db"

	defaultBatchSize    = 10
	defaultBatchTimeout = 30
)

type Config struct {
	DBPath          string
	BackupDir       string
	BackupOnMigrate bool
	Enabled         bool
	// BatchSize snapshots are buffered before a write. Values below 2
	// write every snapshot immediately.
	BatchSize int
	// BatchTimeout is the flush interval in seconds for a partial batch.
	BatchTimeout int
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath,
		BackupOnMigrate: true,
		BatchSize:       defaultBatchSize,
		BatchTimeout:    defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "negative batch settings")
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
