package storage

import (
	"time"

	"github.com/sheetql/sheetql/pkg/logger"
)

// MigrationConfig contains the configuration needed for running schema
// migrations against the SQL backends.
type MigrationConfig struct {
	Engine string
	URI    string
	// TargetVersion 0 migrates to the latest version.
	TargetVersion uint
	Timeout       time.Duration
	Verbose       bool
	Username      string
	Password      string
	Logger        logger.Logger
}
