package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Driver names accepted by Open
const (
	DriverSQL  = "sql"
	DriverGORM = "gorm"
	DriverAuto = "auto"
)

// Open creates the rule store at dbPath using the named driver
func Open(dbPath, driver string) (RuleStore, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	switch strings.ToLower(driver) {
	case DriverSQL:
		return NewStore(dbPath)
	case DriverGORM:
		return NewGormStore(dbPath)
	case DriverAuto, "":
		return Open(dbPath, DetectDriver(dbPath))
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// DetectDriver picks a driver for dbPath. Environment overrides win; an
// existing database keeps the driver that created it; new databases use GORM.
func DetectDriver(dbPath string) string {
	if os.Getenv("SITESNIPER_USE_GORM") == "true" {
		return DriverGORM
	}
	if os.Getenv("SITESNIPER_USE_LEGACY") == "true" {
		return DriverSQL
	}
	if !fileExists(dbPath) {
		return DriverGORM
	}
	if HasSchema(dbPath) {
		return DriverSQL
	}
	return DriverGORM
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
