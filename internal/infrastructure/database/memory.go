package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farunova-art/farunova-sub001/internal/config"
)

// NewInMemory opens and migrates a private in-memory SQLite database.
func NewInMemory(log *zap.Logger) (*gorm.DB, error) {
	db, err := NewConnection(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   "file::memory:",
	}, log)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}
