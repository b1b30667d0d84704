package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
)

// AutoMigrate creates or updates the schema for all persistent models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.JoinRequest{},
		&models.Invitation{},
		&models.TeamFollow{},
		&models.VisitorRecord{},
		&models.Notification{},
		&models.CacheEntry{},
	)
}
