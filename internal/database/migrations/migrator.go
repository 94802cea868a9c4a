package migrations

import (
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration represents a database migration
type Migration struct {
	ID   string
	Up   func(*gorm.DB) error
	Down func(*gorm.DB) error
}

// MigrationRecord tracks executed migrations
type MigrationRecord struct {
	ID        string `gorm:"primarykey"`
	AppliedAt time.Time
}

var migrations = make(map[string]Migration)

// Register adds a new migration to the registry
func Register(id string, up, down func(*gorm.DB) error) {
	migrations[id] = Migration{
		ID:   id,
		Up:   up,
		Down: down,
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(db *gorm.DB) error {
	// Create migrations table if it doesn't exist
	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var ids []string
	for id := range migrations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var executed []MigrationRecord
	if err := db.Find(&executed).Error; err != nil {
		return fmt.Errorf("failed to get executed migrations: %w", err)
	}
	executedSet := make(map[string]bool, len(executed))
	for _, record := range executed {
		executedSet[record.ID] = true
	}

	for _, id := range ids {
		if executedSet[id] {
			continue
		}
		migration := migrations[id]
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{ID: id, AppliedAt: time.Now()}).Error
		}); err != nil {
			return fmt.Errorf("migration %s failed: %w", id, err)
		}
		log.Printf("Applied migration %s", id)
	}

	return nil
}
