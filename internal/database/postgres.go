package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vladimiradmaev/dosekit/internal/config"
	"github.com/vladimiradmaev/dosekit/internal/database/migrations"
	"github.com/vladimiradmaev/dosekit/internal/domain"
)

// Upload states of a cached carb entry against the external record source.
const (
	UploadStateNotUploaded = "not_uploaded"
	UploadStateUploading   = "uploading"
	UploadStateUploaded    = "uploaded"
)

// CachedDoseEntry is the persisted form of a reconciled dose entry.
// Finalized rows are immutable; mutable (in-progress) rows are replaced
// wholesale on each update.
type CachedDoseEntry struct {
	gorm.Model
	UserID             uint   `gorm:"index"`
	Kind               string `gorm:"index"`
	StartTime          time.Time
	EndTime            time.Time
	Value              float64
	Unit               string
	DeliveredUnits     *float64
	ScheduledBasalRate *float64
	InsulinType        string
	IsMutable          bool `gorm:"index"`
	Automatic          bool
	SyncIdentifier     string `gorm:"index"`
}

// NewCachedDoseEntry converts a domain dose entry for persistence.
func NewCachedDoseEntry(userID uint, dose domain.DoseEntry) CachedDoseEntry {
	return CachedDoseEntry{
		UserID:             userID,
		Kind:               string(dose.Kind),
		StartTime:          dose.StartDate,
		EndTime:            dose.EndDate,
		Value:              dose.Value,
		Unit:               string(dose.Unit),
		DeliveredUnits:     dose.DeliveredUnits,
		ScheduledBasalRate: dose.ScheduledBasalRate,
		InsulinType:        dose.InsulinType,
		IsMutable:          dose.IsMutable,
		Automatic:          dose.Automatic,
		SyncIdentifier:     dose.SyncIdentifier,
	}
}

// ToDomain converts the cached row back to a domain dose entry.
func (c CachedDoseEntry) ToDomain() domain.DoseEntry {
	return domain.DoseEntry{
		Kind:               domain.DoseKind(c.Kind),
		StartDate:          c.StartTime,
		EndDate:            c.EndTime,
		Value:              c.Value,
		Unit:               domain.DoseUnit(c.Unit),
		DeliveredUnits:     c.DeliveredUnits,
		ScheduledBasalRate: c.ScheduledBasalRate,
		InsulinType:        c.InsulinType,
		IsMutable:          c.IsMutable,
		Automatic:          c.Automatic,
		SyncIdentifier:     c.SyncIdentifier,
	}
}

// CachedCarbEntry is the persisted form of a carbohydrate entry. Edits
// supersede: a new row with a bumped SyncVersion replaces the old one, which
// is soft-deleted. Deletion leaves the soft-deleted row as a tombstone so
// the external record source can be reconciled later.
type CachedCarbEntry struct {
	gorm.Model
	UserID              uint `gorm:"index"`
	Quantity            float64
	StartTime           time.Time `gorm:"index"`
	FoodType            string
	AbsorptionSeconds   *int64
	CreatedByCurrentApp bool
	SyncIdentifier      string `gorm:"index"`
	SyncVersion         int
	ExternalID          string
	UploadState         string
}

// NewCachedCarbEntry converts a domain carb entry for persistence.
func NewCachedCarbEntry(userID uint, entry domain.CarbEntry) CachedCarbEntry {
	cached := CachedCarbEntry{
		UserID:              userID,
		Quantity:            entry.Quantity,
		StartTime:           entry.StartDate,
		FoodType:            entry.FoodType,
		CreatedByCurrentApp: entry.CreatedByCurrentApp,
		SyncIdentifier:      entry.SyncIdentifier,
		ExternalID:          entry.ExternalID,
		UploadState:         UploadStateNotUploaded,
	}
	if entry.AbsorptionTime != nil {
		seconds := int64(entry.AbsorptionTime.Seconds())
		cached.AbsorptionSeconds = &seconds
	}
	return cached
}

// ToDomain converts the cached row back to a domain carb entry.
func (c CachedCarbEntry) ToDomain() domain.CarbEntry {
	entry := domain.CarbEntry{
		Quantity:            c.Quantity,
		StartDate:           c.StartTime,
		FoodType:            c.FoodType,
		CreatedByCurrentApp: c.CreatedByCurrentApp,
		SyncIdentifier:      c.SyncIdentifier,
		ExternalID:          c.ExternalID,
	}
	if c.AbsorptionSeconds != nil {
		duration := time.Duration(*c.AbsorptionSeconds) * time.Second
		entry.AbsorptionTime = &duration
	}
	return entry
}

// User associates cached records with an account.
type User struct {
	gorm.Model
	ExternalID string `gorm:"uniqueIndex"`
	Username   string
}

func NewPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&User{}, &CachedDoseEntry{}, &CachedCarbEntry{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Registered migrations cover what AutoMigrate can't express.
	if err := migrations.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database connection established and migrations completed")
	return db, nil
}
