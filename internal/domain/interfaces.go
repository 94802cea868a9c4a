package domain

import (
	"context"
	"time"
)

// DoseService handles insulin delivery storage and derived timelines.
type DoseService interface {
	AddPumpEvents(ctx context.Context, userID uint, events []PumpEvent, basal *BasalRateSchedule) error
	GetNormalizedDoses(ctx context.Context, userID uint, start, end time.Time) ([]DoseEntry, error)
	TotalDelivery(ctx context.Context, userID uint, start, end time.Time) (float64, error)
}

// CarbService handles carbohydrate entry storage and derived absorption.
type CarbService interface {
	AddEntry(ctx context.Context, userID uint, entry CarbEntry) (CarbEntry, error)
	ReplaceEntry(ctx context.Context, userID uint, syncIdentifier string, entry CarbEntry) (CarbEntry, error)
	DeleteEntry(ctx context.Context, userID uint, syncIdentifier string) error
	GetEntries(ctx context.Context, userID uint, start, end time.Time) ([]CarbEntry, error)
}
