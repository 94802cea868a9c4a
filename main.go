package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/vladimiradmaev/dosekit/internal/cache"
	"github.com/vladimiradmaev/dosekit/internal/config"
	"github.com/vladimiradmaev/dosekit/internal/database"
	apperrors "github.com/vladimiradmaev/dosekit/internal/errors"
	"github.com/vladimiradmaev/dosekit/internal/logger"
	"github.com/vladimiradmaev/dosekit/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting dose tracking daemon...")

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully")

	if err := logger.InitWithConfig(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	db, err := database.NewPostgresDB(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var store cache.Store
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisStore(cfg.Redis.Host, cfg.Redis.Port)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		store = redisStore
		log.Println("Using Redis timeline cache")
	} else {
		store = cache.NewMemoryStore()
		log.Println("Using in-memory timeline cache")
	}
	defer store.Close()

	// Initialize services
	doseService := services.NewDoseService(db, store, cfg.Algorithm, nil)
	carbService := services.NewCarbService(db, store, cfg.Algorithm)
	log.Println("Services initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		refreshTimelines(ctx, db, doseService, carbService, cfg.Algorithm.Delta)
	}()

	log.Println("Daemon is running. Press Ctrl+C to stop.")
	<-sigCh
	log.Println("Shutting down...")
	cancel()
	wg.Wait()
}

// refreshTimelines recomputes each user's insulin and carb timelines every
// delta so reads served from cache stay current. Failures are routed through
// the error handler, which logs by severity.
func refreshTimelines(ctx context.Context, db *gorm.DB, doseService *services.DoseService, carbService *services.CarbService, delta time.Duration) {
	errHandler := apperrors.NewHandler(logger.GetLogger())
	ticker := time.NewTicker(delta)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var users []database.User
		if err := db.WithContext(ctx).Find(&users).Error; err != nil {
			errHandler.Handle(ctx, apperrors.NewDatabaseError(err).WithContext("operation", "list users"))
			continue
		}

		for _, user := range users {
			if values, err := doseService.CurrentInsulinOnBoard(ctx, user.ID); err != nil {
				errHandler.Handle(ctx, wrapRefreshError(err, "insulin on board", user.ID))
			} else if len(values) > 0 {
				logger.Debug("insulin on board refreshed", "user_id", user.ID, "current", values[0].Value)
			}

			if values, err := carbService.CurrentCarbsOnBoard(ctx, user.ID); err != nil {
				errHandler.Handle(ctx, wrapRefreshError(err, "carbs on board", user.ID))
			} else if len(values) > 0 {
				logger.Debug("carbs on board refreshed", "user_id", user.ID, "current", values[0].Value)
			}
		}
	}
}

// wrapRefreshError attaches the refresh target to service errors so the
// handler's log line identifies the failing timeline.
func wrapRefreshError(err error, timeline string, userID uint) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.WithContext("timeline", timeline).WithContext("user_id", userID)
	}
	return apperrors.NewInternalError(err).WithContext("timeline", timeline).WithContext("user_id", userID)
}
