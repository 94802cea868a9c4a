package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladimiradmaev/dosekit/internal/logger"
)

type Config struct {
	DB        DBConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Algorithm AlgorithmConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Enabled bool
	Host    string
	Port    string
}

type LoggerConfig struct {
	Level      logger.LogLevel
	OutputPath string
	Format     string
}

// AlgorithmConfig carries the modeling defaults shared by the dose and carb
// services.
type AlgorithmConfig struct {
	// Delta is the sampling interval of computed timelines.
	Delta time.Duration

	// DefaultAbsorptionTime is used for carb entries without one.
	DefaultAbsorptionTime time.Duration

	// AbsorptionOverrun scales an entry's absorption time into the maximum
	// allowed absorption time.
	AbsorptionOverrun float64

	// AbsorptionDelay is the time between intake and observable effect.
	AbsorptionDelay time.Duration

	AdaptiveRateEnabled         bool
	AdaptiveRateStandbyFraction float64

	// DeliveryIncrement is the pump's smallest deliverable bolus increment.
	DeliveryIncrement float64

	// InsulinActionDuration parameterizes the default activity model.
	InsulinActionDuration time.Duration
	InsulinPeakActivity   time.Duration
	InsulinDelay          time.Duration
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.LevelDebug
	case "info":
		return logger.LevelInfo
	case "warn", "warning":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

func parseMinutes(key string, defaultMinutes int) time.Duration {
	value := getEnvOrDefault(key, strconv.Itoa(defaultMinutes))
	minutes, err := strconv.Atoi(value)
	if err != nil || minutes <= 0 {
		minutes = defaultMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func parseFloat(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}

func parseBool(key string, defaultValue bool) bool {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func Load() (*Config, error) {
	return &Config{
		DB: DBConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrDefault("DB_NAME", "dosekit"),
		},
		Redis: RedisConfig{
			Enabled: parseBool("REDIS_ENABLED", false),
			Host:    getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:    getEnvOrDefault("REDIS_PORT", "6379"),
		},
		Logger: LoggerConfig{
			Level:      parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info")),
			OutputPath: getEnvOrDefault("LOG_OUTPUT", "logs/app.log"),
			Format:     getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Algorithm: AlgorithmConfig{
			Delta:                       parseMinutes("ALGO_DELTA_MINUTES", 5),
			DefaultAbsorptionTime:       parseMinutes("ALGO_DEFAULT_ABSORPTION_MINUTES", 180),
			AbsorptionOverrun:           parseFloat("ALGO_ABSORPTION_OVERRUN", 1.5),
			AbsorptionDelay:             parseMinutes("ALGO_ABSORPTION_DELAY_MINUTES", 10),
			AdaptiveRateEnabled:         parseBool("ALGO_ADAPTIVE_RATE_ENABLED", false),
			AdaptiveRateStandbyFraction: parseFloat("ALGO_ADAPTIVE_RATE_STANDBY_FRACTION", 0.2),
			DeliveryIncrement:           parseFloat("ALGO_DELIVERY_INCREMENT", 0.025),
			InsulinActionDuration:       parseMinutes("ALGO_INSULIN_ACTION_MINUTES", 360),
			InsulinPeakActivity:         parseMinutes("ALGO_INSULIN_PEAK_MINUTES", 75),
			InsulinDelay:                parseMinutes("ALGO_INSULIN_DELAY_MINUTES", 10),
		},
	}, nil
}
