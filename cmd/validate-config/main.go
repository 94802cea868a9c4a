package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/vladimiradmaev/dosekit/internal/config"
)

func main() {
	fmt.Println("Validating configuration...")

	if err := godotenv.Load(); err != nil {
		fmt.Printf(".env file not found: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Configuration validation failed:\n%v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid.")
	fmt.Printf("Configuration details:\n")
	fmt.Printf("  - DB Host: %s\n", cfg.DB.Host)
	fmt.Printf("  - DB Port: %s\n", cfg.DB.Port)
	fmt.Printf("  - DB User: %s\n", cfg.DB.User)
	fmt.Printf("  - DB Name: %s\n", cfg.DB.DBName)
	fmt.Printf("  - Redis Enabled: %v\n", cfg.Redis.Enabled)
	fmt.Printf("  - Log Level: %v\n", cfg.Logger.Level)
	fmt.Printf("  - Log Output: %s\n", cfg.Logger.OutputPath)
	fmt.Printf("  - Log Format: %s\n", cfg.Logger.Format)
	fmt.Printf("  - Timeline Delta: %v\n", cfg.Algorithm.Delta)
	fmt.Printf("  - Default Absorption Time: %v\n", cfg.Algorithm.DefaultAbsorptionTime)
	fmt.Printf("  - Absorption Overrun: %v\n", cfg.Algorithm.AbsorptionOverrun)
	fmt.Printf("  - Absorption Delay: %v\n", cfg.Algorithm.AbsorptionDelay)
	fmt.Printf("  - Delivery Increment: %v\n", cfg.Algorithm.DeliveryIncrement)
	fmt.Printf("  - Insulin Action Duration: %v\n", cfg.Algorithm.InsulinActionDuration)
	fmt.Printf("  - Insulin Peak Activity: %v\n", cfg.Algorithm.InsulinPeakActivity)
}
