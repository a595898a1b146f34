// Command healthcheck probes the daemon's sqlite store without touching any
// daemon logic: it opens the database read-only, confirms the subscriptions
// table is queryable, and exits 0 or 1.
package main

import (
	"fmt"
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		fmt.Fprintln(os.Stderr, "Healthcheck failed: DATABASE_PATH environment variable not set")
		os.Exit(1)
	}

	if err := checkDatabase(path); err != nil {
		fmt.Fprintf(os.Stderr, "Healthcheck failed: %v\n", err)
		os.Exit(1)
	}
}

func checkDatabase(path string) error {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=2000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM subscriptions").Scan(&count).Error; err != nil {
		return fmt.Errorf("failed to query database: %w", err)
	}
	return nil
}
