package database

import (
	"database/sql"
	"fmt"
	"time"

	"minutepad/config"
	"minutepad/pkg/logger"

	_ "github.com/lib/pq"
)

func Connect(cfg config.DatabaseConfig) *sql.DB {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.Sugar.Fatalf("Failed to open database connection: %v", err)
	}

	// Verify the connection is actually alive. Retry a few times in case
	// of temporary DNS/network blips.
	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return db
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		time.Sleep(2 * time.Second)
	}
	logger.Sugar.Fatalf("Could not connect to database after retries: %v", err)
	return nil
}
