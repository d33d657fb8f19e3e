package main

import (
	"log"
	"net/http"

	"minutepad/config"
	"minutepad/config/cache"
	"minutepad/config/database"
	"minutepad/pkg/logger"
	"minutepad/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Server.LogLevel)
	defer logger.Log.Sync()

	db := database.Connect(cfg.Database)
	defer db.Close()

	rdb := cache.Connect(cfg.Redis)
	defer rdb.Close()

	handler := router.Setup(cfg, db, rdb)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Sugar.Infof("Server listening on %s", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
