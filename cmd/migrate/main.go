package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/architect/presence-engine/internal/common/database"
	migrationServices "github.com/architect/presence-engine/internal/migration/services"
	"github.com/architect/presence-engine/pkg/config"
	"github.com/architect/presence-engine/pkg/logger"
)

// Standalone runner for the identity store schema migration. The server
// runs the same routine at startup; this exists for operators who want to
// migrate (or reset) a store without serving traffic.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Connect(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	result, err := migrationServices.NewSchemaMigrator(db).Run(context.Background())
	if err != nil {
		logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("outcome: %s\n", result.Outcome)
	fmt.Printf("legacy rows: %d\n", result.LegacyRows)
	fmt.Printf("identities: %d\n", result.Identities)
	if result.Error != "" {
		fmt.Printf("transform error (recovered by reset): %s\n", result.Error)
	}
}
