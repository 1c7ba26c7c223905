package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/shelfsense/gpcsearch/internal/clients/openai"
	"github.com/shelfsense/gpcsearch/internal/data/db"
	"github.com/shelfsense/gpcsearch/internal/data/repos"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
	"github.com/shelfsense/gpcsearch/internal/services"
	"github.com/shelfsense/gpcsearch/internal/utils"
)

func main() {
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	path := utils.GetEnv("GPC_FILE", "GPC_v20240603.json", log)

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := db.AutoMigrateAll(postgresService.DB()); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	nodeRepo := repos.NewGPCNodeRepo(thePG, log)
	vectorRepo := repos.NewGPCNodeVectorRepo(thePG, log)

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("Could not init OpenAI client", "error", err)
	}

	importService := services.NewImportService(thePG, log, nodeRepo, vectorRepo, openaiClient)

	stats, err := importService.Run(context.Background(), path)
	if err != nil {
		log.Fatal("Import failed", "file", path, "error", err)
	}
	log.Info("Import complete",
		"file", path,
		"created", stats.Created,
		"updated", stats.Updated,
		"embedded", stats.Embedded,
		"skipped", stats.Skipped,
	)
}
