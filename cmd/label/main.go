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

	concurrency := utils.GetEnvAsInt("LABEL_CONCURRENCY", services.DefaultLabelConcurrency, log)

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	thePG := postgresService.DB()

	nodeRepo := repos.NewGPCNodeRepo(thePG, log)

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("Could not init OpenAI client", "error", err)
	}

	labelService := services.NewLabelService(thePG, log, nodeRepo, openaiClient, concurrency)

	ctx := context.Background()
	for _, level := range []int{2, 3} {
		stats, err := labelService.LabelLevel(ctx, level)
		if err != nil {
			log.Fatal("Labeling failed", "level", level, "error", err)
		}
		log.Info("Labeling pass finished",
			"level", level,
			"targeted", stats.Targeted,
			"labeled", stats.Labeled,
			"fell_back", stats.FellBack,
		)
	}
}
