package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/shelfsense/gpcsearch/internal/clients/openai"
	"github.com/shelfsense/gpcsearch/internal/data/db"
	"github.com/shelfsense/gpcsearch/internal/data/repos"
	"github.com/shelfsense/gpcsearch/internal/handlers"
	"github.com/shelfsense/gpcsearch/internal/middleware"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
	"github.com/shelfsense/gpcsearch/internal/server"
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

	authToken := utils.GetEnv("API_AUTH_TOKEN", "", log)
	if authToken == "" {
		log.Fatal("API_AUTH_TOKEN is required")
	}
	expandQuery := utils.GetEnvAsBool("SEARCH_EXPAND_QUERY", true, log)

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

	searchService := services.NewSearchService(thePG, log, nodeRepo, vectorRepo, openaiClient, expandQuery)
	searchHandler := handlers.NewSearchHandler(log, searchService)
	authMiddleware := middleware.NewAuthMiddleware(log, authToken)

	router := server.NewRouter(server.RouterConfig{
		SearchHandler:  searchHandler,
		AuthMiddleware: authMiddleware,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}
