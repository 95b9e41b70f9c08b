package main

import (
	"context"
	"os"
	"time"

	"github.com/ugta/ugta-backend/internal/clients/gemini"
	"github.com/ugta/ugta-backend/internal/clients/redis"
	"github.com/ugta/ugta-backend/internal/db"
	"github.com/ugta/ugta-backend/internal/handlers"
	"github.com/ugta/ugta-backend/internal/llm"
	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/media/images"
	"github.com/ugta/ugta-backend/internal/media/mermaid"
	"github.com/ugta/ugta-backend/internal/middleware"
	"github.com/ugta/ugta-backend/internal/observability"
	"github.com/ugta/ugta-backend/internal/repos"
	"github.com/ugta/ugta-backend/internal/retrieval"
	"github.com/ugta/ugta-backend/internal/server"
	"github.com/ugta/ugta-backend/internal/services"
	"github.com/ugta/ugta-backend/internal/utils"
)

const serviceName = "ugta-backend"

func main() {
	mode := os.Getenv("APP_MODE")
	log, err := logger.New(mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	shutdownTracing := observability.InitOTel(ctx, log, serviceName)
	if shutdownTracing != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(sctx)
		}()
	}

	// Persistence is optional: without Postgres the pipeline still works, it
	// just skips run history and ai call logging.
	var runRepo repos.LessonRunRepo
	var aiLogRepo repos.AICallLogRepo
	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Warn("postgres unavailable; continuing without persistence", "error", err)
	} else {
		if err := pg.AutoMigrateAll(); err != nil {
			log.Warn("postgres migration failed; continuing without persistence", "error", err)
		} else {
			runRepo = repos.NewLessonRunRepo(pg.DB(), log)
			aiLogRepo = repos.NewAICallLogRepo(pg.DB(), log)
		}
	}

	oracle, err := gemini.NewClient(ctx, log)
	if err != nil {
		log.Fatal("gemini client init failed", "error", err)
	}

	var notesCache redis.NotesCache
	if cache, err := redis.NewNotesCache(log); err != nil {
		log.Warn("redis unavailable; notes caching disabled", "error", err)
	} else {
		notesCache = cache
		defer cache.Close()
	}

	notes := retrieval.NewNotesService(log, notesCache)
	gateway := llm.NewGateway(log, oracle, aiLogRepo)
	renderer := mermaid.New(log)
	imageGen := images.NewGenerator(log, oracle)
	pipeline := services.NewLessonPipelineService(log, gateway, notes, renderer, imageGen, runRepo)

	artifactsRoot := utils.GetEnv("ARTIFACTS_DIR", "artifacts", log)
	if err := os.MkdirAll(artifactsRoot, 0o755); err != nil {
		log.Fatal("failed to create artifacts dir", "dir", artifactsRoot, "error", err)
	}

	router := server.NewRouter(server.RouterConfig{
		Health:        handlers.NewHealthcheckHandler(),
		Normalize:     handlers.NewNormalizeHandler(log, gateway),
		Notes:         handlers.NewNotesHandler(log, notes),
		Lesson:        handlers.NewLessonHandler(log, pipeline, runRepo),
		RequestID:     middleware.NewRequestIDMiddleware(log),
		ArtifactsRoot: artifactsRoot,
		ServiceName:   serviceName,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("server exited", "error", err)
	}
}
