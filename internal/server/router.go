package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ugta/ugta-backend/internal/handlers"
	"github.com/ugta/ugta-backend/internal/middleware"
)

type RouterConfig struct {
	Health        *handlers.HealthcheckHandler
	Normalize     *handlers.NormalizeHandler
	Notes         *handlers.NotesHandler
	Lesson        *handlers.LessonHandler
	RequestID     *middleware.RequestIDMiddleware
	ArtifactsRoot string
	ServiceName   string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(cfg.RequestID.Tag())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))

	r.GET("/healthcheck", cfg.Health.Healthcheck)
	r.POST("/normalize", cfg.Normalize.Normalize)
	r.POST("/helpful-notes", cfg.Notes.HelpfulNotes)
	r.POST("/generate", cfg.Lesson.Generate)
	r.POST("/lesson", cfg.Lesson.Lesson)
	r.POST("/lesson_rendered", cfg.Lesson.LessonRendered)
	r.GET("/runs", cfg.Lesson.ListRuns)

	// Rendered diagrams and images are served straight off disk.
	r.Static("/artifacts", cfg.ArtifactsRoot)

	return r
}
