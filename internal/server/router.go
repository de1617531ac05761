package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/pagenode-backend/internal/handlers"
)

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	QuizHandler     *handlers.QuizHandler
	GraphHandler    *handlers.GraphHandler
	SettingsHandler *handlers.SettingsHandler

	CORSOrigins []string

	// StaticFilesDir serves uploaded files and covers at /files when the
	// local store is active. Empty when a bucket store handles URLs.
	StaticFilesDir string

	TracingEnabled bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware("pagenode-backend"))
	}

	// Cors
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)
	if cfg.StaticFilesDir != "" {
		router.Static("/files", cfg.StaticFilesDir)
	}

	api := router.Group("/api")
	{
		// Documents
		documents := api.Group("/documents")
		documents.POST("/upload", cfg.DocumentHandler.Upload)
		documents.GET("", cfg.DocumentHandler.List)
		documents.GET("/:doc_id", cfg.DocumentHandler.Get)
		documents.PATCH("/:doc_id", cfg.DocumentHandler.Update)
		documents.DELETE("/:doc_id", cfg.DocumentHandler.Delete)
		documents.GET("/:doc_id/status", cfg.DocumentHandler.Status)
		documents.GET("/:doc_id/chunks", cfg.DocumentHandler.ListChunks)
		documents.GET("/:doc_id/toc", cfg.DocumentHandler.ListToc)
		documents.GET("/:doc_id/concepts", cfg.GraphHandler.DocumentConcepts)

		// Quiz
		quiz := api.Group("/quiz")
		quiz.GET("/due", cfg.QuizHandler.ListDue)
		quiz.GET("/cards", cfg.QuizHandler.ListCards)
		quiz.GET("/stats", cfg.QuizHandler.Stats)
		quiz.POST("/:card_id/review", cfg.QuizHandler.Review)
		quiz.GET("/:card_id", cfg.QuizHandler.Get)
		quiz.PATCH("/:card_id", cfg.QuizHandler.Update)
		quiz.DELETE("/:card_id", cfg.QuizHandler.Delete)

		// Graph
		graphGroup := api.Group("/graph")
		graphGroup.POST("/concepts", cfg.GraphHandler.CreateConcept)
		graphGroup.GET("/concepts", cfg.GraphHandler.ListConcepts)
		graphGroup.GET("/concepts/:concept_id", cfg.GraphHandler.GetConcept)
		graphGroup.GET("/concepts/:concept_id/neighbors", cfg.GraphHandler.Neighbors)
		graphGroup.DELETE("/concepts/:concept_id", cfg.GraphHandler.DeleteConcept)
		graphGroup.POST("/relationships", cfg.GraphHandler.CreateRelationship)
		graphGroup.DELETE("/relationships/:rel_type/:from_id/:to_id", cfg.GraphHandler.DeleteRelationship)
		graphGroup.GET("/subgraph", cfg.GraphHandler.Subgraph)
		graphGroup.POST("/seed", cfg.GraphHandler.Seed)

		// Settings
		api.GET("/settings", cfg.SettingsHandler.List)
		api.PUT("/settings", cfg.SettingsHandler.Update)
	}

	return router
}
