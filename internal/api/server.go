// Package api exposes the transcription service over HTTP.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scribeaudio/scribed/internal/cache"
	"github.com/scribeaudio/scribed/internal/config"
	"github.com/scribeaudio/scribed/internal/scratch"
	"github.com/scribeaudio/scribed/internal/service"
	"github.com/scribeaudio/scribed/internal/task"
	"github.com/scribeaudio/scribed/internal/validate"
)

type Server struct {
	router    *gin.Engine
	svc       *service.Transcriber
	validator *validate.Validator
	tracker   *task.Tracker
	scratch   *scratch.Manager
	cfg       *config.Config
	models    *cache.Cache[[]ModelInfo]
	logger    *zap.Logger
	maxBytes  int64
}

func New(cfg *config.Config, svc *service.Transcriber, validator *validate.Validator, tracker *task.Tracker, sm *scratch.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		svc:       svc,
		validator: validator,
		tracker:   tracker,
		scratch:   sm,
		cfg:       cfg,
		models:    cache.New[[]ModelInfo](time.Hour),
		logger:    logger,
		maxBytes:  int64(cfg.Validation.MaxFileSizeMB) * 1024 * 1024,
	}

	s.router.Use(requestLogger(logger), recovery(logger), cors.New(corsConfig()))
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/config", s.handleConfig)

	v1 := s.router.Group("/v1")
	v1.GET("/models", s.handleModels)
	v1.GET("/models/:id", s.handleModel)
	v1.POST("/audio/transcriptions", s.handleUpload)
	v1.POST("/audio/transcriptions/multipart", s.handleUpload)
	v1.POST("/audio/transcriptions/url", s.handleURL)
	v1.POST("/audio/transcriptions/base64", s.handleBase64)
	v1.POST("/audio/transcriptions/async", s.handleAsync)
	v1.GET("/tasks/:id", s.handleTaskStatus)

	s.router.POST("/local/transcriptions", s.handleLocal)
}

// Router exposes the underlying handler for the HTTP server and tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	return c
}
