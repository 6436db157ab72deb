// Package server exposes the screening engine and assessment store over
// HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/acuityrisk/sanctionscan/internal/assessment"
	"github.com/acuityrisk/sanctionscan/internal/config"
	"github.com/acuityrisk/sanctionscan/internal/screening"
)

// Server wires the HTTP routes to the screening engine and store.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	engine  *screening.Engine
	sources map[string]screening.Source
	// ordered source names, so "screen everything" output is deterministic
	sourceOrder []string
	store       *assessment.Store
	logger      *zap.Logger
}

// New creates the API server. The sources slice fixes the screening order
// used when a request names no source.
func New(cfg config.ServerConfig, engine *screening.Engine, srcs []screening.Source, store *assessment.Store, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s := &Server{
		router:  router,
		engine:  engine,
		sources: make(map[string]screening.Source, len(srcs)),
		store:   store,
		logger:  logger,
	}
	for _, src := range srcs {
		s.sources[src.Name()] = src
		s.sourceOrder = append(s.sourceOrder, src.Name())
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/screenings", s.screenAdHoc)
		v1.POST("/sources/:name/refresh", s.refreshSource)

		v1.POST("/assessments", s.createAssessment)
		v1.GET("/assessments", s.listAssessments)
		v1.GET("/assessments/:id", s.getAssessment)
		v1.POST("/assessments/:id/screenings", s.runAssessmentScreening)
		v1.GET("/assessments/:id/findings", s.getFindings)
		v1.GET("/assessments/:id/responses", s.getResponses)
	}
}

// Router returns the gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"sources": s.sourceOrder,
	})
}
