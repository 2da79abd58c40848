package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/config"
	"github.com/tribewave/tribewave/internal/deliverylog"
	directorydomain "github.com/tribewave/tribewave/internal/directory/domain"
	messagedomain "github.com/tribewave/tribewave/internal/message/domain"
	"github.com/tribewave/tribewave/internal/network"
	"github.com/tribewave/tribewave/internal/observability"
	obslogger "github.com/tribewave/tribewave/internal/observability/logger"
	obsmetrics "github.com/tribewave/tribewave/internal/observability/metrics"
	obstracing "github.com/tribewave/tribewave/internal/observability/tracing"
	"github.com/tribewave/tribewave/internal/ranking"
)

type Params struct {
	fx.In

	Cfg          config.Config
	ObsCfg       observability.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Metrics      *obsmetrics.HTTPMetrics
	UserSvc      directorydomain.Service
	UserRepo     directorydomain.Repository
	Traverser    *network.Traverser
	RankingSvc   *ranking.Service
	MessageSvc   messagedomain.Service
	DeliveryLogs deliverylog.Repository
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	userSvc      directorydomain.Service
	userRepo     directorydomain.Repository
	traverser    *network.Traverser
	rankingSvc   *ranking.Service
	messageSvc   messagedomain.Service
	deliveryLogs deliverylog.Repository
}

func New(p Params) *Server {
	if p.ObsCfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(obstracing.GinMiddleware())
	engine.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{Debug: p.ObsCfg.Debug()}))
	engine.Use(obsmetrics.GinMiddleware(p.Metrics))
	engine.Use(ErrorHandlingMiddleware())

	svc := &Server{
		engine:       engine,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		genID:        p.GenID,
		userSvc:      p.UserSvc,
		userRepo:     p.UserRepo,
		traverser:    p.Traverser,
		rankingSvc:   p.RankingSvc,
		messageSvc:   p.MessageSvc,
		deliveryLogs: p.DeliveryLogs,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")

	api.POST("/users", s.RegisterUser)
	api.GET("/users", s.ListUsers)
	api.GET("/users/:id", s.GetUserByID)
	api.GET("/users/:id/network", s.GetUserNetwork)
	api.POST("/users/code/:code/questionnaire", s.CompleteQuestionnaire)

	api.GET("/rankings", s.GetLeaderboard)

	api.POST("/messages", s.CreateMessage)
	api.GET("/messages/:id", s.GetMessageByID)
	api.GET("/messages/:id/deliveries", s.ListMessageDeliveries)
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var Module = fx.Module("http.server",
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
