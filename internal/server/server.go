package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loomhq/loom/internal/auth"
	"github.com/loomhq/loom/internal/config"
	organizationdomain "github.com/loomhq/loom/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	verifier        *auth.Verifier
	organizationSvc organizationdomain.Service
	log             *zap.Logger
}

func NewServer(
	engine *gin.Engine,
	verifier *auth.Verifier,
	organizationSvc organizationdomain.Service,
	log *zap.Logger,
) *Server {
	s := &Server{
		engine:          engine,
		verifier:        verifier,
		organizationSvc: organizationSvc,
		log:             log.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.AuthRequired())

	orgs := v1.Group("/organizations")
	{
		orgs.POST("", s.CreateOrganization)
		orgs.GET("", s.ListOrganizations)
		orgs.GET("/:slug", s.GetOrganization)
		orgs.PATCH("/:slug", s.RenameOrganization)
		orgs.DELETE("/:slug", s.DeleteOrganization)

		orgs.POST("/:slug/members", s.AddMember)
		orgs.PATCH("/:slug/members/:memberID", s.UpdateMemberRole)
		orgs.DELETE("/:slug/members/:memberID", s.RemoveMember)
	}
}
