package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fedbill/internal/audit"
	auditdomain "github.com/smallbiznis/fedbill/internal/audit/domain"
	"github.com/smallbiznis/fedbill/internal/auth/credential"
	"github.com/smallbiznis/fedbill/internal/authorization"
	"github.com/smallbiznis/fedbill/internal/config"
	"github.com/smallbiznis/fedbill/internal/finance"
	"github.com/smallbiznis/fedbill/internal/observability"
	obslogger "github.com/smallbiznis/fedbill/internal/observability/logger"
	obstracing "github.com/smallbiznis/fedbill/internal/observability/tracing"
	"github.com/smallbiznis/fedbill/internal/providers/pdf"
	"github.com/smallbiznis/fedbill/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	ratelimit.Module,
	pdf.Module,
	fx.Provide(
		credential.NewVerifier,
		NewEngine,
		provideFinanceService,
		NewServer,
	),
	fx.Invoke(run),
)

func provideFinanceService(m *finance.Manager) FinanceService {
	return m
}

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
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

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Finance  FinanceService
	AuthzSvc authorization.Service
	Verifier *credential.Verifier
	Limiter  *ratelimit.AdminLimiter `optional:"true"`
	Audit    auditdomain.Service     `optional:"true"`
	PDF      pdf.Provider
	Log      *zap.Logger
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	finance  FinanceService
	authzSvc authorization.Service
	verifier *credential.Verifier
	limiter  *ratelimit.AdminLimiter
	audit    auditdomain.Service
	pdf      pdf.Provider
	log      *zap.Logger
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		finance:  p.Finance,
		authzSvc: p.AuthzSvc,
		verifier: p.Verifier,
		limiter:  p.Limiter,
		audit:    p.Audit,
		pdf:      p.PDF,
		log:      log.Named("http"),
	}

	svc.registerPublicRoutes()
	svc.registerPlanRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	fs := s.engine.Group("/fs")
	fs.GET("/version", s.Version)
	fs.POST("/authorized", s.IsAuthorized)
}

func (s *Server) registerPlanRoutes() {
	plans := s.engine.Group("/fs/plan", s.rateLimit())
	plans.GET("", s.adminRequired(authorization.ObjectPlan, authorization.ActionRead), s.ListPlans)
	plans.POST("", s.adminRequired(authorization.ObjectPlan, authorization.ActionWrite), s.CreatePlan)
	plans.GET("/:name", s.adminRequired(authorization.ObjectPlan, authorization.ActionRead), s.GetPlan)
	plans.PUT("/:name", s.adminRequired(authorization.ObjectPlan, authorization.ActionWrite), s.ChangePlanOptions)
	plans.DELETE("/:name", s.adminRequired(authorization.ObjectPlan, authorization.ActionWrite), s.RemovePlan)

	state := plans.Group("/user/:userId/:provider")
	state.PUT("", s.adminRequired(authorization.ObjectFinanceState, authorization.ActionWrite), s.UpdateFinanceState)
	state.GET("/:property", s.adminRequired(authorization.ObjectFinanceState, authorization.ActionRead), s.GetFinanceStateProperty)
	state.GET("/invoices/:invoiceId/pdf", s.adminRequired(authorization.ObjectFinanceState, authorization.ActionRead), s.GetInvoicePDF)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/fs/admin", s.rateLimit())
	admin.POST("/reload", s.adminRequired(authorization.ObjectReload, authorization.ActionWrite), s.Reload)

	admin.POST("/user", s.adminRequired(authorization.ObjectUser, authorization.ActionWrite), s.AddUser)
	admin.PUT("/user", s.adminRequired(authorization.ObjectUser, authorization.ActionWrite), s.ChangeUserPlan)
	admin.DELETE("/user/unregister/:userId/:provider", s.adminRequired(authorization.ObjectUser, authorization.ActionWrite), s.UnregisterUser)
	admin.DELETE("/user/:userId/:provider", s.adminRequired(authorization.ObjectUser, authorization.ActionWrite), s.RemoveUser)

	admin.POST("/policy", s.adminRequired(authorization.ObjectPolicy, authorization.ActionWrite), s.GrantRole)
	admin.DELETE("/policy", s.adminRequired(authorization.ObjectPolicy, authorization.ActionWrite), s.RevokeRole)

	admin.GET("/audit", s.adminRequired(authorization.ObjectAudit, authorization.ActionRead), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
