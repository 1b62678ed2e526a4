package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kevobebop/kindmind/internal/account"
	"github.com/kevobebop/kindmind/internal/billing/reconciler"
	"github.com/kevobebop/kindmind/internal/billing/webhook"
	checkoutdomain "github.com/kevobebop/kindmind/internal/checkout/domain"
	"github.com/kevobebop/kindmind/internal/claims"
	"github.com/kevobebop/kindmind/internal/config"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
	r.Use(RequestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine      *gin.Engine
	cfg         config.Config
	verifier    *webhook.Verifier
	reconciler  *reconciler.Service
	checkoutSvc checkoutdomain.Service
	identitySvc identitydomain.Service
	claims      *claims.Manager
	provisioner *account.Provisioner
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Verifier    *webhook.Verifier
	Reconciler  *reconciler.Service
	CheckoutSvc checkoutdomain.Service
	IdentitySvc identitydomain.Service
	Claims      *claims.Manager
	Provisioner *account.Provisioner
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		verifier:    p.Verifier,
		reconciler:  p.Reconciler,
		checkoutSvc: p.CheckoutSvc,
		identitySvc: p.IdentitySvc,
		claims:      p.Claims,
		provisioner: p.Provisioner,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerHookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleBillingWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.POST("/billing/checkout", s.HandleBeginCheckout)
	api.GET("/users/me", s.HandleGetMe)
	api.POST("/users/:id/role", s.HandleSetRole)
}

func (s *Server) registerHookRoutes() {
	hooks := s.engine.Group("/hooks", s.HookAuthRequired())

	hooks.POST("/account-created", s.HandleAccountCreated)
}
