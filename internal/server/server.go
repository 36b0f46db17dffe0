package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/rigmarket/internal/checkout"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	"github.com/smallbiznis/rigmarket/internal/config"
	"github.com/smallbiznis/rigmarket/internal/gateway"
	"github.com/smallbiznis/rigmarket/internal/ledger"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	"github.com/smallbiznis/rigmarket/internal/observability"
	obsmiddleware "github.com/smallbiznis/rigmarket/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	obstracing "github.com/smallbiznis/rigmarket/internal/observability/tracing"
	"github.com/smallbiznis/rigmarket/internal/payee"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
	"github.com/smallbiznis/rigmarket/internal/ratelimit"
	"github.com/smallbiznis/rigmarket/internal/rental"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
	"github.com/smallbiznis/rigmarket/internal/settlement"
	"github.com/smallbiznis/rigmarket/internal/webhook"
	webhookdomain "github.com/smallbiznis/rigmarket/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// maxWebhookBody bounds a single webhook delivery.
const maxWebhookBody = 1 << 20

var Module = fx.Module("http.server",
	gateway.Module,
	ratelimit.Module,
	checkout.Module,
	rental.Module,
	payee.Module,
	ledger.Module,
	webhook.Module,
	settlement.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	log         *zap.Logger
	checkoutSvc checkoutdomain.Service
	rentalSvc   rentaldomain.Service
	payeeSvc    payeedomain.Service
	ledgerSvc   ledgerdomain.Service
	webhookSvc  webhookdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Log         *zap.Logger
	CheckoutSvc checkoutdomain.Service
	RentalSvc   rentaldomain.Service
	PayeeSvc    payeedomain.Service
	LedgerSvc   ledgerdomain.Service
	WebhookSvc  webhookdomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		log:         p.Log.Named("http"),
		checkoutSvc: p.CheckoutSvc,
		rentalSvc:   p.RentalSvc,
		payeeSvc:    p.PayeeSvc,
		ledgerSvc:   p.LedgerSvc,
		webhookSvc:  p.WebhookSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	r := s.engine

	// -------- Checkout --------
	r.POST("/checkout-sessions", s.CreateCheckoutSession)
	r.GET("/orders/:id", s.GetOrder)

	// -------- Rentals --------
	r.POST("/rentals", s.CreateRental)
	r.GET("/rentals/:id", s.GetRental)
	r.POST("/rental-payment-intents", s.CreateRentalPaymentIntent)

	// -------- Payee Accounts --------
	r.POST("/payee-accounts", s.ProvisionPayeeAccount)
	r.POST("/payee-accounts/:id/onboarding-link", s.CreateOnboardingLink)
	r.GET("/payee-accounts/:id/ledger-entries", s.ListPayeeLedgerEntries)

	// -------- Webhooks --------
	webhooks := r.Group("/webhooks", MaxBodySize(maxWebhookBody))
	webhooks.POST("", s.HandleWebhook)
	webhooks.POST("/:provider", s.HandleWebhook)
}
