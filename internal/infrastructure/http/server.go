package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "github.com/farunova-art/farunova-sub001/internal/adapter/handler/http"
	"github.com/farunova-art/farunova-sub001/internal/config"
	"github.com/farunova-art/farunova-sub001/internal/middleware/auth"
	"github.com/farunova-art/farunova-sub001/internal/usecase"
	pkglogger "github.com/farunova-art/farunova-sub001/pkg/logger"
)

// Usecases are the application services the routes dispatch to.
type Usecases struct {
	Ledger         *usecase.PaymentLedger
	Callbacks      *usecase.CallbackProcessor
	Refunds        *usecase.RefundWorkflow
	Reconciliation *usecase.ReconciliationEngine
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	usecases Usecases
	gatherer prometheus.Gatherer
}

func NewServer(cfg *config.Config, logger *zap.Logger, usecases Usecases, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()

	pkglogger.WithEchoLogger(e, logger)
	e.Use(pkglogger.NewEchoRequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		config:   cfg,
		logger:   logger,
		echo:     e,
		usecases: usecases,
		gatherer: gatherer,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	paymentHandler := handlers.NewPaymentHandler(s.usecases.Ledger, s.logger)
	callbackHandler := handlers.NewMpesaCallbackHandler(s.usecases.Callbacks, s.usecases.Refunds, s.logger)
	refundHandler := handlers.NewRefundHandler(s.usecases.Refunds, s.logger)
	reconciliationHandler := handlers.NewReconciliationHandler(s.usecases.Reconciliation, s.logger)

	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Issuer: s.config.JWT.Issuer,
		Logger: s.logger,
	}

	v1 := s.echo.Group("/api/v1")

	// Checkout routes are called by the storefront backend.
	v1.POST("/payments/stk", paymentHandler.InitiateSTKPush)
	v1.POST("/payments/qr", paymentHandler.GenerateQR)
	v1.GET("/payments", paymentHandler.ListByOrder)
	v1.GET("/payments/:id", paymentHandler.GetPayment)
	v1.POST("/payments/:id/query", paymentHandler.QueryPayment)

	// Gateway callbacks
	mpesa := v1.Group("/mpesa")
	mpesa.POST("/callback", callbackHandler.HandleSTKCallback)
	mpesa.POST("/reversal/result", callbackHandler.HandleReversalResult)
	mpesa.POST("/reversal/timeout", callbackHandler.HandleReversalTimeout)

	admin := v1.Group("/admin", auth.JWTMiddleware(jwtConfig))
	admin.POST("/refunds", refundHandler.CreateRefund)
	admin.GET("/refunds/:id", refundHandler.GetRefund)
	admin.POST("/refunds/:id/approve", refundHandler.ApproveRefund)
	admin.POST("/refunds/:id/deny", refundHandler.DenyRefund)
	admin.GET("/payments/:id/refunds", refundHandler.ListPaymentRefunds)

	reconciliation := admin.Group("/reconciliation")
	reconciliation.POST("/payments/:id", reconciliationHandler.ReconcilePayment)
	reconciliation.POST("/payments/:id/manual", reconciliationHandler.ManualMatch)
	reconciliation.POST("/run", reconciliationHandler.RunRange)
	reconciliation.GET("/discrepancies", reconciliationHandler.ListDiscrepancies)
	reconciliation.GET("/report", reconciliationHandler.Report)
}
