package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/config"
	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
	"github.com/smallbiznis/backoffice/internal/overdue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	invoiceSvc invoicedomain.Service
	auditSvc   auditdomain.Service
	scanner    *overdue.Scanner
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	InvoiceSvc invoicedomain.Service
	AuditSvc   auditdomain.Service
	Scanner    *overdue.Scanner
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		invoiceSvc: p.InvoiceSvc,
		auditSvc:   p.AuditSvc,
		scanner:    p.Scanner,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/invoices", s.ListInvoices)
	v1.POST("/invoices", s.CreateInvoice)
	v1.GET("/invoices/:id", s.GetInvoiceByID)
	v1.PATCH("/invoices/:id", s.UpdateInvoice)
	v1.DELETE("/invoices/:id", s.DeleteInvoice)

	v1.GET("/overdue/candidate", s.GetOverdueCandidate)
	v1.POST("/overdue/confirm", s.ConfirmOverduePayment)
	v1.POST("/overdue/decline", s.DeclineOverduePayment)
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
