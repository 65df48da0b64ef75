package server

import (
	"log/slog"
	"net/http"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/auth"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/config"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/http/handlers"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/http/middleware"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/version"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Dependencies struct {
	Pinger             handlers.Pinger
	Readiness          map[string]handlers.Pinger
	LoanHandler        *handlers.LoanHandler
	NegotiationHandler *handlers.NegotiationHandler
	AdminHandler       *handlers.AdminHandler
	WSHandler          *ws.Handler
	JWTManager         *auth.JWTManager
}

func NewRouter(cfg config.Config, logger *slog.Logger, deps Dependencies) *gin.Engine {
	if cfg.Env == "prod" || cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RequestBodyLimit(cfg.MaxBodyBytes))

	health := handlers.NewHealthHandler(deps.Pinger, deps.Readiness)
	meta := handlers.NewMetaHandler(handlers.MetaInfo{
		Env:             cfg.Env,
		Version:         version.Version,
		LockBackend:     cfg.LockBackend,
		RelayMode:       cfg.RelayMode,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/v1/meta", meta.GetMeta)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.JWTManager != nil {
		v1 := r.Group("/v1")
		v1.Use(middleware.RequireAuth(deps.JWTManager))

		lenderOrAdmin := middleware.RequireRole(auth.RoleLender, auth.RoleAdmin)
		adminOnly := middleware.RequireRole(auth.RoleAdmin)

		if deps.LoanHandler != nil {
			v1.POST("/terms/parse", deps.LoanHandler.ParseTerms)
			v1.POST("/loans", middleware.RequireRole(auth.RoleBorrower, auth.RoleAdmin), deps.LoanHandler.SubmitLoan)
			v1.GET("/loans", deps.LoanHandler.ListLoans)
			v1.GET("/loans/:loanId", deps.LoanHandler.GetLoan)
			v1.POST("/loans/:loanId/lender", lenderOrAdmin, deps.LoanHandler.AssignLender)
			v1.POST("/loans/:loanId/confirm", lenderOrAdmin, deps.LoanHandler.Confirm)
			v1.POST("/loans/:loanId/payments", lenderOrAdmin, deps.LoanHandler.RecordPayment)
			v1.POST("/loans/:loanId/late-fee", lenderOrAdmin, deps.LoanHandler.ImposeLateFee)
			v1.POST("/loans/:loanId/repaid", lenderOrAdmin, deps.LoanHandler.MarkRepaid)
			v1.POST("/loans/:loanId/default", lenderOrAdmin, deps.LoanHandler.MarkDefault)
			v1.PUT("/loans/:loanId/insurance", adminOnly, deps.LoanHandler.AttachInsurance)
			v1.PUT("/loans/:loanId/pinned-comment", adminOnly, deps.LoanHandler.PinComment)
		}
		if deps.NegotiationHandler != nil {
			v1.GET("/loans/:loanId/negotiations", deps.NegotiationHandler.List)
			v1.POST("/loans/:loanId/negotiations", deps.NegotiationHandler.Record)
			v1.DELETE("/loans/:loanId/negotiations", deps.NegotiationHandler.Undo)
			v1.GET("/loans/:loanId/negotiations/journal", deps.NegotiationHandler.Journal)
		}
		if deps.WSHandler != nil {
			v1.GET("/ws", deps.WSHandler.HandleWebSocket)
		}

		if deps.AdminHandler != nil {
			adminGroup := r.Group("/admin")
			adminGroup.Use(middleware.RequireAuth(deps.JWTManager), adminOnly)
			adminGroup.GET("/system/health", deps.AdminHandler.SystemHealth)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return r
}
