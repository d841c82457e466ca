package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/phuhao00/conflux-demo/internal/middleware"
)

// Router handles HTTP routing setup
type Router struct {
	relayHandler  *RelayHandler
	ledgerHandler *LedgerHandler
	adminHandler  *AdminHandler
	healthHandler *HealthHandler
	adminUser     string
	adminPass     string
}

// NewRouter creates a Router over the gateway's handlers
func NewRouter(relay *RelayHandler, ledger *LedgerHandler, admin *AdminHandler, health *HealthHandler, adminUser, adminPass string) *Router {
	return &Router{
		relayHandler:  relay,
		ledgerHandler: ledger,
		adminHandler:  admin,
		healthHandler: health,
		adminUser:     adminUser,
		adminPass:     adminPass,
	}
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Ledger endpoints
	engine.POST("/topup", r.ledgerHandler.TopUp)
	engine.GET("/balance/:address", r.ledgerHandler.GetBalance)

	// Relay endpoints
	relay := engine.Group("/relay")
	{
		relay.POST("/nft/mint", r.relayHandler.Mint)
		relay.POST("/nft/transfer", r.relayHandler.Transfer)
	}

	// Metadata and batch reads
	engine.POST("/metadata/upload", r.relayHandler.UploadMetadata)
	engine.GET("/nft/batch/:address/:tokenID/details", r.relayHandler.BatchDetails)

	// Operator surface behind Basic auth
	admin := engine.Group("/admin", middleware.AdminAuthMiddleware(r.adminUser, r.adminPass))
	{
		admin.GET("/limits", r.adminHandler.GetLimits)
		admin.POST("/set-limits", r.adminHandler.SetLimits)
		admin.GET("/audit", r.adminHandler.ListAudit)
		admin.GET("/alerts", r.adminHandler.ListAlerts)
	}
}

// SetupHealthRoutes configures health and metrics routes
func (r *Router) SetupHealthRoutes(engine *gin.Engine) {
	health := engine.Group("/health")
	{
		health.GET("", r.healthHandler.GetHealth)
		health.GET("/live", r.healthHandler.GetLiveness)
		health.GET("/ready", r.healthHandler.GetReadiness)
	}
	engine.GET("/metrics", r.healthHandler.GetMetrics)
}
