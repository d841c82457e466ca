package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/phuhao00/conflux-demo/internal/audit"
	"github.com/phuhao00/conflux-demo/internal/models"
	"github.com/phuhao00/conflux-demo/internal/quota"
	"github.com/phuhao00/conflux-demo/pkg/logger"
)

// AdminHandler serves the operator surface: limits and audit reads
type AdminHandler struct {
	config quota.ConfigStore
	sink   audit.Sink
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(config quota.ConfigStore, sink audit.Sink) *AdminHandler {
	return &AdminHandler{config: config, sink: sink}
}

// GetLimits returns the limits currently in force
func (h *AdminHandler) GetLimits(c *gin.Context) {
	cfg, err := h.config.Current(c.Request.Context())
	if err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Limits read failed", err))
		return
	}
	c.JSON(http.StatusOK, limitsPayload(cfg))
}

// SetLimits appends a new limits version. The payload is last-write-wins:
// omitted caps become unlimited.
func (h *AdminHandler) SetLimits(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.LimitsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeMalformedJSON, "Invalid request body", err))
		return
	}
	if req.MaxTxPerDay < 0 || req.MaxFiatPerTx.IsNegative() || req.MaxFiatPerDay.IsNegative() || req.AlertThreshold.IsNegative() {
		models.RespondError(c, models.NewAppError(models.ErrorCodeInvalidRequest, "Limits must not be negative"))
		return
	}

	cfg := quota.Config{
		MaxTxPerDay:       req.MaxTxPerDay,
		MaxFenPerTx:       models.FiatToFen(req.MaxFiatPerTx),
		MaxFenPerDay:      models.FiatToFen(req.MaxFiatPerDay),
		AlertThresholdFen: models.FiatToFen(req.AlertThreshold),
	}
	if err := h.config.SetLimits(c.Request.Context(), cfg); err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Limits update failed", err))
		return
	}

	log.Info("limits updated",
		zap.Int64("max_tx_per_day", cfg.MaxTxPerDay),
		zap.Int64("max_fen_per_tx", cfg.MaxFenPerTx),
		zap.Int64("max_fen_per_day", cfg.MaxFenPerDay),
		zap.Int64("alert_threshold_fen", cfg.AlertThresholdFen),
	)

	if err := h.sink.RecordEvent(c.Request.Context(), audit.NewEntry(audit.KindLimitsUpdate, "", "", map[string]any{
		"max_tx_per_day":      cfg.MaxTxPerDay,
		"max_fen_per_tx":      cfg.MaxFenPerTx,
		"max_fen_per_day":     cfg.MaxFenPerDay,
		"alert_threshold_fen": cfg.AlertThresholdFen,
	})); err != nil {
		log.Error("audit record failed", zap.Error(err))
	}

	current, err := h.config.Current(c.Request.Context())
	if err != nil {
		current = cfg
	}
	c.JSON(http.StatusOK, limitsPayload(current))
}

// ListAudit returns paginated audit events
func (h *AdminHandler) ListAudit(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		models.RespondError(c, err)
		return
	}

	q.Normalize()
	entries, total, err := h.sink.ListEvents(c.Request.Context(), q)
	if err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Audit read failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    entries,
		"total":    total,
		"page":     q.Page,
		"pageSize": q.PageSize,
	})
}

// ListAlerts returns paginated high-cost alerts
func (h *AdminHandler) ListAlerts(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		models.RespondError(c, err)
		return
	}

	q.Normalize()
	alerts, total, err := h.sink.ListAlerts(c.Request.Context(), q)
	if err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Alerts read failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    alerts,
		"total":    total,
		"page":     q.Page,
		"pageSize": q.PageSize,
	})
}

func limitsPayload(cfg quota.Config) models.LimitsPayload {
	payload := models.LimitsPayload{
		MaxTxPerDay:    cfg.MaxTxPerDay,
		MaxFiatPerTx:   models.FenToFiat(cfg.MaxFenPerTx),
		MaxFiatPerDay:  models.FenToFiat(cfg.MaxFenPerDay),
		AlertThreshold: models.FenToFiat(cfg.AlertThresholdFen),
	}
	if !cfg.UpdatedAt.IsZero() {
		payload.UpdatedAt = &cfg.UpdatedAt
	}
	return payload
}

// parseQuery reads the common filter and pagination parameters
func parseQuery(c *gin.Context) (audit.Query, error) {
	q := audit.Query{
		Account: c.Query("account"),
		Kind:    c.Query("kind"),
		Action:  c.Query("action"),
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, models.NewAppErrorWithDetails(models.ErrorCodeInvalidRequest, "Invalid page", raw)
		}
		q.Page = page
	}
	if raw := c.Query("pageSize"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, models.NewAppErrorWithDetails(models.ErrorCodeInvalidRequest, "Invalid pageSize", raw)
		}
		q.PageSize = size
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, models.NewAppErrorWithDetails(models.ErrorCodeInvalidRequest, "Invalid from timestamp", raw)
		}
		q.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, models.NewAppErrorWithDetails(models.ErrorCodeInvalidRequest, "Invalid to timestamp", raw)
		}
		q.To = &to
	}
	return q, nil
}
