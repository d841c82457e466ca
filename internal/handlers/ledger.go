package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/phuhao00/conflux-demo/internal/audit"
	"github.com/phuhao00/conflux-demo/internal/ledger"
	"github.com/phuhao00/conflux-demo/internal/models"
	"github.com/phuhao00/conflux-demo/pkg/logger"
)

// LedgerHandler serves fiat balance operations
type LedgerHandler struct {
	store ledger.Store
	sink  audit.Sink
}

// NewLedgerHandler creates a ledger handler
func NewLedgerHandler(store ledger.Store, sink audit.Sink) *LedgerHandler {
	return &LedgerHandler{store: store, sink: sink}
}

// TopUp credits fiat into an account
func (h *LedgerHandler) TopUp(c *gin.Context) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeMalformedJSON, "Invalid request body", err))
		return
	}

	if !common.IsHexAddress(req.Address) {
		models.RespondError(c, models.NewAppErrorWithDetails(models.ErrorCodeInvalidAddress, "Invalid account address", req.Address))
		return
	}

	amountFen := models.FiatToFen(req.Amount)
	if amountFen <= 0 {
		models.RespondError(c, models.NewAppErrorWithDetails(models.ErrorCodeInvalidRequest, "Amount must be positive", req.Amount.String()))
		return
	}

	account := ledger.NormalizeAccount(req.Address)
	newBalance, err := h.store.Credit(c.Request.Context(), account, amountFen)
	if err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Balance credit failed", err))
		return
	}

	log.Info("account topped up",
		zap.String("account", account),
		zap.Int64("amount_fen", amountFen),
		zap.Int64("balance_fen", newBalance),
	)

	if err := h.sink.RecordEvent(c.Request.Context(), audit.NewEntry(audit.KindTopUp, account, "", map[string]any{
		"amount_fen":  amountFen,
		"balance_fen": newBalance,
	})); err != nil {
		log.Error("audit record failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, models.TopUpResponse{
		OK:      true,
		Balance: models.FenToFiat(newBalance),
	})
}

// GetBalance returns an account's current fiat balance
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		models.RespondError(c, models.NewAppErrorWithDetails(models.ErrorCodeInvalidAddress, "Invalid account address", address))
		return
	}

	account := ledger.NormalizeAccount(address)
	balance, err := h.store.Balance(c.Request.Context(), account)
	if err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Balance read failed", err))
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		Address: account,
		Balance: models.FenToFiat(balance),
	})
}
