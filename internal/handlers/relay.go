package handlers

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/phuhao00/conflux-demo/internal/gateway"
	"github.com/phuhao00/conflux-demo/internal/metadata"
	"github.com/phuhao00/conflux-demo/internal/models"
	"github.com/phuhao00/conflux-demo/pkg/logger"
)

// RelayHandler serves the metered relay operations
type RelayHandler struct {
	gateway *gateway.Gateway
	objects metadata.ObjectStore
}

// NewRelayHandler creates a relay handler
func NewRelayHandler(gw *gateway.Gateway, objects metadata.ObjectStore) *RelayHandler {
	return &RelayHandler{gateway: gw, objects: objects}
}

// Mint relays a batch-record mint
func (h *RelayHandler) Mint(c *gin.Context) {
	var req models.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeMalformedJSON, "Invalid request body", err))
		return
	}
	if !validAddresses(c, req.From, req.To) {
		return
	}

	ctx := logger.ContextWithAccountID(c.Request.Context(), req.From)
	resp, err := h.gateway.RelayMint(ctx, req)
	if err != nil {
		models.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Transfer relays a safeTransferFrom
func (h *RelayHandler) Transfer(c *gin.Context) {
	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeMalformedJSON, "Invalid request body", err))
		return
	}
	if !validAddresses(c, req.From, req.To) {
		return
	}

	ctx := logger.ContextWithAccountID(c.Request.Context(), req.From)
	resp, err := h.gateway.RelayTransfer(ctx, req)
	if err != nil {
		models.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UploadMetadata builds and uploads a batch metadata document without
// minting, returning the object-store URI.
func (h *RelayHandler) UploadMetadata(c *gin.Context) {
	var req models.UploadMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeMalformedJSON, "Invalid request body", err))
		return
	}

	var harvestTime uint64
	if req.HarvestTime != nil {
		harvestTime = *req.HarvestTime
	}

	doc := metadata.NewDocument(req.Origin, harvestTime, req.InspectionID, req.Extra)
	uri, err := h.objects.Upload(c.Request.Context(), doc)
	if err != nil {
		models.RespondError(c, models.NewAppErrorWithCause(models.ErrorCodeObjectStoreError, "Metadata upload failed", err))
		return
	}

	c.JSON(http.StatusOK, models.UploadMetadataResponse{OK: true, URI: uri})
}

// BatchDetails returns a token's merged on-chain and off-chain record
func (h *RelayHandler) BatchDetails(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		models.RespondError(c, models.NewAppErrorWithDetails(models.ErrorCodeInvalidAddress, "Invalid contract address", address))
		return
	}

	tokenID, err := strconv.ParseUint(c.Param("tokenID"), 10, 64)
	if err != nil {
		models.RespondError(c, models.NewAppErrorWithDetails(models.ErrorCodeInvalidRequest, "Invalid token id", c.Param("tokenID")))
		return
	}

	resp, err := h.gateway.BatchDetails(c.Request.Context(), address, tokenID)
	if err != nil {
		models.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// validAddresses rejects the request when either address is malformed
func validAddresses(c *gin.Context, from, to string) bool {
	for _, addr := range []string{from, to} {
		if !common.IsHexAddress(addr) {
			models.RespondError(c, models.NewAppErrorWithDetails(models.ErrorCodeInvalidAddress, "Invalid account address", addr))
			return false
		}
	}
	return true
}
