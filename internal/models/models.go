package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TopUpRequest credits fiat into an account's ledger balance
type TopUpRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// TopUpResponse returns the new balance after a credit
type TopUpResponse struct {
	OK      bool            `json:"ok"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceResponse returns the current fiat balance for an account
type BalanceResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// TransferRequest asks the gateway to relay an NFT transfer
type TransferRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	TokenID    uint64 `json:"tokenId"`
	NFTAddress string `json:"nftAddress"`
}

// MintRequest asks the gateway to relay a batch-record mint. When URI is
// empty the gateway builds and uploads the metadata document itself.
type MintRequest struct {
	From         string            `json:"from"`
	To           string            `json:"to"`
	TokenID      uint64            `json:"tokenId"`
	NFTAddress   string            `json:"nftAddress"`
	URI          string            `json:"uri,omitempty"`
	Origin       string            `json:"origin"`
	HarvestTime  *uint64           `json:"harvestTime"`
	InspectionID string            `json:"inspectionId"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// RelayResponse is returned to callers for both mint and transfer relays
type RelayResponse struct {
	OK          bool            `json:"ok"`
	TxHash      string          `json:"txHash,omitempty"`
	ChargedFiat decimal.Decimal `json:"chargedFiat"`
	URI         string          `json:"uri,omitempty"`
	ContentHash string          `json:"contentHash,omitempty"`
}

// LimitsPayload carries quota limits over the admin surface, in whole fiat
// units. Omitted fields are zero, meaning unlimited (last-write-wins).
type LimitsPayload struct {
	MaxTxPerDay    int64           `json:"maxTxPerDay"`
	MaxFiatPerTx   decimal.Decimal `json:"maxFiatPerTx"`
	MaxFiatPerDay  decimal.Decimal `json:"maxFiatPerDay"`
	AlertThreshold decimal.Decimal `json:"alertThreshold"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
}

// UploadMetadataRequest builds and uploads a batch metadata document
type UploadMetadataRequest struct {
	Origin       string            `json:"origin"`
	HarvestTime  *uint64           `json:"harvestTime"`
	InspectionID string            `json:"inspectionId"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// UploadMetadataResponse returns the object-store URI of the uploaded document
type UploadMetadataResponse struct {
	OK  bool   `json:"ok"`
	URI string `json:"uri"`
}

// BatchDetailsResponse merges the on-chain batch record with the off-chain
// metadata document it fingerprints
type BatchDetailsResponse struct {
	OK         bool           `json:"ok"`
	TokenID    uint64         `json:"tokenId"`
	NFTAddress string         `json:"nftAddress"`
	URI        string         `json:"uri"`
	OnChain    BatchInfo      `json:"onchain"`
	OffChain   map[string]any `json:"offchain,omitempty"`
}

// BatchInfo is the on-chain portion of a batch record
type BatchInfo struct {
	Origin       string `json:"origin"`
	HarvestTime  uint64 `json:"harvestTime"`
	InspectionID string `json:"inspectionId"`
	ContentHash  string `json:"contentHash"`
}

// FenToFiat converts an amount in fen (currency subunits) to a decimal in
// whole fiat units with two decimal places.
func FenToFiat(fen int64) decimal.Decimal {
	return decimal.New(fen, -2)
}

// FiatToFen converts a whole-unit fiat decimal to fen, truncating any
// sub-fen fraction.
func FiatToFen(d decimal.Decimal) int64 {
	return d.Shift(2).IntPart()
}
