package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// batchTokenABI covers the batch-record token surface the gateway calls.
// mintWithInfo writes the provenance fields and the metadata fingerprint in
// the same transaction as the mint.
const batchTokenABI = `[
	{"type":"function","name":"mintWithInfo","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"uri","type":"string"},
		{"name":"origin","type":"string"},
		{"name":"harvestTime","type":"uint64"},
		{"name":"inspectionId","type":"string"},
		{"name":"contentHash","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[
		{"name":"from","type":"address"},
		{"name":"to","type":"address"},
		{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[
		{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"getBatchInfo","stateMutability":"view","inputs":[
		{"name":"tokenId","type":"uint256"}],"outputs":[
		{"name":"origin","type":"string"},
		{"name":"harvestTime","type":"uint64"},
		{"name":"inspectionId","type":"string"},
		{"name":"contentHash","type":"bytes32"}]}
]`

// Contract packs and unpacks calls against one batch-record token contract
type Contract struct {
	Address common.Address
	abi     abi.ABI
}

// BatchInfo is the on-chain provenance record of one token
type BatchInfo struct {
	Origin       string
	HarvestTime  uint64
	InspectionID string
	ContentHash  [32]byte
}

// NewContract parses the token ABI for the given deployed address
func NewContract(address common.Address) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(batchTokenABI))
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	return &Contract{Address: address, abi: parsed}, nil
}

// PackMintWithInfo encodes a mintWithInfo call
func (c *Contract) PackMintWithInfo(to common.Address, tokenID uint64, uri, origin string, harvestTime uint64, inspectionID string, contentHash [32]byte) ([]byte, error) {
	data, err := c.abi.Pack("mintWithInfo", to, new(big.Int).SetUint64(tokenID), uri, origin, harvestTime, inspectionID, contentHash)
	if err != nil {
		return nil, fmt.Errorf("pack mintWithInfo: %w", err)
	}
	return data, nil
}

// PackSafeTransferFrom encodes a safeTransferFrom call
func (c *Contract) PackSafeTransferFrom(from, to common.Address, tokenID uint64) ([]byte, error) {
	data, err := c.abi.Pack("safeTransferFrom", from, to, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("pack safeTransferFrom: %w", err)
	}
	return data, nil
}

// PackTokenURI encodes a tokenURI call
func (c *Contract) PackTokenURI(tokenID uint64) ([]byte, error) {
	data, err := c.abi.Pack("tokenURI", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("pack tokenURI: %w", err)
	}
	return data, nil
}

// UnpackTokenURI decodes a tokenURI result
func (c *Contract) UnpackTokenURI(output []byte) (string, error) {
	values, err := c.abi.Unpack("tokenURI", output)
	if err != nil {
		return "", fmt.Errorf("unpack tokenURI: %w", err)
	}
	uri, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unpack tokenURI: unexpected type %T", values[0])
	}
	return uri, nil
}

// PackGetBatchInfo encodes a getBatchInfo call
func (c *Contract) PackGetBatchInfo(tokenID uint64) ([]byte, error) {
	data, err := c.abi.Pack("getBatchInfo", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("pack getBatchInfo: %w", err)
	}
	return data, nil
}

// UnpackGetBatchInfo decodes a getBatchInfo result
func (c *Contract) UnpackGetBatchInfo(output []byte) (BatchInfo, error) {
	values, err := c.abi.Unpack("getBatchInfo", output)
	if err != nil {
		return BatchInfo{}, fmt.Errorf("unpack getBatchInfo: %w", err)
	}
	if len(values) != 4 {
		return BatchInfo{}, fmt.Errorf("unpack getBatchInfo: got %d values", len(values))
	}

	info := BatchInfo{}
	info.Origin, _ = values[0].(string)
	info.HarvestTime, _ = values[1].(uint64)
	info.InspectionID, _ = values[2].(string)
	info.ContentHash, _ = values[3].([32]byte)
	return info, nil
}
