package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Relayer signs and submits transactions with the custodial relay key. The
// nonce is tracked locally and seeded from the pending pool once, so a burst
// of relays doesn't race the node's view of the account.
type Relayer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	rpc     RPC

	nonceMu     sync.Mutex
	nonce       uint64
	nonceSeeded bool
}

// NewRelayer parses the hex-encoded private key and resolves the chain ID
func NewRelayer(ctx context.Context, keyHex string, rpc RPC) (*Relayer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse relayer key: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve chain id: %w", err)
	}

	return &Relayer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		rpc:     rpc,
	}, nil
}

// Address returns the relayer's account address
func (r *Relayer) Address() common.Address {
	return r.address
}

// ChainID returns the resolved chain ID
func (r *Relayer) ChainID() *big.Int {
	return r.chainID
}

// Submit signs and broadcasts one call. On success it returns the
// transaction hash; a failed send drops the cached nonce so the next submit
// reseeds from the pending pool.
func (r *Relayer) Submit(ctx context.Context, to common.Address, data []byte, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	r.nonceMu.Lock()
	defer r.nonceMu.Unlock()

	if !r.nonceSeeded {
		nonce, err := r.rpc.PendingNonceAt(ctx, r.address)
		if err != nil {
			return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
		}
		r.nonce = nonce
		r.nonceSeeded = true
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    r.nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(r.chainID), r.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := r.rpc.SendTransaction(ctx, signed); err != nil {
		r.nonceSeeded = false
		return common.Hash{}, err
	}

	r.nonce++
	return signed.Hash(), nil
}
