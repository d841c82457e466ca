package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/phuhao00/conflux-demo/pkg/cache"
	"github.com/phuhao00/conflux-demo/pkg/metrics"
)

// Estimate is the priced outcome of one gas estimation
type Estimate struct {
	GasLimit uint64
	GasPrice *big.Int
	CostWei  *big.Int
	// CostFen is the fiat cost in fen, rounded up so the charge never
	// undercuts the chain cost.
	CostFen int64
}

// Estimator prices a relay call in fiat before it is submitted. Estimating
// doubles as a simulation: a call that would revert fails here with
// decodable revert data, before any funds are touched.
type Estimator struct {
	rpc       RPC
	prices    *cache.GasPriceCache
	priceKey  string
	rate      decimal.Decimal
	collector *metrics.Collector
}

// NewEstimator creates an estimator. rate converts whole native units (CFX)
// to whole fiat units (CNY).
func NewEstimator(rpc RPC, prices *cache.GasPriceCache, priceKey string, rate decimal.Decimal, collector *metrics.Collector) *Estimator {
	return &Estimator{
		rpc:       rpc,
		prices:    prices,
		priceKey:  priceKey,
		rate:      rate,
		collector: collector,
	}
}

// GasPrice returns the current gas price, served from cache when fresh
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	if price, ok := e.prices.Get(e.priceKey); ok {
		if e.collector != nil {
			e.collector.RecordGasPriceCacheHit()
		}
		return price, nil
	}
	if e.collector != nil {
		e.collector.RecordGasPriceCacheMiss()
	}

	price, err := e.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	e.prices.Set(e.priceKey, price)
	return price, nil
}

// Estimate simulates the call from the relayer account and prices it in
// fiat. Revert errors from the node pass through unwrapped so callers can
// decode them.
func (e *Estimator) Estimate(ctx context.Context, from, to common.Address, data []byte) (Estimate, error) {
	gasPrice, err := e.GasPrice(ctx)
	if err != nil {
		return Estimate{}, err
	}

	gasLimit, err := e.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return Estimate{}, err
	}

	costWei := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	return Estimate{
		GasLimit: gasLimit,
		GasPrice: gasPrice,
		CostWei:  costWei,
		CostFen:  e.WeiToFen(costWei),
	}, nil
}

// WeiToFen converts a wei amount to fiat fen, rounding up to the next fen
func (e *Estimator) WeiToFen(wei *big.Int) int64 {
	native := decimal.NewFromBigInt(wei, -18)
	fiat := native.Mul(e.rate)
	return fiat.RoundUp(2).Shift(2).IntPart()
}
