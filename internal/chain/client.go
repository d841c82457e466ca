package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/phuhao00/conflux-demo/pkg/metrics"
)

// RPC is the slice of the execution-layer JSON-RPC surface the gateway
// needs. ethclient.Client satisfies it; tests substitute a mock.
type RPC interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client wraps an ethclient connection with per-call timeouts and RPC
// metrics. All RPC traffic in the gateway flows through it.
type Client struct {
	eth       *ethclient.Client
	endpoint  string
	timeout   time.Duration
	collector *metrics.Collector
}

// Dial connects to the chain RPC endpoint
func Dial(ctx context.Context, endpoint string, timeout time.Duration, collector *metrics.Collector) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	return &Client{
		eth:       eth,
		endpoint:  endpoint,
		timeout:   timeout,
		collector: collector,
	}, nil
}

// Endpoint returns the RPC endpoint URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases the underlying connection
func (c *Client) Close() {
	c.eth.Close()
}

// observe wraps one RPC call with a timeout and metrics recording
func (c *Client) observe(ctx context.Context, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := call(ctx)
	if c.collector != nil {
		c.collector.RecordRPCCall(time.Since(start), err == nil)
	}
	return err
}

// ChainID implements RPC
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.observe(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.eth.ChainID(ctx)
		return err
	})
	return id, err
}

// SuggestGasPrice implements RPC
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.observe(ctx, func(ctx context.Context) error {
		var err error
		price, err = c.eth.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// EstimateGas implements RPC
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.observe(ctx, func(ctx context.Context) error {
		var err error
		gas, err = c.eth.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// PendingNonceAt implements RPC
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.observe(ctx, func(ctx context.Context) error {
		var err error
		nonce, err = c.eth.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// SendTransaction implements RPC
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.observe(ctx, func(ctx context.Context) error {
		return c.eth.SendTransaction(ctx, tx)
	})
}

// CodeAt implements RPC
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	var code []byte
	err := c.observe(ctx, func(ctx context.Context) error {
		var err error
		code, err = c.eth.CodeAt(ctx, account, blockNumber)
		return err
	})
	return code, err
}

// CallContract implements RPC
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.observe(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.eth.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}
