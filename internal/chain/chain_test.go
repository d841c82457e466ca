package chain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuhao00/conflux-demo/pkg/cache"
)

// mockRPC is a hand-rolled RPC double with per-method hooks
type mockRPC struct {
	chainID         *big.Int
	gasPrice        *big.Int
	gasPriceCalls   int
	estimateGas     uint64
	estimateGasErr  error
	pendingNonce    uint64
	sendErr         error
	sentTxs         []*types.Transaction
	callContractOut []byte
}

func (m *mockRPC) ChainID(ctx context.Context) (*big.Int, error) {
	return m.chainID, nil
}

func (m *mockRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	m.gasPriceCalls++
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *mockRPC) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if m.estimateGasErr != nil {
		return 0, m.estimateGasErr
	}
	return m.estimateGas, nil
}

func (m *mockRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return m.pendingNonce, nil
}

func (m *mockRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sentTxs = append(m.sentTxs, tx)
	return nil
}

func (m *mockRPC) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (m *mockRPC) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return m.callContractOut, nil
}

// fakeDataError mimics the JSON-RPC error shape that carries revert data
type fakeDataError struct {
	data interface{}
}

func (e *fakeDataError) Error() string          { return "execution reverted" }
func (e *fakeDataError) ErrorData() interface{} { return e.data }

func selectorFor(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func TestEstimator_WeiToFen(t *testing.T) {
	estimator := NewEstimator(nil, nil, "", decimal.RequireFromString("5.5"), nil)

	t.Run("rounds up to the next fen", func(t *testing.T) {
		// 21000 gas at 1 wei is 21000 wei, a vanishingly small fiat
		// amount, but the charge still rounds up to one fen
		fen := estimator.WeiToFen(big.NewInt(21000))
		assert.Equal(t, int64(1), fen)
	})

	t.Run("exact amounts do not round", func(t *testing.T) {
		// 0.02 CFX at 5.5 CNY/CFX is exactly 0.11 CNY
		wei, _ := new(big.Int).SetString("20000000000000000", 10)
		fen := estimator.WeiToFen(wei)
		assert.Equal(t, int64(11), fen)
	})

	t.Run("fractional fen rounds up", func(t *testing.T) {
		// 0.002 CFX at 5.5 is 0.011 CNY, charged as 0.02
		wei, _ := new(big.Int).SetString("2000000000000000", 10)
		fen := estimator.WeiToFen(wei)
		assert.Equal(t, int64(2), fen)
	})

	t.Run("zero wei is zero fen", func(t *testing.T) {
		assert.Zero(t, estimator.WeiToFen(big.NewInt(0)))
	})
}

func TestEstimator_Estimate(t *testing.T) {
	ctx := context.Background()
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	t.Run("prices gas limit times gas price", func(t *testing.T) {
		rpc := &mockRPC{gasPrice: big.NewInt(20_000_000_000), estimateGas: 100_000}
		prices := cache.New(time.Minute)
		defer prices.Stop()

		estimator := NewEstimator(rpc, prices, "test", decimal.RequireFromString("5.5"), nil)

		est, err := estimator.Estimate(ctx, from, to, []byte{0x01})
		require.NoError(t, err)
		assert.Equal(t, uint64(100_000), est.GasLimit)
		// 100000 * 20 gwei = 0.002 CFX = 0.011 CNY, rounded up to 0.02
		assert.Equal(t, int64(2), est.CostFen)
	})

	t.Run("gas price is served from cache inside the TTL", func(t *testing.T) {
		rpc := &mockRPC{gasPrice: big.NewInt(1_000_000_000), estimateGas: 21_000}
		prices := cache.New(time.Minute)
		defer prices.Stop()

		estimator := NewEstimator(rpc, prices, "test", decimal.RequireFromString("5.5"), nil)

		_, err := estimator.Estimate(ctx, from, to, nil)
		require.NoError(t, err)
		_, err = estimator.Estimate(ctx, from, to, nil)
		require.NoError(t, err)

		assert.Equal(t, 1, rpc.gasPriceCalls)
	})

	t.Run("estimate errors pass through for revert decoding", func(t *testing.T) {
		payload := append(selectorFor("ERC721NonexistentToken(uint256)"), make([]byte, 32)...)
		rpc := &mockRPC{
			gasPrice:       big.NewInt(1),
			estimateGasErr: &fakeDataError{data: "0x" + hex.EncodeToString(payload)},
		}
		prices := cache.New(time.Minute)
		defer prices.Stop()

		estimator := NewEstimator(rpc, prices, "test", decimal.RequireFromString("5.5"), nil)

		_, err := estimator.Estimate(ctx, from, to, nil)
		require.Error(t, err)

		revert, ok := DecodeRevert(err)
		require.True(t, ok)
		assert.Equal(t, RevertNonexistentToken, revert.Name)
	})
}

func TestDecodeRevert(t *testing.T) {
	t.Run("decodes each known custom error", func(t *testing.T) {
		cases := map[string]string{
			RevertInsufficientApproval: "ERC721InsufficientApproval(address,uint256)",
			RevertIncorrectOwner:       "ERC721IncorrectOwner(address,uint256,address)",
			RevertNonexistentToken:     "ERC721NonexistentToken(uint256)",
			RevertInvalidReceiver:      "ERC721InvalidReceiver(address)",
			RevertUnauthorizedAccount:  "OwnableUnauthorizedAccount(address)",
			RevertInvalidOwner:         "OwnableInvalidOwner(address)",
			RevertInvalidTokenID:       "ERC721InvalidTokenId(uint256)",
		}

		for name, sig := range cases {
			t.Run(name, func(t *testing.T) {
				err := &fakeDataError{data: "0x" + hex.EncodeToString(selectorFor(sig))}
				revert, ok := DecodeRevert(err)
				require.True(t, ok)
				assert.Equal(t, name, revert.Name)
			})
		}
	})

	t.Run("decodes Error(string) reason", func(t *testing.T) {
		reason := "mint to the zero address"
		payload := selectorFor("Error(string)")
		payload = append(payload, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
		payload = append(payload, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
		payload = append(payload, common.RightPadBytes([]byte(reason), 32)...)

		revert, ok := DecodeRevert(&fakeDataError{data: "0x" + hex.EncodeToString(payload)})
		require.True(t, ok)
		assert.Equal(t, RevertReasonString, revert.Name)
		assert.Equal(t, reason, revert.Reason)
	})

	t.Run("hostile Error(string) length word yields an empty reason", func(t *testing.T) {
		payload := selectorFor("Error(string)")
		payload = append(payload, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
		// length word far beyond the payload, crafted to wrap the bounds check
		length := make([]byte, 32)
		binary.BigEndian.PutUint64(length[24:], uint64(1)<<63-1)
		payload = append(payload, length...)
		payload = append(payload, make([]byte, 32)...)

		revert, ok := DecodeRevert(&fakeDataError{data: "0x" + hex.EncodeToString(payload)})
		require.True(t, ok)
		assert.Equal(t, RevertReasonString, revert.Name)
		assert.Empty(t, revert.Reason)
	})

	t.Run("truncated Error(string) payload yields an empty reason", func(t *testing.T) {
		payload := append(selectorFor("Error(string)"), make([]byte, 16)...)

		revert, ok := DecodeRevert(&fakeDataError{data: "0x" + hex.EncodeToString(payload)})
		require.True(t, ok)
		assert.Empty(t, revert.Reason)
	})

	t.Run("accepts raw byte payloads", func(t *testing.T) {
		payload := append(selectorFor("ERC721InvalidReceiver(address)"), make([]byte, 32)...)
		revert, ok := DecodeRevert(&fakeDataError{data: payload})
		require.True(t, ok)
		assert.Equal(t, RevertInvalidReceiver, revert.Name)
	})

	t.Run("unknown selector is not a decoded revert", func(t *testing.T) {
		_, ok := DecodeRevert(&fakeDataError{data: "0xdeadbeef"})
		assert.False(t, ok)
	})

	t.Run("plain errors are not decoded reverts", func(t *testing.T) {
		_, ok := DecodeRevert(errors.New("connection refused"))
		assert.False(t, ok)
	})
}

func TestContract_Pack(t *testing.T) {
	contract, err := NewContract(common.HexToAddress("0x3333333333333333333333333333333333333333"))
	require.NoError(t, err)

	to := common.HexToAddress("0x4444444444444444444444444444444444444444")

	t.Run("mintWithInfo carries the expected selector", func(t *testing.T) {
		var contentHash [32]byte
		copy(contentHash[:], crypto.Keccak256([]byte("doc")))

		data, err := contract.PackMintWithInfo(to, 7, "ipfs://cid", "Yunnan", 1740000000, "INS-1", contentHash)
		require.NoError(t, err)
		assert.Equal(t, selectorFor("mintWithInfo(address,uint256,string,string,uint64,string,bytes32)"), data[:4])
	})

	t.Run("safeTransferFrom carries the expected selector", func(t *testing.T) {
		from := common.HexToAddress("0x5555555555555555555555555555555555555555")
		data, err := contract.PackSafeTransferFrom(from, to, 7)
		require.NoError(t, err)
		assert.Equal(t, selectorFor("safeTransferFrom(address,address,uint256)"), data[:4])
	})
}

func TestRelayer_Submit(t *testing.T) {
	ctx := context.Background()
	keyHex := "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	to := common.HexToAddress("0x4444444444444444444444444444444444444444")

	t.Run("signs and increments the nonce per submit", func(t *testing.T) {
		rpc := &mockRPC{chainID: big.NewInt(71), pendingNonce: 5}

		relayer, err := NewRelayer(ctx, keyHex, rpc)
		require.NoError(t, err)

		hash1, err := relayer.Submit(ctx, to, []byte{0x01}, 100_000, big.NewInt(1_000_000_000))
		require.NoError(t, err)
		assert.NotEqual(t, common.Hash{}, hash1)

		hash2, err := relayer.Submit(ctx, to, []byte{0x02}, 100_000, big.NewInt(1_000_000_000))
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)

		require.Len(t, rpc.sentTxs, 2)
		assert.Equal(t, uint64(5), rpc.sentTxs[0].Nonce())
		assert.Equal(t, uint64(6), rpc.sentTxs[1].Nonce())
	})

	t.Run("reseeds the nonce after a failed send", func(t *testing.T) {
		rpc := &mockRPC{chainID: big.NewInt(71), pendingNonce: 5}

		relayer, err := NewRelayer(ctx, keyHex, rpc)
		require.NoError(t, err)

		rpc.sendErr = errors.New("nonce too low")
		_, err = relayer.Submit(ctx, to, []byte{0x01}, 100_000, big.NewInt(1))
		require.Error(t, err)

		rpc.sendErr = nil
		rpc.pendingNonce = 9
		_, err = relayer.Submit(ctx, to, []byte{0x01}, 100_000, big.NewInt(1))
		require.NoError(t, err)
		assert.Equal(t, uint64(9), rpc.sentTxs[0].Nonce())
	})

	t.Run("accepts a 0x-prefixed key", func(t *testing.T) {
		rpc := &mockRPC{chainID: big.NewInt(71)}
		relayer, err := NewRelayer(ctx, "0x"+keyHex, rpc)
		require.NoError(t, err)
		assert.NotEqual(t, common.Address{}, relayer.Address())
	})

	t.Run("rejects a malformed key", func(t *testing.T) {
		rpc := &mockRPC{chainID: big.NewInt(71)}
		_, err := NewRelayer(ctx, "not-a-key", rpc)
		assert.Error(t, err)
	})
}
