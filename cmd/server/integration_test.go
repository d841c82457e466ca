package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuhao00/conflux-demo/internal/audit"
	"github.com/phuhao00/conflux-demo/internal/chain"
	"github.com/phuhao00/conflux-demo/internal/gateway"
	"github.com/phuhao00/conflux-demo/internal/handlers"
	"github.com/phuhao00/conflux-demo/internal/ledger"
	"github.com/phuhao00/conflux-demo/internal/metadata"
	"github.com/phuhao00/conflux-demo/internal/quota"
	"github.com/phuhao00/conflux-demo/pkg/metrics"
)

const (
	testPayer    = "0x1111111111111111111111111111111111111111"
	testReceiver = "0x2222222222222222222222222222222222222222"
	testContract = "0x3333333333333333333333333333333333333333"
)

type stubEstimator struct {
	costFen int64
}

func (s *stubEstimator) Estimate(ctx context.Context, from, to common.Address, data []byte) (chain.Estimate, error) {
	return chain.Estimate{GasLimit: 21000, GasPrice: big.NewInt(1), CostWei: big.NewInt(21000), CostFen: s.costFen}, nil
}

type stubSubmitter struct{}

func (s *stubSubmitter) Address() common.Address {
	return common.HexToAddress("0x9999999999999999999999999999999999999999")
}

func (s *stubSubmitter) Submit(ctx context.Context, to common.Address, data []byte, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	return common.HexToHash("0xfeed"), nil
}

type stubRPC struct{}

func (s *stubRPC) ChainID(ctx context.Context) (*big.Int, error)         { return big.NewInt(71), nil }
func (s *stubRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (s *stubRPC) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}
func (s *stubRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (s *stubRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (s *stubRPC) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}
func (s *stubRPC) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

// newTestEngine wires the full HTTP surface over in-memory stores
func newTestEngine(t *testing.T, quotaCfg quota.Config, adminUser, adminPass string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledgerStore, err := ledger.NewMemoryStore("")
	require.NoError(t, err)
	t.Cleanup(ledgerStore.Stop)

	quotaStore, err := quota.NewMemoryStore("")
	require.NoError(t, err)
	t.Cleanup(quotaStore.Stop)

	configStore := quota.NewMemoryConfigStore(quotaCfg)
	quotaEngine := quota.NewEngine(quotaStore, configStore)
	sink := audit.NewMemorySink()
	objects := metadata.NewMemoryStore()
	collector := metrics.NewCollector()

	gw := gateway.New(ledgerStore, quotaEngine, &stubEstimator{costFen: 3000}, &stubSubmitter{}, &stubRPC{}, objects, sink, collector, gateway.Options{
		DefaultContract: common.HexToAddress(testContract),
	})

	router := handlers.NewRouter(
		handlers.NewRelayHandler(gw, objects),
		handlers.NewLedgerHandler(ledgerStore, sink),
		handlers.NewAdminHandler(configStore, sink),
		handlers.NewHealthHandler(map[string]handlers.CheckFunc{
			"chain_rpc": func(ctx context.Context) error { return nil },
		}, collector),
		adminUser,
		adminPass,
	)

	engine := gin.New()
	router.SetupHealthRoutes(engine)
	router.SetupRoutes(engine)
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", rec.Body.String())
	code, _ := errObj["code"].(string)
	return code
}

func TestHTTP_TopUpRelayBalance(t *testing.T) {
	engine := newTestEngine(t, quota.Config{}, "", "")

	rec := doJSON(t, engine, http.MethodPost, "/topup", gin.H{"address": testPayer, "amount": "100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "100", decodeBody(t, rec)["balance"])

	rec = doJSON(t, engine, http.MethodPost, "/relay/nft/mint", gin.H{
		"from":         testPayer,
		"to":           testReceiver,
		"tokenId":      7,
		"origin":       "Yunnan",
		"harvestTime":  1740000000,
		"inspectionId": "INS-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "30", body["chargedFiat"])
	assert.NotEmpty(t, body["txHash"])
	assert.NotEmpty(t, body["uri"])
	assert.NotEmpty(t, body["contentHash"])

	rec = doJSON(t, engine, http.MethodGet, "/balance/"+testPayer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "70", decodeBody(t, rec)["balance"])
}

func TestHTTP_RelayErrors(t *testing.T) {
	t.Run("insufficient funds returns 402", func(t *testing.T) {
		engine := newTestEngine(t, quota.Config{}, "", "")

		rec := doJSON(t, engine, http.MethodPost, "/topup", gin.H{"address": testPayer, "amount": "10"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, engine, http.MethodPost, "/relay/nft/transfer", gin.H{
			"from":    testPayer,
			"to":      testReceiver,
			"tokenId": 7,
		})
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		assert.Equal(t, "INSUFFICIENT_FUNDS", errorCode(t, rec))
	})

	t.Run("daily limit returns 429", func(t *testing.T) {
		engine := newTestEngine(t, quota.Config{MaxTxPerDay: 1}, "", "")

		rec := doJSON(t, engine, http.MethodPost, "/topup", gin.H{"address": testPayer, "amount": "100"})
		require.Equal(t, http.StatusOK, rec.Code)

		transfer := gin.H{"from": testPayer, "to": testReceiver, "tokenId": 7}
		rec = doJSON(t, engine, http.MethodPost, "/relay/nft/transfer", transfer)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, engine, http.MethodPost, "/relay/nft/transfer", transfer)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "LIMIT_EXCEEDED", errorCode(t, rec))
	})

	t.Run("malformed address returns 400", func(t *testing.T) {
		engine := newTestEngine(t, quota.Config{}, "", "")

		rec := doJSON(t, engine, http.MethodPost, "/relay/nft/mint", gin.H{
			"from": "nonsense", "to": testReceiver, "tokenId": 1,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_ADDRESS", errorCode(t, rec))
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		engine := newTestEngine(t, quota.Config{}, "", "")

		req := httptest.NewRequest(http.MethodPost, "/topup", bytes.NewBufferString("{nope"))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "MALFORMED_JSON", errorCode(t, rec))
	})
}

func TestHTTP_Admin(t *testing.T) {
	t.Run("admin disabled without credentials", func(t *testing.T) {
		engine := newTestEngine(t, quota.Config{}, "", "")

		rec := doJSON(t, engine, http.MethodGet, "/admin/limits", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "ADMIN_NOT_CONFIGURED", errorCode(t, rec))
	})

	t.Run("wrong credentials are unauthorized", func(t *testing.T) {
		engine := newTestEngine(t, quota.Config{}, "ops", "secret")

		req := httptest.NewRequest(http.MethodGet, "/admin/limits", nil)
		req.SetBasicAuth("ops", "wrong")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("set-limits takes effect on the next relay", func(t *testing.T) {
		engine := newTestEngine(t, quota.Config{}, "ops", "secret")

		rec := doJSON(t, engine, http.MethodPost, "/topup", gin.H{"address": testPayer, "amount": "100"})
		require.Equal(t, http.StatusOK, rec.Code)

		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(gin.H{"maxFiatPerTx": "10"}))
		req := httptest.NewRequest(http.MethodPost, "/admin/set-limits", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth("ops", "secret")
		rec = httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "10", decodeBody(t, rec)["maxFiatPerTx"])

		// the 30.00 estimate now exceeds the 10.00 per-tx cap
		rec = doJSON(t, engine, http.MethodPost, "/relay/nft/transfer", gin.H{
			"from": testPayer, "to": testReceiver, "tokenId": 7,
		})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("audit log captures topups", func(t *testing.T) {
		engine := newTestEngine(t, quota.Config{}, "ops", "secret")

		rec := doJSON(t, engine, http.MethodPost, "/topup", gin.H{"address": testPayer, "amount": "50"})
		require.Equal(t, http.StatusOK, rec.Code)

		req := httptest.NewRequest(http.MethodGet, "/admin/audit?kind=topup", nil)
		req.SetBasicAuth("ops", "secret")
		rec = httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), decodeBody(t, rec)["total"])
	})
}

func TestHTTP_MetadataAndHealth(t *testing.T) {
	engine := newTestEngine(t, quota.Config{}, "", "")

	rec := doJSON(t, engine, http.MethodPost, "/metadata/upload", gin.H{
		"origin":       "Hainan",
		"harvestTime":  1741000000,
		"inspectionId": "INS-2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody(t, rec)["uri"])

	rec = doJSON(t, engine, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
