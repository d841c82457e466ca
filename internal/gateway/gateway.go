package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/phuhao00/conflux-demo/internal/audit"
	"github.com/phuhao00/conflux-demo/internal/chain"
	"github.com/phuhao00/conflux-demo/internal/ledger"
	"github.com/phuhao00/conflux-demo/internal/metadata"
	"github.com/phuhao00/conflux-demo/internal/models"
	"github.com/phuhao00/conflux-demo/internal/quota"
	"github.com/phuhao00/conflux-demo/pkg/logger"
	"github.com/phuhao00/conflux-demo/pkg/metrics"
)

// State is the lifecycle stage of one relay request
type State string

const (
	StateReceived      State = "RECEIVED"
	StateEstimated     State = "ESTIMATED"
	StateQuotaChecked  State = "QUOTA_CHECKED"
	StateFundsReserved State = "FUNDS_RESERVED"
	StateSubmitted     State = "SUBMITTED"
	StateCompleted     State = "COMPLETED"
	StateFailed        State = "FAILED"
)

// Estimator prices a call before submission
type Estimator interface {
	Estimate(ctx context.Context, from, to common.Address, data []byte) (chain.Estimate, error)
}

// Submitter signs and broadcasts transactions from the relayer account
type Submitter interface {
	Address() common.Address
	Submit(ctx context.Context, to common.Address, data []byte, gasLimit uint64, gasPrice *big.Int) (common.Hash, error)
}

// Options carries the gateway's tunables
type Options struct {
	// DefaultContract is used when a relay request names no token contract
	DefaultContract common.Address
	// MinReserveFen must remain in the payer's balance after every charge
	MinReserveFen int64
	// SubmitTimeout bounds the broadcast call. Past it the submission
	// outcome is unknown and the charge is kept.
	SubmitTimeout time.Duration
}

// Gateway orchestrates one relay end to end: estimate, quota, charge,
// submit. Each stage either advances the request or fails it with a typed
// error; the charge is the point of no return, refunded only on a definite
// submission failure.
type Gateway struct {
	ledger    ledger.Store
	quota     *quota.Engine
	estimator Estimator
	submitter Submitter
	rpc       chain.RPC
	objects   metadata.ObjectStore
	sink      audit.Sink
	collector *metrics.Collector
	opts      Options
}

// New creates a gateway
func New(ledgerStore ledger.Store, quotaEngine *quota.Engine, estimator Estimator, submitter Submitter, rpc chain.RPC, objects metadata.ObjectStore, sink audit.Sink, collector *metrics.Collector, opts Options) *Gateway {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	return &Gateway{
		ledger:    ledgerStore,
		quota:     quotaEngine,
		estimator: estimator,
		submitter: submitter,
		rpc:       rpc,
		objects:   objects,
		sink:      sink,
		collector: collector,
		opts:      opts,
	}
}

// relayCall is one prepared contract call moving through the state machine
type relayCall struct {
	action      string
	payer       string
	contract    common.Address
	data        []byte
	uri         string
	contentHash string
}

// RelayMint relays a batch-record mint. When the request carries no URI the
// gateway builds the metadata document, uploads it, and anchors its
// fingerprint on-chain; otherwise the URI string itself is fingerprinted.
func (g *Gateway) RelayMint(ctx context.Context, req models.MintRequest) (*models.RelayResponse, error) {
	contractAddr, err := g.resolveContract(req.NFTAddress)
	if err != nil {
		return nil, err
	}

	var harvestTime uint64
	if req.HarvestTime != nil {
		harvestTime = *req.HarvestTime
	}

	uri := req.URI
	var contentHash [32]byte
	if uri == "" {
		doc := metadata.NewDocument(req.Origin, harvestTime, req.InspectionID, req.Extra)
		uri, err = g.objects.Upload(ctx, doc)
		if err != nil {
			return nil, models.NewAppErrorWithCause(models.ErrorCodeObjectStoreError, "Metadata upload failed", err)
		}
		contentHash, err = doc.Fingerprint()
		if err != nil {
			return nil, models.NewAppErrorWithCause(models.ErrorCodeInternalError, "Metadata fingerprint failed", err)
		}
	} else {
		contentHash = metadata.FingerprintURI(uri)
	}

	contract, err := chain.NewContract(contractAddr)
	if err != nil {
		return nil, models.NewAppErrorWithCause(models.ErrorCodeInternalError, "Contract setup failed", err)
	}
	data, err := contract.PackMintWithInfo(common.HexToAddress(req.To), req.TokenID, uri, req.Origin, harvestTime, req.InspectionID, contentHash)
	if err != nil {
		return nil, models.NewAppErrorWithCause(models.ErrorCodeInvalidRequest, "Mint call encoding failed", err)
	}

	return g.relay(ctx, relayCall{
		action:      "mint",
		payer:       ledger.NormalizeAccount(req.From),
		contract:    contractAddr,
		data:        data,
		uri:         uri,
		contentHash: fmt.Sprintf("0x%x", contentHash),
	})
}

// RelayTransfer relays a safeTransferFrom
func (g *Gateway) RelayTransfer(ctx context.Context, req models.TransferRequest) (*models.RelayResponse, error) {
	contractAddr, err := g.resolveContract(req.NFTAddress)
	if err != nil {
		return nil, err
	}

	contract, err := chain.NewContract(contractAddr)
	if err != nil {
		return nil, models.NewAppErrorWithCause(models.ErrorCodeInternalError, "Contract setup failed", err)
	}
	data, err := contract.PackSafeTransferFrom(common.HexToAddress(req.From), common.HexToAddress(req.To), req.TokenID)
	if err != nil {
		return nil, models.NewAppErrorWithCause(models.ErrorCodeInvalidRequest, "Transfer call encoding failed", err)
	}

	return g.relay(ctx, relayCall{
		action:   "transfer",
		payer:    ledger.NormalizeAccount(req.From),
		contract: contractAddr,
		data:     data,
	})
}

// relay drives one prepared call through the state machine
func (g *Gateway) relay(ctx context.Context, call relayCall) (*models.RelayResponse, error) {
	log := logger.GetLogger().WithContext(ctx).WithFields(map[string]interface{}{
		"action":  call.action,
		"account": call.payer,
	})
	state := StateReceived

	code, err := g.rpc.CodeAt(ctx, call.contract, nil)
	if err != nil {
		return nil, g.fail(ctx, call, state, models.NewAppErrorWithCause(models.ErrorCodeRPCUnavailable, "Chain RPC unavailable", err))
	}
	if len(code) == 0 {
		return nil, g.fail(ctx, call, state, models.NewAppErrorWithDetails(models.ErrorCodeContractNotFound, "No contract at address", call.contract.Hex()))
	}

	estimate, err := g.estimator.Estimate(ctx, g.submitter.Address(), call.contract, call.data)
	if err != nil {
		return nil, g.fail(ctx, call, state, g.chainError(err))
	}
	state = StateEstimated
	log.Info("relay estimated",
		zap.Uint64("gas_limit", estimate.GasLimit),
		zap.Int64("cost_fen", estimate.CostFen),
	)

	cfg, err := g.quota.Limits(ctx)
	if err != nil {
		return nil, g.fail(ctx, call, state, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Quota check failed", err))
	}

	// the alert tracks the estimate, so it fires even when a later stage
	// denies or fails the relay
	threshold := cfg.AlertThresholdFen
	if threshold > 0 && estimate.CostFen >= threshold {
		g.collector.RecordAlert()
		go g.recordAlert(audit.NewAlert(call.payer, call.action, estimate.CostFen, threshold, ""))
	}

	allowed, err := g.quota.Consume(ctx, call.payer, cfg, estimate.CostFen)
	if err != nil {
		return nil, g.fail(ctx, call, state, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Quota check failed", err))
	}
	if !allowed {
		g.collector.RecordQuotaDenial()
		return nil, g.fail(ctx, call, state, models.NewAppError(models.ErrorCodeLimitExceeded, "Daily relay limit exceeded"))
	}
	state = StateQuotaChecked

	charged, err := g.ledger.ReserveAndCharge(ctx, call.payer, estimate.CostFen, g.opts.MinReserveFen)
	if err != nil {
		return nil, g.fail(ctx, call, state, models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Balance charge failed", err))
	}
	if !charged {
		// consumed quota is not returned on a funds denial
		g.collector.RecordFundsDenial()
		return nil, g.fail(ctx, call, state, models.NewAppError(models.ErrorCodeInsufficientFunds, "Insufficient fiat balance"))
	}
	state = StateFundsReserved

	submitCtx, cancel := context.WithTimeout(ctx, g.opts.SubmitTimeout)
	txHash, err := g.submitter.Submit(submitCtx, call.contract, call.data, estimate.GasLimit, estimate.GasPrice)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// the transaction may still land, so the charge stands
			g.collector.RecordUnknownSubmission()
			return nil, g.fail(ctx, call, state, models.NewAppErrorWithCause(models.ErrorCodeSubmissionUnknown, "Submission outcome unknown", err))
		}
		g.refund(ctx, call.payer, estimate.CostFen, log)
		return nil, g.fail(ctx, call, state, g.chainError(err))
	}
	state = StateSubmitted

	g.collector.RecordRelayCompleted(estimate.CostFen)
	log.Info("relay completed",
		zap.String("tx_hash", txHash.Hex()),
		zap.Int64("charged_fen", estimate.CostFen),
	)

	go g.recordEvent(audit.NewEntry(audit.KindRelay, call.payer, call.action, map[string]any{
		"state":        string(StateCompleted),
		"tx_hash":      txHash.Hex(),
		"charged_fen":  estimate.CostFen,
		"gas_limit":    estimate.GasLimit,
		"gas_price":    estimate.GasPrice.String(),
		"contract":     call.contract.Hex(),
		"uri":          call.uri,
		"content_hash": call.contentHash,
	}))

	return &models.RelayResponse{
		OK:          true,
		TxHash:      txHash.Hex(),
		ChargedFiat: models.FenToFiat(estimate.CostFen),
		URI:         call.uri,
		ContentHash: call.contentHash,
	}, nil
}

// fail records the terminal FAILED state and returns the typed error
func (g *Gateway) fail(ctx context.Context, call relayCall, lastState State, appErr *models.AppError) error {
	g.collector.RecordRelayFailed()
	logger.GetLogger().WithContext(ctx).Warn("relay failed",
		zap.String("action", call.action),
		zap.String("account", call.payer),
		zap.String("last_state", string(lastState)),
		zap.String("code", string(appErr.Code)),
		zap.Error(appErr),
	)

	go g.recordEvent(audit.NewEntry(audit.KindRelay, call.payer, call.action, map[string]any{
		"state":      string(StateFailed),
		"last_state": string(lastState),
		"code":       string(appErr.Code),
		"contract":   call.contract.Hex(),
	}))
	return appErr
}

// refund credits a charge back after a definite submission failure
func (g *Gateway) refund(ctx context.Context, payer string, amountFen int64, log *logger.Logger) {
	if _, err := g.ledger.Credit(ctx, payer, amountFen); err != nil {
		// the charge stands; operators reconcile from the audit trail
		log.Error("refund failed", zap.Int64("amount_fen", amountFen), zap.Error(err))
		return
	}
	g.collector.RecordRefund(amountFen)
	log.Info("charge refunded", zap.Int64("amount_fen", amountFen))
}

// chainError maps an RPC failure to a typed error, decoding contract
// reverts when the node returned revert data.
func (g *Gateway) chainError(err error) *models.AppError {
	revert, ok := chain.DecodeRevert(err)
	if !ok {
		return models.NewAppErrorWithCause(models.ErrorCodeRPCUnavailable, "Chain RPC unavailable", err)
	}

	g.collector.RecordDecodedRevert()
	switch revert.Name {
	case chain.RevertInsufficientApproval, chain.RevertIncorrectOwner:
		return models.NewAppErrorWithCause(models.ErrorCodeTransferNotApproved, "Relayer is not approved for this token", revert)
	case chain.RevertNonexistentToken, chain.RevertInvalidTokenID:
		return models.NewAppErrorWithCause(models.ErrorCodeTokenNotFound, "Token does not exist", revert)
	case chain.RevertInvalidReceiver:
		return models.NewAppErrorWithCause(models.ErrorCodeInvalidReceiver, "Receiver cannot accept this token", revert)
	case chain.RevertUnauthorizedAccount, chain.RevertInvalidOwner:
		return models.NewAppErrorWithCause(models.ErrorCodeContractOwnerRequired, "Relayer is not the contract owner", revert)
	case chain.RevertReasonString:
		return models.NewAppErrorWithDetails(models.ErrorCodeInvalidRequest, "Contract rejected the call", revert.Reason)
	default:
		return models.NewAppErrorWithCause(models.ErrorCodeInternalError, "Unrecognized contract revert", revert)
	}
}

// resolveContract picks the request's token contract or the default
func (g *Gateway) resolveContract(requested string) (common.Address, error) {
	if requested != "" {
		if !common.IsHexAddress(requested) {
			return common.Address{}, models.NewAppErrorWithDetails(models.ErrorCodeInvalidAddress, "Invalid contract address", requested)
		}
		return common.HexToAddress(requested), nil
	}
	if g.opts.DefaultContract == (common.Address{}) {
		return common.Address{}, models.NewAppError(models.ErrorCodeInvalidRequest, "No token contract configured")
	}
	return g.opts.DefaultContract, nil
}

// BatchDetails merges a token's on-chain record with its off-chain
// metadata. The off-chain fetch is best effort.
func (g *Gateway) BatchDetails(ctx context.Context, nftAddress string, tokenID uint64) (*models.BatchDetailsResponse, error) {
	contractAddr, err := g.resolveContract(nftAddress)
	if err != nil {
		return nil, err
	}

	contract, err := chain.NewContract(contractAddr)
	if err != nil {
		return nil, models.NewAppErrorWithCause(models.ErrorCodeInternalError, "Contract setup failed", err)
	}

	uri, err := g.readTokenURI(ctx, contract, tokenID)
	if err != nil {
		return nil, err
	}
	info, err := g.readBatchInfo(ctx, contract, tokenID)
	if err != nil {
		return nil, err
	}

	resp := &models.BatchDetailsResponse{
		OK:         true,
		TokenID:    tokenID,
		NFTAddress: contractAddr.Hex(),
		URI:        uri,
		OnChain: models.BatchInfo{
			Origin:       info.Origin,
			HarvestTime:  info.HarvestTime,
			InspectionID: info.InspectionID,
			ContentHash:  fmt.Sprintf("0x%x", info.ContentHash),
		},
	}

	if uri != "" {
		if doc, fetchErr := g.objects.Fetch(ctx, uri); fetchErr == nil {
			resp.OffChain = doc
		} else {
			logger.GetLogger().WithContext(ctx).Warn("metadata fetch failed",
				zap.String("uri", uri), zap.Error(fetchErr))
		}
	}
	return resp, nil
}

func (g *Gateway) readTokenURI(ctx context.Context, contract *chain.Contract, tokenID uint64) (string, error) {
	data, err := contract.PackTokenURI(tokenID)
	if err != nil {
		return "", models.NewAppErrorWithCause(models.ErrorCodeInternalError, "tokenURI encoding failed", err)
	}

	out, err := g.callContract(ctx, contract.Address, data)
	if err != nil {
		return "", err
	}

	uri, err := contract.UnpackTokenURI(out)
	if err != nil {
		return "", models.NewAppErrorWithCause(models.ErrorCodeInternalError, "tokenURI decoding failed", err)
	}
	return uri, nil
}

func (g *Gateway) readBatchInfo(ctx context.Context, contract *chain.Contract, tokenID uint64) (chain.BatchInfo, error) {
	data, err := contract.PackGetBatchInfo(tokenID)
	if err != nil {
		return chain.BatchInfo{}, models.NewAppErrorWithCause(models.ErrorCodeInternalError, "getBatchInfo encoding failed", err)
	}

	out, err := g.callContract(ctx, contract.Address, data)
	if err != nil {
		return chain.BatchInfo{}, err
	}

	info, err := contract.UnpackGetBatchInfo(out)
	if err != nil {
		return chain.BatchInfo{}, models.NewAppErrorWithCause(models.ErrorCodeInternalError, "getBatchInfo decoding failed", err)
	}
	return info, nil
}

func (g *Gateway) callContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := g.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, g.chainError(err)
	}
	return out, nil
}

// recordEvent writes an audit entry off the request path
func (g *Gateway) recordEvent(entry audit.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.sink.RecordEvent(ctx, entry); err != nil {
		logger.GetLogger().Error("audit record failed",
			zap.String("kind", entry.Kind), zap.Error(err))
	}
}

// recordAlert writes a high-cost alert off the request path
func (g *Gateway) recordAlert(alert audit.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.sink.RecordAlert(ctx, alert); err != nil {
		logger.GetLogger().Error("alert record failed",
			zap.String("account", alert.Account), zap.Error(err))
	}
}
