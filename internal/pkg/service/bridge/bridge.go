package bridge

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/hermez-node/log"
	"github.com/hermeznetwork/tracerr"

	"github.com/mevshield/coordinator/internal/pkg/model"
	"github.com/mevshield/coordinator/internal/pkg/utils"
)

const (
	pollInterval    = 5 * time.Second
	blockRangeLimit = 1000
)

// EVMBridge mirrors batch lifecycle operations onto the commit-reveal
// contract. The contract keys batches by keccak256 of the coordinator batch
// id and hashes commitments with keccak256; the off-chain binding digest is
// SHA-256 and never crosses this boundary.
type EVMBridge struct {
	cfg      *model.JobConfig
	privKey  *ecdsa.PrivateKey
	from     ethCommon.Address
	contract ethCommon.Address
	abi      abi.ABI

	mu                  sync.RWMutex
	commitmentHandlers  []model.ChainEventHandler
	revealHandlers      []model.ChainEventHandler
	finalizedHandlers   []model.ChainEventHandler
	stopCh              chan struct{}
	stopOnce            sync.Once
	lastProcessedBlock  uint64
}

func NewEVMBridge(cfg *model.JobConfig, privKey *ecdsa.PrivateKey) *EVMBridge {
	return &EVMBridge{
		cfg:      cfg,
		privKey:  privKey,
		from:     crypto.PubkeyToAddress(privKey.PublicKey),
		contract: cfg.Contracts.CommitReveal,
		abi:      utils.ParseAbi(commitRevealABI),
		stopCh:   make(chan struct{}),
	}
}

// batchKey maps the coordinator batch id onto the contract's bytes32 key.
func batchKey(batchID string) ethCommon.Hash {
	return model.BatchChainKey(batchID)
}

func (b *EVMBridge) send(ctx context.Context, method string, args ...interface{}) (*model.TxReceipt, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, tracerr.Wrap(model.NewInfraError(model.ErrCodeContractInteraction, err,
			"failed to pack %s call", method))
	}
	tx, err := b.sendRaw(ctx, data)
	if err != nil {
		return nil, tracerr.Wrap(model.NewInfraError(model.ErrCodeContractInteraction, err,
			"failed to send %s transaction", method))
	}
	return receiptOf(tx), nil
}

func (b *EVMBridge) sendRaw(ctx context.Context, data []byte) (*types.Transaction, error) {
	return utils.SendTx(ctx, b.privKey, int64(b.cfg.ChainID), b.cfg.RPCs, b.from, b.contract, data)
}

// receiptOf reports the submitted transaction. Gas and block are zero until
// the transaction is mined; the event listener confirms inclusion.
func receiptOf(tx *types.Transaction) *model.TxReceipt {
	return &model.TxReceipt{
		Hash:   tx.Hash(),
		Status: types.ReceiptStatusSuccessful,
	}
}

func (b *EVMBridge) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, tracerr.Wrap(model.NewInfraError(model.ErrCodeContractInteraction, err,
			"failed to pack %s call", method))
	}
	client, err := utils.GetEvmClient(ctx, b.cfg.RPCs)
	if err != nil {
		return nil, tracerr.Wrap(model.NewInfraError(model.ErrCodeBlockchainConnection, err,
			"failed to connect rpc"))
	}
	defer client.Close()

	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &b.contract, Data: data}, nil)
	if err != nil {
		return nil, tracerr.Wrap(model.NewInfraError(model.ErrCodeContractInteraction, err,
			"%s call reverted", method))
	}
	out, err := b.abi.Unpack(method, raw)
	if err != nil {
		return nil, tracerr.Wrap(model.NewInfraError(model.ErrCodeContractInteraction, err,
			"failed to unpack %s result", method))
	}
	return out, nil
}

func (b *EVMBridge) CreateNewBatch(ctx context.Context, batchID string, commitmentEnd, revealEnd time.Time) (*model.TxReceipt, error) {
	return b.send(ctx, "createBatch", batchKey(batchID),
		big.NewInt(commitmentEnd.Unix()), big.NewInt(revealEnd.Unix()))
}

func (b *EVMBridge) SubmitCommitment(ctx context.Context, batchID string, user ethCommon.Address, commitmentHash ethCommon.Hash) (*model.TxReceipt, error) {
	return b.send(ctx, "submitCommitment", batchKey(batchID), user, commitmentHash)
}

func (b *EVMBridge) RevealTransaction(ctx context.Context, batchID string, user ethCommon.Address, encodedTx []byte, nonce string) (*model.TxReceipt, error) {
	return b.send(ctx, "revealTransaction", batchKey(batchID), user, encodedTx, nonce)
}

func (b *EVMBridge) FinalizeBatch(ctx context.Context, batchID string, ordering []ethCommon.Hash) (*model.TxReceipt, error) {
	keys := make([][32]byte, len(ordering))
	for i, h := range ordering {
		keys[i] = h
	}
	return b.send(ctx, "finalizeBatch", batchKey(batchID), keys)
}

func (b *EVMBridge) GetBatchData(ctx context.Context, batchID string) (*model.OnChainBatch, error) {
	out, err := b.call(ctx, "getBatch", batchKey(batchID))
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, tracerr.Wrap(model.NewInfraError(model.ErrCodeContractInteraction, nil,
			"getBatch returned %d values", len(out)))
	}
	return &model.OnChainBatch{
		BatchID:       out[0].(*big.Int),
		CommitmentEnd: time.Unix(out[1].(*big.Int).Int64(), 0).UTC(),
		RevealEnd:     time.Unix(out[2].(*big.Int).Int64(), 0).UTC(),
		Finalized:     out[3].(bool),
		NumCommits:    out[4].(*big.Int).Uint64(),
		NumReveals:    out[5].(*big.Int).Uint64(),
	}, nil
}

func (b *EVMBridge) GetCurrentActiveBatchID(ctx context.Context) (*big.Int, error) {
	out, err := b.call(ctx, "currentBatchId")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (b *EVMBridge) GetCommitmentHash(ctx context.Context, batchID string, user ethCommon.Address) (ethCommon.Hash, error) {
	out, err := b.call(ctx, "getCommitment", batchKey(batchID), user)
	if err != nil {
		return ethCommon.Hash{}, err
	}
	return ethCommon.Hash(out[0].([32]byte)), nil
}

func (b *EVMBridge) OnCommitmentSubmitted(handler model.ChainEventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commitmentHandlers = append(b.commitmentHandlers, handler)
}

func (b *EVMBridge) OnTransactionRevealed(handler model.ChainEventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revealHandlers = append(b.revealHandlers, handler)
}

func (b *EVMBridge) OnBatchFinalized(handler model.ChainEventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalizedHandlers = append(b.finalizedHandlers, handler)
}

// StartEventListening polls confirmed contract logs and dispatches them to
// the registered handlers until StopEventListening or ctx cancellation.
func (b *EVMBridge) StartEventListening(ctx context.Context) error {
	client, err := utils.GetEvmClient(ctx, b.cfg.RPCs)
	if err != nil {
		return tracerr.Wrap(model.NewInfraError(model.ErrCodeBlockchainConnection, err,
			"failed to connect rpc"))
	}

	b.lastProcessedBlock = b.cfg.StartBlock
	go func() {
		defer client.Close()
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := b.poll(ctx, client); err != nil {
					log.Warnf("event poll failed, err: %v", err)
				}
			}
		}
	}()
	return nil
}

func (b *EVMBridge) StopEventListening() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *EVMBridge) poll(ctx context.Context, client utils.EvmCaller) error {
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if head < b.cfg.ConfirmedBlocks {
		return nil
	}
	confirmed := head - b.cfg.ConfirmedBlocks
	if confirmed <= b.lastProcessedBlock {
		return nil
	}
	from := b.lastProcessedBlock + 1
	to := confirmed
	if to-from > blockRangeLimit {
		to = from + blockRangeLimit
	}

	topics := [][]ethCommon.Hash{{
		b.abi.Events["CommitmentSubmitted"].ID,
		b.abi.Events["TransactionRevealed"].ID,
		b.abi.Events["BatchFinalized"].ID,
	}}
	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethCommon.Address{b.contract},
		Topics:    topics,
	})
	if err != nil {
		return tracerr.Wrap(err)
	}

	for i := range logs {
		event, err := b.decode(&logs[i])
		if err != nil {
			log.Warnf("failed to decode log %s, err: %v", logs[i].TxHash.Hex(), err)
			continue
		}
		b.dispatch(event)
	}
	b.lastProcessedBlock = to
	return nil
}

func (b *EVMBridge) decode(lg *types.Log) (*model.ChainEvent, error) {
	if len(lg.Topics) == 0 {
		return nil, tracerr.Wrap(model.NewInfraError(model.ErrCodeContractInteraction, nil, "log without topics"))
	}
	event, err := b.abi.EventByID(lg.Topics[0])
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	args := make(map[string]interface{})
	if len(lg.Data) > 0 {
		if err := b.abi.UnpackIntoMap(args, event.Name, lg.Data); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return nil, tracerr.Wrap(err)
	}

	return &model.ChainEvent{
		BlockNumber:     lg.BlockNumber,
		TransactionHash: lg.TxHash,
		LogIndex:        lg.Index,
		Args:            args,
		Event:           event.Name,
	}, nil
}

func (b *EVMBridge) dispatch(event *model.ChainEvent) {
	b.mu.RLock()
	var handlers []model.ChainEventHandler
	switch event.Event {
	case "CommitmentSubmitted":
		handlers = append(handlers, b.commitmentHandlers...)
	case "TransactionRevealed":
		handlers = append(handlers, b.revealHandlers...)
	case "BatchFinalized":
		handlers = append(handlers, b.finalizedHandlers...)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(*event)
	}
}
