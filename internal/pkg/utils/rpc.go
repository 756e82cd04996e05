package utils

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hermeznetwork/hermez-node/log"
)

// EvmCaller is the slice of ethclient.Client the log poller needs.
type EvmCaller interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

// GetEvmClient dials one of the configured rpcs, starting from a random
// index so load spreads across providers.
func GetEvmClient(ctx context.Context, rpcs []string) (*ethclient.Client, error) {
	rpcsLen := len(rpcs)
	if rpcsLen == 0 {
		return nil, fmt.Errorf("no rpcs configured")
	}
	indexRand, err := rand.Int(rand.Reader, big.NewInt(int64(rpcsLen)))
	if err != nil {
		return nil, err
	}
	index := int(indexRand.Int64())

	for i := 0; i < rpcsLen; i++ {
		rpc := rpcs[(index+i)%rpcsLen]
		client, err := ethclient.Dial(rpc)
		if err == nil {
			return client, nil
		}
		log.Warnf("failed to connect %s, err: %v", rpc, err)
	}

	return nil, fmt.Errorf("failed to connect any rpcs")
}

// SendTx signs and submits a legacy transaction carrying data to the target
// contract, estimating gas against the current head.
func SendTx(
	ctx context.Context,
	prvKey *ecdsa.PrivateKey, chainID int64, rpcs []string,
	from, to common.Address, data []byte,
) (*types.Transaction, error) {
	client, err := GetEvmClient(ctx, rpcs)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		log.Errorf("failed to get nonce, err: %v", err)
		return nil, err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		log.Errorf("failed to get gas price, err: %v", err)
		return nil, err
	}

	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		log.Errorf("failed to estimate gas, err: %v", err)
		return nil, err
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(chainID)), prvKey)
	if err != nil {
		log.Errorf("failed to sign tx, err: %v", err)
		return nil, err
	}

	if err = client.SendTransaction(ctx, signedTx); err != nil {
		log.Errorf("failed to send tx, err: %v", err)
		return nil, err
	}
	log.Debugf("sent tx %s", signedTx.Hash().Hex())

	return signedTx, nil
}
