package model

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
)

// maxValueBits bounds every numeric field of a transaction payload.
const maxValueBits = 256

// TransactionData is the user transaction hidden behind a commitment. All
// numeric fields fit in 256 bits; Value and GasPrice are wei amounts.
type TransactionData struct {
	To       ethCommon.Address `json:"to"`
	Value    *big.Int          `json:"value"`
	Data     []byte            `json:"data"`
	GasLimit uint64            `json:"gasLimit"`
	GasPrice *big.Int          `json:"gasPrice"`
	Nonce    uint64            `json:"nonce"`
}

// NewTransactionData validates and builds an immutable payload. Value is a
// non-negative decimal string, gasPrice a positive decimal string.
func NewTransactionData(to string, value string, data []byte, gasLimit uint64, gasPrice string, nonce uint64) (*TransactionData, error) {
	if !ethCommon.IsHexAddress(to) {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeValidation, "invalid to address: %s", to))
	}
	valueBI, ok := new(big.Int).SetString(value, DecBase)
	if !ok || valueBI.Sign() < 0 {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeValidation, "value must be a non-negative decimal string"))
	}
	if valueBI.BitLen() > maxValueBits {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeValidation, "value overflows 256 bits"))
	}
	gasPriceBI, ok := new(big.Int).SetString(gasPrice, DecBase)
	if !ok || gasPriceBI.Sign() <= 0 {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeValidation, "gasPrice must be a positive decimal string"))
	}
	if gasPriceBI.BitLen() > maxValueBits {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeValidation, "gasPrice overflows 256 bits"))
	}
	if gasLimit == 0 {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeValidation, "gasLimit must be positive"))
	}
	return &TransactionData{
		To:       ethCommon.HexToAddress(to),
		Value:    valueBI,
		Data:     append([]byte{}, data...),
		GasLimit: gasLimit,
		GasPrice: gasPriceBI,
		Nonce:    nonce,
	}, nil
}

// CanonicalEncoding returns the stable byte encoding shared by coordinator
// and clients: the fields to, value, data, gasLimit, gasPrice, nonce in that
// order, pipe separated. This encoding is the input of the commitment digest
// so any change to it breaks the binding guarantee.
func (t *TransactionData) CanonicalEncoding() []byte {
	fields := []string{
		strings.ToLower(t.To.Hex()),
		t.Value.Text(DecBase),
		"0x" + hex.EncodeToString(t.Data),
		fmt.Sprintf("%d", t.GasLimit),
		t.GasPrice.Text(DecBase),
		fmt.Sprintf("%d", t.Nonce),
	}
	return []byte(strings.Join(fields, "|"))
}

// Copy returns a deep copy, keeping aggregate snapshots detached from the
// caller.
func (t *TransactionData) Copy() *TransactionData {
	if t == nil {
		return nil
	}
	return &TransactionData{
		To:       t.To,
		Value:    new(big.Int).Set(t.Value),
		Data:     append([]byte{}, t.Data...),
		GasLimit: t.GasLimit,
		GasPrice: new(big.Int).Set(t.GasPrice),
		Nonce:    t.Nonce,
	}
}
