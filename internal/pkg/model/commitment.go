package model

import (
	"strings"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
)

// Commitment is a binding, opaque promise to reveal a transaction later.
// The hash is the 0x-prefixed hex encoding of a 32-byte digest.
type Commitment struct {
	Hash        ethCommon.Hash    `json:"hash"`
	UserAddress ethCommon.Address `json:"userAddress"`
	Timestamp   time.Time         `json:"timestamp"`
	Nonce       string            `json:"nonce,omitempty"`
}

// NewCommitment validates the raw inputs and returns an immutable record.
// The nonce is optional at commit time; when present it must satisfy the
// minimum length so it cannot be brute forced during the commitment window.
func NewCommitment(hash, userAddress string, timestamp time.Time, nonce string, now time.Time) (*Commitment, error) {
	if !validCommitmentHash(hash) {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeInvalidCommitment, "commitment hash must be a 0x-prefixed 32-byte hex string"))
	}
	if !ethCommon.IsHexAddress(userAddress) {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeInvalidCommitment, "invalid user address: %s", userAddress))
	}
	if timestamp.After(now) {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeInvalidCommitment, "commitment timestamp is in the future"))
	}
	if nonce != "" && len(nonce) < MinNonceLen {
		return nil, tracerr.Wrap(NewDomainError(ErrCodeInvalidCommitment, "nonce must be at least %d characters", MinNonceLen))
	}
	return &Commitment{
		Hash:        ethCommon.HexToHash(hash),
		UserAddress: ethCommon.HexToAddress(userAddress),
		Timestamp:   timestamp,
		Nonce:       nonce,
	}, nil
}

// IsExpired reports whether the commitment is older than ttl at time now.
func (c *Commitment) IsExpired(now time.Time, ttl time.Duration) bool {
	return c.Timestamp.Add(ttl).Before(now)
}

func validCommitmentHash(hash string) bool {
	if len(hash) != CommitmentHashLen || !strings.HasPrefix(hash, "0x") {
		return false
	}
	for _, r := range hash[2:] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

// RevealedTransaction binds a revealed payload back to its commitment.
// Constructed only by Batch.RevealTransaction after digest verification.
type RevealedTransaction struct {
	CommitmentHash  ethCommon.Hash    `json:"commitmentHash"`
	TransactionData *TransactionData  `json:"transactionData"`
	UserAddress     ethCommon.Address `json:"userAddress"`
	RevealedAt      time.Time         `json:"revealedAt"`
	Nonce           string            `json:"nonce"`
}

// Copy returns a deep copy for snapshot accessors.
func (r *RevealedTransaction) Copy() *RevealedTransaction {
	if r == nil {
		return nil
	}
	cp := *r
	cp.TransactionData = r.TransactionData.Copy()
	return &cp
}
