package model

const (
	ServiceAPI         = "api"
	ServicePhaseTicker = "phaseticker"
	ServiceListener    = "listener"
)

const (
	GormDataTypeJSON = "json"
	GormDataTypeText = "text"
)

const (
	DecBase = 10
	HexBase = 16
)

const (
	SecPerHour = 3600
	SecPerDay  = SecPerHour * 24
)

const (
	ChainIDSepolia = 11155111
)

// BatchStatus is the recorded lifecycle phase of a batch. Transitions are
// monotonic: COMMITMENT_PHASE -> REVEAL_PHASE -> EXECUTION_PHASE ->
// COMPLETED, with CANCELLED reachable from any non-terminal status.
type BatchStatus string

const (
	BatchStatusCommitmentPhase BatchStatus = "COMMITMENT_PHASE"
	BatchStatusRevealPhase     BatchStatus = "REVEAL_PHASE"
	BatchStatusExecutionPhase  BatchStatus = "EXECUTION_PHASE"
	BatchStatusCompleted       BatchStatus = "COMPLETED"
	BatchStatusCancelled       BatchStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is legal.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusCancelled
}

// OrderingMethod is the rule used to derive an order over revealed
// transactions. The coordinator only records it; the ordering itself is
// supplied at finalization.
type OrderingMethod string

const (
	OrderingCommitReveal        OrderingMethod = "commit-reveal"
	OrderingThresholdDecryption OrderingMethod = "threshold-decryption"
	OrderingTimeBased           OrderingMethod = "time-based"
)

func (m OrderingMethod) Valid() bool {
	switch m {
	case OrderingCommitReveal, OrderingThresholdDecryption, OrderingTimeBased:
		return true
	}
	return false
}

const (
	// DefaultCommitmentDurationMin is applied when batch creation does not
	// specify a commitment window.
	DefaultCommitmentDurationMin = 30
	// DefaultRevealDurationMin is applied when batch creation does not
	// specify a reveal window.
	DefaultRevealDurationMin = 15

	// CommitmentHashLen is the length of a 0x-prefixed hex encoded 32-byte
	// commitment digest.
	CommitmentHashLen = 66

	// MinNonceLen is the minimum length of the off-chain blinding nonce.
	MinNonceLen = 10
)
