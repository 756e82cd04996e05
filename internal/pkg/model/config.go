package model

import "github.com/ethereum/go-ethereum/common"

// JobConfig is the chain-facing configuration shared by background jobs.
type JobConfig struct {
	Network         string
	ChainID         uint64
	ConfirmedBlocks uint64
	Jobs            []string
	RPCs            []string
	Contracts       Contract
	StartBlock      uint64
	FairOrdering    string
	CommitReveal    string
}

// Contract holds the resolved protocol contract addresses.
type Contract struct {
	FairOrdering common.Address
	CommitReveal common.Address
}
