package bridge

// commitRevealABI is the interface of the commit-reveal protocol contract.
// Batches are keyed on chain by the keccak256 of the coordinator batch id.
const commitRevealABI = `[
  {
    "type": "function",
    "name": "createBatch",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "batchKey", "type": "bytes32"},
      {"name": "commitmentEnd", "type": "uint256"},
      {"name": "revealEnd", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "submitCommitment",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "batchKey", "type": "bytes32"},
      {"name": "user", "type": "address"},
      {"name": "commitmentHash", "type": "bytes32"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "revealTransaction",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "batchKey", "type": "bytes32"},
      {"name": "user", "type": "address"},
      {"name": "encodedTx", "type": "bytes"},
      {"name": "nonce", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "finalizeBatch",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "batchKey", "type": "bytes32"},
      {"name": "ordering", "type": "bytes32[]"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getBatch",
    "stateMutability": "view",
    "inputs": [{"name": "batchKey", "type": "bytes32"}],
    "outputs": [
      {"name": "batchId", "type": "uint256"},
      {"name": "commitmentEnd", "type": "uint256"},
      {"name": "revealEnd", "type": "uint256"},
      {"name": "finalized", "type": "bool"},
      {"name": "numCommitments", "type": "uint256"},
      {"name": "numReveals", "type": "uint256"}
    ]
  },
  {
    "type": "function",
    "name": "currentBatchId",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "getCommitment",
    "stateMutability": "view",
    "inputs": [
      {"name": "batchKey", "type": "bytes32"},
      {"name": "user", "type": "address"}
    ],
    "outputs": [{"name": "", "type": "bytes32"}]
  },
  {
    "type": "event",
    "name": "CommitmentSubmitted",
    "anonymous": false,
    "inputs": [
      {"name": "batchKey", "type": "bytes32", "indexed": true},
      {"name": "user", "type": "address", "indexed": true},
      {"name": "commitmentHash", "type": "bytes32", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "TransactionRevealed",
    "anonymous": false,
    "inputs": [
      {"name": "batchKey", "type": "bytes32", "indexed": true},
      {"name": "user", "type": "address", "indexed": true},
      {"name": "commitmentHash", "type": "bytes32", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "BatchFinalized",
    "anonymous": false,
    "inputs": [
      {"name": "batchKey", "type": "bytes32", "indexed": true},
      {"name": "numReveals", "type": "uint256", "indexed": false}
    ]
  }
]`
