package utils

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// CommitmentDigest computes the binding digest of a canonically encoded
// transaction and its blinding nonce: SHA-256 over
// len(encoded)||encoded||nonce, with the payload length as an 8-byte
// big-endian prefix. The prefix fixes the payload/nonce boundary, so two
// pairs whose plain concatenations collide still bind to different digests.
// Clients must use the exact same encoding for verification to be symmetric.
func CommitmentDigest(encoded []byte, nonce string) ethCommon.Hash {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(encoded)))

	h := sha256.New()
	h.Write(length[:])
	h.Write(encoded)
	h.Write([]byte(nonce))
	return ethCommon.BytesToHash(h.Sum(nil))
}

// VerifyCommitment recomputes the digest and compares it with the stored
// commitment hash.
func VerifyCommitment(hash ethCommon.Hash, encoded []byte, nonce string) bool {
	return CommitmentDigest(encoded, nonce) == hash
}

// SimpleHash is a 32-bit rolling hash over encoded||nonce kept for
// development and test tooling. It is trivially forgeable and must never
// back commitments accepted from untrusted users.
func SimpleHash(encoded []byte, nonce string) string {
	var h uint32
	for _, b := range encoded {
		h = h*31 + uint32(b)
	}
	for _, b := range []byte(nonce) {
		h = h*31 + uint32(b)
	}
	return fmt.Sprintf("0x%08x", h)
}
