package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mevshield/coordinator/internal/pkg/model"
)

func TestNewTransactionData(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		txData, err := model.NewTransactionData(
			"0xBBBB00000000000000000000000000000000BBBB",
			"1000", []byte{0xca, 0xfe}, 21000, "1000000000", 7,
		)
		require.NoError(t, err)
		require.Equal(t, "1000", txData.Value.String())
		require.Equal(t, uint64(7), txData.Nonce)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name     string
			to       string
			value    string
			gasLimit uint64
			gasPrice string
		}{
			{"bad_address", "not-an-address", "1", 21000, "1"},
			{"negative_value", "0xBBBB00000000000000000000000000000000BBBB", "-1", 21000, "1"},
			{"non_decimal_value", "0xBBBB00000000000000000000000000000000BBBB", "0x10", 21000, "1"},
			{"zero_gas_price", "0xBBBB00000000000000000000000000000000BBBB", "1", 21000, "0"},
			{"zero_gas_limit", "0xBBBB00000000000000000000000000000000BBBB", "1", 0, "1"},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				_, err := model.NewTransactionData(f.to, f.value, nil, f.gasLimit, f.gasPrice, 0)
				require.Error(t, err)
				require.Equal(t, model.ErrCodeValidation, model.CodeOf(err))
			})
		}
	})
}

func TestCanonicalEncoding(t *testing.T) {
	txData, err := model.NewTransactionData(
		"0xBBBB00000000000000000000000000000000BBBB",
		"1000", []byte{0xca, 0xfe}, 21000, "1000000000", 7,
	)
	require.NoError(t, err)

	encoded := string(txData.CanonicalEncoding())
	require.Equal(t, "0xbbbb00000000000000000000000000000000bbbb|1000|0xcafe|21000|1000000000|7", encoded)

	// stable across copies
	require.Equal(t, encoded, string(txData.Copy().CanonicalEncoding()))
}

func TestNewCommitment(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	hash := "0xabcdef" + strings.Repeat("0", 58)

	t.Run("valid", func(t *testing.T) {
		c, err := model.NewCommitment(hash, "0xAAAA00000000000000000000000000000000AAAA", now, "abcdef1234", now)
		require.NoError(t, err)
		require.Equal(t, "abcdef1234", c.Nonce)
		require.False(t, c.IsExpired(now.Add(30*time.Minute), time.Hour))
		require.True(t, c.IsExpired(now.Add(2*time.Hour), time.Hour))
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name      string
			hash      string
			addr      string
			timestamp time.Time
			nonce     string
		}{
			{"short_hash", "0xabc", "0xAAAA00000000000000000000000000000000AAAA", now, ""},
			{"no_prefix", "ab" + hash[2:], "0xAAAA00000000000000000000000000000000AAAA", now, ""},
			{"non_hex", "0xzz" + hash[4:], "0xAAAA00000000000000000000000000000000AAAA", now, ""},
			{"bad_address", hash, "nobody", now, ""},
			{"future_timestamp", hash, "0xAAAA00000000000000000000000000000000AAAA", now.Add(time.Second), ""},
			{"short_nonce", hash, "0xAAAA00000000000000000000000000000000AAAA", now, "abc"},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				_, err := model.NewCommitment(f.hash, f.addr, f.timestamp, f.nonce, now)
				require.Error(t, err)
				require.Equal(t, model.ErrCodeInvalidCommitment, model.CodeOf(err))
			})
		}
	})
}
