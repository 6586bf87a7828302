package repository

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

func TestSettlementModel(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &dispatcher.Settlement{
		ID:                "7f8c1f0e-1f4a-4a3e-9f55-3f3c9d1d6a10",
		Route:             dispatcher.RouteForwarding,
		Caller:            common.HexToAddress("0xAbCdEf0000000000000000000000000000000001"),
		MintRecipient:     common.HexToHash("0xbeef"),
		BurnToken:         common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
		Amount:            new(big.Int).Lsh(big.NewInt(1), 200),
		NetAmount:         big.NewInt(19_980_000),
		Fee:               big.NewInt(20_000),
		SourceDomain:      0,
		DestinationDomain: 4,
		CustodyPolicy:     dispatcher.CustodyAccumulate,
		Forwarding: &dispatcher.ForwardingInstructions{
			Channel:              1,
			DestinationBech32:    "osmo",
			DestinationRecipient: []byte("osmo1xyz"),
		},
		TxHash:    common.HexToHash("0x01"),
		Nonce:     9,
		CreatedAt: created,
	}

	m := SettlementToModel(s)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", m.Caller)
	assert.Equal(t, s.Amount.String(), m.Amount)
	assert.Empty(t, m.RestrictedMinter)
	assert.Empty(t, m.ForwardingMemo)
	require.NotNil(t, m.ForwardingChannel)

	back, err := SettlementFromModel(m)
	require.NoError(t, err)
	assert.Equal(t, s.Caller, back.Caller)
	assert.Equal(t, s.Amount.String(), back.Amount.String())
	assert.Equal(t, s.Forwarding.DestinationRecipient, back.Forwarding.DestinationRecipient)
	assert.Nil(t, back.Forwarding.Memo)
	assert.Equal(t, common.Hash{}, back.RestrictedMinter)

	m.Fee = "not-a-number"
	_, err = SettlementFromModel(m)
	assert.Error(t, err)
}
