package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

func TestMemorySettlementRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySettlementRepository(3)
	alice := common.HexToAddress("0x00000000000000000000000000000000000000B1")
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	for i := 0; i < 4; i++ {
		caller := alice
		route := dispatcher.RouteDirect
		if i%2 == 1 {
			caller, route = bob, dispatcher.RouteFast
		}
		require.NoError(t, repo.Emit(ctx, &dispatcher.Settlement{
			ID:                fmt.Sprintf("s%d", i),
			Route:             route,
			Caller:            caller,
			Amount:            big.NewInt(int64(100 + i)),
			NetAmount:         big.NewInt(100),
			Fee:               big.NewInt(int64(i)),
			DestinationDomain: uint32(i),
			CreatedAt:         time.Unix(int64(i), 0),
		}))
	}

	_, err := repo.GetByID(ctx, "s0")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound), "evicted past capacity")

	got, err := repo.GetByID(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, "103", got.Amount)

	all, total, err := repo.List(ctx, SettlementFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, "s3", all[0].ID, "newest first")

	mine, total, err := repo.List(ctx, SettlementFilter{Caller: alice.Hex()}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "s2", mine[0].ID)

	domain := uint32(3)
	fast, _, err := repo.List(ctx, SettlementFilter{Route: "fast", DestinationDomain: &domain}, 1, 10)
	require.NoError(t, err)
	require.Len(t, fast, 1)
	assert.Equal(t, "s3", fast[0].ID)

	page2, _, err := repo.List(ctx, SettlementFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "s1", page2[0].ID)

	empty, _, err := repo.List(ctx, SettlementFilter{}, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryWithdrawals(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySettlementRepository(10)
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.RecordWithdrawal(ctx, &dispatcher.FeeWithdrawal{
			ID:     fmt.Sprintf("w%d", i),
			Amount: big.NewInt(int64(i + 1)),
		}))
	}

	list, total, err := repo.ListWithdrawals(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "w1", list[0].ID)
	assert.Equal(t, "2", list[0].Amount)
}
