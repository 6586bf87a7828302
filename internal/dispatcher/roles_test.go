package dispatcher

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRoleStore struct {
	state RoleState
	saved bool
	saves int
}

func (m *memRoleStore) LoadRoles(context.Context) (RoleState, bool, error) {
	return m.state, m.saved, nil
}

func (m *memRoleStore) SaveRole(_ context.Context, role Role, holder, _ common.Address) error {
	switch role {
	case RoleOwner:
		m.state.Owner = holder
	case RoleFeeUpdater:
		m.state.FeeUpdater = holder
	case RoleCollector:
		m.state.Collector = holder
	}
	m.saved = true
	m.saves++
	return nil
}

func TestRoleRegistry_Assign(t *testing.T) {
	ctx := context.Background()
	next := common.HexToAddress("0x00000000000000000000000000000000000000c0")

	tests := []struct {
		name   string
		caller common.Address
		role   Role
		holder common.Address
		err    error
	}{
		{name: "owner sets fee updater", caller: owner, role: RoleFeeUpdater, holder: next},
		{name: "owner sets collector", caller: owner, role: RoleCollector, holder: next},
		{name: "owner transfers ownership", caller: owner, role: RoleOwner, holder: next},
		{name: "fee updater cannot hand over its role", caller: feeUpdater, role: RoleFeeUpdater, holder: next, err: ErrUnauthorized},
		{name: "collector cannot hand over its role", caller: collector, role: RoleCollector, holder: next, err: ErrUnauthorized},
		{name: "stranger", caller: stranger, role: RoleOwner, holder: next, err: ErrUnauthorized},
		{name: "zero holder", caller: owner, role: RoleCollector, holder: common.Address{}, err: ErrZeroAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRoles(t)
			before := r.State()

			err := r.Assign(ctx, tt.caller, tt.role, tt.holder)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, before, r.State())
				return
			}
			require.NoError(t, err)

			switch tt.role {
			case RoleOwner:
				assert.True(t, r.IsOwner(next))
				assert.False(t, r.IsOwner(owner))
			case RoleFeeUpdater:
				assert.True(t, r.IsFeeUpdater(next))
				assert.False(t, r.IsFeeUpdater(feeUpdater))
			case RoleCollector:
				assert.True(t, r.IsCollector(next))
				assert.Equal(t, next, r.Collector())
			}
		})
	}
}

func TestRoleRegistry_RolesAreIndependent(t *testing.T) {
	r := newRoles(t)

	assert.True(t, r.IsOwner(owner))
	assert.False(t, r.IsFeeUpdater(owner))
	assert.False(t, r.IsCollector(owner))

	assert.False(t, r.IsOwner(feeUpdater))
	assert.False(t, r.IsCollector(feeUpdater))

	assert.False(t, r.IsOwner(collector))
	assert.False(t, r.IsFeeUpdater(collector))
}

func TestRoleRegistry_OldOwnerLosesControl(t *testing.T) {
	ctx := context.Background()
	r := newRoles(t)
	next := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	require.NoError(t, r.TransferOwnership(ctx, owner, next))
	assert.ErrorIs(t, r.SetCollector(ctx, owner, stranger), ErrUnauthorized)
	assert.NoError(t, r.SetCollector(ctx, next, stranger))
	assert.True(t, r.IsCollector(stranger))
}

func TestRoleRegistry_UnknownRole(t *testing.T) {
	r := newRoles(t)
	err := r.Assign(context.Background(), owner, Role("admin"), stranger)
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestNewRoleRegistry(t *testing.T) {
	ctx := context.Background()
	initial := RoleState{Owner: owner, FeeUpdater: feeUpdater, Collector: collector}

	t.Run("rejects zero holders", func(t *testing.T) {
		for _, s := range []RoleState{
			{FeeUpdater: feeUpdater, Collector: collector},
			{Owner: owner, Collector: collector},
			{Owner: owner, FeeUpdater: feeUpdater},
		} {
			_, err := NewRoleRegistry(ctx, s, nil)
			assert.ErrorIs(t, err, ErrZeroAddress)
		}
	})

	t.Run("seeds an empty store", func(t *testing.T) {
		store := &memRoleStore{}
		_, err := NewRoleRegistry(ctx, initial, store)
		require.NoError(t, err)
		assert.Equal(t, 3, store.saves)
		assert.Equal(t, initial, store.state)
	})

	t.Run("stored roles win over config", func(t *testing.T) {
		stored := RoleState{Owner: stranger, FeeUpdater: stranger, Collector: stranger}
		store := &memRoleStore{state: stored, saved: true}

		r, err := NewRoleRegistry(ctx, initial, store)
		require.NoError(t, err)
		assert.Equal(t, stored, r.State())
		assert.Equal(t, 0, store.saves)
	})

	t.Run("writes through", func(t *testing.T) {
		store := &memRoleStore{}
		r, err := NewRoleRegistry(ctx, initial, store)
		require.NoError(t, err)

		require.NoError(t, r.SetCollector(ctx, owner, stranger))
		assert.Equal(t, stranger, store.state.Collector)
	})
}
