package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role names a privileged identity held by the registry.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleFeeUpdater Role = "fee_updater"
	RoleCollector  Role = "collector"
)

// RoleState is a snapshot of the three role holders.
type RoleState struct {
	Owner      common.Address `json:"owner"`
	FeeUpdater common.Address `json:"fee_updater"`
	Collector  common.Address `json:"collector"`
}

// RoleStore persists role assignments. LoadRoles reports ok=false when
// nothing has been stored yet.
type RoleStore interface {
	LoadRoles(ctx context.Context) (state RoleState, ok bool, err error)
	SaveRole(ctx context.Context, role Role, holder common.Address, updatedBy common.Address) error
}

// RoleRegistry holds the owner, fee updater and collector. Only the owner can
// reassign any of them.
type RoleRegistry struct {
	mu    sync.RWMutex
	state RoleState
	store RoleStore
}

// NewRoleRegistry restores roles from store, or seeds them from initial when
// the store is empty or nil.
func NewRoleRegistry(ctx context.Context, initial RoleState, store RoleStore) (*RoleRegistry, error) {
	state := initial
	seed := true
	if store != nil {
		stored, ok, err := store.LoadRoles(ctx)
		if err != nil {
			return nil, fmt.Errorf("load roles: %w", err)
		}
		if ok {
			state = stored
			seed = false
		}
	}

	if state.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner", ErrZeroAddress)
	}
	if state.FeeUpdater == (common.Address{}) {
		return nil, fmt.Errorf("%w: fee updater", ErrZeroAddress)
	}
	if state.Collector == (common.Address{}) {
		return nil, fmt.Errorf("%w: collector", ErrZeroAddress)
	}

	if seed && store != nil {
		for role, holder := range map[Role]common.Address{
			RoleOwner:      state.Owner,
			RoleFeeUpdater: state.FeeUpdater,
			RoleCollector:  state.Collector,
		} {
			if err := store.SaveRole(ctx, role, holder, common.Address{}); err != nil {
				return nil, fmt.Errorf("seed role %s: %w", role, err)
			}
		}
	}

	return &RoleRegistry{state: state, store: store}, nil
}

// State returns the current holders.
func (r *RoleRegistry) State() RoleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *RoleRegistry) IsOwner(who common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return who == r.state.Owner
}

func (r *RoleRegistry) IsFeeUpdater(who common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return who == r.state.FeeUpdater
}

func (r *RoleRegistry) IsCollector(who common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return who == r.state.Collector
}

// Collector returns the current fee collector.
func (r *RoleRegistry) Collector() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Collector
}

func (r *RoleRegistry) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return r.assign(ctx, caller, RoleOwner, newOwner)
}

func (r *RoleRegistry) SetFeeUpdater(ctx context.Context, caller, newFeeUpdater common.Address) error {
	return r.assign(ctx, caller, RoleFeeUpdater, newFeeUpdater)
}

func (r *RoleRegistry) SetCollector(ctx context.Context, caller, newCollector common.Address) error {
	return r.assign(ctx, caller, RoleCollector, newCollector)
}

// Assign dispatches to the setter for role.
func (r *RoleRegistry) Assign(ctx context.Context, caller common.Address, role Role, holder common.Address) error {
	switch role {
	case RoleOwner, RoleFeeUpdater, RoleCollector:
		return r.assign(ctx, caller, role, holder)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

func (r *RoleRegistry) assign(ctx context.Context, caller common.Address, role Role, holder common.Address) error {
	if holder == (common.Address{}) {
		return fmt.Errorf("%w: new %s", ErrZeroAddress, role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The owner check and the write happen under one lock so a concurrent
	// ownership transfer cannot interleave.
	if caller != r.state.Owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}

	if r.store != nil {
		if err := r.store.SaveRole(ctx, role, holder, caller); err != nil {
			return fmt.Errorf("save role %s: %w", role, err)
		}
	}

	switch role {
	case RoleOwner:
		r.state.Owner = holder
	case RoleFeeUpdater:
		r.state.FeeUpdater = holder
	case RoleCollector:
		r.state.Collector = holder
	}
	return nil
}
