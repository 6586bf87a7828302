package dispatcher

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// RuleStore persists fee rules. LoadFeeRules returns every initialized rule.
type RuleStore interface {
	LoadFeeRules(ctx context.Context) (map[uint32]FeeRule, error)
	SaveFeeRule(ctx context.Context, destinationDomain uint32, rule FeeRule, updatedBy common.Address) error
}

// FeeSchedule maps destination domains to fee rules. Writes are gated by the
// fee updater role held in roles.
type FeeSchedule struct {
	mu      sync.RWMutex
	rules   map[uint32]FeeRule
	maxBips uint16
	roles   *RoleRegistry
	store   RuleStore
}

// NewFeeSchedule loads existing rules from store. A nil store keeps rules in
// memory only. maxPercFeeBips of zero selects DefaultMaxPercFeeBips.
func NewFeeSchedule(ctx context.Context, roles *RoleRegistry, store RuleStore, maxPercFeeBips uint16) (*FeeSchedule, error) {
	if roles == nil {
		return nil, ErrMissingRoles
	}
	if maxPercFeeBips == 0 {
		maxPercFeeBips = DefaultMaxPercFeeBips
	}
	if maxPercFeeBips > BipsDenominator {
		return nil, fmt.Errorf("%w: cap %d above %d", ErrPercFeeTooHigh, maxPercFeeBips, BipsDenominator)
	}

	s := &FeeSchedule{
		rules:   make(map[uint32]FeeRule),
		maxBips: maxPercFeeBips,
		roles:   roles,
		store:   store,
	}
	if store != nil {
		rules, err := store.LoadFeeRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("load fee rules: %w", err)
		}
		for domain, rule := range rules {
			rule.Initialized = true
			s.rules[domain] = rule.clone()
		}
	}
	return s, nil
}

// MaxPercFeeBips returns the cap enforced by SetFee.
func (s *FeeSchedule) MaxPercFeeBips() uint16 {
	return s.maxBips
}

// SetFee replaces the rule for destinationDomain. The previous rule survives
// any failure, including a failed store write.
func (s *FeeSchedule) SetFee(ctx context.Context, caller common.Address, destinationDomain uint32, percFeeBips uint16, flatFee *big.Int) error {
	if !s.roles.IsFeeUpdater(caller) {
		return fmt.Errorf("%w: %s is not the fee updater", ErrUnauthorized, caller.Hex())
	}
	if percFeeBips > s.maxBips {
		return fmt.Errorf("%w: %d > %d", ErrPercFeeTooHigh, percFeeBips, s.maxBips)
	}
	if flatFee == nil {
		flatFee = new(big.Int)
	}
	if !IsUint256(flatFee) {
		return fmt.Errorf("%w: %s", ErrInvalidFlatFee, flatFee)
	}

	rule := FeeRule{
		PercFeeBips: percFeeBips,
		FlatFee:     new(big.Int).Set(flatFee),
		Initialized: true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveFeeRule(ctx, destinationDomain, rule, caller); err != nil {
			return fmt.Errorf("save fee rule: %w", err)
		}
	}
	s.rules[destinationDomain] = rule
	return nil
}

// GetFee returns the rule for destinationDomain, or the zero FeeRule.
func (s *FeeSchedule) GetFee(destinationDomain uint32) FeeRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[destinationDomain]
	if !ok {
		return FeeRule{FlatFee: new(big.Int)}
	}
	return rule.clone()
}

// Quote resolves the rule for destinationDomain and computes the fee.
func (s *FeeSchedule) Quote(amount *big.Int, destinationDomain uint32) (fee, remainder *big.Int, err error) {
	fee, remainder, err = ComputeFee(amount, s.GetFee(destinationDomain))
	if err != nil {
		return nil, nil, fmt.Errorf("domain %d: %w", destinationDomain, err)
	}
	return fee, remainder, nil
}

// Domains lists the destinations that have a rule configured.
func (s *FeeSchedule) Domains() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]uint32, 0, len(s.rules))
	for d := range s.rules {
		out = append(out, d)
	}
	return out
}
