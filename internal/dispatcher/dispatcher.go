// Package dispatcher charges a per-destination fee on burn/mint transfers,
// takes custody of the caller's funds and hands the net amount to exactly one
// messenger operation.
//
// Every transfer runs the same preamble: resolve the route, compute the fee,
// reserve and acquire custody, then invoke the collaborator selected by the
// route. A failure after custody was acquired refunds the caller, so a
// transfer either completes or leaves balances as they were. A chain call
// whose outcome is unknown is never refunded; its principal is frozen.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/metrics"
)

// DefaultForwardingDomain is the domain of the sub-network gateway.
const DefaultForwardingDomain uint32 = 4

// Options are fixed for the lifetime of a Dispatcher.
type Options struct {
	LocalDomain      uint32
	ForwardingDomain uint32
	BurnToken        common.Address
	// Custodian is the account that holds funds in custody and signs
	// collaborator calls.
	Custodian          common.Address
	Policy             CustodyPolicy
	FastTransferTokens []common.Address
	Logger             *logrus.Logger
}

// Collaborators are the dependencies of a Dispatcher. Messenger,
// MetadataMessenger, Asset, Fees and Roles are required.
type Collaborators struct {
	Messenger         Messenger
	MetadataMessenger MetadataMessenger
	Asset             BurnAsset
	Assets            AssetResolver
	Fees              *FeeSchedule
	Roles             *RoleRegistry
	Ledger            *CustodyLedger
	Sink              SettlementSink
	Withdrawals       WithdrawalSink
	Tokens            TokenStore
}

// FeeWithdrawal is recorded for every successful WithdrawFees.
type FeeWithdrawal struct {
	ID        string         `json:"id"`
	Collector common.Address `json:"collector"`
	Token     common.Address `json:"token"`
	Amount    *big.Int       `json:"amount"`
	CreatedAt time.Time      `json:"created_at"`
}

type Dispatcher struct {
	opts   Options
	log    *logrus.Entry
	asset  BurnAsset
	assets AssetResolver
	fees   *FeeSchedule
	roles  *RoleRegistry
	ledger *CustodyLedger

	sink        SettlementSink
	withdrawals WithdrawalSink
	tokens      TokenStore

	mu                sync.RWMutex
	messenger         Messenger
	metadataMessenger MetadataMessenger
	fastTokens        map[common.Address]bool

	grantMu sync.Mutex
	granted map[common.Address]bool

	routes map[RouteKind]resolver
}

// New checks every required collaborator and loads the fast-transfer
// allow-list.
func New(ctx context.Context, opts Options, c Collaborators) (*Dispatcher, error) {
	switch {
	case c.Messenger == nil:
		return nil, ErrMissingMessenger
	case c.MetadataMessenger == nil:
		return nil, ErrMissingMetadataMessenger
	case c.Asset == nil:
		return nil, ErrMissingBurnAsset
	case c.Fees == nil:
		return nil, ErrMissingFeeSchedule
	case c.Roles == nil:
		return nil, ErrMissingRoles
	case opts.Custodian == (common.Address{}):
		return nil, ErrMissingCustodian
	case opts.BurnToken == (common.Address{}):
		return nil, fmt.Errorf("%w: burn token", ErrZeroAddress)
	}

	if opts.ForwardingDomain == 0 {
		opts.ForwardingDomain = DefaultForwardingDomain
	}
	if opts.Policy == "" {
		opts.Policy = CustodyAccumulate
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if c.Ledger == nil {
		c.Ledger = NewCustodyLedger()
	}

	d := &Dispatcher{
		opts:              opts,
		log:               opts.Logger.WithField("component", "dispatcher"),
		asset:             c.Asset,
		assets:            c.Assets,
		fees:              c.Fees,
		roles:             c.Roles,
		ledger:            c.Ledger,
		sink:              c.Sink,
		withdrawals:       c.Withdrawals,
		tokens:            c.Tokens,
		messenger:         c.Messenger,
		metadataMessenger: c.MetadataMessenger,
		fastTokens:        make(map[common.Address]bool),
		granted:           make(map[common.Address]bool),
	}
	d.routes = map[RouteKind]resolver{
		RouteDirect:     (*Dispatcher).resolveDirect,
		RouteForwarding: (*Dispatcher).resolveForwarding,
		RouteFast:       (*Dispatcher).resolveFast,
	}

	for _, t := range opts.FastTransferTokens {
		d.fastTokens[t] = true
	}
	if c.Tokens != nil {
		stored, err := c.Tokens.LoadFastTransferTokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("load fast transfer tokens: %w", err)
		}
		for t, allowed := range stored {
			d.fastTokens[t] = allowed
		}
	}

	return d, nil
}

func (d *Dispatcher) Options() Options      { return d.opts }
func (d *Dispatcher) Fees() *FeeSchedule     { return d.fees }
func (d *Dispatcher) Roles() *RoleRegistry   { return d.roles }
func (d *Dispatcher) Ledger() *CustodyLedger { return d.ledger }

// HeldFees returns the fees retained in custody for token.
func (d *Dispatcher) HeldFees(token common.Address) *big.Int {
	return d.ledger.HeldFees(token)
}

// QuoteFee computes the fee for amount sent to destinationDomain without
// moving funds.
func (d *Dispatcher) QuoteFee(amount *big.Int, destinationDomain uint32) (fee, remainder *big.Int, err error) {
	return d.fees.Quote(amount, destinationDomain)
}

// Transfer runs one transfer for caller. On success the returned settlement
// has also been handed to the configured sink.
func (d *Dispatcher) Transfer(ctx context.Context, caller common.Address, req TransferRequest) (*Settlement, error) {
	started := time.Now()
	s, err := d.transfer(ctx, caller, req)

	result := "success"
	if err != nil {
		result = string(KindOf(err))
	}
	metrics.TransfersTotal.WithLabelValues(string(req.Route), result).Inc()
	metrics.TransferDuration.WithLabelValues(string(req.Route)).Observe(time.Since(started).Seconds())

	if err != nil {
		d.log.WithFields(logrus.Fields{
			"route":       req.Route,
			"caller":      caller.Hex(),
			"destination": req.DestinationDomain,
			"amount":      req.Amount,
			"kind":        KindOf(err),
		}).WithError(err).Warn("❌ transfer rejected")
		return nil, err
	}
	return s, nil
}

func (d *Dispatcher) transfer(ctx context.Context, caller common.Address, req TransferRequest) (*Settlement, error) {
	resolve, ok := d.routes[req.Route]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, req.Route)
	}
	if caller == (common.Address{}) {
		return nil, fmt.Errorf("%w: caller", ErrZeroAddress)
	}
	if !IsUint256(req.Amount) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, req.Amount)
	}
	if req.MintRecipient == (common.Hash{}) {
		return nil, ErrInvalidRecipient
	}

	p, err := resolve(d, req)
	if err != nil {
		return nil, err
	}

	// Nothing has moved yet: a missing rule or an amount that does not cover
	// its fee stops here.
	fee, net, err := d.fees.Quote(req.Amount, p.destination)
	if err != nil {
		return nil, err
	}

	var permit PermitAsset
	if req.Permit != nil {
		pa, ok := p.asset.(PermitAsset)
		if !ok {
			return nil, ErrPermitNotSupported
		}
		permit = pa
	}

	s := newSettlement(caller, req, p.token, fee, net, d.opts.LocalDomain, p.destination, d.opts.Policy)

	if p.invoke == nil {
		if err := d.custodyOnly(ctx, caller, req, p, permit, s); err != nil {
			return nil, err
		}
	} else {
		if err := d.burn(ctx, caller, req, p, permit, s); err != nil {
			return nil, err
		}
	}

	d.emit(ctx, s)
	return s, nil
}

func (d *Dispatcher) applyPermit(ctx context.Context, permit PermitAsset, caller, spender common.Address, req TransferRequest) error {
	if permit == nil {
		return nil
	}
	if err := permit.Permit(ctx, caller, spender, req.Amount, req.Permit.Deadline, req.Permit.V, req.Permit.R, req.Permit.S); err != nil {
		return fmt.Errorf("permit: %w", err)
	}
	return nil
}

// burn covers the routes that end in a messenger call.
func (d *Dispatcher) burn(ctx context.Context, caller common.Address, req TransferRequest, p plan, permit PermitAsset, s *Settlement) error {
	custodian := d.opts.Custodian
	// Once funds move the sequence runs to completion even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)

	res := d.ledger.Reserve(p.token, req.Amount)
	if err := d.applyPermit(ctx, permit, caller, custodian, req); err != nil {
		d.ledger.Release(res)
		return err
	}
	if err := p.asset.TransferFrom(ctx, custodian, caller, custodian, req.Amount); err != nil {
		if errors.Is(err, ErrOutcomeUnknown) {
			return d.park(caller, req.Route, res, fmt.Errorf("acquire custody: %w", err))
		}
		d.ledger.Release(res)
		return fmt.Errorf("acquire custody: %w", err)
	}

	if err := d.ensureAllowance(ctx, p.asset, p.spender); err != nil {
		return d.rollback(ctx, caller, p.asset, res, err)
	}

	receipt, err := p.invoke(ctx, s.NetAmount)
	if err != nil {
		// A burn that may have gone through must never be refunded.
		if errors.Is(err, ErrOutcomeUnknown) {
			return d.park(caller, req.Route, res, err)
		}
		return d.rollback(ctx, caller, p.asset, res, err)
	}
	s.TxHash = receipt.TxHash
	s.Nonce = receipt.Nonce

	s.FeeRetained = d.routeFee(ctx, p, res, s.Fee)
	return nil
}

// custodyOnly covers the fast route: the funds stay with the dispatcher (or go
// straight to the collector) and a relayer completes the transfer off-chain.
// The whole amount is taken, so it is counted apart from fees.
func (d *Dispatcher) custodyOnly(ctx context.Context, caller common.Address, req TransferRequest, p plan, permit PermitAsset, s *Settlement) error {
	custodian := d.opts.Custodian
	ctx = context.WithoutCancel(ctx)

	if d.opts.Policy == CustodyForward {
		if err := d.applyPermit(ctx, permit, caller, custodian, req); err != nil {
			return err
		}
		if err := p.asset.TransferFrom(ctx, custodian, caller, d.roles.Collector(), req.Amount); err != nil {
			return fmt.Errorf("transfer to collector: %w", err)
		}
		metrics.FastCustody.WithLabelValues(string(d.opts.Policy)).Add(bigToFloat(req.Amount))
		return nil
	}

	res := d.ledger.Reserve(p.token, req.Amount)
	if err := d.applyPermit(ctx, permit, caller, custodian, req); err != nil {
		d.ledger.Release(res)
		return err
	}
	if err := p.asset.TransferFrom(ctx, custodian, caller, custodian, req.Amount); err != nil {
		if errors.Is(err, ErrOutcomeUnknown) {
			return d.park(caller, req.Route, res, fmt.Errorf("acquire custody: %w", err))
		}
		d.ledger.Release(res)
		return fmt.Errorf("acquire custody: %w", err)
	}
	d.ledger.Settle(res, req.Amount)
	metrics.FastCustody.WithLabelValues(string(d.opts.Policy)).Add(bigToFloat(req.Amount))
	return nil
}

// routeFee finishes a reservation after the messenger accepted the net
// amount. It reports whether a fee meant for the collector stayed in custody.
func (d *Dispatcher) routeFee(ctx context.Context, p plan, res *Reservation, fee *big.Int) bool {
	metrics.FeesCollected.WithLabelValues(string(d.opts.Policy)).Add(bigToFloat(fee))

	if d.opts.Policy != CustodyForward || fee.Sign() == 0 {
		d.ledger.Settle(res, fee)
		return false
	}

	// The burn has happened, so nothing can be rolled back here. The fee
	// stays withdrawable by the collector and the settlement is flagged.
	collector := d.roles.Collector()
	if err := p.asset.Transfer(ctx, d.opts.Custodian, collector, fee); err != nil {
		metrics.FeeForwardFailures.Inc()
		d.log.WithFields(logrus.Fields{
			"collector": collector.Hex(),
			"fee":       fee,
			"token":     p.token.Hex(),
		}).WithError(err).Error("❌ fee forward failed, fee retained in custody")
		if errors.Is(err, ErrOutcomeUnknown) {
			// The fee may already be with the collector; if not, a balance
			// based withdrawal still sends it there.
			d.ledger.Settle(res, nil)
			return true
		}
		d.ledger.Settle(res, fee)
		return true
	}
	d.ledger.Settle(res, nil)
	return false
}

// park freezes a reservation whose chain outcome is unknown. The caller is not
// refunded: the funds may already have been burned or moved.
func (d *Dispatcher) park(caller common.Address, route RouteKind, res *Reservation, cause error) error {
	d.ledger.Freeze(res)
	metrics.TransfersPending.WithLabelValues(string(route)).Inc()
	tx, _ := PendingTx(cause)
	d.log.WithFields(logrus.Fields{
		"caller": caller.Hex(),
		"amount": res.amount,
		"token":  res.asset.Hex(),
		"tx":     tx.Hex(),
	}).WithError(cause).Error("❌ transfer outcome unknown, principal frozen for reconciliation")
	return cause
}

// rollback returns the full amount to the caller. If that fails too the
// principal is frozen so no withdrawal can sweep it.
func (d *Dispatcher) rollback(ctx context.Context, caller common.Address, asset BurnAsset, res *Reservation, cause error) error {
	if err := asset.Transfer(ctx, d.opts.Custodian, caller, res.amount); err != nil {
		d.ledger.Freeze(res)
		metrics.RefundFailures.Inc()
		d.log.WithFields(logrus.Fields{
			"caller": caller.Hex(),
			"amount": res.amount,
			"token":  res.asset.Hex(),
		}).WithError(err).Error("❌ refund failed, principal frozen")
		return fmt.Errorf("%w: refund: %v: %w", ErrRefundFailed, err, cause)
	}
	d.ledger.Release(res)
	return cause
}

func (d *Dispatcher) ensureAllowance(ctx context.Context, asset BurnAsset, spender common.Address) error {
	d.grantMu.Lock()
	defer d.grantMu.Unlock()

	if d.granted[spender] {
		return nil
	}
	if err := asset.Approve(ctx, d.opts.Custodian, spender, MaxUint256()); err != nil {
		return fmt.Errorf("approve %s: %w", spender.Hex(), err)
	}
	d.granted[spender] = true
	d.log.WithField("spender", spender.Hex()).Info("✅ messenger allowance granted")
	return nil
}

func (d *Dispatcher) emit(ctx context.Context, s *Settlement) {
	d.log.WithFields(logrus.Fields{
		"id":          s.ID,
		"route":       s.Route,
		"destination": s.DestinationDomain,
		"net":         s.NetAmount,
		"fee":         s.Fee,
		"tx":          s.TxHash.Hex(),
	}).Info("✅ transfer settled")

	if d.sink == nil {
		return
	}
	if err := d.sink.Emit(ctx, s); err != nil {
		d.log.WithField("id", s.ID).WithError(err).Error("❌ settlement sink failed")
	}
}

// WithdrawFees moves the withdrawable balance of the deployment's burn token
// to the collector.
func (d *Dispatcher) WithdrawFees(ctx context.Context, caller common.Address) (*big.Int, error) {
	return d.withdraw(ctx, caller, d.opts.BurnToken, d.asset)
}

// WithdrawTokenFees does the same for a fast-transfer token.
func (d *Dispatcher) WithdrawTokenFees(ctx context.Context, caller, token common.Address) (*big.Int, error) {
	asset, err := d.assetFor(token)
	if err != nil {
		return nil, err
	}
	return d.withdraw(ctx, caller, token, asset)
}

func (d *Dispatcher) withdraw(ctx context.Context, caller, token common.Address, asset BurnAsset) (*big.Int, error) {
	if !d.roles.IsCollector(caller) {
		return nil, fmt.Errorf("%w: %s is not the collector", ErrUnauthorized, caller.Hex())
	}

	amount, err := d.ledger.Withdraw(token,
		func() (*big.Int, error) { return asset.BalanceOf(ctx, d.opts.Custodian) },
		func(amount *big.Int) error { return asset.Transfer(ctx, d.opts.Custodian, caller, amount) },
	)
	if err != nil {
		return nil, fmt.Errorf("withdraw fees: %w", err)
	}
	if amount.Sign() == 0 {
		return amount, nil
	}

	metrics.FeesWithdrawn.Add(bigToFloat(amount))
	d.log.WithFields(logrus.Fields{
		"collector": caller.Hex(),
		"token":     token.Hex(),
		"amount":    amount,
	}).Info("💰 fees withdrawn")

	if d.withdrawals != nil {
		w := &FeeWithdrawal{
			ID:        uuid.NewString(),
			Collector: caller,
			Token:     token,
			Amount:    amount,
			CreatedAt: time.Now().UTC(),
		}
		if err := d.withdrawals.RecordWithdrawal(ctx, w); err != nil {
			d.log.WithError(err).Error("❌ record withdrawal failed")
		}
	}
	return amount, nil
}

// SetFastTransferToken adds or removes token from the fast-transfer
// allow-list. Owner only.
func (d *Dispatcher) SetFastTransferToken(ctx context.Context, caller, token common.Address, allowed bool) error {
	if !d.roles.IsOwner(caller) {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	if token == (common.Address{}) {
		return fmt.Errorf("%w: token", ErrZeroAddress)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tokens != nil {
		if err := d.tokens.SaveFastTransferToken(ctx, token, allowed, caller); err != nil {
			return fmt.Errorf("save fast transfer token: %w", err)
		}
	}
	d.fastTokens[token] = allowed
	return nil
}

// FastTransferAllowed reports whether token may use RouteFast.
func (d *Dispatcher) FastTransferAllowed(token common.Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fastTokens[token]
}

// FastTransferTokens lists the allow-listed tokens.
func (d *Dispatcher) FastTransferTokens() []common.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]common.Address, 0, len(d.fastTokens))
	for t, ok := range d.fastTokens {
		if ok {
			out = append(out, t)
		}
	}
	return out
}

// SetMessenger replaces the base messenger. The allowance for the new
// address is granted on its first use.
func (d *Dispatcher) SetMessenger(caller common.Address, m Messenger) error {
	if !d.roles.IsOwner(caller) {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	if m == nil {
		return ErrMissingMessenger
	}
	d.mu.Lock()
	d.messenger = m
	d.mu.Unlock()
	return nil
}

// SetMetadataMessenger replaces the metadata messenger.
func (d *Dispatcher) SetMetadataMessenger(caller common.Address, m MetadataMessenger) error {
	if !d.roles.IsOwner(caller) {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	if m == nil {
		return ErrMissingMetadataMessenger
	}
	d.mu.Lock()
	d.metadataMessenger = m
	d.mu.Unlock()
	return nil
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// IsKind is a shorthand for KindOf(err) == kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
