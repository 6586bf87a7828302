package dispatcher

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// CustodyPolicy decides what happens to the fee portion of a transfer.
type CustodyPolicy string

const (
	// CustodyAccumulate keeps fees in dispatcher custody until the collector
	// calls WithdrawFees.
	CustodyAccumulate CustodyPolicy = "accumulate"
	// CustodyForward sends each fee to the collector inside the transfer.
	CustodyForward CustodyPolicy = "forward"
)

// ParseCustodyPolicy accepts the policy names used in configuration. The empty
// string selects CustodyAccumulate.
func ParseCustodyPolicy(s string) (CustodyPolicy, error) {
	switch CustodyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CustodyAccumulate:
		return CustodyAccumulate, nil
	case CustodyForward:
		return CustodyForward, nil
	default:
		return "", fmt.Errorf("unknown custody policy %q", s)
	}
}

type assetCustody struct {
	fees     *big.Int
	inFlight *big.Int
	frozen   *big.Int
}

// Reservation marks principal that entered (or is about to enter) custody for
// one transfer. It must end in exactly one of Release, Settle or Freeze.
type Reservation struct {
	asset  common.Address
	amount *big.Int
	done   bool
}

// CustodyLedger accounts for the dispatcher's holdings per asset. Principal
// of transfers in progress is reserved so a concurrent withdrawal never
// touches it.
type CustodyLedger struct {
	mu         sync.Mutex
	withdrawMu sync.Mutex
	assets     map[common.Address]*assetCustody
}

func NewCustodyLedger() *CustodyLedger {
	return &CustodyLedger{assets: make(map[common.Address]*assetCustody)}
}

func (l *CustodyLedger) get(asset common.Address) *assetCustody {
	c, ok := l.assets[asset]
	if !ok {
		c = &assetCustody{fees: new(big.Int), inFlight: new(big.Int), frozen: new(big.Int)}
		l.assets[asset] = c
	}
	return c
}

// Reserve records amount of asset as in flight.
func (l *CustodyLedger) Reserve(asset common.Address, amount *big.Int) *Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.get(asset)
	c.inFlight.Add(c.inFlight, amount)
	return &Reservation{asset: asset, amount: new(big.Int).Set(amount)}
}

// Release drops a reservation whose funds never stayed in custody.
func (l *CustodyLedger) Release(r *Reservation) {
	l.finish(r, nil, false)
}

// Settle ends a reservation and credits retained to the asset's fee balance.
// retained may be nil or zero when nothing stays in custody.
func (l *CustodyLedger) Settle(r *Reservation, retained *big.Int) {
	l.finish(r, retained, false)
}

// Freeze moves a reservation to the frozen bucket. Frozen funds are excluded
// from withdrawals until an operator resolves them.
func (l *CustodyLedger) Freeze(r *Reservation) {
	l.finish(r, nil, true)
}

func (l *CustodyLedger) finish(r *Reservation, retained *big.Int, freeze bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r == nil || r.done {
		return
	}
	r.done = true

	c := l.get(r.asset)
	c.inFlight.Sub(c.inFlight, r.amount)
	if freeze {
		c.frozen.Add(c.frozen, r.amount)
	}
	if retained != nil && retained.Sign() > 0 {
		c.fees.Add(c.fees, retained)
	}
}

// CreditFee adds amount to the fee balance outside of a reservation.
func (l *CustodyLedger) CreditFee(asset common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.get(asset)
	c.fees.Add(c.fees, amount)
}

// HeldFees returns fees retained for asset since the last withdrawal.
func (l *CustodyLedger) HeldFees(asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.get(asset).fees)
}

// InFlight returns principal of asset reserved by transfers in progress.
func (l *CustodyLedger) InFlight(asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.get(asset).inFlight)
}

// Frozen returns principal of asset held after a failed refund.
func (l *CustodyLedger) Frozen(asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.get(asset).frozen)
}

// Withdraw runs fn with the amount of asset that can leave custody given the
// custodian's balance.
// When fn succeeds the fees counted at the time of the read are cleared.
func (l *CustodyLedger) Withdraw(asset common.Address, balance func() (*big.Int, error), fn func(amount *big.Int) error) (*big.Int, error) {
	l.withdrawMu.Lock()
	defer l.withdrawMu.Unlock()

	// The balance is read while reservations are blocked: principal is
	// reserved before it arrives and settled after it leaves, so every unit
	// of principal in bal is covered by inFlight.
	l.mu.Lock()
	bal, err := balance()
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("read custody balance: %w", err)
	}
	c := l.get(asset)
	available := new(big.Int).Sub(bal, c.inFlight)
	available.Sub(available, c.frozen)
	feesAtRead := new(big.Int).Set(c.fees)
	l.mu.Unlock()

	if available.Sign() <= 0 {
		return new(big.Int), nil
	}
	if err := fn(available); err != nil {
		return nil, err
	}

	// Fees settled after the balance read are still in custody and stay
	// counted.
	l.mu.Lock()
	c.fees.Sub(c.fees, feesAtRead)
	if c.fees.Sign() < 0 {
		c.fees.SetInt64(0)
	}
	l.mu.Unlock()
	return available, nil
}
