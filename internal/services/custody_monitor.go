package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/metrics"
)

// NativeBalance reads an account's native balance, e.g. ethclient's BalanceAt.
type NativeBalance func(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)

// CustodyMonitor periodically exports the custody ledger and the custodian's
// native (gas) balance as Prometheus gauges.
type CustodyMonitor struct {
	d        *dispatcher.Dispatcher
	balance  NativeBalance // nil in simulated mode
	network  string
	interval time.Duration

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewCustodyMonitor(d *dispatcher.Dispatcher, balance NativeBalance, network string, interval time.Duration) *CustodyMonitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &CustodyMonitor{
		d:        d,
		balance:  balance,
		network:  network,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one update immediately, then one per interval until Stop.
func (m *CustodyMonitor) Start() {
	logrus.Info("🚀 Starting custody monitor...")
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Update(context.Background())
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Update(context.Background())
			}
		}
	}()
}

// Stop waits for the running update to finish. Safe to call twice.
func (m *CustodyMonitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	logrus.Info("✅ Custody monitor stopped")
}

// Update refreshes every gauge once.
func (m *CustodyMonitor) Update(ctx context.Context) {
	ledger := m.d.Ledger()
	for _, token := range m.tokens() {
		label := token.Hex()
		metrics.CustodyHeldFees.WithLabelValues(label).Set(toFloat(ledger.HeldFees(token)))
		metrics.CustodyInFlight.WithLabelValues(label).Set(toFloat(ledger.InFlight(token)))
		metrics.CustodyFrozen.WithLabelValues(label).Set(toFloat(ledger.Frozen(token)))
	}

	if m.balance == nil {
		return
	}
	custodian := m.d.Options().Custodian
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	wei, err := m.balance(ctx, custodian, nil)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ Failed to read custodian balance")
		return
	}
	metrics.CustodianBalance.WithLabelValues(m.network, custodian.Hex()).Set(toFloat(wei))
}

// tokens is the burn token plus every allow-listed fast-transfer token.
func (m *CustodyMonitor) tokens() []common.Address {
	burn := m.d.Options().BurnToken
	out := []common.Address{burn}
	for _, t := range m.d.FastTransferTokens() {
		if t != burn {
			out = append(out, t)
		}
	}
	return out
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
