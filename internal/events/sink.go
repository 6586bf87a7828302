package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/metrics"
)

// Target is one named destination for settlements. Targets that also
// implement dispatcher.WithdrawalSink receive fee withdrawals.
type Target struct {
	Name string
	Sink dispatcher.SettlementSink
}

// FanOut delivers to every target in order. A failing target does not stop
// the others; the failures are joined into the returned error.
type FanOut struct {
	targets []Target
}

var (
	_ dispatcher.SettlementSink = (*FanOut)(nil)
	_ dispatcher.WithdrawalSink = (*FanOut)(nil)
)

// NewFanOut skips targets with a nil sink.
func NewFanOut(targets ...Target) *FanOut {
	f := &FanOut{}
	for _, t := range targets {
		if t.Sink != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// Names lists the active targets.
func (f *FanOut) Names() []string {
	names := make([]string, len(f.targets))
	for i, t := range f.targets {
		names[i] = t.Name
	}
	return names
}

func (f *FanOut) Emit(ctx context.Context, s *dispatcher.Settlement) error {
	var errs []error
	for _, t := range f.targets {
		if err := t.Sink.Emit(ctx, s); err != nil {
			metrics.SettlementPublishFailed.WithLabelValues(t.Name).Inc()
			logrus.Warnf("⚠️ [%s] settlement %s not delivered: %v", t.Name, s.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		metrics.SettlementsPublished.WithLabelValues(t.Name).Inc()
	}
	return errors.Join(errs...)
}

func (f *FanOut) RecordWithdrawal(ctx context.Context, w *dispatcher.FeeWithdrawal) error {
	var errs []error
	for _, t := range f.targets {
		ws, ok := t.Sink.(dispatcher.WithdrawalSink)
		if !ok {
			continue
		}
		if err := ws.RecordWithdrawal(ctx, w); err != nil {
			logrus.Warnf("⚠️ [%s] withdrawal %s not recorded: %v", t.Name, w.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
