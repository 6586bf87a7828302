package dispatcher

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// plan is what a route resolves to before any funds move. invoke is nil for
// routes that end in custody instead of a messenger call.
type plan struct {
	destination uint32
	token       common.Address
	asset       BurnAsset
	spender     common.Address
	invoke      func(ctx context.Context, net *big.Int) (Receipt, error)
}

type resolver func(d *Dispatcher, req TransferRequest) (plan, error)

func (d *Dispatcher) currentMessenger() Messenger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.messenger
}

func (d *Dispatcher) currentMetadataMessenger() MetadataMessenger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.metadataMessenger
}

func (d *Dispatcher) resolveDirect(req TransferRequest) (plan, error) {
	if req.DestinationDomain == d.opts.LocalDomain {
		return plan{}, fmt.Errorf("%w: destination %d is the local domain", ErrInvalidDomain, req.DestinationDomain)
	}

	m := d.currentMessenger()
	token := d.opts.BurnToken
	return plan{
		destination: req.DestinationDomain,
		token:       token,
		asset:       d.asset,
		spender:     m.Address(),
		invoke: func(ctx context.Context, net *big.Int) (Receipt, error) {
			var (
				rc  Receipt
				err error
			)
			if req.Restricted() {
				rc, err = m.DepositForBurnWithCaller(ctx, net, req.DestinationDomain, req.MintRecipient, token, req.RestrictedMinter)
			} else {
				rc, err = m.DepositForBurn(ctx, net, req.DestinationDomain, req.MintRecipient, token)
			}
			if err != nil {
				return Receipt{}, fmt.Errorf("deposit for burn: %w", err)
			}
			return rc, nil
		},
	}, nil
}

func (d *Dispatcher) resolveForwarding(req TransferRequest) (plan, error) {
	if err := req.Forwarding.validate(); err != nil {
		return plan{}, err
	}
	fwdDomain := d.opts.ForwardingDomain
	if req.DestinationDomain != 0 && req.DestinationDomain != fwdDomain {
		return plan{}, fmt.Errorf("%w: forwarding goes through domain %d, got %d", ErrInvalidDomain, fwdDomain, req.DestinationDomain)
	}

	m := d.currentMetadataMessenger()
	token := d.opts.BurnToken
	fwd := *req.Forwarding
	return plan{
		destination: fwdDomain,
		token:       token,
		asset:       d.asset,
		spender:     m.Address(),
		invoke: func(ctx context.Context, net *big.Int) (Receipt, error) {
			var (
				rc  Receipt
				err error
			)
			if req.Restricted() {
				rc, err = m.DepositForBurnWithMetadataAndCaller(ctx, fwd, net, req.MintRecipient, token, req.RestrictedMinter)
			} else {
				rc, err = m.DepositForBurnWithMetadata(ctx, fwd, net, req.MintRecipient, token)
			}
			if err != nil {
				return Receipt{}, fmt.Errorf("deposit for burn with metadata: %w", err)
			}
			return rc, nil
		},
	}, nil
}

func (d *Dispatcher) resolveFast(req TransferRequest) (plan, error) {
	token := req.BurnToken
	if token == (common.Address{}) || !d.FastTransferAllowed(token) {
		return plan{}, fmt.Errorf("%w: %s", ErrTokenNotSupported, token.Hex())
	}
	if req.DestinationDomain == d.opts.LocalDomain {
		return plan{}, fmt.Errorf("%w: destination %d is the local domain", ErrInvalidDomain, req.DestinationDomain)
	}
	if req.Forwarding != nil {
		if err := req.Forwarding.validate(); err != nil {
			return plan{}, err
		}
	}

	asset, err := d.assetFor(token)
	if err != nil {
		return plan{}, err
	}
	return plan{
		destination: req.DestinationDomain,
		token:       token,
		asset:       asset,
	}, nil
}

func (d *Dispatcher) assetFor(token common.Address) (BurnAsset, error) {
	if token == d.opts.BurnToken {
		return d.asset, nil
	}
	if d.assets == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotSupported, token.Hex())
	}
	asset, err := d.assets.Asset(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTokenNotSupported, token.Hex(), err)
	}
	return asset, nil
}
