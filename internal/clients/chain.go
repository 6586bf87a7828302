package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

var (
	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("transaction reverted")
	// ErrWrongActor is returned when a call names an acting account other
	// than the signing key.
	ErrWrongActor = errors.New("acting account is not the signer")
)

// Backend is the subset of ethclient.Client the transactor needs
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ChainOptions configure a Chain
type ChainOptions struct {
	ChainID        *big.Int
	GasLimit       uint64
	ReceiptTimeout time.Duration
}

// Chain signs and submits contract calls with one key. Transactions are sent
// one at a time so the pending nonce is never reused.
type Chain struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	opts    ChainOptions

	mu sync.Mutex
}

// NewChain wraps backend with the signing key.
func NewChain(backend Backend, key *ecdsa.PrivateKey, opts ChainOptions) *Chain {
	if opts.GasLimit == 0 {
		opts.GasLimit = 300_000
	}
	if opts.ReceiptTimeout == 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	return &Chain{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		opts:    opts,
	}
}

// DialChain connects to the first endpoint that answers and checks it serves
// chainID.
func DialChain(ctx context.Context, endpoints []string, keyHex string, opts ChainOptions) (*Chain, *ethclient.Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid private key: %w", err)
	}

	var lastErr error
	for i, endpoint := range endpoints {
		logrus.Infof("🔗 Trying RPC endpoint %d/%d", i+1, len(endpoints))
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = err
			logrus.Warnf("❌ Dial failed: %v", err)
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		id, err := client.ChainID(checkCtx)
		cancel()
		if err != nil {
			lastErr = err
			logrus.Warnf("❌ ChainID check failed: %v", err)
			client.Close()
			continue
		}
		if opts.ChainID != nil && opts.ChainID.Sign() > 0 && id.Cmp(opts.ChainID) != 0 {
			client.Close()
			return nil, nil, fmt.Errorf("endpoint serves chain %s, configured %s", id, opts.ChainID)
		}
		opts.ChainID = id

		chain := NewChain(client, key, opts)
		logrus.Infof("✅ Connected to chain %s as %s", id, chain.From().Hex())
		return chain, client, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no rpc endpoints configured")
	}
	return nil, nil, fmt.Errorf("all RPC endpoints failed: %w", lastErr)
}

// From is the signer's address, the dispatcher's custodian in evm mode.
func (c *Chain) From() common.Address {
	return c.from
}

func (c *Chain) requireSigner(actor common.Address) error {
	if actor != c.from {
		return fmt.Errorf("%w: %s", ErrWrongActor, actor.Hex())
	}
	return nil
}

func (c *Chain) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
}

// transact signs a legacy EIP-155 transaction to `to`, sends it and waits for
// the receipt. Errors after a successful send are *dispatcher.PendingError.
func (c *Chain) transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	// 20% headroom over the suggestion
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(120)), big.NewInt(100))

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      c.opts.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.opts.ChainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	logrus.Debugf("🚀 Sent %s to %s (nonce %d)", signed.Hash().Hex(), to.Hex(), nonce)

	// From here on the transaction may execute whatever the caller does, so
	// the wait ignores its cancellation and any failure is reported as
	// pending rather than failed.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ReceiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, signed)
	if err != nil {
		return nil, &dispatcher.PendingError{TxHash: signed.Hash(), Err: fmt.Errorf("waiting for receipt: %w", err)}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, signed.Hash().Hex())
	}
	return receipt, nil
}
