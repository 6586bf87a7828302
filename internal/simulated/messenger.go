package simulated

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

// BurnCall records one messenger invocation.
type BurnCall struct {
	Method            string
	Amount            *big.Int
	DestinationDomain uint32
	MintRecipient     common.Hash
	BurnToken         common.Address
	DestinationCaller common.Hash
	Forwarding        *dispatcher.ForwardingInstructions
}

// burner pulls the burn amount from sender and destroys it, the way the
// on-chain messenger does through its local minter.
type burner struct {
	address common.Address
	sender  common.Address
	tokens  map[common.Address]*Token

	mu       sync.Mutex
	calls    []BurnCall
	nonce    uint64
	failures []error
}

func newBurner(address, sender common.Address, tokens ...*Token) *burner {
	b := &burner{address: address, sender: sender, tokens: make(map[common.Address]*Token)}
	for _, t := range tokens {
		b.tokens[t.Address] = t
	}
	return b
}

func (b *burner) Address() common.Address { return b.address }

// FailNext makes the next deposit return err without touching funds.
func (b *burner) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, err)
}

// Calls returns the successful deposits in order.
func (b *burner) Calls() []BurnCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BurnCall(nil), b.calls...)
}

func (b *burner) deposit(ctx context.Context, call BurnCall) (dispatcher.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.failures) > 0 {
		err := b.failures[0]
		b.failures = b.failures[1:]
		return dispatcher.Receipt{}, err
	}

	token, ok := b.tokens[call.BurnToken]
	if !ok {
		return dispatcher.Receipt{}, dispatcher.ErrTokenNotSupported
	}
	if err := token.TransferFrom(ctx, b.address, b.sender, b.address, call.Amount); err != nil {
		return dispatcher.Receipt{}, err
	}
	if err := token.Burn(b.address, call.Amount); err != nil {
		return dispatcher.Receipt{}, err
	}

	nonce := b.nonce
	b.nonce++
	b.calls = append(b.calls, call)

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return dispatcher.Receipt{
		TxHash: crypto.Keccak256Hash(b.address.Bytes(), n[:]),
		Nonce:  nonce,
	}, nil
}

// Messenger is an in-memory TokenMessenger.
type Messenger struct {
	*burner
}

// NewMessenger burns tokens owned by sender, normally the dispatcher
// custodian.
func NewMessenger(address, sender common.Address, tokens ...*Token) *Messenger {
	return &Messenger{burner: newBurner(address, sender, tokens...)}
}

func (m *Messenger) DepositForBurn(ctx context.Context, amount *big.Int, destinationDomain uint32, mintRecipient common.Hash, burnToken common.Address) (dispatcher.Receipt, error) {
	return m.deposit(ctx, BurnCall{
		Method:            "depositForBurn",
		Amount:            new(big.Int).Set(amount),
		DestinationDomain: destinationDomain,
		MintRecipient:     mintRecipient,
		BurnToken:         burnToken,
	})
}

func (m *Messenger) DepositForBurnWithCaller(ctx context.Context, amount *big.Int, destinationDomain uint32, mintRecipient common.Hash, burnToken common.Address, destinationCaller common.Hash) (dispatcher.Receipt, error) {
	return m.deposit(ctx, BurnCall{
		Method:            "depositForBurnWithCaller",
		Amount:            new(big.Int).Set(amount),
		DestinationDomain: destinationDomain,
		MintRecipient:     mintRecipient,
		BurnToken:         burnToken,
		DestinationCaller: destinationCaller,
	})
}

// MetadataMessenger is an in-memory TokenMessengerWithMetadata. Every deposit
// targets its forwarding domain.
type MetadataMessenger struct {
	*burner
	domain uint32
}

func NewMetadataMessenger(address, sender common.Address, forwardingDomain uint32, tokens ...*Token) *MetadataMessenger {
	return &MetadataMessenger{burner: newBurner(address, sender, tokens...), domain: forwardingDomain}
}

func (m *MetadataMessenger) DepositForBurnWithMetadata(ctx context.Context, fwd dispatcher.ForwardingInstructions, amount *big.Int, mintRecipient common.Hash, burnToken common.Address) (dispatcher.Receipt, error) {
	return m.deposit(ctx, BurnCall{
		Method:            "depositForBurn",
		Amount:            new(big.Int).Set(amount),
		DestinationDomain: m.domain,
		MintRecipient:     mintRecipient,
		BurnToken:         burnToken,
		Forwarding:        &fwd,
	})
}

func (m *MetadataMessenger) DepositForBurnWithMetadataAndCaller(ctx context.Context, fwd dispatcher.ForwardingInstructions, amount *big.Int, mintRecipient common.Hash, burnToken common.Address, destinationCaller common.Hash) (dispatcher.Receipt, error) {
	return m.deposit(ctx, BurnCall{
		Method:            "depositForBurnWithCaller",
		Amount:            new(big.Int).Set(amount),
		DestinationDomain: m.domain,
		MintRecipient:     mintRecipient,
		BurnToken:         burnToken,
		DestinationCaller: destinationCaller,
		Forwarding:        &fwd,
	})
}

// Assets resolves fast-transfer tokens by address.
type Assets map[common.Address]*Token

func (a Assets) Asset(token common.Address) (dispatcher.BurnAsset, error) {
	t, ok := a[token]
	if !ok {
		return nil, dispatcher.ErrTokenNotSupported
	}
	return t, nil
}
