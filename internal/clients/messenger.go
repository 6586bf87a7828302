package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

const tokenMessengerABI = `[
	{"type":"function","name":"depositForBurn","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"destinationDomain","type":"uint32"},{"name":"mintRecipient","type":"bytes32"},{"name":"burnToken","type":"address"}],"outputs":[{"name":"_nonce","type":"uint64"}]},
	{"type":"function","name":"depositForBurnWithCaller","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"destinationDomain","type":"uint32"},{"name":"mintRecipient","type":"bytes32"},{"name":"burnToken","type":"address"},{"name":"destinationCaller","type":"bytes32"}],"outputs":[{"name":"nonce","type":"uint64"}]},
	{"type":"event","name":"DepositForBurn","anonymous":false,"inputs":[{"name":"nonce","type":"uint64","indexed":true},{"name":"burnToken","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"depositor","type":"address","indexed":true},{"name":"mintRecipient","type":"bytes32","indexed":false},{"name":"destinationDomain","type":"uint32","indexed":false},{"name":"destinationTokenMessenger","type":"bytes32","indexed":false},{"name":"destinationCaller","type":"bytes32","indexed":false}]}
]`

const tokenMessengerWithMetadataABI = `[
	{"type":"function","name":"depositForBurn","stateMutability":"nonpayable","inputs":[{"name":"channel","type":"uint64"},{"name":"destinationBech32Prefix","type":"bytes32"},{"name":"destinationRecipient","type":"bytes32"},{"name":"amount","type":"uint256"},{"name":"mintRecipient","type":"bytes32"},{"name":"burnToken","type":"address"},{"name":"memo","type":"bytes"}],"outputs":[{"name":"nonce","type":"uint64"}]},
	{"type":"function","name":"depositForBurnWithCaller","stateMutability":"nonpayable","inputs":[{"name":"channel","type":"uint64"},{"name":"destinationBech32Prefix","type":"bytes32"},{"name":"destinationRecipient","type":"bytes32"},{"name":"amount","type":"uint256"},{"name":"mintRecipient","type":"bytes32"},{"name":"burnToken","type":"address"},{"name":"destinationCaller","type":"bytes32"},{"name":"memo","type":"bytes"}],"outputs":[{"name":"nonce","type":"uint64"}]}
]`

var (
	messengerABI         = mustParseABI(tokenMessengerABI)
	metadataMessengerABI = mustParseABI(tokenMessengerWithMetadataABI)

	depositForBurnTopic = messengerABI.Events["DepositForBurn"].ID
)

// TokenMessenger calls depositForBurn on the base messenger. Tokens are pulled
// from the chain's signing account.
type TokenMessenger struct {
	chain   *Chain
	address common.Address
}

var _ dispatcher.Messenger = (*TokenMessenger)(nil)

// NewTokenMessenger returns a handle on the messenger at address.
func NewTokenMessenger(chain *Chain, address common.Address) *TokenMessenger {
	return &TokenMessenger{chain: chain, address: address}
}

func (m *TokenMessenger) Address() common.Address {
	return m.address
}

func (m *TokenMessenger) DepositForBurn(ctx context.Context, amount *big.Int, destinationDomain uint32, mintRecipient common.Hash, burnToken common.Address) (dispatcher.Receipt, error) {
	data, err := messengerABI.Pack("depositForBurn", amount, destinationDomain, [32]byte(mintRecipient), burnToken)
	if err != nil {
		return dispatcher.Receipt{}, fmt.Errorf("pack depositForBurn: %w", err)
	}
	return deposit(ctx, m.chain, m.address, data)
}

func (m *TokenMessenger) DepositForBurnWithCaller(ctx context.Context, amount *big.Int, destinationDomain uint32, mintRecipient common.Hash, burnToken common.Address, destinationCaller common.Hash) (dispatcher.Receipt, error) {
	data, err := messengerABI.Pack("depositForBurnWithCaller", amount, destinationDomain, [32]byte(mintRecipient), burnToken, [32]byte(destinationCaller))
	if err != nil {
		return dispatcher.Receipt{}, fmt.Errorf("pack depositForBurnWithCaller: %w", err)
	}
	return deposit(ctx, m.chain, m.address, data)
}

// MetadataMessenger calls the forwarding variant of depositForBurn.
type MetadataMessenger struct {
	chain   *Chain
	address common.Address
}

var _ dispatcher.MetadataMessenger = (*MetadataMessenger)(nil)

// NewMetadataMessenger returns a handle on the metadata messenger at address.
func NewMetadataMessenger(chain *Chain, address common.Address) *MetadataMessenger {
	return &MetadataMessenger{chain: chain, address: address}
}

func (m *MetadataMessenger) Address() common.Address {
	return m.address
}

func (m *MetadataMessenger) DepositForBurnWithMetadata(ctx context.Context, fwd dispatcher.ForwardingInstructions, amount *big.Int, mintRecipient common.Hash, burnToken common.Address) (dispatcher.Receipt, error) {
	prefix, recipient, err := forwardingWords(fwd)
	if err != nil {
		return dispatcher.Receipt{}, err
	}
	data, err := metadataMessengerABI.Pack("depositForBurn",
		fwd.Channel, prefix, recipient, amount, [32]byte(mintRecipient), burnToken, memoBytes(fwd.Memo))
	if err != nil {
		return dispatcher.Receipt{}, fmt.Errorf("pack depositForBurn: %w", err)
	}
	return deposit(ctx, m.chain, m.address, data)
}

func (m *MetadataMessenger) DepositForBurnWithMetadataAndCaller(ctx context.Context, fwd dispatcher.ForwardingInstructions, amount *big.Int, mintRecipient common.Hash, burnToken common.Address, destinationCaller common.Hash) (dispatcher.Receipt, error) {
	prefix, recipient, err := forwardingWords(fwd)
	if err != nil {
		return dispatcher.Receipt{}, err
	}
	data, err := metadataMessengerABI.Pack("depositForBurnWithCaller",
		fwd.Channel, prefix, recipient, amount, [32]byte(mintRecipient), burnToken, [32]byte(destinationCaller), memoBytes(fwd.Memo))
	if err != nil {
		return dispatcher.Receipt{}, fmt.Errorf("pack depositForBurnWithCaller: %w", err)
	}
	return deposit(ctx, m.chain, m.address, data)
}

// forwardingWords packs the bech32 prefix left-aligned and the recipient
// right-aligned into 32-byte words.
func forwardingWords(fwd dispatcher.ForwardingInstructions) (prefix, recipient [32]byte, err error) {
	if len(fwd.DestinationBech32) > 32 {
		return prefix, recipient, fmt.Errorf("%w: bech32 prefix longer than 32 bytes", dispatcher.ErrInvalidForwarding)
	}
	if len(fwd.DestinationRecipient) > 32 {
		return prefix, recipient, fmt.Errorf("%w: recipient longer than 32 bytes", dispatcher.ErrInvalidForwarding)
	}
	copy(prefix[:], fwd.DestinationBech32)
	copy(recipient[32-len(fwd.DestinationRecipient):], fwd.DestinationRecipient)
	return prefix, recipient, nil
}

func memoBytes(memo []byte) []byte {
	if memo == nil {
		return []byte{}
	}
	return memo
}

func deposit(ctx context.Context, chain *Chain, messenger common.Address, data []byte) (dispatcher.Receipt, error) {
	receipt, err := chain.transact(ctx, messenger, data)
	if err != nil {
		return dispatcher.Receipt{}, err
	}
	nonce, err := burnNonce(receipt)
	if err != nil {
		// Mined, but the message cannot be tracked without its nonce.
		return dispatcher.Receipt{}, &dispatcher.PendingError{TxHash: receipt.TxHash, Err: err}
	}
	return dispatcher.Receipt{TxHash: receipt.TxHash, Nonce: nonce}, nil
}

// burnNonce reads the message nonce from the DepositForBurn event. With the
// metadata messenger the event comes from the base messenger it calls.
func burnNonce(receipt *types.Receipt) (uint64, error) {
	for _, l := range receipt.Logs {
		if len(l.Topics) > 1 && l.Topics[0] == depositForBurnTopic {
			return new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(), nil
		}
	}
	return 0, fmt.Errorf("no DepositForBurn event in %s", receipt.TxHash.Hex())
}
