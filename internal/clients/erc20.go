package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

const erc20PermitABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"permit","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"},{"name":"value","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"outputs":[]}
]`

var erc20ABI = mustParseABI(erc20PermitABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ERC20 drives an EIP-2612 token through the chain's signing key. The key's
// address is the only account it can act for.
type ERC20 struct {
	chain   *Chain
	address common.Address
}

var (
	_ dispatcher.BurnAsset   = (*ERC20)(nil)
	_ dispatcher.PermitAsset = (*ERC20)(nil)
)

// NewERC20 returns a handle on the token at address.
func NewERC20(chain *Chain, address common.Address) *ERC20 {
	return &ERC20{chain: chain, address: address}
}

// Address is the token contract.
func (t *ERC20) Address() common.Address {
	return t.address
}

func (t *ERC20) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	if err := t.chain.requireSigner(spender); err != nil {
		return err
	}
	return t.send(ctx, "transferFrom", from, to, amount)
}

func (t *ERC20) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if err := t.chain.requireSigner(from); err != nil {
		return err
	}
	return t.send(ctx, "transfer", to, amount)
}

func (t *ERC20) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	if err := t.chain.requireSigner(owner); err != nil {
		return err
	}
	return t.send(ctx, "approve", spender, amount)
}

// Permit submits the holder's signature. Anyone may relay it, so there is no
// actor check.
func (t *ERC20) Permit(ctx context.Context, owner, spender common.Address, value, deadline *big.Int, v uint8, r, s common.Hash) error {
	return t.send(ctx, "permit", owner, spender, value, deadline, v, [32]byte(r), [32]byte(s))
}

func (t *ERC20) BalanceOf(ctx context.Context, who common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", who)
	if err != nil {
		return nil, err
	}
	out, err := t.chain.call(ctx, t.address, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return values[0].(*big.Int), nil
}

func (t *ERC20) send(ctx context.Context, method string, args ...interface{}) error {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	if _, err := t.chain.transact(ctx, t.address, data); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// ERC20Assets resolves any token address to an ERC20 handle on one chain.
// Which tokens may be used is the dispatcher's allow-list decision.
type ERC20Assets struct {
	Chain *Chain
}

func (a ERC20Assets) Asset(token common.Address) (dispatcher.BurnAsset, error) {
	if token == (common.Address{}) {
		return nil, dispatcher.ErrZeroAddress
	}
	return NewERC20(a.Chain, token), nil
}
