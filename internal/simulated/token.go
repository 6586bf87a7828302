// Package simulated provides in-memory versions of the dispatcher's on-chain
// collaborators. The dispatcher runs against it in "simulated" mode and in
// tests.
package simulated

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

var (
	ErrInsufficientBalance   = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrPermitExpired         = errors.New("permit expired")
	ErrInvalidSignature      = errors.New("invalid permit signature")
)

// Op names a token operation that can be made to fail.
type Op string

const (
	OpTransfer     Op = "transfer"
	OpTransferFrom Op = "transferFrom"
	OpApprove      Op = "approve"
	OpBalanceOf    Op = "balanceOf"
	OpPermit       Op = "permit"
)

var (
	permitTypeHash = crypto.Keccak256Hash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	maxAllowance   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Token is an ERC-20 ledger with EIP-2612 permits.
type Token struct {
	Address common.Address
	Name    string
	Version string
	ChainID *big.Int
	// Now is the clock used for permit deadlines.
	Now func() time.Time

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	nonces     map[common.Address]uint64
	failures   map[Op][]error
	supply     *big.Int
}

func NewToken(address common.Address, name string, chainID int64) *Token {
	return &Token{
		Address:    address,
		Name:       name,
		Version:    "2",
		ChainID:    big.NewInt(chainID),
		Now:        time.Now,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		nonces:     make(map[common.Address]uint64),
		failures:   make(map[Op][]error),
		supply:     new(big.Int),
	}
}

// FailNext makes the next call of op return err. Calls queue up.
func (t *Token) FailNext(op Op, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[op] = append(t.failures[op], err)
}

// injected fails like an RPC client would on a finished context, then pops
// any error queued for op.
func (t *Token) injected(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q := t.failures[op]
	if len(q) == 0 {
		return nil
	}
	t.failures[op] = q[1:]
	return q[0]
}

func (t *Token) balance(who common.Address) *big.Int {
	b, ok := t.balances[who]
	if !ok {
		b = new(big.Int)
		t.balances[who] = b
	}
	return b
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	a, ok := m[spender]
	if !ok {
		a = new(big.Int)
		m[spender] = a
	}
	return a
}

// Mint credits amount to who.
func (t *Token) Mint(who common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance(who).Add(t.balance(who), amount)
	t.supply.Add(t.supply, amount)
}

// Burn destroys amount held by who.
func (t *Token) Burn(who common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.balance(who)
	if b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	t.supply.Sub(t.supply, amount)
	return nil
}

// Balance is BalanceOf without context or failure injection.
func (t *Token) Balance(who common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(who))
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowance(owner, spender))
}

func (t *Token) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.supply)
}

func (t *Token) Nonce(owner common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nonces[owner]
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	b := t.balance(from)
	if b.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, b, amount)
	}
	b.Sub(b, amount)
	t.balance(to).Add(t.balance(to), amount)
	return nil
}

func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.injected(ctx, OpTransfer); err != nil {
		return err
	}
	return t.move(from, to, amount)
}

func (t *Token) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.injected(ctx, OpTransferFrom); err != nil {
		return err
	}
	a := t.allowance(from, spender)
	if a.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s for %s", ErrInsufficientAllowance, a, spender.Hex())
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	if a.Cmp(maxAllowance) != 0 {
		a.Sub(a, amount)
	}
	return nil
}

func (t *Token) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.injected(ctx, OpApprove); err != nil {
		return err
	}
	t.allowance(owner, spender).Set(amount)
	return nil
}

func (t *Token) BalanceOf(ctx context.Context, who common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.injected(ctx, OpBalanceOf); err != nil {
		return nil, err
	}
	return new(big.Int).Set(t.balance(who)), nil
}

// DomainSeparator is the EIP-712 domain of this token.
func (t *Token) DomainSeparator() common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(t.Name)),
		crypto.Keccak256([]byte(t.Version)),
		common.LeftPadBytes(t.ChainID.Bytes(), 32),
		common.LeftPadBytes(t.Address.Bytes(), 32),
	)
}

// PermitDigest is the hash an owner signs to approve spender for value.
func (t *Token) PermitDigest(owner, spender common.Address, value *big.Int, nonce uint64, deadline *big.Int) common.Hash {
	structHash := crypto.Keccak256(
		permitTypeHash.Bytes(),
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		common.LeftPadBytes(value.Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32),
		common.LeftPadBytes(deadline.Bytes(), 32),
	)
	return crypto.Keccak256Hash([]byte("\x19\x01"), t.DomainSeparator().Bytes(), structHash)
}

func (t *Token) Permit(ctx context.Context, owner, spender common.Address, value, deadline *big.Int, v uint8, r, s common.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.injected(ctx, OpPermit); err != nil {
		return err
	}
	if deadline == nil || deadline.Cmp(big.NewInt(t.Now().Unix())) < 0 {
		return ErrPermitExpired
	}
	if v >= 27 {
		v -= 27
	}

	digest := t.PermitDigest(owner, spender, value, t.nonces[owner], deadline)
	sig := make([]byte, 65)
	copy(sig[:32], r.Bytes())
	copy(sig[32:64], s.Bytes())
	sig[64] = v

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != owner {
		return ErrInvalidSignature
	}

	t.nonces[owner]++
	t.allowance(owner, spender).Set(value)
	return nil
}

// SignPermit signs a permit for the owner of key at the owner's current nonce.
func (t *Token) SignPermit(key *ecdsa.PrivateKey, spender common.Address, value, deadline *big.Int) (*dispatcher.Permit, error) {
	owner := crypto.PubkeyToAddress(key.PublicKey)
	digest := t.PermitDigest(owner, spender, value, t.Nonce(owner), deadline)

	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	return &dispatcher.Permit{
		Deadline: new(big.Int).Set(deadline),
		V:        sig[64] + 27,
		R:        common.BytesToHash(sig[:32]),
		S:        common.BytesToHash(sig[32:64]),
	}, nil
}
