package clients

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

var chainID = big.NewInt(11155111)

// fakeBackend mines every transaction instantly, except those sent to an
// address in unmined.
type fakeBackend struct {
	mu         sync.Mutex
	sent       []*types.Transaction
	status     uint64
	logs       []*types.Log
	callResult []byte
	sendErr    error
	unmined    map[common.Address]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{status: types.ReceiptStatusSuccessful}
}

func (b *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return b.callResult, nil
}

func (b *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if tx.Hash() == hash && !b.unmined[*tx.To()] {
			return &types.Receipt{Status: b.status, TxHash: hash, Logs: b.logs, BlockNumber: big.NewInt(1)}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) last(t *testing.T) *types.Transaction {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.sent)
	return b.sent[len(b.sent)-1]
}

func newTestChain(t *testing.T) (*Chain, *fakeBackend) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := newFakeBackend()
	return NewChain(backend, key, ChainOptions{ChainID: chainID, ReceiptTimeout: 5 * time.Second}), backend
}

func decodeCall(t *testing.T, parsed abi.ABI, data []byte) (string, []interface{}) {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 4)
	m, err := parsed.MethodById(data[:4])
	require.NoError(t, err)
	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return m.Name, args
}

var (
	tokenAddr = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestERC20ActsAsSigner(t *testing.T) {
	chain, backend := newTestChain(t)
	token := NewERC20(chain, tokenAddr)
	ctx := context.Background()
	custodian := chain.From()

	require.NoError(t, token.Transfer(ctx, custodian, bob, big.NewInt(5)))
	tx := backend.last(t)
	assert.Equal(t, tokenAddr, *tx.To())
	sender, err := types.Sender(types.NewEIP155Signer(chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, custodian, sender)
	assert.Equal(t, uint64(0), tx.Nonce())
	assert.Equal(t, "1200000000", tx.GasPrice().String())

	name, args := decodeCall(t, erc20ABI, tx.Data())
	assert.Equal(t, "transfer", name)
	assert.Equal(t, bob, args[0])
	assert.Equal(t, "5", args[1].(*big.Int).String())

	require.NoError(t, token.TransferFrom(ctx, custodian, alice, custodian, big.NewInt(7)))
	tx = backend.last(t)
	assert.Equal(t, uint64(1), tx.Nonce())
	name, args = decodeCall(t, erc20ABI, tx.Data())
	assert.Equal(t, "transferFrom", name)
	assert.Equal(t, alice, args[0])
	assert.Equal(t, custodian, args[1])

	require.NoError(t, token.Approve(ctx, custodian, bob, dispatcher.MaxUint256()))
	name, args = decodeCall(t, erc20ABI, backend.last(t).Data())
	assert.Equal(t, "approve", name)
	assert.Equal(t, dispatcher.MaxUint256().String(), args[1].(*big.Int).String())
}

func TestERC20RejectsOtherActors(t *testing.T) {
	chain, backend := newTestChain(t)
	token := NewERC20(chain, tokenAddr)
	ctx := context.Background()

	assert.ErrorIs(t, token.Transfer(ctx, alice, bob, big.NewInt(1)), ErrWrongActor)
	assert.ErrorIs(t, token.TransferFrom(ctx, alice, alice, bob, big.NewInt(1)), ErrWrongActor)
	assert.ErrorIs(t, token.Approve(ctx, alice, bob, big.NewInt(1)), ErrWrongActor)
	assert.Empty(t, backend.sent)
}

func TestERC20Permit(t *testing.T) {
	chain, backend := newTestChain(t)
	token := NewERC20(chain, tokenAddr)

	r := common.HexToHash("0x01")
	s := common.HexToHash("0x02")
	require.NoError(t, token.Permit(context.Background(), alice, chain.From(), big.NewInt(100), big.NewInt(1_900_000_000), 27, r, s))

	name, args := decodeCall(t, erc20ABI, backend.last(t).Data())
	assert.Equal(t, "permit", name)
	assert.Equal(t, alice, args[0])
	assert.Equal(t, uint8(27), args[4])
	assert.Equal(t, [32]byte(r), args[5])
}

func TestERC20BalanceOf(t *testing.T) {
	chain, backend := newTestChain(t)
	out, err := erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	backend.callResult = out

	balance, err := NewERC20(chain, tokenAddr).BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "42", balance.String())
}

func TestTransactFailures(t *testing.T) {
	t.Run("reverted", func(t *testing.T) {
		chain, backend := newTestChain(t)
		backend.status = types.ReceiptStatusFailed
		err := NewERC20(chain, tokenAddr).Transfer(context.Background(), chain.From(), bob, big.NewInt(1))
		assert.ErrorIs(t, err, ErrReverted)
	})

	t.Run("send error", func(t *testing.T) {
		chain, backend := newTestChain(t)
		backend.sendErr = errors.New("nonce too low")
		err := NewERC20(chain, tokenAddr).Transfer(context.Background(), chain.From(), bob, big.NewInt(1))
		assert.ErrorContains(t, err, "nonce too low")
	})
}

func TestTransactOutcomeUnknown(t *testing.T) {
	t.Run("receipt never arrives", func(t *testing.T) {
		chain, backend := newTestChain(t)
		chain.opts.ReceiptTimeout = 300 * time.Millisecond
		backend.unmined = map[common.Address]bool{tokenAddr: true}

		err := NewERC20(chain, tokenAddr).Transfer(context.Background(), chain.From(), bob, big.NewInt(1))
		assert.ErrorIs(t, err, dispatcher.ErrOutcomeUnknown)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		hash, ok := dispatcher.PendingTx(err)
		require.True(t, ok)
		assert.Equal(t, backend.last(t).Hash(), hash)
	})

	t.Run("cancelled caller still gets the receipt", func(t *testing.T) {
		chain, _ := newTestChain(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.NoError(t, NewERC20(chain, tokenAddr).Transfer(ctx, chain.From(), bob, big.NewInt(1)))
	})

	t.Run("reverted is not pending", func(t *testing.T) {
		chain, backend := newTestChain(t)
		backend.status = types.ReceiptStatusFailed
		err := NewERC20(chain, tokenAddr).Transfer(context.Background(), chain.From(), bob, big.NewInt(1))
		assert.NotErrorIs(t, err, dispatcher.ErrOutcomeUnknown)
	})
}

func TestTransferWithUnminedBurnIsNotRefunded(t *testing.T) {
	chain, backend := newTestChain(t)
	chain.opts.ReceiptTimeout = 300 * time.Millisecond
	messengerAddr := common.HexToAddress("0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5")
	backend.unmined = map[common.Address]bool{messengerAddr: true}

	ctx := context.Background()
	feeUpdater := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	user := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	roles, err := dispatcher.NewRoleRegistry(ctx, dispatcher.RoleState{Owner: alice, FeeUpdater: feeUpdater, Collector: bob}, nil)
	require.NoError(t, err)
	fees, err := dispatcher.NewFeeSchedule(ctx, roles, nil, 0)
	require.NoError(t, err)
	require.NoError(t, fees.SetFee(ctx, feeUpdater, 3, 10, big.NewInt(0)))

	d, err := dispatcher.New(ctx, dispatcher.Options{
		BurnToken: tokenAddr,
		Custodian: chain.From(),
	}, dispatcher.Collaborators{
		Messenger:         NewTokenMessenger(chain, messengerAddr),
		MetadataMessenger: NewMetadataMessenger(chain, common.HexToAddress("0x02")),
		Asset:             NewERC20(chain, tokenAddr),
		Fees:              fees,
		Roles:             roles,
	})
	require.NoError(t, err)

	_, err = d.Transfer(ctx, user, dispatcher.TransferRequest{
		Route:             dispatcher.RouteDirect,
		Amount:            big.NewInt(20_000_000),
		DestinationDomain: 3,
		MintRecipient:     common.HexToHash("0xbeef"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, dispatcher.ErrOutcomeUnknown)
	assert.Equal(t, dispatcher.KindPending, dispatcher.KindOf(err))

	backend.mu.Lock()
	sent := append([]*types.Transaction(nil), backend.sent...)
	backend.mu.Unlock()

	var methods []string
	for _, tx := range sent {
		parsed := erc20ABI
		if *tx.To() == messengerAddr {
			parsed = messengerABI
		}
		name, _ := decodeCall(t, parsed, tx.Data())
		methods = append(methods, name)
	}
	// No refund transfer follows the burn.
	assert.Equal(t, []string{"transferFrom", "approve", "depositForBurn"}, methods)

	hash, ok := dispatcher.PendingTx(err)
	require.True(t, ok)
	assert.Equal(t, sent[2].Hash(), hash)
	assert.Equal(t, "20000000", d.Ledger().Frozen(tokenAddr).String())
}

func burnLog(nonce int64) *types.Log {
	return &types.Log{Topics: []common.Hash{depositForBurnTopic, common.BigToHash(big.NewInt(nonce))}}
}

func TestTokenMessenger(t *testing.T) {
	chain, backend := newTestChain(t)
	backend.logs = []*types.Log{{Topics: []common.Hash{common.HexToHash("0xdead")}}, burnLog(77)}
	messengerAddr := common.HexToAddress("0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5")
	m := NewTokenMessenger(chain, messengerAddr)
	recipient := common.HexToHash("0xbeef")
	caller := common.HexToHash("0xca11")

	receipt, err := m.DepositForBurn(context.Background(), big.NewInt(1000), 3, recipient, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), receipt.Nonce)
	assert.Equal(t, backend.last(t).Hash(), receipt.TxHash)

	name, args := decodeCall(t, messengerABI, backend.last(t).Data())
	assert.Equal(t, "depositForBurn", name)
	assert.Equal(t, uint32(3), args[1])
	assert.Equal(t, [32]byte(recipient), args[2])
	assert.Equal(t, tokenAddr, args[3])

	_, err = m.DepositForBurnWithCaller(context.Background(), big.NewInt(1000), 3, recipient, tokenAddr, caller)
	require.NoError(t, err)
	name, args = decodeCall(t, messengerABI, backend.last(t).Data())
	assert.Equal(t, "depositForBurnWithCaller", name)
	assert.Equal(t, [32]byte(caller), args[4])
}

func TestTokenMessengerWithoutEvent(t *testing.T) {
	chain, _ := newTestChain(t)
	m := NewTokenMessenger(chain, common.HexToAddress("0x01"))
	_, err := m.DepositForBurn(context.Background(), big.NewInt(1), 3, common.HexToHash("0x01"), tokenAddr)
	assert.ErrorContains(t, err, "no DepositForBurn event")
	assert.ErrorIs(t, err, dispatcher.ErrOutcomeUnknown)
}

func TestMetadataMessenger(t *testing.T) {
	chain, backend := newTestChain(t)
	backend.logs = []*types.Log{burnLog(5)}
	m := NewMetadataMessenger(chain, common.HexToAddress("0x02"))
	fwd := dispatcher.ForwardingInstructions{
		Channel:              21,
		DestinationBech32:    "osmo",
		DestinationRecipient: common.HexToAddress("0x00000000000000000000000000000000000000c7").Bytes(),
	}

	receipt, err := m.DepositForBurnWithMetadata(context.Background(), fwd, big.NewInt(500), common.HexToHash("0x0a"), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), receipt.Nonce)

	name, args := decodeCall(t, metadataMessengerABI, backend.last(t).Data())
	assert.Equal(t, "depositForBurn", name)
	assert.Equal(t, uint64(21), args[0])
	prefix := args[1].([32]byte)
	assert.Equal(t, "osmo", string(prefix[:4]))
	recipient := args[2].([32]byte)
	assert.Equal(t, byte(0xc7), recipient[31])
	assert.Equal(t, []byte{}, args[6])

	fwd.Memo = []byte("hi")
	_, err = m.DepositForBurnWithMetadataAndCaller(context.Background(), fwd, big.NewInt(500), common.HexToHash("0x0a"), tokenAddr, common.HexToHash("0x0b"))
	require.NoError(t, err)
	name, args = decodeCall(t, metadataMessengerABI, backend.last(t).Data())
	assert.Equal(t, "depositForBurnWithCaller", name)
	assert.Equal(t, []byte("hi"), args[7])
}

func TestForwardingWordsTooLong(t *testing.T) {
	_, _, err := forwardingWords(dispatcher.ForwardingInstructions{
		DestinationBech32:    "p",
		DestinationRecipient: make([]byte, 33),
	})
	assert.ErrorIs(t, err, dispatcher.ErrInvalidForwarding)
}

func TestERC20Assets(t *testing.T) {
	chain, _ := newTestChain(t)
	assets := ERC20Assets{Chain: chain}

	asset, err := assets.Asset(tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, asset.(*ERC20).Address())

	_, err = assets.Asset(common.Address{})
	assert.ErrorIs(t, err, dispatcher.ErrZeroAddress)
}

func TestNATSPublishing(t *testing.T) {
	published := map[string][]byte{}
	c := &NATSClient{prefix: "dispatcher", publish: func(subject string, data []byte) error {
		published[subject] = data
		return nil
	}}

	s := &dispatcher.Settlement{ID: "abc", Route: dispatcher.RouteDirect, SourceDomain: 0, Amount: big.NewInt(10)}
	require.NoError(t, c.Emit(context.Background(), s))
	data, ok := published["dispatcher.0.direct.abc"]
	require.True(t, ok)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "abc", decoded["id"])

	w := &dispatcher.FeeWithdrawal{ID: "w1", Amount: big.NewInt(3)}
	require.NoError(t, c.RecordWithdrawal(context.Background(), w))
	assert.Contains(t, published, "dispatcher.withdrawals.w1")

	c.publish = func(string, []byte) error { return errors.New("no responders") }
	assert.ErrorContains(t, c.Emit(context.Background(), s), "no responders")
}
