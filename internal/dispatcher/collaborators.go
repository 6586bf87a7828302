package dispatcher

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt identifies the collaborator call that carried a transfer.
type Receipt struct {
	TxHash common.Hash `json:"tx_hash"`
	Nonce  uint64      `json:"nonce"`
}

// Messenger is the base burn/mint token messenger. Funds are pulled from the
// account the messenger acts for, which is the dispatcher's custodian.
type Messenger interface {
	Address() common.Address
	DepositForBurn(ctx context.Context, amount *big.Int, destinationDomain uint32, mintRecipient common.Hash, burnToken common.Address) (Receipt, error)
	DepositForBurnWithCaller(ctx context.Context, amount *big.Int, destinationDomain uint32, mintRecipient common.Hash, burnToken common.Address, destinationCaller common.Hash) (Receipt, error)
}

// ForwardingInstructions tell the metadata messenger where to relay funds
// after they are minted on the forwarding domain.
type ForwardingInstructions struct {
	Channel              uint64 `json:"channel"`
	DestinationBech32    string `json:"destination_bech32_prefix"`
	DestinationRecipient []byte `json:"destination_recipient"`
	Memo                 []byte `json:"memo,omitempty"`
}

func (f *ForwardingInstructions) validate() error {
	if f == nil || f.DestinationBech32 == "" || len(f.DestinationRecipient) == 0 {
		return ErrInvalidForwarding
	}
	return nil
}

// MetadataMessenger is the messenger variant that carries forwarding
// instructions to the sub-network gateway domain.
type MetadataMessenger interface {
	Address() common.Address
	DepositForBurnWithMetadata(ctx context.Context, fwd ForwardingInstructions, amount *big.Int, mintRecipient common.Hash, burnToken common.Address) (Receipt, error)
	DepositForBurnWithMetadataAndCaller(ctx context.Context, fwd ForwardingInstructions, amount *big.Int, mintRecipient common.Hash, burnToken common.Address, destinationCaller common.Hash) (Receipt, error)
}

// BurnAsset is the token being bridged. Every call names the account acting
// on the token: spender for TransferFrom, from for Transfer, owner for
// Approve.
type BurnAsset interface {
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, who common.Address) (*big.Int, error)
}

// PermitAsset is implemented by assets with signature-based approvals.
// Signature and deadline checks belong to the asset.
type PermitAsset interface {
	Permit(ctx context.Context, owner, spender common.Address, value, deadline *big.Int, v uint8, r, s common.Hash) error
}

// AssetResolver returns the BurnAsset handle for a caller-supplied token on
// the fast-transfer path.
type AssetResolver interface {
	Asset(token common.Address) (BurnAsset, error)
}

// SettlementSink receives every settlement once the transfer is final.
type SettlementSink interface {
	Emit(ctx context.Context, s *Settlement) error
}

// WithdrawalSink records completed fee withdrawals.
type WithdrawalSink interface {
	RecordWithdrawal(ctx context.Context, w *FeeWithdrawal) error
}

// TokenStore persists the fast-transfer allow-list.
type TokenStore interface {
	LoadFastTransferTokens(ctx context.Context) (map[common.Address]bool, error)
	SaveFastTransferToken(ctx context.Context, token common.Address, allowed bool, updatedBy common.Address) error
}
