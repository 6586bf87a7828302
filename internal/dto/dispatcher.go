package dto

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

// Amounts cross the API as base-10 strings so uint256 values survive
// JavaScript clients.

// PermitRequest is an EIP-2612 signature
type PermitRequest struct {
	Deadline string `json:"deadline" binding:"required"`
	V        uint8  `json:"v"`
	R        string `json:"r" binding:"required"`
	S        string `json:"s" binding:"required"`
}

// ForwardingRequest is the forwarding part of a transfer
type ForwardingRequest struct {
	Channel              uint64 `json:"channel"`
	DestinationBech32    string `json:"destination_bech32_prefix"`
	DestinationRecipient string `json:"destination_recipient"` // hex
	Memo                 string `json:"memo,omitempty"`        // hex
}

// TransferRequest is the body of POST /api/transfers
type TransferRequest struct {
	Route             string             `json:"route" binding:"required"`
	Amount            string             `json:"amount" binding:"required"`
	DestinationDomain uint32             `json:"destination_domain"`
	MintRecipient     string             `json:"mint_recipient" binding:"required"`
	BurnToken         string             `json:"burn_token,omitempty"`
	RestrictedMinter  string             `json:"restricted_minter,omitempty"`
	Forwarding        *ForwardingRequest `json:"forwarding,omitempty"`
	Permit            *PermitRequest     `json:"permit,omitempty"`
}

// ToDispatcher converts the wire form. Range and business checks are left
// to the dispatcher; only decoding errors are reported here.
func (r TransferRequest) ToDispatcher() (dispatcher.TransferRequest, error) {
	amount, err := ParseBig("amount", r.Amount)
	if err != nil {
		return dispatcher.TransferRequest{}, err
	}
	recipient, err := ParseWord("mint_recipient", r.MintRecipient)
	if err != nil {
		return dispatcher.TransferRequest{}, err
	}

	out := dispatcher.TransferRequest{
		Route:             dispatcher.RouteKind(strings.ToLower(r.Route)),
		Amount:            amount,
		DestinationDomain: r.DestinationDomain,
		MintRecipient:     recipient,
	}

	if r.BurnToken != "" {
		if !common.IsHexAddress(r.BurnToken) {
			return out, fmt.Errorf("burn_token: %q is not an address", r.BurnToken)
		}
		out.BurnToken = common.HexToAddress(r.BurnToken)
	}
	if r.RestrictedMinter != "" {
		if out.RestrictedMinter, err = ParseWord("restricted_minter", r.RestrictedMinter); err != nil {
			return out, err
		}
	}

	if f := r.Forwarding; f != nil {
		fwd := &dispatcher.ForwardingInstructions{Channel: f.Channel, DestinationBech32: f.DestinationBech32}
		if f.DestinationRecipient != "" {
			if fwd.DestinationRecipient, err = hexutil.Decode(f.DestinationRecipient); err != nil {
				return out, fmt.Errorf("forwarding.destination_recipient: %w", err)
			}
		}
		if f.Memo != "" {
			if fwd.Memo, err = hexutil.Decode(f.Memo); err != nil {
				return out, fmt.Errorf("forwarding.memo: %w", err)
			}
		}
		out.Forwarding = fwd
	}

	if p := r.Permit; p != nil {
		deadline, err := ParseBig("permit.deadline", p.Deadline)
		if err != nil {
			return out, err
		}
		rWord, err := ParseWord("permit.r", p.R)
		if err != nil {
			return out, err
		}
		sWord, err := ParseWord("permit.s", p.S)
		if err != nil {
			return out, err
		}
		out.Permit = &dispatcher.Permit{Deadline: deadline, V: p.V, R: rWord, S: sWord}
	}
	return out, nil
}

// SettlementResponse is a settlement with string amounts
type SettlementResponse struct {
	ID                string                             `json:"id"`
	Route             string                             `json:"route"`
	Caller            string                             `json:"caller"`
	MintRecipient     string                             `json:"mint_recipient"`
	BurnToken         string                             `json:"burn_token"`
	Amount            string                             `json:"amount"`
	NetAmount         string                             `json:"net_amount"`
	Fee               string                             `json:"fee"`
	SourceDomain      uint32                             `json:"source_domain"`
	DestinationDomain uint32                             `json:"destination_domain"`
	RestrictedMinter  string                             `json:"restricted_minter,omitempty"`
	Gasless           bool                               `json:"gasless"`
	FeeRetained       bool                               `json:"fee_retained,omitempty"`
	CustodyPolicy     string                             `json:"custody_policy"`
	Forwarding        *dispatcher.ForwardingInstructions `json:"forwarding,omitempty"`
	TxHash            string                             `json:"tx_hash"`
	Nonce             uint64                             `json:"nonce"`
	CreatedAt         int64                              `json:"created_at"`
}

func FromSettlement(s *dispatcher.Settlement) SettlementResponse {
	out := SettlementResponse{
		ID:                s.ID,
		Route:             string(s.Route),
		Caller:            s.Caller.Hex(),
		MintRecipient:     s.MintRecipient.Hex(),
		BurnToken:         s.BurnToken.Hex(),
		Amount:            BigString(s.Amount),
		NetAmount:         BigString(s.NetAmount),
		Fee:               BigString(s.Fee),
		SourceDomain:      s.SourceDomain,
		DestinationDomain: s.DestinationDomain,
		Gasless:           s.Gasless,
		FeeRetained:       s.FeeRetained,
		CustodyPolicy:     string(s.CustodyPolicy),
		Forwarding:        s.Forwarding,
		TxHash:            s.TxHash.Hex(),
		Nonce:             s.Nonce,
		CreatedAt:         s.CreatedAt.Unix(),
	}
	if s.RestrictedMinter != (common.Hash{}) {
		out.RestrictedMinter = s.RestrictedMinter.Hex()
	}
	return out
}

// SetFeeRequest is the body of PUT /api/admin/fees/:domain
type SetFeeRequest struct {
	PercFeeBips uint16 `json:"perc_fee_bips"`
	FlatFee     string `json:"flat_fee"`
}

// FeeRuleResponse describes one destination's fee
type FeeRuleResponse struct {
	DestinationDomain uint32 `json:"destination_domain"`
	PercFeeBips       uint16 `json:"perc_fee_bips"`
	FlatFee           string `json:"flat_fee"`
	Initialized       bool   `json:"initialized"`
}

// QuoteResponse is a fee quote
type QuoteResponse struct {
	Amount            string `json:"amount"`
	DestinationDomain uint32 `json:"destination_domain"`
	Fee               string `json:"fee"`
	NetAmount         string `json:"net_amount"`
}

// AssignRoleRequest is the body of PUT /api/admin/roles/:role
type AssignRoleRequest struct {
	Holder string `json:"holder" binding:"required"`
}

// WithdrawRequest is the body of POST /api/admin/fees/withdraw; an empty token
// means the burn token.
type WithdrawRequest struct {
	Token string `json:"token,omitempty"`
}

// WithdrawResponse reports the amount moved
type WithdrawResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

// CustodyResponse is the ledger view for one asset
type CustodyResponse struct {
	Token     string `json:"token"`
	Policy    string `json:"policy"`
	Collector string `json:"collector"`
	HeldFees  string `json:"held_fees"`
	InFlight  string `json:"in_flight"`
	Frozen    string `json:"frozen"`
	Balance   string `json:"balance,omitempty"`
}

// FastTokenRequest is the body of PUT /api/admin/fast-tokens/:token
type FastTokenRequest struct {
	Allowed bool `json:"allowed"`
}

// MessengersRequest repoints the messengers; empty fields are left alone
type MessengersRequest struct {
	Messenger         string `json:"messenger,omitempty"`
	MetadataMessenger string `json:"metadata_messenger,omitempty"`
}

// ListResponse is a page of results
type ListResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
}

// ParseBig parses a non-negative base-10 integer. Range checks are the
// caller's.
func ParseBig(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a base-10 integer", field, s)
	}
	return v, nil
}

// ParseWord accepts a 32-byte hex word or a 20-byte address, which is
// left-padded.
func ParseWord(field, s string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w", field, err)
	}
	switch len(b) {
	case common.HashLength, common.AddressLength:
		return common.BytesToHash(b), nil
	default:
		return common.Hash{}, fmt.Errorf("%s: expected 20 or 32 bytes, got %d", field, len(b))
	}
}

func BigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
