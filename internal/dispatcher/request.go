package dispatcher

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// RouteKind tags the shape of a transfer request.
type RouteKind string

const (
	RouteDirect     RouteKind = "direct"
	RouteForwarding RouteKind = "forwarding"
	RouteFast       RouteKind = "fast"
)

// Permit carries the signature for a one-shot approval of the dispatcher.
type Permit struct {
	Deadline *big.Int    `json:"deadline"`
	V        uint8       `json:"v"`
	R        common.Hash `json:"r"`
	S        common.Hash `json:"s"`
}

// TransferRequest is one transfer submitted by a caller.
//
// BurnToken is only read on RouteFast; the other routes burn the deployment's
// token. RestrictedMinter set to the zero hash means any caller may complete
// the mint on the destination. Forwarding is required on RouteForwarding.
type TransferRequest struct {
	Route             RouteKind               `json:"route"`
	Amount            *big.Int                `json:"amount"`
	DestinationDomain uint32                  `json:"destination_domain"`
	MintRecipient     common.Hash             `json:"mint_recipient"`
	BurnToken         common.Address          `json:"burn_token,omitempty"`
	RestrictedMinter  common.Hash             `json:"restricted_minter,omitempty"`
	Forwarding        *ForwardingInstructions `json:"forwarding,omitempty"`
	Permit            *Permit                 `json:"permit,omitempty"`
}

// Restricted reports whether the mint is limited to RestrictedMinter.
func (r TransferRequest) Restricted() bool {
	return r.RestrictedMinter != (common.Hash{})
}

// Settlement is the record emitted for every completed transfer.
type Settlement struct {
	ID                string         `json:"id"`
	Route             RouteKind      `json:"route"`
	Caller            common.Address `json:"caller"`
	MintRecipient     common.Hash    `json:"mint_recipient"`
	BurnToken         common.Address `json:"burn_token"`
	Amount            *big.Int       `json:"amount"`
	NetAmount         *big.Int       `json:"net_amount"`
	Fee               *big.Int       `json:"fee"`
	SourceDomain      uint32         `json:"source_domain"`
	DestinationDomain uint32         `json:"destination_domain"`
	RestrictedMinter  common.Hash    `json:"restricted_minter"`
	Gasless           bool           `json:"gasless"`
	CustodyPolicy     CustodyPolicy  `json:"custody_policy"`

	// FeeRetained is set when the forward policy could not deliver the fee
	// to the collector. The fee is then withdrawable from custody.
	FeeRetained bool `json:"fee_retained,omitempty"`

	Forwarding *ForwardingInstructions `json:"forwarding,omitempty"`

	TxHash    common.Hash `json:"tx_hash"`
	Nonce     uint64      `json:"nonce"`
	CreatedAt time.Time   `json:"created_at"`
}

func newSettlement(caller common.Address, req TransferRequest, token common.Address, fee, net *big.Int, src, dst uint32, policy CustodyPolicy) *Settlement {
	return &Settlement{
		ID:                uuid.NewString(),
		Route:             req.Route,
		Caller:            caller,
		MintRecipient:     req.MintRecipient,
		BurnToken:         token,
		Amount:            new(big.Int).Set(req.Amount),
		NetAmount:         net,
		Fee:               fee,
		SourceDomain:      src,
		DestinationDomain: dst,
		RestrictedMinter:  req.RestrictedMinter,
		Gasless:           req.Permit != nil,
		CustodyPolicy:     policy,
		Forwarding:        req.Forwarding,
		CreatedAt:         time.Now().UTC(),
	}
}

func (s *Settlement) String() string {
	return fmt.Sprintf("%s %s %d->%d net=%s fee=%s", s.ID, s.Route, s.SourceDomain, s.DestinationDomain, s.NetAmount, s.Fee)
}
