package repository

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/models"
)

func addrString(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func hashString(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func optionalHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hexutil.Encode(b)
}

func decodeOptionalHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hexutil.Decode(s)
}

// SettlementToModel flattens a settlement into its table row.
func SettlementToModel(s *dispatcher.Settlement) *models.Settlement {
	m := &models.Settlement{
		ID:                s.ID,
		Route:             string(s.Route),
		Caller:            addrString(s.Caller),
		MintRecipient:     hashString(s.MintRecipient),
		BurnToken:         addrString(s.BurnToken),
		Amount:            bigString(s.Amount),
		NetAmount:         bigString(s.NetAmount),
		Fee:               bigString(s.Fee),
		SourceDomain:      s.SourceDomain,
		DestinationDomain: s.DestinationDomain,
		Gasless:           s.Gasless,
		FeeRetained:       s.FeeRetained,
		CustodyPolicy:     string(s.CustodyPolicy),
		TxHash:            hashString(s.TxHash),
		Nonce:             s.Nonce,
		CreatedAt:         s.CreatedAt,
	}
	if s.RestrictedMinter != (common.Hash{}) {
		m.RestrictedMinter = hashString(s.RestrictedMinter)
	}
	if f := s.Forwarding; f != nil {
		ch := f.Channel
		m.ForwardingChannel = &ch
		m.ForwardingBech32 = f.DestinationBech32
		m.ForwardingRecipient = optionalHex(f.DestinationRecipient)
		m.ForwardingMemo = optionalHex(f.Memo)
	}
	return m
}

// SettlementFromModel is the inverse of SettlementToModel.
func SettlementFromModel(m *models.Settlement) (*dispatcher.Settlement, error) {
	amount, err := parseBig(m.Amount)
	if err != nil {
		return nil, err
	}
	net, err := parseBig(m.NetAmount)
	if err != nil {
		return nil, err
	}
	fee, err := parseBig(m.Fee)
	if err != nil {
		return nil, err
	}

	s := &dispatcher.Settlement{
		ID:                m.ID,
		Route:             dispatcher.RouteKind(m.Route),
		Caller:            common.HexToAddress(m.Caller),
		MintRecipient:     common.HexToHash(m.MintRecipient),
		BurnToken:         common.HexToAddress(m.BurnToken),
		Amount:            amount,
		NetAmount:         net,
		Fee:               fee,
		SourceDomain:      m.SourceDomain,
		DestinationDomain: m.DestinationDomain,
		Gasless:           m.Gasless,
		FeeRetained:       m.FeeRetained,
		CustodyPolicy:     dispatcher.CustodyPolicy(m.CustodyPolicy),
		TxHash:            common.HexToHash(m.TxHash),
		Nonce:             m.Nonce,
		CreatedAt:         m.CreatedAt,
	}
	if m.RestrictedMinter != "" {
		s.RestrictedMinter = common.HexToHash(m.RestrictedMinter)
	}
	if m.ForwardingChannel != nil {
		recipient, err := decodeOptionalHex(m.ForwardingRecipient)
		if err != nil {
			return nil, fmt.Errorf("forwarding recipient: %w", err)
		}
		memo, err := decodeOptionalHex(m.ForwardingMemo)
		if err != nil {
			return nil, fmt.Errorf("forwarding memo: %w", err)
		}
		s.Forwarding = &dispatcher.ForwardingInstructions{
			Channel:              *m.ForwardingChannel,
			DestinationBech32:    m.ForwardingBech32,
			DestinationRecipient: recipient,
			Memo:                 memo,
		}
	}
	return s, nil
}
