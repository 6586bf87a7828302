package models

import (
	"time"
)

// Amounts are decimal strings in numeric(78,0) columns: wide enough for any
// uint256. Addresses and hashes are lowercase 0x-prefixed hex.

// FeeRule is the fee configured for one destination domain
type FeeRule struct {
	DestinationDomain uint32 `json:"destination_domain" gorm:"primaryKey;autoIncrement:false"`
	PercFeeBips       uint16 `json:"perc_fee_bips" gorm:"not null;default:0"`
	FlatFee           string `json:"flat_fee" gorm:"type:numeric(78,0);not null;default:0"`
	UpdatedBy         string `json:"updated_by" gorm:"type:varchar(42)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleAssignment holds the current holder of one role
type RoleAssignment struct {
	Role      string    `json:"role" gorm:"primaryKey;type:varchar(32)"`
	Holder    string    `json:"holder" gorm:"type:varchar(42);not null"`
	UpdatedBy string    `json:"updated_by" gorm:"type:varchar(42)"` // zero address when seeded from config
	UpdatedAt time.Time `json:"updated_at"`
}

// FastTransferToken is one entry of the fast-transfer allow-list
type FastTransferToken struct {
	Token     string    `json:"token" gorm:"primaryKey;type:varchar(42)"`
	Allowed   bool      `json:"allowed" gorm:"not null;default:false"`
	UpdatedBy string    `json:"updated_by" gorm:"type:varchar(42)"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settlement is a completed transfer
type Settlement struct {
	ID     string `json:"id" gorm:"primaryKey;type:varchar(36)"` // UUID
	Route  string `json:"route" gorm:"type:varchar(16);not null;index"`
	Caller string `json:"caller" gorm:"type:varchar(42);not null;index"`

	MintRecipient    string `json:"mint_recipient" gorm:"type:varchar(66);not null"`
	RestrictedMinter string `json:"restricted_minter" gorm:"type:varchar(66)"`
	BurnToken        string `json:"burn_token" gorm:"type:varchar(42);not null"`

	Amount    string `json:"amount" gorm:"type:numeric(78,0);not null"`
	NetAmount string `json:"net_amount" gorm:"type:numeric(78,0);not null"`
	Fee       string `json:"fee" gorm:"type:numeric(78,0);not null"`

	SourceDomain      uint32 `json:"source_domain"`
	DestinationDomain uint32 `json:"destination_domain" gorm:"index"`
	Gasless           bool   `json:"gasless"`
	FeeRetained       bool   `json:"fee_retained"`
	CustodyPolicy     string `json:"custody_policy" gorm:"type:varchar(16)"`

	// Forwarding
	ForwardingChannel   *uint64 `json:"forwarding_channel,omitempty"`
	ForwardingBech32    string  `json:"forwarding_bech32_prefix,omitempty" gorm:"type:varchar(32)"`
	ForwardingRecipient string  `json:"forwarding_recipient,omitempty" gorm:"type:text"` // hex
	ForwardingMemo      string  `json:"forwarding_memo,omitempty" gorm:"type:text"`      // hex

	TxHash    string    `json:"tx_hash" gorm:"type:varchar(66);index"`
	Nonce     uint64    `json:"nonce"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// FeeWithdrawal is one WithdrawFees call that moved funds
type FeeWithdrawal struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Collector string    `json:"collector" gorm:"type:varchar(42);not null;index"`
	Token     string    `json:"token" gorm:"type:varchar(42);not null"`
	Amount    string    `json:"amount" gorm:"type:numeric(78,0);not null"`
	CreatedAt time.Time `json:"created_at"`
}
