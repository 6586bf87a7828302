package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrSignatureMismatch = errors.New("signature does not match address")

// LoginMessage is the text a wallet signs to log in.
func LoginMessage(address common.Address, nonce string) string {
	return fmt.Sprintf("CCTP Dispatcher Authentication\nAddress: %s\nNonce: %s", address.Hex(), nonce)
}

// RecoverPersonalSign returns the signer of an EIP-191 personal_sign
// signature over message. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverPersonalSign(message, signatureHex string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signatureHex))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyLogin checks that signatureHex over LoginMessage(address, nonce) was
// made by address.
func VerifyLogin(address common.Address, nonce, signatureHex string) error {
	signer, err := RecoverPersonalSign(LoginMessage(address, nonce), signatureHex)
	if err != nil {
		return err
	}
	if signer != address {
		return ErrSignatureMismatch
	}
	return nil
}
