package dispatcher

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Dispatcher sentinel errors. Callers match them with errors.Is.
var (
	// configuration
	ErrFeeNotFound = errors.New("fee not found for destination domain")

	// validation
	ErrBurnAmountTooLow  = errors.New("burn amount is not greater than fee")
	ErrPercFeeTooHigh    = errors.New("percentage fee exceeds cap")
	ErrInvalidAmount     = errors.New("amount must be a positive uint256")
	ErrInvalidFlatFee    = errors.New("flat fee must be a uint256")
	ErrZeroAddress       = errors.New("zero address")
	ErrInvalidRecipient  = errors.New("mint recipient must be non-zero")
	ErrInvalidDomain     = errors.New("destination domain not allowed for route")
	ErrInvalidForwarding = errors.New("forwarding instructions are incomplete")
	ErrUnknownRoute      = errors.New("unknown transfer route")
	ErrUnknownRole       = errors.New("unknown role")

	// authorization
	ErrUnauthorized = errors.New("unauthorized")

	// policy
	ErrTokenNotSupported  = errors.New("token not supported")
	ErrPermitNotSupported = errors.New("burn asset does not support permit")

	// dependency
	ErrMissingMessenger         = errors.New("token messenger not set")
	ErrMissingMetadataMessenger = errors.New("token messenger with metadata not set")
	ErrMissingBurnAsset         = errors.New("burn asset not set")
	ErrMissingFeeSchedule       = errors.New("fee schedule not set")
	ErrMissingRoles             = errors.New("role registry not set")
	ErrMissingCustodian         = errors.New("custodian address not set")

	// collaborator
	ErrRefundFailed = errors.New("refund after failed transfer did not complete")

	// pending
	ErrOutcomeUnknown = errors.New("transaction submitted, outcome unknown")
)

// PendingError reports a collaborator call that was broadcast but whose
// result could not be observed. It matches ErrOutcomeUnknown.
type PendingError struct {
	TxHash common.Hash
	Err    error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("%s submitted, outcome unknown: %v", e.TxHash.Hex(), e.Err)
}

func (e *PendingError) Unwrap() []error { return []error{ErrOutcomeUnknown, e.Err} }

// PendingTx returns the transaction hash carried by err, if any.
func PendingTx(err error) (common.Hash, bool) {
	var pe *PendingError
	if errors.As(err, &pe) {
		return pe.TxHash, true
	}
	return common.Hash{}, false
}

// ErrorKind groups sentinel errors by who is expected to act on them.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindPolicy        ErrorKind = "policy"
	KindDependency    ErrorKind = "dependency"
	KindCollaborator  ErrorKind = "collaborator"
	KindInternal      ErrorKind = "internal"
	KindPending       ErrorKind = "pending"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	// A failed refund outranks whatever caused it.
	{ErrRefundFailed, KindInternal},
	{ErrOutcomeUnknown, KindPending},
	{ErrFeeNotFound, KindConfiguration},
	{ErrBurnAmountTooLow, KindValidation},
	{ErrPercFeeTooHigh, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidFlatFee, KindValidation},
	{ErrZeroAddress, KindValidation},
	{ErrInvalidRecipient, KindValidation},
	{ErrInvalidDomain, KindValidation},
	{ErrInvalidForwarding, KindValidation},
	{ErrUnknownRoute, KindValidation},
	{ErrUnknownRole, KindValidation},
	{ErrUnauthorized, KindAuthorization},
	{ErrTokenNotSupported, KindPolicy},
	{ErrPermitNotSupported, KindPolicy},
	{ErrMissingMessenger, KindDependency},
	{ErrMissingMetadataMessenger, KindDependency},
	{ErrMissingBurnAsset, KindDependency},
	{ErrMissingFeeSchedule, KindDependency},
	{ErrMissingRoles, KindDependency},
	{ErrMissingCustodian, KindDependency},
}

// KindOf classifies err. Errors returned by collaborators (asset, messengers)
// that do not wrap a dispatcher sentinel are KindCollaborator.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindCollaborator
}
