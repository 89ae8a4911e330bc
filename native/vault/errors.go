package vault

import (
	"errors"
	"fmt"
)

// Code is the stable numeric identifier of a vault failure. Codes never change
// meaning; callers branch on them instead of parsing messages.
type Code uint32

const (
	CodeOfferAlreadyCreated  Code = 1
	CodeOfferNotCreated      Code = 2
	CodePriceTooLow          Code = 3
	CodeZeroPrice            Code = 4
	CodeTokenTransferFailed  Code = 5
	CodeZeroTokenAmount      Code = 6
	CodeNoRedeemRequest      Code = 7
	CodeEpochNotSetled       Code = 8
	CodeNegativeRedeemAmount Code = 9
	CodeInvalidEpochId       Code = 10
	CodeArithmeticOverflow   Code = 11
	CodeUnauthorized         Code = 12
	CodeModulePaused         Code = 13
)

var codeNames = map[Code]string{
	CodeOfferAlreadyCreated:  "OfferAlreadyCreated",
	CodeOfferNotCreated:      "OfferNotCreated",
	CodePriceTooLow:          "PriceTooLow",
	CodeZeroPrice:            "ZeroPrice",
	CodeTokenTransferFailed:  "TokenTransferFailed",
	CodeZeroTokenAmount:      "ZeroTokenAmount",
	CodeNoRedeemRequest:      "NoRedeemRequest",
	CodeEpochNotSetled:       "EpochNotSetled",
	CodeNegativeRedeemAmount: "NegativeRedeemAmount",
	CodeInvalidEpochId:       "InvalidEpochId",
	CodeArithmeticOverflow:   "ArithmeticOverflow",
	CodeUnauthorized:         "Unauthorized",
	CodeModulePaused:         "ModulePaused",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Error is a coded vault failure.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string { return "vault: " + e.msg }

var (
	ErrOfferAlreadyCreated  = &Error{Code: CodeOfferAlreadyCreated, msg: "offer already created"}
	ErrOfferNotCreated      = &Error{Code: CodeOfferNotCreated, msg: "offer not created"}
	ErrPriceTooLow          = &Error{Code: CodePriceTooLow, msg: "price is too low"}
	ErrZeroPrice            = &Error{Code: CodeZeroPrice, msg: "zero price is not allowed"}
	ErrTokenTransferFailed  = &Error{Code: CodeTokenTransferFailed, msg: "token transfer failed"}
	ErrZeroTokenAmount      = &Error{Code: CodeZeroTokenAmount, msg: "token amount must be positive"}
	ErrNoRedeemRequest      = &Error{Code: CodeNoRedeemRequest, msg: "no redeem request"}
	ErrEpochNotSetled       = &Error{Code: CodeEpochNotSetled, msg: "epoch not settled"}
	ErrNegativeRedeemAmount = &Error{Code: CodeNegativeRedeemAmount, msg: "negative redeem amount"}
	ErrInvalidEpochId       = &Error{Code: CodeInvalidEpochId, msg: "invalid epoch id"}
	ErrArithmeticOverflow   = &Error{Code: CodeArithmeticOverflow, msg: "arithmetic overflow"}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized, msg: "unauthorized"}
	ErrModulePaused         = &Error{Code: CodeModulePaused, msg: "module paused"}

	errNilState  = errors.New("vault engine: state not configured")
	errNilTokens = errors.New("vault engine: token ledger not configured")
	errNilAuth   = errors.New("vault engine: authorizer not configured")

	errVaultIdentity = errors.New("vault engine: vault account cannot act as a caller")
)

// CodeOf extracts the vault code carried by err. The boolean is false for
// errors that did not originate from the vault taxonomy (storage faults,
// misconfiguration).
func CodeOf(err error) (Code, bool) {
	var vErr *Error
	if errors.As(err, &vErr) {
		return vErr.Code, true
	}
	return 0, false
}

// wrap attaches a taxonomy entry to an error returned by a collaborator while
// keeping the cause reachable through errors.Is.
func wrap(kind *Error, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
