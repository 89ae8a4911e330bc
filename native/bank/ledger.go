package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"epochvault/core/events"
	"epochvault/crypto"
)

var (
	ErrUnknownToken          = errors.New("bank: token not registered")
	ErrNegativeAmount        = errors.New("bank: negative amount")
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrBalanceOverflow       = errors.New("bank: balance overflow")
	errNilState              = errors.New("bank: state not configured")
)

type ledgerState interface {
	TokenExists(symbol string) bool
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	Allowance(owner, spender []byte, symbol string) (*big.Int, error)
	SetAllowance(owner, spender []byte, symbol string, amount *big.Int) error
}

// Authorizer reports whether an identity authorized the current invocation.
type Authorizer interface {
	RequireAuth(addr [20]byte) error
}

// Ledger is the token-transfer capability. Every movement either applies in
// full or returns an error without touching balances; the surrounding
// invocation is responsible for discarding earlier writes on error.
type Ledger struct {
	state   ledgerState
	auth    Authorizer
	emitter events.Emitter
}

// NewLedger binds a ledger to a state view and an authorization context.
func NewLedger(state ledgerState, auth Authorizer) *Ledger {
	return &Ledger{state: state, auth: auth, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the ledger. Passing nil resets
// the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func (l *Ledger) checkToken(token string) (string, error) {
	if l == nil || l.state == nil {
		return "", errNilState
	}
	normalized := normalizeToken(token)
	if normalized == "" || !l.state.TokenExists(normalized) {
		return "", fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
	return normalized, nil
}

func toWord(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return word, nil
}

func (l *Ledger) balanceWord(addr [20]byte, token string) (*uint256.Int, error) {
	bal, err := l.state.Balance(addr[:], token)
	if err != nil {
		return nil, err
	}
	return toWord(bal)
}

// move debits from and credits to without any authorization check.
func (l *Ledger) move(token string, from, to [20]byte, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	fromBal, err := l.balanceWord(from, token)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientBalance,
			crypto.FormatAddress(from), fromBal.Dec(), token, amount.Dec())
	}
	toBal, err := l.balanceWord(to, token)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	debited := new(uint256.Int).Sub(fromBal, amount)
	if err := l.state.SetBalance(from[:], token, debited.ToBig()); err != nil {
		return err
	}
	return l.state.SetBalance(to[:], token, credited.ToBig())
}

// Transfer moves amount of token from one identity to another. The sender must
// have authorized the invocation. A zero amount is a successful no-op.
func (l *Ledger) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	normalized, err := l.checkToken(token)
	if err != nil {
		return err
	}
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	if err := l.auth.RequireAuth(from); err != nil {
		return err
	}
	if err := l.move(normalized, from, to, word); err != nil {
		return err
	}
	l.emitter.Emit(TransferEvent{Token: normalized, From: from, To: to, Amount: word.ToBig()})
	return nil
}

// ModuleTransfer moves amount of token out of a module account. The signer
// context is not consulted: a module account has no key, so only the engine
// that owns it may call this, and only for its own outgoing transfers.
func (l *Ledger) ModuleTransfer(token string, module, to [20]byte, amount *big.Int) error {
	normalized, err := l.checkToken(token)
	if err != nil {
		return err
	}
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	if err := l.move(normalized, module, to, word); err != nil {
		return err
	}
	l.emitter.Emit(TransferEvent{Token: normalized, From: module, To: to, Amount: word.ToBig()})
	return nil
}

// TransferFrom moves owner's tokens to a recipient on behalf of spender,
// consuming spender's allowance. The spender must have authorized the
// invocation.
func (l *Ledger) TransferFrom(token string, spender, owner, to [20]byte, amount *big.Int) error {
	normalized, err := l.checkToken(token)
	if err != nil {
		return err
	}
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	if err := l.auth.RequireAuth(spender); err != nil {
		return err
	}
	allowed, err := l.state.Allowance(owner[:], spender[:], normalized)
	if err != nil {
		return err
	}
	allowedWord, err := toWord(allowed)
	if err != nil {
		return err
	}
	if allowedWord.Lt(word) {
		return fmt.Errorf("%w: %s may spend %s %s, needs %s", ErrInsufficientAllowance,
			crypto.FormatAddress(spender), allowedWord.Dec(), normalized, word.Dec())
	}
	if err := l.move(normalized, owner, to, word); err != nil {
		return err
	}
	remaining := new(uint256.Int).Sub(allowedWord, word)
	if err := l.state.SetAllowance(owner[:], spender[:], normalized, remaining.ToBig()); err != nil {
		return err
	}
	l.emitter.Emit(TransferEvent{Token: normalized, From: owner, To: to, Spender: &spender, Amount: word.ToBig()})
	return nil
}

// Approve sets the amount spender may move on owner's behalf, replacing any
// previous allowance. The owner must have authorized the invocation.
func (l *Ledger) Approve(token string, owner, spender [20]byte, amount *big.Int) error {
	normalized, err := l.checkToken(token)
	if err != nil {
		return err
	}
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	if err := l.auth.RequireAuth(owner); err != nil {
		return err
	}
	if err := l.state.SetAllowance(owner[:], spender[:], normalized, word.ToBig()); err != nil {
		return err
	}
	l.emitter.Emit(ApprovalEvent{Token: normalized, Owner: owner, Spender: spender, Amount: word.ToBig()})
	return nil
}

// Mint credits amount to an identity. It performs no authorization check and
// is only reachable from genesis allocation.
func (l *Ledger) Mint(token string, to [20]byte, amount *big.Int) error {
	normalized, err := l.checkToken(token)
	if err != nil {
		return err
	}
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	bal, err := l.balanceWord(to, normalized)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(bal, word)
	if overflow {
		return ErrBalanceOverflow
	}
	return l.state.SetBalance(to[:], normalized, credited.ToBig())
}

// BalanceOf returns the balance of token held by addr.
func (l *Ledger) BalanceOf(token string, addr [20]byte) (*big.Int, error) {
	normalized, err := l.checkToken(token)
	if err != nil {
		return nil, err
	}
	return l.state.Balance(addr[:], normalized)
}

// AllowanceOf returns the amount spender may move on behalf of owner.
func (l *Ledger) AllowanceOf(token string, owner, spender [20]byte) (*big.Int, error) {
	normalized, err := l.checkToken(token)
	if err != nil {
		return nil, err
	}
	return l.state.Allowance(owner[:], spender[:], normalized)
}
