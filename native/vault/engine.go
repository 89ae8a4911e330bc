package vault

import (
	"math/big"

	"epochvault/core/events"
	nativecommon "epochvault/native/common"
)

const moduleName = "vault"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

type tokenLedger interface {
	Transfer(token string, from, to [20]byte, amount *big.Int) error
	ModuleTransfer(token string, module, to [20]byte, amount *big.Int) error
}

// Authorizer reports whether an identity authorized the current invocation.
type Authorizer interface {
	RequireAuth(addr [20]byte) error
}

// Engine implements the vault operations on top of a state view, the token
// ledger and an authorization context supplied per invocation. The engine
// itself keeps no state between invocations.
type Engine struct {
	address [20]byte
	state   engineState
	tokens  tokenLedger
	auth    Authorizer
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine creates an engine acting as the vault account at address, with a
// no-op emitter.
func NewEngine(address [20]byte) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}}
}

// Address returns the vault's own account.
func (e *Engine) Address() [20]byte { return e.address }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures the token-transfer capability.
func (e *Engine) SetTokens(tokens tokenLedger) { e.tokens = tokens }

// SetAuthorizer configures the authorization capability.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.auth = auth }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// begin checks the engine is wired and the module is not paused. Mutating
// operations call it before anything else.
func (e *Engine) begin() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	if e.auth == nil {
		return errNilAuth
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return wrap(ErrModulePaused, err)
	}
	return nil
}

// requireAuth checks a caller-supplied identity. The vault account never
// authorizes a call: it moves funds only through transfer below.
func (e *Engine) requireAuth(addr [20]byte) error {
	if addr == e.address {
		return wrap(ErrUnauthorized, errVaultIdentity)
	}
	return wrap(ErrUnauthorized, e.auth.RequireAuth(addr))
}

func (e *Engine) transfer(token string, from, to [20]byte, amount *big.Int) error {
	if from == e.address {
		return wrap(ErrTokenTransferFailed, e.tokens.ModuleTransfer(token, from, to, amount))
	}
	return wrap(ErrTokenTransferFailed, e.tokens.Transfer(token, from, to, amount))
}
