package vault

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"epochvault/core/auth"
	"epochvault/core/events"
	"epochvault/core/state"
	"epochvault/crypto"
	"epochvault/native/bank"
	nativecommon "epochvault/native/common"
	"epochvault/storage"
)

const (
	shareToken = "SHARE"
	usdcToken  = "USDC"
	parity     = Rate(RateScale)
)

var (
	seller   = testAddress(0x51)
	treasury = testAddress(0x71)
	alice    = testAddress(0xa1)
	bob      = testAddress(0xb0)
	vaultAcc = crypto.ModuleAddress("vault")
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

// harness runs every engine call as its own invocation: writes and events are
// committed when the call succeeds and dropped when it fails.
type harness struct {
	t      *testing.T
	db     *storage.MemDB
	pauses nativecommon.PauseView
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, db: storage.NewMemDB()}
	mgr := state.NewManager(h.db)
	require.NoError(t, mgr.RegisterToken(shareToken, "Vault Share", 7))
	require.NoError(t, mgr.RegisterToken(usdcToken, "USD Coin", 7))
	ledger := bank.NewLedger(mgr, auth.NewContext())
	require.NoError(t, ledger.Mint(shareToken, vaultAcc, big.NewInt(1_000_000)))
	for _, addr := range [][20]byte{alice, bob, treasury} {
		require.NoError(t, ledger.Mint(usdcToken, addr, big.NewInt(1_000_000)))
	}
	require.NoError(t, mgr.Commit())
	return h
}

func (h *harness) invoke(signers [][20]byte, fn func(*Engine) error) error {
	h.t.Helper()
	mgr := state.NewManager(h.db)
	ctx := auth.NewContext(signers...)
	buf := &events.Buffer{}
	ledger := bank.NewLedger(mgr, ctx)
	ledger.SetEmitter(buf)
	engine := NewEngine(vaultAcc)
	engine.SetState(mgr)
	engine.SetTokens(ledger)
	engine.SetAuthorizer(ctx)
	engine.SetEmitter(buf)
	engine.SetPauses(h.pauses)
	if err := fn(engine); err != nil {
		mgr.Discard()
		return err
	}
	require.NoError(h.t, mgr.Commit())
	h.events = append(h.events, buf.Drain()...)
	return nil
}

func (h *harness) as(signer [20]byte, fn func(*Engine) error) error {
	return h.invoke([][20]byte{signer}, fn)
}

func (h *harness) read() *Engine {
	engine := NewEngine(vaultAcc)
	engine.SetState(state.NewManager(h.db))
	return engine
}

func (h *harness) balance(token string, addr [20]byte) int64 {
	h.t.Helper()
	bal, err := state.NewManager(h.db).Balance(addr[:], token)
	require.NoError(h.t, err)
	return bal.Int64()
}

func (h *harness) initialize(price Rate) {
	h.t.Helper()
	require.NoError(h.t, h.as(seller, func(e *Engine) error {
		return e.Initialize(seller, treasury, shareToken, usdcToken, price)
	}))
}

func (h *harness) deposit(buyer [20]byte, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.as(buyer, func(e *Engine) error {
		_, err := e.Deposit(buyer, big.NewInt(amount), big.NewInt(0))
		return err
	}))
}

func (h *harness) redeem(buyer [20]byte, amount int64) error {
	return h.as(buyer, func(e *Engine) error {
		return e.RedeemRequest(buyer, big.NewInt(amount))
	})
}

func (h *harness) settle() error {
	return h.as(treasury, func(e *Engine) error {
		_, err := e.SettleEpoch()
		return err
	})
}

func (h *harness) claim(buyer [20]byte) (*big.Int, error) {
	var payout *big.Int
	err := h.as(buyer, func(e *Engine) error {
		var err error
		payout, err = e.ClaimRequest(buyer)
		return err
	})
	return payout, err
}

func (h *harness) cancel(buyer [20]byte) error {
	return h.as(buyer, func(e *Engine) error {
		_, err := e.CancelRequest(buyer)
		return err
	})
}

func (h *harness) request(buyer [20]byte) *RedeemRequest {
	h.t.Helper()
	req, err := h.read().Request(buyer)
	require.NoError(h.t, err)
	return req
}

func (h *harness) total() int64 {
	h.t.Helper()
	total, err := h.read().TotalRedeem()
	require.NoError(h.t, err)
	return total.Int64()
}

func (h *harness) epoch() uint32 {
	h.t.Helper()
	id, err := h.read().EpochID()
	require.NoError(h.t, err)
	return id
}

func (h *harness) eventTypes() []string {
	out := make([]string, 0, len(h.events))
	for _, evt := range h.events {
		out = append(out, evt.EventType())
	}
	return out
}
