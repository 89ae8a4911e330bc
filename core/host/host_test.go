package host

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"epochvault/config"
	"epochvault/core/auth"
	"epochvault/core/events"
	"epochvault/crypto"
	"epochvault/indexer"
	nativecommon "epochvault/native/common"
	"epochvault/native/vault"
	"epochvault/storage"
)

const testChainID = 7

type actor struct {
	key  *crypto.PrivateKey
	addr [20]byte
}

func (a actor) String() string { return crypto.FormatAddress(a.addr) }

func newActor(t *testing.T) actor {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return actor{key: key, addr: key.PubKey().Address().Raw()}
}

type fixture struct {
	t        *testing.T
	host     *Host
	seller   actor
	treasury actor
	alice    actor
	nonce    uint64
}

type recordingArchive struct {
	entries []indexer.Entry
}

func (r *recordingArchive) Record(_ context.Context, entry indexer.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

func newFixture(t *testing.T, pauses nativecommon.PauseView) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		host:     New(storage.NewMemDB(), Options{ChainID: testChainID, VaultSeed: "vault", Pauses: pauses}),
		seller:   newActor(t),
		treasury: newActor(t),
		alice:    newActor(t),
	}
	doc := fmt.Sprintf(`chain_id: %d
tokens:
  - {symbol: SHARE, name: Vault Share, decimals: 7}
  - {symbol: USDC, name: USD Coin, decimals: 7}
alloc:
  %s: {USDC: "1000000"}
  %s: {USDC: "1000000"}
module_alloc:
  vault: {SHARE: "1000000"}
`, testChainID, f.alice, f.treasury)
	g, err := config.ParseGenesis([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, f.host.ApplyGenesis(g))
	return f
}

func (f *fixture) invocation(method string, args interface{}, signers ...actor) *auth.Invocation {
	f.t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(f.t, err)
	f.nonce++
	inv := &auth.Invocation{ChainID: testChainID, Method: method, Args: raw, Nonce: f.nonce}
	for _, s := range signers {
		require.NoError(f.t, inv.Sign(s.key))
	}
	return inv
}

func (f *fixture) call(method string, args interface{}, signers ...actor) *Receipt {
	f.t.Helper()
	receipt, err := f.host.Invoke(context.Background(), f.invocation(method, args, signers...))
	require.NoError(f.t, err)
	return receipt
}

func (f *fixture) mustCall(method string, args interface{}, signers ...actor) *Receipt {
	f.t.Helper()
	receipt := f.call(method, args, signers...)
	require.True(f.t, receipt.OK, "%s failed: %s", method, receipt.Error)
	return receipt
}

func (f *fixture) initialize(price uint32) {
	f.t.Helper()
	f.mustCall("vault.initialize", InitializeArgs{
		Seller:    f.seller.String(),
		Treasury:  f.treasury.String(),
		SellToken: "SHARE",
		BuyToken:  "USDC",
		Price:     price,
	}, f.seller)
}

func (f *fixture) balance(token string, who [20]byte) string {
	f.t.Helper()
	view, err := f.host.Balance(token, who)
	require.NoError(f.t, err)
	return view.Balance
}

func TestEndToEndRedemption(t *testing.T) {
	f := newFixture(t, nil)
	emitter := &recordingEmitter{}
	archive := &recordingArchive{}
	f.host.SetEmitter(emitter)
	f.host.SetArchive(archive)

	f.initialize(vault.RateScale)

	deposit := f.mustCall("vault.deposit", DepositArgs{Buyer: f.alice.String(), BuyAmount: "100", MinSellAmount: "100"}, f.alice)
	require.JSONEq(t, `{"sellAmount":"100"}`, string(deposit.Result))

	f.mustCall("vault.redeem_request", RedeemRequestArgs{Sender: f.alice.String(), Amount: "5"}, f.alice)
	epoch, err := f.host.Epoch()
	require.NoError(t, err)
	require.Equal(t, &EpochView{EpochID: 1, TotalRedeem: "5"}, epoch)

	settled := f.mustCall("vault.settle_epoch", struct{}{}, f.treasury)
	var settlement SettlementResult
	require.NoError(t, json.Unmarshal(settled.Result, &settlement))
	require.Equal(t, SettlementResult{EpochID: 1, Rate: vault.RateScale, TotalRedeem: "5", TotalAsset: "5"}, settlement)

	req, err := f.host.Request(f.alice.addr)
	require.NoError(t, err)
	require.Equal(t, string(vault.RequestClaimable), req.Status)
	live, err := f.host.Requests()
	require.NoError(t, err)
	require.Equal(t, []*RequestView{req}, live)

	claimed := f.mustCall("vault.claim_request", SenderArgs{Sender: f.alice.String()}, f.alice)
	require.JSONEq(t, `{"payout":"5"}`, string(claimed.Result))
	require.Equal(t, "999905", f.balance("USDC", f.alice.addr))
	require.Equal(t, "5", f.balance("SHARE", f.seller.addr))
	live, err = f.host.Requests()
	require.NoError(t, err)
	require.Empty(t, live)

	rate, err := f.host.RedeemRate(1)
	require.NoError(t, err)
	require.True(t, rate.Settled)
	rate, err = f.host.RedeemRate(2)
	require.NoError(t, err)
	require.False(t, rate.Settled)

	require.Contains(t, emitter.types, vault.EventTypeEpochSettled)
	require.Len(t, archive.entries, 5)
	for _, entry := range archive.entries {
		require.True(t, entry.OK)
	}
}

func TestFailedInvocationLeavesNoTrace(t *testing.T) {
	f := newFixture(t, nil)
	emitter := &recordingEmitter{}
	archive := &recordingArchive{}
	f.host.SetEmitter(emitter)
	f.host.SetArchive(archive)
	f.initialize(vault.RateScale)
	emitter.types = nil

	receipt := f.call("vault.redeem_request", RedeemRequestArgs{Sender: f.alice.String(), Amount: "5"}, f.alice)
	require.False(t, receipt.OK)
	require.Equal(t, uint32(vault.CodeTokenTransferFailed), receipt.Code)
	require.Equal(t, "TokenTransferFailed", receipt.CodeName)
	require.Empty(t, receipt.Events)
	require.Empty(t, emitter.types)

	epoch, err := f.host.Epoch()
	require.NoError(t, err)
	require.Equal(t, "0", epoch.TotalRedeem)
	req, err := f.host.Request(f.alice.addr)
	require.NoError(t, err)
	require.Equal(t, "0", req.SharesAmount)

	last := archive.entries[len(archive.entries)-1]
	require.False(t, last.OK)
	require.Equal(t, "TokenTransferFailed", last.Code)
}

func TestSettleRequiresTreasurySignature(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(vault.RateScale)

	receipt := f.call("vault.settle_epoch", struct{}{}, f.seller)
	require.False(t, receipt.OK)
	require.Equal(t, uint32(vault.CodeUnauthorized), receipt.Code)
}

func TestReplayRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(vault.RateScale)

	inv := f.invocation("vault.update_price", UpdatePriceArgs{Price: 2 * vault.RateScale}, f.seller)
	receipt, err := f.host.Invoke(context.Background(), inv)
	require.NoError(t, err)
	require.True(t, receipt.OK)

	_, err = f.host.Invoke(context.Background(), inv)
	require.ErrorIs(t, err, ErrReplay)
}

func TestFailedInvocationCanBeRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(vault.RateScale)

	inv := f.invocation("vault.claim_request", SenderArgs{Sender: f.alice.String()}, f.alice)
	first, err := f.host.Invoke(context.Background(), inv)
	require.NoError(t, err)
	require.Equal(t, "NoRedeemRequest", first.CodeName)

	second, err := f.host.Invoke(context.Background(), inv)
	require.NoError(t, err)
	require.Equal(t, first.Digest, second.Digest)
}

func TestInvocationRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.host.Invoke(ctx, nil)
	require.ErrorIs(t, err, ErrNilInvocation)

	wrongChain := f.invocation("vault.settle_epoch", struct{}{}, f.treasury)
	wrongChain.ChainID = 99
	_, err = f.host.Invoke(ctx, wrongChain)
	require.ErrorIs(t, err, ErrChainIDMismatch)

	_, err = f.host.Invoke(ctx, f.invocation("vault.settle_epoch", struct{}{}))
	require.ErrorIs(t, err, ErrNoSigners)

	_, err = f.host.Invoke(ctx, f.invocation("vault.explode", struct{}{}, f.seller))
	require.ErrorIs(t, err, ErrUnknownMethod)

	_, err = f.host.Invoke(ctx, f.invocation("vault.redeem_request", map[string]string{"sender": f.alice.String(), "amount": "ten"}, f.alice))
	require.ErrorIs(t, err, ErrInvalidArgs)

	_, err = f.host.Invoke(ctx, f.invocation("vault.redeem_request", map[string]string{"sender": "bogus", "amount": "1"}, f.alice))
	require.ErrorIs(t, err, ErrInvalidArgs)

	_, err = f.host.Invoke(ctx, f.invocation("vault.cancel_request", map[string]string{"sender": f.alice.String(), "extra": "x"}, f.alice))
	require.ErrorIs(t, err, ErrInvalidArgs)
}

func TestTokenMethods(t *testing.T) {
	f := newFixture(t, nil)
	bob := newActor(t)

	f.mustCall("token.transfer", TransferArgs{Token: "USDC", From: f.alice.String(), To: bob.String(), Amount: "10"}, f.alice)
	require.Equal(t, "10", f.balance("USDC", bob.addr))

	f.mustCall("token.approve", ApproveArgs{Token: "USDC", Owner: f.alice.String(), Spender: bob.String(), Amount: "7"}, f.alice)
	allowance, err := f.host.Allowance("USDC", f.alice.addr, bob.addr)
	require.NoError(t, err)
	require.Equal(t, "7", allowance.Allowance)

	f.mustCall("token.transfer_from", TransferFromArgs{Token: "USDC", Spender: bob.String(), Owner: f.alice.String(), To: bob.String(), Amount: "7"}, bob)
	require.Equal(t, "17", f.balance("USDC", bob.addr))

	receipt := f.call("token.transfer", TransferArgs{Token: "USDC", From: f.alice.String(), To: bob.String(), Amount: "1"}, bob)
	require.False(t, receipt.OK)
	require.Equal(t, "Unauthorized", receipt.CodeName)

	receipt = f.call("token.transfer", TransferArgs{Token: "USDC", From: bob.String(), To: f.alice.String(), Amount: "1000"}, bob)
	require.Equal(t, uint32(vault.CodeTokenTransferFailed), receipt.Code)
}

func TestStrangerCannotSpendVaultFunds(t *testing.T) {
	f := newFixture(t, nil)
	f.initialize(vault.RateScale)
	f.mustCall("vault.deposit", DepositArgs{Buyer: f.alice.String(), BuyAmount: "100", MinSellAmount: "100"}, f.alice)
	f.mustCall("vault.redeem_request", RedeemRequestArgs{Sender: f.alice.String(), Amount: "5"}, f.alice)
	f.mustCall("vault.settle_epoch", struct{}{}, f.treasury)

	mallory := newActor(t)
	vaultAddr := crypto.FormatAddress(f.host.VaultAddress())
	snapshot := func() map[string]string {
		return map[string]string{
			"vault SHARE":   f.balance("SHARE", f.host.VaultAddress()),
			"vault USDC":    f.balance("USDC", f.host.VaultAddress()),
			"treasury USDC": f.balance("USDC", f.treasury.addr),
			"alice USDC":    f.balance("USDC", f.alice.addr),
			"mallory SHARE": f.balance("SHARE", mallory.addr),
			"mallory USDC":  f.balance("USDC", mallory.addr),
		}
	}
	before := snapshot()
	require.Equal(t, "5", before["vault USDC"])

	attempts := []struct {
		name   string
		method string
		args   interface{}
	}{
		{"transfer vault shares", "token.transfer", TransferArgs{Token: "SHARE", From: vaultAddr, To: mallory.String(), Amount: "999900"}},
		{"transfer vault usdc", "token.transfer", TransferArgs{Token: "USDC", From: vaultAddr, To: mallory.String(), Amount: "5"}},
		{"approve from vault", "token.approve", ApproveArgs{Token: "USDC", Owner: vaultAddr, Spender: mallory.String(), Amount: "5"}},
		{"transfer treasury usdc", "token.transfer", TransferArgs{Token: "USDC", From: f.treasury.String(), To: mallory.String(), Amount: "1"}},
		{"deposit as vault", "vault.deposit", DepositArgs{Buyer: vaultAddr, BuyAmount: "5"}},
		{"deposit as alice", "vault.deposit", DepositArgs{Buyer: f.alice.String(), BuyAmount: "5"}},
		{"redeem as vault", "vault.redeem_request", RedeemRequestArgs{Sender: vaultAddr, Amount: "5"}},
		{"redeem as alice", "vault.redeem_request", RedeemRequestArgs{Sender: f.alice.String(), Amount: "5"}},
	}
	for _, tc := range attempts {
		receipt := f.call(tc.method, tc.args, mallory)
		require.False(t, receipt.OK, tc.name)
		require.Equal(t, "Unauthorized", receipt.CodeName, tc.name)
	}

	allowance, err := f.host.Allowance("USDC", f.host.VaultAddress(), mallory.addr)
	require.NoError(t, err)
	require.Equal(t, "0", allowance.Allowance)
	epoch, err := f.host.Epoch()
	require.NoError(t, err)
	require.Equal(t, "0", epoch.TotalRedeem)
	require.Equal(t, before, snapshot())

	claimed := f.mustCall("vault.claim_request", SenderArgs{Sender: f.alice.String()}, f.alice)
	require.JSONEq(t, `{"payout":"5"}`, string(claimed.Result))
}

func TestPausedModules(t *testing.T) {
	f := newFixture(t, nativecommon.NewPauseSet("vault", "token"))

	receipt := f.call("vault.initialize", InitializeArgs{
		Seller: f.seller.String(), Treasury: f.treasury.String(), SellToken: "SHARE", BuyToken: "USDC", Price: 1,
	}, f.seller)
	require.False(t, receipt.OK)
	require.Equal(t, uint32(vault.CodeModulePaused), receipt.Code)

	receipt = f.call("token.transfer", TransferArgs{Token: "USDC", From: f.alice.String(), To: f.seller.String(), Amount: "1"}, f.alice)
	require.False(t, receipt.OK)
	require.Equal(t, uint32(vault.CodeModulePaused), receipt.Code)
}

func TestApplyGenesisOnce(t *testing.T) {
	f := newFixture(t, nil)
	ok, err := f.host.Initialized()
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, f.host.ApplyGenesis(&config.Genesis{}), ErrGenesisApplied)
	require.ErrorIs(t, f.host.ApplyGenesis(&config.Genesis{ChainID: 99}), ErrChainIDMismatch)

	vaultShares := f.balance("SHARE", f.host.VaultAddress())
	require.Equal(t, "1000000", vaultShares)
}
