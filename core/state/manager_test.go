package state

import (
	"math/big"
	"testing"

	"epochvault/storage"
)

type kvRecord struct {
	Amount  *big.Int
	EpochID uint32
}

func TestManagerCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("vault/epoch"), uint32(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("expected no writes before commit, got %d keys", db.Len())
	}
	if mgr.Dirty() != 1 {
		t.Fatalf("expected one dirty key, got %d", mgr.Dirty())
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mgr.Dirty() != 0 {
		t.Fatalf("expected clean view after commit, got %d", mgr.Dirty())
	}

	if err := mgr.KVPut([]byte("vault/epoch"), uint32(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	var pendingEpoch uint32
	if ok, err := mgr.KVGet([]byte("vault/epoch"), &pendingEpoch); err != nil || !ok {
		t.Fatalf("get pending: ok=%v err=%v", ok, err)
	}
	if pendingEpoch != 2 {
		t.Fatalf("expected pending view to read its own write, got %d", pendingEpoch)
	}
	mgr.Discard()

	fresh := NewManager(db)
	var epoch uint32
	ok, err := fresh.KVGet([]byte("vault/epoch"), &epoch)
	if err != nil || !ok {
		t.Fatalf("get committed: ok=%v err=%v", ok, err)
	}
	if epoch != 1 {
		t.Fatalf("expected discarded write to be dropped, got %d", epoch)
	}
}

func TestManagerKVAbsentVersusZero(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	var rec kvRecord
	ok, err := mgr.KVGet([]byte("missing"), &rec)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key to be reported absent")
	}

	if err := mgr.KVPut([]byte("zero"), &kvRecord{Amount: big.NewInt(0)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = mgr.KVGet([]byte("zero"), &rec)
	if err != nil || !ok {
		t.Fatalf("expected stored zero to be present: ok=%v err=%v", ok, err)
	}
	if rec.Amount.Sign() != 0 || rec.EpochID != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestManagerBalancesRequireRegisteredToken(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := []byte{0x01, 0x02}

	if err := mgr.SetBalance(addr, "usdc", big.NewInt(10)); err == nil {
		t.Fatalf("expected unregistered token to be rejected")
	}
	if err := mgr.RegisterToken("usdc", "USD Coin", 6); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.RegisterToken("USDC", "USD Coin", 6); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := mgr.SetBalance(addr, "USDC", big.NewInt(10)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := mgr.SetBalance(addr, "USDC", big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative balance to be rejected")
	}
	bal, err := mgr.Balance(addr, " usdc ")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected balance %s", bal)
	}

	list, err := mgr.TokenList()
	if err != nil {
		t.Fatalf("token list: %v", err)
	}
	if len(list) != 1 || list[0] != "USDC" {
		t.Fatalf("unexpected token list %v", list)
	}
}

func TestManagerAllowances(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.RegisterToken("VLT", "Vault Share", 7); err != nil {
		t.Fatalf("register: %v", err)
	}
	owner, spender := []byte{0xAA}, []byte{0xBB}
	if err := mgr.SetAllowance(owner, spender, "VLT", big.NewInt(42)); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	got, err := mgr.Allowance(owner, spender, "vlt")
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if got.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected allowance %s", got)
	}
	reverse, err := mgr.Allowance(spender, owner, "VLT")
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if reverse.Sign() != 0 {
		t.Fatalf("expected reverse allowance to be zero, got %s", reverse)
	}
}

func TestManagerKVAppendDeduplicates(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := []byte("index")
	for _, v := range [][]byte{{1}, {2}, {1}} {
		if err := mgr.KVAppend(key, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}

	var empty [][]byte
	if err := mgr.KVGetList([]byte("none"), &empty); err != nil {
		t.Fatalf("get empty list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}
