package l2executor

import (
	"testing"

	"github.com/holiman/uint256"

	"covalent/internal/kv"
	"covalent/internal/l2types"
	"covalent/internal/triedb"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	store, err := kv.Open(t.TempDir()+"/l2.db", NodeNamespace)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(triedb.NewBackend(store))
}

func addr(b byte) (a l2types.Address) {
	a[l2types.AddressLength-1] = b
	return a
}

func token(b byte) (tk l2types.TokenID) {
	tk[31] = b
	return tk
}

func signed(hash byte, reqs ...l2types.Request) l2types.SignedTransaction {
	raw := l2types.RawTransaction{ChainID: 1, Requests: reqs}
	var h l2types.Hash
	h[31] = hash
	return l2types.SignedTransaction{Raw: raw, TxHash: h}
}

func TestMintThenLockUnlock(t *testing.T) {
	e := newTestExecutor(t)
	a1, tk1 := addr(1), token(1)

	mint := signed(1, l2types.Request{Address: a1, TokenID: tk1, Amount: uint256.NewInt(100), Action: l2types.ActionMint})
	resp, err := e.Exec(l2types.Hash{}, []l2types.SignedTransaction{mint})
	if err != nil {
		t.Fatalf("exec mint: %v", err)
	}
	if resp.Responses[0].Error != nil {
		t.Fatalf("mint failed: %+v", resp.Responses[0].Error)
	}

	lock := signed(2, l2types.Request{Address: a1, TokenID: tk1, Amount: uint256.NewInt(40), Action: l2types.ActionLock})
	resp, err = e.Exec(resp.StateRoot, []l2types.SignedTransaction{lock})
	if err != nil {
		t.Fatalf("exec lock: %v", err)
	}
	if resp.Responses[0].Error != nil {
		t.Fatalf("lock failed: %+v", resp.Responses[0].Error)
	}

	bal := readBalance(t, e, resp.StateRoot, a1, tk1)
	if bal.Active.Uint64() != 60 || bal.Locked.Uint64() != 40 {
		t.Fatalf("unexpected balance after lock: active=%s locked=%s", bal.Active, bal.Locked)
	}

	unlock := signed(3, l2types.Request{Address: a1, TokenID: tk1, Amount: uint256.NewInt(40), Action: l2types.ActionUnlock})
	resp, err = e.Exec(resp.StateRoot, []l2types.SignedTransaction{unlock})
	if err != nil {
		t.Fatalf("exec unlock: %v", err)
	}
	bal = readBalance(t, e, resp.StateRoot, a1, tk1)
	if bal.Active.Uint64() != 100 || bal.Locked.Uint64() != 0 {
		t.Fatalf("unexpected balance after unlock: active=%s locked=%s", bal.Active, bal.Locked)
	}
}

func TestLockInsufficientActiveFailsWithoutMutatingState(t *testing.T) {
	e := newTestExecutor(t)
	a1, tk1 := addr(1), token(1)

	mint := signed(1, l2types.Request{Address: a1, TokenID: tk1, Amount: uint256.NewInt(10), Action: l2types.ActionMint})
	resp, err := e.Exec(l2types.Hash{}, []l2types.SignedTransaction{mint})
	if err != nil {
		t.Fatalf("exec mint: %v", err)
	}
	rootAfterMint := resp.StateRoot

	overLock := signed(2, l2types.Request{Address: a1, TokenID: tk1, Amount: uint256.NewInt(50), Action: l2types.ActionLock})
	resp, err = e.Exec(rootAfterMint, []l2types.SignedTransaction{overLock})
	if err != nil {
		t.Fatalf("exec lock: %v", err)
	}
	if resp.Responses[0].Error == nil || resp.Responses[0].Error.Code != l2types.ErrCodeActiveLessThanLock {
		t.Fatalf("expected ActiveAmountLessThanLock, got %+v", resp.Responses[0].Error)
	}

	bal := readBalance(t, e, resp.StateRoot, a1, tk1)
	if bal.Active.Uint64() != 10 || bal.Locked.Uint64() != 0 {
		t.Fatalf("balance must be unchanged after failed tx: active=%s locked=%s", bal.Active, bal.Locked)
	}
}

func TestTransferMovesBetweenAccounts(t *testing.T) {
	e := newTestExecutor(t)
	a1, a2, tk1 := addr(1), addr(2), token(1)

	mint := signed(1, l2types.Request{Address: a1, TokenID: tk1, Amount: uint256.NewInt(100), Action: l2types.ActionMint})
	resp, err := e.Exec(l2types.Hash{}, []l2types.SignedTransaction{mint})
	if err != nil {
		t.Fatalf("exec mint: %v", err)
	}

	xfer := signed(2, l2types.Request{Address: a1, TokenID: tk1, To: a2, Amount: uint256.NewInt(30), Action: l2types.ActionTransfer})
	resp, err = e.Exec(resp.StateRoot, []l2types.SignedTransaction{xfer})
	if err != nil {
		t.Fatalf("exec transfer: %v", err)
	}
	if resp.Responses[0].Error != nil {
		t.Fatalf("transfer failed: %+v", resp.Responses[0].Error)
	}

	b1 := readBalance(t, e, resp.StateRoot, a1, tk1)
	b2 := readBalance(t, e, resp.StateRoot, a2, tk1)
	if b1.Active.Uint64() != 70 {
		t.Fatalf("sender active = %s, want 70", b1.Active)
	}
	if b2.Active.Uint64() != 30 {
		t.Fatalf("recipient active = %s, want 30", b2.Active)
	}
}

func readBalance(t *testing.T, e *Executor, root l2types.Hash, a l2types.Address, tk l2types.TokenID) l2types.TokenBalance {
	t.Helper()
	stateTrie, err := triedb.Open(e.backend, NodeNamespace, [32]byte(root))
	if err != nil {
		t.Fatalf("open state trie: %v", err)
	}
	data, err := stateTrie.Get(a[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acct, err := l2types.DecodeAccount(data)
	if err != nil {
		t.Fatalf("decode account: %v", err)
	}
	balTrie, err := triedb.Open(e.backend, NodeNamespace, [32]byte(acct.BalanceRoot))
	if err != nil {
		t.Fatalf("open balance trie: %v", err)
	}
	bdata, err := balTrie.Get(tk[:])
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	bal, err := l2types.DecodeTokenBalance(bdata)
	if err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	return bal
}
