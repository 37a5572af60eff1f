package oracle

import (
	"testing"

	"covalent/internal/kv"
	"covalent/internal/l3types"
	"github.com/holiman/uint256"
)

func newTestOracle(t *testing.T) *Oracle {
	t.Helper()
	store, err := kv.Open(t.TempDir()+"/oracle.db", Namespaces()...)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestConfirmedBlockDistinguishesNeverFromZero(t *testing.T) {
	o := newTestOracle(t)

	if _, ok, err := o.ConfirmedBlock(); err != nil || ok {
		t.Fatalf("expected never-confirmed at boot, ok=%v err=%v", ok, err)
	}

	if err := o.SetConfirmedBlock(0); err != nil {
		t.Fatalf("set confirmed block 0: %v", err)
	}

	n, ok, err := o.ConfirmedBlock()
	if err != nil || !ok {
		t.Fatalf("expected block 0 confirmed, ok=%v err=%v", ok, err)
	}
	if n != 0 {
		t.Fatalf("expected confirmed number 0, got %d", n)
	}
}

func TestPendingWithdrawalsRoundTrip(t *testing.T) {
	o := newTestOracle(t)

	var a, b l3types.ChannelID
	a[0], b[0] = 1, 2

	if err := o.AppendPendingWithdrawal(a); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := o.AppendPendingWithdrawal(b); err != nil {
		t.Fatalf("append b: %v", err)
	}

	ids, err := o.PendingWithdrawals()
	if err != nil {
		t.Fatalf("read pending: %v", err)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Fatalf("expected [a b], got %+v", ids)
	}

	if err := o.SetPendingWithdrawals(nil); err != nil {
		t.Fatalf("clear pending: %v", err)
	}
	ids, err = o.PendingWithdrawals()
	if err != nil {
		t.Fatalf("read pending after clear: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty pending, got %+v", ids)
	}
}

func TestPendingCreateChannelRequestsRoundTrip(t *testing.T) {
	o := newTestOracle(t)

	var id l3types.ChannelID
	id[0] = 7
	var partyA, partyB l3types.Address
	partyA[0], partyB[0] = 1, 2

	req := CreateChannelRequest{
		ChannelID: id,
		PartyA:    partyA,
		PartyB:    partyB,
		BalanceA:  uint256.NewInt(100),
		BalanceB:  uint256.NewInt(200),
	}
	if err := o.QueueCreateChannelRequest(req); err != nil {
		t.Fatalf("queue: %v", err)
	}

	reqs, err := o.PendingCreateChannelRequests()
	if err != nil {
		t.Fatalf("read pending creates: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 pending create, got %d", len(reqs))
	}
	got := reqs[0]
	if got.ChannelID != id || got.PartyA != partyA || got.PartyB != partyB {
		t.Fatalf("decoded request mismatch: %+v", got)
	}
	if got.BalanceA.Cmp(uint256.NewInt(100)) != 0 || got.BalanceB.Cmp(uint256.NewInt(200)) != 0 {
		t.Fatalf("decoded balances mismatch: %+v", got)
	}

	if err := o.ClearPendingCreateChannelRequests(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	reqs, err = o.PendingCreateChannelRequests()
	if err != nil {
		t.Fatalf("read after clear: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected no pending creates after clear, got %d", len(reqs))
	}
}
