package token

import (
	"testing"

	"github.com/nintondo/doge20indexer/internal/fixed128"
	"github.com/nintondo/doge20indexer/internal/model"
)

// noopHolders satisfies the Holders interface without tracking anything;
// these tests assert on RuntimeState/Delta directly.
type noopHolders struct{}

func (noopHolders) Increase(model.AddressToken, *model.TokenBalance, fixed128.Fixed128) {}
func (noopHolders) Decrease(model.AddressToken, *model.TokenBalance, fixed128.Fixed128) {}

func mkTick(t *testing.T, s string) model.Tick {
	t.Helper()
	tk, err := model.ParseTick([]byte(s), false)
	if err != nil {
		t.Fatalf("ParseTick(%q): %v", s, err)
	}
	return tk
}

func mkAddr(b byte) model.ScriptHash {
	var h model.ScriptHash
	h[0] = b
	return h
}

func dec(t *testing.T, s string) fixed128.Fixed128 {
	t.Helper()
	v, err := fixed128.Parse(s)
	if err != nil {
		t.Fatalf("fixed128.Parse(%q): %v", s, err)
	}
	return v
}

func TestDeployThenMintIncreasesSupplyAndBalance(t *testing.T) {
	rt := NewRuntimeState()
	tk := mkTick(t, "doge")
	owner := mkAddr(1)

	bs := NewBlockState(rt, nil)
	bs.PushAction(Action{
		Kind:    ActionKindDeploy,
		Owner:   owner,
		Genesis: model.Outpoint{Vout: 0},
		Deploy:  DeployProto{Tick: tk, Max: dec(t, "1000"), Lim: dec(t, "100"), Dec: 18},
	})
	bs.PushAction(Action{
		Kind:           ActionKindMint,
		Owner:          owner,
		MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "50")},
	})

	history, delta := bs.Finish(noopHolders{}, 1)

	if len(history) != 2 {
		t.Fatalf("got %d history entries, want 2", len(history))
	}
	if history[0].Action != model.ActionDeploy || history[1].Action != model.ActionMint {
		t.Fatalf("unexpected actions: %v, %v", history[0].Action, history[1].Action)
	}

	meta := rt.Tokens[tk.Lower()]
	if meta == nil {
		t.Fatal("expected token metadata to be created")
	}
	if meta.Supply.String() != "50" {
		t.Fatalf("supply = %s, want 50", meta.Supply.String())
	}
	if meta.MintCount != 1 {
		t.Fatalf("mintCount = %d, want 1", meta.MintCount)
	}

	key := model.AddressToken{Address: owner, Tick: tk.Lower()}
	bal := rt.Balances[key]
	if bal == nil || bal.Balance.String() != "50" {
		t.Fatalf("balance = %+v, want 50", bal)
	}
	if len(delta.Metas) != 1 || len(delta.Balances) != 1 {
		t.Fatalf("delta = %+v", delta)
	}
}

func TestMintClampsToRemainingCap(t *testing.T) {
	rt := NewRuntimeState()
	tk := mkTick(t, "doge")
	owner := mkAddr(1)

	bs := NewBlockState(rt, nil)
	bs.PushAction(Action{Kind: ActionKindDeploy, Owner: owner, Deploy: DeployProto{Tick: tk, Max: dec(t, "100"), Lim: dec(t, "100"), Dec: 18}})
	bs.PushAction(Action{Kind: ActionKindMint, Owner: owner, MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "80")}})
	bs.Finish(noopHolders{}, 1)

	bs2 := NewBlockState(rt, nil)
	bs2.PushAction(Action{Kind: ActionKindMint, Owner: owner, MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "80")}})
	history, _ := bs2.Finish(noopHolders{}, 2)

	if len(history) != 1 {
		t.Fatalf("got %d history entries, want 1", len(history))
	}
	if history[0].Amt.String() != "20" {
		t.Fatalf("clamped mint amt = %s, want 20 (only 20 left under cap)", history[0].Amt.String())
	}
	meta := rt.Tokens[tk.Lower()]
	if meta.Supply.String() != "100" {
		t.Fatalf("supply = %s, want 100 (fully minted)", meta.Supply.String())
	}
}

func TestMintRejectsOverLimitOrExcessDecimals(t *testing.T) {
	rt := NewRuntimeState()
	tk := mkTick(t, "doge")
	owner := mkAddr(1)

	bs := NewBlockState(rt, nil)
	bs.PushAction(Action{Kind: ActionKindDeploy, Owner: owner, Deploy: DeployProto{Tick: tk, Max: dec(t, "1000"), Lim: dec(t, "10"), Dec: 2}})
	bs.Finish(noopHolders{}, 1)

	bs2 := NewBlockState(rt, nil)
	bs2.PushAction(Action{Kind: ActionKindMint, Owner: owner, MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "20")}}) // over lim
	bs2.PushAction(Action{Kind: ActionKindMint, Owner: owner, MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "1.001")}}) // too many decimals
	history, _ := bs2.Finish(noopHolders{}, 2)

	if len(history) != 0 {
		t.Fatalf("expected both mints to be rejected, got %d history entries", len(history))
	}
	if rt.Tokens[tk.Lower()].Supply.String() != "0" {
		t.Fatalf("expected supply unchanged, got %s", rt.Tokens[tk.Lower()].Supply.String())
	}
}

func TestDuplicateDeployIgnored(t *testing.T) {
	rt := NewRuntimeState()
	tk := mkTick(t, "doge")
	owner := mkAddr(1)

	bs := NewBlockState(rt, nil)
	bs.PushAction(Action{Kind: ActionKindDeploy, Owner: owner, Deploy: DeployProto{Tick: tk, Max: dec(t, "100"), Lim: dec(t, "100"), Dec: 18}})
	bs.Finish(noopHolders{}, 1)
	firstDeployer := rt.Tokens[tk.Lower()].Deployer

	bs2 := NewBlockState(rt, nil)
	bs2.PushAction(Action{Kind: ActionKindDeploy, Owner: mkAddr(2), Deploy: DeployProto{Tick: tk, Max: dec(t, "500"), Lim: dec(t, "500"), Dec: 18}})
	history, _ := bs2.Finish(noopHolders{}, 2)

	if len(history) != 0 {
		t.Fatalf("expected duplicate deploy to be dropped, got %d history entries", len(history))
	}
	if rt.Tokens[tk.Lower()].Deployer != firstDeployer {
		t.Fatal("expected original deployer to be preserved")
	}
	if rt.Tokens[tk.Lower()].Max.String() != "100" {
		t.Fatal("expected original max to be preserved")
	}
}

// TestFullTransferLifecycle exercises deploy -> mint -> transfer(inscribe) ->
// transferred(send), the complete BRC-20 action chain, across blocks the
// way internal/indexer would drive it: each block's prevouts determine
// which in-flight transfers are reachable via ToRemove/NewBlockState.
func TestFullTransferLifecycle(t *testing.T) {
	rt := NewRuntimeState()
	tk := mkTick(t, "doge")
	sender := mkAddr(1)
	recipient := mkAddr(2)

	// Block 1: deploy + mint 100 to sender.
	bs := NewBlockState(rt, nil)
	bs.PushAction(Action{Kind: ActionKindDeploy, Owner: sender, Deploy: DeployProto{Tick: tk, Max: dec(t, "1000"), Lim: dec(t, "1000"), Dec: 18}})
	bs.PushAction(Action{Kind: ActionKindMint, Owner: sender, MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "100")}})
	bs.Finish(noopHolders{}, 1)

	// Block 2: sender inscribes a "transfer" of 30, creating a transfer
	// proto at its own genesis location.
	transferLoc := model.Location{Outpoint: model.Outpoint{Vout: 0}, Offset: 0}
	bs2 := NewBlockState(rt, nil)
	proto := &model.TransferProto{}
	bs2.RegisterTransfer(transferLoc, proto)
	bs2.PushAction(Action{
		Kind:           ActionKindTransfer,
		Owner:          sender,
		Location:       transferLoc,
		MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "30")},
	})
	bs2.Finish(noopHolders{}, 2)

	senderKey := model.AddressToken{Address: sender, Tick: tk.Lower()}
	senderBal := rt.Balances[senderKey]
	if senderBal.Balance.String() != "70" {
		t.Fatalf("sender balance after transfer inscription = %s, want 70", senderBal.Balance.String())
	}
	if senderBal.TransferableBalance.String() != "30" {
		t.Fatalf("sender transferable balance = %s, want 30", senderBal.TransferableBalance.String())
	}
	if _, ok := rt.ValidTransfers[transferLoc]; !ok {
		t.Fatal("expected transfer to be registered as valid after Finish")
	}

	// Block 3: the transfer inscription's UTXO is spent to recipient.
	prevouts := map[model.Outpoint]model.ScriptHash{transferLoc.Outpoint: sender}
	bs3 := NewBlockState(rt, prevouts)
	toRemove := bs3.ToRemove()
	if len(toRemove) != 1 || toRemove[0].Location != transferLoc {
		t.Fatalf("expected ToRemove to surface the spent transfer, got %+v", toRemove)
	}
	bs3.PushAction(Action{
		Kind:             ActionKindTransferred,
		TransferLocation: transferLoc,
		Recipient:        recipient,
	})
	history, _ := bs3.Finish(noopHolders{}, 3)

	if len(history) != 2 || history[0].Action != model.ActionSend || history[1].Action != model.ActionReceive {
		t.Fatalf("expected a send row and a receive row, got %+v", history)
	}
	if history[0].Address != sender || history[0].Sender != sender {
		t.Fatalf("unexpected send row: %+v", history[0])
	}
	if history[1].Address != recipient || history[1].Sender != sender {
		t.Fatalf("unexpected receive row: %+v", history[1])
	}

	if senderBal.TransferableBalance.String() != "0" || senderBal.TransfersCount != 0 {
		t.Fatalf("sender transferable balance not cleared: %+v", senderBal)
	}
	recipientBal := rt.Balances[model.AddressToken{Address: recipient, Tick: tk.Lower()}]
	if recipientBal == nil || recipientBal.Balance.String() != "30" {
		t.Fatalf("recipient balance = %+v, want 30", recipientBal)
	}
	if _, ok := rt.ValidTransfers[transferLoc]; ok {
		t.Fatal("expected transfer to be removed from ValidTransfers after being spent")
	}
}

func TestTransferredToOpReturnBurnsWithoutCreditingRecipient(t *testing.T) {
	rt := NewRuntimeState()
	tk := mkTick(t, "doge")
	sender := mkAddr(1)

	bs := NewBlockState(rt, nil)
	bs.PushAction(Action{Kind: ActionKindDeploy, Owner: sender, Deploy: DeployProto{Tick: tk, Max: dec(t, "1000"), Lim: dec(t, "1000"), Dec: 18}})
	bs.PushAction(Action{Kind: ActionKindMint, Owner: sender, MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "100")}})
	bs.Finish(noopHolders{}, 1)

	transferLoc := model.Location{Outpoint: model.Outpoint{Vout: 0}, Offset: 0}
	bs2 := NewBlockState(rt, nil)
	bs2.RegisterTransfer(transferLoc, &model.TransferProto{})
	bs2.PushAction(Action{Kind: ActionKindTransfer, Owner: sender, Location: transferLoc, MintOrTransfer: MintProto{Tick: tk, Amt: dec(t, "30")}})
	bs2.Finish(noopHolders{}, 2)

	prevouts := map[model.Outpoint]model.ScriptHash{transferLoc.Outpoint: sender}
	bs3 := NewBlockState(rt, prevouts)
	bs3.PushAction(Action{Kind: ActionKindTransferred, TransferLocation: transferLoc, Recipient: model.OpReturnHash})
	history, _ := bs3.Finish(noopHolders{}, 3)

	if len(history) != 1 || history[0].Action != model.ActionSend || history[0].Address != sender {
		t.Fatalf("expected a single send entry under the sender's own history, got %+v", history)
	}
	burnKey := model.AddressToken{Address: model.OpReturnHash, Tick: tk.Lower()}
	if _, exists := rt.Balances[burnKey]; exists {
		t.Fatal("expected no balance row created for the burn address")
	}
}

func TestTransferredUnknownLocationDropped(t *testing.T) {
	rt := NewRuntimeState()
	bs := NewBlockState(rt, nil)
	bs.PushAction(Action{Kind: ActionKindTransferred, TransferLocation: model.Location{}, Recipient: mkAddr(9)})
	history, delta := bs.Finish(noopHolders{}, 1)
	if len(history) != 0 {
		t.Fatalf("expected no history for an untracked transfer location, got %+v", history)
	}
	if len(delta.Balances) != 0 {
		t.Fatalf("expected no balance changes, got %+v", delta.Balances)
	}
}
