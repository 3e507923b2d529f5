package reorg

import (
	"testing"

	"github.com/nintondo/doge20indexer/internal/model"
	"github.com/nintondo/doge20indexer/internal/store"
)

// recordingBatch captures every Put/Delete call in order, for asserting both
// the resulting state and the order operations were applied in.
type recordingBatch struct {
	ops []string
	keys []string // keys[i] is the key of ops[i]
	puts map[string][]byte
}

func newRecordingBatch() *recordingBatch {
	return &recordingBatch{puts: make(map[string][]byte)}
}

func (b *recordingBatch) Put(cf string, key, value []byte) {
	b.ops = append(b.ops, "put:"+cf)
	b.keys = append(b.keys, string(key))
	b.puts[cf+"|"+string(key)] = value
}

func (b *recordingBatch) Delete(cf string, key []byte) {
	b.ops = append(b.ops, "del:"+cf)
	b.keys = append(b.keys, string(key))
	delete(b.puts, cf+"|"+string(key))
}

func outpoint(b byte) model.Outpoint {
	var op model.Outpoint
	op.Txid[0] = b
	return op
}

func TestNewBlockEvictsOldest(t *testing.T) {
	c := New(2)
	c.NewBlock(1)
	c.NewBlock(2)
	c.NewBlock(3) // evicts height 1

	b := newRecordingBatch()
	if _, ok := c.Restore(b, 1); ok {
		t.Fatal("expected Restore to fail: height 1 was evicted")
	}
}

func TestPushAndRestoreOrdinals(t *testing.T) {
	c := New(10)
	c.NewBlock(5)
	op := outpoint(7)
	c.PushOrdinals(OrdinalsEntry{Kind: OrdinalsRemovePartials, RemovePartials: []model.Outpoint{op}})

	b := newRecordingBatch()
	newLast, ok := c.Restore(b, 5)
	if !ok {
		t.Fatal("expected Restore to succeed")
	}
	if newLast != 4 {
		t.Fatalf("newLastBlock = %d, want 4", newLast)
	}
	wantKey := "outpoint_to_partials|" + string(store.OutpointKey(op))
	if _, deleted := b.puts[wantKey]; deleted {
		t.Fatal("expected partials row to be deleted on restore")
	}
}

func TestRestoreAppliesOrdinalsBeforeTokensInReverseOrder(t *testing.T) {
	c := New(10)
	c.NewBlock(1)
	c.PushOrdinals(OrdinalsEntry{Kind: OrdinalsRemovePartials, RemovePartials: []model.Outpoint{outpoint(1)}})
	c.PushToken(TokenEntry{Kind: TokenDeploysToRemove, Ticks: []model.LowerCaseTick{tick(t, "doge")}})

	b := newRecordingBatch()
	if _, ok := c.Restore(b, 1); !ok {
		t.Fatal("expected Restore to succeed")
	}

	// Within a single block, ordinals inverses are replayed before token
	// inverses (original_source's proceed-in-reverse order).
	var ordIdx, tokIdx = -1, -1
	for i, op := range b.ops {
		if op == "del:outpoint_to_partials" && ordIdx == -1 {
			ordIdx = i
		}
		if op == "del:token_to_meta" && tokIdx == -1 {
			tokIdx = i
		}
	}
	if ordIdx == -1 || tokIdx == -1 {
		t.Fatalf("expected both operations to run, got ops=%v", b.ops)
	}
	if ordIdx > tokIdx {
		t.Fatalf("expected ordinals inverse before token inverse, got ops=%v", b.ops)
	}
}

func TestRestoreMultipleBlocksNewestFirst(t *testing.T) {
	c := New(10)
	c.NewBlock(10)
	c.PushToken(TokenEntry{Kind: TokenDeploysToRemove, Ticks: []model.LowerCaseTick{tick(t, "aaaa")}})
	c.NewBlock(11)
	c.PushToken(TokenEntry{Kind: TokenDeploysToRemove, Ticks: []model.LowerCaseTick{tick(t, "bbbb")}})

	b := newRecordingBatch()
	newLast, ok := c.Restore(b, 10)
	if !ok {
		t.Fatal("expected Restore to succeed")
	}
	if newLast != 9 {
		t.Fatalf("newLastBlock = %d, want 9", newLast)
	}

	var aIdx, bIdx = -1, -1
	for i, op := range b.ops {
		if op == "del:token_to_meta" {
			if aIdx == -1 {
				aIdx = i
			} else {
				bIdx = i
			}
		}
	}
	if aIdx == -1 || bIdx == -1 {
		t.Fatalf("expected two deletes, got ops=%v", b.ops)
	}
	// Block 11's deploy-removal ("bbbb") must be undone before block 10's
	// ("aaaa") since newer blocks roll back first.
	if b.keys[aIdx] != string(store.TokenMetaKey(tick(t, "bbbb"))) || b.keys[bIdx] != string(store.TokenMetaKey(tick(t, "aaaa"))) {
		t.Fatalf("expected block 11's deploy removal before block 10's, got keys=%q", b.keys)
	}
}

func TestRestoreReturnsFalseWhenNothingRetained(t *testing.T) {
	c := New(10)
	b := newRecordingBatch()
	if _, ok := c.Restore(b, 5); ok {
		t.Fatal("expected Restore on empty cache to fail")
	}
}

func TestRestoreAll(t *testing.T) {
	c := New(10)
	c.NewBlock(100)
	c.NewBlock(101)
	c.PushToken(TokenEntry{Kind: TokenDeploysToRemove, Ticks: []model.LowerCaseTick{tick(t, "doge")}})

	b := newRecordingBatch()
	newLast, ok := c.RestoreAll(b)
	if !ok {
		t.Fatal("expected RestoreAll to succeed")
	}
	if newLast != 99 {
		t.Fatalf("newLastBlock = %d, want 99", newLast)
	}
}

func tick(t *testing.T, s string) model.LowerCaseTick {
	t.Helper()
	tk, err := model.ParseTick([]byte(s), false)
	if err != nil {
		t.Fatalf("ParseTick(%q): %v", s, err)
	}
	return tk.Lower()
}
