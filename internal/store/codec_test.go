package store

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/nintondo/doge20indexer/internal/fixed128"
	"github.com/nintondo/doge20indexer/internal/model"
)

func TestTokenMetaRoundTrip(t *testing.T) {
	max, _ := fixed128.Parse("21000000")
	lim, _ := fixed128.Parse("1000")
	supply, _ := fixed128.Parse("500000.5")

	in := &model.TokenMeta{
		GenesisIndex:  1,
		Max:           max,
		Lim:           lim,
		Dec:           8,
		Supply:        supply,
		MintCount:     42,
		TransferCount: 7,
		Transactions:  49,
		Height:        123456,
		CreatedUnix:   1700000000,
	}
	copy(in.Tick[:], "doge")

	out, err := DecodeTokenMeta(EncodeTokenMeta(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Supply.String() != in.Supply.String() || out.Max.String() != in.Max.String() {
		t.Fatalf("mismatch:\nin  %s\nout %s", spew.Sdump(in), spew.Sdump(out))
	}
	if out.MintCount != in.MintCount || out.Height != in.Height {
		t.Fatalf("mismatch: %s", spew.Sdump(out))
	}
}

func TestNegativeFixed128RoundTrip(t *testing.T) {
	neg := fixed128.Zero.Sub(fixed128.FromUint64(5))
	bal := &model.TokenBalance{Balance: neg, TransferableBalance: fixed128.Zero}
	out, err := DecodeTokenBalance(EncodeTokenBalance(bal))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Balance.Sign() >= 0 {
		t.Fatalf("sign lost: %s", out.Balance.String())
	}
	if out.Balance.String() != "-5" {
		t.Fatalf("got %s, want -5", out.Balance.String())
	}
}

func TestOffsetsRoundTrip(t *testing.T) {
	in := []uint64{0, 546, 100000000}
	out, err := DecodeOffsets(EncodeOffsets(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: %s", spew.Sdump(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("offset %d: got %d want %d", i, out[i], in[i])
		}
	}
}
