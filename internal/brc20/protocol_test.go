package brc20

import (
	"testing"

	"github.com/nintondo/doge20indexer/internal/netparams"
)

func TestParseDeploy(t *testing.T) {
	body := []byte(`{"p":"brc-20","op":"deploy","tick":"doge","max":"21000000","lim":"1000"}`)
	op, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain;charset=utf-8", body)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if op.Kind != OpDeploy {
		t.Fatalf("kind = %v, want deploy", op.Kind)
	}
	if op.Tick.String() != "doge" {
		t.Fatalf("tick = %q", op.Tick.String())
	}
	if op.Dec != 18 {
		t.Fatalf("dec defaulted to %d, want 18", op.Dec)
	}
	if op.Lim.String() != "1000" {
		t.Fatalf("lim = %q, want 1000", op.Lim.String())
	}
}

func TestParseDeployLimDefaultsToMaxWhenAbsent(t *testing.T) {
	body := []byte(`{"p":"brc-20","op":"deploy","tick":"doge","max":"500"}`)
	op, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain", body)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if op.Lim.String() != "500" {
		t.Fatalf("lim = %q, want 500 (defaulted from max)", op.Lim.String())
	}
}

func TestParseMintAndTransfer(t *testing.T) {
	mint := []byte(`{"p":"brc-20","op":"mint","tick":"doge","amt":"100"}`)
	op, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain", mint)
	if !ok || op.Kind != OpMint || op.Amt.String() != "100" {
		t.Fatalf("mint parse failed: %+v ok=%v", op, ok)
	}

	xfer := []byte(`{"p":"brc-20","op":"transfer","tick":"doge","amt":"50"}`)
	op, ok = Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain", xfer)
	if !ok || op.Kind != OpTransfer || op.Amt.String() != "50" {
		t.Fatalf("transfer parse failed: %+v ok=%v", op, ok)
	}
}

func TestParseRejectsZeroAmounts(t *testing.T) {
	cases := []string{
		`{"p":"brc-20","op":"mint","tick":"doge","amt":"0"}`,
		`{"p":"brc-20","op":"deploy","tick":"doge","max":"0"}`,
	}
	for _, body := range cases {
		if _, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain", []byte(body)); ok {
			t.Fatalf("expected rejection for zero amount: %s", body)
		}
	}
}

func TestParseRejectsWrongProtocolOrOp(t *testing.T) {
	if _, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain", []byte(`{"p":"brc-21","op":"mint","tick":"doge","amt":"1"}`)); ok {
		t.Fatal("expected rejection of non brc-20 protocol tag")
	}
	if _, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain", []byte(`{"p":"brc-20","op":"burn","tick":"doge","amt":"1"}`)); ok {
		t.Fatal("expected rejection of unrecognized op")
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain", []byte(`not json`)); ok {
		t.Fatal("expected rejection of malformed JSON")
	}
}

func TestParseContentTypePolicySubstringPrefix(t *testing.T) {
	body := []byte(`{"p":"brc-20","op":"mint","tick":"doge","amt":"1"}`)
	if _, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain;foo=bar", body); !ok {
		t.Fatal("substring-prefix policy should accept a parameterized text/plain")
	}
	if _, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "image/png", body); ok {
		t.Fatal("substring-prefix policy should reject unrelated content types")
	}
}

func TestParseContentTypePolicyStrictMIME(t *testing.T) {
	body := []byte(`{"p":"brc-20","op":"mint","tick":"doge","amt":"1"}`)
	if _, ok := Parse(netparams.ContentTypeStrictMIME, false, "text/plain;charset=utf-8", body); !ok {
		t.Fatal("strict MIME policy should accept text/plain before the ';'")
	}
	if _, ok := Parse(netparams.ContentTypeStrictMIME, false, "text/plain-extra", body); ok {
		t.Fatal("strict MIME policy should reject a MIME type that isn't an exact match")
	}
}

func TestParseTickLengthPolicy(t *testing.T) {
	body5 := []byte(`{"p":"brc-20","op":"mint","tick":"doge5","amt":"1"}`)
	if _, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "text/plain", body5); ok {
		t.Fatal("5-byte tick should be rejected when allowFiveByteTick is false")
	}
	if _, ok := Parse(netparams.ContentTypeSubstringPrefix, true, "text/plain", body5); !ok {
		t.Fatal("5-byte tick should be accepted when allowFiveByteTick is true")
	}
}

func TestParseEmptyContentTypeRejected(t *testing.T) {
	body := []byte(`{"p":"brc-20","op":"mint","tick":"doge","amt":"1"}`)
	if _, ok := Parse(netparams.ContentTypeSubstringPrefix, false, "", body); ok {
		t.Fatal("empty content type should always be rejected")
	}
}
