package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "user", "pass")
}

func rpcOK(result interface{}) rpcResponse {
	raw, _ := json.Marshal(result)
	return rpcResponse{Result: raw}
}

func TestGetBestBlockHash(t *testing.T) {
	hashHex := "aa" + strings.Repeat("0", 60) + "bb"
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "pass" {
			t.Fatalf("missing or wrong basic auth")
		}
		json.NewEncoder(w).Encode(rpcOK(hashHex))
	})

	got, err := c.GetBestBlockHash(context.Background())
	if err != nil {
		t.Fatalf("GetBestBlockHash: %v", err)
	}
	want, _ := decodeHash(hashHex)
	if got != want {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestGetBlockHashSendsHeightParam(t *testing.T) {
	var gotMethod string
	var gotParams []interface{}
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotMethod = req.Method
		gotParams = req.Params
		hash := make([]byte, 64)
		for i := range hash {
			hash[i] = '0'
		}
		json.NewEncoder(w).Encode(rpcOK(string(hash)))
	})

	if _, err := c.GetBlockHash(context.Background(), 42); err != nil {
		t.Fatalf("GetBlockHash: %v", err)
	}
	if gotMethod != "getblockhash" {
		t.Fatalf("method = %q, want getblockhash", gotMethod)
	}
	if len(gotParams) != 1 || gotParams[0].(float64) != 42 {
		t.Fatalf("params = %+v, want [42]", gotParams)
	}
}

func TestGetBlockVerboseDecodesFields(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcOK(BlockVerbose{
			Hash:              "abcd",
			Confirmations:     6,
			Height:            100,
			PreviousBlockHash: "dcba",
			Time:              123456,
		}))
	})

	bv, err := c.GetBlockVerbose(context.Background(), [32]byte{})
	if err != nil {
		t.Fatalf("GetBlockVerbose: %v", err)
	}
	if bv.Height != 100 || bv.Confirmations != 6 || bv.PreviousBlockHash != "dcba" {
		t.Fatalf("unexpected block verbose: %+v", bv)
	}
}

func TestCallReturnsErrorOnCanceledContext(t *testing.T) {
	// Use an already-canceled context so the retry loop's ctx.Done() fires
	// immediately instead of sleeping through the real backoff ladder.
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: -5, Message: "block not found"}})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetBestBlockHash(ctx); err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}

func TestGetBlockDecodesRawHex(t *testing.T) {
	raw := minimalBlockHex()
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpcOK(raw))
	})

	blk, err := c.GetBlock(context.Background(), [32]byte{})
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if len(blk.Txs) != 1 {
		t.Fatalf("got %d txs, want 1", len(blk.Txs))
	}
}

// minimalBlockHex returns the hex encoding of an 80-byte header (no AuxPow)
// plus a single minimal transaction, for GetBlock's decode path.
func minimalBlockHex() string {
	le32 := func(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }
	le64 := func(v uint64) []byte {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		return b
	}
	var b []byte
	b = append(b, le32(1)...)
	b = append(b, make([]byte, 32)...)
	b = append(b, make([]byte, 32)...)
	b = append(b, le32(0)...)
	b = append(b, le32(0)...)
	b = append(b, le32(0)...)
	b = append(b, 0x01) // 1 tx
	b = append(b, le32(1)...)
	b = append(b, 0x01)
	b = append(b, make([]byte, 32)...)
	b = append(b, le32(0xffffffff)...)
	b = append(b, 0x00)
	b = append(b, le32(0xffffffff)...)
	b = append(b, 0x01)
	b = append(b, le64(5000000000)...)
	b = append(b, 0x00)
	b = append(b, le32(0)...)

	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}
