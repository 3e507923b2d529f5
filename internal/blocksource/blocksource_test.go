package blocksource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	gold "github.com/syndtr/goleveldb/leveldb"

	"github.com/nintondo/doge20indexer/internal/config"
	"github.com/nintondo/doge20indexer/internal/rpcclient"
)

func TestDecodeHashHexRoundTrip(t *testing.T) {
	var h [32]byte
	h[0] = 0xaa
	h[31] = 0xbb
	// encodeHash lives in rpcclient; reproduce its reversed-byte convention
	// here so decodeHashHex's inverse can be checked directly.
	rev := make([]byte, 32)
	for i := 0; i < 32; i++ {
		rev[i] = h[31-i]
	}
	s := hex.EncodeToString(rev)

	got, err := decodeHashHex(s)
	if err != nil {
		t.Fatalf("decodeHashHex: %v", err)
	}
	if got != h {
		t.Fatalf("got %x, want %x", got, h)
	}
}

func TestDecodeHashHexRejectsWrongLength(t *testing.T) {
	if _, err := decodeHashHex("abcd"); err == nil {
		t.Fatal("expected error for short hash string")
	}
}

// --- catchUpFromFiles, against real on-disk block files + a real goleveldb index ---

func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }
func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func minimalTxBytes() []byte {
	var b []byte
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
	return b
}

func blockBytes(prev [32]byte) []byte {
	var b []byte
	b = append(b, le32(1)...)
	b = append(b, prev[:]...)
	b = append(b, make([]byte, 32)...) // merkle root, unused by the reader
	b = append(b, le32(0)...)
	b = append(b, le32(0)...)
	b = append(b, le32(0)...)
	b = append(b, 0x01)
	b = append(b, minimalTxBytes()...)
	return b
}

func blockHash(raw []byte) [32]byte {
	// BlockHash over the 80-byte core header prefix of raw.
	return doubleSHA256(raw[:80])
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

func cvarint(n uint64) []byte {
	var tmp []byte
	tmp = append(tmp, byte(n&0x7f))
	n >>= 7
	for n > 0 {
		n--
		tmp = append(tmp, byte(n&0x7f)|0x80)
		n >>= 7
	}
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp
}

func TestCatchUpFromFilesReadsSequentialHeights(t *testing.T) {
	dir := t.TempDir()
	blkDir := filepath.Join(dir, "blocks")
	idxDir := filepath.Join(dir, "index")
	if err := os.Mkdir(blkDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	magic := [4]byte{0xc0, 0xc0, 0xc0, 0xc0}
	var genesisHash [32]byte
	b1 := blockBytes(genesisHash)
	h1 := blockHash(b1)
	b2 := blockBytes(h1)
	h2 := blockHash(b2)

	blkPath := filepath.Join(blkDir, "blk00000.dat")
	f, err := os.Create(blkPath)
	if err != nil {
		t.Fatalf("create blk file: %v", err)
	}
	var offsets []uint32
	var pos uint32
	for _, blk := range [][]byte{b1, b2} {
		offsets = append(offsets, pos)
		f.Write(magic[:])
		f.Write(le32(uint32(len(blk))))
		f.Write(blk)
		pos += 8 + uint32(len(blk))
	}
	f.Close()

	db, err := gold.OpenFile(idxDir, nil)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	putEntry := func(hash [32]byte, height uint32) {
		key := append([]byte("b"), hash[:]...)
		var val []byte
		val = append(val, cvarint(1)...)       // version
		val = append(val, cvarint(uint64(height))...)
		val = append(val, cvarint(1<<3)...) // have-data status
		val = append(val, cvarint(1)...)       // tx count
		val = append(val, cvarint(0)...)       // file num
		val = append(val, cvarint(uint64(offsets[height-1]))...)
		db.Put(key, val, nil)
	}
	putEntry(h1, 1)
	putEntry(h2, 2)
	db.Close()

	cfg := &config.Config{BlkDir: blkDir, IndexDir: idxDir}
	s := New(cfg, magic, nil)

	events := make(chan Event, 10)
	height, tipHash, err := s.catchUpFromFiles(context.Background(), 0, genesisHash, events)
	if err != nil {
		t.Fatalf("catchUpFromFiles: %v", err)
	}
	close(events)

	var got []Event
	for e := range events {
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(got), got)
	}
	if got[0].Height != 1 || got[1].Height != 2 {
		t.Fatalf("unexpected heights: %d, %d", got[0].Height, got[1].Height)
	}
	if height != 2 || tipHash != h2 {
		t.Fatalf("final height/hash = %d/%x, want 2/%x", height, tipHash, h2)
	}
}

// --- tailFromRPC, against a fake HTTP JSON-RPC node ---

type fakeNode struct {
	tip    uint32
	hashes map[uint32][32]byte
	blocks map[uint32][]byte
}

func newFakeNode(height int) *fakeNode {
	n := &fakeNode{hashes: map[uint32][32]byte{}, blocks: map[uint32][]byte{}}
	var prev [32]byte
	for h := 1; h <= height; h++ {
		blk := blockBytes(prev)
		hash := blockHash(blk)
		n.hashes[uint32(h)] = hash
		n.blocks[uint32(h)] = blk
		prev = hash
	}
	n.tip = uint32(height)
	return n
}

func (n *fakeNode) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		switch req.Method {
		case "getbestblockhash":
			writeResult(w, encodeRPCHash(n.hashes[n.tip]))
		case "getblockhash":
			height := uint32(req.Params[0].(float64))
			writeResult(w, encodeRPCHash(n.hashes[height]))
		case "getblock":
			hash, _ := decodeRPCHash(req.Params[0].(string))
			var height uint32
			for h, hh := range n.hashes {
				if hh == hash {
					height = h
				}
			}
			verbosity := int(req.Params[1].(float64))
			if verbosity == 0 {
				writeResult(w, hex.EncodeToString(n.blocks[height]))
			} else {
				writeResult(w, map[string]interface{}{
					"hash":              encodeRPCHash(hash),
					"confirmations":     int64(n.tip - height + 1),
					"height":            height,
					"previousblockhash": "",
					"time":              0,
				})
			}
		}
	}
}

func writeResult(w http.ResponseWriter, v interface{}) {
	raw, _ := json.Marshal(v)
	json.NewEncoder(w).Encode(map[string]json.RawMessage{"result": raw})
}

func encodeRPCHash(h [32]byte) string {
	rev := make([]byte, 32)
	for i := 0; i < 32; i++ {
		rev[i] = h[31-i]
	}
	return hex.EncodeToString(rev)
}

func decodeRPCHash(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	for i := 0; i < 32; i++ {
		h[i] = b[31-i]
	}
	return h, nil
}

func TestTailFromRPCEmitsNextBlockThenBlocks(t *testing.T) {
	node := newFakeNode(2)
	srv := httptest.NewServer(node.handler())
	defer srv.Close()

	cfg := &config.Config{ReorgMax: 30}
	rpc := rpcclient.New(srv.URL, "u", "p")
	s := New(cfg, [4]byte{}, rpc)

	events := make(chan Event, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.tailFromRPC(ctx, 1, node.hashes[1], events) }()

	select {
	case e := <-events:
		if e.Height != 2 {
			t.Fatalf("event height = %d, want 2", e.Height)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tail-fetch event")
	}
	cancel()
	<-errc
}
