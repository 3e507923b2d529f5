package blockfile

import (
	"encoding/binary"

	"github.com/pkg/errors"
	gold "github.com/syndtr/goleveldb/leveldb"
	goldopt "github.com/syndtr/goleveldb/leveldb/opt"
	goldutil "github.com/syndtr/goleveldb/leveldb/util"
)

// Entry is one decoded block-index record: which blk*.dat file and byte
// offset holds the block at this height, and its validation status.
type Entry struct {
	Height     uint32
	FileNum    uint32
	DataPos    uint32
	StatusBits uint32
}

// statusHaveData mirrors the node's BLOCK_HAVE_DATA bit: without it the
// index row exists (for a known-but-not-yet-downloaded header) but the
// blk*.dat bytes it points to don't.
const statusHaveData = 1 << 3

// HaveData reports whether the block body backing this index entry was
// actually downloaded.
func (e Entry) HaveData() bool { return e.StatusBits&statusHaveData != 0 }

// ReadIndex opens the node's block index (a LevelDB database, distinct
// from this indexer's own store) at dir and decodes every "b"-prefixed
// block record. Entries come back in the index's key order (by block
// hash), not sorted by height.
//
// The node's index schema (undocumented, stable since the format's
// introduction) prefixes each record's key with 'b' followed by the
// 32-byte block hash; the value is a varint-heavy record starting with
// the client version, then height, status bits, tx count, then file num
// and data pos. This reader only decodes the prefix fields the indexer
// needs and ignores the rest (block header fields duplicated for fast
// relay).
func ReadIndex(dir string) ([]Entry, error) {
	// Opened read-only and directly against goleveldb (not through
	// internal/store/leveldb.DB): this is the node's own index database,
	// written with its own key scheme, not this indexer's CF-prefixed
	// keyspace.
	db, err := gold.OpenFile(dir, &goldopt.Options{ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "blockfile: open block index")
	}
	defer db.Close()

	it := db.NewIterator(goldutil.BytesPrefix([]byte("b")), nil)
	defer it.Release()

	var entries []Entry
	for it.Next() {
		val := it.Value()
		e, err := decodeIndexValue(val)
		if err != nil {
			// Skip undecodable rows (orphaned headers, index format
			// drift) rather than aborting the whole catch-up pass.
			continue
		}
		entries = append(entries, e)
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "blockfile: block index iteration")
	}
	return entries, nil
}

func decodeIndexValue(b []byte) (Entry, error) {
	var e Entry
	r := &byteCursor{b: b}

	version, err := r.readVarInt()
	if err != nil {
		return e, err
	}
	_ = version

	height, err := r.readVarInt()
	if err != nil {
		return e, err
	}
	e.Height = uint32(height)

	status, err := r.readVarInt()
	if err != nil {
		return e, err
	}
	e.StatusBits = uint32(status)

	txCount, err := r.readVarInt()
	if err != nil {
		return e, err
	}
	_ = txCount

	if e.HaveData() {
		fileNum, err := r.readVarInt()
		if err != nil {
			return e, err
		}
		e.FileNum = uint32(fileNum)

		dataPos, err := r.readVarInt()
		if err != nil {
			return e, err
		}
		e.DataPos = uint32(dataPos)
	}

	return e, nil
}

// byteCursor reads the node's block-index variable-length integer
// encoding: big-endian 7-bit groups, high bit set on every byte but the
// last, with +1 added at each continuation (CVarInt in the node's
// serialize.h).
type byteCursor struct {
	b   []byte
	pos int
}

func (c *byteCursor) readVarInt() (uint64, error) {
	var n uint64
	for {
		if c.pos >= len(c.b) {
			return 0, errors.New("blockfile: truncated varint")
		}
		b := c.b[c.pos]
		c.pos++
		n = (n << 7) | uint64(b&0x7f)
		if b&0x80 != 0 {
			n++
		} else {
			return n, nil
		}
	}
}

var _ = binary.LittleEndian
