// Package blockfile reads a node's on-disk block files (blk*.dat) and
// LevelDB-format block index directly, the fast path spec.md §4.2 prefers
// over RPC for historical catch-up. Grounded on daglabs-btcd's blockdag
// block-index handling (height->hash iteration order, varint-encoded
// index records) adapted from that package's DAG multi-parent index to
// the classic single-parent height index this indexer reads.
package blockfile

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/nintondo/doge20indexer/internal/wireformat"
)

// Reader sequentially decodes blocks out of a single blk*.dat file,
// validating the chain's 4-byte magic preamble before each record.
type Reader struct {
	f     *os.File
	br    *bufio.Reader
	magic [4]byte
}

// OpenBlkFile opens a single block file for sequential reading.
func OpenBlkFile(path string, magic [4]byte) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "blockfile: open %s", path)
	}
	return &Reader{f: f, br: bufio.NewReaderSize(f, 1<<20), magic: magic}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// Next decodes the next framed block record: 4-byte magic, 4-byte
// little-endian length, then that many bytes of consensus-encoded block.
// Returns io.EOF when the file is exhausted (including the common case of
// a trailing zero-padded region left by the node's preallocation).
func (r *Reader) Next() (*wireformat.Block, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r.br, magic[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	if magic == ([4]byte{}) {
		// Zero-padded tail of a preallocated file.
		return nil, io.EOF
	}
	if magic != r.magic {
		return nil, errors.Errorf("blockfile: bad magic %x, want %x", magic, r.magic)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "blockfile: read length")
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > 32*1024*1024 {
		return nil, errors.Errorf("blockfile: implausible record length %d", n)
	}

	lr := io.LimitReader(r.br, int64(n))
	blk, err := wireformat.DecodeBlock(lr)
	if err != nil {
		return nil, errors.Wrap(err, "blockfile: decode block")
	}
	return blk, nil
}

// BlkPath builds the conventional blkNNNNN.dat path under dir.
func BlkPath(dir string, fileNum uint32) string {
	return filepath.Join(dir, sprintfBlk(fileNum))
}

func sprintfBlk(n uint32) string {
	const digits = "0123456789"
	b := [5]byte{'0', '0', '0', '0', '0'}
	for i := 4; i >= 0 && n > 0; i-- {
		b[i] = digits[n%10]
		n /= 10
	}
	return "blk" + string(b[:]) + ".dat"
}
