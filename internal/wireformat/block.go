package wireformat

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Header is a block header: version, parent hash, merkle root, time, bits,
// nonce. Some chains in the family (notably Dogecoin past a certain
// height) append an AuxPoW payload after the nonce for merged mining;
// this indexer doesn't validate proof-of-work so it only needs to know
// how many bytes to skip, not parse it.
type Header struct {
	Version    int32
	PrevBlock  [32]byte
	MerkleRoot [32]byte
	Time       uint32
	Bits       uint32
	Nonce      uint32

	// AuxPow holds the raw, unparsed merged-mining payload when Version's
	// AuxPow bit (1<<8) is set. Never interpreted, only carried through so
	// the header can be re-serialized if ever needed.
	AuxPow []byte
}

const versionAuxPowBit = 1 << 8

// BlockHash returns the double-SHA256 of the header's first 80 bytes
// (version, prev block, merkle root, time, bits, nonce); AuxPow payloads
// are never part of the hashed preimage.
func (h *Header) BlockHash() [32]byte {
	var buf bytes.Buffer
	h.encodeCore(&buf)
	return DoubleSHA256(buf.Bytes())
}

func (h *Header) encodeCore(w io.Writer) {
	writeUint32LE(w, uint32(h.Version))
	w.Write(h.PrevBlock[:])
	w.Write(h.MerkleRoot[:])
	writeUint32LE(w, h.Time)
	writeUint32LE(w, h.Bits)
	writeUint32LE(w, h.Nonce)
}

// decodeHeader reads the 80-byte core header and, if the AuxPow bit is
// set, the merged-mining payload that follows it, via decodeAuxPow (the
// AuxPow coinbase itself is decoded as a full Tx).
func decodeHeader(r io.Reader) (*Header, error) {
	h := &Header{}
	version, err := readUint32LE(r)
	if err != nil {
		return nil, errors.Wrap(err, "header version")
	}
	h.Version = int32(version)

	prevBlock, err := readHash(r)
	if err != nil {
		return nil, errors.Wrap(err, "header prev block")
	}
	h.PrevBlock = prevBlock

	merkleRoot, err := readHash(r)
	if err != nil {
		return nil, errors.Wrap(err, "header merkle root")
	}
	h.MerkleRoot = merkleRoot

	t, err := readUint32LE(r)
	if err != nil {
		return nil, errors.Wrap(err, "header time")
	}
	h.Time = t

	bits, err := readUint32LE(r)
	if err != nil {
		return nil, errors.Wrap(err, "header bits")
	}
	h.Bits = bits

	nonce, err := readUint32LE(r)
	if err != nil {
		return nil, errors.Wrap(err, "header nonce")
	}
	h.Nonce = nonce

	if h.Version&versionAuxPowBit != 0 {
		payload, err := decodeAuxPow(r)
		if err != nil {
			return nil, errors.Wrap(err, "header auxpow")
		}
		h.AuxPow = payload
	}

	return h, nil
}

// decodeAuxPow consumes and discards a merged-mining payload: a coinbase
// tx, parent block hash, a coinbase merkle branch, a chain merkle branch,
// and a parent block header. This indexer only needs to skip past it to
// reach the next record in the block file, so every sub-field is decoded
// structurally but not retained beyond the raw bytes consumed.
func decodeAuxPow(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	tr := io.TeeReader(r, &buf)

	if _, err := DecodeTx(tr); err != nil {
		return nil, errors.Wrap(err, "auxpow coinbase")
	}
	if _, err := readHash(tr); err != nil {
		return nil, errors.Wrap(err, "auxpow parent block hash")
	}
	if err := skipMerkleBranch(tr); err != nil {
		return nil, errors.Wrap(err, "auxpow coinbase branch")
	}
	if err := skipMerkleBranch(tr); err != nil {
		return nil, errors.Wrap(err, "auxpow chain branch")
	}
	// Parent block header: same 80-byte core, never itself AuxPow'd.
	if _, err := readBytes(tr, 80); err != nil {
		return nil, errors.Wrap(err, "auxpow parent header")
	}
	return buf.Bytes(), nil
}

func skipMerkleBranch(r io.Reader) error {
	n, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		if _, err := readHash(r); err != nil {
			return err
		}
	}
	_, err = readUint32LE(r) // branch side mask
	return err
}

// Block is a fully decoded header plus its transactions.
type Block struct {
	Header *Header
	Txs    []*Tx
}

// DecodeBlock reads one consensus-encoded block (header followed by a
// varint transaction count and the transactions themselves) from r.
func DecodeBlock(r io.Reader) (*Block, error) {
	header, err := decodeHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "block header")
	}

	txCount, err := ReadVarInt(r)
	if err != nil {
		return nil, errors.Wrap(err, "block tx count")
	}

	txs := make([]*Tx, txCount)
	for i := range txs {
		tx, err := DecodeTx(r)
		if err != nil {
			return nil, errors.Wrapf(err, "block tx %d", i)
		}
		txs[i] = tx
	}

	return &Block{Header: header, Txs: txs}, nil
}
