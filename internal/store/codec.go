package store

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"

	"github.com/nintondo/doge20indexer/internal/fixed128"
	"github.com/nintondo/doge20indexer/internal/model"
)

// Value codecs serialize model types to/from the flat byte strings the
// underlying engine stores. All multi-byte integers are big-endian, all
// Fixed128 values are encoded as a 4-byte length prefix, a sign byte and
// the big-endian magnitude of the mantissa so negative balances (which never legitimately occur but must
// never silently wrap) round-trip exactly.

func putFixed128(dst []byte, f fixed128.Fixed128) []byte {
	b := f.Mantissa().Bytes()
	neg := f.Sign() < 0
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(b)))
	dst = append(dst, lenPrefix[:]...)
	if neg {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	dst = append(dst, b...)
	return dst
}

func readFixed128(b []byte) (fixed128.Fixed128, []byte, error) {
	if len(b) < 5 {
		return fixed128.Zero, nil, errors.New("store: truncated fixed128")
	}
	n := binary.BigEndian.Uint32(b[:4])
	neg := b[4] == 1
	rest := b[5:]
	if uint32(len(rest)) < n {
		return fixed128.Zero, nil, errors.New("store: truncated fixed128 mantissa")
	}
	m := new(big.Int).SetBytes(rest[:n])
	if neg {
		m.Neg(m)
	}
	return fixed128.FromMantissa(m), rest[n:], nil
}

// EncodeTokenMeta serializes a TokenMeta row.
func EncodeTokenMeta(m *model.TokenMeta) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, m.GenesisTxid[:]...)
	buf = appendUint32BE(buf, m.GenesisIndex)
	buf = append(buf, m.Tick[:]...)
	buf = putFixed128(buf, m.Max)
	buf = putFixed128(buf, m.Lim)
	buf = append(buf, m.Dec)
	buf = putFixed128(buf, m.Supply)
	buf = appendUint64BE(buf, m.MintCount)
	buf = appendUint64BE(buf, m.TransferCount)
	buf = appendUint64BE(buf, m.Transactions)
	buf = appendUint32BE(buf, m.Height)
	buf = appendUint32BE(buf, m.CreatedUnix)
	buf = append(buf, m.Deployer[:]...)
	return buf
}

// DecodeTokenMeta deserializes a TokenMeta row.
func DecodeTokenMeta(b []byte) (*model.TokenMeta, error) {
	m := &model.TokenMeta{}
	if len(b) < 32+4+model.MaxTickLen {
		return nil, errors.New("store: truncated token meta")
	}
	copy(m.GenesisTxid[:], b[:32])
	b = b[32:]
	m.GenesisIndex = readUint32BE(b)
	b = b[4:]
	copy(m.Tick[:], b[:model.MaxTickLen])
	b = b[model.MaxTickLen:]

	var err error
	if m.Max, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if m.Lim, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if len(b) < 1 {
		return nil, errors.New("store: truncated token meta dec")
	}
	m.Dec = b[0]
	b = b[1:]
	if m.Supply, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if len(b) < 8+8+8+4+4+32 {
		return nil, errors.New("store: truncated token meta tail")
	}
	m.MintCount = readUint64BE(b)
	b = b[8:]
	m.TransferCount = readUint64BE(b)
	b = b[8:]
	m.Transactions = readUint64BE(b)
	b = b[8:]
	m.Height = readUint32BE(b)
	b = b[4:]
	m.CreatedUnix = readUint32BE(b)
	b = b[4:]
	copy(m.Deployer[:], b[:32])
	return m, nil
}

// EncodeTokenBalance serializes a TokenBalance row.
func EncodeTokenBalance(b *model.TokenBalance) []byte {
	buf := make([]byte, 0, 64)
	buf = putFixed128(buf, b.Balance)
	buf = putFixed128(buf, b.TransferableBalance)
	buf = appendUint64BE(buf, b.TransfersCount)
	return buf
}

// DecodeTokenBalance deserializes a TokenBalance row.
func DecodeTokenBalance(b []byte) (*model.TokenBalance, error) {
	tb := &model.TokenBalance{}
	var err error
	if tb.Balance, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if tb.TransferableBalance, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if len(b) < 8 {
		return nil, errors.New("store: truncated token balance tail")
	}
	tb.TransfersCount = readUint64BE(b)
	return tb, nil
}

// EncodeTransferProto serializes a TransferProto row (the value stored
// under an AddressLocationKey).
func EncodeTransferProto(t *model.TransferProto) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, t.Tick[:]...)
	buf = putFixed128(buf, t.Amt)
	buf = appendUint32BE(buf, t.Height)
	return buf
}

// DecodeTransferProto deserializes a TransferProto row.
func DecodeTransferProto(b []byte) (*model.TransferProto, error) {
	t := &model.TransferProto{}
	if len(b) < model.MaxTickLen {
		return nil, errors.New("store: truncated transfer proto")
	}
	copy(t.Tick[:], b[:model.MaxTickLen])
	b = b[model.MaxTickLen:]
	var err error
	if t.Amt, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if len(b) < 4 {
		return nil, errors.New("store: truncated transfer proto height")
	}
	t.Height = readUint32BE(b)
	return t, nil
}

// EncodeHistoryEntry serializes a HistoryEntry row.
func EncodeHistoryEntry(h *model.HistoryEntry) []byte {
	buf := make([]byte, 0, 160)
	buf = appendUint64BE(buf, h.ID)
	buf = append(buf, h.Address[:]...)
	buf = append(buf, h.Tick[:]...)
	buf = appendUint32BE(buf, h.Height)
	buf = append(buf, byte(h.Action))
	buf = putFixed128(buf, h.Amt)
	buf = putFixed128(buf, h.Max)
	buf = putFixed128(buf, h.Lim)
	buf = append(buf, h.Dec)
	buf = append(buf, h.Sender[:]...)
	buf = append(buf, h.Txid[:]...)
	buf = appendUint32BE(buf, h.Vout)
	return buf
}

// DecodeHistoryEntry deserializes a HistoryEntry row.
func DecodeHistoryEntry(b []byte) (*model.HistoryEntry, error) {
	h := &model.HistoryEntry{}
	if len(b) < 8+32+model.MaxTickLen+4+1 {
		return nil, errors.New("store: truncated history entry head")
	}
	h.ID = readUint64BE(b)
	b = b[8:]
	copy(h.Address[:], b[:32])
	b = b[32:]
	copy(h.Tick[:], b[:model.MaxTickLen])
	b = b[model.MaxTickLen:]
	h.Height = readUint32BE(b)
	b = b[4:]
	h.Action = model.HistoryAction(b[0])
	b = b[1:]

	var err error
	if h.Amt, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if h.Max, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if h.Lim, b, err = readFixed128(b); err != nil {
		return nil, err
	}
	if len(b) < 1+32+32+4 {
		return nil, errors.New("store: truncated history entry tail")
	}
	h.Dec = b[0]
	b = b[1:]
	copy(h.Sender[:], b[:32])
	b = b[32:]
	copy(h.Txid[:], b[:32])
	b = b[32:]
	h.Vout = readUint32BE(b)
	return h, nil
}

// EncodeBlockInfo serializes a BlockInfo row.
func EncodeBlockInfo(b *model.BlockInfo) []byte {
	buf := make([]byte, 0, 36)
	buf = append(buf, b.BlockHash[:]...)
	buf = appendUint32BE(buf, b.CreatedUnix)
	return buf
}

// DecodeBlockInfo deserializes a BlockInfo row.
func DecodeBlockInfo(b []byte) (*model.BlockInfo, error) {
	if len(b) < 36 {
		return nil, errors.New("store: truncated block info")
	}
	bi := &model.BlockInfo{}
	copy(bi.BlockHash[:], b[:32])
	bi.CreatedUnix = readUint32BE(b[32:])
	return bi, nil
}

// EncodePartials serializes an in-progress multi-input inscription
// reconstruction.
func EncodePartials(p *model.Partials) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, p.GenesisTxid[:]...)
	buf = appendUint32BE(buf, p.InscriptionIndex)
	buf = appendUint32BE(buf, uint32(len(p.Parts)))
	for _, part := range p.Parts {
		if part.IsTapscript {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = appendUint32BE(buf, uint32(len(part.ScriptBuffer)))
		buf = append(buf, part.ScriptBuffer...)
	}
	return buf
}

// DecodePartials deserializes an in-progress multi-input inscription
// reconstruction.
func DecodePartials(b []byte) (*model.Partials, error) {
	if len(b) < 32+4+4 {
		return nil, errors.New("store: truncated partials head")
	}
	p := &model.Partials{}
	copy(p.GenesisTxid[:], b[:32])
	b = b[32:]
	p.InscriptionIndex = readUint32BE(b)
	b = b[4:]
	count := readUint32BE(b)
	b = b[4:]
	p.Parts = make([]model.Part, count)
	for i := uint32(0); i < count; i++ {
		if len(b) < 1+4 {
			return nil, errors.New("store: truncated partials part head")
		}
		isTap := b[0] == 1
		b = b[1:]
		n := readUint32BE(b)
		b = b[4:]
		if uint32(len(b)) < n {
			return nil, errors.New("store: truncated partials script buffer")
		}
		p.Parts[i] = model.Part{IsTapscript: isTap, ScriptBuffer: append([]byte(nil), b[:n]...)}
		b = b[n:]
	}
	return p, nil
}

// EncodeOffsets serializes the per-outpoint list of inscription pointer
// offsets consumed by the assembler when resolving output-location
// movement (spec.md §4.4).
func EncodeOffsets(offsets []uint64) []byte {
	buf := make([]byte, 0, 4+8*len(offsets))
	buf = appendUint32BE(buf, uint32(len(offsets)))
	for _, o := range offsets {
		buf = appendUint64BE(buf, o)
	}
	return buf
}

// DecodeOffsets deserializes the per-outpoint inscription offset list.
func DecodeOffsets(b []byte) ([]uint64, error) {
	if len(b) < 4 {
		return nil, errors.New("store: truncated offsets head")
	}
	count := readUint32BE(b)
	b = b[4:]
	if uint32(len(b)) < count*8 {
		return nil, errors.New("store: truncated offsets body")
	}
	out := make([]uint64, count)
	for i := range out {
		out[i] = readUint64BE(b[i*8:])
	}
	return out, nil
}

// EncodePrevout serializes a model.Prevout row (value + script_pubkey).
func EncodePrevout(p *model.Prevout) []byte {
	buf := make([]byte, 0, 8+4+len(p.ScriptPubKey))
	buf = appendUint64BE(buf, uint64(p.Value))
	buf = appendUint32BE(buf, uint32(len(p.ScriptPubKey)))
	buf = append(buf, p.ScriptPubKey...)
	return buf
}

// DecodePrevout deserializes a model.Prevout row.
func DecodePrevout(b []byte) (*model.Prevout, error) {
	if len(b) < 12 {
		return nil, errors.New("store: truncated prevout")
	}
	p := &model.Prevout{Value: int64(readUint64BE(b))}
	b = b[8:]
	n := readUint32BE(b)
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, errors.New("store: truncated prevout script")
	}
	p.ScriptPubKey = append([]byte(nil), b[:n]...)
	return p, nil
}

// EncodeUint32 / DecodeUint32 round-trip the last_block singleton and
// similar scalar rows.
func EncodeUint32(v uint32) []byte { return appendUint32BE(nil, v) }
func DecodeUint32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, errors.New("store: truncated uint32")
	}
	return readUint32BE(b), nil
}

// EncodeUint64 / DecodeUint64 round-trip the last_history_id singleton.
func EncodeUint64(v uint64) []byte { return appendUint64BE(nil, v) }
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, errors.New("store: truncated uint64")
	}
	return readUint64BE(b), nil
}

// EncodeHash32 / DecodeHash32 round-trip the proof_of_history chain rows
// and block hashes generally.
func EncodeHash32(h [32]byte) []byte { return append([]byte(nil), h[:]...) }
func DecodeHash32(b []byte) ([32]byte, error) {
	var h [32]byte
	if len(b) < 32 {
		return h, errors.New("store: truncated hash32")
	}
	copy(h[:], b[:32])
	return h, nil
}
