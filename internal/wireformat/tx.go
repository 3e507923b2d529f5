package wireformat

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// TxIn is one transaction input.
type TxIn struct {
	PrevTxid  [32]byte
	PrevIndex uint32
	// ScriptSig is the raw input script (empty for a pure-witness spend).
	ScriptSig []byte
	Sequence  uint32
}

// TxOut is one transaction output.
type TxOut struct {
	Value        int64
	ScriptPubKey []byte
}

// Tx is a fully decoded transaction. Witness is nil for inputs spent
// without a witness stack (pre-segwit scripts, or coins that never adopted
// it); when present Witness[i] holds input i's stack, the field tapscript
// envelopes are read from on coins that support them.
type Tx struct {
	Version  int32
	TxIn     []TxIn
	TxOut    []TxOut
	Witness  [][][]byte
	LockTime uint32

	raw []byte
}

// Txid returns the double-SHA256 of the transaction's non-witness
// serialization, matching the chain's canonical txid (witness data never
// affects it).
func (tx *Tx) Txid() [32]byte {
	var buf bytes.Buffer
	tx.encode(&buf, false)
	return DoubleSHA256(buf.Bytes())
}

// Raw returns the exact bytes this transaction was decoded from, including
// any witness data, for callers that need to re-hash or archive it.
func (tx *Tx) Raw() []byte { return tx.raw }

// DecodeTx reads one consensus-encoded transaction from r.
func DecodeTx(r io.Reader) (*Tx, error) {
	var buf bytes.Buffer
	tr := io.TeeReader(r, &buf)

	tx := &Tx{}
	version, err := readUint32LE(tr)
	if err != nil {
		return nil, errors.Wrap(err, "tx version")
	}
	tx.Version = int32(version)

	inCount, err := ReadVarInt(tr)
	if err != nil {
		return nil, errors.Wrap(err, "tx input count")
	}

	hasWitness := false
	if inCount == 0 {
		// Possible segwit marker: 0x00 then real input count flag 0x01.
		var flag [1]byte
		if _, err := io.ReadFull(tr, flag[:]); err != nil {
			return nil, errors.Wrap(err, "tx segwit flag")
		}
		if flag[0] != 0x01 {
			return nil, errors.New("tx: zero inputs without witness flag")
		}
		hasWitness = true
		inCount, err = ReadVarInt(tr)
		if err != nil {
			return nil, errors.Wrap(err, "tx input count after witness flag")
		}
	}

	tx.TxIn = make([]TxIn, inCount)
	for i := range tx.TxIn {
		in, err := decodeTxIn(tr)
		if err != nil {
			return nil, errors.Wrapf(err, "tx input %d", i)
		}
		tx.TxIn[i] = in
	}

	outCount, err := ReadVarInt(tr)
	if err != nil {
		return nil, errors.Wrap(err, "tx output count")
	}
	tx.TxOut = make([]TxOut, outCount)
	for i := range tx.TxOut {
		out, err := decodeTxOut(tr)
		if err != nil {
			return nil, errors.Wrapf(err, "tx output %d", i)
		}
		tx.TxOut[i] = out
	}

	if hasWitness {
		tx.Witness = make([][][]byte, inCount)
		for i := range tx.Witness {
			stack, err := decodeWitnessStack(tr)
			if err != nil {
				return nil, errors.Wrapf(err, "tx witness %d", i)
			}
			tx.Witness[i] = stack
		}
	}

	lockTime, err := readUint32LE(tr)
	if err != nil {
		return nil, errors.Wrap(err, "tx locktime")
	}
	tx.LockTime = lockTime

	tx.raw = append([]byte(nil), buf.Bytes()...)
	return tx, nil
}

func decodeTxIn(r io.Reader) (TxIn, error) {
	var in TxIn
	prevTxid, err := readHash(r)
	if err != nil {
		return in, err
	}
	in.PrevTxid = prevTxid

	prevIndex, err := readUint32LE(r)
	if err != nil {
		return in, err
	}
	in.PrevIndex = prevIndex

	script, err := readVarBytes(r)
	if err != nil {
		return in, err
	}
	in.ScriptSig = script

	sequence, err := readUint32LE(r)
	if err != nil {
		return in, err
	}
	in.Sequence = sequence
	return in, nil
}

func decodeTxOut(r io.Reader) (TxOut, error) {
	var out TxOut
	value, err := readUint64LE(r)
	if err != nil {
		return out, err
	}
	out.Value = int64(value)

	script, err := readVarBytes(r)
	if err != nil {
		return out, err
	}
	out.ScriptPubKey = script
	return out, nil
}

func decodeWitnessStack(r io.Reader) ([][]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	stack := make([][]byte, n)
	for i := range stack {
		item, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		stack[i] = item
	}
	return stack, nil
}

// encode writes the transaction back out; witness=false reproduces the
// legacy serialization used for txid computation.
func (tx *Tx) encode(w io.Writer, witness bool) error {
	if err := writeUint32LE(w, uint32(tx.Version)); err != nil {
		return err
	}
	includeWitness := witness && tx.Witness != nil
	if includeWitness {
		if _, err := w.Write([]byte{0x00, 0x01}); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(tx.TxIn))); err != nil {
		return err
	}
	for _, in := range tx.TxIn {
		if _, err := w.Write(in.PrevTxid[:]); err != nil {
			return err
		}
		if err := writeUint32LE(w, in.PrevIndex); err != nil {
			return err
		}
		if err := writeVarBytes(w, in.ScriptSig); err != nil {
			return err
		}
		if err := writeUint32LE(w, in.Sequence); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(tx.TxOut))); err != nil {
		return err
	}
	for _, out := range tx.TxOut {
		if err := writeUint64LE(w, uint64(out.Value)); err != nil {
			return err
		}
		if err := writeVarBytes(w, out.ScriptPubKey); err != nil {
			return err
		}
	}
	if includeWitness {
		for _, stack := range tx.Witness {
			if err := WriteVarInt(w, uint64(len(stack))); err != nil {
				return err
			}
			for _, item := range stack {
				if err := writeVarBytes(w, item); err != nil {
					return err
				}
			}
		}
	}
	return writeUint32LE(w, tx.LockTime)
}
