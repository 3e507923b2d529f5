package model

import "encoding/hex"

// Txid is a 32-byte transaction id, stored in internal byte order: the
// double-SHA256 digest exactly as computed and as it appears on the wire.
// String reverses it for display, like the teacher's daghash.
type Txid [32]byte

// String renders the txid in the conventional reversed-byte hex display
// form used by block explorers and RPC.
func (t Txid) String() string {
	rev := make([]byte, 32)
	for i := 0; i < 32; i++ {
		rev[i] = t[31-i]
	}
	return hex.EncodeToString(rev)
}

// Outpoint identifies a transaction output: (txid, vout).
type Outpoint struct {
	Txid Txid
	Vout uint32
}

// Location is the satoshi-offset inside an output that carries an
// inscription. Ordering is lexicographic on (txid, vout, offset).
type Location struct {
	Outpoint Outpoint
	Offset   uint64
}

// Less implements the lexicographic (txid, vout, offset) ordering from
// spec.md §3.
func (l Location) Less(other Location) bool {
	for i := 0; i < 32; i++ {
		if l.Outpoint.Txid[i] != other.Outpoint.Txid[i] {
			return l.Outpoint.Txid[i] < other.Outpoint.Txid[i]
		}
	}
	if l.Outpoint.Vout != other.Outpoint.Vout {
		return l.Outpoint.Vout < other.Outpoint.Vout
	}
	return l.Offset < other.Offset
}
