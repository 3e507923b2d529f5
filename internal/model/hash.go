// Package model defines the indexer's core data types shared across every
// component: script-hashes, outpoints, locations, ticks, token metadata and
// balances, and the append-only history entry.
package model

import "crypto/sha256"

// ScriptHash is a 32-byte SHA256d digest of a script_pubkey, used as the
// address identity throughout the store. Coin-specific address string
// encoding lives in internal/netparams and is applied only at the query
// boundary.
type ScriptHash [32]byte

// ScriptHashOf computes H = SHA256d(scriptPubKey).
func ScriptHashOf(scriptPubKey []byte) ScriptHash {
	first := sha256.Sum256(scriptPubKey)
	second := sha256.Sum256(first[:])
	return ScriptHash(second)
}

// OpReturnHash is the distinguished constant marking burns: SHA256d("BURNED").
var OpReturnHash = ScriptHashOf([]byte("BURNED"))

// IsOpReturn reports whether h is the distinguished burn hash.
func (h ScriptHash) IsOpReturn() bool { return h == OpReturnHash }

func (h ScriptHash) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, len(h)*2)
	for i, b := range h {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0xf]
	}
	return string(buf)
}
