// Package store defines the indexer's persistence interface: an ordered
// key/value space partitioned into named column families with atomic
// write batches, plus the composite key/value encoders every higher-level
// package uses to talk to it.
//
// Grounded on daglabs-btcd's database2 package, which emulates column
// families over a single ordered KV engine by prefixing every key with a
// bucket name rather than using a multi-table database — the same
// technique is used here (see leveldb.DB) because the concrete engine,
// goleveldb, has no native column family concept.
package store

import (
	"github.com/nintondo/doge20indexer/internal/model"
)

// Column family names, matching spec.md §4.1's table of logical buckets.
const (
	CFTokenMeta               = "token_to_meta"
	CFAddressTokenBalance     = "address_token_to_balance"
	CFAddressLocationTransfer = "address_location_to_transfer"
	CFAddressTokenHistory     = "address_token_to_history"
	CFBlockInfo               = "block_info"
	CFPrevouts                = "prevouts"
	CFOutpointPartials        = "outpoint_to_partials"
	CFOutpointOffsets         = "outpoint_to_inscription_offsets"
	CFLastBlock               = "last_block"
	CFLastHistoryID           = "last_history_id"
	CFProofOfHistory          = "proof_of_history"
	CFBlockEvents             = "block_events"
	CFFullHashToAddress       = "fullhash_to_address"
	CFOutpointEvent           = "outpoint_to_event"
)

// AllColumnFamilies lists every CF the store must provision at open time.
var AllColumnFamilies = []string{
	CFTokenMeta,
	CFAddressTokenBalance,
	CFAddressLocationTransfer,
	CFAddressTokenHistory,
	CFBlockInfo,
	CFPrevouts,
	CFOutpointPartials,
	CFOutpointOffsets,
	CFLastBlock,
	CFLastHistoryID,
	CFProofOfHistory,
	CFBlockEvents,
	CFFullHashToAddress,
	CFOutpointEvent,
}

// Reader is the read-only subset of Store. A Batch does not implement it
// (see Batch).
type Reader interface {
	// Get fetches the raw value at key in cf. Returns ErrNotFound when
	// absent.
	Get(cf string, key []byte) ([]byte, error)
	// Iterator returns an ascending iterator over every key in cf with the
	// given prefix. Callers must Close it.
	Iterator(cf string, prefix []byte) (Iterator, error)
}

// Iterator walks an ordered range of keys within one column family.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Batch accumulates writes for atomic commit. Reads against a Batch do not
// see its own uncommitted writes; callers needing read-your-writes track
// pending state themselves (the token engine does, see internal/token).
type Batch interface {
	Put(cf string, key, value []byte)
	Delete(cf string, key []byte)
}

// Store is the full persistence surface the indexer depends on.
type Store interface {
	Reader

	// NewBatch starts an empty write batch.
	NewBatch() Batch
	// Commit atomically applies every Put/Delete accumulated in b.
	Commit(b Batch) error

	// Close releases the underlying engine handle.
	Close() error
}

// ErrNotFound is returned by Reader.Get when key does not exist in cf.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: key not found" }

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err == ErrNotFound
}

// keyer helpers used by every codec below. Composite keys are built by
// concatenating big-endian-encoded fixed-width fields so lexicographic
// byte order matches the intended iteration order (address-major,
// then-tick, then-height, etc., per spec.md §4.1).

func appendUint32BE(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64BE(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readUint32BE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func readUint64BE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// TokenMetaKey builds the token_to_meta key: the lowercased tick.
func TokenMetaKey(tick model.LowerCaseTick) []byte {
	return append([]byte(nil), tick.Bytes()...)
}

// AddressTokenKey builds the composite (address, tick) key shared by the
// balance and history column families.
func AddressTokenKey(at model.AddressToken) []byte {
	key := make([]byte, 0, 32+MaxTickKeyLen)
	key = append(key, at.Address[:]...)
	key = append(key, at.Tick.Bytes()...)
	return key
}

// MaxTickKeyLen is the widest a tick can be within a composite key.
const MaxTickKeyLen = model.MaxTickLen

// AddressTokenHistoryKey builds the address_token_to_history key: address,
// tick, then an 8-byte big-endian history id suffix for ascending
// iteration in append order.
func AddressTokenHistoryKey(address model.ScriptHash, tick model.LowerCaseTick, id uint64) []byte {
	key := make([]byte, 0, 32+MaxTickKeyLen+8)
	key = append(key, address[:]...)
	key = append(key, tick.Bytes()...)
	key = appendUint64BE(key, id)
	return key
}

// AddressLocationKey builds the address_location_to_transfer key: address
// then the full (txid, vout, offset) location, so every transfer owned by
// an address iterates together.
func AddressLocationKey(al model.AddressLocation) []byte {
	key := make([]byte, 0, 32+32+4+8)
	key = append(key, al.Address[:]...)
	key = append(key, al.Location.Outpoint.Txid[:]...)
	key = appendUint32BE(key, al.Location.Outpoint.Vout)
	key = appendUint64BE(key, al.Location.Offset)
	return key
}

// BlockInfoKey builds the block_info key: a 4-byte big-endian height.
func BlockInfoKey(height uint32) []byte {
	return appendUint32BE(nil, height)
}

// OutpointKey builds the common (txid, vout) key shared by prevouts,
// outpoint_to_partials, outpoint_to_inscription_offsets, and
// outpoint_to_event.
func OutpointKey(op model.Outpoint) []byte {
	key := make([]byte, 0, 36)
	key = append(key, op.Txid[:]...)
	key = appendUint32BE(key, op.Vout)
	return key
}

// FullHashKey builds the fullhash_to_address key: the raw script hash.
func FullHashKey(h model.ScriptHash) []byte {
	return append([]byte(nil), h[:]...)
}

// ProofOfHistoryKey builds the proof_of_history key: a 4-byte big-endian
// height.
func ProofOfHistoryKey(height uint32) []byte {
	return appendUint32BE(nil, height)
}

// BlockEventsKey builds the block_events key: a 4-byte big-endian height.
func BlockEventsKey(height uint32) []byte {
	return appendUint32BE(nil, height)
}

var singletonKey = []byte("singleton")

// SingletonKey is the sole key used within a CF that stores one logical
// value (last_block, last_history_id).
func SingletonKey() []byte { return singletonKey }
