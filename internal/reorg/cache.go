// Package reorg implements the bounded ring buffer of inverse operations
// that lets the indexer unwind the last REORG_MAX blocks when the chain
// source reports a fork (spec.md §4.8). Every mutation the token engine
// and inscription assembler make to the store is paired with an inverse
// recorded here at apply time; Restore replays those inverses in reverse
// order, newest block first, to walk the store back to a prior height.
//
// Grounded on original_source's reorg.rs: the TokenHistoryEntry /
// OrdinalsEntry enums and the BTreeMap<height, Vec<entry>> cache with a
// fixed maximum length are reproduced nearly verbatim, adapted to Go's
// lack of a BTreeMap via a map plus a sorted-heights slice.
package reorg

import (
	"sort"

	"github.com/nintondo/doge20indexer/internal/log"
	"github.com/nintondo/doge20indexer/internal/model"
	"github.com/nintondo/doge20indexer/internal/store"
)

// TokenEntryKind tags which inverse a TokenEntry carries.
type TokenEntryKind uint8

const (
	TokenBalancesBefore TokenEntryKind = iota
	TokenBalancesToRemove
	TokenDeploysToRemove
	TokenMetaBefore
	TokenRestoreTransfers
	TokenRemoveTransfers
	TokenRemoveHistory
)

// TokenEntry is one inverse token-engine mutation.
type TokenEntry struct {
	Kind TokenEntryKind

	BalancesBefore  []BalanceRow
	AddressTokens   []model.AddressToken // BalancesToRemove
	Ticks           []model.LowerCaseTick // DeploysToRemove
	MetasBefore     []model.TokenMeta      // MetaBefore: pre-mutation snapshot of touched (pre-existing) tokens
	TransferRows    []TransferRow         // RestoreTransfers
	AddressLocations []model.AddressLocation // RemoveTransfers

	// RemoveHistory
	HistoryToRemove []HistoryKey
	LastHistoryID   uint64
	OutpointEvents  []model.Outpoint
	Height          uint32
}

// BalanceRow pairs an account key with a balance snapshot to restore.
type BalanceRow struct {
	Key     model.AddressToken
	Balance model.TokenBalance
}

// TransferRow pairs a transfer key with a proto snapshot to restore.
type TransferRow struct {
	Key   model.AddressLocation
	Proto model.TransferProto
}

// HistoryKey addresses one address_token_history row for deletion.
type HistoryKey struct {
	Address model.ScriptHash
	Tick    model.LowerCaseTick
	ID      uint64
}

// OrdinalsEntryKind tags which inverse an OrdinalsEntry carries.
type OrdinalsEntryKind uint8

const (
	OrdinalsRestoreOffsets OrdinalsEntryKind = iota
	OrdinalsRemoveOffsets
	OrdinalsRestorePrevouts
	OrdinalsRestorePartials
	OrdinalsRemovePartials
)

// OrdinalsEntry is one inverse inscription-assembler mutation.
type OrdinalsEntry struct {
	Kind OrdinalsEntryKind

	RestoreOffsets  []OffsetRow
	RemoveOffsets   []model.Outpoint
	RestorePrevouts []PrevoutRow
	RestorePartials []PartialsRow
	RemovePartials  []model.Outpoint
}

// OffsetRow pairs an outpoint with the per-input offsets to restore.
type OffsetRow struct {
	Outpoint model.Outpoint
	Offsets  []uint64
}

// PrevoutRow pairs an outpoint with the prevout data to restore once its
// spending transaction is rolled back.
type PrevoutRow struct {
	Outpoint model.Outpoint
	Prevout  model.Prevout
}

// PartialsRow pairs an outpoint with the in-progress multi-input
// reconstruction to restore.
type PartialsRow struct {
	Outpoint model.Outpoint
	Partials model.Partials
}

type blockHistory struct {
	tokens   []TokenEntry
	ordinals []OrdinalsEntry
}

// Cache is the bounded ring buffer of per-block inverse operations.
type Cache struct {
	maxLen  int
	heights []uint32 // ascending
	blocks  map[uint32]*blockHistory
}

// New builds an empty Cache retaining at most maxLen blocks of history.
func New(maxLen int) *Cache {
	return &Cache{maxLen: maxLen, blocks: make(map[uint32]*blockHistory)}
}

// NewBlock opens a new block's entry, evicting the oldest retained block
// if the cache is already at capacity.
func (c *Cache) NewBlock(height uint32) {
	if len(c.heights) == c.maxLen {
		oldest := c.heights[0]
		c.heights = c.heights[1:]
		delete(c.blocks, oldest)
	}
	c.heights = append(c.heights, height)
	c.blocks[height] = &blockHistory{}
}

func (c *Cache) current() *blockHistory {
	if len(c.heights) == 0 {
		return nil
	}
	return c.blocks[c.heights[len(c.heights)-1]]
}

// PushToken appends an inverse token-engine operation to the
// most-recently-opened block.
func (c *Cache) PushToken(e TokenEntry) {
	if bh := c.current(); bh != nil {
		bh.tokens = append(bh.tokens, e)
	}
}

// PushOrdinals appends an inverse assembler operation to the
// most-recently-opened block.
func (c *Cache) PushOrdinals(e OrdinalsEntry) {
	if bh := c.current(); bh != nil {
		bh.ordinals = append(bh.ordinals, e)
	}
}

// Restore unwinds every retained block at height >= toHeight, applying
// each block's inverses in reverse order (ordinals before tokens, newest
// entry first within each, matching original_source's proceed-in-reverse
// order) and writing the result through b. Returns the height the store
// should now report as last_block (toHeight-1), or ok=false if toHeight
// is older than anything retained — in which case the caller must treat
// this as a fatal resync-required condition (spec.md §4.8).
func (c *Cache) Restore(b store.Batch, toHeight uint32) (newLastBlock uint32, ok bool) {
	if len(c.heights) == 0 || c.heights[0] > toHeight {
		return 0, false
	}

	sort.Slice(c.heights, func(i, j int) bool { return c.heights[i] < c.heights[j] })

	var restoredAny bool
	for len(c.heights) > 0 && c.heights[len(c.heights)-1] >= toHeight {
		height := c.heights[len(c.heights)-1]
		c.heights = c.heights[:len(c.heights)-1]
		bh := c.blocks[height]
		delete(c.blocks, height)

		log.Reorg.Warn().Uint32("height", height).Msg("rolling back block")

		for i := len(bh.ordinals) - 1; i >= 0; i-- {
			proceedOrdinals(b, bh.ordinals[i])
		}
		for i := len(bh.tokens) - 1; i >= 0; i-- {
			proceedToken(b, bh.tokens[i])
		}

		b.Delete(store.CFBlockInfo, store.BlockInfoKey(height))
		restoredAny = true
		newLastBlock = height - 1
	}

	if !restoredAny {
		return 0, false
	}
	b.Put(store.CFLastBlock, store.SingletonKey(), store.EncodeUint32(newLastBlock))
	return newLastBlock, true
}

func proceedToken(b store.Batch, e TokenEntry) {
	switch e.Kind {
	case TokenDeploysToRemove:
		for _, tick := range e.Ticks {
			b.Delete(store.CFTokenMeta, store.TokenMetaKey(tick))
		}
	case TokenBalancesBefore:
		for _, row := range e.BalancesBefore {
			b.Put(store.CFAddressTokenBalance, store.AddressTokenKey(row.Key), store.EncodeTokenBalance(&row.Balance))
		}
	case TokenBalancesToRemove:
		for _, key := range e.AddressTokens {
			b.Delete(store.CFAddressTokenBalance, store.AddressTokenKey(key))
		}
	case TokenMetaBefore:
		for _, meta := range e.MetasBefore {
			m := meta
			b.Put(store.CFTokenMeta, store.TokenMetaKey(m.Tick.Lower()), store.EncodeTokenMeta(&m))
		}
	case TokenRestoreTransfers:
		for _, row := range e.TransferRows {
			b.Put(store.CFAddressLocationTransfer, store.AddressLocationKey(row.Key), store.EncodeTransferProto(&row.Proto))
		}
	case TokenRemoveTransfers:
		for _, key := range e.AddressLocations {
			b.Delete(store.CFAddressLocationTransfer, store.AddressLocationKey(key))
		}
	case TokenRemoveHistory:
		b.Put(store.CFLastHistoryID, store.SingletonKey(), store.EncodeUint64(e.LastHistoryID))
		b.Delete(store.CFBlockEvents, store.BlockEventsKey(e.Height))
		for _, hk := range e.HistoryToRemove {
			b.Delete(store.CFAddressTokenHistory, store.AddressTokenHistoryKey(hk.Address, hk.Tick, hk.ID))
		}
		for _, op := range e.OutpointEvents {
			b.Delete(store.CFOutpointEvent, store.OutpointKey(op))
		}
	}
}

func proceedOrdinals(b store.Batch, e OrdinalsEntry) {
	switch e.Kind {
	case OrdinalsRestoreOffsets:
		for _, row := range e.RestoreOffsets {
			b.Put(store.CFOutpointOffsets, store.OutpointKey(row.Outpoint), store.EncodeOffsets(row.Offsets))
		}
	case OrdinalsRemoveOffsets:
		for _, op := range e.RemoveOffsets {
			b.Delete(store.CFOutpointOffsets, store.OutpointKey(op))
		}
	case OrdinalsRestorePrevouts:
		for _, row := range e.RestorePrevouts {
			b.Put(store.CFPrevouts, store.OutpointKey(row.Outpoint), store.EncodePrevout(&row.Prevout))
		}
	case OrdinalsRestorePartials:
		for _, row := range e.RestorePartials {
			b.Put(store.CFOutpointPartials, store.OutpointKey(row.Outpoint), store.EncodePartials(&row.Partials))
		}
	case OrdinalsRemovePartials:
		for _, op := range e.RemovePartials {
			b.Delete(store.CFOutpointPartials, store.OutpointKey(op))
		}
	}
}

// RestoreAll unwinds every block currently retained in the cache — used
// when the chain source reports a reorg deeper than the cache retains,
// as the last-resort partial recovery before spec.md §4.8's "fatal,
// resync required" path.
func (c *Cache) RestoreAll(b store.Batch) (newLastBlock uint32, ok bool) {
	if len(c.heights) == 0 {
		return 0, false
	}
	return c.Restore(b, c.heights[0])
}
