// Package prevout resolves transaction inputs to the output they spend.
// Within a single block, an output created earlier in the same block (or
// even the same transaction's own coinbase-adjacent outputs on chains
// that allow it) can be spent before the indexer ever durably persists
// it, so the resolver checks an in-block scratch map before falling back
// to the store.
//
// Grounded on daglabs-btcd's utxo lookup pattern (the block-local view
// consulted before the committed UTXO set) adapted to this indexer's much
// narrower need: only the spent output's value and script_pubkey, never
// full UTXO-set validation.
package prevout

import (
	"github.com/nintondo/doge20indexer/internal/errs"
	"github.com/nintondo/doge20indexer/internal/model"
	"github.com/nintondo/doge20indexer/internal/store"
)

// Resolver answers PrevOut lookups for one block's worth of transactions.
type Resolver struct {
	s       store.Store
	scratch map[model.Outpoint]model.Prevout
}

// New builds a Resolver bound to s. Call BeginBlock before processing
// each block to clear the scratch map.
func New(s store.Store) *Resolver {
	return &Resolver{s: s, scratch: make(map[model.Outpoint]model.Prevout)}
}

// BeginBlock clears the in-block scratch map. Call once per block before
// resolving any of its inputs.
func (r *Resolver) BeginBlock() {
	r.scratch = make(map[model.Outpoint]model.Prevout)
}

// Observe records outpoint's output data so later inputs in the same (or
// a subsequent, same-block) transaction can resolve it without a store
// round-trip. Call once per output as each transaction in a block is
// walked, before resolving that transaction's own inputs against
// earlier-block prevouts.
func (r *Resolver) Observe(outpoint model.Outpoint, value int64, scriptPubKey []byte) {
	r.scratch[outpoint] = model.Prevout{Value: value, ScriptPubKey: scriptPubKey}
}

// Resolve returns the output data at outpoint, checking the in-block
// scratch map first. A miss against both scratch and the store is a
// fatal indexing error (spec.md §7): the chain's own consensus rules
// guarantee every non-coinbase input has a real prevout, so a miss means
// the indexer's own state is corrupt or desynced from the chain.
func (r *Resolver) Resolve(outpoint model.Outpoint) (model.Prevout, error) {
	if p, ok := r.scratch[outpoint]; ok {
		return p, nil
	}

	raw, err := r.s.Get(store.CFPrevouts, store.OutpointKey(outpoint))
	if err != nil {
		if store.IsNotFound(err) {
			return model.Prevout{}, errs.New(errs.KindFatalIndex, "prevout: missing prevout "+outpoint.Txid.String())
		}
		return model.Prevout{}, errs.Wrapf(errs.KindFatalStore, err, "prevout: resolve %s", outpoint.Txid.String())
	}
	p, err := store.DecodePrevout(raw)
	if err != nil {
		return model.Prevout{}, errs.Wrap(errs.KindFatalStore, err, "prevout: decode")
	}
	return *p, nil
}

// Output names one transaction output for PersistOutputs.
type Output struct {
	Vout         uint32
	Value        int64
	ScriptPubKey []byte
}

// PersistOutputs writes every output of a just-applied transaction into
// store.CFPrevouts via b, so future blocks' inputs can resolve them
// without the scratch map (which only lives for the current block).
func PersistOutputs(b store.Batch, txid model.Txid, outputs []Output) {
	for _, o := range outputs {
		op := model.Outpoint{Txid: txid, Vout: o.Vout}
		p := model.Prevout{Value: o.Value, ScriptPubKey: o.ScriptPubKey}
		b.Put(store.CFPrevouts, store.OutpointKey(op), store.EncodePrevout(&p))
	}
}

// DeleteSpent removes outpoint's row from store.CFPrevouts now that it
// has been spent: once consumed, it can never be a future input's
// prevout again (no chain this indexer targets allows respending).
func DeleteSpent(b store.Batch, outpoint model.Outpoint) {
	b.Delete(store.CFPrevouts, store.OutpointKey(outpoint))
}
