package indexer

import (
	"bytes"

	"github.com/nintondo/doge20indexer/internal/brc20"
	"github.com/nintondo/doge20indexer/internal/inscription"
	"github.com/nintondo/doge20indexer/internal/log"
	"github.com/nintondo/doge20indexer/internal/model"
	"github.com/nintondo/doge20indexer/internal/prevout"
	"github.com/nintondo/doge20indexer/internal/proof"
	"github.com/nintondo/doge20indexer/internal/reorg"
	"github.com/nintondo/doge20indexer/internal/store"
	"github.com/nintondo/doge20indexer/internal/token"
	"github.com/nintondo/doge20indexer/internal/wireformat"
)

// genesisAction is a deploy/mint/transfer payload found this block, queued
// until the token engine's BlockState exists: BlockState needs the full
// set of this block's spent prevouts up front to know which in-flight
// transfers are being finalized in the same pass.
type genesisAction struct {
	op       brc20.Op
	owner    model.ScriptHash
	genesis  model.Outpoint
	location model.Location
}

// txOffsets caches the per-transaction offset/prefix math computed once
// while assembling inscriptions, reused when resolving where a spent
// transfer location's satoshis land among that same transaction's
// outputs.
type txOffsets struct {
	txid        model.Txid
	outputs     []inscription.TxOutput
	offsets     []uint64
	outPrefixes []uint64
}

type spendInfo struct {
	tx    *txOffsets
	index int
}

// processBlock runs one block through B (already decoded) -> P -> I -> T
// -> S -> R -> H -> E (spec.md §5).
func (ix *Indexer) processBlock(height uint32, hash [32]byte, blk *wireformat.Block) error {
	ix.resolver.BeginBlock()
	ix.reorgCache.NewBlock(height)

	b := ix.st.NewBatch()

	prevoutsForState := make(map[model.Outpoint]model.ScriptHash)
	spendingTx := make(map[model.Outpoint]spendInfo)
	var genesisActions []genesisAction
	var restoredPrevouts []reorg.PrevoutRow
	var removedPartials []model.Outpoint
	var writtenPartials []reorg.PartialsRow
	offsetWrites := make(map[model.Outpoint][]uint64)
	offsetDeletes := make(map[model.Outpoint][]uint64)

	for _, tx := range blk.Txs {
		txid := model.Txid(tx.Txid())
		isCoinbase := len(tx.TxIn) == 1 && tx.TxIn[0].PrevIndex == 0xffffffff && allZero(tx.TxIn[0].PrevTxid)

		var inputs []inscription.TxInput
		var inputOutpoints []model.Outpoint
		if !isCoinbase {
			for i, in := range tx.TxIn {
				op := model.Outpoint{Txid: model.Txid(in.PrevTxid), Vout: in.PrevIndex}
				pv, err := ix.resolver.Resolve(op)
				if err != nil {
					return err
				}
				prevoutsForState[op] = pv.ScriptHash()
				restoredPrevouts = append(restoredPrevouts, reorg.PrevoutRow{Outpoint: op, Prevout: pv})

				var witness [][]byte
				if tx.Witness != nil {
					witness = tx.Witness[i]
				}
				inputs = append(inputs, inscription.TxInput{
					Outpoint:         op,
					PrevValue:        pv.Value,
					PrevScript:       pv.ScriptPubKey,
					ScriptSig:        in.ScriptSig,
					TapscriptWitness: witness,
				})
				inputOutpoints = append(inputOutpoints, op)
			}
		}

		outputs := make([]inscription.TxOutput, len(tx.TxOut))
		for i, o := range tx.TxOut {
			outputs[i] = inscription.TxOutput{Value: o.Value, ScriptPubKey: o.ScriptPubKey}
		}

		to := &txOffsets{txid: txid, outputs: outputs, outPrefixes: inscription.OutputPrefixes(valuesOf(outputs))}
		if !isCoinbase {
			inputValues := make([]int64, len(inputs))
			for i, in := range inputs {
				inputValues[i] = in.PrevValue
			}
			offsets, err := inscription.CalcInputOffsets(inputValues, valuesOf(outputs))
			if err != nil {
				offsets = make([]uint64, len(inputs))
			}
			to.offsets = offsets
			for i, op := range inputOutpoints {
				spendingTx[op] = spendInfo{tx: to, index: i}
			}

			// Move existing inscriptions: any sat-offset already anchored on
			// an input's previous_output carries forward to wherever that
			// offset lands among this transaction's outputs, the same
			// mapped-offset math used for brand-new genesis inscriptions.
			for i, op := range inputOutpoints {
				raw, err := ix.st.Get(store.CFOutpointOffsets, store.OutpointKey(op))
				if err != nil {
					if !store.IsNotFound(err) {
						return err
					}
					continue
				}
				oldOffsets, err := store.DecodeOffsets(raw)
				if err != nil {
					return err
				}
				if len(oldOffsets) == 0 {
					continue
				}
				offsetDeletes[op] = oldOffsets
				for _, o := range oldOffsets {
					target := offsets[i] + o
					vout, innerOffset, err := inscription.OutputIndexByOffset(target, to.outPrefixes)
					if err != nil {
						// Leaked past the last output; dropped rather than
						// tracked against the coinbase (spec.md §9 leaves
						// coinbase-leak tracking implementation-optional).
						continue
					}
					newOutpoint := model.Outpoint{Txid: txid, Vout: uint32(vout)}
					offsetWrites[newOutpoint] = append(offsetWrites[newOutpoint], innerOffset)
				}
			}

			existingPartials, err := inscription.LoadPartials(ix.st, inputOutpoints)
			if err != nil {
				return err
			}
			results, newPartials, consumed := inscription.AssembleTx(txid, inputs, outputs, existingPartials, height, ix.cfg.JubileeHeight)

			for _, op := range consumed {
				b.Delete(store.CFOutpointPartials, store.OutpointKey(op))
				removedPartials = append(removedPartials, op)
			}
			for op, p := range newPartials {
				b.Put(store.CFOutpointPartials, store.OutpointKey(op), store.EncodePartials(p))
				writtenPartials = append(writtenPartials, reorg.PartialsRow{Outpoint: op, Partials: *p})
			}

			for _, res := range results {
				if res.Leaked {
					continue
				}
				// Occupancy rule: at most one inscription per (outpoint,
				// offset); a newly finalized one colliding with an offset
				// already anchored there (e.g. by an inscription moved
				// forward above) is discarded.
				if containsUint64(offsetWrites[res.Location.Outpoint], res.Location.Offset) {
					continue
				}
				offsetWrites[res.Location.Outpoint] = append(offsetWrites[res.Location.Outpoint], res.Location.Offset)

				if res.Payload.DuplicateField || res.Payload.IncompleteField || res.Payload.UnrecognizedEvenField {
					continue
				}
				op, ok := brc20.Parse(ix.params.ContentTypePolicy, ix.params.AllowFiveByteTick, string(res.Payload.ContentType), res.Payload.Body)
				if !ok {
					continue
				}
				genesisActions = append(genesisActions, genesisAction{
					op:       op,
					owner:    res.Owner,
					genesis:  res.Genesis,
					location: res.Location,
				})
			}
		}

		var outRows []prevout.Output
		for i, o := range tx.TxOut {
			outRows = append(outRows, prevout.Output{Vout: uint32(i), Value: o.Value, ScriptPubKey: o.ScriptPubKey})
			ix.resolver.Observe(model.Outpoint{Txid: txid, Vout: uint32(i)}, o.Value, o.ScriptPubKey)
			if addr, ok := ix.params.Encode(o.ScriptPubKey); ok {
				b.Put(store.CFFullHashToAddress, store.FullHashKey(model.ScriptHashOf(o.ScriptPubKey)), []byte(addr))
			}
		}
		prevout.PersistOutputs(b, txid, outRows)

		for _, op := range inputOutpoints {
			prevout.DeleteSpent(b, op)
		}
	}

	if len(removedPartials) > 0 {
		ix.reorgCache.PushOrdinals(reorg.OrdinalsEntry{Kind: reorg.OrdinalsRemovePartials, RemovePartials: removedPartials})
	}
	if len(writtenPartials) > 0 {
		ix.reorgCache.PushOrdinals(reorg.OrdinalsEntry{Kind: reorg.OrdinalsRestorePartials, RestorePartials: writtenPartials})
	}
	if len(restoredPrevouts) > 0 {
		ix.reorgCache.PushOrdinals(reorg.OrdinalsEntry{Kind: reorg.OrdinalsRestorePrevouts, RestorePrevouts: restoredPrevouts})
	}

	var restoreOffsetRows []reorg.OffsetRow
	for op, offs := range offsetDeletes {
		b.Delete(store.CFOutpointOffsets, store.OutpointKey(op))
		restoreOffsetRows = append(restoreOffsetRows, reorg.OffsetRow{Outpoint: op, Offsets: offs})
	}
	var writtenOffsetOutpoints []model.Outpoint
	for op, offs := range offsetWrites {
		b.Put(store.CFOutpointOffsets, store.OutpointKey(op), store.EncodeOffsets(offs))
		writtenOffsetOutpoints = append(writtenOffsetOutpoints, op)
	}
	if len(restoreOffsetRows) > 0 {
		ix.reorgCache.PushOrdinals(reorg.OrdinalsEntry{Kind: reorg.OrdinalsRestoreOffsets, RestoreOffsets: restoreOffsetRows})
	}
	if len(writtenOffsetOutpoints) > 0 {
		ix.reorgCache.PushOrdinals(reorg.OrdinalsEntry{Kind: reorg.OrdinalsRemoveOffsets, RemoveOffsets: writtenOffsetOutpoints})
	}

	// Below StartHeight the token engine is never invoked: prevouts,
	// partials, and the offset map stay correct for UTXOs created here
	// and spent later, but no deploy/mint/transfer/transferred action is
	// applied and no history is generated. block_info/last_block (and the
	// proof-of-history chain, folding in an empty inner digest) still
	// advance below.
	var history []model.HistoryEntry
	if height >= ix.cfg.StartHeight {
		bs := token.NewBlockState(ix.rt, prevoutsForState)

		// Finalize transfers this block's prevouts invalidated: resolve the
		// output the transferred satoshis land in via the same offset math
		// used for inscription assembly, burning (OpReturnHash) anything that
		// leaks past the end of its spending transaction's outputs.
		for _, al := range bs.ToRemove() {
			si, ok := spendingTx[al.Location.Outpoint]
			if !ok {
				continue
			}
			target := si.tx.offsets[si.index] + al.Location.Offset
			vout, _, err := inscription.OutputIndexByOffset(target, si.tx.outPrefixes)
			recipient := model.OpReturnHash
			if err == nil {
				recipient = model.ScriptHashOf(si.tx.outputs[vout].ScriptPubKey)
			} else {
				vout = 0
			}
			bs.PushAction(token.Action{
				Kind:             token.ActionKindTransferred,
				TransferLocation: al.Location,
				Recipient:        recipient,
				Txid:             si.tx.txid,
				Vout:             vout,
			})
		}

		for _, ga := range genesisActions {
			switch ga.op.Kind {
			case brc20.OpDeploy:
				bs.PushAction(token.Action{
					Kind:    token.ActionKindDeploy,
					Genesis: ga.genesis,
					Owner:   ga.owner,
					Deploy: token.DeployProto{
						Tick: ga.op.Tick,
						Max:  ga.op.Max,
						Lim:  ga.op.Lim,
						Dec:  ga.op.Dec,
					},
				})
			case brc20.OpMint:
				bs.PushAction(token.Action{
					Kind:           token.ActionKindMint,
					Owner:          ga.owner,
					MintOrTransfer: token.MintProto{Tick: ga.op.Tick, Amt: ga.op.Amt},
					Location:       ga.location,
					Txid:           ga.location.Outpoint.Txid,
					Vout:           ga.location.Outpoint.Vout,
				})
			case brc20.OpTransfer:
				bs.RegisterTransfer(ga.location, &model.TransferProto{Tick: ga.op.Tick, Amt: ga.op.Amt, Height: height})
				bs.PushAction(token.Action{
					Kind:           token.ActionKindTransfer,
					Owner:          ga.owner,
					MintOrTransfer: token.MintProto{Tick: ga.op.Tick, Amt: ga.op.Amt},
					Location:       ga.location,
					Txid:           ga.location.Outpoint.Txid,
					Vout:           ga.location.Outpoint.Vout,
				})
			}
		}

		snap := ix.snapshotBefore(genesisActions, bs.ToRemove())

		var delta token.Delta
		history, delta = bs.Finish(ix.holdersIdx, height)

		ix.pushTokenInverse(snap, delta)

		for _, meta := range delta.Metas {
			b.Put(store.CFTokenMeta, store.TokenMetaKey(meta.Tick.Lower()), store.EncodeTokenMeta(meta))
		}
		for at, bal := range delta.Balances {
			b.Put(store.CFAddressTokenBalance, store.AddressTokenKey(at), store.EncodeTokenBalance(bal))
		}
		for _, al := range delta.TransfersToRemove {
			b.Delete(store.CFAddressLocationTransfer, store.AddressLocationKey(al))
		}
		var writtenTransfers []model.AddressLocation
		for _, row := range delta.TransfersToWrite {
			b.Put(store.CFAddressLocationTransfer, store.AddressLocationKey(row.AddressLocation), store.EncodeTransferProto(row.Proto))
			writtenTransfers = append(writtenTransfers, row.AddressLocation)
		}
		if len(delta.TransfersToRemove) > 0 {
			var restoreRows []reorg.TransferRow
			for _, al := range delta.TransfersToRemove {
				if proto, ok := snap.transfers[al.Location]; ok {
					restoreRows = append(restoreRows, reorg.TransferRow{Key: al, Proto: proto})
				}
			}
			if len(restoreRows) > 0 {
				ix.reorgCache.PushToken(reorg.TokenEntry{Kind: reorg.TokenRestoreTransfers, TransferRows: restoreRows})
			}
		}
		if len(writtenTransfers) > 0 {
			ix.reorgCache.PushToken(reorg.TokenEntry{Kind: reorg.TokenRemoveTransfers, AddressLocations: writtenTransfers})
		}
	}

	var historyKeys []reorg.HistoryKey
	startID := ix.lastHistoryID
	for i := range history {
		history[i].ID = startID + 1 + uint64(i)
		history[i].Height = height
		b.Put(store.CFAddressTokenHistory,
			store.AddressTokenHistoryKey(history[i].Address, history[i].Tick.Lower(), history[i].ID),
			store.EncodeHistoryEntry(&history[i]))
		historyKeys = append(historyKeys, reorg.HistoryKey{Address: history[i].Address, Tick: history[i].Tick.Lower(), ID: history[i].ID})
	}
	ix.lastHistoryID = startID + uint64(len(history))
	b.Put(store.CFLastHistoryID, store.SingletonKey(), store.EncodeUint64(ix.lastHistoryID))
	ix.reorgCache.PushToken(reorg.TokenEntry{Kind: reorg.TokenRemoveHistory, LastHistoryID: startID, HistoryToRemove: historyKeys})

	inner, err := proof.Inner(history)
	if err != nil {
		return err
	}
	nextPoH := proof.Next(ix.lastPoH, inner)
	b.Put(store.CFProofOfHistory, store.ProofOfHistoryKey(height), store.EncodeHash32(nextPoH))

	b.Put(store.CFBlockInfo, store.BlockInfoKey(height), store.EncodeBlockInfo(&model.BlockInfo{
		BlockHash:   model.Txid(hash),
		CreatedUnix: blk.Header.Time,
	}))
	b.Put(store.CFLastBlock, store.SingletonKey(), store.EncodeUint32(height))

	if err := ix.st.Commit(b); err != nil {
		return err
	}

	ix.lastBlock = height
	ix.lastHash = hash
	ix.lastPoH = nextPoH

	for _, h := range history {
		ix.bus.PublishHistory(h)
	}
	ix.bus.PublishBlock(height, model.Txid(hash))

	ix.health.Update(height, model.Txid(hash).String())
	log.Indexer.Info().Uint32("height", height).Int("history", len(history)).Msg("applied block")
	return nil
}

// snapshot holds the pre-mutation state for everything this block's
// queued actions touch, captured before BlockState.Finish mutates the
// runtime state in place.
type snapshot struct {
	balances  map[model.AddressToken]model.TokenBalance
	metas     map[model.LowerCaseTick]model.TokenMeta
	transfers map[model.Location]model.TransferProto
}

// snapshotBefore copies the pre-mutation state for every account/tick the
// queued actions reference, so pushTokenInverse can record an accurate
// rollback entry once Finish has mutated them in place.
func (ix *Indexer) snapshotBefore(genesisActions []genesisAction, toRemove []model.AddressLocation) snapshot {
	s := snapshot{
		balances:  make(map[model.AddressToken]model.TokenBalance),
		metas:     make(map[model.LowerCaseTick]model.TokenMeta),
		transfers: make(map[model.Location]model.TransferProto),
	}
	addBalance := func(addr model.ScriptHash, tick model.LowerCaseTick) {
		key := model.AddressToken{Address: addr, Tick: tick}
		if _, ok := s.balances[key]; ok {
			return
		}
		if bal, ok := ix.rt.Balances[key]; ok {
			s.balances[key] = *bal
		}
	}
	addMeta := func(tick model.LowerCaseTick) {
		if _, ok := s.metas[tick]; ok {
			return
		}
		if meta, ok := ix.rt.Tokens[tick]; ok {
			s.metas[tick] = *meta
		}
	}

	for _, ga := range genesisActions {
		tick := ga.op.Tick.Lower()
		addMeta(tick)
		if ga.op.Kind != brc20.OpDeploy {
			addBalance(ga.owner, tick)
		}
	}
	for _, al := range toRemove {
		if ap, ok := ix.rt.ValidTransfers[al.Location]; ok {
			tick := ap.Proto.Tick.Lower()
			addMeta(tick)
			addBalance(al.Address, tick)
			s.transfers[al.Location] = *ap.Proto
		}
	}
	return s
}

// pushTokenInverse records the reorg-cache entries needed to undo this
// block's token-engine mutations: brand-new ticks/accounts are dropped
// entirely on rollback, pre-existing ones are restored to their snapshot.
func (ix *Indexer) pushTokenInverse(snap snapshot, delta token.Delta) {
	var newTicks []model.LowerCaseTick
	var restoreMetas []model.TokenMeta
	for _, meta := range delta.Metas {
		tick := meta.Tick.Lower()
		if before, ok := snap.metas[tick]; ok {
			restoreMetas = append(restoreMetas, before)
		} else {
			newTicks = append(newTicks, tick)
		}
	}
	if len(newTicks) > 0 {
		ix.reorgCache.PushToken(reorg.TokenEntry{Kind: reorg.TokenDeploysToRemove, Ticks: newTicks})
	}
	if len(restoreMetas) > 0 {
		ix.reorgCache.PushToken(reorg.TokenEntry{Kind: reorg.TokenMetaBefore, MetasBefore: restoreMetas})
	}

	var newAccounts []model.AddressToken
	var restoreBalances []reorg.BalanceRow
	for at := range delta.Balances {
		if before, ok := snap.balances[at]; ok {
			restoreBalances = append(restoreBalances, reorg.BalanceRow{Key: at, Balance: before})
		} else {
			newAccounts = append(newAccounts, at)
		}
	}
	if len(newAccounts) > 0 {
		ix.reorgCache.PushToken(reorg.TokenEntry{Kind: reorg.TokenBalancesToRemove, AddressTokens: newAccounts})
	}
	if len(restoreBalances) > 0 {
		ix.reorgCache.PushToken(reorg.TokenEntry{Kind: reorg.TokenBalancesBefore, BalancesBefore: restoreBalances})
	}
}

func containsUint64(set []uint64, v uint64) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

func allZero(h [32]byte) bool {
	var zero [32]byte
	return bytes.Equal(h[:], zero[:])
}

func valuesOf(outs []inscription.TxOutput) []int64 {
	v := make([]int64, len(outs))
	for i, o := range outs {
		v[i] = o.Value
	}
	return v
}
