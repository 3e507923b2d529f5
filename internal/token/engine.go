// Package token implements the BRC-20-style token engine (T in spec.md
// §3's component naming): deploy, mint, transfer ("deploy-transfer" in
// the history log) and send ("transferred") actions applied against an
// in-memory runtime view backed by the store.
//
// Grounded on original_source's tokens/runtime_state.rs, whose
// RuntimeTokenState + BlockTokenState split (global in-memory state vs.
// a per-block scratchpad that mutates it and emits a store delta) is
// reproduced here nearly verbatim in control flow, adapted to Go's
// map-and-struct idiom in place of hashbrown/Entry, and to this
// indexer's column-family store in place of RocksDB.
package token

import (
	"github.com/nintondo/doge20indexer/internal/fixed128"
	"github.com/nintondo/doge20indexer/internal/log"
	"github.com/nintondo/doge20indexer/internal/model"
)

// maxDec is the protocol's maximum allowed `dec` field (spec.md §4.5.5).
const maxDec = 18

// Action is one parsed token inscription or spend observed in the current
// block, queued for validation-and-apply in Finish.
type Action struct {
	Kind ActionKind

	// Deploy
	Genesis model.Outpoint
	Owner   model.ScriptHash
	Deploy  DeployProto

	// Mint / Transfer (deploy-transfer)
	MintOrTransfer MintProto
	Location       model.Location
	Txid           model.Txid
	Vout           uint32

	// Transferred (send)
	TransferLocation model.Location
	Recipient        model.ScriptHash
}

// ActionKind tags the variant of Action in play, mirroring
// original_source's TokenAction enum.
type ActionKind uint8

const (
	ActionKindDeploy ActionKind = iota
	ActionKindMint
	ActionKindTransfer
	ActionKindTransferred
)

// DeployProto is a parsed BRC-20 "deploy" payload.
type DeployProto struct {
	Tick model.Tick
	Max  fixed128.Fixed128
	Lim  fixed128.Fixed128
	Dec  uint8
}

// MintProto is a parsed BRC-20 "mint" or "transfer" payload (both carry
// just tick+amt).
type MintProto struct {
	Tick model.Tick
	Amt  fixed128.Fixed128
}

// RuntimeState is the whole-chain in-memory view: every deployed token's
// metadata, every (address,tick) balance, and the set of outstanding
// (unspent) transfer inscriptions indexed two ways — by location and, for
// fast prevout lookup, by (address, outpoint).
type RuntimeState struct {
	Tokens   map[model.LowerCaseTick]*model.TokenMeta
	Balances map[model.AddressToken]*model.TokenBalance

	ValidTransfers      map[model.Location]addrProto
	TransfersByOutpoint map[addressOutpoint][]model.Location
}

type addrProto struct {
	Address model.ScriptHash
	Proto   *model.TransferProto
}

type addressOutpoint struct {
	Address model.ScriptHash
	Out     model.Outpoint
}

// NewRuntimeState builds an empty runtime state; populate it from the
// store at startup via the store's iterators (internal/indexer does
// this).
func NewRuntimeState() *RuntimeState {
	return &RuntimeState{
		Tokens:              make(map[model.LowerCaseTick]*model.TokenMeta),
		Balances:            make(map[model.AddressToken]*model.TokenBalance),
		ValidTransfers:      make(map[model.Location]addrProto),
		TransfersByOutpoint: make(map[addressOutpoint][]model.Location),
	}
}

// LoadToken seeds the runtime cache with a token_to_meta row read at
// startup.
func (rt *RuntimeState) LoadToken(tick model.LowerCaseTick, meta *model.TokenMeta) {
	rt.Tokens[tick] = meta
}

// LoadBalance seeds the runtime cache with an address_token_to_balance
// row read at startup.
func (rt *RuntimeState) LoadBalance(at model.AddressToken, bal *model.TokenBalance) {
	rt.Balances[at] = bal
}

// LoadTransfer seeds the runtime cache with an
// address_location_to_transfer row read at startup.
func (rt *RuntimeState) LoadTransfer(address model.ScriptHash, loc model.Location, proto *model.TransferProto) {
	rt.ValidTransfers[loc] = addrProto{Address: address, Proto: proto}
	key := addressOutpoint{Address: address, Out: loc.Outpoint}
	rt.TransfersByOutpoint[key] = append(rt.TransfersByOutpoint[key], loc)
}

// BlockState is the per-block scratchpad: it snapshots the runtime
// transfers reachable from this block's prevouts, accumulates actions
// parsed while walking the block's transactions, and on Finish applies
// every action to RuntimeState and returns the append-only history plus
// the touched rows the caller must persist.
type BlockState struct {
	rt *RuntimeState

	actions []Action

	// Transfer prototypes newly created by "transfer" inscriptions seen
	// so far this block, keyed by the inscription's own location.
	allTransfers map[model.Location]*model.TransferProto

	// Pre-block valid transfers reachable via this block's prevouts; this
	// map is mutated in place to become the post-block set for those
	// locations only (spec.md's "only touched rows get a new history/db
	// delta" invariant).
	validTransfers map[model.Location]addrProto
	toRemove       []model.AddressLocation

	touchedTicks    map[model.LowerCaseTick]struct{}
	touchedAccounts map[model.AddressToken]struct{}
}

// NewBlockState starts a fresh per-block scratchpad. prevouts is the set
// of outpoints this block's transactions spend, mapped to the spending
// script's address hash — used to find which in-flight transfers this
// block might finalize or invalidate.
func NewBlockState(rt *RuntimeState, prevouts map[model.Outpoint]model.ScriptHash) *BlockState {
	bs := &BlockState{
		rt:              rt,
		allTransfers:    make(map[model.Location]*model.TransferProto),
		validTransfers:  make(map[model.Location]addrProto),
		touchedTicks:    make(map[model.LowerCaseTick]struct{}),
		touchedAccounts: make(map[model.AddressToken]struct{}),
	}

	for outpoint, address := range prevouts {
		key := addressOutpoint{Address: address, Out: outpoint}
		for _, loc := range rt.TransfersByOutpoint[key] {
			if ap, ok := rt.ValidTransfers[loc]; ok {
				bs.validTransfers[loc] = ap
			}
		}
	}
	for loc, ap := range bs.validTransfers {
		bs.toRemove = append(bs.toRemove, model.AddressLocation{Address: ap.Address, Location: loc})
	}

	return bs
}

// PushAction queues a parsed action for Finish.
func (bs *BlockState) PushAction(a Action) { bs.actions = append(bs.actions, a) }

// RegisterTransfer records a newly-created transfer prototype at
// location, produced while parsing a "transfer" inscription in this
// block.
func (bs *BlockState) RegisterTransfer(loc model.Location, proto *model.TransferProto) {
	bs.allTransfers[loc] = proto
}

// ToRemove returns the address_location_to_transfer rows this block's
// prevouts invalidated (to be deleted from the store regardless of
// whether they end up re-inserted by sync below).
func (bs *BlockState) ToRemove() []model.AddressLocation {
	return append([]model.AddressLocation(nil), bs.toRemove...)
}

// Delta is the set of rows Finish determined need a fresh store write.
type Delta struct {
	Metas            []*model.TokenMeta
	Balances         map[model.AddressToken]*model.TokenBalance
	TransfersToWrite []addrLocProto
	TransfersToRemove []model.AddressLocation
}

type addrLocProto struct {
	AddressLocation model.AddressLocation
	Proto           *model.TransferProto
}

// Finish validates and applies every queued action against rt in order,
// producing the append-only history entries (without ID or
// height/Action-independent fields filled in — the caller assigns those)
// and the minimal set of rows that changed.
func (bs *BlockState) Finish(h Holders, height uint32) ([]model.HistoryEntry, Delta) {
	var history []model.HistoryEntry

	for _, action := range bs.actions {
		switch action.Kind {
		case ActionKindDeploy:
			bs.applyDeploy(action, &history)
		case ActionKindMint:
			bs.applyMint(action, h, &history)
		case ActionKindTransfer:
			bs.applyTransfer(action, &history)
		case ActionKindTransferred:
			bs.applyTransferred(action, h, &history)
		}
	}

	bs.syncRuntimeTransfers()

	delta := Delta{
		Balances:          make(map[model.AddressToken]*model.TokenBalance, len(bs.touchedAccounts)),
		TransfersToRemove: bs.toRemove,
	}
	for tick := range bs.touchedTicks {
		if meta, ok := bs.rt.Tokens[tick]; ok {
			delta.Metas = append(delta.Metas, meta)
		}
	}
	for key := range bs.touchedAccounts {
		if bal, ok := bs.rt.Balances[key]; ok {
			delta.Balances[key] = bal
		}
	}
	for loc, ap := range bs.validTransfers {
		delta.TransfersToWrite = append(delta.TransfersToWrite, addrLocProto{
			AddressLocation: model.AddressLocation{Address: ap.Address, Location: loc},
			Proto:           ap.Proto,
		})
	}

	return history, delta
}

func (bs *BlockState) applyDeploy(a Action, history *[]model.HistoryEntry) {
	tickLC := a.Deploy.Tick.Lower()
	if _, exists := bs.rt.Tokens[tickLC]; exists {
		return // duplicate deploy ignored
	}

	meta := &model.TokenMeta{
		GenesisTxid:  a.Genesis.Txid,
		GenesisIndex: a.Genesis.Vout,
		Tick:         a.Deploy.Tick,
		Max:          a.Deploy.Max,
		Lim:          a.Deploy.Lim,
		Dec:          a.Deploy.Dec,
		Supply:       fixed128.Zero,
		Transactions: 1,
		Deployer:     a.Owner,
	}
	bs.rt.Tokens[tickLC] = meta
	bs.touchedTicks[tickLC] = struct{}{}

	*history = append(*history, model.HistoryEntry{
		Address: a.Owner,
		Tick:    a.Deploy.Tick,
		Action:  model.ActionDeploy,
		Max:     a.Deploy.Max,
		Lim:     a.Deploy.Lim,
		Dec:     a.Deploy.Dec,
		Txid:    a.Genesis.Txid,
		Vout:    a.Genesis.Vout,
	})
}

// Holders is the subset of internal/holders.Index the token engine needs,
// kept as an interface here so engine.go has no import-cycle dependency
// on the concrete holders package beyond this narrow surface.
type Holders interface {
	Increase(at model.AddressToken, before *model.TokenBalance, amt fixed128.Fixed128)
	Decrease(at model.AddressToken, before *model.TokenBalance, amt fixed128.Fixed128)
}

func (bs *BlockState) applyMint(a Action, h Holders, history *[]model.HistoryEntry) {
	tickLC := a.MintOrTransfer.Tick.Lower()
	meta, ok := bs.rt.Tokens[tickLC]
	if !ok {
		return
	}
	amt := a.MintOrTransfer.Amt
	if amt.Scale() > meta.Dec {
		return
	}
	if meta.Lim.LessThan(amt) {
		return
	}
	capLeft := meta.Max.Sub(meta.Supply)
	if capLeft.IsZero() {
		return
	}
	amt = amt.Min(capLeft)

	key := model.AddressToken{Address: a.Owner, Tick: tickLC}
	bal, existed := bs.rt.Balances[key]
	if !existed {
		bal = &model.TokenBalance{Balance: fixed128.Zero, TransferableBalance: fixed128.Zero}
	}
	h.Increase(key, bal, amt)
	bal.Balance = bal.Balance.Add(amt)
	bs.rt.Balances[key] = bal

	meta.Supply = meta.Supply.Add(amt)
	meta.MintCount++
	meta.Transactions++

	bs.touchedTicks[tickLC] = struct{}{}
	bs.touchedAccounts[key] = struct{}{}

	*history = append(*history, model.HistoryEntry{
		Address: a.Owner,
		Tick:    meta.Tick,
		Action:  model.ActionMint,
		Amt:     amt,
		Txid:    a.Txid,
		Vout:    a.Vout,
	})
}

func (bs *BlockState) applyTransfer(a Action, history *[]model.HistoryEntry) {
	proto, ok := bs.allTransfers[a.Location]
	if !ok {
		return // already spent within this same block, or never registered
	}
	delete(bs.allTransfers, a.Location)

	tickLC := a.MintOrTransfer.Tick.Lower()
	meta, ok := bs.rt.Tokens[tickLC]
	if !ok {
		return
	}
	amt := a.MintOrTransfer.Amt
	if amt.Scale() > meta.Dec {
		return
	}

	key := model.AddressToken{Address: a.Owner, Tick: tickLC}
	bal, ok := bs.rt.Balances[key]
	if !ok {
		return
	}
	if amt.GreaterThan(bal.Balance) {
		return
	}

	bal.Balance = bal.Balance.Sub(amt)
	bal.TransfersCount++
	bal.TransferableBalance = bal.TransferableBalance.Add(amt)

	proto.Tick = meta.Tick
	proto.Amt = amt
	bs.validTransfers[a.Location] = addrProto{Address: a.Owner, Proto: proto}

	meta.TransferCount++
	meta.Transactions++

	bs.touchedTicks[tickLC] = struct{}{}
	bs.touchedAccounts[key] = struct{}{}

	*history = append(*history, model.HistoryEntry{
		Address: a.Owner,
		Tick:    meta.Tick,
		Action:  model.ActionDeployTransfer,
		Amt:     amt,
		Txid:    a.Txid,
		Vout:    a.Vout,
	})
}

func (bs *BlockState) applyTransferred(a Action, h Holders, history *[]model.HistoryEntry) {
	ap, ok := bs.validTransfers[a.TransferLocation]
	if !ok {
		return // already spent
	}
	delete(bs.validTransfers, a.TransferLocation)

	tickLC := ap.Proto.Tick.Lower()
	meta, ok := bs.rt.Tokens[tickLC]
	if !ok {
		log.Engine.Error().Str("tick", ap.Proto.Tick.String()).Msg("transferred inscription references unknown tick; dropping")
		return
	}

	senderKey := model.AddressToken{Address: ap.Address, Tick: tickLC}
	senderBal, ok := bs.rt.Balances[senderKey]
	if !ok || senderBal.TransfersCount == 0 || senderBal.TransferableBalance.LessThan(ap.Proto.Amt) {
		log.Engine.Error().Str("tick", ap.Proto.Tick.String()).Msg("invalid transfer sender balance; dropping")
		return
	}

	h.Decrease(senderKey, senderBal, ap.Proto.Amt)
	senderBal.TransfersCount--
	senderBal.TransferableBalance = senderBal.TransferableBalance.Sub(ap.Proto.Amt)
	meta.Transactions++

	bs.touchedAccounts[senderKey] = struct{}{}
	bs.touchedTicks[tickLC] = struct{}{}

	if !a.Recipient.IsOpReturn() {
		recipientKey := model.AddressToken{Address: a.Recipient, Tick: tickLC}
		recipientBal, existed := bs.rt.Balances[recipientKey]
		if !existed {
			recipientBal = &model.TokenBalance{Balance: fixed128.Zero, TransferableBalance: fixed128.Zero}
		}
		h.Increase(recipientKey, recipientBal, ap.Proto.Amt)
		recipientBal.Balance = recipientBal.Balance.Add(ap.Proto.Amt)
		bs.rt.Balances[recipientKey] = recipientBal
		bs.touchedAccounts[recipientKey] = struct{}{}
	}

	switch {
	case a.Recipient.IsOpReturn():
		// Burn: only the sender's side of the transfer happened.
		*history = append(*history, model.HistoryEntry{
			Address: ap.Address,
			Tick:    meta.Tick,
			Action:  model.ActionSend,
			Amt:     ap.Proto.Amt,
			Sender:  ap.Address,
			Txid:    a.Txid,
			Vout:    a.Vout,
		})
	case ap.Address == a.Recipient:
		// Sender transferred to themselves: one row covers both sides.
		*history = append(*history, model.HistoryEntry{
			Address: ap.Address,
			Tick:    meta.Tick,
			Action:  model.ActionSendReceive,
			Amt:     ap.Proto.Amt,
			Sender:  ap.Address,
			Txid:    a.Txid,
			Vout:    a.Vout,
		})
	default:
		// A->B: one row under the sender, one under the recipient, with
		// consecutive ids assigned by the caller in append order.
		*history = append(*history,
			model.HistoryEntry{
				Address: ap.Address,
				Tick:    meta.Tick,
				Action:  model.ActionSend,
				Amt:     ap.Proto.Amt,
				Sender:  ap.Address,
				Txid:    a.Txid,
				Vout:    a.Vout,
			},
			model.HistoryEntry{
				Address: a.Recipient,
				Tick:    meta.Tick,
				Action:  model.ActionReceive,
				Amt:     ap.Proto.Amt,
				Sender:  ap.Address,
				Txid:    a.Txid,
				Vout:    a.Vout,
			},
		)
	}
}

func (bs *BlockState) syncRuntimeTransfers() {
	for _, al := range bs.toRemove {
		loc := al.Location
		idxKey := addressOutpoint{Address: al.Address, Out: loc.Outpoint}
		delete(bs.rt.ValidTransfers, loc)

		locs := bs.rt.TransfersByOutpoint[idxKey]
		for i, l := range locs {
			if l == loc {
				locs[i] = locs[len(locs)-1]
				locs = locs[:len(locs)-1]
				break
			}
		}
		if len(locs) == 0 {
			delete(bs.rt.TransfersByOutpoint, idxKey)
		} else {
			bs.rt.TransfersByOutpoint[idxKey] = locs
		}
	}

	for loc, ap := range bs.validTransfers {
		bs.rt.ValidTransfers[loc] = ap
		idxKey := addressOutpoint{Address: ap.Address, Out: loc.Outpoint}
		bs.rt.TransfersByOutpoint[idxKey] = append(bs.rt.TransfersByOutpoint[idxKey], loc)
	}
}
