package model

import "github.com/nintondo/doge20indexer/internal/fixed128"

// TokenMeta is the per-tick metadata row, owned by the store and cached in
// the runtime token state. See spec.md §3.
type TokenMeta struct {
	GenesisTxid  Txid
	GenesisIndex uint32

	Tick Tick // original case, for display

	Max fixed128.Fixed128
	Lim fixed128.Fixed128
	Dec uint8

	Supply         fixed128.Fixed128
	MintCount      uint64
	TransferCount  uint64
	Transactions   uint64

	Height      uint32
	CreatedUnix uint32
	Deployer    ScriptHash
}

// IsCompleted reports whether supply has reached max.
func (m *TokenMeta) IsCompleted() bool {
	return m.Supply.Cmp(m.Max) == 0
}

// TokenBalance is the per-(address,tick) balance row.
type TokenBalance struct {
	Balance             fixed128.Fixed128
	TransferableBalance fixed128.Fixed128
	TransfersCount      uint64
}

// AddressToken is the composite key (address, tick) used for the balance
// and history column families.
type AddressToken struct {
	Address ScriptHash
	Tick    LowerCaseTick
}

// AddressLocation is the composite key (address, location) used for the
// transfer column family.
type AddressLocation struct {
	Address  ScriptHash
	Location Location
}

// TransferProto is an inscription that "arms" Amt of Tick at a specific
// Location, owned by the address pair it is keyed under.
type TransferProto struct {
	Tick   Tick
	Amt    fixed128.Fixed128
	Height uint32
}

// HistoryAction enumerates the tagged variants of a HistoryEntry.
type HistoryAction uint8

const (
	ActionDeploy HistoryAction = iota
	ActionMint
	ActionDeployTransfer
	ActionSend
	ActionReceive
	ActionSendReceive
)

func (a HistoryAction) String() string {
	switch a {
	case ActionDeploy:
		return "deploy"
	case ActionMint:
		return "mint"
	case ActionDeployTransfer:
		return "deploy-transfer"
	case ActionSend:
		return "send"
	case ActionReceive:
		return "receive"
	case ActionSendReceive:
		return "send-receive"
	default:
		return "unknown"
	}
}

// HistoryEntry is an append-only record of a single token action, keyed by
// a monotonically increasing id.
type HistoryEntry struct {
	ID      uint64
	Address ScriptHash
	Tick    Tick
	Height  uint32
	Action  HistoryAction

	// Variant payload. Not all fields apply to every action; see
	// internal/proof for the canonical JSON rendering.
	Amt      fixed128.Fixed128
	Max      fixed128.Fixed128
	Lim      fixed128.Fixed128
	Dec      uint8
	Sender   ScriptHash
	Txid     Txid
	Vout     uint32
}

// BlockInfo records the hash and timestamp of an indexed block, keyed by
// height. Used to drive reorg detection and created-timestamp joins.
type BlockInfo struct {
	BlockHash   Txid // 32-byte block hash, same shape as a txid
	CreatedUnix uint32
}

// Partials is an in-progress multi-input inscription reconstruction, owned
// by the first-spent outpoint of the sequence.
type Partials struct {
	GenesisTxid       Txid
	InscriptionIndex  uint32
	Parts             []Part
}

// Part is one spend's contribution to a multi-input inscription: either a
// tapscript witness or a script_sig.
type Part struct {
	IsTapscript  bool
	ScriptBuffer []byte
}

// Prevout is the minimal output data the indexer needs once an output
// has been spent: its value and script_pubkey, from which the address
// hash is derived on demand.
type Prevout struct {
	Value        int64
	ScriptPubKey []byte
}

// ScriptHash returns the address identity of this prevout's output.
func (p Prevout) ScriptHash() ScriptHash {
	return ScriptHashOf(p.ScriptPubKey)
}
