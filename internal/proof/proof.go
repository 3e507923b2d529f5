// Package proof implements the indexer's proof-of-history hash chain: one
// SHA256 digest per block, folding in the previous digest and a
// canonical JSON rendering of the block's history entries, so any two
// indexer instances that processed the same chain can cheaply confirm
// they agree without comparing full history logs.
//
// Grounded on spec.md §3's poh[h] = SHA256(poh[h-1] || inner[h])
// definition; the canonical JSON rendering follows the teacher's
// database2 convention of fixed field order (struct field order, not map
// iteration) so the digest is reproducible across Go versions.
package proof

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/nintondo/doge20indexer/internal/model"
)

// historyJSON is the canonical, field-order-fixed JSON shape hashed into
// each block's inner digest. Struct field order is JSON key order in
// Go's encoding/json, so this type, not a map, is what guarantees
// reproducibility.
type historyJSON struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
	Tick    string `json:"tick"`
	Height  uint32 `json:"height"`
	Action  string `json:"action"`
	Amt     string `json:"amt"`
	Max     string `json:"max"`
	Lim     string `json:"lim"`
	Dec     uint8  `json:"dec"`
	Sender  string `json:"sender"`
	Txid    string `json:"txid"`
	Vout    uint32 `json:"vout"`
}

// DefaultHash is the inner digest of an empty block history: SHA256("null"),
// matching the seed value config.Config.DefaultHash carries.
var DefaultHash = sha256.Sum256([]byte("null"))

// Inner computes SHA256 of this block's history entries, each rendered as
// canonical JSON and concatenated with no separators (not a JSON array) in
// the order they were appended. A block with no history entries hashes to
// DefaultHash rather than the digest of an empty byte string.
func Inner(entries []model.HistoryEntry) ([32]byte, error) {
	if len(entries) == 0 {
		return DefaultHash, nil
	}

	var buf []byte
	for _, e := range entries {
		rendered := historyJSON{
			ID:      e.ID,
			Address: e.Address.String(),
			Tick:    e.Tick.String(),
			Height:  e.Height,
			Action:  e.Action.String(),
			Amt:     e.Amt.String(),
			Max:     e.Max.String(),
			Lim:     e.Lim.String(),
			Dec:     e.Dec,
			Sender:  e.Sender.String(),
			Txid:    e.Txid.String(),
			Vout:    e.Vout,
		}
		b, err := json.Marshal(rendered)
		if err != nil {
			return [32]byte{}, errors.Wrap(err, "proof: marshal history entry")
		}
		buf = append(buf, b...)
	}
	return sha256.Sum256(buf), nil
}

// Next folds prev (the proof-of-history digest at height-1, or
// cfg.DefaultHash at height 0) with inner (this block's history digest)
// to produce this block's proof-of-history digest.
func Next(prev, inner [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, prev[:]...)
	buf = append(buf, inner[:]...)
	return sha256.Sum256(buf)
}
