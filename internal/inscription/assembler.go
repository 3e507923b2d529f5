// Assembler ties the envelope parser and the offset algorithm together
// into the per-transaction reconstruction spec.md §4.4 describes:
// locating every inscription genesis, tracking its satoshi position
// through however many further spends move it, and resolving the output
// (and therefore the owning address) it ultimately lands in for this
// block.
//
// Grounded on original_source's InscriptionTemplate construction (in
// inscriptions/mod.rs, not reproduced verbatim here since it also wires
// in rune/ordinal-specific concerns out of this indexer's scope) plus
// searcher.rs for the offset math and envelope.rs for payload shape.
package inscription

import (
	"github.com/nintondo/doge20indexer/internal/model"
	"github.com/nintondo/doge20indexer/internal/store"
)

// TxInput is the minimal per-input view the assembler needs: its
// outpoint, the resolved prevout it spends, and whatever script data
// might carry an envelope (classic script_sig, or a tapscript witness
// when present).
type TxInput struct {
	Outpoint     model.Outpoint
	PrevValue    int64
	PrevScript   []byte
	ScriptSig    []byte
	TapscriptWitness [][]byte // nil if this input has no witness stack
}

// TxOutput is the minimal per-output view the assembler needs.
type TxOutput struct {
	Value        int64
	ScriptPubKey []byte
}

// Result is one reconstructed inscription located in this transaction.
type Result struct {
	Genesis  model.Outpoint
	Location model.Location
	Owner    model.ScriptHash
	Payload  Inscription
	Leaked   bool
}

// AssembleTx reconstructs every inscription carried or moved by one
// transaction. txid is this transaction's own id (used as the genesis
// txid for any brand-new inscription found in one of its inputs).
//
// existingPartials is the caller's view of store.CFOutpointPartials
// restricted to this transaction's own input outpoints. An input that
// spends one of them appends its script_sig to that partial's parts; if
// the combined script now parses, the inscription is finalized here,
// otherwise the grown partial is returned in the second result, keyed by
// (txid, 0). The third result lists every existingPartials key an input
// spent, so the caller can build the store batch and reorg inverse. A new
// partial is never started here: an input whose own script holds an
// unterminated envelope yields no result and no partial.
//
// height and jubilee gate where a brand-new inscription may originate:
// before jubilee only input 0 can start a genesis (spec.md §4.4's
// original first-input-only rule); at or after jubilee any input can.
// This only gates new envelope discovery, not finishing a multi-input
// reconstruction already started before jubilee.
func AssembleTx(txid model.Txid, inputs []TxInput, outputs []TxOutput, existingPartials map[model.Outpoint]*model.Partials, height, jubilee uint32) ([]Result, map[model.Outpoint]*model.Partials, []model.Outpoint) {
	inputValues := make([]int64, len(inputs))
	for i, in := range inputs {
		inputValues[i] = in.PrevValue
	}
	outputValues := make([]int64, len(outputs))
	for i, o := range outputs {
		outputValues[i] = o.Value
	}

	offsets, err := CalcInputOffsets(inputValues, outputValues)
	if err != nil {
		offsets = make([]uint64, len(inputs))
	}
	outPrefixes := OutputPrefixes(outputValues)

	var results []Result
	newPartials := make(map[model.Outpoint]*model.Partials)
	var consumedPartials []model.Outpoint

	for i, in := range inputs {
		if p, ok := existingPartials[in.Outpoint]; ok {
			consumedPartials = append(consumedPartials, in.Outpoint)
			parts := append(append([]model.Part(nil), p.Parts...), classicPart(in.ScriptSig))
			if env, ok := tryFinishClassic(parts); ok {
				results = append(results, finalizeResult(txid, model.Outpoint{Txid: p.GenesisTxid, Vout: p.InscriptionIndex}, env, offsets[i], outPrefixes, outputs))
				continue
			}
			// Still incomplete: re-key the accumulating partial under this
			// transaction's own output 0, the conventional continuation
			// point a classic multi-input envelope is carried forward on
			// (mirrors ordinals' same-output-index reinscription
			// convention) so the next spend of that output finds it.
			if len(outputs) > 0 {
				continuation := model.Outpoint{Txid: txid, Vout: 0}
				newPartials[continuation] = &model.Partials{GenesisTxid: p.GenesisTxid, InscriptionIndex: p.InscriptionIndex, Parts: parts}
			}
			continue
		}

		if i != 0 && height < jubilee {
			continue
		}

		var envs []Envelope
		if in.TapscriptWitness != nil {
			for _, item := range in.TapscriptWitness {
				envs = append(envs, ParseEnvelopes(item, uint32(i))...)
			}
		} else {
			envs = ParseEnvelopes(in.ScriptSig, uint32(i))
		}

		for _, env := range envs {
			genesis := model.Outpoint{Txid: txid, Vout: uint32(i)}
			results = append(results, finalizeResult(txid, genesis, env.Payload, offsets[i], outPrefixes, outputs))
		}
	}

	return results, newPartials, consumedPartials
}

func classicPart(scriptSig []byte) model.Part {
	return model.Part{IsTapscript: false, ScriptBuffer: scriptSig}
}

// tryFinishClassic reports whether the accumulated script_sig fragments
// now contain a syntactically complete envelope (OP_ENDIF reached). A
// real multi-input reconstruction also needs to concatenate the raw
// push data across fragments before re-tokenizing; this performs that
// concatenation and re-parses.
func tryFinishClassic(parts []model.Part) (Inscription, bool) {
	var combined []byte
	for _, p := range parts {
		combined = append(combined, p.ScriptBuffer...)
	}
	envs := ParseEnvelopes(combined, 0)
	if len(envs) == 0 {
		return Inscription{}, false
	}
	return envs[0].Payload, true
}

// finalizeResult resolves the location among txid's outputs that an
// inscription starting at inputOffset lands in, honoring an explicit
// pointer override (spec.md §4.4: a `pointer` tag redirects the
// inscription to an output offset) only when the pointer is below the
// transaction's own total output value, and otherwise falling back to the
// default same-offset-carries-forward rule.
func finalizeResult(txid model.Txid, genesis model.Outpoint, payload Inscription, inputOffset uint64, outPrefixes []uint64, outputs []TxOutput) Result {
	target := inputOffset
	if ptr, ok := decodePointer(payload.Pointer); ok && len(outPrefixes) > 0 && ptr < outPrefixes[len(outPrefixes)-1] {
		target = ptr
	}

	vout, innerOffset, err := OutputIndexByOffset(target, outPrefixes)
	if err != nil {
		return Result{Genesis: genesis, Payload: payload, Leaked: true}
	}

	owner := model.ScriptHashOf(outputs[vout].ScriptPubKey)
	return Result{
		Genesis:  genesis,
		Location: model.Location{Outpoint: model.Outpoint{Txid: txid, Vout: vout}, Offset: innerOffset},
		Owner:    owner,
		Payload:  payload,
	}
}

func decodePointer(b []byte) (uint64, bool) {
	if len(b) == 0 || len(b) > 8 {
		return 0, false
	}
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, true
}

// LoadPartials fetches every in-progress partial reconstruction keyed by
// the outpoints this transaction's inputs spend.
func LoadPartials(s store.Store, outpoints []model.Outpoint) (map[model.Outpoint]*model.Partials, error) {
	out := make(map[model.Outpoint]*model.Partials)
	for _, op := range outpoints {
		raw, err := s.Get(store.CFOutpointPartials, store.OutpointKey(op))
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		p, err := store.DecodePartials(raw)
		if err != nil {
			return nil, err
		}
		out[op] = p
	}
	return out, nil
}
