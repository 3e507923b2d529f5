// Package brc20 parses a just-reconstructed inscription's JSON payload
// into one of the three BRC-20 protocol operations, applying the exact
// content-type and decimal-field validation original_source's token
// parser enforces before a payload is ever handed to the token engine.
//
// Grounded on original_source's tokens/parser.rs (TokenCache::try_parse):
// the content-type check branches on the coin family exactly as there,
// the `p` field must read "brc-20", and a malformed decimal field or a
// zero amt/max rejects the whole payload rather than partially applying
// it.
package brc20

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/nintondo/doge20indexer/internal/fixed128"
	"github.com/nintondo/doge20indexer/internal/model"
	"github.com/nintondo/doge20indexer/internal/netparams"
)

// maxDec mirrors token.maxDec; duplicated here since this package sits
// below internal/token in the import graph (protocol decoding has no
// business depending on the runtime engine).
const maxDec = 18

// OpKind tags which of the three BRC-20 operations a payload decodes to.
type OpKind uint8

const (
	OpDeploy OpKind = iota
	OpMint
	OpTransfer
)

// Op is one decoded, protocol-validated BRC-20 payload.
type Op struct {
	Kind OpKind
	Tick model.Tick
	Max  fixed128.Fixed128
	Lim  fixed128.Fixed128
	Dec  uint8
	Amt  fixed128.Fixed128
}

type wireOp struct {
	P    string `json:"p"`
	Op   string `json:"op"`
	Tick string `json:"tick"`
	Max  string `json:"max"`
	Lim  string `json:"lim"`
	Dec  string `json:"dec"`
	Amt  string `json:"amt"`
}

// acceptsContentType applies the coin-family-specific content-type
// policy (spec.md §9) before a payload is even attempted as JSON.
func acceptsContentType(policy netparams.ContentTypePolicy, contentType string) bool {
	switch policy {
	case netparams.ContentTypeStrictMIME:
		mime := strings.SplitN(contentType, ";", 2)[0]
		return mime == "text/plain" || mime == "application/json"
	default: // ContentTypeSubstringPrefix
		return strings.HasPrefix(contentType, "text/plain") || strings.HasPrefix(contentType, "application/json")
	}
}

// Parse validates contentType against policy and decodes body as one of
// the three BRC-20 operations, enforcing tick length and decimal-field
// rules. Returns ok=false for any malformed or out-of-protocol payload —
// callers must silently drop these (spec.md §4.5: never treat a
// protocol-reject as an indexing error).
func Parse(policy netparams.ContentTypePolicy, allowFiveByteTick bool, contentType string, body []byte) (Op, bool) {
	if contentType == "" || !acceptsContentType(policy, contentType) {
		return Op{}, false
	}

	var w wireOp
	if err := json.Unmarshal(body, &w); err != nil {
		return Op{}, false
	}
	if w.P != "brc-20" {
		return Op{}, false
	}

	tick, err := model.ParseTick([]byte(w.Tick), allowFiveByteTick)
	if err != nil {
		return Op{}, false
	}

	switch w.Op {
	case "deploy":
		max, err := fixed128.Parse(w.Max)
		if err != nil || max.IsZero() {
			return Op{}, false
		}
		lim := max
		if w.Lim != "" {
			lim, err = fixed128.Parse(w.Lim)
			if err != nil {
				return Op{}, false
			}
			if lim.IsZero() {
				lim = max
			}
		}
		dec := uint8(maxDec)
		if w.Dec != "" {
			d, err := parseDec(w.Dec)
			if err != nil {
				return Op{}, false
			}
			dec = d
		}
		if dec > maxDec {
			return Op{}, false
		}
		return Op{Kind: OpDeploy, Tick: tick, Max: max, Lim: lim, Dec: dec}, true

	case "mint":
		amt, err := fixed128.Parse(w.Amt)
		if err != nil || amt.IsZero() {
			return Op{}, false
		}
		return Op{Kind: OpMint, Tick: tick, Amt: amt}, true

	case "transfer":
		amt, err := fixed128.Parse(w.Amt)
		if err != nil || amt.IsZero() {
			return Op{}, false
		}
		return Op{Kind: OpTransfer, Tick: tick, Amt: amt}, true

	default:
		return Op{}, false
	}
}

func parseDec(s string) (uint8, error) {
	v, err := fixed128.Parse(s)
	if err != nil {
		return 0, err
	}
	for d := uint64(0); d <= maxDec; d++ {
		if v.Sub(fixed128.FromUint64(d)).IsZero() {
			return uint8(d), nil
		}
	}
	return 0, errors.New("brc20: dec must be an integer in [0, 18]")
}
