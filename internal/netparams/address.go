package netparams

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // matches teacher's util/address.go dependency
)

const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqualVerify = 0x88
	opCheckSig    = 0xac
	opEqual       = 0x87
)

// base58Alphabet is bitcoin's base58 alphabet, identical across the coin
// family (grounded on util/base58).
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Encode renders a human-readable address for the given script_pubkey under
// p, if the script matches a recognized pay-to-pubkey-hash or
// pay-to-script-hash template. Returns ok=false for anything else (bare
// multisig, OP_RETURN, non-standard scripts) — those addresses are never
// persisted to fullhash_to_address.
func (p *Params) Encode(scriptPubKey []byte) (addr string, ok bool) {
	if hash, isP2PKH := matchP2PKH(scriptPubKey); isP2PKH {
		return p.encodeBase58Check(p.PubKeyHashAddrID, hash), true
	}
	if hash, isP2SH := matchP2SH(scriptPubKey); isP2SH {
		return p.encodeBase58Check(p.ScriptHashAddrID, hash), true
	}
	return "", false
}

func matchP2PKH(script []byte) ([]byte, bool) {
	if len(script) == 25 && script[0] == opDup && script[1] == opHash160 &&
		script[2] == 0x14 && script[23] == opEqualVerify && script[24] == opCheckSig {
		return script[3:23], true
	}
	return nil, false
}

func matchP2SH(script []byte) ([]byte, bool) {
	if len(script) == 23 && script[0] == opHash160 && script[1] == 0x14 && script[22] == opEqual {
		return script[2:22], true
	}
	return nil, false
}

func (p *Params) encodeBase58Check(version byte, hash160 []byte) string {
	payload := make([]byte, 0, 1+len(hash160)+4)
	payload = append(payload, version)
	payload = append(payload, hash160...)
	cksum := checksum(payload)
	payload = append(payload, cksum[:]...)
	return base58Encode(payload)
}

func checksum(b []byte) [4]byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

// Hash160 computes RIPEMD160(SHA256(b)), the standard pubkey/script hash
// used by the base58check address forms (distinct from model.ScriptHashOf,
// which hashes the whole script_pubkey for the indexer's own keying).
func Hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil)
}

func base58Encode(b []byte) string {
	zero := base58Alphabet[0]

	var bigRadix = 58
	var result []byte

	input := make([]byte, len(b))
	copy(input, b)

	for len(input) > 0 && input[0] == 0 {
		result = append(result, zero)
		input = input[1:]
	}

	num := make([]byte, len(input))
	copy(num, input)

	var out []byte
	for len(num) > 0 {
		var remainder int
		var startedDividing bool
		quotient := make([]byte, 0, len(num))
		for _, d := range num {
			acc := remainder*256 + int(d)
			q := acc / bigRadix
			remainder = acc % bigRadix
			if q != 0 || startedDividing {
				quotient = append(quotient, byte(q))
				startedDividing = true
			}
		}
		out = append(out, base58Alphabet[remainder])
		num = quotient
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(result) + string(out)
}
