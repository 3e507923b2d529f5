// Package netparams encodes the (blockchain, network) selection described
// in spec.md §9 ("deeply polymorphic coin/network configuration") as a
// single tagged Params value carrying magic bytes, base58/bech32 prefixes
// and the content-type validation policy, rather than a polymorphic
// hierarchy of coin types.
//
// Grounded on daglabs-btcd's dagconfig/params.go (per-network Params
// struct with pow limits, magic, checkpoints) and util/address.go (base58
// version bytes, bech32 HRPs), generalized across the Dogecoin/Bellscoin
// family per original_source's utils/address_encoder.rs.
package netparams

import (
	"github.com/nintondo/doge20indexer/internal/config"
)

// ContentTypePolicy selects how an inscription's declared content_type is
// validated before its payload is interpreted as BRC-20 JSON (spec.md §9
// open question: Dogecoin uses a substring-prefix rule, Bellscoin a strict
// MIME-type split).
type ContentTypePolicy int

const (
	// ContentTypeSubstringPrefix accepts any content_type with prefix
	// "text/plain" or "application/json" (Dogecoin's historical rule).
	ContentTypeSubstringPrefix ContentTypePolicy = iota
	// ContentTypeStrictMIME requires the content_type's MIME half (before
	// any ';' parameter) to equal exactly "text/plain" or
	// "application/json" (Bellscoin's rule).
	ContentTypeStrictMIME
)

// Params is the fully-resolved, immutable set of chain constants for one
// (blockchain, network) pair.
type Params struct {
	Blockchain config.Blockchain
	Network    config.Network

	Magic [4]byte

	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	Bech32HRP         string

	AllowFiveByteTick bool
	ContentTypePolicy ContentTypePolicy
}

// dogecoin magic bytes per network, matching the wire-format 4-byte
// preamble of each raw block file.
var dogecoinMagic = map[config.Network][4]byte{
	config.NetworkMainnet: {0xc0, 0xc0, 0xc0, 0xc0},
	config.NetworkTestnet: {0xfc, 0xc1, 0xb7, 0xdc},
	config.NetworkRegtest: {0xfa, 0xbf, 0xb5, 0xda},
	config.NetworkSignet:  {0xf9, 0xbe, 0xb4, 0xd9},
}

var bellscoinMagic = map[config.Network][4]byte{
	config.NetworkMainnet: {0xd9, 0xe6, 0xe7, 0xe5},
	config.NetworkTestnet: {0xfc, 0xd9, 0xb7, 0xdd},
	config.NetworkRegtest: {0xfa, 0xbf, 0xb5, 0xda},
	config.NetworkSignet:  {0x0a, 0x03, 0xcf, 0x40},
}

// For resolves the full Params for the (blockchain, network) named by cfg.
func For(cfg *config.Config) *Params {
	switch cfg.Blockchain {
	case config.BlockchainDogecoin:
		return dogecoinParams(cfg.Network)
	case config.BlockchainBellscoin:
		return bellscoinParams(cfg.Network)
	default:
		return dogecoinParams(cfg.Network)
	}
}

func dogecoinParams(n config.Network) *Params {
	p := &Params{
		Blockchain:        config.BlockchainDogecoin,
		Network:           n,
		Magic:             dogecoinMagic[n],
		AllowFiveByteTick: false,
		ContentTypePolicy: ContentTypeSubstringPrefix,
	}
	if n == config.NetworkMainnet {
		p.PubKeyHashAddrID = 0x1e
		p.ScriptHashAddrID = 0x16
		p.Bech32HRP = "doge"
	} else {
		p.PubKeyHashAddrID = 0x71
		p.ScriptHashAddrID = 0xc4
		p.Bech32HRP = "tdge"
	}
	return p
}

func bellscoinParams(n config.Network) *Params {
	p := &Params{
		Blockchain:        config.BlockchainBellscoin,
		Network:           n,
		Magic:             bellscoinMagic[n],
		AllowFiveByteTick: true,
		ContentTypePolicy: ContentTypeStrictMIME,
	}
	if n == config.NetworkMainnet {
		p.PubKeyHashAddrID = 0x19
		p.ScriptHashAddrID = 0x1e
		p.Bech32HRP = "bel"
	} else {
		p.PubKeyHashAddrID = 0x6f
		p.ScriptHashAddrID = 0xc4
		p.Bech32HRP = "tbel"
	}
	return p
}
