// Package config resolves the indexer's environment-derived settings once
// at process start into an immutable Config struct.
//
// Grounded on Klingon-tech-klingnet's config.Config (plain struct, one
// Load/New entrypoint, no external flag-parsing dependency) generalized to
// spec.md §6's environment surface. This retires the design note's "global
// mutable state" concern: URL, USER, PASS, START_HEIGHT, JUBILEE_HEIGHT,
// REORG_MAX, DEFAULT_HASH and OP_RETURN_HASH all become fields (or
// derived constants) computed once here instead of ambient package-level
// mutable variables.
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/nintondo/doge20indexer/internal/errs"
)

// Blockchain selects the coin family. Affects content-type validation
// policy (spec.md §9) and the address encoder.
type Blockchain string

const (
	BlockchainDogecoin  Blockchain = "dogecoin"
	BlockchainBellscoin Blockchain = "bellscoin"
)

// Network selects the chain parameters (magic bytes, address prefixes).
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkSignet  Network = "signet"
	NetworkRegtest Network = "regtest"
)

// DefaultReorgMax is REORG_MAX's default, per spec.md §6 and §4.8.
const DefaultReorgMax = 30

// DefaultServerBindURL is SERVER_BIND_URL's default.
const DefaultServerBindURL = "0.0.0.0:8000"

// DefaultDBPath is DB_PATH's default.
const DefaultDBPath = "rocksdb"

// Config is the fully-resolved, immutable process configuration.
type Config struct {
	RPCURL  string
	RPCUser string
	RPCPass string

	BlkDir   string // optional: enables the block-file reader
	IndexDir string // block-index directory, required when BlkDir is set

	Blockchain Blockchain
	Network    Network

	ServerBindURL string
	DBPath        string

	StartHeight    uint32
	JubileeHeight  uint32
	ReorgMax       int

	LogLevel string
	LogJSON  bool
	LogFile  string

	// DefaultHash is SHA256("null"), the proof-of-history seed at height -1.
	DefaultHash [32]byte
	// OpReturnHash is SHA256d("BURNED"), the distinguished burn script-hash.
	OpReturnHash [32]byte
}

// Load reads and validates the recognized environment variables.
func Load() (*Config, error) {
	c := &Config{
		RPCURL:        os.Getenv("RPC_URL"),
		RPCUser:       os.Getenv("RPC_USER"),
		RPCPass:       os.Getenv("RPC_PASS"),
		BlkDir:        os.Getenv("BLK_DIR"),
		IndexDir:      os.Getenv("INDEX_DIR"),
		Blockchain:    Blockchain(os.Getenv("BLOCKCHAIN")),
		Network:       Network(os.Getenv("NETWORK")),
		ServerBindURL: getenvDefault("SERVER_BIND_URL", DefaultServerBindURL),
		DBPath:        getenvDefault("DB_PATH", DefaultDBPath),
		ReorgMax:      DefaultReorgMax,
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),
		LogJSON:       os.Getenv("LOG_JSON") == "true",
		LogFile:       os.Getenv("LOG_FILE"),
	}

	if c.RPCURL == "" || c.RPCUser == "" || c.RPCPass == "" {
		return nil, errs.New(errs.KindFatalConfig, "RPC_URL, RPC_USER and RPC_PASS are required")
	}

	switch c.Blockchain {
	case BlockchainDogecoin, BlockchainBellscoin:
	default:
		return nil, errs.New(errs.KindFatalConfig, fmt.Sprintf("unsupported BLOCKCHAIN %q", c.Blockchain))
	}

	switch c.Network {
	case NetworkMainnet, NetworkTestnet, NetworkSignet, NetworkRegtest:
	default:
		return nil, errs.New(errs.KindFatalConfig, fmt.Sprintf("unsupported NETWORK %q", c.Network))
	}

	if c.BlkDir != "" && c.IndexDir == "" {
		return nil, errs.New(errs.KindFatalConfig, "INDEX_DIR is required when BLK_DIR is set")
	}

	if v := os.Getenv("START_HEIGHT"); v != "" {
		h, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, errs.Wrap(errs.KindFatalConfig, err, "invalid START_HEIGHT")
		}
		c.StartHeight = uint32(h)
	}

	if v := os.Getenv("JUBILEE_HEIGHT"); v != "" {
		h, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, errs.Wrap(errs.KindFatalConfig, err, "invalid JUBILEE_HEIGHT")
		}
		c.JubileeHeight = uint32(h)
	}

	if v := os.Getenv("REORG_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errs.Wrap(errs.KindFatalConfig, errors.Errorf("invalid REORG_MAX %q", v), "parsing REORG_MAX")
		}
		c.ReorgMax = n
	}

	c.DefaultHash = sha256.Sum256([]byte("null"))
	c.OpReturnHash = doubleSHA256([]byte("BURNED"))

	return c, nil
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Redacted returns a fmt.Stringer suitable for logging the config without
// leaking RPC credentials, grounded on original_source's Config::redacted.
func (c *Config) Redacted() fmt.Stringer {
	return redacted{c}
}

type redacted struct{ c *Config }

func (r redacted) String() string {
	return fmt.Sprintf(
		"Config{rpc_url:%s rpc_user:%s rpc_pass:%s blockchain:%s network:%s blk_dir:%q db_path:%q start_height:%d jubilee_height:%d reorg_max:%d}",
		redactStr(r.c.RPCURL), redactStr(r.c.RPCUser), redactStr(r.c.RPCPass),
		r.c.Blockchain, r.c.Network, r.c.BlkDir, r.c.DBPath, r.c.StartHeight, r.c.JubileeHeight, r.c.ReorgMax,
	)
}

func redactStr(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
