package model

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
)

// MaxTickLen is the widest token identifier this indexer accepts. Most
// coins in the family permit only 4-byte ticks; some (per spec.md §3)
// permit 5.
const MaxTickLen = 5
const MinTickLen = 4

// Tick is the original-case token identifier as it appeared on-chain,
// 4 (or 5) printable bytes.
type Tick [MaxTickLen]byte

// TickLen tracks how many of Tick's bytes are significant, since not every
// coin variant permits the 5-byte form.
type TickLen = uint8

// ParseTick validates and builds a Tick from raw bytes per spec.md §4.5.5:
// T must be 4 (or 5 on permitting coins) printable bytes.
func ParseTick(b []byte, allowFive bool) (Tick, error) {
	var t Tick
	n := len(b)
	if n != MinTickLen && !(allowFive && n == MaxTickLen) {
		return t, errors.Errorf("tick: invalid length %d", n)
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return t, errors.New("tick: non-printable byte")
		}
	}
	copy(t[:], b)
	for i := n; i < MaxTickLen; i++ {
		t[i] = 0
	}
	return t, nil
}

// Len returns the number of significant bytes (trailing NUL padding
// stripped).
func (t Tick) Len() int {
	for i := MaxTickLen - 1; i >= MinTickLen; i-- {
		if t[i] != 0 {
			return i + 1
		}
	}
	return MinTickLen
}

// Bytes returns the significant bytes of the tick.
func (t Tick) Bytes() []byte {
	return t[:t.Len()]
}

func (t Tick) String() string {
	return string(t.Bytes())
}

// Lower returns the canonical lowercase key form.
func (t Tick) Lower() LowerCaseTick {
	var lc LowerCaseTick
	b := t.Bytes()
	lower := bytes.ToLower(b)
	copy(lc[:], lower)
	return lc
}

// LowerCaseTick is the ASCII-lowercased canonical store key for a tick.
type LowerCaseTick [MaxTickLen]byte

func (lc LowerCaseTick) Len() int {
	for i := MaxTickLen - 1; i >= MinTickLen; i-- {
		if lc[i] != 0 {
			return i + 1
		}
	}
	return MinTickLen
}

func (lc LowerCaseTick) Bytes() []byte { return lc[:lc.Len()] }

func (lc LowerCaseTick) String() string { return strings.ToLower(string(lc.Bytes())) }
