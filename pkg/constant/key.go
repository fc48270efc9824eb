// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package constant

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/probeum/emitcore/pkg/symbol"
)

// sliceBits returns the 3-bit slice annotation for the wire flag word.
func sliceBits(m symbol.SliceMode) (uint64, error) {
	switch m {
	case symbol.SliceNone:
		return 0, nil
	case symbol.SliceStart:
		return 1, nil
	case symbol.SliceEnd:
		return 2, nil
	case symbol.SliceStartEnd:
		return 3, nil
	case symbol.SliceToEnd:
		return 4, nil
	case symbol.SliceFromStart:
		return 5, nil
	default:
		return 0, ErrUnknownKeyPartType
	}
}

// argType returns the 2-bit argtype code for the wire flag word.
func argType(k symbol.KeyPartKind) (uint64, error) {
	switch k {
	case symbol.KeyPartIntRegister:
		return 0, nil
	case symbol.KeyPartStringRegister:
		return 1, nil
	case symbol.KeyPartIntConst:
		return 2, nil
	case symbol.KeyPartStringConst:
		return 3, nil
	default:
		return 0, ErrUnknownKeyPartType
	}
}

// mapRegister applies the "mapped register" encoding: a negative color
// (register.Color() < 0) is wire-encoded as -1 - color (spec.md §4.2).
func mapRegister(color int) int64 {
	if color < 0 {
		return int64(-1 - color)
	}
	return int64(color)
}

// Encode packs a key-part chain into its wire form:
//
//	[ n ] ( [ flag_i, payload_i ] )_{i=0..n-1}
//
// as a flat slice of machine words (uint64 here; endianness is explicitly
// not normalised per spec.md §4.2 — producer and consumer share a host).
func Encode(chain []*symbol.KeyPart) ([]uint64, error) {
	if len(chain) > maxKeyParts {
		return nil, ErrKeyTooComplex
	}
	out := make([]uint64, 0, 1+2*len(chain))
	out = append(out, uint64(len(chain)))
	for _, part := range chain {
		at, err := argType(part.Kind)
		if err != nil {
			return nil, err
		}
		sb, err := sliceBits(part.Slice)
		if err != nil {
			return nil, err
		}
		flag := (at << 3) | sb

		var payload int64
		switch part.Kind {
		case symbol.KeyPartIntRegister, symbol.KeyPartStringRegister:
			if part.Sym == nil {
				return nil, fmt.Errorf("constant: register key part missing symbol: %w", ErrKeySetUnknown)
			}
			reg, ok := part.Sym.Register()
			if !ok {
				return nil, fmt.Errorf("constant: register key part has no color: %w", ErrKeySetUnknown)
			}
			payload = mapRegister(reg)
		case symbol.KeyPartIntConst:
			payload = part.IntValue
		case symbol.KeyPartStringConst:
			if part.Sym == nil {
				return nil, fmt.Errorf("constant: string-const key part missing symbol: %w", ErrUnknownKeyPartType)
			}
			idx, ok := part.Sym.ConstIndex()
			if !ok {
				return nil, fmt.Errorf("constant: string-const key part not interned: %w", ErrUnknownKeyPartType)
			}
			payload = int64(idx)
		}
		out = append(out, flag, uint64(payload))
	}
	return out, nil
}

// Decode is the inverse of Encode, used by the round-trip property tests
// (spec.md §8). It recovers argtype/slice-bits/payload but cannot recover
// the original Symbol pointers, so callers compare against payload only.
type DecodedPart struct {
	ArgType int
	Slice   symbol.SliceMode
	Payload int64
}

func Decode(words []uint64) ([]DecodedPart, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("constant: empty key encoding")
	}
	n := int(words[0])
	if len(words) != 1+2*n {
		return nil, fmt.Errorf("constant: malformed key encoding: want %d words, have %d", 1+2*n, len(words))
	}
	out := make([]DecodedPart, 0, n)
	for i := 0; i < n; i++ {
		flag := words[1+2*i]
		payload := int64(words[2+2*i])
		at := int((flag >> 3) & 0x3)
		sb := flag & 0x7
		var mode symbol.SliceMode
		switch sb {
		case 0:
			mode = symbol.SliceNone
		case 1:
			mode = symbol.SliceStart
		case 2:
			mode = symbol.SliceEnd
		case 3:
			mode = symbol.SliceStartEnd
		case 4:
			mode = symbol.SliceToEnd
		case 5:
			mode = symbol.SliceFromStart
		default:
			return nil, ErrUnknownKeyPartType
		}
		out = append(out, DecodedPart{ArgType: at, Slice: mode, Payload: payload})
	}
	return out, nil
}

// CanonicalString builds the interning key for a chain: a byte string of
// concatenated per-part tokens "<set-char><color-or-value>" where
// set-char is I/S for registers or Ic/Sc for constants. Two keys are
// equal for interning purposes iff their canonical strings are equal
// (spec.md §4.2, §8 "Key interning").
func CanonicalString(chain []*symbol.KeyPart) (string, error) {
	var b strings.Builder
	for _, part := range chain {
		switch part.Kind {
		case symbol.KeyPartIntRegister:
			reg, ok := part.Sym.Register()
			if !ok {
				return "", ErrKeySetUnknown
			}
			fmt.Fprintf(&b, "I%d", mapRegister(reg))
		case symbol.KeyPartStringRegister:
			reg, ok := part.Sym.Register()
			if !ok {
				return "", ErrKeySetUnknown
			}
			fmt.Fprintf(&b, "S%d", mapRegister(reg))
		case symbol.KeyPartIntConst:
			fmt.Fprintf(&b, "Ic%d", part.IntValue)
		case symbol.KeyPartStringConst:
			idx, ok := part.Sym.ConstIndex()
			if !ok {
				return "", ErrUnknownKeyPartType
			}
			fmt.Fprintf(&b, "Sc%d", idx)
		default:
			return "", ErrUnknownKeyPartType
		}
		// Slice annotation is part of identity too: "P0[3]" and
		// "P0[3:]" must intern separately.
		fmt.Fprintf(&b, "/%d", part.Slice)
	}
	return b.String(), nil
}

// digest hashes a canonical string down to a fixed-size key for the
// interning map, so long key chains don't carry their full text as a map
// key (SPEC_FULL.md §3 domain stack).
func digest(canonical string) [32]byte {
	return blake2b.Sum256([]byte(canonical))
}

// digestHex is a debug-friendly hex rendering of a digest.
func digestHex(d [32]byte) string {
	var b strings.Builder
	for _, by := range d {
		fmt.Fprintf(&b, "%02x", by)
	}
	return b.String()
}

// wordsToBytes serialises a key constant's wire form to bytes, the shape
// pkg/artifact writes into a KindKey constant's packfile entry.
func wordsToBytes(words []uint64) []byte {
	out := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out
}

// KeyDigestHex renders a key constant's wire words as the hex digest of
// their byte form, a short stand-in identifier that the CLI's `emit`
// subcommand prints for each key constant instead of every word.
func KeyDigestHex(words []uint64) string {
	return digestHex(digest(string(wordsToBytes(words))))
}

// KeyWireBytes exposes a key constant's wire words in the byte layout
// pkg/artifact serialises into a packfile's constant section.
func KeyWireBytes(words []uint64) []byte {
	return wordsToBytes(words)
}
