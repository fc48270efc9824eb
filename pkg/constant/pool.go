// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.
//
// Emitcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package constant implements the append-only constant table (spec.md
// §4.1 ConstantPool) and the composite-key wire encoder (§4.2 KeyEncoder).
package constant

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/bloomfilter/v2"
	"github.com/holiman/uint256"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/probeum/emitcore/pkg/symbol"
	"github.com/probeum/emitcore/pkg/vmhost"
)

// Kind tags a Constant's variant.
type Kind int

const (
	KindInteger Kind = iota
	KindNumber
	KindString
	KindKey
	KindPMC
	KindSub
)

// Constant is the tagged entry stored in the pool (spec.md §3).
type Constant struct {
	Kind     Kind
	Integer  int64
	Number   float64
	String   []byte
	Unicode  bool
	KeyWords []uint64
	PMC      vmhost.PMCHandle
}

// Pool is a per-segment append-only constant table. Identity is the
// insertion index; indices are stable for the pool's lifetime and are
// never removed or rewritten (spec.md §4.1 guarantees).
type Pool struct {
	host    vmhost.Host
	entries []Constant

	// keyFilter is a probabilistic pre-check in front of keyIndex: a miss
	// here guarantees the canonical string has never been seen, letting
	// the common "new key" path skip the exact map lookup.
	keyFilter *bloomfilter.Filter
	keyIndex  map[[32]byte]int // digest(canonical string) -> pool index
}

// New creates an empty Pool backed by host for number parsing and PMC
// construction. expectedKeys sizes the bloom filter (spec.md §4.1 "fresh
// segment starts a fresh interning map").
func New(host vmhost.Host, expectedKeys uint64) (*Pool, error) {
	if expectedKeys == 0 {
		expectedKeys = 256
	}
	filter, err := bloomfilter.NewOptimal(expectedKeys, 0.01)
	if err != nil {
		return nil, fmt.Errorf("constant: create key bloom filter: %w", err)
	}
	return &Pool{
		host:      host,
		keyFilter: filter,
		keyIndex:  make(map[[32]byte]int),
	}, nil
}

// Len returns the number of interned constants.
func (p *Pool) Len() int { return len(p.entries) }

// At returns the constant stored at idx.
func (p *Pool) At(idx int) (Constant, bool) {
	if idx < 0 || idx >= len(p.entries) {
		return Constant{}, false
	}
	return p.entries[idx], true
}

func (p *Pool) append(c Constant) int {
	p.entries = append(p.entries, c)
	return len(p.entries) - 1
}

// InternInteger parses an integer literal accepting decimal, 0x/0X hex,
// 0o/0O octal, and 0b/0B binary, returning its pool index. Overflow of
// the platform int64 range fails with ErrConstOverflow (spec.md §4.1,
// §7 ConstOverflow).
//
// Parsing goes through math/big (the only stdlib parser that accepts all
// four base prefixes uniformly via base 0), then through a uint256.Int as
// a fixed-width intermediate so the final range check is one comparison
// regardless of which base produced the value (SPEC_FULL.md §3).
func (p *Pool) InternInteger(text string) (int, error) {
	neg := false
	body := text
	if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	}
	big0, ok := new(big.Int).SetString(body, 0)
	if !ok {
		return 0, fmt.Errorf("constant: invalid integer literal %q: %w", text, ErrConstOverflow)
	}
	u, overflow := uint256.FromBig(big0)
	if overflow {
		return 0, ErrConstOverflow
	}
	if !u.IsUint64() {
		return 0, ErrConstOverflow
	}
	v := u.Uint64()
	if neg {
		if v > 1<<63 {
			return 0, ErrConstOverflow
		}
		return p.append(Constant{Kind: KindInteger, Integer: -int64(v)}), nil
	}
	if v > uint64(1<<63-1) {
		return 0, ErrConstOverflow
	}
	return p.append(Constant{Kind: KindInteger, Integer: int64(v)}), nil
}

// InternNumber converts text through the host's string->number path to
// preserve exact runtime conversion semantics (spec.md §4.1).
func (p *Pool) InternNumber(text string) (int, error) {
	v, err := p.host.ParseNumber(text)
	if err != nil {
		return 0, fmt.Errorf("constant: invalid number literal %q: %w", text, err)
	}
	return p.append(Constant{Kind: KindNumber, Number: v}), nil
}

// InternString unescapes and interns a string literal. A leading `"`
// unescapes as a C-style double-quoted literal; a leading `'` is taken
// raw; a bare identifier is ASCII literal text. If encoded is true, the
// charset prefix `name:"text"` is split at the first `"` whose preceding
// character is `:`, and name selects the decoding charmap (spec.md §4.1).
func (p *Pool) InternString(raw string, encoded bool) (int, error) {
	charset := ""
	body := raw
	if encoded {
		if idx := strings.Index(raw, `:"`); idx >= 0 {
			charset = raw[:idx]
			body = raw[idx+1:]
		}
	}

	var content []byte
	var err error
	switch {
	case strings.HasPrefix(body, `"`):
		content, err = p.host.Unescape(body)
	case strings.HasPrefix(body, `'`):
		content = []byte(strings.Trim(body, `'`))
	default:
		content = []byte(body)
	}
	if err != nil {
		return 0, fmt.Errorf("constant: unescape string literal %q: %w", raw, err)
	}

	unicodeFlag := false
	if charset != "" {
		content, unicodeFlag, err = transcode(charset, content)
		if err != nil {
			return 0, fmt.Errorf("constant: transcode charset %q: %w", charset, err)
		}
	}

	return p.append(Constant{Kind: KindString, String: content, Unicode: unicodeFlag}), nil
}

// transcode decodes content from the named charset into the pool's
// internal UTF-8/unicode representation, reporting whether the result
// should carry the "unicode" encoding tag.
func transcode(charsetName string, content []byte) ([]byte, bool, error) {
	switch strings.ToLower(charsetName) {
	case "ascii", "": // "name:" with empty name behaves like the fast path
		return content, false, nil
	case "utf8", "utf-8":
		return content, true, nil
	case "utf16", "utf-16":
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(content)
		return out, true, err
	case "iso-8859-1", "latin1":
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
		return out, true, err
	default:
		return nil, false, fmt.Errorf("unsupported charset %q", charsetName)
	}
}

// InternKey encodes chain via KeyEncoder and interns the result, reusing
// an existing entry when the canonical string has already been seen in
// this segment (spec.md §4.1, invariant "inserted at most once").
func (p *Pool) InternKey(chain []*symbol.KeyPart) (int, error) {
	canonical, err := CanonicalString(chain)
	if err != nil {
		return 0, err
	}
	d := digest(canonical)

	if p.keyFilter.Contains(hashDigest(d)) {
		if idx, ok := p.keyIndex[d]; ok {
			return idx, nil
		}
		// Bloom false positive: fall through and insert normally.
	}

	words, err := Encode(chain)
	if err != nil {
		return 0, err
	}
	idx := p.append(Constant{Kind: KindKey, KeyWords: words})
	p.keyFilter.Add(hashDigest(d))
	p.keyIndex[d] = idx
	return idx, nil
}

// hashDigest folds a 32-byte blake2b digest into the uint64 the bloom
// filter operates on.
func hashDigest(d [32]byte) uint64 {
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(d[i])
	}
	return h
}

// InternPMC appends an opaque PMC reference with no deduplication
// (spec.md §4.1).
func (p *Pool) InternPMC(h vmhost.PMCHandle) int {
	return p.append(Constant{Kind: KindPMC, PMC: h})
}

// InternSub appends a sub PMC; sub entries are always fresh (spec.md
// §4.1).
func (p *Pool) InternSub(h vmhost.PMCHandle) int {
	return p.append(Constant{Kind: KindSub, PMC: h})
}

// ReserveSub appends an empty sub slot (spec.md §4.3 step 2, "reserve a
// constant-pool slot; remember its index as the sub's pmc-const") to be
// filled in later by FillSub, once the sub PMC itself has been built.
func (p *Pool) ReserveSub() int {
	return p.append(Constant{Kind: KindSub})
}

// FillSub stores h into a slot previously returned by ReserveSub (spec.md
// §4.3 step 11). It is an error to fill a slot more than once, or a slot
// that was not reserved as a sub.
func (p *Pool) FillSub(idx int, h vmhost.PMCHandle) error {
	if idx < 0 || idx >= len(p.entries) {
		return fmt.Errorf("constant: fill sub: index %d out of range", idx)
	}
	e := &p.entries[idx]
	if e.Kind != KindSub {
		return fmt.Errorf("constant: fill sub: index %d is not a sub slot", idx)
	}
	if e.PMC != nil {
		return fmt.Errorf("constant: fill sub: index %d already filled", idx)
	}
	e.PMC = h
	return nil
}
