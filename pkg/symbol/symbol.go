// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.
//
// Emitcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package symbol models the front-end's symbol descriptor as observed by
// the emitter (the "SymRef" of the emission core).
//
// The source compiler this core is ported from overloads a single field,
// "color", to mean a register number, a constant-pool index, or a code
// offset depending on the symbol's kind, using -1 as an unset sentinel.
// Here each meaning is its own optional field on the struct, populated by
// exactly one of SetRegister / SetConstIndex / SetLabelOffset depending on
// Kind — an absent value is a nil pointer, never a sentinel integer.
package symbol

import "errors"

// Kind enumerates what a Symbol refers to.
type Kind int

const (
	KindInteger Kind = iota
	KindNumber
	KindString
	KindPMC
	KindKey
	KindLabel
	KindSubLabel
	KindNamespace
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindPMC:
		return "pmc"
	case KindKey:
		return "key"
	case KindLabel:
		return "label"
	case KindSubLabel:
		return "sub-label"
	case KindNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// RegisterClass is the register file a register-backed symbol belongs to,
// or "constant" for symbols whose color is a pool index.
type RegisterClass int

const (
	ClassInt RegisterClass = iota
	ClassNum
	ClassString
	ClassPMC
	ClassConstant
)

// Encoding marks the charset of a string-kind symbol.
type Encoding int

const (
	EncodingASCII Encoding = iota
	EncodingUnicode
)

// UsageFlags are the per-symbol usage bits the emitter consults.
type UsageFlags uint8

const (
	FlagFixupNeeded UsageFlags = 1 << iota
	FlagLexical
	FlagConstantPointer
)

func (f UsageFlags) Has(bit UsageFlags) bool { return f&bit != 0 }

// KeyPartKind distinguishes the four argtypes a key chain element can take.
type KeyPartKind int

const (
	KeyPartIntRegister KeyPartKind = iota
	KeyPartStringRegister
	KeyPartIntConst
	KeyPartStringConst
)

// SliceMode is the optional slice annotation on a key part.
type SliceMode int

const (
	SliceNone SliceMode = iota
	SliceStart
	SliceEnd
	SliceStartEnd
	SliceToEnd   // ..end
	SliceFromStart // start..
)

// KeyPart is one element of a composite key chain (spec §4.2). For
// KeyPartIntConst the value travels inline as IntValue (the wire format
// embeds the literal, not a pool index); every other kind carries Sym.
type KeyPart struct {
	Kind     KeyPartKind
	Slice    SliceMode
	Sym      *Symbol // the register or string-constant symbol, if any
	IntValue int64   // literal value, when Kind == KeyPartIntConst
}

var (
	// ErrColorAlreadySet is returned when a setter is called twice on the
	// same Symbol; the color invariant requires "set exactly once".
	ErrColorAlreadySet = errors.New("symbol: color already set")
	// ErrWrongKind is returned when a color accessor is used against a
	// Symbol whose Kind cannot carry that variant.
	ErrWrongKind = errors.New("symbol: wrong kind for this accessor")
)

// Symbol is the emitter's read-mostly view of a front-end symbol. The
// emitter only ever writes the color fields (via the setters below); every
// other field belongs to the front-end's symbol tables.
type Symbol struct {
	Name     string
	Kind     Kind
	RegClass RegisterClass
	Encoding Encoding
	Flags    UsageFlags

	// KeyParts chains key-part symbols together when Kind == KindKey.
	KeyParts []*KeyPart
	// LexAlias links to the next symbol in a lexical-name alias chain.
	LexAlias *Symbol

	register    *int
	constIndex  *int
	labelOffset *int
}

// New creates a Symbol with no color set.
func New(name string, kind Kind, class RegisterClass) *Symbol {
	return &Symbol{Name: name, Kind: kind, RegClass: class}
}

// SetRegister assigns the register-number variant of color. It is an error
// to call this more than once on the same Symbol.
func (s *Symbol) SetRegister(n int) error {
	if s.register != nil {
		return ErrColorAlreadySet
	}
	s.register = &n
	return nil
}

// Register returns the register number and whether it has been set.
func (s *Symbol) Register() (int, bool) {
	if s.register == nil {
		return 0, false
	}
	return *s.register, true
}

// SetConstIndex assigns the constant-pool-index variant of color.
func (s *Symbol) SetConstIndex(idx int) error {
	if s.constIndex != nil {
		return ErrColorAlreadySet
	}
	s.constIndex = &idx
	return nil
}

// ConstIndex returns the constant-pool index and whether it has been set.
func (s *Symbol) ConstIndex() (int, bool) {
	if s.constIndex == nil {
		return 0, false
	}
	return *s.constIndex, true
}

// SetLabelOffset assigns the code-offset variant of color (label symbols).
func (s *Symbol) SetLabelOffset(offset int) error {
	if s.labelOffset != nil {
		return ErrColorAlreadySet
	}
	s.labelOffset = &offset
	return nil
}

// LabelOffset returns the recorded code offset and whether it has been set.
func (s *Symbol) LabelOffset() (int, bool) {
	if s.labelOffset == nil {
		return 0, false
	}
	return *s.labelOffset, true
}

// IsColored reports whether any color variant has been set, regardless of
// which one.
func (s *Symbol) IsColored() bool {
	return s.register != nil || s.constIndex != nil || s.labelOffset != nil
}
