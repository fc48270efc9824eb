// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package frontend

import "github.com/probeum/emitcore/pkg/symbol"

// UnitFlags are the per-sub metadata bits carried on a compilation unit
// (spec.md §3 sub record flags).
type UnitFlags uint16

const (
	FlagMethod UnitFlags = 1 << iota
	FlagInit
	FlagLoad
	FlagMain
	FlagAnon
	FlagPostcomp
	FlagImmediate
	FlagVtable
	FlagLex
	FlagMulti
	FlagYield
)

func (f UnitFlags) Has(bit UnitFlags) bool { return f&bit != 0 }

// MultiSigElement is one element of a multi-dispatch signature vector
// (spec.md §4.3 step 9): either a type name or a key constant chain.
type MultiSigElement struct {
	TypeName string
	KeyParts []*symbol.KeyPart
}

// LocalSymbol is one entry in a unit's local symbol table, as walked for
// lexical-info construction (spec.md §4.3 step 7).
type LocalSymbol struct {
	Sym     *symbol.Symbol
	Lexical bool // FlagLexical usage, i.e. carries the lexical-name usage flag
}

// Unit is one compilation unit (a "sub") handed to new_sub/emit*/end_sub
// (spec.md §6 front-end contract, §4.3).
type Unit struct {
	Name      string
	Namespace *symbol.Symbol // KindKey or KindString; nil for none
	OuterName string         // name of the lexically enclosing sub, if any

	Flags      UnitFlags
	VtableName string // quoted method name when FlagVtable is set
	HLLID      int

	MultiSig []MultiSigElement // nil unless FlagMulti

	Locals       []LocalSymbol
	Instructions []Instruction

	// RegisterUsage holds the per-class high-water register counts in
	// class order {int, num, string, pmc} (spec.md §3 sub record).
	RegisterUsage [4]int
}

// IsMulti reports whether the unit was declared multi, including the
// sentinel "declared multi with no types" case.
func (u *Unit) IsMulti() bool { return u.Flags.Has(FlagMulti) }
