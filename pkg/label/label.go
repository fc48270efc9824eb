// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package label assigns label offsets during pre-scan and computes
// branch displacements relative to the branch site (spec.md §4.4).
package label

import (
	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/symbol"
)

// reservedUnset is the displacement value that can never legitimately
// occur; seeing it after encoding means the label offset was never set
// (spec.md §7 NoLabelOffsetFound).
const reservedUnset = 1

// PreScan walks a unit's instruction stream once, computing the total
// opcode size and assigning each label's offset into its Symbol's color
// (spec.md §4.4 "Pre-scan"). codeStart is the unit's starting offset in
// the segment's code vector.
//
// PreScan does not itself register fixups; the emitter does that while
// walking the same instructions during actual emission, once operand
// slots are final.
func PreScan(instructions []frontend.Instruction, codeStart int) (codeSize int, err error) {
	offset := codeStart
	for i := range instructions {
		inst := &instructions[i]
		if inst.IsLabel {
			if err := inst.LabelSym.SetLabelOffset(offset); err != nil {
				return 0, err
			}
			continue
		}
		offset += inst.Opsize
	}
	return offset - codeStart, nil
}

// Displacement computes the signed branch displacement for a branch
// instruction at siteOffset targeting target, per spec.md §4.4: "emit
// target.color - current-offset as a signed displacement. A displacement
// of exactly 1 is reserved as unset and is an error."
func Displacement(target *symbol.Symbol, siteOffset int) (int, error) {
	targetOffset, ok := target.LabelOffset()
	if !ok {
		return 0, ErrUnresolvedLabel
	}
	d := targetOffset - siteOffset
	if d == reservedUnset {
		return 0, ErrNoLabelOffsetFound
	}
	return d, nil
}
