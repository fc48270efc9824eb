// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package frontend defines the shapes the emitter consumes from the
// compiler front-end: one Instruction per stream element, carrying its
// opcode, declared operand types, and a vector of symbol references.
package frontend

import "github.com/probeum/emitcore/pkg/symbol"

// OperandKind identifies how an operand is encoded at emission time.
type OperandKind int

const (
	// OperandRegister emits the operand's color verbatim.
	OperandRegister OperandKind = iota
	// OperandIntConst emits the symbol's constant-pool index (IC).
	OperandIntConst
	// OperandStringConst emits the symbol's constant-pool index (SC).
	OperandStringConst
	// OperandNumConst emits the symbol's constant-pool index (NC).
	OperandNumConst
	// OperandPMCConst emits the symbol's constant-pool index (PC).
	OperandPMCConst
	// OperandKeyIntConst emits a key-constant index (KIC).
	OperandKeyIntConst
	// OperandKey interns (or reuses) a key constant (KC).
	OperandKey
	// OperandLabel emits a signed displacement relative to the branch site.
	OperandLabel
)

// Operand pairs a declared kind with the symbol carrying its value.
type Operand struct {
	Kind OperandKind
	Sym  *symbol.Symbol
}

// CallArg describes one actual argument for call-signature verification
// (spec.md §4.5). It is distinct from the emitted operand vector: the
// signature check runs against the call's actual argument list, not
// against the (already-resolved) colors in VariadicTail.
type CallArg struct {
	Class      symbol.RegisterClass
	IsConstant bool
}

// Instruction is one element of the front-end's annotated instruction
// stream for a single compilation unit (spec §6 "Front-end contract").
type Instruction struct {
	// Opnum is the VM opcode id; 0 with nonzero Opsize is an error
	// (spec §7 SizedNonOp); absent entirely is NoOpnum.
	Opnum int
	// HasOpnum distinguishes "opcode 0" from "no opcode assigned yet".
	HasOpnum bool
	// Opsize is the total word count this instruction occupies in the
	// code vector, including its opcode and all operands.
	Opsize int
	// IsLabel marks a label definition (no code emitted; the label's
	// Sym.color has already been set to its offset during pre-scan).
	IsLabel bool
	// LabelSym is set when IsLabel is true.
	LabelSym *symbol.Symbol
	// IsBranch marks an instruction whose trailing operand is a label
	// reference encoded as a branch displacement.
	IsBranch bool
	// Operands is the declared operand vector, in emission order.
	Operands []Operand
	// IsCallSignature marks set_args/get_results/get_params/set_returns,
	// which get the extra signature-verification pass (spec §4.5).
	IsCallSignature bool
	// SignatureOperandIndex is the index into Operands holding the
	// signature array constant, when IsCallSignature is true.
	SignatureOperandIndex int
	// IsGetSide marks get_results/get_params, where a constant actual
	// argument is rejected outright (spec §4.5, §7 ConstantInGetParam).
	IsGetSide bool
	// CallArgs is the actual argument list checked against the
	// signature's declared type bits, present when IsCallSignature.
	CallArgs []CallArg
	// VariadicTail holds pre-resolved colors emitted after the declared
	// operand count for variable-arity call opcodes.
	VariadicTail []int
	// PICCacheable marks an opcode eligible for inline-cache indexing.
	PICCacheable bool
	// Line is the 1-based source line number for the DebugMap.
	Line int
	// File is the source file path for the DebugMap's filename mapping.
	File string
}
