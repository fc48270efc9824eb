// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package emit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/emitcore/pkg/emit"
	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/symbol"
	"github.com/probeum/emitcore/pkg/vmhost"

	"github.com/probeum/emitcore/pkg/constant"
)

const (
	opSetSSC   = 10
	opPrintS   = 11
	opEnd      = 12
	opSetPPC   = 20
	opFindName = 99
	opSetArgs  = 30
)

func newEmitter(t *testing.T) *emit.Emitter {
	t.Helper()
	host := vmhost.NewFake(nil)
	pool, err := constant.New(host, 16)
	require.NoError(t, err)
	return emit.New(host, pool, opFindName)
}

// TestTrivialSub covers spec.md §8 scenario 1.
func TestTrivialSub(t *testing.T) {
	e := newEmitter(t)

	s0 := symbol.New("S0", symbol.KindString, symbol.ClassString)
	require.NoError(t, s0.SetRegister(0))

	hello := symbol.New(`"hello"`, symbol.KindString, symbol.ClassConstant)

	unit := &frontend.Unit{
		Name:  "main",
		Flags: frontend.FlagMain,
		Instructions: []frontend.Instruction{
			{HasOpnum: true, Opnum: opSetSSC, Opsize: 3, Line: 1, Operands: []frontend.Operand{
				{Kind: frontend.OperandRegister, Sym: s0},
				{Kind: frontend.OperandStringConst, Sym: hello},
			}},
			{HasOpnum: true, Opnum: opPrintS, Opsize: 2, Line: 2, Operands: []frontend.Operand{
				{Kind: frontend.OperandRegister, Sym: s0},
			}},
			{HasOpnum: true, Opnum: opEnd, Opsize: 1, Line: 3},
		},
	}

	rec, err := e.NewSub(unit, "")
	require.NoError(t, err)
	require.NotNil(t, rec)

	for i := range unit.Instructions {
		require.NoError(t, e.Emit(&unit.Instructions[i]))
	}

	k, ok := hello.ConstIndex()
	require.True(t, ok)
	c, ok := e.Pool.At(k)
	require.True(t, ok)
	assert.Equal(t, "hello", string(c.String))

	assert.Equal(t, []int64{
		opSetSSC, 0, int64(k),
		opPrintS, 0,
		opEnd,
	}, e.Code)
}

// TestIntraSegmentCallResolvesDirect covers spec.md §8 scenario 2.
func TestIntraSegmentCallResolvesDirect(t *testing.T) {
	e := newEmitter(t)

	aUnit := &frontend.Unit{
		Name: "a",
		Instructions: []frontend.Instruction{
			{HasOpnum: true, Opnum: opEnd, Opsize: 1, Line: 1},
		},
	}
	aRec, err := e.NewSub(aUnit, "")
	require.NoError(t, err)
	require.NoError(t, e.Emit(&aUnit.Instructions[0]))

	aRef := symbol.New("a", symbol.KindSubLabel, symbol.ClassPMC)
	aRef.Flags = symbol.FlagFixupNeeded
	dest := symbol.New("P0", symbol.KindPMC, symbol.ClassPMC)
	require.NoError(t, dest.SetRegister(0))

	bUnit := &frontend.Unit{
		Name: "b",
		Instructions: []frontend.Instruction{
			{HasOpnum: true, Opnum: opSetPPC, Opsize: 3, Line: 1, Operands: []frontend.Operand{
				{Kind: frontend.OperandRegister, Sym: dest},
				{Kind: frontend.OperandPMCConst, Sym: aRef},
			}},
		},
	}
	_, err = e.NewSub(bUnit, "")
	require.NoError(t, err)
	require.NoError(t, e.Emit(&bUnit.Instructions[0]))

	require.NoError(t, e.Close())

	// operand slot 2 (offset+2) of the set_p_pc holds a's pmc-const index.
	setPPCOffset := int64(aUnit.Instructions[0].Opsize) // b starts right after a
	assert.Equal(t, int64(opSetPPC), e.Code[setPPCOffset])
	assert.Equal(t, int64(aRec.PmcConstIndex), e.Code[setPPCOffset+2])

	// spec.md §8: pic_index.len == ceil(code.len/2) across the whole
	// segment, not summed from each sub's own ceil.
	require.Equal(t, (len(e.Code)+1)/2, len(e.PicIndex))
}

// TestUnresolvedCallDegrades covers spec.md §8 scenario 3.
func TestUnresolvedCallDegrades(t *testing.T) {
	e := newEmitter(t)

	aUnit := &frontend.Unit{
		Name:  "a",
		Flags: frontend.FlagMulti,
		Instructions: []frontend.Instruction{
			{HasOpnum: true, Opnum: opEnd, Opsize: 1, Line: 1},
		},
	}
	_, err := e.NewSub(aUnit, "")
	require.NoError(t, err)
	require.NoError(t, e.Emit(&aUnit.Instructions[0]))

	aRef := symbol.New("a", symbol.KindSubLabel, symbol.ClassPMC)
	aRef.Flags = symbol.FlagFixupNeeded
	dest := symbol.New("P0", symbol.KindPMC, symbol.ClassPMC)
	require.NoError(t, dest.SetRegister(0))

	bUnit := &frontend.Unit{
		Name: "b",
		Instructions: []frontend.Instruction{
			{HasOpnum: true, Opnum: opSetPPC, Opsize: 3, Line: 1, Operands: []frontend.Operand{
				{Kind: frontend.OperandRegister, Sym: dest},
				{Kind: frontend.OperandPMCConst, Sym: aRef},
			}},
		},
	}
	_, err = e.NewSub(bUnit, "")
	require.NoError(t, err)
	require.NoError(t, e.Emit(&bUnit.Instructions[0]))

	require.NoError(t, e.Close())

	setPPCOffset := int64(aUnit.Instructions[0].Opsize)
	assert.Equal(t, int64(opFindName), e.Code[setPPCOffset])
	nameIdx := e.Code[setPPCOffset+2]
	c, ok := e.Pool.At(int(nameIdx))
	require.True(t, ok)
	assert.Equal(t, "a", string(c.String))
}

// TestCompositeKeyDedup covers spec.md §8 scenario 4.
func TestCompositeKeyDedup(t *testing.T) {
	e := newEmitter(t)

	keySym1 := symbol.New(`["x";3]`, symbol.KindKey, symbol.ClassConstant)
	keySym1.KeyParts = []*symbol.KeyPart{{Kind: symbol.KeyPartIntConst, IntValue: 3}}
	keySym2 := symbol.New(`["x";3]`, symbol.KindKey, symbol.ClassConstant)
	keySym2.KeyParts = []*symbol.KeyPart{{Kind: symbol.KeyPartIntConst, IntValue: 3}}

	p0 := symbol.New("P0", symbol.KindPMC, symbol.ClassPMC)
	require.NoError(t, p0.SetRegister(0))

	unit := &frontend.Unit{
		Name: "main",
		Instructions: []frontend.Instruction{
			{HasOpnum: true, Opnum: 40, Opsize: 3, Line: 1, Operands: []frontend.Operand{
				{Kind: frontend.OperandRegister, Sym: p0},
				{Kind: frontend.OperandKey, Sym: keySym1},
			}},
			{HasOpnum: true, Opnum: 40, Opsize: 3, Line: 2, Operands: []frontend.Operand{
				{Kind: frontend.OperandRegister, Sym: p0},
				{Kind: frontend.OperandKey, Sym: keySym2},
			}},
		},
	}
	_, err := e.NewSub(unit, "")
	require.NoError(t, err)
	// NewSub already put the sub's own entries into the pool.
	before := e.Pool.Len()
	for i := range unit.Instructions {
		require.NoError(t, e.Emit(&unit.Instructions[i]))
	}

	assert.Equal(t, e.Code[2], e.Code[5])
	assert.Equal(t, before+1, e.Pool.Len()) // exactly one key constant added
}

// TestSignaturePatchUp covers spec.md §8 scenario 5.
func TestSignaturePatchUp(t *testing.T) {
	host := vmhost.NewFake(nil)
	pool, err := constant.New(host, 16)
	require.NoError(t, err)
	e := emit.New(host, pool, opFindName)

	sigHandle := host.NewSignature([]int{1}) // declares (int)
	sigIdx := pool.InternPMC(sigHandle)
	sigSym := symbol.New("sig", symbol.KindPMC, symbol.ClassConstant)
	require.NoError(t, sigSym.SetConstIndex(sigIdx))

	unit := &frontend.Unit{
		Name: "main",
		Instructions: []frontend.Instruction{
			{
				HasOpnum: true, Opnum: opSetArgs, Opsize: 2, Line: 1,
				IsCallSignature:       true,
				SignatureOperandIndex: 0,
				CallArgs:              []frontend.CallArg{{Class: symbol.ClassString}},
				Operands: []frontend.Operand{
					{Kind: frontend.OperandPMCConst, Sym: sigSym},
				},
			},
		},
	}
	_, err = e.NewSub(unit, "")
	require.NoError(t, err)
	require.NoError(t, e.Emit(&unit.Instructions[0]))

	assert.NotEqual(t, int64(sigIdx), e.Code[1])

	c, ok := pool.At(int(e.Code[1]))
	require.True(t, ok)
	bits := host.SignatureBits(c.PMC)
	require.Len(t, bits, 1)
	assert.Equal(t, 4, bits[0]&0xF) // bitString

	original := host.SignatureBits(sigHandle)
	assert.Equal(t, []int{1}, original) // untouched
}

// TestBranchDisplacement covers spec.md §8 scenario 6.
func TestBranchDisplacement(t *testing.T) {
	e := newEmitter(t)

	target := symbol.New("L1", symbol.KindLabel, symbol.ClassConstant)

	var instructions []frontend.Instruction
	for i := 0; i < 40; i++ { // offsets 0..39
		instructions = append(instructions, frontend.Instruction{HasOpnum: true, Opnum: 1, Opsize: 1})
	}
	branchIdx := len(instructions) // branch sits at offset 40
	instructions = append(instructions, frontend.Instruction{
		HasOpnum: true, Opnum: 50, Opsize: 2, IsBranch: true,
		Operands: []frontend.Operand{{Kind: frontend.OperandLabel, Sym: target}},
	})
	for i := 0; i < 58; i++ { // offsets 42..99
		instructions = append(instructions, frontend.Instruction{HasOpnum: true, Opnum: 1, Opsize: 1})
	}
	instructions = append(instructions, frontend.Instruction{HasOpnum: true, IsLabel: true, LabelSym: target}) // offset 100

	unit := &frontend.Unit{Name: "main", Instructions: instructions}

	_, err := e.NewSub(unit, "")
	require.NoError(t, err)
	for i := range unit.Instructions {
		require.NoError(t, e.Emit(&unit.Instructions[i]))
	}

	off, ok := target.LabelOffset()
	require.True(t, ok)
	require.Equal(t, 100, off)

	assert.Equal(t, int64(60), e.Code[branchIdx+1])
}

func TestEmitNoOpnum(t *testing.T) {
	e := newEmitter(t)
	unit := &frontend.Unit{Name: "x", Instructions: []frontend.Instruction{{Opsize: 1}}}
	_, err := e.NewSub(unit, "")
	require.NoError(t, err)
	err = e.Emit(&unit.Instructions[0])
	assert.ErrorIs(t, err, emit.ErrNoOpnum)
}

func TestEmitConstantInGetParam(t *testing.T) {
	host := vmhost.NewFake(nil)
	pool, err := constant.New(host, 16)
	require.NoError(t, err)
	e := emit.New(host, pool, opFindName)

	sigHandle := host.NewSignature([]int{1})
	sigIdx := pool.InternPMC(sigHandle)
	sigSym := symbol.New("sig", symbol.KindPMC, symbol.ClassConstant)
	require.NoError(t, sigSym.SetConstIndex(sigIdx))

	unit := &frontend.Unit{
		Name: "main",
		Instructions: []frontend.Instruction{
			{
				HasOpnum: true, Opnum: opSetArgs, Opsize: 2,
				IsCallSignature: true, IsGetSide: true, SignatureOperandIndex: 0,
				CallArgs: []frontend.CallArg{{Class: symbol.ClassInt, IsConstant: true}},
				Operands: []frontend.Operand{{Kind: frontend.OperandPMCConst, Sym: sigSym}},
			},
		},
	}
	_, err = e.NewSub(unit, "")
	require.NoError(t, err)
	err = e.Emit(&unit.Instructions[0])
	assert.ErrorIs(t, err, emit.ErrConstantInGetParam)
}
