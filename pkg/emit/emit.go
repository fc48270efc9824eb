// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package emit drives the per-instruction encoding contract: it reads an
// instruction, writes opcode and operands into a segment's code vector,
// and updates the label, fixup, debug, and PIC-cache indices that travel
// alongside it (spec.md §4.4, §4.5).
package emit

import (
	"fmt"

	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/debugmap"
	"github.com/probeum/emitcore/pkg/emitlog"
	"github.com/probeum/emitcore/pkg/fixup"
	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/label"
	"github.com/probeum/emitcore/pkg/sub"
	"github.com/probeum/emitcore/pkg/symbol"
	"github.com/probeum/emitcore/pkg/vmhost"
)

// Signature type-bit flags (spec.md §4.5); bitConstant is the "CONSTANT
// marker bit" set when the actual argument at that slot is a constant.
const (
	bitInt = 1 << iota
	bitNum
	bitString
	bitPMC
	bitConstant
)

const typeMask = bitInt | bitNum | bitString | bitPMC

// Emitter owns one segment's emission state: the code vector, the PIC
// index, the constant pool, the sub table, the debug map, and every
// sub's pending fixup table. Per spec.md §9 ("migrate static locals into
// the segment struct explicitly"), the write pointer and PIC cache
// counter live here as fields, not as package-level state, so multiple
// segments can be emitted independently.
type Emitter struct {
	Code     []int64
	PicIndex []int64
	Pool     *constant.Pool
	Subs     *sub.Table
	Debug    *debugmap.Map
	Host     vmhost.Host

	// Logger receives trace events at the const/fixup/emit boundaries
	// (spec.md §6) when debug-level trace is enabled. A nil Logger is a
	// valid no-op; SetLogger wires one in.
	Logger *emitlog.Logger

	fixupTables   []*fixup.Table
	currentFixup  *fixup.Table
	currentNS     string
	writeOffset   int
	picCounter    int64
	findNameOpnum int
}

// New creates an Emitter for a fresh segment. findNameOpnum is the host
// VM's opcode id for find_name_p_sc, used by the close-time fixup
// resolution pass (spec.md §4.6).
func New(host vmhost.Host, pool *constant.Pool, findNameOpnum int) *Emitter {
	return &Emitter{
		Pool:          pool,
		Subs:          sub.New(),
		Debug:         debugmap.New(),
		Host:          host,
		findNameOpnum: findNameOpnum,
	}
}

// SetLogger wires a logger in after construction, since debug-level is
// resolved from configuration after the Emitter is already built.
func (e *Emitter) SetLogger(logger *emitlog.Logger) { e.Logger = logger }

// NewSub implements spec.md §4.3/§4.4: pre-scan the unit to size the code
// and PIC-index vectors and assign label offsets, then create its sub
// record.
func (e *Emitter) NewSub(unit *frontend.Unit, currentRuntimeSub string) (*sub.Record, error) {
	if len(unit.Instructions) == 0 {
		return nil, nil // "does nothing if the unit is empty" (spec.md §4.7 new_sub)
	}

	start := len(e.Code)
	codeSize, err := label.PreScan(unit.Instructions, start)
	if err != nil {
		return nil, err
	}
	e.Code = append(e.Code, make([]int64, codeSize)...)
	// Grow PicIndex against the cumulative code length rather than this
	// sub's own ceil: per-sub ceils overshoot whenever an earlier sub has
	// an odd size, and a sub starting at an odd offset would otherwise map
	// into the previous sub's cacheable window (spec.md §3 invariant 4).
	wantPicLen := (len(e.Code) + 1) / 2
	e.PicIndex = append(e.PicIndex, make([]int64, wantPicLen-len(e.PicIndex))...)

	rec, err := sub.Create(e.Subs, e.Pool, e.Host, unit, start, start+codeSize, currentRuntimeSub)
	if err != nil {
		return nil, err
	}

	e.currentFixup = fixup.New()
	e.fixupTables = append(e.fixupTables, e.currentFixup)
	e.currentNS = rec.Namespace
	e.writeOffset = start
	return rec, nil
}

// Emit implements the per-instruction contract of spec.md §4.4.
func (e *Emitter) Emit(inst *frontend.Instruction) error {
	if !inst.HasOpnum {
		return fatal(ErrNoOpnum)
	}
	if inst.Opnum == 0 && inst.Opsize > 0 && !inst.IsLabel {
		return fatal(ErrSizedNonOp)
	}
	if inst.IsLabel {
		return nil // color already set during pre-scan; nothing to emit
	}

	offset := e.writeOffset
	e.Code[offset] = int64(inst.Opnum)
	pos := offset + 1

	var sigPatch *int
	if inst.IsCallSignature {
		patched, err := e.verifySignature(inst)
		if err != nil {
			return err
		}
		sigPatch = patched
	}

	for i, op := range inst.Operands {
		var v int64
		switch op.Kind {
		case frontend.OperandRegister:
			reg, ok := op.Sym.Register()
			if !ok {
				return fmt.Errorf("emit: register operand %q has no color", op.Sym.Name)
			}
			v = int64(reg)

		case frontend.OperandIntConst, frontend.OperandStringConst,
			frontend.OperandNumConst, frontend.OperandPMCConst, frontend.OperandKeyIntConst:
			switch {
			case i == inst.SignatureOperandIndex && sigPatch != nil:
				v = int64(*sigPatch)
			case op.Sym.Flags.Has(symbol.FlagFixupNeeded):
				// A pending sub reference: the real index is unknown until
				// FixupTable resolution runs at segment close (spec.md
				// §4.6); the placeholder is overwritten in place then.
				v = 0
			default:
				idx, err := e.resolveConstOperand(op.Sym)
				if err != nil {
					return err
				}
				v = int64(idx)
			}

		case frontend.OperandKey:
			idx, err := e.resolveKeyOperand(op.Sym)
			if err != nil {
				return err
			}
			v = int64(idx)

		case frontend.OperandLabel:
			d, err := label.Displacement(op.Sym, offset)
			if err != nil {
				return err
			}
			v = int64(d)
		}
		e.Code[pos] = v
		pos++

		if op.Sym != nil && op.Sym.Flags.Has(symbol.FlagFixupNeeded) {
			e.currentFixup.Add(op.Sym.Name, e.currentNS, offset, 2, op.Sym.Encoding == symbol.EncodingUnicode)
			e.Logger.Trace("fixup", "registered pending reference", "name", op.Sym.Name, "namespace", e.currentNS, "offset", offset)
		}
	}

	for _, c := range inst.VariadicTail {
		e.Code[pos] = int64(c)
		pos++
	}

	if inst.PICCacheable {
		e.picCounter++
		e.PicIndex[offset/2] = e.picCounter
	}

	e.Debug.InsertLine(offset, inst.Line)
	if inst.File != "" {
		e.Debug.SetFilename(inst.File)
	}

	e.writeOffset = pos
	e.Logger.Trace("emit", "wrote instruction", "opnum", inst.Opnum, "offset", offset, "words", pos-offset)
	return nil
}

// resolveConstOperand returns a constant operand's pool index, interning
// it from the symbol's literal text on first use if it has no color yet.
// This folds the spec's separate "constant folding pass" (spec.md §4.4)
// into the emission walk itself: this port's front-end contract does not
// hand the emitter a standalone global/local symbol table to pre-walk,
// only the per-instruction operand stream, so folding happens at first
// reference instead of in a dedicated pass. The color-once invariant is
// identical either way.
func (e *Emitter) resolveConstOperand(sym *symbol.Symbol) (int, error) {
	if idx, ok := sym.ConstIndex(); ok {
		return idx, nil
	}
	var idx int
	var err error
	switch sym.Kind {
	case symbol.KindInteger:
		idx, err = e.Pool.InternInteger(sym.Name)
	case symbol.KindNumber:
		idx, err = e.Pool.InternNumber(sym.Name)
	case symbol.KindString:
		idx, err = e.Pool.InternString(sym.Name, sym.Encoding == symbol.EncodingUnicode)
	default:
		return 0, fmt.Errorf("emit: constant operand %q has no interned index and no literal form", sym.Name)
	}
	if err != nil {
		return 0, err
	}
	if err := sym.SetConstIndex(idx); err != nil {
		return 0, err
	}
	e.Logger.Trace("const", "interned operand", "name", sym.Name, "kind", sym.Kind.String(), "index", idx)
	return idx, nil
}

// resolveKeyOperand implements the OperandKey rule of spec.md §4.4: "if
// already interned (color >= 0), reuse; else call KeyEncoder and record
// the resulting index." String-constant key parts that have no pool
// index yet are interned first, so the key encoder can reference them;
// integer-constant parts travel inline and need no pool entry.
func (e *Emitter) resolveKeyOperand(sym *symbol.Symbol) (int, error) {
	if idx, ok := sym.ConstIndex(); ok {
		return idx, nil
	}
	for _, part := range sym.KeyParts {
		if part.Kind == symbol.KeyPartStringConst && part.Sym != nil {
			if _, err := e.resolveConstOperand(part.Sym); err != nil {
				return 0, err
			}
		}
	}
	idx, err := e.Pool.InternKey(sym.KeyParts)
	if err != nil {
		return 0, err
	}
	if err := sym.SetConstIndex(idx); err != nil {
		return 0, err
	}
	return idx, nil
}

// verifySignature implements spec.md §4.5. It returns the pool index of
// a patched clone if any argument required different type bits than the
// signature declared, or nil if the original signature already matched.
func (e *Emitter) verifySignature(inst *frontend.Instruction) (*int, error) {
	sigOp := inst.Operands[inst.SignatureOperandIndex]
	idx, ok := sigOp.Sym.ConstIndex()
	if !ok {
		return nil, fmt.Errorf("emit: call signature %q has not been interned", sigOp.Sym.Name)
	}
	c, ok := e.Pool.At(idx)
	if !ok {
		return nil, fmt.Errorf("emit: call signature constant %d out of range", idx)
	}

	original := e.Host.SignatureBits(c.PMC)
	var clone vmhost.PMCHandle
	patched := false

	for i, arg := range inst.CallArgs {
		if inst.IsGetSide && arg.IsConstant {
			return nil, fatal(ErrConstantInGetParam)
		}
		required, err := classBits(arg.Class)
		if err != nil {
			return nil, err
		}
		if i >= len(original) {
			continue
		}
		newVal := (original[i] &^ typeMask) | required
		if arg.IsConstant {
			newVal |= bitConstant
		}
		if newVal == original[i] {
			continue
		}
		if clone == nil {
			clone = e.Host.CloneSignature(c.PMC)
		}
		patched = true
		e.Host.SetSignatureBit(clone, i, newVal)
	}

	if !patched {
		return nil, nil
	}
	newIdx := e.Pool.InternPMC(clone)
	return &newIdx, nil
}

// classBits maps a register class to its spec.md §4.5 type bit.
func classBits(class symbol.RegisterClass) (int, error) {
	switch class {
	case symbol.ClassInt:
		return bitInt, nil
	case symbol.ClassNum:
		return bitNum, nil
	case symbol.ClassString:
		return bitString, nil
	case symbol.ClassPMC:
		return bitPMC, nil
	default:
		return 0, fmt.Errorf("emit: register class %v has no signature type bit", class)
	}
}

// EndSub implements spec.md §4.7 end_sub: requesting immediate execution
// is an external VM re-entry the emitter only signals, never performs
// itself (spec.md §5 concurrency model) — dispatch is the caller's hook
// into the host VM for that re-entry.
func (e *Emitter) EndSub(rec *sub.Record, dispatch func(vmhost.PMCHandle) error) error {
	if rec == nil || !rec.Flags.Has(frontend.FlagImmediate) || dispatch == nil {
		return nil
	}
	return dispatch(rec.Sub)
}

// Close implements spec.md §4.6: global fixup resolution across every
// sub's pending table.
func (e *Emitter) Close() error {
	return fixup.Resolve(e.fixupTables, e.Code, e.Subs, e.Pool, e.findNameOpnum)
}
