// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package segment owns the stack of code segments and orchestrates the
// open -> (new_sub -> emit* -> end_sub)* -> close lifecycle (spec.md
// §4.7 SegmentManager).
package segment

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/emit"
	"github.com/probeum/emitcore/pkg/emitlog"
	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/sub"
	"github.com/probeum/emitcore/pkg/vmhost"
)

// Segment is one open code segment plus its emission state.
type Segment struct {
	ID      uuid.UUID
	Emitter *emit.Emitter

	// PasmMode implements the `pasm-file` configuration option
	// (SPEC_FULL.md §4): in raw-assembly mode, the second and later sub
	// entries in the segment are flattened to zero-length ranges rather
	// than partitioning the code vector, since a PASM source has no
	// nested-sub boundaries of its own.
	PasmMode bool

	subCount int
}

// Manager owns a stack of segments and the process-wide "current
// segment" state (spec.md §5 concurrency model, §4.7).
type Manager struct {
	host          vmhost.Host
	findNameOpnum int
	expectedKeys  uint64

	stack          []*Segment
	exitRegistered bool

	logger *emitlog.Logger
}

// SetLogger wires a logger into every segment opened after this call
// (spec.md §6 debug-level trace boundaries).
func (m *Manager) SetLogger(logger *emitlog.Logger) { m.logger = logger }

// NewManager creates a Manager bound to host. findNameOpnum is the host's
// find_name_p_sc opcode id, forwarded to every segment's Emitter for
// close-time fixup resolution.
func NewManager(host vmhost.Host, findNameOpnum int, expectedKeys uint64) *Manager {
	return &Manager{host: host, findNameOpnum: findNameOpnum, expectedKeys: expectedKeys}
}

// Open implements spec.md §4.7 open: it creates a fresh segment with its
// own constant pool and Emitter, pushes it onto the segment stack, and
// registers the process-exit handler the first time only. Packfile
// sections are not created here; pkg/artifact builds them from a closed
// segment.
func (m *Manager) Open(pasmMode bool) (*Segment, error) {
	pool, err := constant.New(m.host, m.expectedKeys)
	if err != nil {
		return nil, fmt.Errorf("segment: open: %w", err)
	}
	seg := &Segment{
		ID:       uuid.New(),
		Emitter:  emit.New(m.host, pool, m.findNameOpnum),
		PasmMode: pasmMode,
	}
	seg.Emitter.SetLogger(m.logger)
	m.stack = append(m.stack, seg)

	if !m.exitRegistered {
		m.host.OnExit(m.teardownAll)
		m.exitRegistered = true
	}
	return seg, nil
}

// Current returns the innermost open segment, or nil if none is open.
func (m *Manager) Current() *Segment {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// NewSub implements spec.md §4.7 new_sub: "append a new SubTable node
// (with empty FixupTable); does nothing if the unit is empty."
func (m *Manager) NewSub(seg *Segment, unit *frontend.Unit, currentRuntimeSub string) (*sub.Record, error) {
	rec, err := seg.Emitter.NewSub(unit, currentRuntimeSub)
	if err != nil || rec == nil {
		return rec, err
	}
	if seg.PasmMode && seg.subCount > 0 {
		rec.End = rec.Start
	}
	seg.subCount++
	return rec, nil
}

// Emit implements spec.md §4.7 emit(instruction), per §4.4.
func (m *Manager) Emit(seg *Segment, inst *frontend.Instruction) error {
	return seg.Emitter.Emit(inst)
}

// EndSub implements spec.md §4.7 end_sub: "if the unit carries the
// immediate flag, request the VM to fixup and execute it before
// returning. No-op otherwise."
func (m *Manager) EndSub(seg *Segment, rec *sub.Record, dispatch func(vmhost.PMCHandle) error) error {
	return seg.Emitter.EndSub(rec, dispatch)
}

// Close implements spec.md §4.7 close: "run §4.6 globally," then pops
// the segment from the stack.
func (m *Manager) Close(seg *Segment) error {
	if err := seg.Emitter.Close(); err != nil {
		return err
	}
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i] == seg {
			m.stack = append(m.stack[:i], m.stack[i+1:]...)
			break
		}
	}
	return nil
}

// teardownAll tears down every still-open segment in reverse creation
// order (spec.md §3 Lifecycles, §4.7): "each releasing its subs' fixup
// tables, then the segment's key-interning map." Fixup tables and the
// interning map are owned by the segment's Emitter/Pool and are reclaimed
// by the garbage collector once the segment drops out of m.stack; this
// handler's job is purely to enforce teardown order.
func (m *Manager) teardownAll() {
	for i := len(m.stack) - 1; i >= 0; i-- {
		m.stack[i] = nil
	}
	m.stack = nil
}
