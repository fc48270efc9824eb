// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package orchestrator exposes the stable consumer-facing API — open,
// new_sub, emit, end_sub, close — and owns the process-level "current
// segment" pointer (spec.md §4.7 Orchestrator, §6).
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/probeum/emitcore/pkg/emitlog"
	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/segment"
	"github.com/probeum/emitcore/pkg/sub"
	"github.com/probeum/emitcore/pkg/vmhost"
)

// Orchestrator is the single process-wide emission facade (spec.md §5:
// "the orchestrator carries a process-wide current segment pointer").
// The core is single-threaded by design, but the mutex guards against a
// host embedding it from more than one goroutine by accident; it is never
// held across the VM re-entry in EndSub.
type Orchestrator struct {
	mu      sync.Mutex
	manager *segment.Manager
	current *segment.Segment

	currentSub        *sub.Record
	currentRuntimeSub string
}

// New creates an Orchestrator bound to host. findNameOpnum is the VM's
// find_name_p_sc opcode id; expectedKeys sizes each segment's key
// interning bloom filter.
func New(host vmhost.Host, findNameOpnum int, expectedKeys uint64) *Orchestrator {
	return &Orchestrator{manager: segment.NewManager(host, findNameOpnum, expectedKeys)}
}

// SetLogger wires a logger into every segment opened from this point on.
func (o *Orchestrator) SetLogger(logger *emitlog.Logger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.manager.SetLogger(logger)
}

// Open brackets a new segment (spec.md §6 "open(), close()").
func (o *Orchestrator) Open(pasmMode bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	seg, err := o.manager.Open(pasmMode)
	if err != nil {
		return err
	}
	o.current = seg
	return nil
}

// NewSub brackets a new sub within the current segment (spec.md §6
// "new_sub(unit), end_sub(unit)"). currentRuntimeSub names the sub
// presently executing in the host VM, used by the `:outer` fallback of
// spec.md §4.3 step 8 when compiling from inside a running VM.
func (o *Orchestrator) NewSub(unit *frontend.Unit, currentRuntimeSub string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return fmt.Errorf("orchestrator: new_sub called with no open segment")
	}
	rec, err := o.manager.NewSub(o.current, unit, currentRuntimeSub)
	if err != nil {
		return err
	}
	o.currentSub = rec
	o.currentRuntimeSub = currentRuntimeSub
	return nil
}

// Emit emits one instruction into the current sub (spec.md §6
// "emit(unit, instruction)").
func (o *Orchestrator) Emit(inst *frontend.Instruction) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return fmt.Errorf("orchestrator: emit called with no open segment")
	}
	return o.manager.Emit(o.current, inst)
}

// EndSub closes out the current sub, dispatching immediate execution
// through dispatch if the unit carried the immediate flag (spec.md §4.7
// end_sub). The VM re-entry, if any, runs outside the orchestrator's
// lock: spec.md §5 notes end_sub under the immediate flag is the only
// external call that can synchronously execute user code, and that code
// may itself call back into the orchestrator to open a nested segment.
func (o *Orchestrator) EndSub(dispatch func(vmhost.PMCHandle) error) error {
	o.mu.Lock()
	seg, rec := o.current, o.currentSub
	o.mu.Unlock()

	if seg == nil {
		return fmt.Errorf("orchestrator: end_sub called with no open segment")
	}
	return o.manager.EndSub(seg, rec, dispatch)
}

// Close runs global fixup resolution and retires the current segment
// (spec.md §6 "open(), close()", §4.7 close).
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return fmt.Errorf("orchestrator: close called with no open segment")
	}
	err := o.manager.Close(o.current)
	o.current = o.manager.Current()
	o.currentSub = nil
	return err
}

// CurrentSegment exposes the segment open right now, or nil, mainly for
// introspection/debug tooling.
func (o *Orchestrator) CurrentSegment() *segment.Segment {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}
