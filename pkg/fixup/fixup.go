// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package fixup implements the per-sub pending-reference list and the
// global symbol resolution that runs once at segment close (spec.md §4.6).
package fixup

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/sub"
)

// Entry is a pending symbolic reference (spec.md §3 "Fixup entry"). Kind
// is always "sub-constant-reference" in the current design, so it is not
// modelled as a field; every Entry is that one kind.
type Entry struct {
	Name        string
	Namespace   string // the referencing sub's own namespace scope
	Offset      int
	OperandSlot int
	Unicode     bool
}

// Table is one sub's pending fixup list (spec.md §3 Segment "pending
// fixup tables (one per sub)"). A segment owns one Table per sub plus a
// combined view for the close-time resolution pass.
type Table struct {
	entries []Entry
	// pendingNames tracks the set of names still awaiting resolution,
	// letting callers cheaply ask "is anything still pending for X"
	// without a linear scan of entries.
	pendingNames mapset.Set
}

// New creates an empty fixup Table.
func New() *Table {
	return &Table{pendingNames: mapset.NewSet()}
}

// Add registers a pending reference at (offset, operandSlot) to name,
// scoped to namespace, encoded as unicode if the symbol carried that tag.
func (t *Table) Add(name, namespace string, offset, operandSlot int, unicode bool) {
	t.entries = append(t.entries, Entry{
		Name: name, Namespace: namespace, Offset: offset,
		OperandSlot: operandSlot, Unicode: unicode,
	})
	t.pendingNames.Add(name)
}

// Pending returns the registered entries in insertion order. Resolve
// patches the code for them but does not remove them from the table.
func (t *Table) Pending() []Entry { return t.entries }

// HasPending reports whether any entry for name is still pending.
func (t *Table) HasPending(name string) bool {
	return t.pendingNames.Contains(name)
}

// Len reports how many fixup entries were registered.
func (t *Table) Len() int { return len(t.entries) }

// FindNameOpnum is the opcode id for find_name_p_sc, supplied by the
// caller since opcode numbering belongs to the host VM's op-info table,
// not to this package.
type FindNameOpnum int

// Resolve runs spec.md §4.6 for every entry across all of a segment's
// per-sub tables against subs, rewriting code in place:
//
//  1. search subs for a name match scoped by namespace;
//  2. a match that is a declared-multi sub is treated as "not found";
//  3. not found: rewrite the opcode at Offset to findNameOpnum, intern
//     the name (unicode-tagged if the fixup was), and write the new
//     constant index at Offset+2;
//  4. found: write the target's pmc-const index at Offset+OperandSlot,
//     or fail with ErrUnresolvedSub if the target has no such slot.
//
// code is the segment's code vector, addressed by word offset; it is
// mutated in place. Once every entry of a table is resolved, that
// table's pending-name set is cleared.
func Resolve(tables []*Table, code []int64, subs *sub.Table, pool *constant.Pool, findNameOpnum int) error {
	for _, t := range tables {
		for _, e := range t.entries {
			target, found := subs.Find(e.Namespace, e.Name)
			if found && target.MultiCount > 0 {
				// A multi-dispatch sub can't be patched directly: more than
				// one variant may share this name, so fall back to runtime
				// name lookup (spec.md §4.6 step 2).
				found = false
			}
			if !found {
				idx, err := pool.InternString(e.Name, e.Unicode)
				if err != nil {
					return fmt.Errorf("fixup: intern unresolved name %q: %w", e.Name, err)
				}
				code[e.Offset] = int64(findNameOpnum)
				code[e.Offset+2] = int64(idx)
				continue
			}
			if target.PmcConstIndex < 0 {
				return fmt.Errorf("fixup: sub %q: %w", e.Name, ErrUnresolvedSub)
			}
			code[e.Offset+e.OperandSlot] = int64(target.PmcConstIndex)
		}
		t.pendingNames.Clear()
	}
	return nil
}
