// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package vmhost declares the interfaces the emitter consumes from the
// host VM (spec.md §6 "VM contract (consumed)"). The emitter never talks
// to a concrete VM; it only ever calls through these seams, so a unit
// test can supply the in-memory Fake below instead of a real runtime.
package vmhost

// PMCHandle is an opaque reference to a host-allocated PMC object.
type PMCHandle interface{}

// ConstTable appends host-side constant entries and returns their index.
type ConstTable interface {
	// ExtendConstTable appends value and returns its new index.
	ExtendConstTable(value interface{}) int
}

// StringBuilder constructs and unescapes host string objects.
type StringBuilder interface {
	// Unescape interprets a C-style double-quoted literal body.
	Unescape(raw string) ([]byte, error)
	// NewString builds a host string PMC for the given bytes and charset.
	NewString(content []byte, unicode bool) PMCHandle
}

// NumberParser converts a numeric literal through the host's own
// string-to-number path, so a ported emitter preserves the exact
// semantics of runtime numeric conversion rather than reimplementing it
// (spec.md §4.1 intern_number).
type NumberParser interface {
	ParseNumber(text string) (float64, error)
}

// PmcFactory creates and dispatches typed vtable operations on PMCs.
type PmcFactory interface {
	// NewPMC creates an empty PMC of the named host class.
	NewPMC(class string) PMCHandle
	// SetInteger performs a typed vtable "set integer" dispatch.
	SetInteger(p PMCHandle, v int64)
	// Clone performs a typed vtable "clone" dispatch, used when copying a
	// key constant into a multi-dispatch signature array (spec §4.3 step
	// 9). Call-site signatures are copied with SignatureInspector's
	// CloneSignature instead.
	Clone(p PMCHandle) PMCHandle
}

// NamespaceStore resolves and publishes subs into the host's namespace.
type NamespaceStore interface {
	// Publish registers name (optionally namespace-qualified) as sub.
	Publish(namespace, name string, sub PMCHandle)
	// Lookup finds a previously published sub, or ok=false.
	Lookup(namespace, name string) (sub PMCHandle, ok bool)
}

// VtableIndexer resolves a vtable method name to its slot index.
type VtableIndexer interface {
	// Index returns the vtable slot for name, or ok=false if unknown
	// (spec §7 NotAVtableMethod).
	Index(name string) (slot int, ok bool)
}

// HLLRemapper remaps a sub's classification by the active HLL's rules.
type HLLRemapper interface {
	// Remap returns the (possibly unchanged) classification for a sub
	// compiled under the named high-level-language mapping set.
	Remap(hll string, kind string) string
}

// DebugSegmentBuilder constructs the VM-side debug segment and inserts
// line mappings as the emitter produces them.
type DebugSegmentBuilder interface {
	InsertLine(offset int, line int)
	SetFilename(name string)
}

// LexInfoBuilder constructs a sub's lexical-variable table (spec.md §4.3
// step 7, "declare_lex_preg").
type LexInfoBuilder interface {
	// NewLexInfo creates an empty per-sub lexical-info object.
	NewLexInfo() PMCHandle
	// DeclareLex records that the register-number register holds the
	// lexical named by the constant at nameConstIndex. Fails with
	// ErrMethodMissing-wrapping error if info's class has no such method.
	DeclareLex(info PMCHandle, nameConstIndex int, register int) error
}

// SignatureBuilder constructs the fixed-size array PMCs used for
// multi-dispatch signatures (spec.md §4.3 step 9) and call-site signature
// patching (spec.md §4.5).
type SignatureBuilder interface {
	// NewArray creates a fixed-size array PMC of length n.
	NewArray(n int) PMCHandle
	// SetElement stores v at index i of an array built by NewArray.
	SetElement(arr PMCHandle, i int, v PMCHandle)
}

// SignatureInspector reads and patches the per-argument type-bit array
// carried by a call-site signature constant (spec.md §4.5). Unlike the
// element PMCs of SignatureBuilder's arrays, a call signature's elements
// are small integer bitmasks the emitter itself interprets and mutates.
type SignatureInspector interface {
	// NewSignature builds a signature PMC with one bit-mask slot per
	// argument, seeded from bits.
	NewSignature(bits []int) PMCHandle
	// SignatureBits returns the per-argument bit masks of a signature PMC.
	SignatureBits(h PMCHandle) []int
	// SetSignatureBit overwrites the bit mask at argument index i.
	SetSignatureBit(h PMCHandle, i int, bits int)
	// CloneSignature duplicates a signature PMC so the original constant
	// is left unchanged when a call site needs different bits.
	CloneSignature(h PMCHandle) PMCHandle
}

// ExitRegistrar registers a callback to run on process exit, used once by
// SegmentManager.open to install the reverse-order teardown handler.
type ExitRegistrar interface {
	OnExit(fn func())
}

// Host groups every VM-contract seam the emitter needs. A real embedding
// VM implements Host once; tests and the CLI's standalone mode use Fake.
type Host interface {
	ConstTable
	StringBuilder
	NumberParser
	PmcFactory
	NamespaceStore
	VtableIndexer
	HLLRemapper
	ExitRegistrar
	LexInfoBuilder
	SignatureBuilder
	SignatureInspector
}
