// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package sub builds and resolves per-segment sub records: the metadata
// PMCs describing each compiled function (spec.md §4.3 SubTable).
package sub

import (
	"fmt"
	"strings"

	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/symbol"
	"github.com/probeum/emitcore/pkg/vmhost"
)

// Kind classifies a sub record, derived rather than declared (spec.md §3).
type Kind int

const (
	KindSub Kind = iota
	KindClosure
	KindCoroutine
)

func (k Kind) String() string {
	switch k {
	case KindClosure:
		return "closure"
	case KindCoroutine:
		return "coroutine"
	default:
		return "sub"
	}
}

// Record is one sub-record entry (spec.md §3 "Sub record").
type Record struct {
	Name             string
	NameConstIndex   int
	PmcConstIndex    int // the reserved constant-pool slot holding the sub PMC
	Start, End       int
	RegisterUsage    [4]int
	Flags            frontend.UnitFlags
	Kind             Kind
	DisplayKind      string // Kind.String(), possibly remapped by the host's active HLL (step 3)
	Namespace        string // namespace name, "" if none
	NamespaceIndex   *int   // constant-pool index of the namespace value, if any
	OuterSub         *Record
	IsOuter          bool
	LexInfo          vmhost.PMCHandle // nil unless lexical locals or needs-lex
	MultiSignature   vmhost.PMCHandle // nil unless declared multi
	MultiCount       int              // number of declared multi-dispatch variants; 0 if not multi
	VtableIndex      *int
	HLLID            int
	Sub              vmhost.PMCHandle // the sub PMC itself, once built
}

// Table is the per-segment ordered collection of sub records, indexed by
// (namespace, name) for the resolution searches of §4.3 step 8 and §4.6.
type Table struct {
	records []*Record
	byName  map[string]*Record
}

// New creates an empty Table.
func New() *Table {
	return &Table{byName: make(map[string]*Record)}
}

// Len returns the number of subs registered so far.
func (t *Table) Len() int { return len(t.records) }

// All returns the records in insertion order.
func (t *Table) All() []*Record { return t.records }

func nameKey(namespace, name string) string {
	return namespace + "\x00" + name
}

// Find looks up a previously registered sub by namespace-scoped name
// (spec.md §4.3 step 8, §4.6 step 1: "both have no namespace, or both
// share the same namespace name").
func (t *Table) Find(namespace, name string) (*Record, bool) {
	r, ok := t.byName[nameKey(namespace, name)]
	return r, ok
}

func (t *Table) register(r *Record) {
	t.records = append(t.records, r)
	t.byName[nameKey(r.Namespace, r.Name)] = r
}

// classify derives a sub's Kind per spec.md §4.3 step 3: Coroutine if the
// unit's PCC flags include yield; else Closure if an outer-sub name is
// present; else Sub.
func classify(u *frontend.Unit) Kind {
	switch {
	case u.Flags.Has(frontend.FlagYield):
		return KindCoroutine
	case u.OuterName != "":
		return KindClosure
	default:
		return KindSub
	}
}

// namespaceName strips a leading "namespace@" prefix from a sub's own
// name (spec.md §4.3 step 1) and returns the remainder plus the prefix
// (without the trailing "@"), or "" if none was present.
func namespaceName(fullName string) (namespace, name string) {
	if idx := strings.IndexByte(fullName, '@'); idx >= 0 {
		return fullName[:idx], fullName[idx+1:]
	}
	return "", fullName
}

// Create performs spec.md §4.3 steps 1-12 for the first instruction of a
// unit: it reserves a constant slot, classifies the sub, interns its
// name, resolves its namespace value, records its code range and
// register usage, builds lexical info, resolves its outer sub, builds
// any multi-signature, binds a vtable index, and finally stores and
// publishes the sub PMC, registering it in table for later lookups.
//
// currentRuntimeSub is the name of the sub currently executing in the
// host VM (the compile-in-VM case of step 8's outer fallback), or "" if
// none. Per spec.md §9's open question, this fallback checks name
// equality only, not namespace — preserved here rather than tightened.
func Create(
	table *Table,
	pool *constant.Pool,
	host vmhost.Host,
	u *frontend.Unit,
	start, end int,
	currentRuntimeSub string,
) (*Record, error) {
	namespace, name := namespaceName(u.Name)

	pmcConstIndex := pool.ReserveSub()

	kind := classify(u)
	// Step 3: the active HLL may rename a structural kind for display
	// purposes ("method" instead of "sub" under an object-oriented HLL
	// mapping set). Kind itself stays structural — fixup/resolution logic
	// elsewhere switches on it — only DisplayKind reflects the remap.
	displayKind := host.Remap(hllName(u.HLLID), kind.String())

	nameConstIdx, err := pool.InternString(name, false)
	if err != nil {
		return nil, fmt.Errorf("sub: intern name %q: %w", name, err)
	}

	var nsIndex *int
	if u.Namespace != nil {
		switch u.Namespace.Kind {
		case symbol.KindKey:
			idx, ok := u.Namespace.ConstIndex()
			if ok {
				nsIndex = &idx
			}
		case symbol.KindString:
			s := host.NewString([]byte(u.Namespace.Name), u.Namespace.Encoding == symbol.EncodingUnicode)
			idx := pool.InternPMC(s)
			nsIndex = &idx
		}
	}

	r := &Record{
		Name:           name,
		NameConstIndex: nameConstIdx,
		PmcConstIndex:  pmcConstIndex,
		Start:          start,
		End:            end,
		RegisterUsage:  u.RegisterUsage,
		Flags:          u.Flags,
		Kind:           kind,
		DisplayKind:    displayKind,
		Namespace:      namespace,
		NamespaceIndex: nsIndex,
		HLLID:          u.HLLID,
	}

	if err := buildLexInfo(r, host, pool, u); err != nil {
		return nil, err
	}

	if err := resolveOuter(table, r, u, currentRuntimeSub); err != nil {
		return nil, err
	}

	if u.IsMulti() {
		sig, err := buildMultiSignature(host, pool, u.MultiSig)
		if err != nil {
			return nil, err
		}
		r.MultiSignature = sig
		r.MultiCount = len(u.MultiSig)
		if r.MultiCount == 0 {
			r.MultiCount = 1 // the "__VOID" sentinel still counts as one variant
		}
	}

	if u.Flags.Has(frontend.FlagVtable) {
		methodName := strings.Trim(u.VtableName, `"`)
		idx, ok := host.Index(methodName)
		if !ok {
			return nil, fmt.Errorf("sub: vtable method %q: %w", methodName, ErrNotAVtableMethod)
		}
		r.VtableIndex = &idx
	}

	subPMC := host.NewPMC("Sub")
	r.Sub = subPMC
	if err := pool.FillSub(pmcConstIndex, subPMC); err != nil {
		return nil, fmt.Errorf("sub: fill pmc-const slot: %w", err)
	}

	table.register(r)
	host.Publish(namespace, name, subPMC)

	return r, nil
}

// hllName renders an HLL identifier into the remap-table key the host
// expects; concrete hosts are free to interpret ids however they index
// their own HLL table.
func hllName(id int) string {
	return fmt.Sprintf("hll-%d", id)
}

// buildLexInfo implements spec.md §4.3 step 7.
func buildLexInfo(r *Record, host vmhost.Host, pool *constant.Pool, u *frontend.Unit) error {
	var info vmhost.PMCHandle
	any := false
	for _, loc := range u.Locals {
		if loc.Sym.RegClass != symbol.ClassPMC || !loc.Lexical {
			continue
		}
		if info == nil {
			info = host.NewLexInfo()
		}
		any = true
		for alias := loc.Sym; alias != nil; alias = alias.LexAlias {
			nameIdx, err := pool.InternString(alias.Name, false)
			if err != nil {
				return fmt.Errorf("sub: intern lexical name %q: %w", alias.Name, err)
			}
			reg, ok := loc.Sym.Register()
			if !ok {
				continue
			}
			if err := host.DeclareLex(info, nameIdx, reg); err != nil {
				return fmt.Errorf("sub: declare lexical %q: %w", alias.Name, err)
			}
		}
	}
	if !any && (u.OuterName != "" || u.Flags.Has(frontend.FlagLex)) {
		info = host.NewLexInfo()
	}
	r.LexInfo = info
	return nil
}

// resolveOuter implements spec.md §4.3 step 8.
func resolveOuter(table *Table, r *Record, u *frontend.Unit, currentRuntimeSub string) error {
	if u.OuterName == "" {
		return nil
	}
	if outer, ok := table.Find(r.Namespace, u.OuterName); ok {
		outer.IsOuter = true
		r.OuterSub = outer
		return nil
	}
	if u.OuterName == currentRuntimeSub {
		// Compiling inside the running VM: the outer sub is the currently
		// executing one, checked by name only (spec.md §9 open question).
		return nil
	}
	return fmt.Errorf("sub: outer %q: %w", u.OuterName, ErrUndefinedOuter)
}

// buildMultiSignature implements spec.md §4.3 step 9, including the
// sentinel "declared multi with no types" case.
func buildMultiSignature(host vmhost.Host, pool *constant.Pool, sig []frontend.MultiSigElement) (vmhost.PMCHandle, error) {
	if len(sig) == 0 {
		arr := host.NewArray(1)
		host.SetElement(arr, 0, host.NewString([]byte("__VOID"), false))
		return arr, nil
	}
	arr := host.NewArray(len(sig))
	for i, elem := range sig {
		if len(elem.KeyParts) > 0 {
			idx, err := pool.InternKey(elem.KeyParts)
			if err != nil {
				return nil, fmt.Errorf("sub: multi-signature key element %d: %w", i, err)
			}
			c, _ := pool.At(idx)
			host.SetElement(arr, i, host.Clone(keyConstantHandle(c)))
			continue
		}
		host.SetElement(arr, i, host.NewString([]byte(elem.TypeName), false))
	}
	return arr, nil
}

// keyConstantHandle adapts an interned key Constant to a PMCHandle for
// Clone(); the Fake host and any real host are free to interpret this
// however their own key-PMC representation requires.
func keyConstantHandle(c constant.Constant) vmhost.PMCHandle {
	return c.KeyWords
}
