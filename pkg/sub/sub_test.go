// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package sub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/sub"
	"github.com/probeum/emitcore/pkg/vmhost"
)

func newFixture(t *testing.T) (*sub.Table, *constant.Pool, *vmhost.Fake) {
	t.Helper()
	host := vmhost.NewFake(map[string]int{"get_string": 4})
	pool, err := constant.New(host, 16)
	require.NoError(t, err)
	return sub.New(), pool, host
}

func TestCreatePlainSub(t *testing.T) {
	table, pool, host := newFixture(t)
	unit := &frontend.Unit{Name: "main", Flags: frontend.FlagMain}

	r, err := sub.Create(table, pool, host, unit, 0, 6, "")
	require.NoError(t, err)
	assert.Equal(t, sub.KindSub, r.Kind)
	assert.Equal(t, "main", r.Name)
	assert.Equal(t, 1, table.Len())

	found, ok := table.Find("", "main")
	require.True(t, ok)
	assert.Same(t, r, found)
}

func TestCreateClosureLinksOuter(t *testing.T) {
	table, pool, host := newFixture(t)

	outerUnit := &frontend.Unit{Name: "outer"}
	outer, err := sub.Create(table, pool, host, outerUnit, 0, 4, "")
	require.NoError(t, err)

	innerUnit := &frontend.Unit{Name: "inner", OuterName: "outer"}
	inner, err := sub.Create(table, pool, host, innerUnit, 4, 8, "")
	require.NoError(t, err)

	assert.Equal(t, sub.KindClosure, inner.Kind)
	assert.Same(t, outer, inner.OuterSub)
	assert.True(t, outer.IsOuter)
}

func TestCreateCoroutineClassification(t *testing.T) {
	table, pool, host := newFixture(t)
	unit := &frontend.Unit{Name: "gen", Flags: frontend.FlagYield}
	r, err := sub.Create(table, pool, host, unit, 0, 4, "")
	require.NoError(t, err)
	assert.Equal(t, sub.KindCoroutine, r.Kind)
}

func TestCreateUndefinedOuterFails(t *testing.T) {
	table, pool, host := newFixture(t)
	unit := &frontend.Unit{Name: "inner", OuterName: "ghost"}
	_, err := sub.Create(table, pool, host, unit, 0, 4, "")
	assert.ErrorIs(t, err, sub.ErrUndefinedOuter)
}

// remappingHost overrides Remap to simulate an HLL that renames a
// structural sub kind for display, e.g. an object-oriented mapping set
// calling every plain sub a "method".
type remappingHost struct {
	*vmhost.Fake
}

func (h remappingHost) Remap(hll, kind string) string {
	if kind == "sub" {
		return "method"
	}
	return kind
}

func TestCreateAppliesHLLDisplayKindRemap(t *testing.T) {
	fake := vmhost.NewFake(nil)
	pool, err := constant.New(fake, 16)
	require.NoError(t, err)
	host := remappingHost{fake}

	unit := &frontend.Unit{Name: "main"}
	r, err := sub.Create(sub.New(), pool, host, unit, 0, 4, "")
	require.NoError(t, err)

	assert.Equal(t, sub.KindSub, r.Kind, "structural Kind is untouched by the remap")
	assert.Equal(t, "method", r.DisplayKind)
}

func TestCreateOuterFallsBackToRuntimeSubByNameOnly(t *testing.T) {
	table, pool, host := newFixture(t)
	unit := &frontend.Unit{Name: "inner", OuterName: "running"}
	_, err := sub.Create(table, pool, host, unit, 0, 4, "running")
	assert.NoError(t, err)
}

func TestCreateVtableBinding(t *testing.T) {
	table, pool, host := newFixture(t)
	unit := &frontend.Unit{Name: "get_string", Flags: frontend.FlagVtable, VtableName: `"get_string"`}
	r, err := sub.Create(table, pool, host, unit, 0, 4, "")
	require.NoError(t, err)
	require.NotNil(t, r.VtableIndex)
	assert.Equal(t, 4, *r.VtableIndex)
}

func TestCreateVtableUnknownMethodFails(t *testing.T) {
	table, pool, host := newFixture(t)
	unit := &frontend.Unit{Name: "nope", Flags: frontend.FlagVtable, VtableName: `"nonexistent"`}
	_, err := sub.Create(table, pool, host, unit, 0, 4, "")
	assert.ErrorIs(t, err, sub.ErrNotAVtableMethod)
}

func TestCreateMultiSignatureVoidSentinel(t *testing.T) {
	table, pool, host := newFixture(t)
	unit := &frontend.Unit{Name: "m", Flags: frontend.FlagMulti}
	r, err := sub.Create(table, pool, host, unit, 0, 4, "")
	require.NoError(t, err)
	require.NotNil(t, r.MultiSignature)
}

func TestCreateMultiSignatureWithTypes(t *testing.T) {
	table, pool, host := newFixture(t)
	unit := &frontend.Unit{
		Name:  "m",
		Flags: frontend.FlagMulti,
		MultiSig: []frontend.MultiSigElement{
			{TypeName: "Integer"},
			{TypeName: "String"},
		},
	}
	r, err := sub.Create(table, pool, host, unit, 0, 4, "")
	require.NoError(t, err)
	require.NotNil(t, r.MultiSignature)
}
