// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package introspect_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/introspect"
	"github.com/probeum/emitcore/pkg/orchestrator"
	"github.com/probeum/emitcore/pkg/symbol"
	"github.com/probeum/emitcore/pkg/vmhost"
)

func newFixtureOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	host := vmhost.NewFake(nil)
	o := orchestrator.New(host, 99, 16)
	require.NoError(t, o.Open(false))

	s0 := symbol.New("S0", symbol.KindString, symbol.ClassString)
	require.NoError(t, s0.SetRegister(0))
	unit := &frontend.Unit{
		Name: "main",
		Instructions: []frontend.Instruction{
			{HasOpnum: true, Opnum: 1, Opsize: 2, Operands: []frontend.Operand{
				{Kind: frontend.OperandRegister, Sym: s0},
			}},
		},
	}
	require.NoError(t, o.NewSub(unit, ""))
	require.NoError(t, o.Emit(&unit.Instructions[0]))
	return o
}

func TestHandleSubsListsCurrentSegmentSubs(t *testing.T) {
	o := newFixtureOrchestrator(t)
	srv := introspect.New(o)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/subs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var views []introspect.SubView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "main", views[0].Name)
}

func TestHandleConstantsEmptyWithNoOpenSegment(t *testing.T) {
	host := vmhost.NewFake(nil)
	o := orchestrator.New(host, 99, 16)
	srv := introspect.New(o)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/constants")
	require.NoError(t, err)
	defer resp.Body.Close()

	var views []introspect.ConstantView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	assert.Empty(t, views)
}
