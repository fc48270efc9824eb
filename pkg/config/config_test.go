// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/emitcore/pkg/config"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emitc.toml")
	require.NoError(t, os.WriteFile(path, []byte("DebugLevel = 3\nPasmFile = \"out.pasm\"\n"), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.DebugLevel)
	assert.Equal(t, "out.pasm", cfg.PasmFile)
	assert.Equal(t, 1, cfg.OptimizerLevel) // untouched default carries through
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emitc.toml")
	require.NoError(t, os.WriteFile(path, []byte("Bogus = true\n"), 0644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestApplyOverridesWinOverFile(t *testing.T) {
	base := config.Config{DebugLevel: 1, OptimizerLevel: 1, PasmFile: "a.pasm"}
	lvl := 5
	merged := config.Apply(base, config.Overrides{DebugLevel: &lvl})

	assert.Equal(t, 5, merged.DebugLevel)
	assert.Equal(t, "a.pasm", merged.PasmFile)
}

func TestApplyWithNoOverridesIsIdentity(t *testing.T) {
	base := config.Config{DebugLevel: 2, OptimizerLevel: 3, PasmFile: "x"}
	merged := config.Apply(base, config.Overrides{})
	assert.Equal(t, base, merged)
}
