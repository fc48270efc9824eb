// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package config loads the three recognised configuration options
// (spec.md §6): debug-level, optimizer-level, and pasm-file. File values
// load first, then CLI flags override them, mirroring the teacher's
// cmd/gprobe config loader precedence.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// Config is the process-wide set of recognised options.
type Config struct {
	// DebugLevel gates trace emission in pkg/emitlog; 0 disables it.
	DebugLevel int `toml:",omitempty"`
	// OptimizerLevel is passed through to the front-end untouched by the
	// emitter itself; recorded here only because spec.md §6 names it as
	// a recognised option the orchestrator's caller may consult.
	OptimizerLevel int `toml:",omitempty"`
	// PasmFile records the pasm-file option. Nothing in this module reads
	// it: cmd/emitc selects PASM raw-assembly mode (pkg/segment's
	// PasmMode) through its --pasm flag instead.
	PasmFile string `toml:",omitempty"`
}

// Default mirrors the teacher's DefaultConfig package-level values.
var Default = Config{
	DebugLevel:     0,
	OptimizerLevel: 1,
}

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// Load reads a TOML file into cfg, starting from Default.
func Load(file string) (Config, error) {
	cfg := Default
	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return cfg, err
}

// Overrides captures CLI flag values that, when present, take precedence
// over whatever Load produced.
type Overrides struct {
	DebugLevel     *int
	OptimizerLevel *int
	PasmFile       *string
}

// Apply layers o onto cfg, CLI flags winning over file/default values.
func Apply(cfg Config, o Overrides) Config {
	if o.DebugLevel != nil {
		cfg.DebugLevel = *o.DebugLevel
	}
	if o.OptimizerLevel != nil {
		cfg.OptimizerLevel = *o.OptimizerLevel
	}
	if o.PasmFile != nil {
		cfg.PasmFile = *o.PasmFile
	}
	return cfg
}
