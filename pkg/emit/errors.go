// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package emit

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
)

// The emitter's error kinds (spec.md §7), each fatal: partial emission
// state cannot be rolled back without corrupting symbol colors that
// already point into it, so every one of these aborts the segment.
var (
	// ErrNoOpnum: instruction reached the emitter without an opcode.
	ErrNoOpnum = errors.New("emit: instruction has no assigned opcode")
	// ErrSizedNonOp: a zero-opcode entry declared a nonzero opsize.
	ErrSizedNonOp = errors.New("emit: zero-opcode instruction has nonzero opsize")
	// ErrConstantInGetParam: a constant actual argument reached
	// get_results/get_params.
	ErrConstantInGetParam = errors.New("emit: constant argument in get_params/get_results")
)

// fatalError captures the call frame an emitter error was raised from.
// Since a failure here aborts the whole segment irrecoverably (spec.md
// §7 propagation policy), the frame is the only diagnostic a caller gets
// beyond the sentinel kind — there's no retry or partial-state dump to
// fall back on.
type fatalError struct {
	err   error
	frame stack.Call
}

func (e *fatalError) Error() string {
	return fmt.Sprintf("%v (at %+v)", e.err, e.frame)
}

func (e *fatalError) Unwrap() error { return e.err }

// fatal wraps a sentinel error with its call site, one frame up from the
// caller of fatal.
func fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err, frame: stack.Caller(1)}
}
