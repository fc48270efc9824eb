// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package sub

import "errors"

// ErrUndefinedOuter is spec.md §7 UndefinedOuter: a `:outer` reference
// named a sub not yet compiled in this segment and not the currently
// executing runtime sub.
var ErrUndefinedOuter = errors.New("sub: outer sub not found")

// ErrNotAVtableMethod is spec.md §7 NotAVtableMethod: a `:vtable` name
// was not found in the host's vtable method table.
var ErrNotAVtableMethod = errors.New("sub: name is not a vtable method")
