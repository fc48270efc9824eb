// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package fixup

import "errors"

// ErrUnresolvedSub is spec.md §7 UnresolvedSub: a fixup matched a sub
// with no pmc-const slot.
var ErrUnresolvedSub = errors.New("fixup: matched sub has no pmc-const slot")
