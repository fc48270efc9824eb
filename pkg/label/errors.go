// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package label

import "errors"

// ErrUnresolvedLabel is spec.md §7 UnresolvedLabel: a branch target
// symbol has no recorded offset.
var ErrUnresolvedLabel = errors.New("label: branch target has no offset")

// ErrNoLabelOffsetFound is spec.md §7 NoLabelOffsetFound: the encoded
// displacement came out as the reserved value 1.
var ErrNoLabelOffsetFound = errors.New("label: displacement came out as the reserved value 1")
