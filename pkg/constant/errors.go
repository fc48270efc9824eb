// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package constant

import "errors"

// ErrConstOverflow is spec.md §7 ConstOverflow: an integer literal fell
// outside the platform integer range.
var ErrConstOverflow = errors.New("constant: integer literal overflows int64")

// ErrKeyTooComplex is spec.md §7 KeyTooComplex: a key chain exceeded 21
// parts.
var ErrKeyTooComplex = errors.New("constant: key chain exceeds 21 parts")

// ErrKeySetUnknown is spec.md §7 KeySetUnknown: a key part register class
// is neither int nor string.
var ErrKeySetUnknown = errors.New("constant: key part register class is neither int nor string")

// ErrUnknownKeyPartType is spec.md §7 UnknownKeyPartType.
var ErrUnknownKeyPartType = errors.New("constant: key part type flags are unrecognised")

// maxKeyParts is the hard limit on parts per composite key (spec.md §4.2).
const maxKeyParts = 21
