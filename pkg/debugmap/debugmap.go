// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package debugmap implements the per-segment line-number vector and
// filename mapping (spec.md §3 Segment, §6 artifact layout).
package debugmap

import "github.com/google/uuid"

// Entry pairs a code offset with its originating source line.
type Entry struct {
	Offset int
	Line   int
}

// Map is one segment's debug mapping: a line vector parallel to the
// instructions emitted so far, plus a single filename (spec.md §4.7
// "DebugMap: line-number vector... single filename mapping per
// segment").
type Map struct {
	entries  []Entry
	filename string
	// buildID uniquely tags this in-memory debug map, distinguishing
	// repeated builds of the same file within one process. pkg/artifact
	// writes only the line entries, not the build ID or the filename.
	buildID uuid.UUID
}

// New creates an empty Map with a fresh build ID.
func New() *Map {
	return &Map{buildID: uuid.New()}
}

// BuildID returns this map's stamped build identifier.
func (m *Map) BuildID() uuid.UUID { return m.buildID }

// SetFilename records the single filename mapping for the segment. Later
// calls overwrite it, matching "single filename mapping per segment" —
// there is only ever one slot, not a per-entry file reference.
func (m *Map) SetFilename(name string) {
	m.filename = name
}

// Filename returns the segment's recorded source filename.
func (m *Map) Filename() string { return m.filename }

// InsertLine appends one line-number entry (spec.md §4.4 "Append one
// line-number entry to DebugMap" per instruction).
func (m *Map) InsertLine(offset, line int) {
	m.entries = append(m.entries, Entry{Offset: offset, Line: line})
}

// Entries returns the recorded line mappings in insertion order.
func (m *Map) Entries() []Entry { return m.entries }

// Len reports how many line entries have been recorded.
func (m *Map) Len() int { return len(m.entries) }
