// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package artifact serializes a closed segment's code, constant pool,
// debug map, and PIC index into the packfile layout named by spec.md §6
// ("Artifact layout"), and writes it atomically to local disk, mmap'd for
// reads, the way probe-lang/lang/codegen.Bytecode's fields are the
// in-memory shape that gets persisted.
package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/cp"
	"github.com/edsrzf/mmap-go"
	"github.com/golang/snappy"

	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/debugmap"
	"github.com/probeum/emitcore/pkg/sub"
)

// magic tags the packfile format; bumped if the layout changes.
const magic = "EMTC"

// sectionTag identifies one of the packfile's serialized sections.
type sectionTag uint32

const (
	sectionCode sectionTag = iota
	sectionConst
	sectionSubs
	sectionDebug
	sectionPicIndex
)

// Pack is the in-memory shape of a packfile, built from a closed
// segment's state (code vector, constant pool, sub table, debug map, PIC
// index).
type Pack struct {
	Code     []int64
	PicIndex []int64
	Consts   []constant.Constant
	Subs     []*sub.Record
	Debug    *debugmap.Map
}

// Encode serializes p into the packfile wire format: a magic header
// followed by length-prefixed sections, each optionally snappy-compressed
// (the debug section, which is the largest and least latency-sensitive to
// decode).
func Encode(p *Pack) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)

	if err := writeInt64Section(&buf, sectionCode, p.Code, false); err != nil {
		return nil, err
	}
	if err := writeInt64Section(&buf, sectionPicIndex, p.PicIndex, false); err != nil {
		return nil, err
	}

	constBytes, err := encodeConsts(p.Consts)
	if err != nil {
		return nil, err
	}
	if err := writeSection(&buf, sectionConst, constBytes, false); err != nil {
		return nil, err
	}

	subBytes := encodeSubs(p.Subs)
	if err := writeSection(&buf, sectionSubs, subBytes, false); err != nil {
		return nil, err
	}

	debugBytes := encodeDebug(p.Debug)
	if err := writeSection(&buf, sectionDebug, debugBytes, true); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeInt64Section(buf *bytes.Buffer, tag sectionTag, vals []int64, compress bool) error {
	var body bytes.Buffer
	for _, v := range vals {
		if err := binary.Write(&body, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return writeSection(buf, tag, body.Bytes(), compress)
}

func writeSection(buf *bytes.Buffer, tag sectionTag, body []byte, compress bool) error {
	if compress {
		body = snappy.Encode(nil, body)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(tag)); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, boolByte(compress)); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(body))); err != nil {
		return err
	}
	_, err := buf.Write(body)
	return err
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func encodeConsts(consts []constant.Constant) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(consts))); err != nil {
		return nil, err
	}
	for _, c := range consts {
		if err := binary.Write(&buf, binary.LittleEndian, int32(c.Kind)); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, c.Integer); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, c.Number); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(c.String))); err != nil {
			return nil, err
		}
		if _, err := buf.Write(c.String); err != nil {
			return nil, err
		}
		keyBytes := constant.KeyWireBytes(c.KeyWords)
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(keyBytes))); err != nil {
			return nil, err
		}
		if _, err := buf.Write(keyBytes); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeSubs(subs []*sub.Record) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(subs)))
	for _, r := range subs {
		writeLPString(&buf, r.Name)
		writeLPString(&buf, r.Namespace)
		binary.Write(&buf, binary.LittleEndian, int32(r.Start))
		binary.Write(&buf, binary.LittleEndian, int32(r.End))
	}
	return buf.Bytes()
}

func encodeDebug(m *debugmap.Map) []byte {
	var buf bytes.Buffer
	if m == nil {
		binary.Write(&buf, binary.LittleEndian, uint32(0))
		return buf.Bytes()
	}
	entries := m.Entries()
	binary.Write(&buf, binary.LittleEndian, uint32(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, int32(e.Offset))
		binary.Write(&buf, binary.LittleEndian, int32(e.Line))
	}
	return buf.Bytes()
}

func writeLPString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

// WriteFile writes data to path atomically: to a temp file in the same
// directory, then renamed into place, the same local-write discipline
// go-probeum's keystore import uses (via cespare/cp for test fixtures; here
// applied to the packfile itself so a crash mid-write never leaves a
// truncated artifact at the destination path).
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// CopyArtifact duplicates a packfile from src to dst using cespare/cp,
// preserving the atomic-rename discipline cp.CopyFile implements, so the
// original is left undisturbed.
func CopyArtifact(dst, src string) error {
	return cp.CopyFile(dst, src)
}

// Open mmaps path read-only for random-access inspection (the CLI's
// `dump` subcommand reads packfiles this way rather than loading the
// whole file into a []byte), mirroring trie.go's on-disk mmap'd node
// database.
func Open(path string) (mmap.MMap, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("artifact: mmap %s: %w", path, err)
	}
	if len(m) < len(magic) || string(m[:len(magic)]) != magic {
		m.Unmap()
		f.Close()
		return nil, nil, fmt.Errorf("artifact: %s is not an emitcore packfile", path)
	}
	return m, f, nil
}
