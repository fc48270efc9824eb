// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package artifact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/emitcore/pkg/artifact"
	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/debugmap"
)

func TestEncodeProducesMagicHeader(t *testing.T) {
	p := &artifact.Pack{
		Code:     []int64{1, 2, 3},
		PicIndex: []int64{0},
		Consts: []constant.Constant{
			{Kind: constant.KindString, String: []byte("hello")},
		},
		Debug: debugmap.New(),
	}
	data, err := artifact.Encode(p)
	require.NoError(t, err)
	assert.Equal(t, "EMTC", string(data[:4]))
}

func TestWriteFileIsAtomicAndReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.emtc")

	p := &artifact.Pack{Code: []int64{42}, Debug: debugmap.New()}
	data, err := artifact.Encode(p)
	require.NoError(t, err)

	require.NoError(t, artifact.WriteFile(path, data))

	on, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, on)

	// No leftover temp file in the directory.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpenRejectsNonPackfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a packfile at all, long enough"), 0644))

	_, _, err := artifact.Open(path)
	assert.Error(t, err)
}

func TestCopyArtifactDuplicatesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.emtc")
	dst := filepath.Join(dir, "b.emtc")
	require.NoError(t, os.WriteFile(src, []byte("EMTCdata"), 0644))

	require.NoError(t, artifact.CopyArtifact(dst, src))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "EMTCdata", string(got))
}
