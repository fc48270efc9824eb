// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package constant_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	fuzz "github.com/google/gofuzz"
	"github.com/google/go-cmp/cmp"
	"gotest.tools/assert"

	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/symbol"
)

// TestEncodeDecodeRoundTripFuzz is the spec.md §8 "Key interning" round-
// trip property, generalised: random int-const-only key chains (the only
// KeyPart variant gofuzz can populate without a live front-end symbol
// table backing register/string-const payloads) must decode back to
// exactly the values encoded.
func TestEncodeDecodeRoundTripFuzz(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 6)

	for i := 0; i < 50; i++ {
		var ints []int64
		f.Fuzz(&ints)

		var slices []uint8
		fuzz.New().NilChance(0).NumElements(len(ints), len(ints)).Fuzz(&slices)

		chain := make([]*symbol.KeyPart, len(ints))
		want := make([]constant.DecodedPart, len(ints))
		for j, v := range ints {
			mode := symbol.SliceMode(int(slices[j]) % 6)
			chain[j] = &symbol.KeyPart{Kind: symbol.KeyPartIntConst, Slice: mode, IntValue: v}
			want[j] = constant.DecodedPart{ArgType: 2, Slice: mode, Payload: v}
		}

		words, err := constant.Encode(chain)
		assert.NilError(t, err)

		got, err := constant.Decode(words)
		assert.NilError(t, err)

		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s\nchain: %s", diff, spew.Sdump(chain))
		}
	}
}
