// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dump

import (
	"strings"
	"testing"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/mfm"
)

func TestFrame(t *testing.T) {
	dict := mfm.NewDictionary()
	err := cobo.LoadFormats(dict)
	if err != nil {
		t.Fatalf("could not load CoBo formats: %+v", err)
	}
	f, err := dict.Find(cobo.FullFrame, 4)
	if err != nil {
		t.Fatalf("could not find format: %+v", err)
	}

	ev := cobo.NewEvent()
	ev.EventIdx = 42
	ev.CoboIdx = 3
	for buck := uint16(0); buck < 4; buck++ {
		ev.Channel(5, 1).AddValue(buck, 100+buck)
	}
	fr, err := ev.EncodeFrame(f)
	if err != nil {
		t.Fatalf("could not encode frame: %+v", err)
	}

	raw, err := mfm.Parse(fr.Bytes(), nil)
	if err != nil {
		t.Fatalf("could not parse frame: %+v", err)
	}

	for _, tc := range []struct {
		name   string
		fr     *mfm.Frame
		opts   Options
		want   []string
		nowant []string
	}{
		{
			name: "all-items",
			fr:   fr,
			opts: Options{Items: -1},
			want: []string{
				"frame: type=1 rev=4 kind=basic endian=big source=0\n",
				"items=4 x 4 B\n",
				"format: CoBo (type=1, rev=4)\n",
				"    eventIdx     0x0000002a (42)\n",
				"    coboIdx      0x03 (3)\n",
				"[ISLEND=0 ISBLOB=0 P2BLCK=6]",
				"    [   0] agetIdx=1 chanIdx=5 buckIdx=0 sample=100\n",
				"    [   3] agetIdx=1 chanIdx=5 buckIdx=3 sample=103\n",
			},
			nowant: []string{"more items"},
		},
		{
			name: "some-items",
			fr:   fr,
			opts: Options{Items: 1, Hex: true},
			want: []string{
				"    [   0] agetIdx=1 chanIdx=5 buckIdx=0 sample=100\n",
				"    [...] (3 more items)\n",
				"  000:  ",
			},
			nowant: []string{"[   1]"},
		},
		{
			name: "no-format",
			fr:   raw,
			opts: Options{Items: -1},
			want: []string{
				"frame: type=1 rev=4 kind=basic endian=big source=0\n",
				"format: <unknown>\n",
				"  000:  ",
			},
			nowant: []string{"header:", "items:"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var o strings.Builder
			err := Frame(&o, tc.fr, tc.opts)
			if err != nil {
				t.Fatalf("could not dump frame: %+v", err)
			}
			out := o.String()
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Fatalf("missing %q in output:\n%s", want, out)
				}
			}
			for _, nowant := range tc.nowant {
				if strings.Contains(out, nowant) {
					t.Fatalf("unexpected %q in output:\n%s", nowant, out)
				}
			}
		})
	}
}
