// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"context"
	"io"
	"runtime"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/get/mfm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// DecodeAll decodes frames into events, using up to workers goroutines.
// The i-th event is decoded from the i-th frame. Frames without a format
// are first attached their format from dict.
//
// Frames that fail to decode are logged on msg and yield an empty event.
// DecodeAll only fails when ctx is done.
func DecodeAll(ctx context.Context, dict *mfm.Dictionary, frames []*mfm.Frame, workers int, msg log.MsgStream) ([]*Event, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if msg == nil {
		msg = log.NewMsgStream("cobo", log.LvlInfo, io.Discard)
	}

	evts := make([]*Event, len(frames))
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)

	for i := range frames {
		i := i
		grp.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var (
				f  = frames[i]
				ev = NewEvent(WithMsgStream(msg))
			)
			if f.Format() == nil && dict != nil {
				hdr := f.Header()
				ff, err := dict.Find(hdr.Type, hdr.Revision)
				if err == nil {
					f = f.Clone()
					f.SetFormat(ff)
				}
			}
			if !ev.FromFrame(f) {
				msg.Warnf("could not decode frame %d", i)
			}
			evts[i] = ev
			return nil
		})
	}

	err := grp.Wait()
	if err != nil {
		return nil, xerrors.Errorf("cobo: could not decode frames: %w", err)
	}
	return evts, nil
}
