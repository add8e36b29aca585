// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-lpc/get/mfm"
)

func TestReceiver(t *testing.T) {
	dict := loadDict(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not create listener: %+v", err)
	}

	cnt, err := NewCounter(nil, "")
	if err != nil {
		t.Fatalf("could not create counter: %+v", err)
	}

	var (
		mu     sync.Mutex
		frames []*mfm.Frame
	)
	rcv := NewReceiver(l, func(fr *mfm.Frame) error {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, fr)
		return nil
	},
		WithReceiverDictionary(dict),
		WithCounter(cnt),
		WithChunkSize(64),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- rcv.Serve(ctx)
	}()

	raw := rawFrames(t,
		newFrame(t, dict, 0, 0, 1),
		newFrame(t, dict, 0, 0, 2),
		newFrame(t, dict, 0, 0, 3),
	)
	// garbage before the first frame.
	raw = append([]byte{0xff, 0xff, 0xff}, raw...)

	conn, err := net.Dial("tcp", rcv.Addr().String())
	if err != nil {
		t.Fatalf("could not dial receiver: %+v", err)
	}
	for len(raw) > 0 {
		n := min(len(raw), 50)
		_, err = conn.Write(raw[:n])
		if err != nil {
			t.Fatalf("could not send data: %+v", err)
		}
		raw = raw[n:]
	}
	err = conn.Close()
	if err != nil {
		t.Fatalf("could not close connection: %+v", err)
	}

	timeout := time.After(10 * time.Second)
loop:
	for {
		select {
		case <-timeout:
			t.Fatalf("timeout waiting for frames: stats=%+v", cnt.Stats())
		default:
			if cnt.Stats().Frames == 3 {
				break loop
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("could not serve: %+v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timeout waiting for receiver to stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if got, want := len(frames), 3; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}
	for i, fr := range frames {
		_, evt := sourceOf(fr)
		if evt != int64(i+1) {
			t.Fatalf("invalid event index for frame %d: got=%d, want=%d", i, evt, i+1)
		}
	}

	stats := cnt.Stats()
	if stats.Dropped == 0 {
		t.Fatalf("expected dropped bytes: stats=%+v", stats)
	}
}
