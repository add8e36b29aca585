// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/get/mfm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Receiver receives MFM byte streams over TCP and reassembles them into
// frames. Each connection gets its own frame builder.
type Receiver struct {
	l    net.Listener
	dict *mfm.Dictionary
	cnt  *Counter
	msg  log.MsgStream

	mu   sync.Mutex // serializes calls to emit.
	emit func(*mfm.Frame) error

	chunk int
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithReceiverDictionary sets the dictionary used to resolve the formats
// of received frames.
func WithReceiverDictionary(dict *mfm.Dictionary) ReceiverOption {
	return func(rcv *Receiver) { rcv.dict = dict }
}

// WithCounter sets the counter updated with received frames.
func WithCounter(cnt *Counter) ReceiverOption {
	return func(rcv *Receiver) { rcv.cnt = cnt }
}

// WithReceiverMsgStream sets the message stream of the receiver.
func WithReceiverMsgStream(msg log.MsgStream) ReceiverOption {
	return func(rcv *Receiver) { rcv.msg = msg }
}

// WithChunkSize sets the size of the buffer used to read connections.
func WithChunkSize(n int) ReceiverOption {
	return func(rcv *Receiver) {
		if n > 0 {
			rcv.chunk = n
		}
	}
}

// NewReceiver creates a receiver accepting connections on l.
// emit is called with each reassembled frame, one call at a time.
// A nil emit only counts frames.
func NewReceiver(l net.Listener, emit func(*mfm.Frame) error, opts ...ReceiverOption) *Receiver {
	rcv := &Receiver{
		l:     l,
		msg:   log.NewMsgStream("receiver", log.LvlInfo, io.Discard),
		emit:  emit,
		chunk: 64 * 1024,
	}
	for _, opt := range opts {
		opt(rcv)
	}
	return rcv
}

// Addr returns the address the receiver listens on.
func (rcv *Receiver) Addr() net.Addr { return rcv.l.Addr() }

// Serve accepts and serves connections until ctx is done or the listener
// fails. Serve closes the listener.
func (rcv *Receiver) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		<-ctx.Done()
		return rcv.l.Close()
	})

	var err error
	for {
		conn, e := rcv.l.Accept()
		if e != nil {
			if ctx.Err() == nil && !errors.Is(e, net.ErrClosed) {
				err = xerrors.Errorf("daq: could not accept connection: %w", e)
			}
			break
		}
		grp.Go(func() error {
			rcv.handle(ctx, conn)
			return nil
		})
	}
	cancel()

	e := grp.Wait()
	if err == nil && e != nil && !errors.Is(e, net.ErrClosed) {
		err = xerrors.Errorf("daq: could not close listener: %w", e)
	}
	return err
}

func (rcv *Receiver) handle(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr()
	rcv.msg.Infof("serving %v...", addr)
	defer rcv.msg.Infof("serving %v... [done]", addr)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	bld := mfm.NewBuilder(
		rcv.process,
		mfm.WithDictionary(rcv.dict),
		mfm.WithMsgStream(rcv.msg),
	)
	var (
		stats = builderStats{cnt: rcv.cnt}
		buf   = make([]byte, rcv.chunk)
	)
	defer func() {
		err := bld.Flush()
		if err != nil {
			rcv.msg.Errorf("could not flush frames from %v: %+v", addr, err)
		}
		stats.update(bld.Stats())
	}()

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			_, werr := bld.Write(buf[:n])
			stats.update(bld.Stats())
			if werr != nil {
				rcv.msg.Errorf("could not process data from %v: %+v", addr, werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				rcv.msg.Errorf("could not read from %v: %+v", addr, err)
			}
			return
		}
	}
}

func (rcv *Receiver) process(fr *mfm.Frame) error {
	if rcv.cnt != nil {
		rcv.cnt.Add(fr)
	}
	if rcv.emit == nil {
		return nil
	}
	rcv.mu.Lock()
	defer rcv.mu.Unlock()
	return rcv.emit(fr)
}
