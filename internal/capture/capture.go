// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capture extracts MFM frames from network captures of CoBo
// data streams, stored as pcap files.
package capture // import "github.com/go-lpc/get/internal/capture"

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/get/mfm"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Flow identifies a unidirectional transport flow.
type Flow struct {
	Src string // source address, as ip:port
	Dst string // destination address, as ip:port
}

func (f Flow) String() string { return f.Src + "->" + f.Dst }

// Reader reassembles the MFM frames carried by the TCP and UDP payloads of
// a pcap capture. Payloads are reassembled per flow, in capture order.
type Reader struct {
	src  *gopacket.PacketSource
	dict *mfm.Dictionary
	msg  log.MsgStream
	port int

	flows map[Flow]*mfm.Builder
	emit  func(Flow, *mfm.Frame) error

	packets int
	skipped int
}

// Option configures a Reader.
type Option func(*Reader)

// WithDictionary sets the dictionary used to resolve frame formats.
func WithDictionary(dict *mfm.Dictionary) Option {
	return func(r *Reader) { r.dict = dict }
}

// WithMsgStream sets the message stream of the reader.
func WithMsgStream(msg log.MsgStream) Option {
	return func(r *Reader) { r.msg = msg }
}

// WithPort only keeps the flows with the given source or destination port.
func WithPort(port int) Option {
	return func(r *Reader) { r.port = port }
}

// NewReader creates a reader of the pcap capture r.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("capture: could not open pcap stream: %w", err)
	}

	rr := &Reader{
		src:   gopacket.NewPacketSource(pr, pr.LinkType()),
		msg:   log.NewMsgStream("capture", log.LvlInfo, io.Discard),
		flows: make(map[Flow]*mfm.Builder),
	}
	rr.src.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	for _, opt := range opts {
		opt(rr)
	}
	return rr, nil
}

// Run reads the whole capture and calls emit with each reassembled frame.
func (r *Reader) Run(emit func(Flow, *mfm.Frame) error) error {
	r.emit = emit
	for {
		pkt, err := r.src.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("capture: could not read packet %d: %w", r.packets, err)
		}
		r.packets++

		err = r.process(pkt)
		if err != nil {
			return err
		}
	}

	for _, flow := range r.Flows() {
		err := r.flows[flow].Flush()
		if err != nil {
			return fmt.Errorf("capture: could not flush flow %v: %w", flow, err)
		}
	}
	return nil
}

func (r *Reader) process(pkt gopacket.Packet) error {
	var (
		nl = pkt.NetworkLayer()
		tl = pkt.TransportLayer()
	)
	if nl == nil || tl == nil {
		r.skipped++
		return nil
	}

	var sport, dport int
	switch tl := tl.(type) {
	case *layers.TCP:
		sport, dport = int(tl.SrcPort), int(tl.DstPort)
	case *layers.UDP:
		sport, dport = int(tl.SrcPort), int(tl.DstPort)
	default:
		r.skipped++
		return nil
	}
	if r.port != 0 && sport != r.port && dport != r.port {
		r.skipped++
		return nil
	}

	payload := tl.LayerPayload()
	if len(payload) == 0 {
		return nil
	}

	var (
		nf   = nl.NetworkFlow()
		tf   = tl.TransportFlow()
		flow = Flow{
			Src: fmt.Sprintf("%v:%v", nf.Src(), tf.Src()),
			Dst: fmt.Sprintf("%v:%v", nf.Dst(), tf.Dst()),
		}
	)

	bld, ok := r.flows[flow]
	if !ok {
		r.msg.Infof("new flow %v", flow)
		bld = mfm.NewBuilder(
			func(fr *mfm.Frame) error { return r.emit(flow, fr) },
			mfm.WithDictionary(r.dict),
			mfm.WithMsgStream(r.msg),
		)
		r.flows[flow] = bld
	}

	err := bld.AddDataChunk(payload)
	if err != nil {
		return fmt.Errorf("capture: could not process packet %d of flow %v: %w", r.packets, flow, err)
	}
	return nil
}

// Flows returns the flows seen so far, sorted.
func (r *Reader) Flows() []Flow {
	o := make([]Flow, 0, len(r.flows))
	for flow := range r.flows {
		o = append(o, flow)
	}
	sort.Slice(o, func(i, j int) bool {
		if o[i].Src != o[j].Src {
			return o[i].Src < o[j].Src
		}
		return o[i].Dst < o[j].Dst
	})
	return o
}

// Stats returns the frame builder statistics of a flow.
func (r *Reader) Stats(flow Flow) mfm.BuilderStats {
	bld, ok := r.flows[flow]
	if !ok {
		return mfm.BuilderStats{}
	}
	return bld.Stats()
}

// Packets returns the number of packets read and the number of packets
// that did not carry a selected transport flow.
func (r *Reader) Packets() (read, skipped int) {
	return r.packets, r.skipped
}
