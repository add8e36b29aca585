// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-lpc/get/mfm"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"
)

// CounterStats holds the totals of a Counter.
type CounterStats struct {
	Frames  int64 `json:"frames"`
	Bytes   int64 `json:"bytes"`
	Dropped int64 `json:"dropped"`
	Resyncs int64 `json:"resyncs"`
}

// Rate is the throughput measured over a period.
type Rate struct {
	Period time.Duration `json:"period"`
	Bits   float64       `json:"bits_per_second"`
	Frames float64       `json:"frames_per_second"`
}

var rateUnits = [...]string{" b/s", " Kb/s", " Mb/s", " Gb/s"}

func (r Rate) String() string {
	var (
		v    = r.Bits
		unit = 0
	)
	for v >= 1e3 && unit < len(rateUnits)-1 {
		v *= 1e-3
		unit++
	}
	return fmt.Sprintf(">>> %9.1f%s %9.1f fps <<<", v, rateUnits[unit], r.Frames)
}

// Counter counts the frames and bytes received by a DAQ process.
// Counter is safe for concurrent use.
type Counter struct {
	mu sync.Mutex

	stats CounterStats
	beg   time.Time // start of the current period.
	nfr   int64     // frames received during the current period.
	nb    int64     // bytes received during the current period.
	now   func() time.Time

	frames  prometheus.Counter
	bytes   prometheus.Counter
	dropped prometheus.Counter
	resyncs prometheus.Counter
	bps     prometheus.Gauge
	fps     prometheus.Gauge
}

// NewCounter creates a new counter and registers its metrics, under the
// given namespace, with reg. A nil reg disables metrics registration.
func NewCounter(reg prometheus.Registerer, namespace string) (*Counter, error) {
	cnt := &Counter{
		now: time.Now,

		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of received frames.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_bytes_total",
			Help:      "Total number of bytes of received frames.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_bytes_total",
			Help:      "Total number of bytes dropped while reassembling frames.",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resyncs_total",
			Help:      "Total number of frame builder resynchronizations.",
		}),
		bps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_bits_per_second",
			Help:      "Throughput measured over the last period.",
		}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_frames_per_second",
			Help:      "Frame rate measured over the last period.",
		}),
	}
	cnt.beg = cnt.now()

	if reg != nil {
		for _, c := range []prometheus.Collector{
			cnt.frames, cnt.bytes, cnt.dropped, cnt.resyncs, cnt.bps, cnt.fps,
		} {
			err := reg.Register(c)
			if err != nil {
				return nil, xerrors.Errorf("daq: could not register counter metrics: %w", err)
			}
		}
	}

	return cnt, nil
}

// Add records a received frame.
func (cnt *Counter) Add(fr *mfm.Frame) {
	n := int64(fr.Header().FrameSize)

	cnt.mu.Lock()
	cnt.stats.Frames++
	cnt.stats.Bytes += n
	cnt.nfr++
	cnt.nb += n
	cnt.mu.Unlock()

	cnt.frames.Inc()
	cnt.bytes.Add(float64(n))
}

// AddBuilderStats records the dropped bytes and resynchronizations of
// a frame builder. delta holds the change since the last call.
func (cnt *Counter) AddBuilderStats(delta mfm.BuilderStats) {
	cnt.mu.Lock()
	cnt.stats.Dropped += delta.Dropped
	cnt.stats.Resyncs += delta.Resyncs
	cnt.mu.Unlock()

	cnt.dropped.Add(float64(delta.Dropped))
	cnt.resyncs.Add(float64(delta.Resyncs))
}

// Stats returns the totals of the counter.
func (cnt *Counter) Stats() CounterStats {
	cnt.mu.Lock()
	defer cnt.mu.Unlock()
	return cnt.stats
}

// Rate returns the throughput since the previous call to Rate, and starts
// a new measurement period.
func (cnt *Counter) Rate() Rate {
	cnt.mu.Lock()
	defer cnt.mu.Unlock()

	now := cnt.now()
	r := Rate{Period: now.Sub(cnt.beg)}
	if secs := r.Period.Seconds(); secs > 0 {
		r.Bits = 8 * float64(cnt.nb) / secs
		r.Frames = float64(cnt.nfr) / secs
	}
	cnt.beg = now
	cnt.nb = 0
	cnt.nfr = 0

	cnt.bps.Set(r.Bits)
	cnt.fps.Set(r.Frames)
	return r
}

// Reset clears the counter totals and starts a new measurement period.
// Exported metrics are monotonic and left untouched.
func (cnt *Counter) Reset() {
	cnt.mu.Lock()
	defer cnt.mu.Unlock()
	cnt.stats = CounterStats{}
	cnt.beg = cnt.now()
	cnt.nb = 0
	cnt.nfr = 0
}

// builderStats tracks the stats of a frame builder between two counter
// updates.
type builderStats struct {
	cnt  *Counter
	prev mfm.BuilderStats
}

func (bs *builderStats) update(cur mfm.BuilderStats) {
	if bs.cnt == nil {
		return
	}
	bs.cnt.AddBuilderStats(mfm.BuilderStats{
		Dropped: cur.Dropped - bs.prev.Dropped,
		Resyncs: cur.Resyncs - bs.prev.Resyncs,
	})
	bs.prev = cur
}
