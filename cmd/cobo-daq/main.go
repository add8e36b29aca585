// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cobo-daq receives MFM frames from CoBo boards and stores them
// into one set of files per CoBo/AsAd emitter.
//
// cobo-daq exposes its Prometheus metrics under /metrics and its
// statistics under /stats.
// A mail alert is sent when no frame arrived during a monitoring period.
package main // import "github.com/go-lpc/get/cmd/cobo-daq"

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/daq"
	"github.com/go-lpc/get/mfm"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		addr    = flag.String("addr", ":46000", "[ip]:port to listen on for MFM frames")
		web     = flag.String("web", ":8080", "[ip]:port to serve metrics and statistics on")
		odir    = flag.String("o", ".", "output directory")
		prefix  = flag.String("prefix", "CoBo", "prefix of output file names")
		runnbr  = flag.Uint("run", 0, "run number")
		maxsz   = flag.Int64("max", daq.DefaultMaxFileSize, "maximum size in bytes of output files")
		zstd    = flag.Bool("zstd", false, "compress output files with zstd")
		formats = flag.String("f", "", "comma-separated list of frame format description files")
		freq    = flag.Duration("freq", 10*time.Second, "monitoring interval")
		doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Parse()

	log.SetPrefix("cobo-daq: ")
	log.SetFlags(0)

	cfg := config{
		addr:    *addr,
		web:     *web,
		odir:    *odir,
		prefix:  *prefix,
		run:     uint32(*runnbr),
		max:     *maxsz,
		zstd:    *zstd,
		formats: *formats,
		freq:    *freq,
		pmon:    *doMon,
		lvl:     tlog.LvlInfo,
	}
	if *verbose {
		cfg.lvl = tlog.LvlDebug
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, cfg)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type config struct {
	addr    string
	web     string
	odir    string
	prefix  string
	run     uint32
	max     int64
	zstd    bool
	formats string
	freq    time.Duration
	pmon    bool
	lvl     tlog.Level
}

func run(ctx context.Context, cfg config) error {
	if cfg.pmon {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			return fmt.Errorf("could not start monitoring cobo-daq: %w", err)
		}
		f, err := os.Create(filepath.Join(cfg.odir, "cobo-daq-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file: %w", err)
		}
		defer f.Close()
		p.W = f
		p.Freq = cfg.freq

		go func() {
			err := p.Run()
			if err != nil {
				log.Printf("could not run pmon: %+v", err)
			}
		}()
		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop pmon: %+v", err)
			}
		}()
	}

	l, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return fmt.Errorf("could not listen on %q: %w", cfg.addr, err)
	}

	srv, err := newServer(l, cfg)
	if err != nil {
		_ = l.Close()
		return fmt.Errorf("could not create server: %w", err)
	}
	defer srv.close()

	web := &http.Server{
		Addr:    cfg.web,
		Handler: srv.router(),
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		log.Printf("receiving MFM frames on %q...", srv.rcv.Addr())
		return srv.rcv.Serve(ctx)
	})
	grp.Go(func() error {
		log.Printf("serving metrics on %q...", cfg.web)
		err := web.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	grp.Go(func() error {
		<-ctx.Done()
		return web.Close()
	})
	grp.Go(func() error {
		srv.monitor(ctx)
		return nil
	})

	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("could not run cobo-daq: %w", err)
	}

	return srv.close()
}

type server struct {
	reg *prometheus.Registry
	cnt *daq.Counter
	st  *daq.Storage
	rcv *daq.Receiver

	freq time.Duration

	mu     sync.Mutex
	prev   daq.CounterStats
	alerts int // number of alerts sent so far
	alert  func(subject, body string)

	once sync.Once
	err  error
}

func newServer(l net.Listener, cfg config) (*server, error) {
	dict := mfm.NewDictionary()
	err := cobo.LoadFormats(dict)
	if err != nil {
		return nil, fmt.Errorf("could not load CoBo formats: %w", err)
	}
	if cfg.formats != "" {
		for _, fname := range strings.Split(cfg.formats, ",") {
			err = dict.Load(fname)
			if err != nil {
				return nil, fmt.Errorf("could not load formats from %q: %w", fname, err)
			}
		}
	}

	err = os.MkdirAll(cfg.odir, 0755)
	if err != nil {
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}

	reg := prometheus.NewRegistry()
	cnt, err := daq.NewCounter(reg, "get")
	if err != nil {
		return nil, fmt.Errorf("could not create counter: %w", err)
	}

	msg := tlog.NewMsgStream("cobo-daq", cfg.lvl, os.Stdout)
	st := daq.NewStorage(
		daq.WithDir(cfg.odir),
		daq.WithPrefix(cfg.prefix),
		daq.WithRun(cfg.run),
		daq.WithMaxFileSize(cfg.max),
		daq.WithCompression(cfg.zstd),
		daq.WithStorageDictionary(dict),
		daq.WithStorageMsgStream(msg),
	)

	srv := &server{
		reg:  reg,
		cnt:  cnt,
		st:   st,
		freq: cfg.freq,
	}
	srv.alert = srv.alertMail
	srv.rcv = daq.NewReceiver(
		l, st.Store,
		daq.WithReceiverDictionary(dict),
		daq.WithCounter(cnt),
		daq.WithReceiverMsgStream(msg),
	)

	return srv, nil
}

func (srv *server) close() error {
	srv.once.Do(func() {
		srv.err = srv.st.Close()
	})
	return srv.err
}

func (srv *server) router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(srv.reg, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/stats", srv.handleStats).Methods("GET")
	return r
}

type statsReply struct {
	Stats daq.CounterStats `json:"stats"`
	Files []string         `json:"files"`
}

func (srv *server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(statsReply{
		Stats: srv.cnt.Stats(),
		Files: srv.st.Files(),
	})
	if err != nil {
		log.Printf("could not encode stats: %+v", err)
	}
}

func (srv *server) monitor(ctx context.Context) {
	tick := time.NewTicker(srv.freq)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			srv.check()
		}
	}
}

// check reports the throughput of the last period and raises an alert
// when no frame was received during that period.
func (srv *server) check() {
	rate := srv.cnt.Rate()
	cur := srv.cnt.Stats()
	log.Printf("%v (frames=%d, dropped=%d B)", rate, cur.Frames, cur.Dropped)

	srv.mu.Lock()
	defer srv.mu.Unlock()

	prev := srv.prev
	srv.prev = cur
	if cur.Frames != prev.Frames || cur.Frames == 0 {
		return
	}

	log.Printf("no frame received in the last %v (frames=%d)", srv.freq, cur.Frames)
	srv.alerts++

	const maxAlerts = 5
	if srv.alerts <= maxAlerts {
		srv.alert(
			fmt.Sprintf("[cobo-daq] stalled acquisition (frames=%d)", cur.Frames),
			fmt.Sprintf("frames: %d\nbytes: %d\ndropped: %d bytes\nfreq: %v",
				cur.Frames, cur.Bytes, cur.Dropped, srv.freq,
			),
		)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = splitTargets(os.Getenv("MAIL_TGTS"))
)

func (srv *server) alertMail(subject, body string) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func splitTargets(s string) []string {
	var o []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		o = append(o, v)
	}
	return o
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
