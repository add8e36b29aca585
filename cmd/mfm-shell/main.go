// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// mfm-shell is an interactive shell to browse MFM frame files.
//
// Usage: mfm-shell [FILE.mfm]
//
// Example:
//
//	$> mfm-shell ./CoBo_1_c0_a0_0.mfm
//	mfm> next
//	frame 0: type=1 rev=4 size=192 B items=16
//	mfm> event
//	Event{idx=1, time=0, cobo=0, asad=0, channels=1, samples=16}
//	mfm> quit
package main // import "github.com/go-lpc/get/cmd/mfm-shell"

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/internal/dump"
	"github.com/go-lpc/get/internal/mfmio"
	"github.com/go-lpc/get/mfm"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("mfm-shell: ")
	log.SetFlags(0)

	sh, err := newShell(os.Stdout)
	if err != nil {
		log.Fatalf("could not create shell: %+v", err)
	}
	defer sh.close()

	if len(os.Args) > 1 {
		err := sh.exec("open " + os.Args[1])
		if err != nil {
			log.Fatalf("%+v", err)
		}
	}

	err = run(sh)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(sh *shell) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	hist := filepath.Join(os.TempDir(), ".mfm-shell.history")
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("mfm> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(sh.w)
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(sh.w, "error: %v\n", err)
		}
	}
}

var errQuit = errors.New("quit")

type shell struct {
	w    io.Writer
	dict *mfm.Dictionary

	f   *mfmio.Reader
	dec *mfm.Decoder
	cur *mfm.Frame
	idx int // index of the current frame.

	cmds map[string]command
}

type command struct {
	help string
	run  func(args []string) error
}

func newShell(w io.Writer) (*shell, error) {
	dict := mfm.NewDictionary()
	err := cobo.LoadFormats(dict)
	if err != nil {
		return nil, fmt.Errorf("could not load CoBo formats: %w", err)
	}

	sh := &shell{
		w:    w,
		dict: dict,
		idx:  -1,
	}
	sh.cmds = map[string]command{
		"open":    {"open FILE: open an MFM frame file", sh.cmdOpen},
		"load":    {"load FILE: load frame formats from a description file", sh.cmdLoad},
		"formats": {"formats: list the known frame formats", sh.cmdFormats},
		"next":    {"next [N]: read the next N frames (default: 1)", sh.cmdNext},
		"frame":   {"frame: display a summary of the current frame", sh.cmdFrame},
		"dump":    {"dump [N]: display the current frame with N items (default: 10)", sh.cmdDump},
		"hex":     {"hex: display a hexadecimal dump of the current frame", sh.cmdHex},
		"event":   {"event: decode the current frame as a CoBo event", sh.cmdEvent},
		"help":    {"help: display this help message", sh.cmdHelp},
		"quit":    {"quit: exit the shell", sh.cmdQuit},
	}
	return sh, nil
}

func (sh *shell) close() error {
	if sh.f == nil {
		return nil
	}
	err := sh.f.Close()
	sh.f = nil
	sh.dec = nil
	return err
}

func (sh *shell) exec(line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}
	name := toks[0]
	if name == "exit" {
		name = "quit"
	}
	cmd, ok := sh.cmds[name]
	if !ok {
		return fmt.Errorf("unknown command %q", toks[0])
	}
	return cmd.run(toks[1:])
}

func (sh *shell) complete(line string) []string {
	var o []string
	for name := range sh.cmds {
		if strings.HasPrefix(name, line) {
			o = append(o, name)
		}
	}
	sort.Strings(o)
	return o
}

func (sh *shell) cmdOpen(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("open: expected a file name")
	}
	f, err := mfmio.Open(args[0])
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	_ = sh.close()
	sh.f = f
	sh.dec = mfm.NewDecoder(f, sh.dict)
	sh.cur = nil
	sh.idx = -1
	fmt.Fprintf(sh.w, "opened %q\n", args[0])
	return nil
}

func (sh *shell) cmdLoad(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("load: expected a file name")
	}
	err := sh.dict.Load(args[0])
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return nil
}

func (sh *shell) cmdFormats(args []string) error {
	return sh.dict.List(sh.w)
}

func (sh *shell) cmdNext(args []string) error {
	if sh.dec == nil {
		return fmt.Errorf("next: no opened file")
	}
	n, err := intArg(args, 1)
	if err != nil {
		return fmt.Errorf("next: %w", err)
	}
	for i := 0; i < n; i++ {
		var fr mfm.Frame
		err := sh.dec.Decode(&fr)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintf(sh.w, "no more frames\n")
				return nil
			}
			return fmt.Errorf("next: could not decode frame %d: %w", sh.idx+1, err)
		}
		sh.cur = &fr
		sh.idx++
		sh.summary()
	}
	return nil
}

func (sh *shell) summary() {
	hdr := sh.cur.Header()
	fmt.Fprintf(sh.w, "frame %d: type=%d rev=%d size=%d B items=%d\n",
		sh.idx, hdr.Type, hdr.Revision, sh.cur.Len(), sh.cur.ItemCount(),
	)
}

func (sh *shell) current(cmd string) error {
	if sh.cur == nil {
		return fmt.Errorf("%s: no current frame", cmd)
	}
	return nil
}

func (sh *shell) cmdFrame(args []string) error {
	if err := sh.current("frame"); err != nil {
		return err
	}
	sh.summary()
	return nil
}

func (sh *shell) cmdDump(args []string) error {
	if err := sh.current("dump"); err != nil {
		return err
	}
	n, err := intArg(args, 10)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	return dump.Frame(sh.w, sh.cur, dump.Options{Items: n})
}

func (sh *shell) cmdHex(args []string) error {
	if err := sh.current("hex"); err != nil {
		return err
	}
	return mfm.HexDump(sh.w, sh.cur.Bytes())
}

func (sh *shell) cmdEvent(args []string) error {
	if err := sh.current("event"); err != nil {
		return err
	}
	ev := cobo.NewEvent()
	err := ev.Decode(sh.cur)
	if err != nil {
		return fmt.Errorf("event: %w", err)
	}
	fmt.Fprintf(sh.w, "%v\n", ev)
	for _, ch := range ev.Channels() {
		fmt.Fprintf(sh.w, "  aget=%d chan=%2d samples=%3d min=%4d max=%4d\n",
			ch.AgetIdx, ch.ChanIdx, ch.SampleCount(), ch.Min(), ch.Max(),
		)
	}
	return nil
}

func (sh *shell) cmdHelp(args []string) error {
	names := make([]string, 0, len(sh.cmds))
	for name := range sh.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sh.w, "  %s\n", sh.cmds[name].help)
	}
	return nil
}

func (sh *shell) cmdQuit(args []string) error {
	return errQuit
}

func intArg(args []string, def int) (int, error) {
	switch len(args) {
	case 0:
		return def, nil
	case 1:
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", args[0], err)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("too many arguments")
	}
}
