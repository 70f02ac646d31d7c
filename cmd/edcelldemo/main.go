// Copyright 2026 The EdCell Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command edcelldemo wires the full pipeline end to end: tcell's
// terminfo/tty back end -> event encoder (keyencode.go) ->
// input queue (ring.go) -> key-sequence reader (keyseq) -> keymap lookup
// (keymap) -> command loop (cmdloop), painting a single-line editable
// buffer onto one frame (frame). It is intentionally small: a proof that
// the packages compose, not a real editor.
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/tpaschal/edcell"
	"github.com/tpaschal/edcell/cmdloop"
	"github.com/tpaschal/edcell/frame"
	"github.com/tpaschal/edcell/keymap"
	"github.com/tpaschal/edcell/keyseq"
	"github.com/tpaschal/edcell/value"
)

// lineBuffer is the minimal buffer-text-editing collaborator the core
// deliberately does not provide; it exists only so the demo's commands
// and undo substream have something concrete to operate on.
type lineBuffer struct {
	runes []rune
	point int
}

func (b *lineBuffer) InsertAt(pos int, text string) int {
	r := []rune(text)
	b.runes = append(b.runes[:pos], append(append([]rune{}, r...), b.runes[pos:]...)...)
	return pos + len(r)
}

func (b *lineBuffer) DeleteRange(beg, end int) {
	b.runes = append(b.runes[:beg], b.runes[end:]...)
}

func (b *lineBuffer) RestoreUnmodified(hi, lo int64) bool { return false }

func main() {
	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("edcelldemo: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("edcelldemo: init: %v", err)
	}

	frames := frame.NewFrameSet()
	fr := frames.MakeFrame(false)
	cols, rows := screen.Size()
	fr.ChangeSize(rows, cols, false)
	fr.MakeVisible()

	buf := &lineBuffer{}

	// Global keymap: self-insert-command is the fallback for plain
	// ASCII (wired per-codepoint below), arrow keys move point, and
	// C-x C-c quits.
	global := keymap.MakeSparse()
	ctrlX := keymap.MakeSparse()
	mustDefine(global, []value.Value{value.Integer(0x18)}, ctrlX) // C-x
	mustDefine(ctrlX, []value.Value{value.Integer(0x03)}, value.SymbolValue("quit"))
	mustDefine(global, []value.Value{value.SymbolValue("up")}, value.SymbolValue("backward-char"))
	mustDefine(global, []value.Value{value.SymbolValue("down")}, value.SymbolValue("forward-char"))
	mustDefine(global, []value.Value{value.SymbolValue("left")}, value.SymbolValue("backward-char"))
	mustDefine(global, []value.Value{value.SymbolValue("right")}, value.SymbolValue("forward-char"))
	for ch := rune(0x20); ch < 0x7f; ch++ {
		mustDefine(global, []value.Value{value.Integer(int64(ch))}, value.SymbolValue("self-insert-command"))
	}

	cache := edcell.NewSymbolCache()
	edcell.RegisterKeyEncoding(cache)

	ctx := cmdloop.NewContext()
	// Screen exposes no audible-bell primitive; the demo has nothing to
	// ring, so an unbound key or a quit just logs instead.
	ctx.Bell = func() { log.Print("edcelldemo: (bell)") }

	ring := edcell.NewEventRing(256)
	pump := &edcell.InputPump{
		Ring:     ring,
		QuitChar: 0x07, // Ctrl-G: out-of-band, never enters the ring
		QuitFunc: ctx.RequestQuit,
	}

	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			if ek, ok := ev.(*tcell.EventKey); ok {
				pump.Post(ek)
				continue
			}
			if _, ok := ev.(*tcell.EventResize); ok {
				cols, rows := screen.Size()
				fr.ChangeSize(rows, cols, false)
			}
		}
	}()

	src := &ringSource{pump: pump, cache: cache}

	reader := &keyseq.Reader{
		ActiveMaps: func(keyseq.BufferID) []value.Value {
			return []value.Value{global}
		},
		FunctionKeyMap: value.Nil, // the encoder emits symbols directly; no ESC-sequence splicing needed
	}

	dispatcher := &demoDispatcher{
		forward: cmdloop.Command{
			Name: cmdloop.ForwardChar,
			Run: func(c *cmdloop.Context) error {
				if buf.point < len(buf.runes) {
					buf.point++
				}
				render(fr, buf)
				flush(screen, fr)
				return nil
			},
		},
		backward: cmdloop.Command{
			Name: cmdloop.BackwardChar,
			Run: func(c *cmdloop.Context) error {
				if buf.point > 0 {
					buf.point--
				}
				render(fr, buf)
				flush(screen, fr)
				return nil
			},
		},
		selfInsert: cmdloop.Command{
			Name: cmdloop.SelfInsertCommand,
			Run: func(c *cmdloop.Context) error {
				// Command.Run only receives ctx, not the key that resolved
				// to it, so the character comes from src's record of the
				// last key it handed to the reader (src.lastKey) rather
				// than from the Command itself.
				if src.lastKey.Kind != value.KindInteger {
					return nil
				}
				ch := rune(src.lastKey.Int)
				pos := buf.InsertAt(buf.point, string(ch))
				c.Undo.RecordInsert(buf.point, pos-buf.point)
				buf.point = pos
				render(fr, buf)
				flush(screen, fr)
				return nil
			},
		},
		quitCmd: cmdloop.Command{
			Name: value.SymbolValue("quit"),
			// cmdloop.QuitError models a quit *signal*: Loop.Run rings
			// the bell and keeps reading when it sees one, it never
			// exits the loop. C-x C-c instead needs to actually end the
			// program, so it returns ExitEditor, which Run hands back
			// untouched.
			Run: func(c *cmdloop.Context) error {
				return cmdloop.KillEditor(0)
			},
		},
	}

	loop := &cmdloop.Loop{
		Reader:     reader,
		Source:     src,
		Dispatcher: dispatcher,
		Ctx:        ctx,
	}

	render(fr, buf)
	flush(screen, fr)

	err = loop.Run()
	screen.Fini()
	var exit cmdloop.ExitEditor
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}
	if err != nil {
		log.Printf("edcelldemo: %v", err)
		os.Exit(-1)
	}
}

// demoDispatcher resolves the handful of symbols the demo's keymap binds
// to the Command each names.
type demoDispatcher struct {
	forward    cmdloop.Command
	backward   cmdloop.Command
	selfInsert cmdloop.Command
	quitCmd    cmdloop.Command
}

func (d *demoDispatcher) Resolve(binding value.Value) (*cmdloop.Command, bool) {
	if binding.Kind != value.KindSymbol {
		return nil, false
	}
	switch binding.Sym.Name {
	case "forward-char":
		return &d.forward, true
	case "backward-char":
		return &d.backward, true
	case "self-insert-command":
		return &d.selfInsert, true
	case "quit":
		return &d.quitCmd, true
	}
	return nil, false
}

func render(fr *frame.Frame, buf *lineBuffer) {
	fr.Desired.ClearRow(0)
	for i, ch := range buf.runes {
		fr.Desired.SetGlyph(0, i, ch, 0)
	}
}

func flush(screen tcell.Screen, fr *frame.Frame) {
	for c := 0; c < fr.Desired.Width; c++ {
		g := fr.Desired.At(0, c)
		screen.SetCell(c, 0, tcell.StyleDefault, g.Rune())
	}
	screen.ShowCursor(fr.CursorX, fr.CursorY)
}

func mustDefine(km value.Value, key []value.Value, def value.Value) {
	if err := keymap.DefineKey(km, key, def); err != nil {
		log.Fatalf("edcelldemo: define-key: %v", err)
	}
}

// ringSource adapts the root package's InputPump into a keyseq.Source: it
// decodes each EventKey handed out by GetEvent via EncodeKeyEvent before
// passing it to the key-sequence reader. The out-of-band quit character,
// which GetEvent surfaces as the next event with the quit flag cleared,
// becomes a cmdloop.QuitError so Loop.Run's quit handling sees it the same
// way it would see RequestQuit.
type ringSource struct {
	pump    *edcell.InputPump
	cache   *edcell.SymbolCache
	lastKey value.Value
}

func (s *ringSource) NextKey() (keyseq.KeyEvent, error) {
	for {
		ev, err := s.pump.GetEvent(context.Background())
		if err != nil {
			return keyseq.KeyEvent{}, err
		}
		ek, ok := ev.(*tcell.EventKey)
		if !ok {
			continue // mouse/resize events don't feed the key-sequence reader
		}
		r := ek.Rune()
		if ek.Key() != tcell.KeyRune {
			r = rune(ek.Key())
		}
		if ek.Key() <= tcell.KeyRune && r == s.pump.QuitChar {
			return keyseq.KeyEvent{}, cmdloop.QuitError{}
		}
		v := edcell.EncodeKeyEvent(ek, s.cache)
		if v.IsNil() {
			continue
		}
		s.lastKey = v
		return keyseq.KeyEvent{Key: v}, nil
	}
}
