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

package cmdloop

import (
	"io"
	"testing"
	"time"

	"github.com/tpaschal/edcell/keymap"
	"github.com/tpaschal/edcell/keyseq"
	"github.com/tpaschal/edcell/value"
)

// keySource replays scripted raw keys through a real keyseq.Reader, so
// macro splicing is exercised end to end rather than through a scripted
// Result list.
type keySource struct {
	keys []value.Value
	pos  int
}

func (s *keySource) NextKey() (keyseq.KeyEvent, error) {
	if s.pos >= len(s.keys) {
		return keyseq.KeyEvent{}, io.EOF
	}
	k := s.keys[s.pos]
	s.pos++
	return keyseq.KeyEvent{Key: k, Buffer: 1}, nil
}

func TestVectorBindingReplaysAsKeyboardMacro(t *testing.T) {
	global := keymap.MakeSparse()
	cmdA := value.SymbolValue("cmd-a")
	if err := keymap.DefineKey(global, []value.Value{value.Integer('a')}, cmdA); err != nil {
		t.Fatal(err)
	}
	// 'm' is bound to the macro [a a]: running it must execute cmd-a twice.
	if err := keymap.DefineKey(global, []value.Value{value.Integer('m')}, value.Vector(value.Integer('a'), value.Integer('a'))); err != nil {
		t.Fatal(err)
	}

	disp := &recordingDispatcher{}
	loop := &Loop{
		Reader: &keyseq.Reader{ActiveMaps: func(keyseq.BufferID) []value.Value {
			return []value.Value{global}
		}},
		Source:     &keySource{keys: []value.Value{value.Integer('m')}},
		Dispatcher: disp,
		Ctx:        NewContext(),
	}
	if err := loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(disp.ran) != 2 || disp.ran[0] != "cmd-a" || disp.ran[1] != "cmd-a" {
		t.Fatalf("ran = %v, want cmd-a twice via the macro", disp.ran)
	}
}

func TestStringBindingReplaysAsKeyboardMacro(t *testing.T) {
	global := keymap.MakeSparse()
	cmdA := value.SymbolValue("cmd-a")
	cmdB := value.SymbolValue("cmd-b")
	if err := keymap.DefineKey(global, []value.Value{value.Integer('a')}, cmdA); err != nil {
		t.Fatal(err)
	}
	if err := keymap.DefineKey(global, []value.Value{value.Integer('b')}, cmdB); err != nil {
		t.Fatal(err)
	}
	if err := keymap.DefineKey(global, []value.Value{value.Integer('m')}, value.NewText("ab")); err != nil {
		t.Fatal(err)
	}

	disp := &recordingDispatcher{}
	loop := &Loop{
		Reader: &keyseq.Reader{ActiveMaps: func(keyseq.BufferID) []value.Value {
			return []value.Value{global}
		}},
		Source:     &keySource{keys: []value.Value{value.Integer('m')}},
		Dispatcher: disp,
		Ctx:        NewContext(),
	}
	if err := loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(disp.ran) != 2 || disp.ran[0] != "cmd-a" || disp.ran[1] != "cmd-b" {
		t.Fatalf("ran = %v, want [cmd-a cmd-b] via the string macro", disp.ran)
	}
}

func TestMacroDefinitionCommitsExecutedKeys(t *testing.T) {
	cmdA := value.SymbolValue("cmd-a")
	disp := &recordingDispatcher{}
	loop := &Loop{
		Reader: &scriptedReader{results: []keyseq.Result{
			{Keys: []value.Value{value.Integer('a')}, Binding: cmdA},
			{Keys: []value.Value{value.Integer('b')}, Binding: cmdA},
		}},
		Source:     nullSource{},
		Dispatcher: disp,
		Ctx:        NewContext(),
	}
	loop.Ctx.Macro = &MacroState{}
	if err := loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Each iteration commits the previous iteration's keys before its
	// own read, so both executed keys end up on the tail.
	keys := loop.Ctx.Macro.Keys()
	if len(keys) != 2 || keys[0].Int != 'a' || keys[1].Int != 'b' {
		t.Fatalf("committed macro keys = %v, want ['a' 'b']", keys)
	}
}

func TestMacroCommitDeferredWhilePrefixArgPending(t *testing.T) {
	cmdA := value.SymbolValue("cmd-a")
	loop := &Loop{
		Reader: &scriptedReader{results: []keyseq.Result{
			{Keys: []value.Value{value.Integer('a')}, Binding: cmdA},
		}},
		Source: nullSource{},
		Dispatcher: dispatcherFunc(func(b value.Value) (*Command, bool) {
			return &Command{Name: b, Run: func(c *Context) error {
				c.PrefixArg = value.Integer(4)
				return nil
			}}, true
		}),
		Ctx: NewContext(),
	}
	loop.Ctx.Macro = &MacroState{}
	if err := loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The command set a prefix arg, so the next iteration must not yet
	// commit its keys.
	if keys := loop.Ctx.Macro.Keys(); len(keys) != 0 {
		t.Fatalf("keys committed despite a pending prefix arg: %v", keys)
	}
}

func TestUnboundSequenceResetsMacroDefinition(t *testing.T) {
	loop := &Loop{
		Reader: &scriptedReader{results: []keyseq.Result{
			{Keys: []value.Value{value.Integer('z')}, Binding: value.Nil},
		}},
		Source:     nullSource{},
		Dispatcher: &recordingDispatcher{},
		Ctx:        NewContext(),
	}
	loop.Ctx.Macro = &MacroState{}
	loop.Ctx.Bell = func() {}
	if err := loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loop.Ctx.Macro != nil {
		t.Fatalf("an unbound sequence should reset defining-macro state")
	}
}

func TestExitEditorPassesThroughRun(t *testing.T) {
	exitCmd := value.SymbolValue("kill-editor")
	loop := &Loop{
		Reader: &scriptedReader{results: []keyseq.Result{
			{Keys: []value.Value{value.Integer('q')}, Binding: exitCmd},
		}},
		Source: nullSource{},
		Dispatcher: dispatcherFunc(func(b value.Value) (*Command, bool) {
			return &Command{Name: b, Run: func(*Context) error { return KillEditor(3) }}, true
		}),
		Ctx: NewContext(),
	}
	err := loop.Run()
	exit, ok := err.(ExitEditor)
	if !ok || exit.Code != 3 {
		t.Fatalf("Run = %v, want ExitEditor{3}", err)
	}
}

func TestAutosaveDelayScalesWithFloor(t *testing.T) {
	if d := AutosaveDelay(0); d != 4*time.Second {
		t.Fatalf("AutosaveDelay(0) = %v, want the 4s floor", d)
	}
	small := AutosaveDelay(1 << 10)
	big := AutosaveDelay(1 << 24)
	if small != 4*time.Second {
		t.Fatalf("AutosaveDelay(1K) = %v, want the 4s floor", small)
	}
	if big <= small {
		t.Fatalf("AutosaveDelay should grow with buffer size: %v vs %v", big, small)
	}
}

func TestIdleAutosaveFiresWhileBlockedReading(t *testing.T) {
	saved := make(chan struct{}, 1)
	cmdA := value.SymbolValue("cmd-a")

	// The wrapped reader below holds the read open long enough for the
	// idle timer to fire, then ends the input.
	ctx := NewContext()
	ctx.NumNonmacroInputChars = 1 // something changed since the last save
	ctx.AutoSave = func() error {
		select {
		case saved <- struct{}{}:
		default:
		}
		return nil
	}

	loop := &Loop{
		Reader: &scriptedReader{results: []keyseq.Result{
			{Keys: []value.Value{value.Integer('a')}, Binding: cmdA},
		}},
		Source:            nullSource{},
		Dispatcher:        &recordingDispatcher{},
		Ctx:               ctx,
		IdleAutosaveAfter: func() time.Duration { return time.Millisecond },
	}
	// scriptedReader returns instantly, so make the read linger: wrap it.
	slow := loop.Reader
	loop.Reader = readerFunc(func(src keyseq.Source) (keyseq.Result, error) {
		time.Sleep(20 * time.Millisecond)
		return slow.ReadKeySequence(src)
	})

	if err := loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-saved:
	case <-time.After(time.Second):
		t.Fatalf("idle autosave never fired while blocked in the read")
	}
	loop.saveMu.Lock()
	defer loop.saveMu.Unlock()
	if ctx.LastAutoSave != ctx.NumNonmacroInputChars {
		t.Fatalf("LastAutoSave = %d, want %d", ctx.LastAutoSave, ctx.NumNonmacroInputChars)
	}
}

type readerFunc func(keyseq.Source) (keyseq.Result, error)

func (f readerFunc) ReadKeySequence(src keyseq.Source) (keyseq.Result, error) { return f(src) }
