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

// Package cmdloop implements the command loop: the top-level read/execute
// cycle, its recursive-edit stack, prefix-argument handling, keyboard
// macros, autosave/GC timing, the three fast-path commands, help-char
// handling, and quit propagation. The undo substream lives alongside it
// in undo.go since the command loop is the only caller that inserts undo
// boundaries.
//
// The loop's shape is adapted from tcell's tScreen.inputLoop (tscreen.go),
// generalized from "read terminal bytes" to "read a resolved key-sequence
// binding and execute it": each iteration checks a quit channel without
// blocking, then reads synchronously while an idle timer waits to fire
// autosave.
package cmdloop

import (
	"sync"
	"time"

	"github.com/tpaschal/edcell/keyseq"
	"github.com/tpaschal/edcell/value"
)

// Command is one interactive command the loop can execute: a symbol name
// for identity comparisons (the three fast paths, last_command/this_command)
// plus the Go function that performs the actual effect.
type Command struct {
	Name value.Value // a Symbol
	Run  func(ctx *Context) error
}

// Dispatcher resolves a keymap binding to a runnable Command. Unresolved
// autoload stubs are the dispatcher's concern, not the loop's; string and
// vector bindings never reach it (the loop replays them as keyboard
// macros itself).
type Dispatcher interface {
	Resolve(binding value.Value) (*Command, bool)
}

// Context is the editor-global state the loop threads through every
// iteration, bundled explicitly rather than held in package-level
// variables so multiple editor instances (and concurrent tests) never
// share mutable state.
type Context struct {
	Level int // command_loop_level: recursive-edit depth

	LastCommand value.Value
	ThisCommand value.Value

	PrefixArg        value.Value // prefix_arg: queued for the next command
	CurrentPrefixArg value.Value // current_prefix_arg: what the running command sees

	NumInputKeys          int64
	NumNonmacroInputChars int64
	LastAutoSave          int64

	Undo *UndoList

	// Macro is non-nil while a keyboard macro is being defined; keys are
	// committed to its tail at the top of each iteration.
	Macro *MacroState

	Bell         func()
	AutoSave     func() error
	GC           func()
	HelpChar     value.Value
	HelpForm     func() (string, bool)
	DisplayHelp  func(text string)
	WindowConfig func() (save func())

	// SyncBuffer makes the current buffer follow the selected window's
	// buffer at the top of each iteration; optional.
	SyncBuffer func()

	// DrainWarnings flushes any pending resource-exhaustion warnings
	// before the next read; optional.
	DrainWarnings func()

	// ConsedSinceGC and GCThreshold drive the post-autosave collection:
	// when no input is pending and ConsedSinceGC() exceeds half of
	// GCThreshold, GC runs.
	ConsedSinceGC func() int64
	GCThreshold   int64

	quit chan struct{}
}

// NewContext returns a zero-valued Context ready to drive a Loop.
func NewContext() *Context {
	return &Context{
		LastCommand:      value.Nil,
		ThisCommand:      value.Nil,
		PrefixArg:        value.Nil,
		CurrentPrefixArg: value.Nil,
		Undo:             &UndoList{},
		quit:             make(chan struct{}, 1),
	}
}

// RequestQuit is the async entry point a signal handler calls: it leaves
// a pending quit token that the loop observes at the start of its next
// iteration. It does not interrupt a read that is already blocking.
func (c *Context) RequestQuit() {
	select {
	case c.quit <- struct{}{}:
	default:
	}
}

// The three commands the loop special-cases by symbol identity: when no
// input is pending, the loop runs them without first inserting an undo
// boundary. The loop has no redisplay step of its own to bypass.
var (
	ForwardChar       = value.SymbolValue("forward-char")
	BackwardChar      = value.SymbolValue("backward-char")
	SelfInsertCommand = value.SymbolValue("self-insert-command")
)

// RecursiveEditExit is returned by a Command's Run to signal that the
// innermost recursive-edit level should return normally
// (exit-recursive-edit) or be aborted, escalating to a quit in the
// enclosing level (abort-recursive-edit).
type RecursiveEditExit struct {
	Abort bool
}

func (RecursiveEditExit) Error() string { return "recursive-edit exit" }

// QuitError is the value a quit (user interrupt) unwinds as.
type QuitError struct{}

func (QuitError) Error() string { return "quit" }

// Reader is the subset of keyseq.Reader the loop depends on, narrowed to
// an interface so tests can substitute a scripted source without a real
// keymap/value graph wired end to end.
type Reader interface {
	ReadKeySequence(src keyseq.Source) (keyseq.Result, error)
}

// Loop is the command loop itself: construct one per editor session,
// call Run to enter the top-level recursive-edit, and RequestQuit
// asynchronously to unwind it.
type Loop struct {
	Reader     Reader
	Source     keyseq.Source
	Dispatcher Dispatcher
	Ctx        *Context

	// IdleAutosaveAfter returns how long the user must sit idle before
	// autosave fires; callers typically compute it from buffer size with
	// AutosaveDelay. Nil (or a zero return) disables autosave.
	IdleAutosaveAfter func() time.Duration

	PendingInput func() bool // true if more input is already queued (suppresses the fast-path + autosave pauses)

	replay *replaySource
	saveMu sync.Mutex // serializes the idle-timer autosave against the loop
}

// src wraps the loop's Source exactly once with the macro-replay layer, so
// keyboard-macro bindings can splice their keys ahead of live input.
func (l *Loop) src() *replaySource {
	if l.replay == nil {
		l.replay = &replaySource{inner: l.Source}
	}
	return l.replay
}

// AutosaveDelay computes the idle delay before autosave for a buffer of
// the given size: roughly logarithmic in buffer size, never below four
// seconds.
func AutosaveDelay(bufferSize int) time.Duration {
	secs := 4
	for n := bufferSize; n >= 1<<14; n >>= 2 {
		secs++
	}
	return time.Duration(secs) * time.Second
}

// PushRecursiveEdit enters a nested command loop: it increments Level,
// runs the read/execute cycle until a Command returns RecursiveEditExit
// or the loop's Source is exhausted, and restores Level on the way out.
// A non-aborting exit returns nil; an aborting exit escalates to
// QuitError in the *caller's* frame.
func (l *Loop) PushRecursiveEdit() error {
	l.Ctx.Level++
	defer func() { l.Ctx.Level-- }()

	for {
		ran, err := l.step()
		if err != nil {
			if exit, ok := err.(RecursiveEditExit); ok {
				if exit.Abort {
					return QuitError{}
				}
				return nil
			}
			return err
		}
		if !ran {
			return nil // input source ended
		}
	}
}

// ExitRecursiveEdit and AbortRecursiveEdit are the two throw targets of
// a recursive edit's catch frame: a Command's Run returns one of these to
// unwind exactly one level.
func ExitRecursiveEdit() error  { return RecursiveEditExit{Abort: false} }
func AbortRecursiveEdit() error { return RecursiveEditExit{Abort: true} }

// Run enters the top-level loop (command_loop_level == 0) and runs until
// the input source is exhausted or a top-level throw occurs; this catch
// frame is distinct from the nested recursive-edit catches
// PushRecursiveEdit installs.
func (l *Loop) Run() error {
	for {
		ran, err := l.step()
		if err != nil {
			if _, ok := err.(RecursiveEditExit); ok {
				continue // a stray exit/abort at top level is absorbed
			}
			if _, ok := err.(QuitError); ok {
				l.ring()
				continue // report the quit and keep reading
			}
			return err
		}
		if !ran {
			return nil
		}
	}
}

// step performs exactly one iteration of the read/execute cycle. It
// returns ran=false when read_key_sequence yields a zero-length result
// (the input source has ended).
func (l *Loop) step() (ran bool, err error) {
	select {
	case <-l.Ctx.quit:
		return true, QuitError{}
	default:
	}

	// Commit keys executed by the previous iteration to the macro being
	// defined, unless a prefix arg is still pending over it.
	if l.Ctx.Macro != nil && l.Ctx.PrefixArg.IsNil() {
		l.Ctx.Macro.Commit()
	}

	if l.Ctx.SyncBuffer != nil {
		l.Ctx.SyncBuffer()
	}
	if l.Ctx.DrainWarnings != nil {
		l.Ctx.DrainWarnings()
	}

	// While blocked reading, an idle timer fires autosave (and, if
	// enough consing has accumulated, a collection) the moment the user
	// has been away long enough.
	idle := l.armIdleAutosave()
	liveBefore := l.src().liveCount()
	res, rerr := l.Reader.ReadKeySequence(l.src())
	if idle != nil {
		idle.Stop()
	}
	if rerr != nil {
		return false, rerr
	}
	if len(res.Keys) == 0 {
		return false, nil // 0 keys read: input source ended
	}
	l.Ctx.NumInputKeys++
	l.saveMu.Lock()
	l.Ctx.NumNonmacroInputChars += l.src().liveCount() - liveBefore
	l.saveMu.Unlock()
	if l.Ctx.Macro != nil {
		l.Ctx.Macro.Append(res.Keys)
	}

	if l.helpCharPressed(res) {
		l.runHelp()
		return true, nil
	}

	if res.Binding.IsNil() {
		l.ring() // unbound sequence: bell, and defining-macro state resets
		l.Ctx.Macro = nil
		return true, nil
	}

	// A binding that is itself a string or vector is a keyboard macro:
	// its elements replay ahead of live input.
	if queued := macroKeys(res.Binding); queued != nil {
		l.src().push(queued, l.src().lastBuffer())
		return true, nil
	}

	cmd, ok := l.Dispatcher.Resolve(res.Binding)
	if !ok {
		l.ring()
		l.Ctx.Macro = nil
		return true, nil
	}
	l.Ctx.ThisCommand = cmd.Name

	fastPath := l.isFastPath(cmd.Name) && !l.pendingInput()
	if !fastPath {
		if l.Ctx.PrefixArg.IsNil() {
			l.Ctx.Undo.UndoBoundary()
		}
	}

	l.Ctx.CurrentPrefixArg = l.Ctx.PrefixArg
	runErr := cmd.Run(l.Ctx)

	if l.Ctx.PrefixArg == l.Ctx.CurrentPrefixArg {
		// the command did not set a new prefix arg: rotate and clear
		l.Ctx.LastCommand = l.Ctx.ThisCommand
		l.Ctx.PrefixArg = value.Nil
	}

	return true, runErr
}

// armIdleAutosave starts the idle timer for this read, or returns nil when
// autosave is disabled, input is already pending, or nothing has changed
// since the last save.
func (l *Loop) armIdleAutosave() *time.Timer {
	if l.IdleAutosaveAfter == nil || l.Ctx.AutoSave == nil {
		return nil
	}
	if l.pendingInput() {
		return nil
	}
	l.saveMu.Lock()
	dirty := l.Ctx.NumNonmacroInputChars != l.Ctx.LastAutoSave
	l.saveMu.Unlock()
	if !dirty {
		return nil
	}
	d := l.IdleAutosaveAfter()
	if d <= 0 {
		return nil
	}
	return time.AfterFunc(d, func() {
		if err := l.Ctx.AutoSave(); err != nil {
			return
		}
		l.saveMu.Lock()
		l.Ctx.LastAutoSave = l.Ctx.NumNonmacroInputChars
		l.saveMu.Unlock()
		if l.Ctx.GC != nil && !l.pendingInput() && l.gcDue() {
			l.Ctx.GC()
		}
	})
}

func (l *Loop) gcDue() bool {
	if l.Ctx.ConsedSinceGC == nil || l.Ctx.GCThreshold <= 0 {
		return true
	}
	return l.Ctx.ConsedSinceGC() > l.Ctx.GCThreshold/2
}

func (l *Loop) isFastPath(name value.Value) bool {
	if name.Sym == nil {
		return false
	}
	switch name.Sym {
	case ForwardChar.Sym, BackwardChar.Sym, SelfInsertCommand.Sym:
		return true
	}
	return false
}

func (l *Loop) pendingInput() bool {
	if l.PendingInput == nil {
		return false
	}
	return l.PendingInput()
}

func (l *Loop) ring() {
	if l.Ctx.Bell != nil {
		l.Ctx.Bell()
	}
}

func (l *Loop) helpCharPressed(res keyseq.Result) bool {
	if l.Ctx.HelpChar.IsNil() || l.Ctx.HelpForm == nil {
		return false
	}
	if len(res.Keys) != 1 {
		return false
	}
	k := res.Keys[0]
	return valueEqual(k, l.Ctx.HelpChar)
}

// runHelp handles the help character: save window config, evaluate the
// help form, display its text, read one more character, restore the
// window config. SPC reads another character; anything else is reinjected
// so the next read sees it first.
func (l *Loop) runHelp() {
	var restore func()
	if l.Ctx.WindowConfig != nil {
		restore = l.Ctx.WindowConfig()
	}
	defer func() {
		if restore != nil {
			restore()
		}
	}()

	text, ok := l.Ctx.HelpForm()
	if !ok {
		return
	}
	if l.Ctx.DisplayHelp != nil {
		l.Ctx.DisplayHelp(text)
	}

	for {
		ev, err := l.src().NextKey()
		if err != nil {
			return
		}
		if ev.Key.Kind == value.KindInteger && ev.Key.Int == ' ' {
			continue // SPC: read another character
		}
		// anything else is reinjected for the next read to see
		l.src().push([]value.Value{ev.Key}, ev.Buffer)
		return
	}
}

func valueEqual(a, b value.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case value.KindInteger:
		return a.Int == b.Int
	case value.KindSymbol:
		return a.Sym == b.Sym
	case value.KindNil:
		return true
	}
	return false
}
