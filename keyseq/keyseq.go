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

// Package keyseq implements read-key-sequence: the state machine that
// walks a key sequence through the active keymaps (minor-mode maps,
// buffer-local map, global map), splicing in function-key translations,
// retrying with a lowercase fallback, and restarting on a frame switch.
// It is the one layer between the raw canonical event stream (the root
// package's event encoder) and the command loop (cmdloop).
package keyseq

import (
	"io"
	"sync"
	"time"

	"github.com/tpaschal/edcell/keymap"
	"github.com/tpaschal/edcell/value"
)

// BufferID identifies the buffer (and therefore the active-maps set) that
// an event was typed against, so a frame/buffer switch mid-sequence can be
// detected.
type BufferID uint64

// KeyEvent is one raw key pulled from the event source: its canonical key
// value (an Integer for ASCII, a Symbol for anything else) and the buffer
// it was read against.
type KeyEvent struct {
	Key    value.Value
	Buffer BufferID
}

// Source supplies the next raw key event, blocking until one is available.
// It is implemented by whatever sits on top of the root package's input
// queue; keyseq itself never touches a terminal or a channel directly.
type Source interface {
	NextKey() (KeyEvent, error)
}

// EchoFunc is called with the sequence read so far whenever the echo
// policy decides to start or update the echo area. The renderer should
// append a trailing dash as the mini-prompt while a sequence is still
// incomplete; a nil seq truncates the echo area back to its pre-sequence
// length.
type EchoFunc func(seq []value.Value)

// ActiveMapsFunc returns the active keymaps for the given buffer, highest
// priority first: all minor-mode maps, then the buffer-local map, then the
// global map.
type ActiveMapsFunc func(buf BufferID) []value.Value

// Reader drives read-key-sequence. Construct one per command loop; its
// EchoKeystrokes/FunctionKeyMap fields may be changed between calls.
type Reader struct {
	ActiveMaps     ActiveMapsFunc
	FunctionKeyMap value.Value // a keymap, or value.Nil to disable function-key translation
	Echo           EchoFunc

	// EchoKeystrokes is how long the user must sit idle mid-sequence
	// before the partial sequence starts being echoed. Zero echoes
	// every key of a partial sequence immediately.
	EchoKeystrokes time.Duration

	// InMinibuffer suppresses echoing while the minibuffer is active;
	// optional.
	InMinibuffer func() bool

	lastBuffer BufferID
	haveLast   bool
}

// Result is the outcome of a ReadKeySequence call.
type Result struct {
	Keys    []value.Value // the full canonical sequence read (after fkey splicing)
	Binding value.Value   // the resolved non-keymap binding; Nil if the sequence is unbound or the source ended
}

// ReadKeySequence reads and resolves one key sequence from src. It
// returns the full (post-splicing) key sequence and its resolved binding
// once the first matching active map yields a non-prefix binding, or a
// zero-length Result if src never yields a key (input ended).
func (r *Reader) ReadKeySequence(src Source) (Result, error) {
	var buffer []value.Value // the "mock_input" replay buffer plus newly-read keys
	var bufBuf []BufferID
	pos := 0 // next unconsumed index into buffer; keys before pos are already folded into the active-map walk

	fkeyStart, fkeyEnd := 0, 0

	var echoMu sync.Mutex
	echoed := false

	echoAllowed := func() bool {
		if r.Echo == nil {
			return false
		}
		if r.InMinibuffer != nil && r.InMinibuffer() {
			return false
		}
		return true
	}

	// emitEcho updates the echo area with the partial sequence, but only
	// once echoing has begun: immediately when EchoKeystrokes is zero,
	// otherwise not until the idle timer armed in readNext has fired.
	emitEcho := func() {
		if !echoAllowed() {
			return
		}
		echoMu.Lock()
		if !echoed && r.EchoKeystrokes > 0 {
			echoMu.Unlock()
			return
		}
		echoed = true
		echoMu.Unlock()
		r.Echo(buffer[:pos])
	}

	readNext := func() (value.Value, BufferID, bool, error) {
		if pos < len(buffer) {
			k, b := buffer[pos], bufBuf[pos]
			return k, b, true, nil
		}
		// Arm the idle-echo timer while blocked mid-sequence: if the
		// user sits for EchoKeystrokes with a partial sequence pending,
		// begin echoing it. The reader goroutine is parked in NextKey
		// for the whole window, so the timer callback has the buffer
		// prefix to itself.
		var idle *time.Timer
		if pos > 0 && r.EchoKeystrokes > 0 && echoAllowed() {
			seq := buffer[:pos]
			idle = time.AfterFunc(r.EchoKeystrokes, func() {
				echoMu.Lock()
				already := echoed
				echoed = true
				echoMu.Unlock()
				if !already {
					r.Echo(seq)
				}
			})
		}
		ev, err := src.NextKey()
		if idle != nil {
			idle.Stop()
		}
		if err != nil {
			return value.Nil, 0, false, err
		}
		buffer = append(buffer, ev.Key)
		bufBuf = append(bufBuf, ev.Buffer)
		return ev.Key, ev.Buffer, true, nil
	}

	for {
		buf := r.currentBuffer(bufBuf, pos)
		maps := r.ActiveMaps(buf)
		submaps := make([]value.Value, len(maps))
		defs := make([]value.Value, len(maps))
		copy(submaps, maps)

		walked := 0
		for {
			key, evBuf, ok, err := readNext()
			if !ok {
				if err != nil && err != io.EOF {
					return Result{}, err
				}
				// EOF (or any other "no more input") means the
				// input source has ended; reported as a
				// zero-length read, not a Go error.
				return Result{}, nil
			}

			if r.haveLast && evBuf != r.lastBuffer && walked > 0 {
				// Frame/buffer switch restart: discard the
				// partial sequence, keep this event as the new
				// mock_input seed, truncate echo, and restart.
				buffer = []value.Value{key}
				bufBuf = []BufferID{evBuf}
				pos = 0
				walked = 0
				fkeyStart, fkeyEnd = 0, 0
				if r.Echo != nil {
					r.Echo(nil)
				}
				r.lastBuffer = evBuf
				break
			}
			r.lastBuffer = evBuf
			r.haveLast = true

			pos++
			walked++
			emitEcho()

			firstBinding := len(submaps)
			for i := range submaps {
				if submaps[i].IsNil() {
					continue
				}
				res := keymap.LookupKey(submaps[i], []value.Value{key})
				switch res.Kind {
				case keymap.LookupPrefix:
					submaps[i] = res.PrefixMap
					defs[i] = value.Nil
				case keymap.LookupBinding:
					submaps[i] = value.Nil
					defs[i] = res.Binding
				case keymap.LookupIncomplete:
					submaps[i] = value.Nil
					defs[i] = value.Nil
				}
				if !submaps[i].IsNil() || !defs[i].IsNil() {
					if i < firstBinding {
						firstBinding = i
					}
				}
			}

			if firstBinding < len(submaps) && submaps[firstBinding].IsNil() {
				return Result{Keys: append([]value.Value{}, buffer[:pos]...), Binding: defs[firstBinding]}, nil
			}

			anyPrefix := false
			for _, s := range submaps {
				if !s.IsNil() {
					anyPrefix = true
				}
			}
			if anyPrefix {
				continue // still inside a valid prefix in at least one map
			}

			// Unbound in every active map. Before giving up, see
			// whether the function-key map matches some suffix of
			// the sequence starting at or after fkeyStart: a
			// mid-match prefix means keep reading (this is how
			// multi-byte sequences like ESC [ A are accumulated
			// one byte at a time without the active maps ever
			// seeing a prefix binding for them); a bound vector is
			// spliced into the buffer, which is then re-walked
			// from the start as mock input. fkeyStart slides
			// forward past bytes the function-key map can make
			// nothing of, so a translatable tail after a dead
			// prefix is still found.
			fkeyKind, bound := keymap.LookupIncomplete, value.Nil
			if pos > fkeyStart {
				fkeyKind, bound = r.functionKeyStatus(buffer[fkeyStart:pos])
				for fkeyKind == keymap.LookupIncomplete && fkeyStart < pos-1 {
					fkeyStart++
					fkeyKind, bound = r.functionKeyStatus(buffer[fkeyStart:pos])
				}
			}
			if fkeyKind == keymap.LookupPrefix {
				continue
			}
			if fkeyKind == keymap.LookupBinding && bound.Kind == value.KindVector {
				r.spliceBoundVector(&buffer, &bufBuf, &fkeyStart, &fkeyEnd, pos, bound)
				pos = 0
				walked = 0
				if r.Echo != nil {
					r.Echo(nil)
				}
				break // replay the rewritten buffer from the start
			}

			if walked == 1 && key.Kind == value.KindInteger {
				if lower, ok := lowercaseFallback(key); ok {
					buffer[pos-1] = lower
					submaps = append([]value.Value{}, maps...)
					defs = make([]value.Value, len(maps))
					pos--
					continue
				}
			}

			// Truly unbound: report the whole walked prefix with a
			// Nil binding; ringing the bell for an unbound sequence
			// is the command loop's job, not this layer's.
			return Result{Keys: append([]value.Value{}, buffer[:pos]...), Binding: value.Nil}, nil
		}
	}
}

func (r *Reader) currentBuffer(bufBuf []BufferID, pos int) BufferID {
	if pos < len(bufBuf) {
		return bufBuf[pos]
	}
	if len(bufBuf) > 0 {
		return bufBuf[len(bufBuf)-1]
	}
	return r.lastBuffer
}

// functionKeyStatus reports whether seq (the bytes scanned since
// fkeyStart) is a valid-but-incomplete prefix of some binding in
// r.FunctionKeyMap (LookupPrefix, meaning keep reading), resolves to a
// binding (LookupBinding, with the bound vector returned for splicing), or
// is dead (LookupIncomplete, or FunctionKeyMap is disabled).
func (r *Reader) functionKeyStatus(seq []value.Value) (keymap.LookupKind, value.Value) {
	if r.FunctionKeyMap.IsNil() || len(seq) == 0 {
		return keymap.LookupIncomplete, value.Nil
	}
	res := keymap.LookupKey(r.FunctionKeyMap, seq)
	return res.Kind, res.Binding
}

// spliceBoundVector splices bound (a vector) into buffer in place of
// buffer[*fkeyStart:pos], and resets the scan window to the position
// right after the spliced region. This is how ESC [ A becomes the up
// symbol.
func (r *Reader) spliceBoundVector(buffer *[]value.Value, bufBuf *[]BufferID, fkeyStart, fkeyEnd *int, pos int, bound value.Value) int {
	n := value.VectorLen(bound)
	repl := make([]value.Value, n)
	for i := 0; i < n; i++ {
		repl[i] = value.VectorRef(bound, i)
	}
	newBuf := append(append(append([]value.Value{}, (*buffer)[:*fkeyStart]...), repl...), (*buffer)[pos:]...)
	newBufBuf := make([]BufferID, len(newBuf))
	var lastBuf BufferID
	if len(*bufBuf) > 0 {
		lastBuf = (*bufBuf)[len(*bufBuf)-1]
	}
	for i := range newBufBuf {
		newBufBuf[i] = lastBuf
	}
	*buffer = newBuf
	*bufBuf = newBufBuf
	newEnd := *fkeyStart + n
	*fkeyStart, *fkeyEnd = newEnd, newEnd
	return newEnd
}

// lowercaseFallback implements the case fallback: an unbound uppercase
// ASCII integer key is retried in lowercase form. Applies only to integer
// keys representing ASCII letters.
func lowercaseFallback(key value.Value) (value.Value, bool) {
	c := rune(key.Int)
	if c >= 'A' && c <= 'Z' {
		return value.Integer(int64(c - 'A' + 'a')), true
	}
	return value.Nil, false
}
