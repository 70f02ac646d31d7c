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
	"github.com/tpaschal/edcell/keyseq"
	"github.com/tpaschal/edcell/value"
)

// MacroState accumulates the keys of a keyboard macro while it is being
// defined. Keys arrive in two stages: Append stages the keys the current
// command was invoked with, and Commit, called at the top of the next
// iteration unless a prefix argument is pending, moves staged keys onto
// the tail. Only whole key sequences are staged; Commit does not check
// whether the command that ran them succeeded.
type MacroState struct {
	tail   []value.Value
	staged []value.Value
}

// Append stages keys from the iteration that just executed.
func (m *MacroState) Append(keys []value.Value) {
	m.staged = append(m.staged, keys...)
}

// Commit moves staged keys onto the macro tail.
func (m *MacroState) Commit() {
	m.tail = append(m.tail, m.staged...)
	m.staged = nil
}

// Keys returns the committed macro body.
func (m *MacroState) Keys() []value.Value {
	return append([]value.Value{}, m.tail...)
}

// macroKeys interprets a binding that is itself a keyboard macro: a string
// binding yields one integer key per byte, a vector binding yields its
// elements. Any other binding yields nil.
func macroKeys(binding value.Value) []value.Value {
	switch binding.Kind {
	case value.KindString:
		bs := binding.Str.Bytes
		keys := make([]value.Value, len(bs))
		for i, b := range bs {
			keys[i] = value.Integer(int64(b))
		}
		return keys
	case value.KindVector:
		n := value.VectorLen(binding)
		keys := make([]value.Value, n)
		for i := 0; i < n; i++ {
			keys[i] = value.VectorRef(binding, i)
		}
		return keys
	}
	return nil
}

// replaySource layers a replay queue over the loop's real input source:
// keys pushed by an executing keyboard macro (or reinjected by the help
// reader) are consumed before any live input.
type replaySource struct {
	inner   keyseq.Source
	pending []keyseq.KeyEvent
	last    keyseq.BufferID
	live    int64 // count of keys served from the real source
}

func (s *replaySource) NextKey() (keyseq.KeyEvent, error) {
	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		s.last = ev.Buffer
		return ev, nil
	}
	ev, err := s.inner.NextKey()
	if err == nil {
		s.last = ev.Buffer
		s.live++
	}
	return ev, err
}

func (s *replaySource) liveCount() int64 { return s.live }

func (s *replaySource) push(keys []value.Value, buf keyseq.BufferID) {
	evs := make([]keyseq.KeyEvent, len(keys))
	for i, k := range keys {
		evs[i] = keyseq.KeyEvent{Key: k, Buffer: buf}
	}
	s.pending = append(evs, s.pending...)
}

func (s *replaySource) lastBuffer() keyseq.BufferID { return s.last }

// ExitEditor is returned by a command to terminate the editor with the
// given process exit code; Run hands it back to the caller untouched, so
// the process owner decides when to tear the terminal down and exit.
type ExitEditor struct {
	Code int
}

func (e ExitEditor) Error() string { return "exit" }

// KillEditor is the command-side constructor for ExitEditor.
func KillEditor(code int) error { return ExitEditor{Code: code} }
