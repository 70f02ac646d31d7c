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

package keyseq

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tpaschal/edcell/keymap"
	"github.com/tpaschal/edcell/value"
)

// sliceSource replays a fixed list of keys, then reports io.EOF.
type sliceSource struct {
	events []KeyEvent
	pos    int
}

func (s *sliceSource) NextKey() (KeyEvent, error) {
	if s.pos >= len(s.events) {
		return KeyEvent{}, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func oneMap(m value.Value) ActiveMapsFunc {
	return func(BufferID) []value.Value { return []value.Value{m} }
}

func TestPrefixKeyFollowedByFunctionKey(t *testing.T) {
	global := keymap.MakeSparse()
	foo := value.SymbolValue("foo")
	if err := keymap.DefineKey(global, []value.Value{value.Integer(0x18), value.Integer('f')}, foo); err != nil {
		t.Fatal(err)
	}

	r := &Reader{ActiveMaps: oneMap(global)}
	src := &sliceSource{events: []KeyEvent{
		{Key: value.Integer(0x18), Buffer: 1},
		{Key: value.Integer('f'), Buffer: 1},
	}}

	res, err := r.ReadKeySequence(src)
	if err != nil {
		t.Fatal(err)
	}
	if res.Binding.Sym != foo.Sym {
		t.Fatalf("binding = %v, want foo", res.Binding)
	}
	if len(res.Keys) != 2 {
		t.Fatalf("keys read = %v, want 2 elements", res.Keys)
	}
}

func TestCaseFallback(t *testing.T) {
	global := keymap.MakeSparse()
	cmdA := value.SymbolValue("cmd_a")
	if err := keymap.DefineKey(global, []value.Value{value.Integer('a')}, cmdA); err != nil {
		t.Fatal(err)
	}

	r := &Reader{ActiveMaps: oneMap(global)}
	src := &sliceSource{events: []KeyEvent{{Key: value.Integer('A'), Buffer: 1}}}

	res, err := r.ReadKeySequence(src)
	if err != nil {
		t.Fatal(err)
	}
	if res.Binding.Sym != cmdA.Sym {
		t.Fatalf("uppercase 'A' with no binding = %v, want fallback to cmd_a", res.Binding)
	}
}

func TestCaseFallbackDoesNotApplyWhenUppercaseBound(t *testing.T) {
	global := keymap.MakeSparse()
	cmdA := value.SymbolValue("cmd_a")
	cmdCapA := value.SymbolValue("cmd_A")
	if err := keymap.DefineKey(global, []value.Value{value.Integer('a')}, cmdA); err != nil {
		t.Fatal(err)
	}
	if err := keymap.DefineKey(global, []value.Value{value.Integer('A')}, cmdCapA); err != nil {
		t.Fatal(err)
	}

	r := &Reader{ActiveMaps: oneMap(global)}
	src := &sliceSource{events: []KeyEvent{{Key: value.Integer('A'), Buffer: 1}}}

	res, err := r.ReadKeySequence(src)
	if err != nil {
		t.Fatal(err)
	}
	if res.Binding.Sym != cmdCapA.Sym {
		t.Fatalf("binding = %v, want cmd_A (should not fall back when 'A' is itself bound)", res.Binding)
	}
}

func TestFunctionKeyMapSplicing(t *testing.T) {
	global := keymap.MakeSparse()
	up := value.SymbolValue("up")
	if err := keymap.DefineKey(global, []value.Value{up}, value.SymbolValue("previous-line")); err != nil {
		t.Fatal(err)
	}

	fkeyMap := keymap.MakeSparse()
	seq := []value.Value{value.Integer(0x1B), value.Integer('['), value.Integer('A')}
	if err := keymap.DefineKey(fkeyMap, seq, value.Vector(up)); err != nil {
		t.Fatal(err)
	}

	r := &Reader{ActiveMaps: oneMap(global), FunctionKeyMap: fkeyMap}
	src := &sliceSource{events: []KeyEvent{
		{Key: value.Integer(0x1B), Buffer: 1},
		{Key: value.Integer('['), Buffer: 1},
		{Key: value.Integer('A'), Buffer: 1},
	}}

	res, err := r.ReadKeySequence(src)
	if err != nil {
		t.Fatal(err)
	}
	if res.Binding.IsNil() || res.Binding.Sym == nil || res.Binding.Sym.Name != "previous-line" {
		t.Fatalf("binding = %v, want previous-line via spliced `up` symbol", res.Binding)
	}
}

func TestEmptySourceReturnsZeroResult(t *testing.T) {
	global := keymap.MakeSparse()
	r := &Reader{ActiveMaps: oneMap(global)}
	res, err := r.ReadKeySequence(&sliceSource{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Keys) != 0 || !res.Binding.IsNil() {
		t.Fatalf("expected zero Result on empty source, got %+v", res)
	}
}

// delaySource injects a configurable pause before its second key, so the
// idle-echo timer has room to fire (or not).
type delaySource struct {
	events []KeyEvent
	delay  time.Duration
	pos    int
}

func (s *delaySource) NextKey() (KeyEvent, error) {
	if s.pos >= len(s.events) {
		return KeyEvent{}, io.EOF
	}
	if s.pos > 0 {
		time.Sleep(s.delay)
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func TestEchoBeginsOnlyAfterIdleDelay(t *testing.T) {
	global := keymap.MakeSparse()
	if err := keymap.DefineKey(global, []value.Value{value.Integer(0x18), value.Integer('f')}, value.SymbolValue("foo")); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var echoes [][]value.Value
	echo := func(seq []value.Value) {
		mu.Lock()
		echoes = append(echoes, seq)
		mu.Unlock()
	}

	// Fast typist: the second key lands well inside EchoKeystrokes, so
	// nothing is ever echoed.
	r := &Reader{
		ActiveMaps:     oneMap(global),
		Echo:           echo,
		EchoKeystrokes: 500 * time.Millisecond,
	}
	src := &delaySource{events: []KeyEvent{
		{Key: value.Integer(0x18), Buffer: 1},
		{Key: value.Integer('f'), Buffer: 1},
	}}
	if _, err := r.ReadKeySequence(src); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	n := len(echoes)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("echo fired %d times for a fast typist, want 0", n)
	}

	// Hesitant typist: the pause before the second key exceeds
	// EchoKeystrokes, so the pending prefix gets echoed.
	r2 := &Reader{
		ActiveMaps:     oneMap(global),
		Echo:           echo,
		EchoKeystrokes: 5 * time.Millisecond,
	}
	src2 := &delaySource{
		events: []KeyEvent{
			{Key: value.Integer(0x18), Buffer: 1},
			{Key: value.Integer('f'), Buffer: 1},
		},
		delay: 50 * time.Millisecond,
	}
	if _, err := r2.ReadKeySequence(src2); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(echoes) == 0 {
		t.Fatalf("echo never began despite the idle pause")
	}
	if len(echoes[0]) != 1 || echoes[0][0].Int != 0x18 {
		t.Fatalf("first echo = %v, want the pending prefix [0x18]", echoes[0])
	}
}

func TestEchoSuppressedInMinibuffer(t *testing.T) {
	global := keymap.MakeSparse()
	if err := keymap.DefineKey(global, []value.Value{value.Integer(0x18), value.Integer('f')}, value.SymbolValue("foo")); err != nil {
		t.Fatal(err)
	}
	fired := false
	r := &Reader{
		ActiveMaps:     oneMap(global),
		Echo:           func([]value.Value) { fired = true },
		EchoKeystrokes: time.Millisecond,
		InMinibuffer:   func() bool { return true },
	}
	src := &delaySource{
		events: []KeyEvent{
			{Key: value.Integer(0x18), Buffer: 1},
			{Key: value.Integer('f'), Buffer: 1},
		},
		delay: 20 * time.Millisecond,
	}
	if _, err := r.ReadKeySequence(src); err != nil {
		t.Fatal(err)
	}
	if fired {
		t.Fatalf("echo must stay quiet while the minibuffer is active")
	}
}
