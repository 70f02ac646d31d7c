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

// This file builds the event encoder on top of tcell's EventKey/
// EventMouse/ButtonMask: the modified-symbol cache, the scrollbar-click and
// mouse-click encoders, and single-slot mouse-movement coalescing.
package edcell

import (
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/tpaschal/edcell/value"
)

// Modifiers is the canonical event-modifier bitset -- exactly {Ctrl,
// Meta, Shift, Up} -- kept distinct from tcell's
// terminal-level ModMask, which additionally has ModAlt and is consumed
// before encoding, not after.
type Modifiers uint8

const (
	CanonCtrl Modifiers = 1 << iota
	CanonMeta
	CanonShift
	CanonUp
)

// canonPrefixOrder is the fixed C, M, S, U prefix ordering, matching
// what the keymap package's CanonicalizeModifiers canonicalizes to.
var canonPrefixOrder = []struct {
	bit    Modifiers
	letter byte
}{
	{CanonCtrl, 'C'},
	{CanonMeta, 'M'},
	{CanonShift, 'S'},
	{CanonUp, 'U'},
}

func canonicalModifierPrefix(m Modifiers) string {
	s := ""
	for _, p := range canonPrefixOrder {
		if m&p.bit != 0 {
			s += string(p.letter) + "-"
		}
	}
	return s
}

// SymKind discriminates which static base-name table a modify_event_symbol
// cache slot belongs to -- function keys (indexed by tcell.Key value)
// versus mouse buttons (indexed by button number).
type SymKind int

const (
	SymKindFunctionKey SymKind = iota
	SymKindMouseButton
)

// modifierCombos bounds the secondary per-modifier-combination vector a
// cache slot grows on first modified lookup: 2^(number of Modifiers bits).
const modifierCombos = 1 << 4

// symCacheSlot is one base-index slot: unset until first use, then either
// just the bare unmodified symbol or (once a modified lookup occurs) also
// a secondary vector of length modifierCombos indexed by modifier bitset.
type symCacheSlot struct {
	plain    *value.Symbol
	withMods []*value.Symbol
}

// SymbolCache implements modify_event_symbol's memoization: a per-kind
// vector of length nBase, each slot initially empty.
type SymbolCache struct {
	mu     sync.Mutex
	tables map[SymKind][]symCacheSlot
	names  map[SymKind]func(base int) string
}

// NewSymbolCache returns an empty cache; call Register for each SymKind
// before looking anything up.
func NewSymbolCache() *SymbolCache {
	return &SymbolCache{
		tables: make(map[SymKind][]symCacheSlot),
		names:  make(map[SymKind]func(int) string),
	}
}

// Register installs the static base-name table for kind (e.g. the
// tcell.Key-indexed function-key names such as "up"/"down"/"f1", or the
// button-number-indexed mouse names) and preallocates its cache vector to
// nBase slots.
func (c *SymbolCache) Register(kind SymKind, nBase int, nameFn func(base int) string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[kind] = make([]symCacheSlot, nBase)
	c.names[kind] = nameFn
}

// ModifyEventSymbol returns the canonical modifier-qualified symbol for
// (kind, base, mods), computing and caching it on first use. Returns
// value.Nil if kind was never Register-ed or base is out of range.
func (c *SymbolCache) ModifyEventSymbol(kind SymKind, base int, mods Modifiers) value.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	table := c.tables[kind]
	if base < 0 || base >= len(table) {
		return value.Nil
	}
	slot := &table[base]
	if slot.plain == nil {
		slot.plain = value.Intern(c.names[kind](base))
	}
	if mods == 0 {
		return value.Value{Kind: value.KindSymbol, Sym: slot.plain}
	}
	idx := int(mods) & (modifierCombos - 1)
	if slot.withMods == nil {
		slot.withMods = make([]*value.Symbol, modifierCombos)
	}
	if slot.withMods[idx] == nil {
		slot.withMods[idx] = value.Intern(canonicalModifierPrefix(mods) + slot.plain.Name)
	}
	return value.Value{Kind: value.KindSymbol, Sym: slot.withMods[idx]}
}

// ScrollbarPart tags which portion of a scroll bar a scrollbar click
// landed on.
type ScrollbarPart int

const (
	ScrollbarAbove ScrollbarPart = iota
	ScrollbarBelow
	ScrollbarHandle
	ScrollbarUp
	ScrollbarDown
)

// EventScrollbarClick is the canonical scroll-bar click event:
// (PART_SYMBOL, WINDOW, BUTTON_SYMBOL, (pos . length), TIMESTAMP).
type EventScrollbarClick struct {
	tcell.EventTime
	Part      ScrollbarPart
	Window    value.Value
	Button    tcell.ButtonMask
	Pos, Length int
}

// EncodeScrollbarClick builds the canonical scroll-bar click value from a
// raw scroll-bar hit.
func EncodeScrollbarClick(part ScrollbarPart, window value.Value, btn tcell.ButtonMask, pos, length int, ts time.Time) value.Value {
	partSym := value.SymbolValue(scrollbarPartName(part))
	btnSym := value.SymbolValue(buttonName(btn))
	posPair := value.Cons(value.Integer(int64(pos)), value.Integer(int64(length)))
	return value.Vector(partSym, window, btnSym, posPair, value.Integer(ts.UnixNano()))
}

func scrollbarPartName(p ScrollbarPart) string {
	switch p {
	case ScrollbarAbove:
		return "above-handle"
	case ScrollbarBelow:
		return "below-handle"
	case ScrollbarHandle:
		return "handle"
	case ScrollbarUp:
		return "up"
	case ScrollbarDown:
		return "down"
	}
	return "unknown"
}

func buttonName(b tcell.ButtonMask) string {
	switch b {
	case tcell.Button1:
		return "mouse-1"
	case tcell.Button2:
		return "mouse-2"
	case tcell.Button3:
		return "mouse-3"
	case tcell.WheelUp:
		return "wheel-up"
	case tcell.WheelDown:
		return "wheel-down"
	case tcell.WheelLeft:
		return "wheel-left"
	case tcell.WheelRight:
		return "wheel-right"
	}
	return "mouse-unknown"
}

// EncodeMouseClick builds the canonical mouse-click value
// (BUTTON_SYMBOL, WINDOW, POSITION, (x . y), TIMESTAMP).
// window/position are supplied by the caller (typically from
// frame.Frame.Locate, which maps character-cell coordinates to a window and a
// buffer-offset position).
func EncodeMouseClick(btn tcell.ButtonMask, window, position value.Value, x, y int, ts time.Time) value.Value {
	btnSym := value.SymbolValue(buttonName(btn))
	xy := value.Cons(value.Integer(int64(x)), value.Integer(int64(y)))
	return value.Vector(btnSym, window, position, xy, value.Integer(ts.UnixNano()))
}

// MovementTracker implements the mouse-movement policy: motion
// is never queued, only the most recently observed position is visible to
// the consumer, materialized on demand, so a burst of motion events
// coalesces into whichever position was last set before the consumer next
// asks.
type MovementTracker struct {
	mu      sync.Mutex
	enabled bool
	have    bool
	x, y    int
	ts      time.Time
}

// Enable turns mouse-movement tracking on or off; movement events are
// only materialized while tracking is enabled.
func (m *MovementTracker) Enable(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = on
	if !on {
		m.have = false
	}
}

// Enabled reports whether movement tracking is currently on.
func (m *MovementTracker) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetPosition records the latest observed pointer position; a no-op while
// tracking is disabled.
func (m *MovementTracker) SetPosition(x, y int, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	m.x, m.y, m.ts = x, y, ts
	m.have = true
}

// Take returns the last-known position and clears it, so a burst of
// motion between two Take calls is seen by the consumer as a single event
// rather than one event per raw motion report.
func (m *MovementTracker) Take() (x, y int, ts time.Time, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.have {
		return 0, 0, time.Time{}, false
	}
	x, y, ts = m.x, m.y, m.ts
	m.have = false
	return x, y, ts, true
}

// EncodeMouseMovement builds the canonical mouse-movement value, or
// value.Nil if no position has been observed since the
// last Take.
func EncodeMouseMovement(tracker *MovementTracker, window, position value.Value) value.Value {
	x, y, ts, ok := tracker.Take()
	if !ok {
		return value.Nil
	}
	xy := value.Cons(value.Integer(int64(x)), value.Integer(int64(y)))
	return value.Vector(value.SymbolValue("mouse-movement"), window, position, xy, value.Integer(ts.UnixNano()))
}
