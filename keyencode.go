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

// This file completes the event encoder for keyboard events, alongside
// symcache.go's ModifyEventSymbol cache and mouse/scrollbar encoders. It
// turns tcell's EventKey into the canonical external form -- a bare
// integer for an ASCII keystroke, or a modifier-qualified symbol for
// anything else -- the same split tcell's
// own EventKey.Name() switch already makes for display purposes,
// generalized here into the canonical event shape keyseq/keymap consume
// instead of a human-readable string.
package edcell

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/tpaschal/edcell/value"
)

// functionKeyName is keyencode's table for SymKindFunctionKey, covering
// every non-rune tcell.Key constant. It mirrors EventKey.Name's switch but
// produces the lowercase hyphenated names the rest of the keymap/keyseq
// packages expect for symbolic keys ("up", "down", "f1").
func functionKeyName(base int) string {
	k := tcell.Key(base)
	switch k {
	case tcell.KeyBackspace:
		return "backspace"
	case tcell.KeyTab:
		return "tab"
	case tcell.KeyBacktab:
		return "backtab"
	case tcell.KeyEnter:
		return "return"
	case tcell.KeyEsc:
		return "escape"
	case tcell.KeyBackspace2:
		return "delete"
	case tcell.KeyDelete:
		return "deletechar"
	case tcell.KeyInsert:
		return "insert"
	case tcell.KeyUp:
		return "up"
	case tcell.KeyDown:
		return "down"
	case tcell.KeyLeft:
		return "left"
	case tcell.KeyRight:
		return "right"
	case tcell.KeyHome:
		return "home"
	case tcell.KeyEnd:
		return "end"
	case tcell.KeyUpLeft:
		return "up-left"
	case tcell.KeyUpRight:
		return "up-right"
	case tcell.KeyDownLeft:
		return "down-left"
	case tcell.KeyDownRight:
		return "down-right"
	case tcell.KeyCenter:
		return "center"
	case tcell.KeyPgUp:
		return "prior"
	case tcell.KeyPgDn:
		return "next"
	case tcell.KeyClear:
		return "clear"
	case tcell.KeyExit:
		return "exit"
	case tcell.KeyCancel:
		return "cancel"
	case tcell.KeyPause:
		return "pause"
	case tcell.KeyPrint:
		return "print"
	case tcell.KeyHelp:
		return "help"
	}
	if k >= tcell.KeyF1 && k <= tcell.KeyF64 {
		return fmt.Sprintf("f%d", int(k-tcell.KeyF1)+1)
	}
	return fmt.Sprintf("key-%d", base)
}

// functionKeyTableSize bounds SymKindFunctionKey's base-index range: every
// tcell.Key constant fits below KeyF64+1.
const functionKeyTableSize = int(tcell.KeyF64) + 1

// RegisterKeyEncoding installs keyencode's base-name table on cache. Call
// once per SymbolCache before EncodeKeyEvent.
func RegisterKeyEncoding(cache *SymbolCache) {
	cache.Register(SymKindFunctionKey, functionKeyTableSize, functionKeyName)
}

// canonicalModsFromMask translates tcell's terminal-level ModMask into
// the canonical Modifiers bitset, folding ModAlt into CanonMeta since the
// editor core makes no Alt/Meta distinction.
func canonicalModsFromMask(m tcell.ModMask) Modifiers {
	var out Modifiers
	if m&tcell.ModCtrl != 0 {
		out |= CanonCtrl
	}
	if m&(tcell.ModAlt|tcell.ModMeta) != 0 {
		out |= CanonMeta
	}
	if m&tcell.ModShift != 0 {
		out |= CanonShift
	}
	return out
}

// metaFold sets the high bit on an ASCII code for a Meta/Alt-modified
// keystroke, the same `0x83` == `ESC 3` folding keymap.DefineKey applies;
// EncodeKeyEvent performs the inverse direction (raw key with
// a Meta modifier -> the single high-bit byte) so that the ascii branch
// and keymap.DefineKey's meta folding agree on one representation.
func metaFold(ch rune, mods tcell.ModMask) (rune, tcell.ModMask) {
	if mods&(tcell.ModAlt|tcell.ModMeta) != 0 && ch >= 0 && ch < 0x80 {
		return ch | 0x80, mods &^ (tcell.ModAlt | tcell.ModMeta)
	}
	return ch, mods
}

// EncodeKeyEvent encodes a keyboard event: a plain ASCII keystroke (no
// Ctrl left unresolved, since the terminal already reports Ctrl-letter as
// a distinct Key) comes back as a bare Integer, with a Meta/Alt modifier
// folded into the high bit; any other character comes back as a symbol
// named after it, and a function key as a canonical symbol via cache's
// memoization, with modifiers ordered C-M-S-U in the symbol name.
func EncodeKeyEvent(ev *tcell.EventKey, cache *SymbolCache) value.Value {
	if ev.Key() == tcell.KeyRune {
		r := ev.Rune()
		ch, mod := metaFold(r, ev.Modifiers())
		if mod == tcell.ModNone && r >= 0 && r < 0x80 {
			return value.Integer(int64(ch))
		}
		// A modified plain rune (e.g. Shift held on a terminal that
		// reports it separately from the rune itself), or a non-ASCII
		// rune, becomes a symbol named after the rune (with its
		// modifier prefix, if any), rather than
		// going through the function-key table, which only names
		// non-rune keys.
		mods := canonicalModsFromMask(mod)
		name := canonicalModifierPrefix(mods) + string(ch)
		return value.Value{Kind: value.KindSymbol, Sym: value.Intern(name)}
	}
	base := int(ev.Key())
	// tcell's ASCII-range Key constants (KeyNUL..KeyDEL, and their
	// KeyCtrlA..KeyCtrlZ aliases, which share the same numbering) are
	// still plain ASCII codes -- only Key
	// values at or above KeyRune (the first non-ASCII slot) are
	// symbolic.
	if base >= 0 && base < int(tcell.KeyRune) {
		ch, mod := metaFold(rune(base), ev.Modifiers())
		if mod == tcell.ModNone {
			return value.Integer(int64(ch))
		}
		mods := canonicalModsFromMask(mod)
		name := canonicalModifierPrefix(mods) + string(ch)
		return value.Value{Kind: value.KindSymbol, Sym: value.Intern(name)}
	}
	if base < 0 || base >= functionKeyTableSize {
		return value.Nil
	}
	mods := canonicalModsFromMask(ev.Modifiers())
	return cache.ModifyEventSymbol(SymKindFunctionKey, base, mods)
}
