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

// Package keymap implements the dense+sparse keymap store (access-keymap,
// store, copy, modifier canonicalization) and the keymap lookup algorithms
// (access, define-key, lookup-key, accessible-keymaps, where-is) that the
// editor core uses to resolve key sequences to commands.
package keymap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tpaschal/edcell/value"
)

// DenseSize is the fixed vector length of a dense keymap.
const DenseSize = 128

// entry is one slot of a keymap's association list.
type entry struct {
	key value.Value
	def value.Value
}

// Keymap is the in-process representation of a keymap. Dense keymaps carry
// a 128-slot direct-indexed vector for ASCII keys plus an alist for
// symbolic (function/mouse) keys; sparse keymaps carry only the alist.
type Keymap struct {
	dense  bool
	vector [DenseSize]value.Value // valid only if dense
	alist  []entry
}

var registry = struct {
	sync.Mutex
	next int
	maps map[uint32]*Keymap
}{maps: make(map[uint32]*Keymap)}

// keymapValue wraps km as a value.Value opaque handle, so that a keymap can
// be stored as the binding of another keymap's slot (making that slot a
// prefix key) and travel through the generic value façade uniformly with
// any other binding.
func keymapValue(km *Keymap) value.Value {
	registry.Lock()
	defer registry.Unlock()
	registry.next++
	id := uint32(registry.next)
	registry.maps[id] = km
	return value.Value{Kind: value.KindHandle, Handle: value.Handle{Kind: value.HandleKeymapTail, ID: id}}
}

// FromValue returns the *Keymap wrapped by v, and whether v was a keymap
// handle at all.
func FromValue(v value.Value) (*Keymap, bool) {
	if v.Kind != value.KindHandle || v.Handle.Kind != value.HandleKeymapTail {
		return nil, false
	}
	registry.Lock()
	defer registry.Unlock()
	km, ok := registry.maps[v.Handle.ID]
	return km, ok
}

// IsKeymap reports whether v denotes a keymap (a binding whose presence at
// a slot makes that slot a prefix key).
func IsKeymap(v value.Value) bool {
	_, ok := FromValue(v)
	return ok
}

// MakeDense allocates a dense keymap: a 128-element vector of "unbound",
// wrapped with the keymap discriminator, plus an empty alist for symbolic
// keys.
func MakeDense() value.Value {
	km := &Keymap{dense: true}
	for i := range km.vector {
		km.vector[i] = value.Nil
	}
	return keymapValue(km)
}

// MakeSparse allocates a keymap backed only by an (initially empty) alist.
func MakeSparse() value.Value {
	return keymapValue(&Keymap{})
}

// ErrNotAscii is the keymap-store error for an out-of-range integer index on
// a dense keymap.
var ErrNotAscii = errors.New("Command key is not an ASCII character")

// ErrInvalidPrefix is signaled when a mid-sequence element resolves to a
// non-keymap during define-key.
var ErrInvalidPrefix = errors.New("Key sequence uses invalid prefix characters")

// modChars are the fixed two-character modifier prefixes, in canonical
// order: Control, Meta, Shift, Up.
var modChars = []byte{'C', 'M', 'S', 'U'}

// CanonicalizeModifiers reorders the modifier prefixes of a symbol name
// (any prefix of two-character "C-"/"M-"/"S-"/"U-" tokens, in any order)
// into the fixed order C, M, S, U, and interns the resulting name. A symbol
// with no modifier prefixes, or already in canonical order, is returned
// unchanged (by identity, where possible).
func CanonicalizeModifiers(sym *value.Symbol) *value.Symbol {
	name := sym.Name
	var present [4]bool
	rest := name
	for len(rest) >= 2 && rest[1] == '-' {
		idx := modIndex(rest[0])
		if idx < 0 {
			break
		}
		present[idx] = true
		rest = rest[2:]
	}
	if rest == name {
		return sym // no modifier prefixes at all
	}
	canon := ""
	for i, c := range modChars {
		if present[i] {
			canon += string(c) + "-"
		}
	}
	newName := canon + rest
	if newName == name {
		return sym
	}
	return value.Intern(newName)
}

func modIndex(c byte) int {
	for i, m := range modChars {
		if m == c {
			return i
		}
	}
	return -1
}

// canonicalIndex reduces idx to its storage key: mouse-click pairs are
// unwrapped to their head, and symbols are canonicalized.
func canonicalIndex(idx value.Value) value.Value {
	if idx.Kind == value.KindPair {
		idx = value.Car(idx)
	}
	if idx.Kind == value.KindSymbol {
		idx.Sym = CanonicalizeModifiers(idx.Sym)
	}
	return idx
}

func keyEqual(a, b value.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case value.KindInteger:
		return a.Int == b.Int
	case value.KindSymbol:
		return a.Sym == b.Sym
	}
	return false
}

// Store binds idx to def in keymap km.
func Store(kmVal value.Value, idx value.Value, def value.Value) error {
	km, ok := FromValue(kmVal)
	if !ok {
		return fmt.Errorf("keymap: Store: not a keymap")
	}
	idx = canonicalIndex(idx)

	if idx.Kind == value.KindInteger {
		if idx.Int < 0 || idx.Int >= DenseSize {
			if km.dense {
				return ErrNotAscii
			}
			// sparse keymaps accept out-of-ASCII-range integer keys
			// into the alist (e.g. raw function-key codes); only a
			// dense keymap's vector is ASCII-bounded.
			storeAlist(km, idx, def)
			return nil
		}
		if km.dense {
			km.vector[idx.Int] = def
			return nil
		}
		storeAlist(km, idx, def)
		return nil
	}

	storeAlist(km, idx, def)
	return nil
}

func storeAlist(km *Keymap, key, def value.Value) {
	for i := range km.alist {
		if keyEqual(km.alist[i].key, key) {
			km.alist[i].def = def
			return
		}
	}
	km.alist = append(km.alist, entry{key: key, def: def})
}

// Access looks up idx directly in km's own table (dense vector or alist),
// without resolving indirection (see GetKeyElt for that). Returns
// value.Nil if unbound.
func Access(kmVal value.Value, idx value.Value) value.Value {
	km, ok := FromValue(kmVal)
	if !ok {
		return value.Nil
	}
	idx = canonicalIndex(idx)
	if idx.Kind == value.KindInteger && km.dense && idx.Int >= 0 && idx.Int < DenseSize {
		return km.vector[idx.Int]
	}
	for _, e := range km.alist {
		if keyEqual(e.key, idx) {
			return e.def
		}
	}
	return value.Nil
}

// maxIndirection bounds the symbol-indirection loop in GetKeyElt, so a
// cycle of symbols whose function slots point at each other cannot hang a
// lookup.
const maxIndirection = 8

// GetKeyElt resolves indirections in a raw binding: while the object is of
// the form (MAP . INDEX) and MAP is itself a keymap, it recurses by
// accessing INDEX in MAP; a (STRING . VALUE) pair strips the menu-prompt
// string; anything else is the definition itself. Returns value.Nil if the
// indirection loop bottoms out unbound or exceeds maxIndirection steps.
func GetKeyElt(obj value.Value) value.Value {
	for i := 0; i < maxIndirection; i++ {
		if obj.Kind != value.KindPair {
			return obj
		}
		head := value.Car(obj)
		if head.Kind == value.KindString {
			obj = value.Cdr(obj)
			continue
		}
		if IsKeymap(head) {
			obj = Access(head, value.Cdr(obj))
			continue
		}
		return obj
	}
	return value.Nil
}

// Copy deep-copies km: the top alist, and (when dense) the vector; any
// sub-keymap discovered in either is copied recursively, so mutating the
// copy or its descendants never touches the original.
func Copy(kmVal value.Value) value.Value {
	km, ok := FromValue(kmVal)
	if !ok {
		return kmVal
	}
	out := &Keymap{dense: km.dense}
	if km.dense {
		for i, v := range km.vector {
			out.vector[i] = copyBinding(v)
		}
	}
	out.alist = make([]entry, len(km.alist))
	for i, e := range km.alist {
		out.alist[i] = entry{key: e.key, def: copyBinding(e.def)}
	}
	return keymapValue(out)
}

func copyBinding(v value.Value) value.Value {
	if IsKeymap(v) {
		return Copy(v)
	}
	return v
}
