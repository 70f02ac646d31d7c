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

package keymap

import "github.com/tpaschal/edcell/value"

// MetaPrefixChar is the key that define-key and accessible-keymaps fold the
// high bit of an 0x80+ key into; ESC by convention.
var MetaPrefixChar = value.Integer(0x1B)

// DefineKey binds key (a sequence of elements, each an integer or symbol)
// to def within keymap km. Every element with the high bit set
// (>= 0x80) is folded into a MetaPrefixChar followed by the same element
// with the high bit cleared.
func DefineKey(kmVal value.Value, key []value.Value, def value.Value) error {
	if len(key) < 1 {
		return ErrInvalidPrefix
	}
	key = foldMeta(key)

	cur := kmVal
	for i, k := range key {
		last := i == len(key)-1
		if last {
			return Store(cur, k, def)
		}
		bound := GetKeyElt(Access(cur, k))
		if bound.IsNil() {
			sub := MakeSparse()
			if err := Store(cur, k, sub); err != nil {
				return err
			}
			cur = sub
			continue
		}
		if !IsKeymap(bound) {
			return ErrInvalidPrefix
		}
		cur = bound
	}
	return nil
}

// foldMeta rewrites any single element >= 0x80 into [MetaPrefixChar,
// element&0x7F], once per such element, so 0x83 folds into ESC 3.
func foldMeta(key []value.Value) []value.Value {
	out := make([]value.Value, 0, len(key))
	for _, k := range key {
		if k.Kind == value.KindInteger && k.Int >= 0x80 {
			out = append(out, MetaPrefixChar, value.Integer(k.Int&0x7F))
			continue
		}
		out = append(out, k)
	}
	return out
}

// LookupResult is the outcome of LookupKey: exactly one of Binding (a
// non-keymap definition was found), PrefixMap (the sequence is a valid but
// incomplete prefix, positioned at the returned keymap), or Consumed (a
// mid-sequence element was unbound or non-keymap; Consumed gives the
// number of elements of key actually walked).
type LookupResult struct {
	Binding  value.Value
	PrefixMap value.Value
	Consumed int
	Kind     LookupKind
}

// LookupKind discriminates the three LookupResult shapes.
type LookupKind uint8

const (
	LookupBinding LookupKind = iota
	LookupPrefix
	LookupIncomplete
)

// LookupKey walks key through km the same way DefineKey does, but only
// reads: a complete walk to a non-keymap binding returns LookupBinding; a
// walk that exhausts key while still inside a valid (but now-incomplete)
// prefix returns LookupPrefix with the keymap reached; a walk that hits an
// unbound or non-keymap element mid-sequence returns LookupIncomplete with
// Consumed set to the prefix length actually consumed.
func LookupKey(kmVal value.Value, key []value.Value) LookupResult {
	key = foldMeta(key)
	cur := kmVal
	for i, k := range key {
		bound := GetKeyElt(Access(cur, k))
		last := i == len(key)-1
		if last {
			if IsKeymap(bound) {
				return LookupResult{Kind: LookupPrefix, PrefixMap: bound}
			}
			return LookupResult{Kind: LookupBinding, Binding: bound}
		}
		if !IsKeymap(bound) {
			return LookupResult{Kind: LookupIncomplete, Consumed: i + 1}
		}
		cur = bound
	}
	// len(key) == 0: the starting keymap itself is the "binding reached".
	return LookupResult{Kind: LookupPrefix, PrefixMap: cur}
}

// AccessibleEntry pairs a reachable keymap with the key sequence that
// reaches it from the root.
type AccessibleEntry struct {
	Prefix []value.Value
	Map    value.Value
}

// AccessibleKeymaps performs a breadth-first traversal of root, collecting
// every keymap reachable via nested prefix bindings along with the key
// sequence that reaches it. A keymap already present in the
// result (checked by identity of the reached keymap's handle) is not
// revisited.
func AccessibleKeymaps(root value.Value) []AccessibleEntry {
	seen := map[uint32]bool{}
	result := []AccessibleEntry{{Prefix: nil, Map: root}}
	if id, ok := handleID(root); ok {
		seen[id] = true
	}

	for i := 0; i < len(result); i++ {
		cur := result[i]
		km, ok := FromValue(cur.Map)
		if !ok {
			continue
		}
		emit := func(keyElt value.Value, def value.Value) {
			bound := GetKeyElt(def)
			if !IsKeymap(bound) {
				return
			}
			id, _ := handleID(bound)
			if seen[id] {
				return
			}
			seen[id] = true
			prefix := append(append([]value.Value{}, cur.Prefix...), keyElt)

			// Meta-prefix fusion: if the prefix-so-far's last
			// element is MetaPrefixChar and keyElt is an integer
			// <= 0x7F, also emit the fused meta-character entry
			// (ch | 0x80) alongside the two-step ESC-ch entry,
			// immediately after it to preserve BFS order.
			result = append(result, AccessibleEntry{Prefix: prefix, Map: bound})
			if len(cur.Prefix) > 0 {
				last := cur.Prefix[len(cur.Prefix)-1]
				if keyEqual(last, MetaPrefixChar) && keyElt.Kind == value.KindInteger && keyElt.Int <= 0x7F {
					fused := append(append([]value.Value{}, cur.Prefix[:len(cur.Prefix)-1]...), value.Integer(keyElt.Int|0x80))
					result = append(result, AccessibleEntry{Prefix: fused, Map: bound})
				}
			}
		}

		if km.dense {
			for i, def := range km.vector {
				if def.IsNil() {
					continue
				}
				emit(value.Integer(int64(i)), def)
			}
		}
		for _, e := range km.alist {
			emit(e.key, e.def)
		}
	}
	return result
}

func handleID(v value.Value) (uint32, bool) {
	if v.Kind != value.KindHandle || v.Handle.Kind != value.HandleKeymapTail {
		return 0, false
	}
	return v.Handle.ID, true
}

// WhereIs finds all key sequences bound to def, reachable from localMap or
// globalMap, discarding any candidate shadowed by a more specific binding
// in localMap.
func WhereIs(def value.Value, localMap, globalMap value.Value) [][]value.Value {
	var candidates [][]value.Value
	maps := AccessibleKeymaps(localMap)
	maps = append(maps, AccessibleKeymaps(globalMap)...)

	for _, e := range maps {
		km, ok := FromValue(e.Map)
		if !ok {
			continue
		}
		scan := func(keyElt, bindingVal value.Value) {
			if !valueEqual(GetKeyElt(bindingVal), def) {
				return
			}
			seq := append(append([]value.Value{}, e.Prefix...), keyElt)
			candidates = append(candidates, seq)
		}
		if km.dense {
			for i, b := range km.vector {
				if b.IsNil() {
					continue
				}
				scan(value.Integer(int64(i)), b)
			}
		}
		for _, a := range km.alist {
			scan(a.key, a.def)
		}
	}

	var result [][]value.Value
	for _, seq := range candidates {
		res := LookupKey(localMap, seq)
		if res.Kind == LookupBinding && (res.Binding.IsNil() || valueEqual(res.Binding, def)) {
			// bound to def in localMap, or unbound there: nothing
			// local shadows it.
			result = append(result, seq)
		} else if res.Kind != LookupBinding {
			// the walk through localMap either stops early at an
			// unbound or non-keymap element (LookupIncomplete: kept)
			// or ends on a local prefix keymap (LookupPrefix:
			// dropped, the local prefix shadows it).
			if isGlobalOnly(localMap, seq) {
				result = append(result, seq)
			}
		}
	}
	return result
}

func isGlobalOnly(localMap value.Value, seq []value.Value) bool {
	res := LookupKey(localMap, seq)
	return res.Kind == LookupIncomplete
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
	case value.KindHandle:
		return a.Handle == b.Handle
	case value.KindNil:
		return true
	}
	return false
}
