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

import (
	"testing"

	"github.com/tpaschal/edcell/value"
)

func TestMakeDenseHas128UnboundSlots(t *testing.T) {
	km := MakeDense()
	k, ok := FromValue(km)
	if !ok || !k.dense {
		t.Fatalf("MakeDense did not produce a dense keymap")
	}
	if len(k.vector) != DenseSize {
		t.Fatalf("dense vector length = %d, want %d", len(k.vector), DenseSize)
	}
	for i, v := range k.vector {
		if !v.IsNil() {
			t.Fatalf("slot %d not initially unbound", i)
		}
	}
}

func TestCanonicalizeModifiersOrdersPrefixes(t *testing.T) {
	s := value.Intern("M-C-a")
	canon := CanonicalizeModifiers(s)
	if canon.Name != "C-M-a" {
		t.Fatalf("canonicalized name = %q, want %q", canon.Name, "C-M-a")
	}
}

func TestCanonicalizeModifiersIdempotent(t *testing.T) {
	s := value.Intern("C-M-S-tab")
	once := CanonicalizeModifiers(s)
	twice := CanonicalizeModifiers(once)
	if once != twice {
		t.Fatalf("canonicalization not idempotent: %q then %q", once.Name, twice.Name)
	}
}

func TestStoreRejectsOutOfRangeOnDense(t *testing.T) {
	km := MakeDense()
	err := Store(km, value.Integer(128), value.Integer(1))
	if err != ErrNotAscii {
		t.Fatalf("Store(128, ...) on dense keymap = %v, want ErrNotAscii", err)
	}
}

func TestDefineLookupRoundTrip(t *testing.T) {
	km := MakeSparse()
	seq := []value.Value{value.Integer(0x18), value.Integer('f')}
	cmd := value.SymbolValue("foo")

	if err := DefineKey(km, seq, cmd); err != nil {
		t.Fatalf("DefineKey: %v", err)
	}

	res := LookupKey(km, seq)
	if res.Kind != LookupBinding || res.Binding.Sym != cmd.Sym {
		t.Fatalf("LookupKey(full seq) = %+v, want binding foo", res)
	}

	prefixRes := LookupKey(km, seq[:1])
	if prefixRes.Kind != LookupPrefix {
		t.Fatalf("LookupKey(prefix) = %+v, want LookupPrefix", prefixRes)
	}
}

func TestMetaFolding(t *testing.T) {
	kmA := MakeSparse()
	kmB := MakeSparse()
	cmd := value.SymbolValue("execute-extended-command")

	if err := DefineKey(kmA, []value.Value{MetaPrefixChar, value.Integer('x')}, cmd); err != nil {
		t.Fatal(err)
	}
	if err := DefineKey(kmB, []value.Value{value.Integer('x' | 0x80)}, cmd); err != nil {
		t.Fatal(err)
	}

	for _, seq := range [][]value.Value{
		{MetaPrefixChar, value.Integer('x')},
		{value.Integer('x' | 0x80)},
	} {
		resA := LookupKey(kmA, seq)
		resB := LookupKey(kmB, seq)
		if resA.Kind != LookupBinding || resB.Kind != LookupBinding {
			t.Fatalf("meta folding for %v: A=%+v B=%+v", seq, resA, resB)
		}
		if resA.Binding.Sym != cmd.Sym || resB.Binding.Sym != cmd.Sym {
			t.Fatalf("meta-folded keymaps resolved to different commands for %v", seq)
		}
	}
}

func TestDefineKeyInvalidPrefix(t *testing.T) {
	km := MakeSparse()
	if err := DefineKey(km, []value.Value{value.Integer('a')}, value.Integer(1)); err != nil {
		t.Fatal(err)
	}
	err := DefineKey(km, []value.Value{value.Integer('a'), value.Integer('b')}, value.Integer(2))
	if err != ErrInvalidPrefix {
		t.Fatalf("DefineKey through a non-keymap binding = %v, want ErrInvalidPrefix", err)
	}
}

func TestAccessibleKeymapsCompleteness(t *testing.T) {
	root := MakeSparse()
	sub1 := MakeSparse()
	sub2 := MakeSparse()

	mustStore(t, root, value.Integer(0x18), sub1) // C-x
	mustStore(t, sub1, value.Integer('4'), sub2)  // C-x 4

	entries := AccessibleKeymaps(root)
	var foundSub1, foundSub2 bool
	for _, e := range entries {
		if e.Map == sub1 {
			foundSub1 = true
		}
		if e.Map == sub2 {
			foundSub2 = true
			if len(e.Prefix) != 2 {
				t.Errorf("sub2 prefix length = %d, want 2", len(e.Prefix))
			}
		}
	}
	if !foundSub1 || !foundSub2 {
		t.Fatalf("accessible-keymaps missed a reachable keymap: sub1=%v sub2=%v", foundSub1, foundSub2)
	}
}

func TestWhereIsFindsBinding(t *testing.T) {
	global := MakeSparse()
	cmd := value.SymbolValue("quit")
	mustStore(t, global, value.Integer(0x07), cmd) // C-g

	seqs := WhereIs(cmd, MakeSparse(), global)
	if len(seqs) != 1 || len(seqs[0]) != 1 || seqs[0][0].Int != 0x07 {
		t.Fatalf("WhereIs = %+v, want [[0x07]]", seqs)
	}
}

func TestWhereIsShadowing(t *testing.T) {
	global := MakeSparse()
	local := MakeSparse()
	cmdGlobal := value.SymbolValue("global-cmd")
	cmdLocal := value.SymbolValue("local-cmd")

	mustStore(t, global, value.Integer('a'), cmdGlobal)
	mustStore(t, local, value.Integer('a'), cmdLocal)

	seqs := WhereIs(cmdGlobal, local, global)
	for _, seq := range seqs {
		if len(seq) == 1 && seq[0].Int == 'a' {
			t.Fatalf("WhereIs(global-cmd) returned a sequence shadowed by local map: %+v", seq)
		}
	}
}

func mustStore(t *testing.T, km, idx, def value.Value) {
	t.Helper()
	if err := Store(km, idx, def); err != nil {
		t.Fatalf("Store: %v", err)
	}
}
