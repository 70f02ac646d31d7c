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

// UndoKind discriminates the shapes of an UndoEntry.
type UndoKind uint8

const (
	// UndoBoundary separates undo units; the zero value, matching the
	// nil element of the wire shape.
	UndoBoundary UndoKind = iota
	// UndoDeletion is (BEGIN . END): the record of an insertion, undone
	// by deleting the range [BEGIN, END). RecordInsert creates it.
	UndoDeletion
	// UndoInsertion is (TEXT . POSITION): the record of a deletion,
	// undone by re-inserting TEXT at POSITION (at -POSITION when
	// POSITION < 0, with point then ending after the re-inserted text;
	// see PrimitiveUndo). RecordDelete creates it.
	UndoInsertion
	// UndoModtime is (TRUE (HI LO)): a file-modtime stamp marking an
	// unmodified boundary.
	UndoModtime
)

// UndoEntry is one element of a buffer's undo list.
type UndoEntry struct {
	Kind UndoKind

	Begin, End int    // UndoDeletion
	Text       string // UndoInsertion
	Position   int    // UndoInsertion; negative means "point ends after re-insert"
	ModHi      int64  // UndoModtime
	ModLo      int64  // UndoModtime
}

// size is the approximate byte cost of the entry, used by
// TruncateUndoList's size accounting.
func (e UndoEntry) size() int {
	switch e.Kind {
	case UndoDeletion:
		return 32
	case UndoInsertion:
		return 32 + len(e.Text)
	case UndoModtime:
		return 32
	default:
		return 8
	}
}

// UndoList is a buffer's undo history, most-recent entry first.
type UndoList struct {
	entries []UndoEntry
}

// Entries returns the list contents, most-recent first.
func (u *UndoList) Entries() []UndoEntry { return append([]UndoEntry{}, u.entries...) }

func (u *UndoList) push(e UndoEntry) { u.entries = append([]UndoEntry{e}, u.entries...) }

// RecordInsert appends an insertion record covering [beg, beg+length) to
// the undo list. If the most recent entry is itself an insertion whose
// end equals beg, it is extended in place instead (run-length
// coalescing).
func (u *UndoList) RecordInsert(beg, length int) {
	if len(u.entries) > 0 {
		top := &u.entries[0]
		if top.Kind == UndoDeletion && top.End == beg {
			top.End = beg + length
			return
		}
	}
	u.push(UndoEntry{Kind: UndoDeletion, Begin: beg, End: beg + length})
}

// RecordDelete appends a deletion record: the text removed (so it can be
// re-inserted at pos to undo the deletion). pos negative means point
// should end up after the re-insertion when this entry is undone.
func (u *UndoList) RecordDelete(text string, pos int) {
	u.push(UndoEntry{Kind: UndoInsertion, Text: text, Position: pos})
}

// RecordModtime records a file-modtime stamp, marking the "unmodified"
// boundary so that undoing back to this point can restore the unmodified
// flag when the on-disk file still matches.
func (u *UndoList) RecordModtime(hi, lo int64) {
	u.push(UndoEntry{Kind: UndoModtime, ModHi: hi, ModLo: lo})
}

// UndoBoundary appends a boundary marker unless the list already begins
// with one.
func (u *UndoList) UndoBoundary() {
	if len(u.entries) > 0 && u.entries[0].Kind == UndoBoundary {
		return
	}
	u.push(UndoEntry{Kind: UndoBoundary})
}

// TruncateUndoList trims u at GC time: the most recent record is always
// preserved; entries are scanned (counting size()), and at the first
// boundary crossed past minSize, truncation occurs if maxSize is also
// exceeded, otherwise scanning continues to the next boundary.
func (u *UndoList) TruncateUndoList(minSize, maxSize int) {
	if len(u.entries) == 0 {
		return
	}
	total := 0
	for i, e := range u.entries {
		total += e.size()
		if e.Kind == UndoBoundary && total > minSize && total > maxSize {
			u.entries = u.entries[:i+1]
			return
		}
	}
}

// UndoEditor is the minimal buffer-editing surface PrimitiveUndo needs;
// implemented by whatever owns the actual buffer text, which is not this
// package's concern.
type UndoEditor interface {
	DeleteRange(beg, end int)
	InsertAt(pos int, text string) (endPos int)
	RestoreUnmodified(hi, lo int64) (matched bool)
}

// PrimitiveUndo undoes n records from list against ed, returning the
// remaining (unprocessed) entries and the position point should end up
// at: a (BEGIN . END) entry is deleted; a (TEXT . POS)
// entry is re-inserted (POS < 0 meaning point should end up after the
// insert); a modtime entry restores the unmodified flag when it matches.
func PrimitiveUndo(n int, list []UndoEntry, ed UndoEditor) (remaining []UndoEntry, point int) {
	i := 0
	for count := 0; count < n && i < len(list); {
		e := list[i]
		i++
		switch e.Kind {
		case UndoBoundary:
			if i > 1 { // don't count the boundary that opens this batch
				count++
			}
			continue
		case UndoDeletion:
			ed.DeleteRange(e.Begin, e.End)
			point = e.Begin
		case UndoInsertion:
			pos := e.Position
			if pos < 0 {
				pos = -pos
			}
			end := ed.InsertAt(pos, e.Text)
			if e.Position < 0 {
				point = end
			} else {
				point = pos
			}
		case UndoModtime:
			ed.RestoreUnmodified(e.ModHi, e.ModLo)
		}
	}
	return list[i:], point
}
