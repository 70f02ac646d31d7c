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

package frame

import (
	"testing"

	"github.com/tpaschal/edcell/value"
)

func TestMakeFrameDefaults(t *testing.T) {
	fs := NewFrameSet()
	f := fs.MakeFrame(true)

	if f.Width != defaultCols || f.Height != defaultRows {
		t.Fatalf("unexpected default size %dx%d", f.Width, f.Height)
	}
	if f.Current.Height != defaultRows || len(f.Current.Enable) != defaultRows {
		t.Fatalf("current matrix not allocated at default size")
	}
	if f.Visibility != Invisible {
		t.Fatalf("new frame should start invisible")
	}
	if f.FocusRedirect != f {
		t.Fatalf("new frame should focus-redirect to itself")
	}
	if !f.HasMinibuffer || f.MinibufferWindow.IsNil() {
		t.Fatalf("expected an owned minibuffer window")
	}
}

func TestDenseGlyphMatrixSentinels(t *testing.T) {
	fg := newFrameGlyphs(5, 8)
	if fg.At(0, -1) != blankGlyph || fg.At(0, 8) != blankGlyph {
		t.Fatalf("boundary sentinels must start blank")
	}
	fg.SetGlyph(2, 3, 'x', 0)
	if fg.Used[2] != 4 {
		t.Fatalf("Used[2] = %d, want 4", fg.Used[2])
	}
	if fg.At(2, 3).Rune() != 'x' {
		t.Fatalf("glyph not stored")
	}
	if fg.Used[2] > fg.Width {
		t.Fatalf("Used exceeded Width")
	}
}

func TestChangeSizePretendLeavesRealExtent(t *testing.T) {
	fs := NewFrameSet()
	f := fs.MakeFrame(false)

	f.ChangeSize(40, 100, true)
	if f.Width != defaultCols || f.Height != defaultRows {
		t.Fatalf("pretend resize changed real extent: %dx%d", f.Width, f.Height)
	}
	if f.Current.Height != 40 || f.Current.Width != 100 {
		t.Fatalf("pretend resize did not resize the matrices")
	}
	if !f.Garbaged {
		t.Fatalf("resize must mark the frame garbaged")
	}

	f.ChangeSize(24, 80, false)
	if f.Width != 80 || f.Height != 24 {
		t.Fatalf("real resize did not update the real extent")
	}
}

func TestDeleteOnlyFrameFails(t *testing.T) {
	fs := NewFrameSet()
	f := fs.MakeFrame(true)

	if err := fs.DeleteFrame(f); err != ErrOnlyFrame {
		t.Fatalf("expected ErrOnlyFrame, got %v", err)
	}
	if fs.LiveCount() != 1 {
		t.Fatalf("frame should not have been removed")
	}
}

func TestDeleteSurrogateMinibufferFrameFails(t *testing.T) {
	fs := NewFrameSet()
	owner := fs.MakeFrame(true)
	borrower := fs.MakeFrame(false)
	borrower.SetSurrogateMinibuffer(owner)

	if err := fs.DeleteFrame(owner); err != ErrSurrogateMinibuffer {
		t.Fatalf("expected ErrSurrogateMinibuffer, got %v", err)
	}

	// Deleting the borrower is fine; it isn't anyone's surrogate.
	if err := fs.DeleteFrame(borrower); err != nil {
		t.Fatalf("deleting the borrower should succeed: %v", err)
	}
	if fs.LiveCount() != 1 {
		t.Fatalf("expected one live frame left, got %d", fs.LiveCount())
	}
}

func TestDeleteFrameMarksHandleDead(t *testing.T) {
	fs := NewFrameSet()
	a := fs.MakeFrame(true)
	b := fs.MakeFrame(true)

	if err := fs.DeleteFrame(a); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !IsDead(a.self) {
		t.Fatalf("a's handle should be dead after deletion")
	}
	if IsDead(b.self) {
		t.Fatalf("b should still be live")
	}
	if got, ok := FromValue(a.self); ok || got != nil {
		t.Fatalf("FromValue should no longer resolve a deleted frame")
	}
}

func TestReassignDefaultMinibufferPrefersMinibufferOnly(t *testing.T) {
	fs := NewFrameSet()
	normal := fs.MakeFrame(true)
	miniOnly := fs.MakeFrame(true)
	miniOnly.MinibufferOnly = true

	repl, err := fs.ReassignDefaultMinibuffer(normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repl != miniOnly {
		t.Fatalf("expected the minibuffer-only frame to be preferred")
	}
}

func TestModifyFrameParametersInvokesTitleHook(t *testing.T) {
	fs := NewFrameSet()
	f := fs.MakeFrame(true)
	drv := &fakeDriver{}
	f.Driver = drv

	f.ModifyFrameParameters(map[string]value.Value{"name": value.NewText("scratch")})
	if drv.title != "scratch" {
		t.Fatalf("title hook not invoked, got %q", drv.title)
	}
	if f.Params[ParamName].Str.String() != "scratch" {
		t.Fatalf("parameter not recorded in alist")
	}
}

func TestModifyFrameParametersNoopWithoutDriver(t *testing.T) {
	fs := NewFrameSet()
	f := fs.MakeFrame(true)
	// No Driver set; must not panic, and must still record the parameter.
	f.ModifyFrameParameters(map[string]value.Value{"name": value.NewText("x")})
	if f.Params[ParamName].Str.String() != "x" {
		t.Fatalf("parameter not recorded")
	}
}

type fakeDriver struct {
	title string
}

func (d *fakeDriver) SetTitle(title string) { d.title = title }

func TestLocatePartTagging(t *testing.T) {
	fs := NewFrameSet()
	f := fs.MakeFrame(true)
	f.Current.Bufp[2] = 42

	_, part, buf := f.Locate(f.Current.Width-1, 2)
	if part != PartVerticalLine {
		t.Fatalf("expected PartVerticalLine at the last column, got %v", part)
	}

	_, part, buf = f.Locate(0, f.Current.Height-1)
	if part != PartModeLine {
		t.Fatalf("expected PartModeLine on the last row, got %v", part)
	}

	_, part, buf = f.Locate(0, 2)
	if part != PartText {
		t.Fatalf("expected PartText, got %v", part)
	}
	if buf != 42 {
		t.Fatalf("bufp not threaded through Locate: got %d", buf)
	}
}
