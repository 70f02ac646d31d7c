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

// Package frame implements the frame structure and its paired current/
// desired glyph matrices: FrameGlyphs, Frame, MakeFrame, ChangeSize, the
// frame-deletion policies, and ModifyFrameParameters. It generalizes
// tcell's single implicit screen buffer (buffered.go's bScreen, cell.go's
// Cell/ClearCells/ResizeCells) into the named current/desired pair this
// editor core requires, adding the per-row enable/used/highlight/bufp
// metadata.
package frame

import (
	"errors"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/tpaschal/edcell/value"
)

// Glyph is an opaque integer wide enough for a character code plus a
// face index: the low 21 bits hold a rune (enough for all of Unicode),
// the high bits a face index, the same "pack several fields into one
// scalar" convention tcell's Style uses in style.go for foreground/
// background/attributes.
type Glyph uint32

const glyphRuneBits = 21
const glyphRuneMask = (1 << glyphRuneBits) - 1

// NewGlyph packs a rune and a face index into a Glyph.
func NewGlyph(ch rune, face uint8) Glyph {
	return Glyph(uint32(ch)&glyphRuneMask) | Glyph(face)<<glyphRuneBits
}

// Rune returns the character code packed into g.
func (g Glyph) Rune() rune { return rune(g & glyphRuneMask) }

// Face returns the face index packed into g.
func (g Glyph) Face() uint8 { return uint8(g >> glyphRuneBits) }

// blankGlyph is the zero value used for the boundary sentinels:
// glyphs[V][-1] = glyphs[V][used[V]] = glyphs[V][W] = 0.
const blankGlyph Glyph = 0

// RowMetrics is optional per-row pixel metadata; a back-end that only
// reports character cells leaves this zeroed.
type RowMetrics struct {
	TopLeftX, TopLeftY  int
	PixWidth, PixHeight int
	MaxAscent           int
}

// FrameGlyphs is one of a frame's two paired glyph matrices. Rows are
// numbered 0..Height-1; within a row, real columns are 0..Width-1. The
// matrix is stored with one extra column on each side so that index -1
// and index Width sentinel reads are ordinary slice reads rather than
// special-cased bounds checks: real column c lives at
// glyphs[row][c+1], and glyphs[row][0]/glyphs[row][Width+1] stay
// blankGlyph for the life of the row.
type FrameGlyphs struct {
	Width, Height int

	rows [][]Glyph

	// Enable's meaning is matrix-identity-dependent: on the desired
	// matrix, Enable[n]==false means "row n already matches
	// current, nothing to do"; on the current matrix, Enable[n]==false
	// means "row n is blank on the device".
	Enable []bool

	// Used[n] bounds the non-blank prefix of row n; columns at or past
	// Used[n] are blank; Used[n] never exceeds Width.
	Used []int

	Highlight []bool // per-row inverse-video flag
	Bufp      []int  // buffer offset of the first character on the row

	Metrics []RowMetrics // optional; left nil unless a back-end populates it
}

func newFrameGlyphs(height, width int) *FrameGlyphs {
	fg := &FrameGlyphs{
		Width: width, Height: height,
		rows:      make([][]Glyph, height),
		Enable:    make([]bool, height),
		Used:      make([]int, height),
		Highlight: make([]bool, height),
		Bufp:      make([]int, height),
	}
	for i := range fg.rows {
		fg.rows[i] = make([]Glyph, width+2)
	}
	return fg
}

// At returns the glyph at (row, col). col may be -1 or Width to read a
// boundary sentinel, which is always blankGlyph.
func (fg *FrameGlyphs) At(row, col int) Glyph {
	return fg.rows[row][col+1]
}

// SetGlyph writes ch (with face) at (row, col), widening Used[row] if
// necessary. Wide runes (per go-runewidth) occupy the next column with a
// continuation blank, matching tcell's Cell.PutChars width accounting in
// cell.go.
func (fg *FrameGlyphs) SetGlyph(row, col int, ch rune, face uint8) {
	fg.rows[row][col+1] = NewGlyph(ch, face)
	if col >= 0 && col < fg.Width && fg.Used[row] <= col {
		fg.Used[row] = col + 1
	}
	if runewidth.RuneWidth(ch) == 2 && col+1 < fg.Width {
		fg.rows[row][col+2] = blankGlyph
		if fg.Used[row] <= col+1 {
			fg.Used[row] = col + 2
		}
	}
}

// ClearRow blanks row n back to all-whitespace, following the ClearCells
// convention in tcell's cell.go, and marks it for redisplay.
func (fg *FrameGlyphs) ClearRow(n int) {
	for c := 0; c < fg.Width; c++ {
		fg.rows[n][c+1] = blankGlyph
	}
	fg.Used[n] = 0
	fg.Highlight[n] = false
	fg.Enable[n] = true
}

// resizeFrameGlyphs reallocates fg's per-row storage to the new dimensions,
// preserving overlapping content, mirroring tcell's ResizeCells
// (cell.go) "reuse when safe, otherwise reallocate" discipline.
func resizeFrameGlyphs(fg *FrameGlyphs, height, width int) *FrameGlyphs {
	if fg != nil && fg.Height == height && fg.Width == width {
		return fg
	}
	out := newFrameGlyphs(height, width)
	if fg == nil {
		return out
	}
	for r := 0; r < height && r < fg.Height; r++ {
		n := width
		if fg.Width < n {
			n = fg.Width
		}
		copy(out.rows[r][1:n+1], fg.rows[r][1:n+1])
		if fg.Used[r] < n {
			out.Used[r] = fg.Used[r]
		} else {
			out.Used[r] = n
		}
		out.Highlight[r] = fg.Highlight[r]
		out.Bufp[r] = fg.Bufp[r]
	}
	return out
}

// Visibility enumerates a frame's on-screen state.
type Visibility int

const (
	Visible Visibility = iota
	Invisible
	Iconified
)

// Errors returned by frame-deletion policy checks.
var (
	ErrOnlyFrame           = errors.New("Attempt to delete the only frame")
	ErrSurrogateMinibuffer = errors.New("Attempt to delete a surrogate minibuffer frame")
	ErrNoDefaultMinibuffer = errors.New("all remaining frames are minibufferless")
)

// Recognized frame parameter names, predeclared as interned symbols so
// ModifyFrameParameters callers and Frame.Params agree on identity rather
// than string comparison.
var (
	ParamName                = value.Intern("name")
	ParamHeight              = value.Intern("height")
	ParamWidth               = value.Intern("width")
	ParamModeline            = value.Intern("modeline")
	ParamMinibuffer          = value.Intern("minibuffer")
	ParamUnsplittable        = value.Intern("unsplittable")
	ParamLeft                = value.Intern("left")
	ParamTop                 = value.Intern("top")
	ParamBorderWidth         = value.Intern("border-width")
	ParamInternalBorderWidth = value.Intern("internal-border-width")
	ParamForegroundColor     = value.Intern("foreground-color")
	ParamBackgroundColor     = value.Intern("background-color")
	ParamMouseColor          = value.Intern("mouse-color")
	ParamCursorColor         = value.Intern("cursor-color")
	ParamBorderColor         = value.Intern("border-color")
	ParamIconType            = value.Intern("icon-type")
	ParamFont                = value.Intern("font")
	ParamAutoRaise           = value.Intern("auto-raise")
	ParamAutoLower           = value.Intern("auto-lower")
	ParamVerticalScrollBar   = value.Intern("vertical-scroll-bar")
	ParamHorizontalScrollBar = value.Intern("horizontal-scroll-bar")
)

// Part names the portion of a window a mouse click landed in: text,
// mode line, or the vertical divider.
type Part int

const (
	PartText Part = iota
	PartModeLine
	PartVerticalLine
)

// Driver hooks are the operations a display back-end may implement
// (mouse position, focus rehighlight, window sizing, visibility changes,
// window destruction, pointer warping) plus the window-title hook. Each
// is optional: a
// Frame's Driver field is `any`, and every hook is invoked only if the
// Driver happens to implement the matching small interface below, so a
// test or a partial back-end need not stub hooks it doesn't care about.
type (
	MousePositioner interface {
		MousePosition() (x, y int, ts time.Time)
	}
	Rehighlighter interface{ FrameRehighlight() }
	WindowSizer   interface{ SetWindowSize(cols, rows int) }
	Visibilitier  interface {
		MakeVisible()
		MakeInvisible()
		Iconify()
	}
	WindowDestroyer     interface{ DestroyWindow() }
	MousePositionSetter interface{ SetMousePosition(x, y int) }
	Titler              interface{ SetTitle(title string) }
)

// Frame owns the paired current/desired glyph matrices, a window,
// cursor and focus state, and the display-back-end parameter alist.
type Frame struct {
	mu sync.Mutex

	Current *FrameGlyphs
	Desired *FrameGlyphs

	// Width/Height are the "real" frame extent used for geometry;
	// distinct from Current/Desired's own dimensions so that a "pretend"
	// ChangeSize can resize the matrices redisplay uses without moving
	// the window on screen.
	Width, Height int

	CursorX, CursorY int

	SelectedWindow value.Value // opaque HandleWindow

	HasMinibuffer       bool
	MinibufferOnly      bool
	MinibufferWindow    value.Value // set iff HasMinibuffer
	SurrogateMinibuffer *Frame      // set iff !HasMinibuffer

	FocusRedirect *Frame // defaults to the frame itself

	Visibility Visibility
	Garbaged   bool

	Params map[*value.Symbol]value.Value

	Driver any

	self value.Value
}

var registry = struct {
	sync.Mutex
	next uint32
	live map[uint32]*Frame
	dead map[uint32]bool
}{live: make(map[uint32]*Frame), dead: make(map[uint32]bool)}

func frameValue(f *Frame) value.Value {
	registry.Lock()
	defer registry.Unlock()
	registry.next++
	id := registry.next
	registry.live[id] = f
	return value.Value{Kind: value.KindHandle, Handle: value.Handle{Kind: value.HandleFrame, ID: id}}
}

// FromValue returns the *Frame a handle denotes, and whether the handle is
// a live (not yet garbage-collected-away) frame handle at all.
func FromValue(v value.Value) (*Frame, bool) {
	if v.Kind != value.KindHandle || v.Handle.Kind != value.HandleFrame {
		return nil, false
	}
	registry.Lock()
	defer registry.Unlock()
	f, ok := registry.live[v.Handle.ID]
	return f, ok
}

// markDead marks a frame's handle dead (deleted); the storage itself is
// reclaimed later, at GC time, once no reference to the handle remains
// reachable.
func markDead(v value.Value) {
	if v.Kind != value.KindHandle || v.Handle.Kind != value.HandleFrame {
		return
	}
	registry.Lock()
	defer registry.Unlock()
	delete(registry.live, v.Handle.ID)
	registry.dead[v.Handle.ID] = true
}

// IsDead reports whether a frame handle refers to a deleted (but not yet
// GC'd) frame.
func IsDead(v value.Value) bool {
	if v.Kind != value.KindHandle || v.Handle.Kind != value.HandleFrame {
		return false
	}
	registry.Lock()
	defer registry.Unlock()
	return registry.dead[v.Handle.ID]
}

const defaultRows, defaultCols = 10, 10

var nextWindowID uint32

func newWindowHandle() value.Value {
	nextWindowID++
	return value.Value{Kind: value.KindHandle, Handle: value.Handle{Kind: value.HandleWindow, ID: nextWindowID}}
}

// FrameSet tracks the live frames belonging to one editor session, so
// the deletion-policy checks operate over an explicit collection rather
// than a hidden global list, the same way cmdloop.Context threads
// editor-wide state explicitly instead of through package variables.
type FrameSet struct {
	mu   sync.Mutex
	live map[*Frame]bool
}

// NewFrameSet returns an empty FrameSet.
func NewFrameSet() *FrameSet {
	return &FrameSet{live: make(map[*Frame]bool)}
}

// MakeFrame allocates both glyph matrices at the default 10x10 size,
// creates a root window (and, if miniP, an owned minibuffer window), and
// registers the frame as live in fs.
func (fs *FrameSet) MakeFrame(miniP bool) *Frame {
	f := &Frame{
		Current: newFrameGlyphs(defaultRows, defaultCols),
		Desired: newFrameGlyphs(defaultRows, defaultCols),
		Width:   defaultCols, Height: defaultRows,
		SelectedWindow: newWindowHandle(),
		HasMinibuffer:  miniP,
		Visibility:     Invisible,
		Params:         make(map[*value.Symbol]value.Value),
	}
	f.FocusRedirect = f
	if miniP {
		f.MinibufferWindow = newWindowHandle()
	}
	f.self = frameValue(f)

	fs.mu.Lock()
	fs.live[f] = true
	fs.mu.Unlock()
	return f
}

// SetSurrogateMinibuffer records that f borrows its minibuffer window from
// other, as every minibufferless frame must.
func (f *Frame) SetSurrogateMinibuffer(other *Frame) {
	f.SurrogateMinibuffer = other
}

// ChangeSize reallocates f's glyph matrices to rows x cols. If pretend,
// only the matrices (what redisplay consults) are resized; the frame's
// "real" Width/Height extent used for window geometry is left untouched.
// Either way the frame is marked garbaged, forcing a full redraw.
func (f *Frame) ChangeSize(rows, cols int, pretend bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Current = resizeFrameGlyphs(f.Current, rows, cols)
	f.Desired = resizeFrameGlyphs(f.Desired, rows, cols)
	if !pretend {
		f.Width, f.Height = cols, rows
	}
	f.Garbaged = true
}

// DeleteFrame enforces the deletion policies and, if they pass, removes
// f from the live set and marks its handle dead. It refuses
// to delete the only live frame, or a frame that is currently serving as
// another live frame's surrogate minibuffer.
func (fs *FrameSet) DeleteFrame(f *Frame) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.live[f] {
		return nil
	}
	if len(fs.live) == 1 {
		return ErrOnlyFrame
	}
	for other := range fs.live {
		if other != f && other.SurrogateMinibuffer == f {
			return ErrSurrogateMinibuffer
		}
	}
	delete(fs.live, f)
	markDead(f.self)
	return nil
}

// ReassignDefaultMinibuffer picks a replacement default-minibuffer frame
// when deleted (the current default-minibuffer frame) is being removed:
// it prefers a minibuffer-only frame, falling back to any other frame
// that owns its own minibuffer, and fails only when every remaining live
// frame is minibufferless (a state the surrogate rules never allow).
func (fs *FrameSet) ReassignDefaultMinibuffer(deleted *Frame) (*Frame, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var fallback *Frame
	for f := range fs.live {
		if f == deleted || !f.HasMinibuffer {
			continue
		}
		if f.MinibufferOnly {
			return f, nil
		}
		if fallback == nil {
			fallback = f
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoDefaultMinibuffer
}

// LiveCount reports the number of live frames in fs (test/diagnostic use).
func (fs *FrameSet) LiveCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.live)
}

// ModifyFrameParameters merges params into f.Params (interning each key
// as a symbol) and, for the "name" parameter specifically, invokes the
// driver's title hook if present; which window-title protocol to speak is
// the driver's decision alone.
func (f *Frame) ModifyFrameParameters(params map[string]value.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range params {
		sym := value.Intern(k)
		f.Params[sym] = v
		if sym == ParamName && v.Kind == value.KindString {
			if t, ok := f.Driver.(Titler); ok {
				t.SetTitle(v.Str.String())
			}
		}
	}
}

// MousePosition reports the pointer's current character-cell position via
// the driver hook, if any.
func (f *Frame) MousePosition() (x, y int, ts time.Time, ok bool) {
	if mp, is := f.Driver.(MousePositioner); is {
		x, y, ts = mp.MousePosition()
		return x, y, ts, true
	}
	return 0, 0, time.Time{}, false
}

// Rehighlight reasserts input-focus highlighting after a focus redirect
// changes.
func (f *Frame) Rehighlight() {
	if r, ok := f.Driver.(Rehighlighter); ok {
		r.FrameRehighlight()
	}
}

// SetWindowSize resizes f: it updates the glyph matrices via ChangeSize
// and, if the driver implements the hook, asks the back-end to actually
// resize the device window too.
func (f *Frame) SetWindowSize(cols, rows int) {
	f.ChangeSize(rows, cols, false)
	if ws, ok := f.Driver.(WindowSizer); ok {
		ws.SetWindowSize(cols, rows)
	}
}

// MakeVisible, MakeInvisible, and Iconify track the frame's visibility
// state and forward to the driver's hooks when present.
func (f *Frame) MakeVisible() {
	f.Visibility = Visible
	if v, ok := f.Driver.(Visibilitier); ok {
		v.MakeVisible()
	}
}

func (f *Frame) MakeInvisible() {
	f.Visibility = Invisible
	if v, ok := f.Driver.(Visibilitier); ok {
		v.MakeInvisible()
	}
}

func (f *Frame) Iconify() {
	f.Visibility = Iconified
	if v, ok := f.Driver.(Visibilitier); ok {
		v.Iconify()
	}
}

// Destroy enforces the FrameSet deletion policy, then asks the driver to
// release the device window.
func (f *Frame) Destroy(fs *FrameSet) error {
	if err := fs.DeleteFrame(f); err != nil {
		return err
	}
	if wd, ok := f.Driver.(WindowDestroyer); ok {
		wd.DestroyWindow()
	}
	return nil
}

// SetMousePosition warps the pointer.
func (f *Frame) SetMousePosition(x, y int) {
	if mps, ok := f.Driver.(MousePositionSetter); ok {
		mps.SetMousePosition(x, y)
	}
}

// Locate maps a character-cell coordinate within the frame to the window
// and click part the event encoder needs, along with the buffer offset of
// the row's first character (the row's Bufp entry), which is how a mouse
// click is mapped back to a buffer position.
func (f *Frame) Locate(x, y int) (window value.Value, part Part, bufOffset int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.Current.Height
	if y < 0 {
		y = 0
	}
	if y >= rows {
		y = rows - 1
	}
	switch {
	case f.Current.Width > 0 && x == f.Current.Width-1:
		part = PartVerticalLine
	case y == rows-1 && !f.MinibufferOnly:
		part = PartModeLine
	default:
		part = PartText
	}
	if rows > 0 {
		bufOffset = f.Current.Bufp[y]
	}
	return f.SelectedWindow, part, bufOffset
}
