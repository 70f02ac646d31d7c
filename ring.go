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

// This file generalizes tcell's ad hoc single-purpose signal channels
// (tscreen.go's `resizeq chan bool`, `evch chan Event`) into an
// explicit-capacity circular input queue: a fixed ring with exactly one
// slot always left unused, a single producer that never blocks (so it is
// safe to call from something that behaves like a signal handler), and a
// single consumer that may block indefinitely waiting for the next
// event.
package edcell

import (
	"context"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/semaphore"
)

// EventRing is the circular keyboard/mouse event buffer. Use 256 for a
// bare terminal, 4096 under a window system. The ring always leaves one
// slot unused, so store_ptr==fetch_ptr is unambiguously "empty" and never
// "full".
type EventRing struct {
	mu       sync.Mutex
	buf      []tcell.Event
	storePtr int
	fetchPtr int

	admit *semaphore.Weighted // bounds admission to capacity-1 usable slots
	ready chan struct{}       // non-blocking "something is available" signal
}

// NewEventRing allocates a ring of the given capacity.
func NewEventRing(capacity int) *EventRing {
	if capacity < 2 {
		capacity = 2
	}
	return &EventRing{
		buf:   make([]tcell.Event, capacity),
		admit: semaphore.NewWeighted(int64(capacity - 1)),
		ready: make(chan struct{}, 1),
	}
}

// Enqueue advances store_ptr and stores ev, unless the ring is already at
// its K-1 usable-slot limit, in which case ev is dropped and Enqueue
// returns ErrEventQFull. TryAcquire never blocks, so Enqueue is safe to
// call from a producer that must not block (e.g. something invoked the
// way a signal handler would be).
func (r *EventRing) Enqueue(ev tcell.Event) error {
	if !r.admit.TryAcquire(1) {
		return ErrEventQFull
	}
	r.mu.Lock()
	r.buf[r.storePtr] = ev
	r.storePtr = (r.storePtr + 1) % len(r.buf)
	r.mu.Unlock()
	select {
	case r.ready <- struct{}{}:
	default:
	}
	return nil
}

// Readable reports whether the ring currently holds at least one event.
func (r *EventRing) Readable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storePtr != r.fetchPtr
}

// TryDequeue returns the next event without blocking, or ok=false if the
// ring is empty right now.
func (r *EventRing) TryDequeue() (ev tcell.Event, ok bool) {
	r.mu.Lock()
	if r.storePtr == r.fetchPtr {
		r.mu.Unlock()
		return nil, false
	}
	ev = r.buf[r.fetchPtr]
	r.buf[r.fetchPtr] = nil
	r.fetchPtr = (r.fetchPtr + 1) % len(r.buf)
	r.mu.Unlock()
	r.admit.Release(1)
	return ev, true
}

// Dequeue blocks until an event is available or ctx is done: a
// select-style wait with a forever timeout when ctx carries no deadline,
// and early return when ctx is canceled (the composition point for a
// cmdloop.Context's quit channel or a SitFor-style finite deadline).
func (r *EventRing) Dequeue(ctx context.Context) (tcell.Event, error) {
	for {
		if ev, ok := r.TryDequeue(); ok {
			return ev, nil
		}
		select {
		case <-r.ready:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// InputPump is the producer side of the input queue. It takes raw Events
// (already-decoded keystrokes, mouse events, etc.) and either enqueues
// them on Ring or, for the quit character, diverts to QuitFunc without the
// event ever reaching the ring at all: quit delivery is out-of-band and
// short-circuits the queue entirely.
type InputPump struct {
	Ring     *EventRing
	QuitChar rune
	QuitFunc func()

	// AbortFunc, when set, is invoked instead of QuitFunc if a second
	// quit character arrives while the first is still pending -- the
	// upgrade path to a hard abort.
	AbortFunc func()

	// StopChar, when nonzero, is the debug stop character: it never
	// enters the ring, and its arrival invokes SuspendFunc (typically
	// wired to raise SIGTSTP on the process).
	StopChar    rune
	SuspendFunc func()

	// MouseTrack mirrors the dynamically scoped mouse-tracking flag:
	// while false, button-up events are filtered at the producer rather
	// than queued and skipped by the consumer.
	MouseTrack bool
	Movement   *MovementTracker

	mu       sync.Mutex
	dropped  int64
	quitFlag bool
	quitCh   chan struct{}
}

// Post is the producer entry point.
func (p *InputPump) Post(ev tcell.Event) {
	if ek, ok := ev.(*tcell.EventKey); ok && ek.Key() <= tcell.KeyRune {
		// tcell reports a control character as its own ASCII-range Key
		// rather than as KeyRune, so take the character from the Key then.
		r := ek.Rune()
		if ek.Key() != tcell.KeyRune {
			r = rune(ek.Key())
		}
		if p.QuitChar != 0 && r == p.QuitChar {
			p.mu.Lock()
			second := p.quitFlag
			p.quitFlag = true
			ch := p.quitCh
			p.mu.Unlock()
			if ch != nil {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
			if second && p.AbortFunc != nil {
				p.AbortFunc()
				return
			}
			if p.QuitFunc != nil {
				p.QuitFunc()
			}
			return
		}
		if p.StopChar != 0 && r == p.StopChar {
			if p.SuspendFunc != nil {
				p.SuspendFunc()
			}
			return
		}
	}
	if em, ok := ev.(*tcell.EventMouse); ok {
		if !p.MouseTrack && em.Buttons() == tcell.ButtonNone {
			return // button-up, filtered rather than queued
		}
	}
	if p.Ring.Enqueue(ev) != nil {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
	}
}

// QuitFlag reports whether a quit character has been posted and not yet
// consumed by GetEvent.
func (p *InputPump) QuitFlag() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quitFlag
}

func (p *InputPump) quitNotify() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quitCh == nil {
		p.quitCh = make(chan struct{}, 1)
	}
	if p.quitFlag {
		select {
		case p.quitCh <- struct{}{}:
		default:
		}
	}
	return p.quitCh
}

// takeQuit consumes a pending quit, clearing the flag.
func (p *InputPump) takeQuit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.quitFlag {
		return false
	}
	p.quitFlag = false
	return true
}

// SitFor waits up to d for input to become readable, on the same wait
// primitive GetEvent blocks on but with a finite deadline. It returns true
// as soon as something is readable (including a pending quit), false when
// the deadline passes first.
func (p *InputPump) SitFor(d time.Duration) bool {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	for {
		if p.QuitFlag() || p.ReadableEvents() {
			return true
		}
		select {
		case <-p.Ring.ready:
			// loop: re-check, the token may predate a dequeue
		case <-p.quitNotify():
			return true
		case <-deadline.C:
			return false
		}
	}
}

// GetEvent blocks until the next event is available and returns it. A quit
// character posted while the consumer is blocked here short-circuits the
// queue: GetEvent returns it as if it were the next event, a fresh
// EventKey carrying QuitChar, with the quit flag cleared. Queued events
// already in the ring are delivered first only when no quit is pending.
func (p *InputPump) GetEvent(ctx context.Context) (tcell.Event, error) {
	for {
		if p.takeQuit() {
			return tcell.NewEventKey(tcell.KeyRune, p.QuitChar, tcell.ModNone), nil
		}
		if ev, ok := p.Ring.TryDequeue(); ok {
			return ev, nil
		}
		select {
		case <-p.Ring.ready:
		case <-p.quitNotify():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Dropped reports how many events the producer has discarded because the
// ring was at its capacity limit.
func (p *InputPump) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// ReadableEvents reports whether a consumer would find input: the ring holds
// an event (button-ups having already been filtered at Post time), or
// movement tracking is enabled (movement events are always "readable" on
// demand, since they are materialized from the single last-position slot
// rather than queued).
func (p *InputPump) ReadableEvents() bool {
	if p.Ring.Readable() {
		return true
	}
	return p.Movement != nil && p.Movement.Enabled()
}
