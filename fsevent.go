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

package edcell

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gdamore/tcell/v2"
)

// FileNotifyAction is the closed action enumeration carried by
// file-notify events.
type FileNotifyAction int

const (
	FileChanged FileNotifyAction = iota
	FileChangesDoneHint
	FileDeleted
	FileCreated
	FileAttributeChanged
	FilePreUnmount
	FileUnmounted
	FileMoved
)

// WatchFlag is drawn from the closed enumeration for add_watch:
// {watch-mounts, send-moved}.
type WatchFlag int

const (
	WatchMounts WatchFlag = 1 << iota
	WatchSendMoved
)

// WatchID is the opaque descriptor add_watch returns.
type WatchID uint64

// EventFileNotify is the canonical (DESCRIPTOR, ACTION, FILE [, FILE2])
// event. FileWatcher never sets File2: a FileMoved event carries only
// File.
type EventFileNotify struct {
	tcell.EventTime
	Descriptor WatchID
	Action     FileNotifyAction
	File       string
	File2      string
}

type watchEntry struct {
	path  string
	flags WatchFlag
}

// FileWatcher realizes the filesystem-notify external interface
// (add_watch/rm_watch) on top of fsnotify, posting file_notify-kind
// Events the same way tcell's tScreen.PostEvent (tscreen.go) feeds
// terminal-derived events into the queue. fsnotify has no per-path
// callback or watch-mounts/send-moved knobs of its own, so FileWatcher
// multiplexes every watched path through the single post function given to
// NewFileWatcher and records flags purely for bookkeeping.
type FileWatcher struct {
	mu      sync.Mutex
	w       *fsnotify.Watcher
	next    WatchID
	watches map[WatchID]watchEntry
	post    func(tcell.Event)
	done    chan struct{}
}

// NewFileWatcher starts watching for filesystem changes and posts
// EventFileNotify (and EventError, on a watcher failure) values to post as
// fsnotify reports them.
func NewFileWatcher(post func(tcell.Event)) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewFileError("", err)
	}
	fw := &FileWatcher{
		w:       w,
		watches: make(map[WatchID]watchEntry),
		post:    post,
		done:    make(chan struct{}),
	}
	go fw.pump()
	return fw, nil
}

// AddWatch realizes add_watch(path, flags, callback): begins watching path
// and returns an opaque descriptor RmWatch later accepts to cancel it.
func (fw *FileWatcher) AddWatch(path string, flags WatchFlag) (WatchID, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.w.Add(path); err != nil {
		return 0, NewFileError(path, err)
	}
	fw.next++
	id := fw.next
	fw.watches[id] = watchEntry{path: path, flags: flags}
	return id, nil
}

// RmWatch cancels a previously added watch. The underlying fsnotify watch
// on the path is only removed once no other descriptor still references
// the same path.
func (fw *FileWatcher) RmWatch(id WatchID) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	e, ok := fw.watches[id]
	if !ok {
		return nil
	}
	delete(fw.watches, id)
	for _, other := range fw.watches {
		if other.path == e.path {
			return nil
		}
	}
	if err := fw.w.Remove(e.path); err != nil {
		return NewFileError(e.path, err)
	}
	return nil
}

// Close stops the watcher and releases its resources.
func (fw *FileWatcher) Close() error {
	close(fw.done)
	return fw.w.Close()
}

func (fw *FileWatcher) pump() {
	for {
		select {
		case <-fw.done:
			return
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			fw.dispatch(ev)
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			if fw.post != nil {
				fw.post(NewEventError(err))
			}
		}
	}
}

func (fw *FileWatcher) dispatch(ev fsnotify.Event) {
	descr := fw.descriptorFor(ev.Name)
	action := classifyFsnotifyOp(ev.Op)
	out := &EventFileNotify{Descriptor: descr, Action: action, File: ev.Name}
	out.SetEventNow()
	if fw.post != nil {
		fw.post(out)
	}
}

func (fw *FileWatcher) descriptorFor(path string) WatchID {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for id, e := range fw.watches {
		if e.path == path {
			return id
		}
	}
	return 0
}

func classifyFsnotifyOp(op fsnotify.Op) FileNotifyAction {
	switch {
	case op&fsnotify.Create != 0:
		return FileCreated
	case op&fsnotify.Remove != 0:
		return FileDeleted
	case op&fsnotify.Rename != 0:
		return FileMoved
	case op&fsnotify.Chmod != 0:
		return FileAttributeChanged
	case op&fsnotify.Write != 0:
		return FileChanged
	}
	return FileChangesDoneHint
}
