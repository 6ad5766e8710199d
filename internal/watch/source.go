package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const sourceBuffer = 256

// Source watches a directory tree recursively and delivers simplified
// events. New subdirectories are added to the watch as they appear; a
// directory moved into the tree announces the files it already contains
// as creations, since their write events predate the watch.
type Source struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
	errs    chan error

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewSource starts watching root and every directory below it.
func NewSource(root string) (*Source, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &Source{
		root:    abs,
		watcher: watcher,
		events:  make(chan Event, sourceBuffer),
		errs:    make(chan error, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if err := s.addTree(abs, false); err != nil {
		watcher.Close()
		return nil, err
	}

	go s.loop()
	return s, nil
}

// Events returns the event stream. The channel is closed after Close.
func (s *Source) Events() <-chan Event {
	return s.events
}

// Errors returns watcher errors worth logging.
func (s *Source) Errors() <-chan error {
	return s.errs
}

// Close stops the watch. Safe to call more than once.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		err = s.watcher.Close()
		<-s.done
	})
	return err
}

// addTree watches dir and its subdirectories. With announce set, regular
// files found along the way are emitted as creations.
func (s *Source) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}

		rel, rerr := filepath.Rel(s.root, path)
		if rerr == nil && Skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if werr := s.watcher.Add(path); werr != nil && path == dir {
				return werr
			}
			return nil
		}

		if announce && d.Type().IsRegular() {
			s.emit(Event{Path: path, Op: OpCreate})
		}
		return nil
	})
}

func (s *Source) loop() {
	defer close(s.done)
	defer close(s.events)
	for {
		select {
		case <-s.quit:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errs <- err:
			default:
			}
		}
	}
}

func (s *Source) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(s.root, ev.Name)
	if err != nil || Skip(rel) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, serr := os.Stat(ev.Name); serr == nil && info.IsDir() {
			_ = s.addTree(ev.Name, true)
			return
		}
		s.emit(Event{Path: ev.Name, Op: OpCreate})
	case ev.Op.Has(fsnotify.Write):
		s.emit(Event{Path: ev.Name, Op: OpWrite})
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		s.emit(Event{Path: ev.Name, Op: OpRemove})
	}
}

func (s *Source) emit(e Event) {
	select {
	case s.events <- e:
	case <-s.quit:
	}
}
