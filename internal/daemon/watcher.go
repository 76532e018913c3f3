package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp is the kind of change seen on the database file.
type EventOp int

const (
	// OpWrite covers writes to the database or its WAL and journal files.
	OpWrite EventOp = iota
	// OpCreate means the file appeared (first open, restored backup).
	OpCreate
	// OpRemove means the file was removed or renamed away.
	OpRemove
)

func (op EventOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// FileEvent is a change to the watched database.
type FileEvent struct {
	// Path is the file that changed: the database itself or a sibling such
	// as <db>-wal.
	Path string
	Op   EventOp
}

// FileWatcher watches a SQLite database file and its WAL and journal
// siblings. The parent directory is watched rather than the file so that
// the watch survives the file being replaced.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	names   map[string]bool
}

// NewFileWatcher creates a watcher. It emits nothing until Start.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start watches dbPath.
func (fw *FileWatcher) Start(dbPath string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dbPath, err)
	}
	base := filepath.Base(abs)
	fw.names = map[string]bool{
		base:              true,
		base + "-wal":     true,
		base + "-journal": true,
	}

	dir := filepath.Dir(abs)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels. It blocks
// until the event loop has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the change channel. It is closed by Stop.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the error channel. It is closed by Stop.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent keeps events on the database files and drops chmod and
// unrelated files in the same directory.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	if !fw.names[filepath.Base(event.Name)] {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemove
	default:
		return FileEvent{}, false
	}

	return FileEvent{Path: event.Name, Op: op}, true
}

// IsRunning reports whether the watcher has been started and not stopped.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}
