// Package watch assesses submissions dropped into a directory.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semgrade/submission"
	"github.com/fsnotify/fsnotify"
)

const (
	// eventChannelBuffer is the size of the watch event channel.
	eventChannelBuffer = 500

	// DefaultDebounce is the settle time before a changed file is reported.
	DefaultDebounce = 500 * time.Millisecond
)

// Operation indicates the type of file change.
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Event is a settled change to a submission file.
type Event struct {
	// Path is relative to the watched directory.
	Path      string
	AbsPath   string
	Operation Operation
}

type change struct {
	op   fsnotify.Op
	last time.Time
}

// Watcher reports submission files created, changed or removed under a
// directory. Saves that leave the content unchanged are not reported.
type Watcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	excludes map[string]bool

	// pending collects changes until a file has been quiet for debounce.
	pendingMu sync.Mutex
	pending   map[string]*change

	hashMu sync.RWMutex
	hashes map[string]string

	events  chan Event
	done    chan struct{}
	started atomic.Bool

	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher for dir. excludes are absolute or
// dir-relative paths of subdirectories to skip, such as the results
// directory.
func NewWatcher(dir string, debounce time.Duration, excludes []string, logger *slog.Logger) (*Watcher, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ex := make(map[string]bool)
	for _, e := range excludes {
		if !filepath.IsAbs(e) {
			e = filepath.Join(absDir, e)
		}
		ex[filepath.Clean(e)] = true
	}

	return &Watcher{
		dir:      absDir,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		excludes: ex,
		pending:  make(map[string]*change),
		hashes:   make(map[string]string),
		events:   make(chan Event, eventChannelBuffer),
		done:     make(chan struct{}),
	}, nil
}

// Events returns the channel of settled changes. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching. When seed is true, files already present are
// reported as created on the first flush.
func (w *Watcher) Start(ctx context.Context, seed bool) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(w.dir, seed); err != nil {
		return err
	}

	w.started.Store(true)
	go w.processEvents(ctx)

	w.logger.Info("Submission watcher started",
		"dir", w.dir,
		"debounce", w.debounce)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	if w.started.Load() {
		<-w.done
	}
	return err
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

func (w *Watcher) skipDir(path string) bool {
	base := filepath.Base(path)
	if path != w.dir && strings.HasPrefix(base, ".") {
		return true
	}
	return w.excludes[filepath.Clean(path)]
}

func (w *Watcher) addWatchesRecursive(root string, seed bool) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if seed && w.wanted(path) {
				w.note(path, fsnotify.Create, time.Time{})
			}
			return nil
		}
		if w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

// wanted reports whether path is a submission file outside excluded dirs.
func (w *Watcher) wanted(path string) bool {
	if !submission.Supported(path) || strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	for dir := filepath.Dir(path); dir != w.dir && len(dir) > len(w.dir); dir = filepath.Dir(dir) {
		if w.skipDir(dir) {
			return false
		}
	}
	return true
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)
	ticker := time.NewTicker(max(w.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.skipDir(path) {
				// Files copied in with the directory produce no events of their own.
				if err := w.addWatchesRecursive(path, true); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if !w.wanted(path) {
		return
	}

	w.note(path, event.Op, time.Now())
	w.logger.Debug("Submission change detected", "path", path, "op", event.Op.String())
}

func (w *Watcher) note(path string, op fsnotify.Op, at time.Time) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	c, ok := w.pending[path]
	if !ok {
		c = &change{}
		w.pending[path] = c
	}
	c.op |= op
	c.last = at
}

// settled removes and returns the pending changes that have been quiet for
// at least the debounce delay.
func (w *Watcher) settled(now time.Time) map[string]fsnotify.Op {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	out := make(map[string]fsnotify.Op)
	for path, c := range w.pending {
		if now.Sub(c.last) >= w.debounce {
			out[path] = c.op
			delete(w.pending, path)
		}
	}
	return out
}

func (w *Watcher) flushPending(ctx context.Context) {
	toProcess := w.settled(time.Now())

	for path, op := range toProcess {
		if ctx.Err() != nil {
			return
		}

		relPath, _ := filepath.Rel(w.dir, path)
		event := Event{Path: relPath, AbsPath: path}

		content, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			w.hashMu.Lock()
			_, tracked := w.hashes[relPath]
			delete(w.hashes, relPath)
			w.hashMu.Unlock()
			if tracked {
				event.Operation = OpDelete
				w.sendEvent(event)
			}
			continue
		}
		if err != nil {
			w.logger.Warn("Failed to read changed file", "path", relPath, "error", err)
			continue
		}

		newHash := contentHash(content)
		oldHash, hadHash := w.hash(relPath)
		if hadHash && oldHash == newHash {
			continue
		}
		w.setHash(relPath, newHash)

		if op.Has(fsnotify.Create) || !hadHash {
			event.Operation = OpCreate
		} else {
			event.Operation = OpModify
		}
		w.sendEvent(event)
	}
}

func (w *Watcher) hash(rel string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	h, ok := w.hashes[rel]
	return h, ok
}

func (w *Watcher) setHash(rel, h string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[rel] = h
}

func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent watch event", "path", event.Path, "op", event.Operation)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
