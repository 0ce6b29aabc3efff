package sync

import (
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ruskoloma/bible365/internal/logger"
)

// Watcher observes the local store's database file and invokes a callback
// when another process writes to it. Events are debounced so a burst of
// writes (sqlite touches the db and its journal together) produces one
// reload.
type Watcher struct {
	fw       *fsnotify.Watcher
	base     string
	onChange func()

	mu    gosync.Mutex
	timer *time.Timer

	stopCh chan struct{}
	wg     gosync.WaitGroup
}

const watchDebounce = 300 * time.Millisecond

// NewWatcher watches the store database at path. onChange runs on the
// watcher's goroutine after writes settle.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: sqlite replaces journal files, and editors of
	// any kind may rename-over, which drops a watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:       fw,
		base:     filepath.Base(path),
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("watcher: %s %s", event.Op, event.Name)
			w.schedule()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: %v", err)
		}
	}
}

// relevant reports whether the event touches the database file or one of
// its sqlite sidecar files (-wal, -journal).
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(event.Name)
	return name == w.base || name == w.base+"-wal" || name == w.base+"-journal"
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, w.onChange)
}

// Stop halts the watcher and cancels any pending callback.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fw.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
}
