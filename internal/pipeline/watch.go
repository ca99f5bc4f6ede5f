package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"stitcher/internal/logging"
)

// FragmentExt is the extension of fragment files in a steps directory.
const FragmentExt = ".js"

// LoadSteps reads every fragment file in dir, in lexical order.
func LoadSteps(dir string) ([]Step, error) {
	names, err := fragmentNames(dir)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read fragment %s: %w", name, err)
		}
		steps = append(steps, Step{Name: name, Code: string(data)})
	}
	return steps, nil
}

func fragmentNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), FragmentExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Watcher feeds fragment files that appear in a directory into a session.
// Each file is applied once, after writes to it have settled.
type Watcher struct {
	dir      string
	session  *Session
	onStep   func(StepReport, error)
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // name -> last event
	applied map[string]bool
}

// NewWatcher returns a Watcher for dir. Files already present count as
// applied when skipExisting is set. onStep, if non-nil, is called after
// every applied step.
func NewWatcher(dir string, s *Session, skipExisting bool, onStep func(StepReport, error)) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		session:  s,
		onStep:   onStep,
		debounce: 200 * time.Millisecond,
		pending:  make(map[string]time.Time),
		applied:  make(map[string]bool),
	}
	if skipExisting {
		names, err := fragmentNames(dir)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			w.applied[n] = true
		}
	}
	return w, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logging.Pipeline("watching %s for fragments", w.dir)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryPipeline).Error("watcher error: %v", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, FragmentExt) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.applied[name] {
		return
	}
	w.pending[name] = time.Now()
	logging.PipelineDebug("fragment event %s for %s", event.Op, name)
}

// flush applies settled fragments in lexical order.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	var ready []string
	now := time.Now()
	for name, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, name)
			delete(w.pending, name)
			w.applied[name] = true
		}
	}
	w.mu.Unlock()

	sort.Strings(ready)
	for _, name := range ready {
		data, err := os.ReadFile(filepath.Join(w.dir, name))
		if err != nil {
			logging.PipelineWarn("fragment %s vanished: %v", name, err)
			continue
		}
		report, err := w.session.Apply(ctx, Step{Name: name, Code: string(data)})
		if w.onStep != nil {
			w.onStep(report, err)
		}
	}
}
