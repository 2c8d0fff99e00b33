package workspace

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rjeczalik/notify"
)

const (
	DefaultQuietPeriod = 500 * time.Millisecond
	eventBufferSize    = 256
)

// FilterCallback returns true if the event for path should be dropped
type FilterCallback func(path string) bool

// Watcher reports changed paths below a directory. Bursts of events are
// coalesced: a change set is emitted once no event arrived for the quiet period.
type Watcher struct {
	watchDir    string
	quietPeriod time.Duration
	filter      FilterCallback

	rawEvents chan notify.EventInfo
	changes   chan []string
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewWatcher(watchDir string, filter FilterCallback) *Watcher {
	return &Watcher{
		watchDir:    watchDir,
		quietPeriod: DefaultQuietPeriod,
		filter:      filter,
		done:        make(chan struct{}),
	}
}

// Watcher returns a watcher over the workspace root that skips ignored paths
func (w *Workspace) Watcher() *Watcher {
	return NewWatcher(w.Root, w.IsIgnored)
}

func (fw *Watcher) SetQuietPeriod(d time.Duration) {
	fw.quietPeriod = d
}

func (fw *Watcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.changes = make(chan []string, 1)

	if err := notify.Watch(fw.watchDir+"/...", fw.rawEvents, notify.All); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.collect(ctx)
	return nil
}

func (fw *Watcher) Stop() {
	fw.stopOnce.Do(func() {
		close(fw.done)
		if fw.rawEvents != nil {
			notify.Stop(fw.rawEvents)
		}
		fw.wg.Wait()
		slog.Info("file watcher stopped")
	})
}

// Changes delivers sorted change sets. It is closed when the watcher stops.
func (fw *Watcher) Changes() <-chan []string {
	return fw.changes
}

func (fw *Watcher) collect(ctx context.Context) {
	defer fw.wg.Done()
	defer close(fw.changes)

	pending := mapset.NewThreadUnsafeSet[string]()
	timer := time.NewTimer(fw.quietPeriod)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return

		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			path := event.Path()
			if fw.filter != nil && fw.filter(path) {
				continue
			}
			pending.Add(path)
			// editors write in bursts, wait for them to settle
			timer.Reset(fw.quietPeriod)

		case <-timer.C:
			if pending.Cardinality() == 0 {
				continue
			}
			changed := slices.Sorted(slices.Values(pending.ToSlice()))
			pending.Clear()
			select {
			case fw.changes <- changed:
				slog.Debug("file watcher", "changed", len(changed))
			case <-ctx.Done():
				return
			case <-fw.done:
				return
			}
		}
	}
}
