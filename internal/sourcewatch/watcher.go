// Package sourcewatch triggers a source reload when the spreadsheet behind
// the contact service changes on disk, or on a jittered poll interval when
// the file is not reachable from this host.
package sourcewatch

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultMinInterval = 2 * time.Second

type Logger interface {
	Printf(format string, args ...any)
}

type ReloadFunc func(ctx context.Context) error

type Options struct {
	// Path is the watched source file. Empty disables file watching.
	Path string
	// MinInterval is the shortest gap between two reloads. Events arriving
	// sooner are folded into one trailing reload.
	MinInterval time.Duration
	// PollInterval reloads periodically regardless of file events. Zero
	// disables polling.
	PollInterval time.Duration
	// PollJitter is the poll interval jitter ratio in [0, 1].
	PollJitter    float64
	ReloadTimeout time.Duration
	Logger        Logger
}

type Watcher struct {
	opts   Options
	reload ReloadFunc
	rng    *rand.Rand

	mu         sync.Mutex
	lastReload time.Time
	reloads    int
}

func New(opts Options, reload ReloadFunc) (*Watcher, error) {
	if reload == nil {
		return nil, fmt.Errorf("reload func is required")
	}
	opts.Path = strings.TrimSpace(opts.Path)
	if opts.Path == "" && opts.PollInterval <= 0 {
		return nil, fmt.Errorf("path or poll interval is required")
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = 30 * time.Second
	}
	opts.PollJitter = clampJitterRatio(opts.PollJitter)
	return &Watcher{
		opts:   opts,
		reload: reload,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Reloads reports how many reloads have run.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if w.opts.Path != "" {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer fsw.Close()
		// editors replace the file, so watch the directory and filter by name
		if err := fsw.Add(filepath.Dir(w.opts.Path)); err != nil {
			return fmt.Errorf("watch %s: %w", w.opts.Path, err)
		}
		events, watchErrs = fsw.Events, fsw.Errors
		w.logf("watching %s", w.opts.Path)
	}

	var poll <-chan time.Time
	var pollTimer *time.Timer
	if w.opts.PollInterval > 0 {
		pollTimer = time.NewTimer(w.nextPoll())
		defer pollTimer.Stop()
		poll = pollTimer.C
	}

	pending := time.NewTimer(time.Hour)
	if !pending.Stop() {
		<-pending.C
	}
	defer pending.Stop()
	scheduled := false

	for {
		select {
		case <-ctx.Done():
			w.logf("source watch stopping: %v", ctx.Err())
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !w.relevant(event) || scheduled {
				continue
			}
			pending.Reset(w.wait())
			scheduled = true
		case err, ok := <-watchErrs:
			if !ok {
				return nil
			}
			w.logf("source watch error: %v", err)
		case <-pending.C:
			scheduled = false
			w.run(ctx, "source changed")
		case <-poll:
			w.run(ctx, "poll")
			pollTimer.Reset(w.nextPoll())
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.opts.Path) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// wait is how long a reload must be deferred to honour MinInterval.
func (w *Watcher) wait() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastReload.IsZero() {
		return 0
	}
	remaining := w.opts.MinInterval - time.Since(w.lastReload)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (w *Watcher) run(ctx context.Context, reason string) {
	reloadCtx, cancel := context.WithTimeout(ctx, w.opts.ReloadTimeout)
	defer cancel()
	err := w.reload(reloadCtx)
	w.mu.Lock()
	w.lastReload = time.Now()
	w.reloads++
	w.mu.Unlock()
	if err != nil {
		w.logf("source reload (%s) failed: %v", reason, err)
		return
	}
	w.logf("source reload (%s) completed", reason)
}

func (w *Watcher) nextPoll() time.Duration {
	return jitteredIntervalWithSample(w.opts.PollInterval, w.opts.PollJitter, w.rng.Float64())
}

func (w *Watcher) logf(format string, args ...any) {
	if w.opts.Logger == nil {
		return
	}
	w.opts.Logger.Printf(format, args...)
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
