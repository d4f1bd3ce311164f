// Package progress reports per-file pipeline progress either as interactive
// bars or as throttled log lines.
package progress

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Tracker tracks progress for a single file.
type Tracker interface {
	SetStage(stage string)
	// SetProgress reports bytes read against the object size. total is -1
	// when the size is unknown.
	SetProgress(current, total int64)
	SetCounter(name string, value int64)
	Done()
}

// Manager creates trackers for individual files.
type Manager interface {
	NewTracker(index, total int, filename string) Tracker
	// SetTotals reports batch-level counts after each file finishes.
	SetTotals(done, failed int, records int64)
	Wait()
}

// MPBManager implements Manager using the mpb multi-progress-bar library.
type MPBManager struct {
	container *mpb.Progress
	totals    atomic.Value
}

// NewMPBManager creates a new mpb-based progress manager.
func NewMPBManager() *MPBManager {
	m := &MPBManager{container: mpb.New(mpb.WithWidth(60))}
	m.totals.Store("")
	return m
}

// NewTracker adds a bar for one file. The bar tracks percent of bytes read
// and shows the stage and counters next to it.
func (m *MPBManager) NewTracker(index, total int, filename string) Tracker {
	t := &mpbTracker{counters: map[string]int64{}}
	t.status.Store("")
	t.bar = m.container.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s ", index+1, total, filename), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				return t.status.Load().(string)
			}),
		),
	)
	return t
}

func (m *MPBManager) SetTotals(done, failed int, records int64) {
	m.totals.Store(fmt.Sprintf("%d done, %d failed, %s records", done, failed, humanCount(records)))
}

// Wait waits for all bars to finish, then prints the batch totals.
func (m *MPBManager) Wait() {
	m.container.Wait()
	if totals := m.totals.Load().(string); totals != "" {
		fmt.Fprintln(os.Stderr, totals)
	}
}

type mpbTracker struct {
	bar    *mpb.Bar
	status atomic.Value

	mu       sync.Mutex
	stage    string
	counters map[string]int64
}

func (t *mpbTracker) render() {
	names := make([]string, 0, len(t.counters))
	for name := range t.counters {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(t.stage)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s=%s", name, humanCount(t.counters[name]))
	}
	t.status.Store(b.String())
}

func (t *mpbTracker) SetStage(stage string) {
	t.mu.Lock()
	t.stage = stage
	t.render()
	t.mu.Unlock()
	t.bar.SetCurrent(0)
}

func (t *mpbTracker) SetProgress(current, total int64) {
	if total > 0 {
		t.bar.SetCurrent(current * 100 / total)
	}
}

func (t *mpbTracker) SetCounter(name string, value int64) {
	t.mu.Lock()
	t.counters[name] = value
	t.render()
	t.mu.Unlock()
}

func (t *mpbTracker) Done() {
	t.bar.SetCurrent(100)
	t.bar.Abort(false) // complete without removing
}

// NoopManager discards progress but keeps the batch totals so callers can
// inspect them.
type NoopManager struct {
	Done    atomic.Int32
	Failed  atomic.Int32
	Records atomic.Int64
}

func (m *NoopManager) NewTracker(int, int, string) Tracker { return noopTracker{} }

func (m *NoopManager) SetTotals(done, failed int, records int64) {
	m.Done.Store(int32(done))
	m.Failed.Store(int32(failed))
	m.Records.Store(records)
}

func (m *NoopManager) Wait() {}

type noopTracker struct{}

func (noopTracker) SetStage(string)          {}
func (noopTracker) SetProgress(int64, int64) {}
func (noopTracker) SetCounter(string, int64) {}
func (noopTracker) Done()                    {}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func humanCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 10_000:
		return fmt.Sprintf("%.1fk", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}
