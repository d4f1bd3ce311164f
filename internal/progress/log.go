package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const logInterval = 20 * time.Second

// LogManager implements Manager with throttled log lines for non-TTY runs
// such as containers and CI.
type LogManager struct {
	log      logrus.FieldLogger
	interval time.Duration
}

// NewLogManager creates a log-based progress manager.
func NewLogManager(log logrus.FieldLogger) *LogManager {
	return &LogManager{log: log, interval: logInterval}
}

func (m *LogManager) NewTracker(index, total int, filename string) Tracker {
	return &logTracker{
		mgr:   m,
		log:   m.log.WithField("file", fmt.Sprintf("[%d/%d] %s", index+1, total, filename)),
		start: time.Now(),
	}
}

func (m *LogManager) SetTotals(done, failed int, records int64) {
	m.log.WithFields(logrus.Fields{
		"done":    done,
		"failed":  failed,
		"records": records,
	}).Info("batch progress")
}

func (m *LogManager) Wait() {}

// logTracker is used from a single worker goroutine, except for byte
// progress which arrives from the reader; mu covers both.
type logTracker struct {
	mgr   *LogManager
	log   *logrus.Entry
	start time.Time

	mu        sync.Mutex
	stage     string
	lastLog   time.Time
	prevBytes int64
	prevTime  time.Time
}

func (t *logTracker) SetStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.lastLog = time.Time{} // next progress update prints
	t.prevBytes = 0
	t.prevTime = time.Time{}
	t.log.Info(stage)
}

func (t *logTracker) SetProgress(current, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if now.Sub(t.lastLog) < t.mgr.interval {
		return
	}

	entry := t.log.WithField("read", humanBytes(current))
	if !t.prevTime.IsZero() {
		if elapsed := now.Sub(t.prevTime).Seconds(); elapsed > 0 {
			mbps := float64(current-t.prevBytes) / elapsed / (1024 * 1024)
			entry = entry.WithField("speed", fmt.Sprintf("%.1f MB/s", mbps))
		}
	}
	if total > 0 {
		entry = entry.WithFields(logrus.Fields{
			"size": humanBytes(total),
			"pct":  fmt.Sprintf("%.0f%%", float64(current)/float64(total)*100),
		})
	}
	t.prevBytes = current
	t.prevTime = now
	t.lastLog = now
	entry.Info(t.stage)
}

func (t *logTracker) SetCounter(name string, value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.lastLog) < t.mgr.interval {
		return
	}
	t.lastLog = time.Now()
	t.log.WithField(name, humanCount(value)).Info(t.stage)
}

func (t *logTracker) Done() {
	t.log.WithField("elapsed", time.Since(t.start).Truncate(time.Millisecond)).Info("finished")
}
