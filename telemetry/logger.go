// Package telemetry provides lightweight, dependency-free logging and
// render-latency tracking for the engine, in the same plain fmt/log idiom
// used throughout the rest of this codebase.
package telemetry

import (
	"log"
	"sync"
	"time"
)

// Logger wraps the standard logger with the handful of levels the engine
// actually emits.
type Logger struct {
	prefix string
}

// NewLogger creates a logger that prefixes every line with name.
func NewLogger(name string) *Logger {
	return &Logger{prefix: name}
}

func (l *Logger) Info(format string, args ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{l.prefix}, args...)...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	log.Printf("[%s] WARNING: "+format, append([]interface{}{l.prefix}, args...)...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	log.Printf("[%s] ERROR: "+format, append([]interface{}{l.prefix}, args...)...)
}

// PerfCounter tracks the duration of the most recent and worst operation
// seen, guarded by its own lock so the render path and a reporting
// goroutine can't race.
type PerfCounter struct {
	mu      sync.RWMutex
	last    time.Duration
	max     time.Duration
	samples int64
}

// Record registers one operation's duration.
func (p *PerfCounter) Record(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = d
	if d > p.max {
		p.max = d
	}
	p.samples++
}

// Stats returns the last-recorded duration, the worst seen, and the total
// number of samples recorded.
func (p *PerfCounter) Stats() (last, max time.Duration, samples int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.max, p.samples
}

// Time records how long fn takes to run and returns its error, if any.
func (p *PerfCounter) Time(fn func() error) error {
	start := time.Now()
	err := fn()
	p.Record(time.Since(start))
	return err
}
