// Package progress implements a throttled, thread-safe progress reporter.
//
// Progress is advisory only: loops increment a Reporter as they go, and the
// Reporter prints at most one update per interval. Nothing about iteration
// depends on it.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultInterval is the minimum time between two printed updates.
var DefaultInterval = 100 * time.Millisecond

// Reporter tracks processed/total counts for a labelled operation.
// A nil *Reporter is valid and does nothing.
type Reporter struct {
	label    string
	total    atomic.Int64
	count    atomic.Int64
	interval time.Duration

	mu        sync.Mutex
	out       io.Writer
	lastPrint time.Time
	lastPct   atomic.Int32
	done      bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithWriter sets the output destination; the default is os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(r *Reporter) { r.out = w }
}

// WithInterval sets the throttling interval.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) { r.interval = d }
}

// New creates a reporter with the given label and total count.
func New(label string, total int64, opts ...Option) *Reporter {
	r := &Reporter{
		label:    label,
		interval: DefaultInterval,
		out:      os.Stderr,
	}
	r.lastPct.Store(-1)
	r.total.Store(total)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Label returns the label passed to New.
func (r *Reporter) Label() string {
	if r == nil {
		return ""
	}
	return r.label
}

// SetTotal changes the expected total count.
func (r *Reporter) SetTotal(total int64) {
	if r == nil {
		return
	}
	r.total.Store(total)
}

// Count returns the number of units processed so far.
func (r *Reporter) Count() int64 {
	if r == nil {
		return 0
	}
	return r.count.Load()
}

// Total returns the expected total count.
func (r *Reporter) Total() int64 {
	if r == nil {
		return 0
	}
	return r.total.Load()
}

// Inc records one processed unit.
func (r *Reporter) Inc() { r.Add(1) }

// Add records n processed units and prints an update if the interval has elapsed.
func (r *Reporter) Add(n int64) {
	if r == nil {
		return
	}
	count := r.count.Add(n)
	r.maybePrint(count, false)
}

// Done marks the operation complete and prints the final line.
func (r *Reporter) Done() {
	if r == nil {
		return
	}
	r.maybePrint(r.count.Load(), true)
}

func (r *Reporter) maybePrint(count int64, final bool) {
	total := r.total.Load()
	pct := int32(100)
	if total > 0 && count < total {
		pct = int32(100 * count / total)
	}
	// Loops call Add once per voxel; skip the lock unless the percentage moved.
	if !final && pct == r.lastPct.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPct.Store(pct)
	now := time.Now()
	if r.done || (!final && now.Sub(r.lastPrint) < r.interval) {
		return
	}
	r.lastPrint = now
	if final {
		r.done = true
		fmt.Fprintf(r.out, "\r%s: 100%% (%s / %s)\n", r.label, humanize.Comma(count), humanize.Comma(total))
		return
	}
	fmt.Fprintf(r.out, "\r%s: %d%% (%s / %s)", r.label, pct, humanize.Comma(count), humanize.Comma(total))
}
