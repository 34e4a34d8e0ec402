// Package focus attributes wall-clock time to the focused window and
// classifies it as working or playing.
package focus

import (
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// bucket accumulates time for one window class, split by title.
// total == working + playing, and details[k] == workingDetails[k] + playingDetails[k].
type bucket struct {
	total          time.Duration
	working        time.Duration
	playing        time.Duration
	details        map[string]time.Duration
	workingDetails map[string]time.Duration
	playingDetails map[string]time.Duration
}

func newBucket() *bucket {
	return &bucket{
		details:        make(map[string]time.Duration),
		workingDetails: make(map[string]time.Duration),
		playingDetails: make(map[string]time.Duration),
	}
}

func (b *bucket) track(title string, d time.Duration, working bool) {
	b.total += d
	b.details[title] += d
	if working {
		b.working += d
		b.workingDetails[title] += d
	} else {
		b.playing += d
		b.playingDetails[title] += d
	}
}

func (b *bucket) view(kind domain.ReportKind) (time.Duration, map[string]time.Duration) {
	switch kind {
	case domain.ReportWorking:
		return b.working, b.workingDetails
	case domain.ReportPlaying:
		return b.playing, b.playingDetails
	default:
		return b.total, b.details
	}
}

// Accumulator owns the per-class buckets and the running totals.
// It is safe for concurrent use.
type Accumulator struct {
	mu                 sync.Mutex
	buckets            map[string]*bucket
	working            time.Duration
	playing            time.Duration
	workingSinceReport time.Duration
	playingSinceReport time.Duration
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{buckets: make(map[string]*bucket)}
}

// Track adds d to the bucket for class/title. Negative durations count as zero.
func (a *Accumulator) Track(class, title string, d time.Duration, working bool) {
	if d < 0 {
		d = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[class]
	if !ok {
		b = newBucket()
		a.buckets[class] = b
	}
	b.track(title, d, working)

	if working {
		a.working += d
		a.workingSinceReport += d
	} else {
		a.playing += d
		a.playingSinceReport += d
	}
}

// Report returns the totals and per-class breakdown for kind, which must be
// all, working or playing. Buckets with nothing to report are omitted.
// An all-kind report drains the since-report counters.
func (a *Accumulator) Report(kind domain.ReportKind) domain.FocusReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	rep := domain.FocusReport{
		Kind:    kind,
		Working: a.working,
		Playing: a.playing,
		Targets: make(map[string]domain.TargetReport),
	}
	if kind == domain.ReportAll {
		rep.Total = a.working + a.playing
		rep.SinceReport = &domain.SinceReport{
			Working: a.workingSinceReport,
			Playing: a.playingSinceReport,
		}
		a.workingSinceReport = 0
		a.playingSinceReport = 0
	}

	for class, b := range a.buckets {
		total, details := b.view(kind)
		if total == 0 {
			continue
		}
		copied := make(map[string]time.Duration, len(details))
		for k, v := range details {
			copied[k] = v
		}
		rep.Targets[class] = domain.TargetReport{Total: total, Details: copied}
	}
	return rep
}

// Reset clears every bucket, total and counter.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = make(map[string]*bucket)
	a.working = 0
	a.playing = 0
	a.workingSinceReport = 0
	a.playingSinceReport = 0
}
