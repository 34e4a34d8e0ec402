package focus

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

func sumDetails(details map[string]time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range details {
		sum += d
	}
	return sum
}

func TestAccumulator_Track(t *testing.T) {
	a := NewAccumulator()
	a.Track("firefox", "docs", 10*time.Second, true)
	a.Track("firefox", "youtube", 4*time.Second, false)
	a.Track("firefox", "docs", 5*time.Second, true)
	a.Track("steam", "Library", 7*time.Second, false)

	rep := a.Report(domain.ReportAll)

	assert.Equal(t, 26*time.Second, rep.Total)
	assert.Equal(t, 15*time.Second, rep.Working)
	assert.Equal(t, 11*time.Second, rep.Playing)
	require.NotNil(t, rep.SinceReport)
	assert.Equal(t, 15*time.Second, rep.SinceReport.Working)
	assert.Equal(t, 11*time.Second, rep.SinceReport.Playing)

	require.Contains(t, rep.Targets, "firefox")
	assert.Equal(t, 19*time.Second, rep.Targets["firefox"].Total)
	assert.Equal(t, map[string]time.Duration{"docs": 15 * time.Second, "youtube": 4 * time.Second},
		rep.Targets["firefox"].Details)
	assert.Equal(t, 7*time.Second, rep.Targets["steam"].Total)
}

func TestAccumulator_ReportKinds(t *testing.T) {
	a := NewAccumulator()
	a.Track("code", "main.go", 30*time.Second, true)
	a.Track("steam", "Dota", 20*time.Second, false)
	a.Track("firefox", "docs", 5*time.Second, true)
	a.Track("firefox", "reddit", 6*time.Second, false)

	working := a.Report(domain.ReportWorking)
	assert.Equal(t, domain.ReportWorking, working.Kind)
	assert.Nil(t, working.SinceReport)
	assert.NotContains(t, working.Targets, "steam", "zero working time is omitted")
	assert.Equal(t, 30*time.Second, working.Targets["code"].Total)
	assert.Equal(t, map[string]time.Duration{"docs": 5 * time.Second}, working.Targets["firefox"].Details)

	playing := a.Report(domain.ReportPlaying)
	assert.NotContains(t, playing.Targets, "code")
	assert.Equal(t, 20*time.Second, playing.Targets["steam"].Total)
	assert.Equal(t, map[string]time.Duration{"reddit": 6 * time.Second}, playing.Targets["firefox"].Details)

	// working/playing reports leave the since-report counters alone
	all := a.Report(domain.ReportAll)
	assert.Equal(t, 35*time.Second, all.SinceReport.Working)
	assert.Equal(t, 26*time.Second, all.SinceReport.Playing)
}

func TestAccumulator_ReportAllDrainsSinceCounters(t *testing.T) {
	a := NewAccumulator()
	a.Track("code", "x", time.Minute, true)
	a.Track("steam", "y", time.Minute, false)

	first := a.Report(domain.ReportAll)
	second := a.Report(domain.ReportAll)

	assert.Equal(t, time.Minute, first.SinceReport.Working)
	assert.Equal(t, time.Minute, first.SinceReport.Playing)
	assert.Zero(t, second.SinceReport.Working)
	assert.Zero(t, second.SinceReport.Playing)
	assert.Equal(t, 2*time.Minute, second.Total, "totals are not drained")

	a.Track("code", "x", 3*time.Second, true)
	third := a.Report(domain.ReportAll)
	assert.Equal(t, 3*time.Second, third.SinceReport.Working)
}

func TestAccumulator_ZeroAndNegativeDurations(t *testing.T) {
	a := NewAccumulator()
	a.Track("code", "x", 0, true)
	a.Track("code", "x", -5*time.Second, false)

	rep := a.Report(domain.ReportAll)

	assert.Zero(t, rep.Total)
	assert.Empty(t, rep.Targets, "bucket with zero total is omitted")
}

func TestAccumulator_Reset(t *testing.T) {
	a := NewAccumulator()
	a.Track("code", "x", time.Minute, true)
	a.Reset()

	rep := a.Report(domain.ReportAll)

	assert.Zero(t, rep.Total)
	assert.Zero(t, rep.Working)
	assert.Zero(t, rep.Playing)
	assert.Zero(t, rep.SinceReport.Working)
	assert.Empty(t, rep.Targets)
}

func TestAccumulator_Invariants(t *testing.T) {
	classes := []string{"code", "firefox", "steam", domain.IdleKey}
	titles := []string{"a", "b", "c"}
	rng := rand.New(rand.NewSource(7))

	a := NewAccumulator()
	for i := 0; i < 500; i++ {
		a.Track(classes[rng.Intn(len(classes))], titles[rng.Intn(len(titles))],
			time.Duration(rng.Intn(10_000))*time.Millisecond, rng.Intn(2) == 0)
	}

	a.mu.Lock()
	var working, playing time.Duration
	for class, b := range a.buckets {
		assert.Equal(t, b.total, b.working+b.playing, class)
		assert.Equal(t, b.total, sumDetails(b.details), class)
		for k, d := range b.details {
			assert.Equal(t, d, b.workingDetails[k]+b.playingDetails[k], "%s/%s", class, k)
		}
		working += b.working
		playing += b.playing
	}
	assert.Equal(t, a.working, working)
	assert.Equal(t, a.playing, playing)
	a.mu.Unlock()

	all := a.Report(domain.ReportAll)
	assert.Equal(t, all.Total, all.Working+all.Playing)
	var total time.Duration
	for _, tr := range all.Targets {
		assert.Equal(t, tr.Total, sumDetails(tr.Details))
		total += tr.Total
	}
	assert.Equal(t, all.Total, total)
}

func TestAccumulator_ReportIsACopy(t *testing.T) {
	a := NewAccumulator()
	a.Track("code", "x", time.Second, true)

	rep := a.Report(domain.ReportAll)
	rep.Targets["code"].Details["x"] = time.Hour

	again := a.Report(domain.ReportAll)
	assert.Equal(t, time.Second, again.Targets["code"].Details["x"])
}
