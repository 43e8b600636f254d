package file

import (
	"math"
	"time"

	"github.com/opd-ai/jingle/limits"
)

// sample is one (timestamp, bytes-past-offset) progress observation.
type sample struct {
	at    time.Time
	bytes uint64
}

// rateEstimator derives transfer speed from a bounded window of progress
// samples. With fewer than two samples it falls back to the average rate
// since the transfer started; with two or more it uses the moving rate
// across the retained window. History beyond limits.SampleWindow samples
// is forgotten so the estimate tracks recent network conditions rather
// than session-lifetime averages.
type rateEstimator struct {
	samples []sample
}

// add records a progress observation, evicting the oldest sample once the
// window is full.
func (e *rateEstimator) add(at time.Time, bytes uint64) {
	e.samples = append(e.samples, sample{at: at, bytes: bytes})
	if len(e.samples) > limits.SampleWindow {
		e.samples = e.samples[1:]
	}
}

// reset discards all retained samples. Called on pause so a paused
// interval's zero-throughput stretch cannot poison the moving-rate window
// after resume.
func (e *rateEstimator) reset() {
	e.samples = nil
}

// count returns the number of retained samples.
func (e *rateEstimator) count() int {
	return len(e.samples)
}

// speed returns bytes per second. transferred and elapsed describe overall
// progress since the transfer started and back the degenerate single-sample
// case. A zero result means no estimate is available; callers must report
// zero rather than divide by it.
func (e *rateEstimator) speed(transferred uint64, elapsed time.Duration) float64 {
	if len(e.samples) == 0 {
		return 0
	}
	if len(e.samples) == 1 {
		if elapsed <= 0 {
			return 0
		}
		return math.Round(float64(transferred) / elapsed.Seconds())
	}

	first := e.samples[0]
	last := e.samples[len(e.samples)-1]
	dt := last.at.Sub(first.at).Seconds()
	if dt <= 0 {
		return 0
	}
	return math.Round(float64(last.bytes-first.bytes) / dt)
}
