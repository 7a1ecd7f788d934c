package profiler

import "time"

// ProfilerBuilderOption is a functional option applied to a Profiler during construction.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often statistics are reported.
//
// Parameters:
//   - d: the reporting interval, ignored if not positive
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithReportCallback registers a function called with every completed window, after logging.
//
// Parameters:
//   - fn: the callback, invoked on the goroutine calling Tick
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithReportCallback(fn func(Stats)) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.onReport = fn
	}
}
