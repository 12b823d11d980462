package gwasm

// ProgressObserver receives lifecycle hooks for a tracked computation:
// Start once before any progress, Update zero or more times with the
// daemon-reported progress values in the order they were polled, and Stop
// once if the task runs to completion. All hooks are delivered from a
// single goroutine, so implementations need no locking of their own.
//
// Progress values are relayed exactly as the daemon reported them; they are
// not clamped, deduplicated or forced to be monotonic.
type ProgressObserver interface {
	Start()
	Update(progress float64)
	Stop()
}

// NopObserver implements ProgressObserver with no-op hooks. Embed it to
// implement only the hooks you care about.
type NopObserver struct{}

func (NopObserver) Start()         {}
func (NopObserver) Update(float64) {}
func (NopObserver) Stop()          {}
