package gwasm

import (
	"fmt"
	"sync"
)

// progressNotifier owns a ProgressObserver on behalf of a computation. A
// single worker goroutine delivers every hook, which keeps deliveries
// ordered and spares observer implementations any locking. Notify waits for
// the worker to accept each value, so updates are handed over in call
// order and none is dropped while the worker lives.
type progressNotifier struct {
	updates chan float64
	finish  chan struct{}
	discard chan struct{}
	done    chan struct{}

	once sync.Once
	err  error
}

// newProgressNotifier starts the worker, which delivers the start hook
// before anything else.
func newProgressNotifier(observer ProgressObserver) *progressNotifier {
	n := &progressNotifier{
		updates: make(chan float64),
		finish:  make(chan struct{}),
		discard: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go n.run(observer)
	return n
}

func (n *progressNotifier) run(observer ProgressObserver) {
	defer close(n.done)
	defer func() {
		if r := recover(); r != nil {
			n.err = fmt.Errorf("%w: %v", ErrObserverFailed, r)
		}
	}()

	observer.Start()
	for {
		select {
		case progress := <-n.updates:
			observer.Update(progress)
		case <-n.finish:
			observer.Stop()
			return
		case <-n.discard:
			return
		}
	}
}

// Notify hands one progress value to the worker. It returns the observer's
// failure if a hook panicked; a non-nil return means the worker is gone and
// the computation should stop. Must not be called after Finish or Close.
func (n *progressNotifier) Notify(progress float64) error {
	select {
	case n.updates <- progress:
		return nil
	case <-n.done:
		return n.err
	}
}

// Finish delivers the stop hook after all accepted updates and waits for
// the worker to exit. It reports a hook panic the same way Notify does.
func (n *progressNotifier) Finish() error {
	n.once.Do(func() { close(n.finish) })
	<-n.done
	return n.err
}

// Close terminates the worker without the stop hook, for runs that end in
// an error or an interrupt. Calling it after Finish just waits for the
// worker; whichever signal came first wins.
func (n *progressNotifier) Close() {
	n.once.Do(func() { close(n.discard) })
	<-n.done
}
