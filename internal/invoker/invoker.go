// Package invoker spawns and tracks the goroutines backing an endpoint's
// concurrent activities (receive loop, timer callbacks, holdback drains),
// so shutdown can wait for every in-flight task instead of leaking them.
package invoker

import "sync"

// Invoker spawns a function as a tracked goroutine and can later wait for
// every spawned goroutine to return.
type Invoker interface {
	// Spawn starts f on its own goroutine.
	Spawn(f func())

	// Stop blocks until every goroutine started through Spawn has returned.
	// Callers must stop producing new work (close channels, cancel
	// contexts) before calling Stop, otherwise it may block forever.
	Stop()
}

type waitGroupInvoker struct {
	group sync.WaitGroup
}

// New returns an Invoker backed by a sync.WaitGroup.
func New() Invoker {
	return &waitGroupInvoker{}
}

func (w *waitGroupInvoker) Spawn(f func()) {
	w.group.Add(1)
	go func() {
		defer w.group.Done()
		f()
	}()
}

func (w *waitGroupInvoker) Stop() {
	w.group.Wait()
}
