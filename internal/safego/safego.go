// Package safego provides panic-recovering goroutine launchers for background work.
package safego

import (
	"log/slog"
	"sync"
)

// Go runs fn in a new goroutine. A panic inside fn is recovered and logged with the
// task name instead of crashing the process.
func Go(name string, fn func()) {
	go run(name, fn)
}

func run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
		}
	}()
	fn()
}

// Group tracks background goroutines so shutdown can wait for in-flight work
// (e.g. audit shipments) to finish. The zero value is ready to use.
type Group struct {
	wg sync.WaitGroup
}

// Go runs fn like the package-level Go and tracks it in the group.
func (g *Group) Go(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(name, fn)
	}()
}

// Wait blocks until every goroutine started through the group has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
