package core

import "sync"

// Invoker spawns and tracks the goroutines of the module, so a clean
// shutdown can wait for every worker to drain.
type Invoker interface {
	// Run f on its own goroutine.
	Spawn(f func())

	// Block until every spawned routine finished.
	Stop()
}

type defaultInvoker struct {
	group *sync.WaitGroup
}

var (
	invokerOnce     sync.Once
	invokerInstance Invoker
)

// InvokerInstance returns the process-wide invoker.
func InvokerInstance() Invoker {
	invokerOnce.Do(func() {
		invokerInstance = &defaultInvoker{group: &sync.WaitGroup{}}
	})
	return invokerInstance
}

func (i *defaultInvoker) Spawn(f func()) {
	i.group.Add(1)
	go func() {
		defer i.group.Done()
		f()
	}()
}

func (i *defaultInvoker) Stop() {
	i.group.Wait()
}
