package supervisor

import "context"

// Task is one asynchronous unit of supervised work. It runs until it
// finishes or its context is cancelled, and reports failure through its
// return value.
type Task func(context.Context) error

// Factory builds a fresh Task for every (re)start.
type Factory interface {
	Build() Task
}

// FactoryFunc adapts a closure to the Factory interface.
type FactoryFunc func() Task

func (f FactoryFunc) Build() Task {
	return f()
}
