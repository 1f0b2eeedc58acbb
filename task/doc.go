// Package task provides the lifecycle State of a unit of work and
// StateBox, an observable holder for that state.
//
// A task moves through three states, strictly in order:
//
//	Ready -> Executing -> Finished
//
// Every successful transition is delivered synchronously to the
// observers registered on the box:
//
//	box := task.NewStateBox()
//	sub := box.Observe(func(old, new task.State) {
//		log.Printf("%s -> %s", old, new)
//	})
//	defer sub.Release()
//
//	if err := box.TransitionTo(task.Executing); err != nil {
//		...
//	}
package task
