package internal

import (
	"context"
	"time"

	"github.com/jointwt/conductor/task"
)

type TaskData map[string]string

// TaskResult is a point in time snapshot of a task.
type TaskResult struct {
	ID       string     `json:"id"`
	State    task.State `json:"state"`
	Error    string     `json:"error,omitempty"`
	Data     TaskData   `json:"data,omitempty"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished"`
}

// Failed returns true if the task recorded an error. Tasks the dispatcher
// had to give up on keep their last state but always carry an error.
func (r TaskResult) Failed() bool {
	return r.Error != ""
}

// Task is an interface that represents a single task to be executed by a
// worker. Any object can implement a `Task` if it implements the interface.
//
// A task owns its lifecycle state; everyone else only observes it.
type Task interface {
	ID() string
	SetID(id string)
	State() task.State
	Observe(fn task.Observer) *task.Subscription
	Result() TaskResult
	Error() error
	Run(ctx context.Context) error
}
