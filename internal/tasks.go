package internal

import (
	"sync"
	"time"

	"github.com/jointwt/conductor/task"
)

// BaseTask carries the state, data and error of a task and is meant to
// be embedded by concrete tasks.
type BaseTask struct {
	box task.StateBox

	mu       sync.RWMutex
	id       string
	data     TaskData
	err      error
	started  time.Time
	finished time.Time
}

func NewBaseTask() *BaseTask {
	return &BaseTask{}
}

func (t *BaseTask) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

func (t *BaseTask) SetID(id string) {
	t.mu.Lock()
	t.id = id
	t.mu.Unlock()
}

func (t *BaseTask) State() task.State { return t.box.State() }

func (t *BaseTask) Observe(fn task.Observer) *task.Subscription {
	return t.box.Observe(fn)
}

// Start moves the task from Ready to Executing.
func (t *BaseTask) Start() error {
	return t.transition(task.Executing, &t.started)
}

// Done moves the task from Executing to Finished.
func (t *BaseTask) Done() error {
	return t.transition(task.Finished, &t.finished)
}

// transition stamps ts before moving the box so observers see a complete
// Result. The stamp is rolled back if the box refuses the move.
func (t *BaseTask) transition(next task.State, ts *time.Time) error {
	t.mu.Lock()
	prev := *ts
	*ts = time.Now()
	t.mu.Unlock()

	if err := t.box.TransitionTo(next); err != nil {
		t.mu.Lock()
		*ts = prev
		t.mu.Unlock()
		return err
	}

	return nil
}

func (t *BaseTask) SetData(key, val string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data == nil {
		t.data = make(TaskData)
	}
	t.data[key] = val
}

func (t *BaseTask) Fail(err error) error {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	return err
}

func (t *BaseTask) Result() TaskResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	res := TaskResult{
		ID:       t.id,
		State:    t.box.State(),
		Started:  t.started,
		Finished: t.finished,
	}
	if t.err != nil {
		res.Error = t.err.Error()
	}
	if t.data != nil {
		res.Data = make(TaskData, len(t.data))
		for k, v := range t.data {
			res.Data[k] = v
		}
	}
	return res
}

func (t *BaseTask) Error() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}
