package task

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrInvalidTransition = errors.New("error: invalid task state transition")
	ErrReentrantMutation = errors.New("error: task state mutated during a transition")
)

// InvalidTransitionError is returned by TransitionTo when the requested
// state is not the next state in the lifecycle. It matches
// ErrInvalidTransition with errors.Is.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("error: invalid task state transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Observer is called after every successful transition with the old and
// new states. Observers must not call TransitionTo on the box notifying
// them.
type Observer func(old, new State)

// Subscription is returned by StateBox.Observe. Releasing it stops
// further notifications.
type Subscription struct {
	box      *StateBox
	fn       Observer
	released int32
}

// Release unregisters the observer. It is safe to call more than once
// and from inside the observer itself.
func (s *Subscription) Release() {
	if s == nil || !atomic.CompareAndSwapInt32(&s.released, 0, 1) {
		return
	}
	if s.box != nil {
		s.box.remove(s)
	}
}

// Active returns true until Release is called.
func (s *Subscription) Active() bool {
	return s != nil && s.fn != nil && atomic.LoadInt32(&s.released) == 0
}

// StateBox holds the lifecycle State of a single task and notifies
// observers on every transition.
//
// State may be called from any goroutine at any time. Transitions are
// expected to come from a single writer; a transition that overlaps
// another one (including one made from an observer) fails with
// ErrReentrantMutation and leaves the state untouched.
//
// The zero value is a box in the Ready state.
type StateBox struct {
	state int32
	busy  int32

	mu        sync.Mutex
	observers []*Subscription
}

// NewStateBox returns a box in the Ready state.
func NewStateBox() *StateBox {
	return &StateBox{}
}

// State returns the current state. It never blocks.
func (b *StateBox) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// TransitionTo moves the box to next and synchronously notifies every
// registered observer in registration order. Observers added while the
// notification is running are not called for this transition.
func (b *StateBox) TransitionTo(next State) error {
	if !atomic.CompareAndSwapInt32(&b.busy, 0, 1) {
		return ErrReentrantMutation
	}
	defer atomic.StoreInt32(&b.busy, 0)

	prev := b.State()
	if !prev.CanTransitionTo(next) {
		return &InvalidTransitionError{From: prev, To: next}
	}

	atomic.StoreInt32(&b.state, int32(next))

	for _, sub := range b.snapshot() {
		// skip anything released by an earlier observer in this round
		if sub.Active() {
			sub.fn(prev, next)
		}
	}

	return nil
}

// Observe registers fn for all future transitions. A nil fn is ignored
// and yields an inactive subscription.
func (b *StateBox) Observe(fn Observer) *Subscription {
	sub := &Subscription{box: b, fn: fn}
	if fn == nil {
		sub.released = 1
		return sub
	}

	b.mu.Lock()
	b.observers = append(b.observers, sub)
	b.mu.Unlock()

	return sub
}

// Observers returns the number of registered observers.
func (b *StateBox) Observers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

func (b *StateBox) snapshot() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.observers) == 0 {
		return nil
	}
	subs := make([]*Subscription, len(b.observers))
	copy(subs, b.observers)
	return subs
}

func (b *StateBox) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.observers {
		if s == sub {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			return
		}
	}
}
