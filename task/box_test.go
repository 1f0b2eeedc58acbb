package task_test

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jointwt/conductor/task"
)

type change struct {
	old, new task.State
}

func record(box *task.StateBox) (*[]change, *task.Subscription) {
	var changes []change
	sub := box.Observe(func(old, new task.State) {
		changes = append(changes, change{old, new})
	})
	return &changes, sub
}

func TestStateBoxScenario(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	box := task.NewStateBox()
	changes, _ := record(box)

	assert.Equal(task.Ready, box.State())

	require.NoError(box.TransitionTo(task.Executing))
	assert.Equal([]change{{task.Ready, task.Executing}}, *changes)

	err := box.TransitionTo(task.Ready)
	assert.True(errors.Is(err, task.ErrInvalidTransition))
	assert.Equal(task.Executing, box.State())

	require.NoError(box.TransitionTo(task.Finished))
	assert.Equal([]change{
		{task.Ready, task.Executing},
		{task.Executing, task.Finished},
	}, *changes)

	err = box.TransitionTo(task.Finished)
	assert.True(errors.Is(err, task.ErrInvalidTransition))
	assert.Equal(task.Finished, box.State())
	assert.Len(*changes, 2)
}

func TestStateBoxZeroValue(t *testing.T) {
	var box task.StateBox
	assert.Equal(t, task.Ready, box.State())
	assert.NoError(t, box.TransitionTo(task.Executing))
}

func TestInvalidTransitions(t *testing.T) {
	testCases := []struct {
		name  string
		setup []task.State
		to    task.State
	}{
		{name: "ready to ready", to: task.Ready},
		{name: "ready to finished", to: task.Finished},
		{name: "executing to executing", setup: []task.State{task.Executing}, to: task.Executing},
		{name: "executing to ready", setup: []task.State{task.Executing}, to: task.Ready},
		{name: "finished to finished", setup: []task.State{task.Executing, task.Finished}, to: task.Finished},
		{name: "finished to executing", setup: []task.State{task.Executing, task.Finished}, to: task.Executing},
		{name: "finished to ready", setup: []task.State{task.Executing, task.Finished}, to: task.Ready},
		{name: "ready to unknown", to: task.State(5)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := assert.New(t)

			box := task.NewStateBox()
			for _, s := range testCase.setup {
				require.NoError(t, box.TransitionTo(s))
			}
			before := box.State()
			changes, _ := record(box)

			err := box.TransitionTo(testCase.to)
			assert.True(errors.Is(err, task.ErrInvalidTransition))

			var ite *task.InvalidTransitionError
			if assert.True(errors.As(err, &ite)) {
				assert.Equal(before, ite.From)
				assert.Equal(testCase.to, ite.To)
			}

			assert.Equal(before, box.State())
			assert.Empty(*changes)
		})
	}
}

func TestRandomTransitionSequences(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		box := task.NewStateBox()
		expected := task.Ready

		for j := 0; j < 10; j++ {
			next := allStates[rnd.Intn(len(allStates))]
			err := box.TransitionTo(next)
			if expected.CanTransitionTo(next) {
				require.NoError(t, err)
				expected = next
			} else {
				require.True(t, errors.Is(err, task.ErrInvalidTransition))
			}
			require.Equal(t, expected, box.State())
		}
	}
}

func TestObserversCalledInRegistrationOrder(t *testing.T) {
	assert := assert.New(t)

	box := task.NewStateBox()

	var calls []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		box.Observe(func(old, new task.State) {
			calls = append(calls, name+":"+old.String()+"->"+new.String())
		})
	}

	assert.NoError(box.TransitionTo(task.Executing))
	assert.NoError(box.TransitionTo(task.Finished))

	assert.Equal([]string{
		"a:ready->executing",
		"b:ready->executing",
		"c:ready->executing",
		"a:executing->finished",
		"b:executing->finished",
		"c:executing->finished",
	}, calls)
}

func TestObserverReleasedBeforeTransition(t *testing.T) {
	assert := assert.New(t)

	box := task.NewStateBox()
	changes, sub := record(box)
	assert.Equal(1, box.Observers())

	sub.Release()
	sub.Release()
	assert.False(sub.Active())
	assert.Equal(0, box.Observers())

	assert.NoError(box.TransitionTo(task.Executing))
	assert.Empty(*changes)
}

func TestObserverReleasesItselfDuringNotification(t *testing.T) {
	assert := assert.New(t)

	box := task.NewStateBox()

	var selfCalls int
	var self *task.Subscription
	self = box.Observe(func(old, new task.State) {
		selfCalls++
		self.Release()
	})
	after, _ := record(box)

	assert.NoError(box.TransitionTo(task.Executing))
	assert.NoError(box.TransitionTo(task.Finished))

	assert.Equal(1, selfCalls)
	assert.Len(*after, 2)
	assert.Equal(1, box.Observers())
}

func TestObserverReleasesLaterObserver(t *testing.T) {
	assert := assert.New(t)

	box := task.NewStateBox()

	var victim *task.Subscription
	box.Observe(func(old, new task.State) {
		victim.Release()
	})
	changes, sub := record(box)
	victim = sub

	assert.NoError(box.TransitionTo(task.Executing))
	assert.Empty(*changes)
}

func TestObserverAddedDuringNotification(t *testing.T) {
	assert := assert.New(t)

	box := task.NewStateBox()

	var late *[]change
	box.Observe(func(old, new task.State) {
		if late == nil {
			late, _ = record(box)
		}
	})

	assert.NoError(box.TransitionTo(task.Executing))
	assert.Empty(*late)

	assert.NoError(box.TransitionTo(task.Finished))
	assert.Equal([]change{{task.Executing, task.Finished}}, *late)
}

func TestReentrantMutation(t *testing.T) {
	assert := assert.New(t)

	box := task.NewStateBox()

	var inner error
	var seen task.State
	box.Observe(func(old, new task.State) {
		seen = box.State()
		if new == task.Executing {
			inner = box.TransitionTo(task.Finished)
		}
	})

	assert.NoError(box.TransitionTo(task.Executing))
	assert.True(errors.Is(inner, task.ErrReentrantMutation))
	assert.Equal(task.Executing, seen)
	assert.Equal(task.Executing, box.State())

	// the guard is cleared once the notification completes
	assert.NoError(box.TransitionTo(task.Finished))
	assert.Equal(task.Finished, box.State())
}

func TestNilObserver(t *testing.T) {
	assert := assert.New(t)

	box := task.NewStateBox()
	sub := box.Observe(nil)

	assert.False(sub.Active())
	assert.Equal(0, box.Observers())
	assert.NoError(box.TransitionTo(task.Executing))
	sub.Release()
}

func TestConcurrentReaders(t *testing.T) {
	box := task.NewStateBox()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := task.Ready
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := box.State()
				if !s.IsValid() || s < last {
					t.Errorf("observed %s after %s", s, last)
					return
				}
				last = s
			}
		}()
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := box.Observe(func(old, new task.State) {})
			sub.Release()
		}()
	}

	assert.NoError(t, box.TransitionTo(task.Executing))
	assert.NoError(t, box.TransitionTo(task.Finished))
	close(stop)
	wg.Wait()

	assert.Equal(t, task.Finished, box.State())
}
