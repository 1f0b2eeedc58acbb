package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/jointwt/conductor/task"
)

var (
	ErrQueueFull         = errors.New("error: task queue is full")
	ErrDispatcherStopped = errors.New("error: dispatcher stopped")
	ErrTaskNotReady      = errors.New("error: task is not ready")
	ErrTaskNotFound      = errors.New("error: task not found")
	ErrTaskAbandoned     = errors.New("error: task returned without finishing")
)

// entry tracks a dispatched task until it finishes
type entry struct {
	id   string
	task Task
	sub  *task.Subscription
	done chan struct{}
	once sync.Once

	executing bool
}

// DispatcherStats ...
type DispatcherStats struct {
	Workers  int `json:"workers"`
	Queued   int `json:"queued"`
	Running  int `json:"running"`
	Pending  int `json:"pending"`
	Finished int `json:"finished"`
}

// Dispatcher runs tasks on a fixed pool of workers in FIFO order. It
// observes every task it runs and, once a task is finished, keeps its
// result around for later lookup and releases the task.
type Dispatcher struct {
	conf    *Config
	archive Archiver

	mu      sync.RWMutex
	entries map[string]*entry
	running int
	stopped bool

	results *cache.Cache

	queue  chan *entry
	quit   chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher ...
func NewDispatcher(conf *Config, archive Archiver) *Dispatcher {
	setupMetrics()

	if archive == nil {
		archive, _ = NewNullArchiver()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		conf:    conf,
		archive: archive,

		entries: make(map[string]*entry),
		results: cache.New(conf.ResultTTL, conf.ResultTTL*2),

		queue:  make(chan *entry, conf.QueueSize),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the workers
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		log.Infof("starting dispatcher with %d workers", d.conf.Workers)
		metrics.Gauge("dispatcher", "workers").Set(float64(d.conf.Workers))

		for i := 0; i < d.conf.Workers; i++ {
			d.wg.Add(1)
			go d.worker(i)
		}
	})
}

// Stop refuses any further tasks, cancels the context handed to tasks and
// waits for the workers to drain the queue. Tasks still queued because
// Start was never called are finished with ErrDispatcherStopped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()

		// queued tasks still run, but with a cancelled context
		d.cancel()
		close(d.quit)
		d.wg.Wait()

		// only left over when the workers were never started
		for len(d.queue) > 0 {
			d.abandon(<-d.queue, ErrDispatcherStopped)
		}

		metrics.Gauge("dispatcher", "workers").Set(0)
		log.Info("dispatcher stopped")
	})
}

// Dispatch assigns an id to t and queues it for execution
func (d *Dispatcher) Dispatch(t Task) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return "", ErrDispatcherStopped
	}

	if s := t.State(); s != task.Ready {
		return "", fmt.Errorf("%w: task is %s", ErrTaskNotReady, s)
	}

	id := shortuuid.New()
	t.SetID(id)

	e := &entry{id: id, task: t, done: make(chan struct{})}
	e.sub = t.Observe(func(old, new task.State) {
		d.transitioned(e, old, new)
	})
	d.entries[id] = e

	select {
	case d.queue <- e:
	default:
		delete(d.entries, id)
		e.sub.Release()
		t.SetID("")
		metrics.Counter("tasks", "rejected").Inc()
		log.WithField("task", id).Warn("task queue full, rejecting task")
		return "", ErrQueueFull
	}

	metrics.Counter("tasks", "dispatched").Inc()
	metrics.Gauge("dispatcher", "queued").Set(float64(len(d.queue)))
	log.WithField("task", id).Debug("task dispatched")

	return id, nil
}

// Lookup returns the latest known result for the task with the given id.
// Pending and running tasks report their live state.
func (d *Dispatcher) Lookup(id string) (TaskResult, bool) {
	if !ValidID(id) {
		return TaskResult{}, false
	}

	d.mu.RLock()
	e, ok := d.entries[id]
	d.mu.RUnlock()
	if ok {
		return e.task.Result(), true
	}

	if v, ok := d.results.Get(id); ok {
		return v.(TaskResult), true
	}

	if d.archive.Has(id) {
		res, err := d.archive.Get(id)
		if err != nil {
			log.WithError(err).WithField("task", id).Error("error reading archived result")
			return TaskResult{}, false
		}
		return res, true
	}

	return TaskResult{}, false
}

// Wait blocks until the task with the given id is finished or ctx is done
func (d *Dispatcher) Wait(ctx context.Context, id string) (TaskResult, error) {
	d.mu.RLock()
	e, ok := d.entries[id]
	d.mu.RUnlock()

	if ok {
		select {
		case <-e.done:
		case <-ctx.Done():
			return e.task.Result(), ctx.Err()
		}
	}

	res, ok := d.Lookup(id)
	if !ok {
		return TaskResult{}, ErrTaskNotFound
	}
	return res, nil
}

// Stats ...
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStats{
		Workers:  d.conf.Workers,
		Queued:   len(d.queue),
		Running:  d.running,
		Pending:  len(d.entries),
		Finished: d.results.ItemCount(),
	}
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.queue:
			d.run(e)
		case <-d.quit:
			for {
				select {
				case e := <-d.queue:
					d.run(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) run(e *entry) {
	metrics.Gauge("dispatcher", "queued").Set(float64(len(d.queue)))

	stime := time.Now()
	defer func() {
		metrics.Summary("tasks", "duration_seconds").Observe(time.Since(stime).Seconds())

		if r := recover(); r != nil {
			err := fmt.Errorf("error: task panicked: %v", r)
			log.WithError(err).WithField("task", e.id).Error("task panicked")
			d.abandon(e, err)
			return
		}

		if e.task.State() != task.Finished {
			log.WithField("task", e.id).Warnf("task returned in state %s", e.task.State())
			d.abandon(e, ErrTaskAbandoned)
		}
	}()

	if err := e.task.Run(d.ctx); err != nil {
		log.WithError(err).WithField("task", e.id).Warn("task failed")
	}
}

func (d *Dispatcher) transitioned(e *entry, old, new task.State) {
	log.WithFields(log.Fields{
		"task": e.id,
		"from": old,
		"to":   new,
	}).Debug("task transitioned")

	switch new {
	case task.Executing:
		metrics.Counter("tasks", "executing").Inc()

		d.mu.Lock()
		e.executing = true
		d.running++
		running := d.running
		d.mu.Unlock()

		metrics.Gauge("dispatcher", "running").Set(float64(running))
	case task.Finished:
		d.finish(e, e.task.Result())
	}
}

// abandon finishes the bookkeeping for a task whose box never reached
// Finished, recording err in its result.
func (d *Dispatcher) abandon(e *entry, err error) {
	res := e.task.Result()
	if res.Error == "" {
		res.Error = err.Error()
	}
	if res.Finished.IsZero() {
		res.Finished = time.Now()
	}
	d.finish(e, res)
}

func (d *Dispatcher) finish(e *entry, res TaskResult) {
	e.once.Do(func() {
		res.ID = e.id

		metrics.Counter("tasks", "finished").Inc()
		if res.Error != "" {
			metrics.Counter("tasks", "failed").Inc()
		}

		d.results.Set(e.id, res, cache.DefaultExpiration)

		if err := d.archive.Archive(res); err != nil {
			log.WithError(err).WithField("task", e.id).Error("error archiving result")
			metrics.Counter("archive", "error").Inc()
		} else {
			metrics.Counter("archive", "size").Inc()
		}

		d.mu.Lock()
		delete(d.entries, e.id)
		if e.executing {
			d.running--
		}
		running := d.running
		d.mu.Unlock()

		metrics.Gauge("dispatcher", "running").Set(float64(running))

		e.sub.Release()
		close(e.done)

		log.WithField("task", e.id).Debug("task finished")
	})
}
