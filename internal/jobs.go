package internal

import (
	"context"
	"fmt"

	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"

	"github.com/jointwt/conductor/task"
)

// JobSpec ...
type JobSpec struct {
	Schedule string
	Job      cron.Job
}

func NewJobSpec(schedule string, job cron.Job) JobSpec {
	return JobSpec{schedule, job}
}

// Jobs builds the built-in stats job plus one CommandJob per configured job
func Jobs(conf *Config, d *Dispatcher, failures *TTLCache) map[string]JobSpec {
	jobs := map[string]JobSpec{
		"stats": NewJobSpec(fmt.Sprintf("@every %s", conf.StatsInterval), NewStatsJob(d)),
	}

	for _, job := range conf.Jobs {
		jobs[job.Name] = NewJobSpec(job.Spec, NewCommandJob(conf, d, failures, job))
	}

	return jobs
}

// StartJobs schedules all jobs on a new cron instance and starts it
func StartJobs(conf *Config, d *Dispatcher, failures *TTLCache) (*cron.Cron, error) {
	c := cron.New()

	for name, spec := range Jobs(conf, d, failures) {
		if err := c.AddJob(spec.Schedule, spec.Job); err != nil {
			log.WithError(err).Errorf("invalid schedule %q for job %s", spec.Schedule, name)
			return nil, fmt.Errorf("error scheduling job %s: %w", name, err)
		}
		log.Infof("scheduled job %s (%s)", name, spec.Schedule)
	}

	c.Start()

	return c, nil
}

// StatsJob logs the dispatcher counters
type StatsJob struct {
	d *Dispatcher
}

func NewStatsJob(d *Dispatcher) *StatsJob {
	return &StatsJob{d: d}
}

func (job *StatsJob) Run() {
	stats := job.d.Stats()
	log.WithFields(log.Fields{
		"workers":  stats.Workers,
		"queued":   stats.Queued,
		"running":  stats.Running,
		"pending":  stats.Pending,
		"finished": stats.Finished,
	}).Info("dispatcher stats")
}

// CommandJob dispatches a ShellTask for its command on every run and
// keeps count of consecutive failures.
type CommandJob struct {
	conf     *Config
	d        *Dispatcher
	failures *TTLCache
	job      JobConfig
}

func NewCommandJob(conf *Config, d *Dispatcher, failures *TTLCache, job JobConfig) *CommandJob {
	return &CommandJob{conf: conf, d: d, failures: failures, job: job}
}

func (job *CommandJob) Run() {
	metrics.Counter("jobs", "runs").Inc()

	t := NewShellTask(job.conf.Shell, job.job.Command)
	t.Observe(func(old, new task.State) {
		if new != task.Finished {
			return
		}
		job.finished(t.Result())
	})

	id, err := job.d.Dispatch(t)
	if err != nil {
		log.WithError(err).Errorf("error dispatching job %s", job.job.Name)
		job.failed()
		return
	}

	log.WithField("task", id).Debugf("dispatched job %s", job.job.Name)
}

// Wait runs the job and blocks until its task is finished. It is used by
// the cli to run a job once.
func (job *CommandJob) Wait(ctx context.Context) (TaskResult, error) {
	t := NewShellTask(job.conf.Shell, job.job.Command)

	id, err := job.d.Dispatch(t)
	if err != nil {
		return TaskResult{}, err
	}

	res, err := job.d.Wait(ctx, id)
	if err != nil {
		return res, err
	}
	job.finished(res)

	return res, nil
}

func (job *CommandJob) finished(res TaskResult) {
	if res.Error == "" {
		job.failures.Reset(job.job.Name)
		return
	}
	job.failed()
}

func (job *CommandJob) failed() {
	n := job.failures.Inc(job.job.Name)
	if n >= job.conf.MaxJobFailures {
		log.Warnf(
			"job %s has failed %d times in a row (within %s)",
			job.job.Name, n, job.failures.ttl,
		)
	}
}
