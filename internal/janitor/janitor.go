// Package janitor runs the periodic sweeps that expire stale presence
// entries and abandoned pairing sessions.
package janitor

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Job is a named sweep. Run returns how many entries it removed.
type Job struct {
	Name   string
	Period time.Duration
	Run    func() int
}

// Janitor drives each job on its own ticker until Stop.
type Janitor struct {
	log  *slog.Logger
	jobs []Job

	mu      sync.Mutex
	stop    chan struct{}
	done    sync.WaitGroup
	started bool
}

func New(logger *slog.Logger, jobs ...Job) *Janitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Janitor{
		log:  logger,
		jobs: jobs,
	}
}

func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.stop = make(chan struct{})

	for _, job := range j.jobs {
		if job.Period <= 0 || job.Run == nil {
			continue
		}
		j.done.Add(1)
		go j.loop(job)
	}
}

func (j *Janitor) loop(job Job) {
	defer j.done.Done()
	ticker := time.NewTicker(job.Period)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			if removed := job.Run(); removed > 0 {
				j.log.Debug("sweep removed entries", "job", job.Name, "removed", removed)
			}
		}
	}
}

// Stop halts all jobs and waits for in-flight sweeps to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	close(j.stop)
	j.mu.Unlock()

	j.done.Wait()
}
