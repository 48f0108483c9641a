package janitor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestJanitorRunsJobsUntilStopped(t *testing.T) {
	var runs atomic.Int64
	j := New(nil, Job{
		Name:   "test",
		Period: 5 * time.Millisecond,
		Run: func() int {
			runs.Add(1)
			return 1
		},
	})

	j.Start()
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("job ran %d times, want >= 3", runs.Load())
		}
		time.Sleep(time.Millisecond)
	}
	j.Stop()

	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != settled {
		t.Fatalf("job ran after Stop")
	}
}

func TestJanitorSkipsInvalidJobs(t *testing.T) {
	j := New(nil,
		Job{Name: "no-period", Run: func() int { return 0 }},
		Job{Name: "no-run", Period: time.Millisecond},
	)
	j.Start()
	j.Stop()
}

func TestJanitorStartStopIdempotent(t *testing.T) {
	j := New(nil, Job{Name: "noop", Period: time.Millisecond, Run: func() int { return 0 }})
	j.Start()
	j.Start()
	j.Stop()
	j.Stop()
}
