// Package jobs runs tasks on a fixed set of worker goroutines.
package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// Task is one unit of work. OnComplete or OnFailure runs on the worker after
// Run returns, then OnCompletionCallback.
type Task struct {
	Name                 string
	Run                  func() error
	OnComplete           func()
	OnFailure            func(err error)
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan Task
	wg         sync.WaitGroup

	mu       sync.RWMutex
	isClosed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Task, channelSize),
	}
	js.start()
	core.LogDebug("job system started with %d workers", numWorkers)
	return js, nil
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.execute(job)
			}
		}()
	}
}

func (js *JobSystem) execute(job Task) {
	err := job.Run()
	if err != nil {
		core.LogError("job %s failed: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete()
	}
	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

// Submit queues the task, blocking while the queue is full.
func (js *JobSystem) Submit(job Task) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has nothing to run: %w", job.Name, core.ErrInvalidArgument)
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.isClosed {
		return ErrClosed
	}
	js.jobQueue <- job
	return nil
}

// RunAll runs every fn on the workers and waits for all of them. The errors
// are joined in the order of fns.
func (js *JobSystem) RunAll(name string, fns ...func() error) error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		err := js.Submit(Task{
			Name:                 fmt.Sprintf("%s[%d]", name, i),
			Run:                  fn,
			OnFailure:            func(err error) { errs[i] = err },
			OnCompletionCallback: wg.Done,
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Shutdown drains the queue and waits for the workers to exit.
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.isClosed {
		js.mu.Unlock()
		return ErrClosed
	}
	js.isClosed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}
