package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/armada/engine/core"
)

// Job runs Run on a worker. OnComplete or OnFailure run later on the goroutine
// that calls Update, which for the engine is the render thread, so they may
// touch the renderer.
type Job struct {
	Name       string
	Run        func() (interface{}, error)
	OnComplete func(result interface{}) error
	OnFailure  func(err error)
}

type jobResult struct {
	job    Job
	result interface{}
	err    error
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup
	inflight   sync.WaitGroup

	mu       sync.Mutex
	finished []jobResult
	closed   bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				result, err := job.Run()
				js.mu.Lock()
				js.finished = append(js.finished, jobResult{job: job, result: result, err: err})
				js.mu.Unlock()
				js.inflight.Done()
			}
		}()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run; callbacks of jobs
 * that finished after the last Update are dropped.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return fmt.Errorf("job system already shut down")
	}
	js.closed = true
	js.mu.Unlock()

	close(js.jobQueue)
	js.wg.Wait()
	return nil
}

/**
 * @brief Runs the callbacks of every finished job. Should happen once an
 * update cycle. Returns how many jobs were completed.
 */
func (js *JobSystem) Update() int {
	js.mu.Lock()
	finished := js.finished
	js.finished = nil
	js.mu.Unlock()

	for _, r := range finished {
		err := r.err
		if err == nil && r.job.OnComplete != nil {
			err = r.job.OnComplete(r.result)
		}
		if err != nil {
			core.LogError("job %s failed: %s", r.job.Name, err)
			if r.job.OnFailure != nil {
				r.job.OnFailure(err)
			}
		}
	}
	return len(finished)
}

// Wait blocks until every submitted job ran, then runs their callbacks.
func (js *JobSystem) Wait() int {
	js.inflight.Wait()
	return js.Update()
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(job Job) error {
	js.mu.Lock()
	closed := js.closed
	js.mu.Unlock()
	if closed {
		return fmt.Errorf("job %s submitted after shutdown", job.Name)
	}
	js.inflight.Add(1)
	js.jobQueue <- job
	return nil
}
