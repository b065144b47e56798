package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/metrics"
	"github.com/quantumflow/annealflow/internal/models"
)

var (
	// ErrQueueFull is returned by Submit when the job queue is at capacity
	ErrQueueFull = errors.New("queue full")

	// ErrPoolClosed is returned by Submit after Shutdown
	ErrPoolClosed = errors.New("pool is shut down")
)

// Executor runs one task on one agent. *Orchestrator implements it.
type Executor interface {
	Execute(ctx context.Context, agentID, task string, obs anneal.Observer) (*models.TaskResult, error)
}

// Job is one task execution request
type Job struct {
	ID       string
	AgentID  string
	Task     string
	Observer anneal.Observer
	Callback func(*JobResult) // Called when completed
	Context  context.Context
}

// JobResult is the outcome of a Job. Result may be set even when Err is,
// for example when the run finished but saving the profile failed.
type JobResult struct {
	JobID   string
	AgentID string
	Result  *models.TaskResult
	Err     error
	Latency time.Duration
}

// Pool runs jobs on a fixed set of worker goroutines. Jobs for the same
// agent are serialized by the executor; jobs for different agents run in
// parallel.
type Pool struct {
	executor Executor
	workers  int
	queue    chan *Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stats    *PoolStats
	metrics  *metrics.Metrics
	logger   *slog.Logger

	closeMu sync.RWMutex
	closed  bool
}

// PoolStats tracks pool performance
type PoolStats struct {
	TotalJobs       int64
	CompletedOK     int64
	CompletedError  int64
	AverageLatency  time.Duration
	TotalLatency    time.Duration
	CurrentInflight int
	mu              sync.RWMutex
}

// PoolConfig holds pool configuration
type PoolConfig struct {
	Workers   int // Number of worker goroutines
	QueueSize int // Size of job queue
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// DefaultPoolConfig returns default pool configuration
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:   2,
		QueueSize: 100,
	}
}

// NewPool creates a pool and starts its workers
func NewPool(executor Executor, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := config.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		executor: executor,
		workers:  workers,
		queue:    make(chan *Job, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		stats:    &PoolStats{},
		metrics:  config.Metrics,
		logger:   logger,
	}

	for i := 0; i < pool.workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	return pool
}

// worker processes jobs from the queue until it is closed
func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.queue {
		p.observeQueue()
		p.process(job)
	}
}

// process runs a single job
func (p *Pool) process(job *Job) {
	result := &JobResult{JobID: job.ID, AgentID: job.AgentID}

	// Merge the pool's lifetime with the job's own context
	ctx, cancel := context.WithCancel(job.Context)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	if err := ctx.Err(); err != nil {
		result.Err = err
		p.finish(job, result)
		return
	}

	p.setInflight(1)
	start := time.Now()
	result.Result, result.Err = p.executor.Execute(ctx, job.AgentID, job.Task, job.Observer)
	result.Latency = time.Since(start)
	p.setInflight(-1)

	p.finish(job, result)
}

func (p *Pool) finish(job *Job, result *JobResult) {
	p.updateStats(result.Latency, result.Err == nil)

	if result.Err != nil {
		p.logger.Warn("pool: job failed", "job_id", job.ID, "agent_id", job.AgentID, "error", result.Err)
	} else {
		p.logger.Debug("pool: job done", "job_id", job.ID, "agent_id", job.AgentID, "latency", result.Latency)
	}

	if job.Callback != nil {
		job.Callback(result)
	}
}

func (p *Pool) setInflight(delta int) {
	p.stats.mu.Lock()
	p.stats.CurrentInflight += delta
	inflight := p.stats.CurrentInflight
	p.stats.mu.Unlock()

	if p.metrics != nil {
		p.metrics.PoolInflight.Set(float64(inflight))
	}
}

// updateStats updates pool counters
func (p *Pool) updateStats(latency time.Duration, success bool) {
	p.stats.mu.Lock()
	defer p.stats.mu.Unlock()

	p.stats.TotalJobs++
	if success {
		p.stats.CompletedOK++
	} else {
		p.stats.CompletedError++
	}

	p.stats.TotalLatency += latency
	p.stats.AverageLatency = p.stats.TotalLatency / time.Duration(p.stats.TotalJobs)

	if p.metrics != nil {
		label := "success"
		if !success {
			label = "error"
		}
		p.metrics.PoolCompleted.WithLabelValues(label).Inc()
	}
}

func (p *Pool) observeQueue() {
	if p.metrics != nil {
		p.metrics.PoolQueue.Set(float64(len(p.queue)))
	}
}

// Submit enqueues a job without waiting for it to run
func (p *Pool) Submit(job *Job) error {
	if job.Context == nil {
		job.Context = p.ctx
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- job:
		p.observeQueue()
		return nil
	case <-job.Context.Done():
		return job.Context.Err()
	default:
		return ErrQueueFull
	}
}

// SubmitSync submits a job and waits for its result
func (p *Pool) SubmitSync(ctx context.Context, agentID, task string, obs anneal.Observer) (*JobResult, error) {
	resultChan := make(chan *JobResult, 1)

	job := &Job{
		AgentID:  agentID,
		Task:     task,
		Observer: obs,
		Context:  ctx,
		Callback: func(result *JobResult) {
			resultChan <- result
		},
	}

	if err := p.Submit(job); err != nil {
		return nil, err
	}

	select {
	case result := <-resultChan:
		return result, result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a copy of the pool counters
func (p *Pool) Stats() PoolStats {
	p.stats.mu.RLock()
	defer p.stats.mu.RUnlock()

	return PoolStats{
		TotalJobs:       p.stats.TotalJobs,
		CompletedOK:     p.stats.CompletedOK,
		CompletedError:  p.stats.CompletedError,
		AverageLatency:  p.stats.AverageLatency,
		TotalLatency:    p.stats.TotalLatency,
		CurrentInflight: p.stats.CurrentInflight,
	}
}

// QueueLength returns the current queue length
func (p *Pool) QueueLength() int {
	return len(p.queue)
}

// Shutdown stops accepting jobs and waits for queued ones to finish. If
// timeout passes first, running jobs are cancelled.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-timer.C:
		p.cancel()
		<-done
		return fmt.Errorf("shutdown timeout exceeded after %s", timeout)
	}
}
