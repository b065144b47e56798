package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/quantumflow/annealflow/internal/anneal"
	"github.com/quantumflow/annealflow/internal/logging"
	"github.com/quantumflow/annealflow/internal/metrics"
	"github.com/quantumflow/annealflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorFunc func(ctx context.Context, agentID, task string, obs anneal.Observer) (*models.TaskResult, error)

func (f executorFunc) Execute(ctx context.Context, agentID, task string, obs anneal.Observer) (*models.TaskResult, error) {
	return f(ctx, agentID, task, obs)
}

func echoExecutor() Executor {
	return executorFunc(func(ctx context.Context, agentID, task string, obs anneal.Observer) (*models.TaskResult, error) {
		if task == "fail" {
			return nil, errors.New("boom")
		}
		return &models.TaskResult{AgentID: agentID, Task: task, Success: true}, nil
	})
}

func testPoolConfig(workers, queue int) *PoolConfig {
	return &PoolConfig{Workers: workers, QueueSize: queue, Logger: logging.Discard()}
}

func TestPoolCreation(t *testing.T) {
	pool := NewPool(echoExecutor(), nil)
	require.NotNil(t, pool)
	assert.Equal(t, 2, pool.workers)
	assert.NoError(t, pool.Shutdown(time.Second))

	pool = NewPool(echoExecutor(), &PoolConfig{Workers: 0, QueueSize: 0})
	assert.Equal(t, 1, pool.workers)
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestPool_SubmitSync(t *testing.T) {
	m := metrics.New(nil)
	cfg := testPoolConfig(2, 10)
	cfg.Metrics = m
	pool := NewPool(echoExecutor(), cfg)
	defer pool.Shutdown(time.Second)

	ctx := context.Background()
	res, err := pool.SubmitSync(ctx, "agent-1", "write docs", nil)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", res.AgentID)
	assert.Equal(t, "write docs", res.Result.Task)
	assert.NotEmpty(t, res.JobID)

	_, err = pool.SubmitSync(ctx, "agent-1", "fail", nil)
	assert.EqualError(t, err, "boom")

	stats := pool.Stats()
	assert.Equal(t, int64(2), stats.TotalJobs)
	assert.Equal(t, int64(1), stats.CompletedOK)
	assert.Equal(t, int64(1), stats.CompletedError)
	assert.Equal(t, 0, stats.CurrentInflight)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolCompleted.WithLabelValues("error")))
}

func TestPool_Concurrency(t *testing.T) {
	var inflight, peak int32
	exec := executorFunc(func(ctx context.Context, agentID, task string, obs anneal.Observer) (*models.TaskResult, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return &models.TaskResult{AgentID: agentID}, nil
	})

	pool := NewPool(exec, testPoolConfig(3, 50))

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		err := pool.Submit(&Job{
			AgentID: "a",
			Task:    "t",
			Callback: func(r *JobResult) {
				mu.Lock()
				completed++
				mu.Unlock()
				wg.Done()
			},
		})
		require.NoError(t, err)
	}
	wg.Wait()
	require.NoError(t, pool.Shutdown(time.Second))

	assert.Equal(t, 12, completed)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	exec := executorFunc(func(ctx context.Context, agentID, task string, obs anneal.Observer) (*models.TaskResult, error) {
		started <- struct{}{}
		<-release
		return &models.TaskResult{}, nil
	})

	pool := NewPool(exec, testPoolConfig(1, 1))

	require.NoError(t, pool.Submit(&Job{AgentID: "a", Task: "first"}))
	<-started
	require.NoError(t, pool.Submit(&Job{AgentID: "a", Task: "queued"}))
	assert.ErrorIs(t, pool.Submit(&Job{AgentID: "a", Task: "overflow"}), ErrQueueFull)
	assert.Equal(t, 1, pool.QueueLength())

	close(release)
	require.NoError(t, pool.Shutdown(time.Second))
	assert.ErrorIs(t, pool.Submit(&Job{AgentID: "a", Task: "late"}), ErrPoolClosed)
}

func TestPool_ShutdownTimeoutCancelsJobs(t *testing.T) {
	var sawCancel atomic.Bool
	exec := executorFunc(func(ctx context.Context, agentID, task string, obs anneal.Observer) (*models.TaskResult, error) {
		<-ctx.Done()
		sawCancel.Store(true)
		return &models.TaskResult{Cancelled: true}, nil
	})

	pool := NewPool(exec, testPoolConfig(1, 4))
	require.NoError(t, pool.Submit(&Job{AgentID: "a", Task: "slow"}))

	err := pool.Shutdown(20 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, sawCancel.Load())
}

func TestPool_WithOrchestrator(t *testing.T) {
	o, _ := newTestOrchestrator(t, anneal.TemplateGenerator{})
	ctx := context.Background()

	p, err := o.CreateAgent(ctx, CreateRequest{Name: "a", Category: models.CategoryAnalyst, MaxIterations: ptr(5)})
	require.NoError(t, err)

	pool := NewPool(o, testPoolConfig(4, 10))
	var wg sync.WaitGroup
	for _, task := range []string{"analyze churn", "compare revenue trend", "evaluate metric drift"} {
		wg.Add(1)
		require.NoError(t, pool.Submit(&Job{
			AgentID:  p.ID,
			Task:     task,
			Callback: func(*JobResult) { wg.Done() },
		}))
	}
	wg.Wait()
	require.NoError(t, pool.Shutdown(time.Second))

	got, err := o.GetAgent(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.TaskHistory, 3)
	assert.Equal(t, 3, got.Metrics.TotalTasks)
}
