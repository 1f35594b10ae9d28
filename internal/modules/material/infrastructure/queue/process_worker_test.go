package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"EduLink/internal/modules/material/domain/material"
	"EduLink/internal/modules/material/infrastructure/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueueRepo struct {
	mu         sync.Mutex
	entry      *material.ProcessQueueEntry
	claimErr   error
	completed  []int64
	failed     []int64
	exhausted  bool
	lastRetry  time.Time
	claimCalls int
}

func (f *fakeQueueRepo) claims() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimCalls
}

func (f *fakeQueueRepo) Enqueue(ctx context.Context, materialId string, now time.Time) error {
	return nil
}

func (f *fakeQueueRepo) ClaimNext(ctx context.Context, now time.Time, visibility time.Duration) (*material.ProcessQueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	e := f.entry
	f.entry = nil
	return e, nil
}

func (f *fakeQueueRepo) Complete(ctx context.Context, id int64) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeQueueRepo) Fail(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time, maxAttempts int) (bool, error) {
	f.failed = append(f.failed, id)
	f.lastRetry = nextRetryAt
	return f.exhausted, nil
}

func (f *fakeQueueRepo) PendingCount(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeQueueRepo) DeleteByMaterial(ctx context.Context, materialId string) error { return nil }

type fakeMaterialRepo struct {
	m        *material.Material
	statuses []string
}

func (f *fakeMaterialRepo) Create(ctx context.Context, m *material.Material) error { return nil }

func (f *fakeMaterialRepo) GetByID(ctx context.Context, id string) (*material.Material, error) {
	if f.m == nil {
		return nil, material.ErrNotFound
	}
	return f.m, nil
}

func (f *fakeMaterialRepo) ListByCourse(ctx context.Context, courseId string) ([]material.Material, error) {
	return nil, nil
}

func (f *fakeMaterialRepo) UpdateStatus(ctx context.Context, id string, status string, errMsg string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeMaterialRepo) Delete(ctx context.Context, id string) error { return nil }

type fakeProcessor struct {
	err   error
	calls int
}

func (f *fakeProcessor) Process(ctx context.Context, req pipeline.ProcessRequest) (*pipeline.ProcessResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.ProcessResult{MaterialId: req.MaterialId, Chunks: 3}, nil
}

func newTestWorker(q *fakeQueueRepo, m *fakeMaterialRepo, p *fakeProcessor) *ProcessWorker {
	return NewProcessWorker(q, m, p, nil, WorkerConfig{})
}

func queueEntry() *material.ProcessQueueEntry {
	return &material.ProcessQueueEntry{Id: 7, MaterialId: "mat_abc", Attempts: 0}
}

func TestRunOnceNoEntry(t *testing.T) {
	q := &fakeQueueRepo{}
	w := newTestWorker(q, &fakeMaterialRepo{}, &fakeProcessor{})

	worked, err := w.runOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestRunOnceSuccess(t *testing.T) {
	q := &fakeQueueRepo{entry: queueEntry()}
	m := &fakeMaterialRepo{m: &material.Material{Id: "mat_abc", Status: material.StatusPending, BlobURL: "http://blob"}}
	p := &fakeProcessor{}
	w := newTestWorker(q, m, p)

	worked, err := w.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, []int64{7}, q.completed)
	assert.Equal(t, []string{material.StatusProcessing, material.StatusCompleted}, m.statuses)
}

func TestRunOncePermanentErrorMarksFailed(t *testing.T) {
	q := &fakeQueueRepo{entry: queueEntry()}
	m := &fakeMaterialRepo{m: &material.Material{Id: "mat_abc", Status: material.StatusPending}}
	p := &fakeProcessor{err: &material.CorruptDocumentError{Reason: "坏文件"}}
	w := newTestWorker(q, m, p)

	worked, err := w.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, []int64{7}, q.completed)
	assert.Empty(t, q.failed)
	assert.Equal(t, material.StatusFailed, m.statuses[len(m.statuses)-1])
}

func TestRunOnceTransientErrorRequeues(t *testing.T) {
	q := &fakeQueueRepo{entry: queueEntry()}
	m := &fakeMaterialRepo{m: &material.Material{Id: "mat_abc", Status: material.StatusPending}}
	p := &fakeProcessor{err: &material.TransientIOError{Op: "download", Err: errors.New("超时")}}
	w := newTestWorker(q, m, p)

	worked, err := w.runOnce(context.Background())
	require.Error(t, err, "瞬时失败要上抛给轮询退避")
	assert.True(t, material.IsTransient(err))
	assert.True(t, worked)
	assert.Empty(t, q.completed)
	assert.Equal(t, []int64{7}, q.failed)
	assert.Equal(t, material.StatusPending, m.statuses[len(m.statuses)-1])
}

func TestRunOnceExhaustedMarksFailed(t *testing.T) {
	q := &fakeQueueRepo{entry: queueEntry(), exhausted: true}
	m := &fakeMaterialRepo{m: &material.Material{Id: "mat_abc", Status: material.StatusPending}}
	p := &fakeProcessor{err: &material.DatabaseError{Op: "chunk.replace", Err: errors.New("死锁")}}
	w := newTestWorker(q, m, p)

	_, err := w.runOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, material.StatusFailed, m.statuses[len(m.statuses)-1])
}

func TestPollIntervalBackoffOnPipelineFailures(t *testing.T) {
	q := &fakeQueueRepo{}
	m := &fakeMaterialRepo{m: &material.Material{Id: "mat_abc", Status: material.StatusPending}}
	p := &fakeProcessor{err: &material.TransientIOError{Op: "download", Err: errors.New("超时")}}
	w := newTestWorker(q, m, p)

	for i := 0; i < 3; i++ {
		q.entry = queueEntry()
		worked, err := w.runOnce(context.Background())
		require.True(t, worked)
		require.Error(t, err)
		w.nextDelay(worked, err)
	}

	st := w.Status()
	assert.Equal(t, 3, st.ConsecutiveErrors)
	// 5000ms × 1.5³ = 16875ms
	assert.GreaterOrEqual(t, st.PollInterval, defaultPollInterval*3/2*3/2*3/2)
	assert.LessOrEqual(t, st.PollInterval, defaultMaxPoll)

	// 一次成功回落到基础间隔，且立刻领下一条
	p.err = nil
	q.entry = queueEntry()
	worked, err := w.runOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, w.nextDelay(worked, err))

	st = w.Status()
	assert.Zero(t, st.ConsecutiveErrors)
	assert.Equal(t, defaultPollInterval, st.PollInterval)
}

func TestNextDelayCapsAtMaxPoll(t *testing.T) {
	w := newTestWorker(&fakeQueueRepo{}, &fakeMaterialRepo{}, &fakeProcessor{})
	for i := 0; i < 20; i++ {
		w.nextDelay(false, errors.New("db down"))
	}
	assert.Equal(t, defaultMaxPoll, w.Status().PollInterval)
}

func TestRunOnceMaterialGoneDropsEntry(t *testing.T) {
	q := &fakeQueueRepo{entry: queueEntry()}
	m := &fakeMaterialRepo{} // GetByID 返回 ErrNotFound
	p := &fakeProcessor{}
	w := newTestWorker(q, m, p)

	worked, err := w.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, []int64{7}, q.completed)
	assert.Zero(t, p.calls)
}

func TestStartStopLifecycle(t *testing.T) {
	q := &fakeQueueRepo{}
	w := newTestWorker(q, &fakeMaterialRepo{}, &fakeProcessor{})

	require.NoError(t, w.Start())
	assert.Error(t, w.Start()) // 重复启动报错
	assert.True(t, w.Status().IsRunning)

	w.Stop()
	assert.False(t, w.Status().IsRunning)
	w.Stop() // 重复停止不崩溃
}

func TestTriggerNowWakesLoop(t *testing.T) {
	q := &fakeQueueRepo{}
	w := newTestWorker(q, &fakeMaterialRepo{}, &fakeProcessor{})
	require.NoError(t, w.Start())
	defer w.Stop()

	before := q.claims()
	w.TriggerNow()
	assert.Eventually(t, func() bool {
		return q.claims() > before
	}, time.Second, 10*time.Millisecond)
}

func TestEntryRetryDelaySchedule(t *testing.T) {
	assert.Equal(t, 30*time.Second, entryRetryDelay(0))
	assert.Equal(t, time.Minute, entryRetryDelay(1))
	assert.Equal(t, 8*time.Minute, entryRetryDelay(4))
	assert.Equal(t, 30*time.Minute, entryRetryDelay(10))
}

func TestStatusBackoffOnErrors(t *testing.T) {
	q := &fakeQueueRepo{claimErr: errors.New("db down")}
	w := newTestWorker(q, &fakeMaterialRepo{}, &fakeProcessor{})
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Eventually(t, func() bool {
		st := w.Status()
		return st.ConsecutiveErrors >= 1 && st.PollInterval > defaultPollInterval
	}, time.Second, 10*time.Millisecond)
}
