package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueue_RunsJobAndReportsResult(t *testing.T) {
	q := NewQueue(2, 4)
	defer func() { _ = q.Stop(context.Background()) }()

	var ran atomic.Bool
	id, err := q.Submit("puzzle", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, "puzzle:2026-10-17")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a job id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := q.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if res.Err != nil || res.Attempts != 1 || !ran.Load() {
		t.Errorf("Unexpected result %+v", res)
	}
	if q.InFlight("puzzle:2026-10-17") {
		t.Error("Expected key to be released after completion")
	}
}

func TestQueue_RejectsDuplicateKeys(t *testing.T) {
	q := NewQueue(1, 4)
	defer func() { _ = q.Stop(context.Background()) }()

	release := make(chan struct{})
	first, err := q.Submit("portraits", func(ctx context.Context) error {
		<-release
		return nil
	}, "portrait:1", "portrait:2")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := q.Submit("portraits", func(ctx context.Context) error { return nil }, "portrait:2", "portrait:3"); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("Expected ErrDuplicateJob, got %v", err)
	}
	if q.InFlight("portrait:3") {
		t.Error("Rejected job must not claim its keys")
	}

	close(release)
	if _, err := q.Wait(context.Background(), first); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if _, err := q.Submit("portraits", func(ctx context.Context) error { return nil }, "portrait:2"); err != nil {
		t.Errorf("Expected key to be free again, got %v", err)
	}
}

func TestQueue_RetriesFailedJob(t *testing.T) {
	q := NewQueue(1, 1)
	defer func() { _ = q.Stop(context.Background()) }()

	var calls atomic.Int32
	id, err := q.SubmitJob(&Job{Name: "flaky", Keys: []string{"k"}, Attempts: 3}, func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("SubmitJob failed: %v", err)
	}
	res, err := q.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if res.Err != nil || res.Attempts != 3 {
		t.Errorf("Expected success on attempt 3, got %+v", res)
	}
}

func TestQueue_ReportsPersistentFailureAndPanic(t *testing.T) {
	q := NewQueue(1, 2)
	defer func() { _ = q.Stop(context.Background()) }()
	boom := errors.New("boom")

	failing, _ := q.SubmitJob(&Job{Name: "failing", Attempts: 2}, func(ctx context.Context) error { return boom })
	panicking, _ := q.Submit("panicking", func(ctx context.Context) error { panic("oops") })

	res, err := q.Wait(context.Background(), failing)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !errors.Is(res.Err, boom) || res.Attempts != 2 {
		t.Errorf("Unexpected result %+v", res)
	}

	res, err = q.Wait(context.Background(), panicking)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if res.Err == nil {
		t.Error("Expected panic to be reported as an error")
	}
}

func TestQueue_StopDrainsAndCloses(t *testing.T) {
	q := NewQueue(1, 4)
	var done atomic.Int32
	for _, key := range []string{"a", "b", "c"} {
		if _, err := q.Submit("job", func(ctx context.Context) error {
			done.Add(1)
			return nil
		}, key); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if done.Load() != 3 {
		t.Errorf("Expected queued jobs to drain, got %d", done.Load())
	}
	if _, err := q.Submit("late", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(1, 1)
	release := make(chan struct{})
	defer func() {
		close(release)
		_ = q.Stop(context.Background())
	}()

	started := make(chan struct{})
	if _, err := q.Submit("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started
	if _, err := q.Submit("queued", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := q.Submit("overflow", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

// memLocker is a Locker shared by several queues.
type memLocker struct {
	mu    sync.Mutex
	owner map[string]string
	err   error
}

func newMemLocker() *memLocker {
	return &memLocker{owner: make(map[string]string)}
}

func (l *memLocker) Acquire(ctx context.Context, jobID string, keys []string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	for _, key := range keys {
		if _, ok := l.owner[key]; ok {
			return false, nil
		}
	}
	for _, key := range keys {
		l.owner[key] = jobID
	}
	return true, nil
}

func (l *memLocker) Release(ctx context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, owner := range l.owner {
		if owner == jobID {
			delete(l.owner, key)
		}
	}
	return nil
}

func (l *memLocker) held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.owner[key]
	return ok
}

func TestQueue_LockerSharedAcrossQueues(t *testing.T) {
	locker := newMemLocker()
	first := NewQueue(1, 2, WithLocker(locker))
	second := NewQueue(1, 2, WithLocker(locker))
	defer func() { _ = first.Stop(context.Background()) }()
	defer func() { _ = second.Stop(context.Background()) }()

	release := make(chan struct{})
	id, err := first.Submit("portraits", func(ctx context.Context) error {
		<-release
		return nil
	}, "portrait:12")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := second.Submit("portraits", func(ctx context.Context) error { return nil }, "portrait:12"); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("Expected ErrDuplicateJob from the second queue, got %v", err)
	}
	if second.InFlight("portrait:12") {
		t.Error("Refused job must not be pending in the second queue")
	}

	close(release)
	if _, err := first.Wait(context.Background(), id); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if locker.held("portrait:12") {
		t.Error("Expected the key to be released after the job")
	}
	if _, err := second.Submit("portraits", func(ctx context.Context) error { return nil }, "portrait:12"); err != nil {
		t.Errorf("Expected key to be free again, got %v", err)
	}
}

func TestQueue_LockerErrorRejectsJob(t *testing.T) {
	locker := newMemLocker()
	locker.err = errors.New("database is down")
	q := NewQueue(1, 1, WithLocker(locker))
	defer func() { _ = q.Stop(context.Background()) }()

	if _, err := q.Submit("puzzle", func(ctx context.Context) error { return nil }, "puzzle:2025-06-01"); err == nil || errors.Is(err, ErrDuplicateJob) {
		t.Errorf("Expected the locker error, got %v", err)
	}
	if q.InFlight("puzzle:2025-06-01") {
		t.Error("Rejected job must not claim its keys")
	}
}
