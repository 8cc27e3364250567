package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// blockingService runs until its context is cancelled and records stop order.
type blockingService struct {
	name    string
	started atomic.Bool
	stopped atomic.Bool
	order   *stopOrder
}

func (m *blockingService) Start(ctx context.Context) error {
	m.started.Store(true)
	<-ctx.Done()
	return nil
}

func (m *blockingService) Stop() {
	m.stopped.Store(true)
	m.order.record(m.name)
}

type stopOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *stopOrder) record(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func runAsync(lc *Lifecycle, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	return done
}

func TestLifecycleStartsAndStopsServicesInReverseOrder(t *testing.T) {
	lc := New(zaptest.NewLogger(t))
	order := &stopOrder{}
	svc1 := &blockingService{name: "svc1", order: order}
	svc2 := &blockingService{name: "svc2", order: order}
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(lc, ctx)

	require.Eventually(t, func() bool {
		return svc1.started.Load() && svc2.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
	assert.Equal(t, []string{"svc2", "svc1"}, order.names)
}

func TestLifecycleServiceErrorShutsDownOthers(t *testing.T) {
	lc := New(zaptest.NewLogger(t))
	order := &stopOrder{}
	healthy := &blockingService{name: "healthy", order: order}
	boom := errors.New("boom")
	lc.Add("healthy", healthy)
	lc.Add("failing", &FuncService{StartFn: func(context.Context) error { return boom }})

	select {
	case err := <-runAsync(lc, context.Background()):
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "service failing")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycleServiceExitShutsDown(t *testing.T) {
	lc := New(zaptest.NewLogger(t))
	stopped := false
	lc.Add("oneshot", &FuncService{
		StartFn: func(context.Context) error { return nil },
		StopFn:  func() { stopped = true },
	})

	select {
	case err := <-runAsync(lc, context.Background()):
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, stopped)
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func(context.Context) error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	err := svc.Start(context.Background())
	assert.NoError(t, err)
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)

	(&FuncService{StartFn: svc.StartFn}).Stop()
}
