package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(t *testing.T, b EventBus, subject string) (func() []string, *sync.WaitGroup) {
	t.Helper()
	var (
		mu   sync.Mutex
		got  []string
		wait sync.WaitGroup
	)
	_, err := b.Subscribe(subject, func(ctx context.Context, event *Event) error {
		mu.Lock()
		got = append(got, event.Type)
		mu.Unlock()
		wait.Done()
		return nil
	})
	require.NoError(t, err)
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}, &wait
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
}

func TestMemoryEventBus_ExactSubject(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	defer b.Close()

	got, wg := collect(t, b, "relay.run.started")
	wg.Add(1)

	require.NoError(t, b.Publish(context.Background(), "relay.run.started", NewEvent("run.started", "test", nil)))
	require.NoError(t, b.Publish(context.Background(), "relay.run.failed", NewEvent("run.failed", "test", nil)))
	waitTimeout(t, wg)

	b.Close()
	assert.Equal(t, []string{"run.started"}, got())
}

func TestMemoryEventBus_Wildcards(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	defer b.Close()

	tail, tailWG := collect(t, b, "relay.>")
	single, singleWG := collect(t, b, "relay.run.*")
	tailWG.Add(3)
	singleWG.Add(2)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "relay.run.started", NewEvent("a", "test", nil)))
	require.NoError(t, b.Publish(ctx, "relay.run.completed", NewEvent("b", "test", nil)))
	require.NoError(t, b.Publish(ctx, "relay.limiter.rejected", NewEvent("c", "test", nil)))
	require.NoError(t, b.Publish(ctx, "other.run.started", NewEvent("d", "test", nil)))

	waitTimeout(t, tailWG)
	waitTimeout(t, singleWG)
	b.Close()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, tail())
	assert.ElementsMatch(t, []string{"a", "b"}, single())
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	defer b.Close()

	calls := 0
	sub, err := b.Subscribe("relay.run.started", func(ctx context.Context, event *Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.True(t, sub.IsValid())

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	require.NoError(t, b.Publish(context.Background(), "relay.run.started", NewEvent("x", "test", nil)))
	b.Close()
	assert.Zero(t, calls)
}

func TestMemoryEventBus_Closed(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	assert.True(t, b.IsConnected())
	b.Close()

	assert.False(t, b.IsConnected())
	assert.Error(t, b.Publish(context.Background(), "relay.run.started", NewEvent("x", "test", nil)))
	_, err := b.Subscribe("relay.>", func(context.Context, *Event) error { return nil })
	assert.Error(t, err)
}

func TestCompilePattern(t *testing.T) {
	assert.Nil(t, compilePattern("relay.run.started"))

	p := compilePattern("relay.*.started")
	require.NotNil(t, p)
	assert.True(t, p.MatchString("relay.run.started"))
	assert.False(t, p.MatchString("relay.run.x.started"))

	p = compilePattern("relay.>")
	require.NotNil(t, p)
	assert.True(t, p.MatchString("relay.run.x.started"))
	assert.False(t, p.MatchString("relay"))
}
