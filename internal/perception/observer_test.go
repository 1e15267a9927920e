package perception

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCachedObserverLatestNonBlocking(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	source := SourceFunc(func(ctx context.Context) (Observation, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		// Simulate a slow vision round trip that never finishes.
		<-ctx.Done()
		return Observation{}, ctx.Err()
	})

	obs := NewCachedObserver(source, 10*time.Second)
	obs.Start(context.Background())
	defer obs.Close()
	<-started

	// Latest must return immediately even with the capture stuck.
	done := make(chan struct{})
	go func() {
		_, ok := obs.Latest(time.Now())
		assert.False(t, ok)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Latest blocked on an in-flight capture")
	}
}

func TestCachedObserverServesNewest(t *testing.T) {
	defer goleak.VerifyNone(t)

	var n atomic.Int32
	source := SourceFunc(func(ctx context.Context) (Observation, error) {
		i := n.Add(1)
		if i > 3 {
			<-ctx.Done()
			return Observation{}, ctx.Err()
		}
		return Observation{Scene: fmt.Sprintf("scene %d", i), CapturedAt: time.Now()}, nil
	})

	obs := NewCachedObserver(source, 10*time.Second)
	obs.Start(context.Background())
	defer obs.Close()

	require.Eventually(t, func() bool {
		o, ok := obs.Latest(time.Now())
		return ok && o.Scene == "scene 3"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCachedObserverKeepsCacheOnError(t *testing.T) {
	defer goleak.VerifyNone(t)

	var n atomic.Int32
	source := SourceFunc(func(ctx context.Context) (Observation, error) {
		if n.Add(1) == 1 {
			return Observation{Scene: "good scene", CapturedAt: time.Now()}, nil
		}
		return Observation{}, fmt.Errorf("camera unplugged")
	})

	obs := NewCachedObserver(source, 10*time.Second)
	obs.Start(context.Background())
	defer obs.Close()

	require.Eventually(t, func() bool {
		_, ok := obs.Latest(time.Now())
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond) // let a few failures happen
	o, ok := obs.Latest(time.Now())
	require.True(t, ok)
	assert.Equal(t, "good scene", o.Scene)
}

func TestCachedObserverHeardLatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	var n atomic.Int32
	source := SourceFunc(func(ctx context.Context) (Observation, error) {
		if n.Add(1) == 1 {
			return Observation{Scene: "s", Heard: "hello there", CapturedAt: time.Now()}, nil
		}
		// Later captures hear nothing.
		select {
		case <-ctx.Done():
			return Observation{}, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		return Observation{Scene: "s", CapturedAt: time.Now()}, nil
	})

	obs := NewCachedObserver(source, 10*time.Second)
	obs.Start(context.Background())
	defer obs.Close()

	// Wait until silent captures have replaced the one that heard something.
	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)

	// Within the latch window the heard text is merged back in.
	o, ok := obs.Latest(time.Now())
	require.True(t, ok)
	assert.Equal(t, "hello there", o.Heard)

	// Past the window it is gone.
	o, _ = obs.Latest(time.Now().Add(time.Minute))
	assert.Equal(t, "", o.Heard)
}

func TestWaitFirst(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := SourceFunc(func(ctx context.Context) (Observation, error) {
		return Observation{Scene: "ready", CapturedAt: time.Now()}, nil
	})
	obs := NewCachedObserver(source, time.Second)
	obs.Start(context.Background())
	defer obs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := obs.WaitFirst(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", o.Scene)
}

func TestWaitFirstTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := SourceFunc(func(ctx context.Context) (Observation, error) {
		<-ctx.Done()
		return Observation{}, ctx.Err()
	})
	obs := NewCachedObserver(source, time.Second)
	obs.Start(context.Background())
	defer obs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := obs.WaitFirst(ctx)
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "scene.txt")
	heardPath := filepath.Join(dir, "heard.txt")
	require.NoError(t, os.WriteFile(scenePath, []byte("a plaza\n"), 0644))
	require.NoError(t, os.WriteFile(heardPath, []byte("hello\n"), 0644))

	src := NewFileSource(scenePath, heardPath, 100*time.Millisecond)
	ctx := context.Background()

	obs, err := src.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a plaza", obs.Scene)
	assert.Equal(t, "hello", obs.Heard)

	// Unchanged heard file is reported only once.
	obs, err = src.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a plaza", obs.Scene)
	assert.Equal(t, "", obs.Heard)

	// A rewritten heard file shows up again.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(heardPath, []byte("bye\n"), 0644))
	now := time.Now()
	require.NoError(t, os.Chtimes(heardPath, now, now))
	obs, err = src.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bye", obs.Heard)

	// Missing files degrade to an empty observation.
	require.NoError(t, os.Remove(scenePath))
	obs, err = src.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", obs.Scene)
}
