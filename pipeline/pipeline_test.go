package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddsfabric/ddscore/ddserror"
	"github.com/ddsfabric/ddscore/history"
)

func TestWriterAssignsSequenceNumbers(t *testing.T) {
	w := NewWriter(history.NewWriterCache(history.KeepAll, 0), 8, true)
	ctx := context.Background()
	seq0, err := w.Write(ctx, "k1", "a")
	require.NoError(t, err)
	seq1, err := w.Write(ctx, "k1", "b")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq0)
	assert.Equal(t, uint64(1), seq1)

	f0 := <-w.Out()
	f1 := <-w.Out()
	assert.Equal(t, "a", f0.Data)
	assert.Equal(t, "b", f1.Data)
}

func TestWriterDisposeAndUnregisterQueueKeyOnlyFrames(t *testing.T) {
	w := NewWriter(history.NewWriterCache(history.KeepAll, 0), 8, true)
	ctx := context.Background()
	_, err := w.Dispose(ctx, "k1")
	require.NoError(t, err)
	_, err = w.Unregister(ctx, "k1")
	require.NoError(t, err)

	f0 := <-w.Out()
	assert.True(t, f0.Disposed)
	assert.Nil(t, f0.Data)
	f1 := <-w.Out()
	assert.True(t, f1.Unregistered)
	assert.Equal(t, f0.SeqNum+1, f1.SeqNum)
}

func TestWriterBestEffortDropsWhenQueueFull(t *testing.T) {
	w := NewWriter(history.NewWriterCache(history.KeepAll, 0), 1, false)
	ctx := context.Background()
	w.Write(ctx, "k1", "a")
	w.Write(ctx, "k1", "b") // queue full, dropped silently
	f := <-w.Out()
	assert.Equal(t, "a", f.Data)
	select {
	case <-w.Out():
		t.Fatal("expected no second frame")
	default:
	}
}

func TestWriterReliableBlocksUntilContextDone(t *testing.T) {
	w := NewWriter(history.NewWriterCache(history.KeepAll, 0), 1, true)
	ctx := context.Background()
	w.Write(ctx, "k1", "a") // fills queue

	cancelCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := w.Write(cancelCtx, "k1", "b")
	assert.True(t, time.Since(start) >= 15*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ddserror.CodeTimeout, ddserror.Kind(err))
}

func TestReaderPollingMode(t *testing.T) {
	cache := history.NewReaderCache(history.KeepAll, history.ResourceLimits{
		MaxSamples: history.Unlimited, MaxSamplesPerInstance: history.Unlimited, MaxInstances: history.Unlimited,
	})
	r := NewReader(ModePolling, cache)
	require.NoError(t, r.OnIncoming(1, "k1", 0, "hello"))
	loan, samples := r.Take(10)
	require.Len(t, samples, 1)
	require.NoError(t, r.ReturnLoan(loan))
}

func TestListenerModeInvokesCallback(t *testing.T) {
	cache := history.NewReaderCache(history.KeepAll, history.ResourceLimits{
		MaxSamples: history.Unlimited, MaxSamplesPerInstance: history.Unlimited, MaxInstances: history.Unlimited,
	})
	r := NewReader(ModeListener, cache)

	var calls int32
	require.NoError(t, r.SetListener(context.Background(), func(r *Reader) {
		atomic.AddInt32(&calls, 1)
		_, samples := r.Take(10)
		for range samples {
		}
	}))
	defer r.StopListener()

	require.NoError(t, r.OnIncoming(1, "k1", 0, "hello"))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestOnFrameRoutesKeyOnlyFramesToStateMachine(t *testing.T) {
	cache := history.NewReaderCache(history.KeepAll, history.ResourceLimits{
		MaxSamples: history.Unlimited, MaxSamplesPerInstance: history.Unlimited, MaxInstances: history.Unlimited,
	})
	r := NewReader(ModePolling, cache)

	require.NoError(t, r.OnFrame(1, Frame{Key: "k1", SeqNum: 0, Data: "a"}))
	require.NoError(t, r.OnFrame(1, Frame{Key: "k1", SeqNum: 1, Disposed: true}))
	st, ok := cache.InstanceState("k1")
	require.True(t, ok)
	assert.Equal(t, history.StateNotAliveDisposed, st)

	loan, samples := r.Take(10)
	require.Len(t, samples, 1)
	require.NoError(t, r.ReturnLoan(loan))

	require.NoError(t, r.OnFrame(1, Frame{Key: "k1", SeqNum: 2, Unregistered: true}))
	assert.Equal(t, 0, cache.InstanceCount(), "unregister with no samples or loans destroys the instance")
}

func TestSetListenerRejectedOnNonListenerReader(t *testing.T) {
	cache := history.NewReaderCache(history.KeepAll, history.ResourceLimits{MaxSamples: history.Unlimited, MaxSamplesPerInstance: history.Unlimited, MaxInstances: history.Unlimited})
	r := NewReader(ModePolling, cache)
	err := r.SetListener(context.Background(), func(r *Reader) {})
	require.Error(t, err)
	assert.Equal(t, ddserror.CodeIllegalOperation, ddserror.Kind(err))
}

func TestWaitForDataTimesOut(t *testing.T) {
	cache := history.NewReaderCache(history.KeepAll, history.ResourceLimits{MaxSamples: history.Unlimited, MaxSamplesPerInstance: history.Unlimited, MaxInstances: history.Unlimited})
	r := NewReader(ModeWaitset, cache)
	err := r.WaitForData(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ddserror.CodeTimeout, ddserror.Kind(err))
}

func TestWaitForDataWakesOnIncoming(t *testing.T) {
	cache := history.NewReaderCache(history.KeepAll, history.ResourceLimits{MaxSamples: history.Unlimited, MaxSamplesPerInstance: history.Unlimited, MaxInstances: history.Unlimited})
	r := NewReader(ModeWaitset, cache)

	done := make(chan error, 1)
	go func() {
		done <- r.WaitForData(context.Background(), time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.OnIncoming(1, "k1", 0, "hello"))
	require.NoError(t, <-done)
}

func TestWaitForDataRejectedOnNonWaitsetReader(t *testing.T) {
	cache := history.NewReaderCache(history.KeepAll, history.ResourceLimits{MaxSamples: history.Unlimited, MaxSamplesPerInstance: history.Unlimited, MaxInstances: history.Unlimited})
	r := NewReader(ModePolling, cache)
	err := r.WaitForData(context.Background(), time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ddserror.CodeIllegalOperation, ddserror.Kind(err))
}
