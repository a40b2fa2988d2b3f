package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signaturelens/internal/frame"
)

func trackedFrame(t *frame.Tracker) *frame.Frame {
	t.Acquire()
	return frame.NewYUV420(4, 4, time.Now(), t.OnRelease)
}

func TestPreviewDropPolicyEvictsOldest(t *testing.T) {
	var tracker frame.Tracker
	q := NewQueue(2)

	// Three previews with the consumer paused: length stabilizes at 2 and
	// exactly one frame is released.
	first := trackedFrame(&tracker)
	q.EnqueuePreview(first)
	q.EnqueuePreview(trackedFrame(&tracker))
	q.EnqueuePreview(trackedFrame(&tracker))

	require.Equal(t, 2, q.Len())
	require.Equal(t, uint64(1), q.Dropped())
	require.Equal(t, int64(1), tracker.Released())
	require.True(t, first.Released(), "oldest preview must be the one evicted")
}

func TestCaptureIsNeverDisplaced(t *testing.T) {
	var tracker frame.Tracker
	q := NewQueue(1)

	captureDone := make(chan error, 1)
	q.EnqueueCapture(trackedFrame(&tracker), func(_ Result, err error) { captureDone <- err })

	// Queue is full with only a capture: the new preview is dropped, not
	// the capture.
	newcomer := trackedFrame(&tracker)
	q.EnqueuePreview(newcomer)

	require.Equal(t, 1, q.Len())
	require.True(t, newcomer.Released())
	require.Equal(t, uint64(1), q.Dropped())

	req, ok := q.Dequeue(nil)
	require.True(t, ok)
	require.Equal(t, KindCapture, req.Kind)
}

func TestCaptureExceedsSoftCap(t *testing.T) {
	var tracker frame.Tracker
	q := NewQueue(2)

	q.EnqueuePreview(trackedFrame(&tracker))
	q.EnqueuePreview(trackedFrame(&tracker))
	q.EnqueueCapture(trackedFrame(&tracker), func(Result, error) {})

	require.Equal(t, 3, q.Len(), "capture inserts unconditionally")
}

func TestFIFOOrderPreserved(t *testing.T) {
	var tracker frame.Tracker
	q := NewQueue(4)

	q.EnqueuePreview(trackedFrame(&tracker))
	q.EnqueueCapture(trackedFrame(&tracker), func(Result, error) {})
	q.EnqueuePreview(trackedFrame(&tracker))

	kinds := []Kind{}
	for i := 0; i < 3; i++ {
		req, ok := q.Dequeue(nil)
		require.True(t, ok)
		kinds = append(kinds, req.Kind)
		req.Frame.Release()
	}
	require.Equal(t, []Kind{KindPreview, KindCapture, KindPreview}, kinds)
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	var tracker frame.Tracker
	q := NewQueue(2)

	got := make(chan Request, 1)
	go func() {
		req, ok := q.Dequeue(nil)
		if ok {
			got <- req
		}
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned before anything was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	q.EnqueuePreview(trackedFrame(&tracker))
	select {
	case req := <-got:
		req.Frame.Release()
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake on enqueue")
	}
}

func TestDequeueStops(t *testing.T) {
	q := NewQueue(2)
	stop := make(chan struct{})

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(stop)
		done <- ok
	}()

	close(stop)
	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not observe stop")
	}
}

func TestCloseReleasesAndFailsPendingCaptures(t *testing.T) {
	var tracker frame.Tracker
	q := NewQueue(2)

	var captureErr error
	q.EnqueuePreview(trackedFrame(&tracker))
	q.EnqueueCapture(trackedFrame(&tracker), func(_ Result, err error) { captureErr = err })

	q.Close()
	require.True(t, tracker.Balanced(), "close must release every queued frame")
	require.ErrorIs(t, captureErr, ErrStopped)

	// Enqueues after close release immediately.
	q.EnqueuePreview(trackedFrame(&tracker))
	require.True(t, tracker.Balanced())
}
