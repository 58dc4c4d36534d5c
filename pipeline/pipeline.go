// Package pipeline implements the writer submit path and the reader
// listener/waitset/polling delivery modes described by the data plane's
// sample pipeline: a writer pushes serialized frames onto an outgoing
// queue (blocking with a deadline when reliability demands it), and a
// reader's incoming frames are filed into a history.ReaderCache and
// surfaced to the application through exactly one of three mutually
// exclusive per-reader modes.
package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ddsfabric/ddscore/ddserror"
	"github.com/ddsfabric/ddscore/history"
)

// Frame is one outgoing serialized sample, queued by Writer.Write and
// consumed by whatever transport drains Writer.Out. Disposed and
// Unregistered mark key-only frames.
type Frame struct {
	Key          history.InstanceKey
	SeqNum       uint64
	Data         any
	Disposed     bool
	Unregistered bool
}

// Writer is the writer-side submit path: it assigns sequence numbers via a
// history.WriterCache and places frames on an outgoing queue.
type Writer struct {
	cache    *history.WriterCache
	out      chan Frame
	reliable bool
}

// NewWriter constructs a Writer with the given outgoing queue depth.
// reliable selects the blocking behavior of Write when the queue is full:
// true waits (with the caller's context deadline) the way RELIABLE
// delivery requires retrying rather than dropping; false drops the frame
// immediately, matching BEST_EFFORT.
func NewWriter(cache *history.WriterCache, queueDepth int, reliable bool) *Writer {
	return &Writer{cache: cache, out: make(chan Frame, queueDepth), reliable: reliable}
}

// Out exposes the outgoing queue for a transport to drain.
func (w *Writer) Out() <-chan Frame { return w.out }

// Write computes the next sequence number for key, places the frame on the
// outgoing queue, and returns. If the queue is full and the writer is
// reliable, Write blocks until there is room or ctx is done, returning
// CodeTimeout on cancellation; if not reliable, a full queue silently
// drops the frame.
func (w *Writer) Write(ctx context.Context, key history.InstanceKey, data any) (uint64, error) {
	seq := w.cache.Write(key, data)
	frame := Frame{Key: key, SeqNum: seq, Data: data}
	if err := w.enqueue(ctx, frame); err != nil {
		return seq, err
	}
	return seq, nil
}

// Dispose writes a key-only, disposed frame for key, matching dispose's
// "write of a key-only frame" definition. Like Write, it returns
// CodeTimeout if ctx is done before a reliable writer's queue has room.
func (w *Writer) Dispose(ctx context.Context, key history.InstanceKey) (uint64, error) {
	seq := w.cache.Dispose(key)
	err := w.enqueue(ctx, Frame{Key: key, SeqNum: seq, Disposed: true})
	return seq, err
}

// Unregister writes a key-only, unregistered frame for key: the writer is
// done with the instance without declaring it deleted. Blocking behavior
// matches Write.
func (w *Writer) Unregister(ctx context.Context, key history.InstanceKey) (uint64, error) {
	seq := w.cache.Unregister(key)
	err := w.enqueue(ctx, Frame{Key: key, SeqNum: seq, Unregistered: true})
	return seq, err
}

// enqueue places frame on the outgoing queue. A non-reliable writer drops
// the frame silently (and returns nil) when the queue is full, matching
// BEST_EFFORT. A reliable writer blocks until there is room or ctx is
// done; waking because ctx is done reports the deadline as elapsed rather
// than surfacing the raw context error.
func (w *Writer) enqueue(ctx context.Context, frame Frame) error {
	if !w.reliable {
		select {
		case w.out <- frame:
		default:
		}
		return nil
	}
	select {
	case w.out <- frame:
		return nil
	case <-ctx.Done():
		return ddserror.New(ddserror.CodeTimeout, "Write: deadline elapsed waiting for queue room")
	}
}

// Mode selects how a Reader surfaces newly-filed data to the application.
// Modes are mutually exclusive per reader.
type Mode int

const (
	ModeListener Mode = iota
	ModeWaitset
	ModePolling
)

// Listener is invoked by listener mode each time new data becomes
// available; it is expected to Take in a loop until empty.
type Listener func(r *Reader)

// Reader files incoming frames into a history.ReaderCache and exposes them
// through exactly one delivery mode.
type Reader struct {
	mode  Mode
	cache *history.ReaderCache

	mu       sync.Mutex
	notify   chan struct{}
	listener Listener
	g        *errgroup.Group
	cancel   context.CancelFunc
}

// NewReader constructs a Reader in the given Mode over cache.
func NewReader(mode Mode, cache *history.ReaderCache) *Reader {
	return &Reader{mode: mode, cache: cache, notify: make(chan struct{}, 1)}
}

// OnIncoming files a frame into the reader's cache and wakes any waiting
// listener/waitset consumer, the inbound half of the reader path.
func (r *Reader) OnIncoming(pub history.PublicationHandle, key history.InstanceKey, seq uint64, data any) error {
	if err := r.cache.OnSample(pub, key, seq, data); err != nil {
		return err
	}
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// OnFrame files one transport frame: key-only dispose/unregister frames
// drive the corresponding instance state transitions, anything else is a
// data sample filed via OnIncoming. Waiting consumers are woken either
// way, since an instance state change is as observable as new data.
func (r *Reader) OnFrame(pub history.PublicationHandle, f Frame) error {
	switch {
	case f.Disposed:
		r.cache.OnDispose(f.Key)
	case f.Unregistered:
		r.cache.OnUnregister(f.Key)
	default:
		return r.OnIncoming(pub, f.Key, f.SeqNum, f.Data)
	}
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Take hands up to n samples as a loan, usable directly in polling mode or
// from within a listener/waitset callback.
func (r *Reader) Take(n int) (*history.Loan, []history.Sample) {
	return r.cache.TakeN(n)
}

// ReturnLoan releases a Loan obtained from Take.
func (r *Reader) ReturnLoan(loan *history.Loan) error {
	return r.cache.ReturnLoan(loan)
}

// SetListener starts listener-mode dispatch: fn is invoked, on its own
// goroutine coordinated through an errgroup (so a panic-turned-error
// cancels the dispatch the same way a failed dispatcher should stop
// further delivery), once per notification, until ctx is done. It is an
// error to call SetListener on a Reader not constructed with ModeListener.
func (r *Reader) SetListener(ctx context.Context, fn Listener) error {
	if r.mode != ModeListener {
		return ddserror.New(ddserror.CodeIllegalOperation, "SetListener: reader is not in listener mode")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		return ddserror.New(ddserror.CodePreconditionNotMet, "SetListener: listener already set")
	}
	r.listener = fn

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	r.g = g
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-r.notify:
				var perr error
				func() {
					defer func() {
						if p := recover(); p != nil {
							perr = ddserror.Newf(ddserror.CodeError, "listener panicked: %v", p)
						}
					}()
					fn(r)
				}()
				if perr != nil {
					return perr
				}
			}
		}
	})
	return nil
}

// StopListener cancels listener-mode dispatch and waits for it to exit.
func (r *Reader) StopListener() error {
	r.mu.Lock()
	cancel, g := r.cancel, r.g
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// WaitForData blocks in waitset mode until data is available or timeout
// elapses (0 means wait indefinitely until ctx is done); the select/timer
// structure mirrors longpoll.Channel's partial-timeout handling. It
// returns CodeIllegalOperation if called on a Reader not in waitset mode.
func (r *Reader) WaitForData(ctx context.Context, timeout time.Duration) error {
	if r.mode != ModeWaitset {
		return ddserror.New(ddserror.CodeIllegalOperation, "WaitForData: reader is not in waitset mode")
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.notify:
		return nil
	case <-timeoutCh:
		return ddserror.New(ddserror.CodeTimeout, "WaitForData: deadline elapsed")
	}
}
