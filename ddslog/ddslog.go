// Package ddslog is the structured logging/tracing frontend for the data
// plane: two independently swappable sinks (Log and Trace), a category
// bitmask gating what gets written, and a per-goroutine scratch buffer pool
// for building log lines without allocating on the hot path. It borrows
// logiface's swappable-Writer-vtable shape and sentinel-return convention
// (ErrDisabled) without depending on logiface itself, since the two-sink/
// category-mask model here is a different shape to logiface's per-Event
// pluggable backend.
package ddslog

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"

	"github.com/ddsfabric/ddscore/clock"
)

// Level mirrors the syslog-style severities logiface/level.go documents,
// reimplemented locally (rather than imported) because this package's
// Event shape and gating model differ enough that sharing the type isn't
// worth the coupling.
type Level int8

const (
	LevelEmergency Level = iota
	LevelAlert
	LevelCritical
	LevelError
	LevelWarning
	LevelNotice
	LevelInformational
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelEmergency:
		return "emerg"
	case LevelAlert:
		return "alert"
	case LevelCritical:
		return "crit"
	case LevelError:
		return "err"
	case LevelWarning:
		return "warning"
	case LevelNotice:
		return "notice"
	case LevelInformational:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// Category is a bitmask identifying the subsystem a log line came from,
// the direct equivalent of logcat_t/enabled_logcats.
type Category uint32

const (
	CatFatal Category = 1 << iota
	CatError
	CatWarning
	CatInfo
	CatConfig
	CatDiscovery
	CatData
	CatRadmin
	CatTiming
	CatTraffic
	CatTopic
	CatTCP
	CatPlist
	CatThrottle
	CatContent
	CatTrace

	CatAll Category = 1<<16 - 1
)

// Field is one key/value pair attached to an Entry.
type Field struct {
	Key   string
	Value any
}

// Entry is a single log line handed to a Sink.
type Entry struct {
	Category  Category
	Level     Level
	Message   string
	Fields    []Field
	Timestamp clock.Timestamp
	GoroutineID uint64
}

// maxLineLen bounds the per-thread line buffer the way q_log.c's fixed-size
// thread-local buffer does (~2KB); a line whose rendered form would exceed
// it has its tail replaced with the literal "(trunc)\n" before flush.
const maxLineLen = 2048

// Sink receives finished Entry values. Write returning ErrDisabled is not
// treated as a failure by the Logger (it simply means this particular sink
// declined the entry), matching logiface's WriterSlice convention of trying
// writers in order and tolerating ErrDisabled.
type Sink interface {
	Write(e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Entry) error

func (f SinkFunc) Write(e Entry) error { return f(e) }

// ErrDisabled is returned by a Sink to indicate it intentionally dropped an
// Entry (as opposed to a write failure); Logger does not surface it.
var ErrDisabled = fmt.Errorf("ddslog: sink disabled")

// Logger owns the two sinks and the category mask. The zero value is a
// usable, fully-disabled logger (both sinks nil, mask zero).
type Logger struct {
	mu        sync.RWMutex // guards sink swaps against in-flight writes
	logSink   Sink
	traceSink Sink

	mask atomic.Uint32

	stats [32]atomic.Uint64 // per-category line counters, indexed by bit position

	bufPool sync.Pool
}

// New constructs a Logger with every category enabled and no sinks set.
func New() *Logger {
	l := &Logger{}
	l.mask.Store(uint32(CatAll))
	l.bufPool.New = func() any { return new(bytes.Buffer) }
	return l
}

// SetLogSink swaps the LOG sink. The swap is synchronous with respect to
// Write: it blocks until any in-flight Write call returns, and no Write
// call started after SetLogSink returns can observe the old sink, the same
// guarantee an RWMutex gives any reader/writer pair.
func (l *Logger) SetLogSink(s Sink) {
	l.mu.Lock()
	l.logSink = s
	l.mu.Unlock()
}

// SetTraceSink swaps the TRACE sink with the same synchronous guarantee as
// SetLogSink.
func (l *Logger) SetTraceSink(s Sink) {
	l.mu.Lock()
	l.traceSink = s
	l.mu.Unlock()
}

// SetCategories replaces the enabled-category mask.
func (l *Logger) SetCategories(mask Category) {
	l.mask.Store(uint32(mask))
}

// Enabled reports whether any bit of cat is currently enabled, matching
// `config.enabled_logcats & cat`.
func (l *Logger) Enabled(cat Category) bool {
	return Category(l.mask.Load())&cat != 0
}

func bitIndex(cat Category) int {
	for i := 0; i < 32; i++ {
		if cat&(1<<i) != 0 {
			return i
		}
	}
	return 0
}

// Stats returns the number of lines written per category since
// construction (or the last ResetStats), the surfaced equivalent of
// q_log.c's implicit per-category accounting.
func (l *Logger) Stats() map[Category]uint64 {
	out := make(map[Category]uint64)
	for i := range l.stats {
		if n := l.stats[i].Load(); n > 0 {
			out[Category(1<<i)] = n
		}
	}
	return out
}

// ResetStats zeroes every per-category counter.
func (l *Logger) ResetStats() {
	for i := range l.stats {
		l.stats[i].Store(0)
	}
}

// Log writes an Entry to the LOG sink if cat is enabled, matching nn_log.
// CatFatal gets no special treatment: Log writes the entry and returns like
// for any other category, and nothing in this module panics or aborts
// after it (nn_log's call to abort() has no counterpart here).
func (l *Logger) Log(cat Category, level Level, msg string, fields ...Field) {
	if !l.Enabled(cat) {
		return
	}
	l.stats[bitIndex(cat)].Add(1)
	e := Entry{Category: cat, Level: level, Message: msg, Fields: fields, Timestamp: clock.Now(), GoroutineID: goroutineID()}
	// The read lock is held across sink.Write itself, not just the sink
	// lookup: SetLogSink's "must not return until no thread resides in the
	// outgoing write_fn" guarantee only holds if a swap (which takes the
	// write lock) cannot proceed while this call is inside Write.
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.logSink == nil {
		return
	}
	_ = l.logSink.Write(e)
}

// Trace writes an Entry to the TRACE sink if CatTrace is enabled, matching
// nn_trace.
func (l *Logger) Trace(msg string, fields ...Field) {
	if !l.Enabled(CatTrace) {
		return
	}
	l.stats[bitIndex(CatTrace)].Add(1)
	e := Entry{Category: CatTrace, Level: LevelTrace, Message: msg, Fields: fields, Timestamp: clock.Now(), GoroutineID: goroutineID()}
	// Same hold-the-read-lock-across-Write discipline as Log, so
	// SetTraceSink's synchronous swap guarantee holds for the TRACE sink too.
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.traceSink == nil {
		return
	}
	_ = l.traceSink.Write(e)
}

// getBuf and putBuf lend a scratch bytes.Buffer from the pool, the
// allocation-avoidance idiom logiface/refpool.go uses (there, a pool of raw
// pointer pairs; here, a pool of reusable line buffers, since the need is
// to build a formatted line rather than stash two opaque pointers).
func (l *Logger) getBuf() *bytes.Buffer {
	b, _ := l.bufPool.Get().(*bytes.Buffer)
	if b == nil {
		// the zero-value Logger's pool has no New func
		b = new(bytes.Buffer)
	}
	b.Reset()
	return b
}

func (l *Logger) putBuf(b *bytes.Buffer) {
	l.bufPool.Put(b)
}

// RenderLine formats an Entry into a single log line the way a sink
// typically will, using the pool to avoid repeat allocation. Any field
// value that doesn't stringify cleanly via fmt.Stringer/error is rendered
// with spew.Sdump, the same "fall back to a generic dumper for opaque
// values" behavior logiface backends apply to unrecognized field types.
func (l *Logger) RenderLine(e Entry) string {
	buf := l.getBuf()
	defer l.putBuf(buf)

	sec := int64(e.Timestamp) / int64(clock.Second)
	usec := (int64(e.Timestamp) % int64(clock.Second)) / int64(clock.Microsecond)
	fmt.Fprintf(buf, "%d.%06d/%d: %s: %s", sec, usec, e.GoroutineID, e.Level, e.Message)
	for _, f := range e.Fields {
		buf.WriteByte(' ')
		buf.WriteString(f.Key)
		buf.WriteByte('=')
		writeFieldValue(buf, f.Value)
	}
	buf.WriteByte('\n')

	// A completed line is one write terminated by '\n'; overflow of the
	// thread-local accumulation buffer has its trailing portion replaced by
	// the literal "(trunc)\n" before flush, matching q_log.c's nn_vlog.
	if buf.Len() > maxLineLen {
		truncated := append([]byte(nil), buf.Bytes()[:maxLineLen-len("(trunc)\n")]...)
		truncated = append(truncated, "(trunc)\n"...)
		return string(truncated)
	}
	return buf.String()
}

// goroutineID extracts the calling goroutine's numeric ID from its stack
// trace header ("goroutine 123 [running]:..."), the same
// parse-the-runtime-stack approach goroutine-id helper libraries take to
// give log lines a stable thread-like identifier without cgo or linkname
// tricks.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func writeFieldValue(buf *bytes.Buffer, v any) {
	switch x := v.(type) {
	case nil:
		buf.WriteString("nil")
	case string:
		buf.WriteString(x)
	case fmt.Stringer:
		buf.WriteString(x.String())
	case error:
		buf.WriteString(x.Error())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		fmt.Fprintf(buf, "%v", x)
	default:
		buf.WriteString(spew.Sdump(v))
	}
}
