package ddslog

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRespectsCategoryMask(t *testing.T) {
	l := New()
	l.SetCategories(CatError)

	var got []Entry
	l.SetLogSink(SinkFunc(func(e Entry) error {
		got = append(got, e)
		return nil
	}))

	l.Log(CatError, LevelError, "boom")
	l.Log(CatConfig, LevelInformational, "startup")

	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Message)
}

func TestTraceOnlyFiresWhenCatTraceEnabled(t *testing.T) {
	l := New()
	l.SetCategories(CatError) // trace disabled

	var n int
	l.SetTraceSink(SinkFunc(func(e Entry) error { n++; return nil }))
	l.Trace("detail")
	assert.Equal(t, 0, n)

	l.SetCategories(CatTrace)
	l.Trace("detail")
	assert.Equal(t, 1, n)
}

func TestStatsCountsPerCategory(t *testing.T) {
	l := New()
	l.SetLogSink(SinkFunc(func(e Entry) error { return nil }))
	l.Log(CatError, LevelError, "a")
	l.Log(CatError, LevelError, "b")
	l.Log(CatWarning, LevelWarning, "c")

	stats := l.Stats()
	assert.EqualValues(t, 2, stats[CatError])
	assert.EqualValues(t, 1, stats[CatWarning])

	l.ResetStats()
	assert.Empty(t, l.Stats())
}

func TestRenderLineFallsBackToSpewForOpaqueValues(t *testing.T) {
	l := New()
	type custom struct{ X int }
	line := l.RenderLine(Entry{
		Level:   LevelInformational,
		Message: "hello",
		Fields:  []Field{{Key: "thing", Value: custom{X: 1}}},
	})
	assert.True(t, strings.Contains(line, "hello"))
	assert.True(t, strings.Contains(line, "thing="))
}

func TestSinkSwapIsSynchronousWithConcurrentWrites(t *testing.T) {
	l := New()
	l.SetLogSink(SinkFunc(func(e Entry) error { return nil }))

	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			l.Log(CatError, LevelError, "x")
		}()
	}
	for i := 0; i < 10; i++ {
		l.SetLogSink(SinkFunc(func(e Entry) error { return nil }))
	}
	wg.Wait()
}
