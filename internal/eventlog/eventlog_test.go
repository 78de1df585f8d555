package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvent struct {
	ts   float64
	kind string
	tag  string
}

func (e stubEvent) EventTime() float64 { return e.ts }
func (e stubEvent) EventKind() string  { return e.kind }

func TestLog_FinalizeSortsByTimestamp(t *testing.T) {
	log := New()
	for _, ts := range []float64{3, 1, 2} {
		require.NoError(t, log.Append(stubEvent{ts: ts, kind: "cue"}))
	}

	tl := log.Finalize()
	require.Equal(t, 3, tl.Len())

	var got []float64
	for _, ev := range tl.Events() {
		got = append(got, ev.EventTime())
	}
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestLog_StableOnEqualTimestamps(t *testing.T) {
	log := New()
	require.NoError(t, log.Append(stubEvent{ts: 5, kind: "gaze", tag: "first"}))
	require.NoError(t, log.Append(stubEvent{ts: 5, kind: "gaze", tag: "second"}))

	events := log.Finalize().Events()
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].(stubEvent).tag)
	assert.Equal(t, "second", events[1].(stubEvent).tag)
}

func TestLog_AppendAfterFinalizeFails(t *testing.T) {
	log := New()
	require.NoError(t, log.Append(stubEvent{ts: 1}))
	log.Finalize()

	err := log.Append(stubEvent{ts: 2})
	assert.ErrorIs(t, err, ErrClosedLog)
}

func TestLog_FinalizeIdempotent(t *testing.T) {
	log := New()
	require.NoError(t, log.Append(stubEvent{ts: 2}))
	require.NoError(t, log.Append(stubEvent{ts: 1}))

	first := log.Finalize()
	second := log.Finalize()
	assert.Same(t, first, second)
}

func TestTimeline_ByKind(t *testing.T) {
	log := New()
	require.NoError(t, log.Append(stubEvent{ts: 1, kind: "cue"}))
	require.NoError(t, log.Append(stubEvent{ts: 2, kind: "gaze"}))
	require.NoError(t, log.Append(stubEvent{ts: 3, kind: "gaze"}))

	tl := log.Finalize()
	assert.Len(t, tl.ByKind("gaze"), 2)
	assert.Len(t, tl.ByKind("cue"), 1)
	assert.Empty(t, tl.ByKind("landmark"))
}

func TestTimeline_EventsReturnsCopy(t *testing.T) {
	log := New()
	require.NoError(t, log.Append(stubEvent{ts: 1, kind: "cue"}))
	tl := log.Finalize()

	events := tl.Events()
	events[0] = stubEvent{ts: 99, kind: "mutated"}
	assert.Equal(t, float64(1), tl.Events()[0].EventTime())
}
