package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/moe-roll/rollreturn/pkg/logger"
)

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(logger.New(logger.Options{Core: core}))

	assert.NoError(t, sink.Record(context.Background(), "generated 123M15 v1"))
	entries := logs.FilterMessage("audit").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "generated 123M15 v1", entries[0].ContextMap()["action"])
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	var got []string
	ok := SinkFunc(func(_ context.Context, a string) error { got = append(got, a); return nil })
	bad := SinkFunc(func(context.Context, string) error { return errors.New("down") })

	err := Multi{ok, bad, ok}.Record(context.Background(), "x")
	assert.EqualError(t, err, "down")
	assert.Equal(t, []string{"x", "x"}, got)
}

func TestBounded_StopsWaitingAfterTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// ignores its context, like a driver stuck on a dead connection
	stuck := SinkFunc(func(context.Context, string) error { <-release; return nil })

	start := time.Now()
	err := NewBounded(stuck, 20*time.Millisecond).Record(context.Background(), "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBounded_PassesThrough(t *testing.T) {
	var deadline bool
	sink := SinkFunc(func(ctx context.Context, a string) error {
		_, deadline = ctx.Deadline()
		return errors.New("down: " + a)
	})

	assert.EqualError(t, NewBounded(sink, time.Second).Record(context.Background(), "x"), "down: x")
	assert.True(t, deadline)

	assert.EqualError(t, NewBounded(sink, 0).Record(context.Background(), "y"), "down: y")
	assert.False(t, deadline)
}
