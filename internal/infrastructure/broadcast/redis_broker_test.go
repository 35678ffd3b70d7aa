package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-webforge-api/internal/application/progress"
	redisinfra "z-webforge-api/internal/infrastructure/persistence/redis"
)

func newTestBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisBroker(redisinfra.NewClientFromRedis(rdb))
}

func receive(t *testing.T, sub progress.Subscription) progress.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return progress.Event{}
	}
}

func TestRedisBroker_PublishAssignsMonotonicSeq(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()
	topic := progress.SessionTopic("s1")

	sub, err := broker.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer sub.Close()

	for i := 1; i <= 3; i++ {
		ev := progress.NewEvent(progress.KindPhaseStarted, progress.PhaseStartedPayload{
			Index: i, Name: "interpret", Total: 6,
		})
		require.NoError(t, broker.Publish(ctx, topic, ev))
	}

	var last int64
	for i := 0; i < 3; i++ {
		ev := receive(t, sub)
		assert.Greater(t, ev.Seq, last)
		last = ev.Seq
	}
	assert.Equal(t, int64(3), last)
}

func TestRedisBroker_CurrentStateAccumulates(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()
	topic := progress.SessionTopic("s1")

	require.NoError(t, broker.Publish(ctx, topic, progress.NewEvent(progress.KindPhaseStarted,
		progress.PhaseStartedPayload{Index: 4, Name: "features", Total: 6})))
	require.NoError(t, broker.Publish(ctx, topic, progress.NewEvent(progress.KindFileOperation,
		progress.FileOperationPayload{Verb: "create", Path: "app.js"})))

	state, err := broker.CurrentState(ctx, topic)
	require.NoError(t, err)
	assert.Equal(t, 4, state.PhaseIndex)
	assert.Equal(t, "features", state.PhaseName)
	assert.Contains(t, state.Files, "app.js")
	assert.Equal(t, int64(2), state.LastSeq)
	assert.False(t, state.Done)
}

func TestRedisBroker_CurrentStateUnknownTopic(t *testing.T) {
	broker := newTestBroker(t)

	state, err := broker.CurrentState(context.Background(), progress.SessionTopic("nope"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastSeq)
	assert.Nil(t, state.LastEvent)
}

func TestRedisBroker_SubscribeReplaysLastEvent(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()
	topic := progress.SessionTopic("s1")

	require.NoError(t, broker.Publish(ctx, topic, progress.NewEvent(progress.KindBuildOutput,
		progress.BuildOutputPayload{Line: "bundling", Stream: "stdout"})))

	// 迟到的订阅者先收到最后一条已发布事件
	sub, err := broker.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer sub.Close()

	ev := receive(t, sub)
	assert.Equal(t, progress.KindBuildOutput, ev.Kind)
	assert.Equal(t, int64(1), ev.Seq)
}

func TestRedisBroker_IndependentTopics(t *testing.T) {
	broker := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.Publish(ctx, progress.SessionTopic("a"),
		progress.NewEvent(progress.KindPhaseStarted, progress.PhaseStartedPayload{Index: 1, Name: "interpret", Total: 6})))

	state, err := broker.CurrentState(ctx, progress.SessionTopic("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastSeq)
}

func TestRedisBroker_CloseIsIdempotent(t *testing.T) {
	broker := newTestBroker(t)

	sub, err := broker.Subscribe(context.Background(), progress.SessionTopic("s1"))
	require.NoError(t, err)

	sub.Close()
	sub.Close()
}
