package progress

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-webforge-api/pkg/metrics"
)

func collect(t *testing.T, sub Subscription, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed early")
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d/%d events", len(out), n)
		}
	}
	return out
}

func TestHub_PublishOrdering(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	topic := SessionTopic("s1")

	sub, err := hub.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindPhaseStarted, PhaseStartedPayload{Index: 1, Name: "interpret", Total: 6})))
	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindFileOperation, FileOperationPayload{Verb: "create", Path: "index.html"})))
	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindFileOperation, FileOperationPayload{Verb: "create", Path: "app.js"})))

	events := collect(t, sub, 3)
	assert.Equal(t, KindPhaseStarted, events[0].Kind)
	assert.Equal(t, KindFileOperation, events[1].Kind)
	assert.Equal(t, KindFileOperation, events[2].Kind)

	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq, "seq must be contiguous and monotonic")
	}

	p, err := DecodePayload[FileOperationPayload](events[2])
	require.NoError(t, err)
	assert.Equal(t, "app.js", p.Path)
}

func TestHub_ResubscribeGetsLastEvent(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	topic := SessionTopic("s2")

	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindPhaseStarted, PhaseStartedPayload{Index: 1, Name: "interpret", Total: 6})))
	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindPhaseStarted, PhaseStartedPayload{Index: 2, Name: "plan", Total: 6})))

	// 重连订阅者先收到最后一条事件（允许重复）
	sub, err := hub.Subscribe(ctx, topic)
	require.NoError(t, err)
	defer sub.Close()

	events := collect(t, sub, 1)
	assert.Equal(t, int64(2), events[0].Seq)
	p, err := DecodePayload[PhaseStartedPayload](events[0])
	require.NoError(t, err)
	assert.Equal(t, "plan", p.Name)

	// 之后继续按序收到新事件
	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindBuildOutput, BuildOutputPayload{Line: "ok", Stream: "stdout"})))
	events = collect(t, sub, 1)
	assert.Equal(t, int64(3), events[0].Seq)
}

func TestHub_CurrentState(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	topic := SessionTopic("s3")

	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindPhaseStarted, PhaseStartedPayload{Index: 4, Name: "features", Total: 6})))
	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindFileOperation, FileOperationPayload{Verb: "create", Path: "styles.css"})))
	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindFileOperation, FileOperationPayload{Verb: "update", Path: "styles.css"})))

	state, err := hub.CurrentState(ctx, topic)
	require.NoError(t, err)
	assert.Equal(t, 4, state.PhaseIndex)
	assert.Equal(t, "features", state.PhaseName)
	assert.Equal(t, 6, state.TotalPhases)
	assert.Equal(t, []string{"styles.css"}, state.Files, "duplicate paths collapse in state")
	assert.Equal(t, int64(3), state.LastSeq)
	assert.False(t, state.Done)

	require.NoError(t, hub.Publish(ctx, topic, NewEvent(KindCompletion, CompletionPayload{Success: true})))
	state, err = hub.CurrentState(ctx, topic)
	require.NoError(t, err)
	assert.True(t, state.Done)
}

func TestHub_IndependentTopics(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	subA, err := hub.Subscribe(ctx, SessionTopic("a"))
	require.NoError(t, err)
	defer subA.Close()

	require.NoError(t, hub.Publish(ctx, SessionTopic("b"), NewEvent(KindCompletion, CompletionPayload{Success: true})))

	select {
	case ev := <-subA.Events():
		t.Fatalf("unexpected cross-topic event: %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

// 订阅者人数由 SSE 出口计数，进程内扇出不碰该 gauge
func TestHub_SubscribeLeavesSubscriberGaugeAlone(t *testing.T) {
	hub := NewHub()
	before := testutil.ToFloat64(metrics.BroadcastSubscribers)

	sub, err := hub.Subscribe(context.Background(), SessionTopic("g1"))
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, before, testutil.ToFloat64(metrics.BroadcastSubscribers))
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe(context.Background(), SessionTopic("c"))
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
}
