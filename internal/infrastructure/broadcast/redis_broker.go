// Package broadcast 提供基于 Redis Pub/Sub 的进度广播实现
//
// 多实例部署时编排器与订阅端可能不在同一进程，事件经 Redis 通道
// 扇出；主题累计状态另存为键值，供断线重连的订阅者对齐。
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-webforge-api/internal/application/progress"
	"z-webforge-api/internal/infrastructure/persistence/redis"
	"z-webforge-api/pkg/logger"
	"z-webforge-api/pkg/metrics"
)

var tracer = otel.Tracer("broadcast")

const (
	channelPrefix = "progress:"
	seqPrefix     = "progress-seq:"
	statePrefix   = "progress-state:"

	// 会话结束后状态保留一段时间，晚到的订阅者仍能取到终态
	stateTTL = 2 * time.Hour

	subscriberBuffer = 256
)

// RedisBroker Redis Pub/Sub 进度广播器
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker 创建 Redis 广播器
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish 发布事件
// Seq 由 Redis INCR 分配；状态读改写安全，因为每个主题只有一个发布者。
func (b *RedisBroker) Publish(ctx context.Context, topic string, ev progress.Event) error {
	ctx, span := tracer.Start(ctx, "broadcast.Publish",
		trace.WithAttributes(
			attribute.String("broadcast.topic", topic),
			attribute.String("broadcast.kind", string(ev.Kind)),
		))
	defer span.End()

	rdb := b.client.Redis()

	seq, err := rdb.Incr(ctx, seqPrefix+topic).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to allocate event seq: %w", err)
	}
	ev.Seq = seq

	payload, err := json.Marshal(ev)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.updateState(ctx, topic, ev); err != nil {
		// 状态落后一拍可接受，订阅流本身不受影响
		logger.Warn(ctx, "update topic state failed", "topic", topic, "error", err.Error())
	}

	if err := rdb.Publish(ctx, channelPrefix+topic, payload).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	rdb.Expire(ctx, seqPrefix+topic, stateTTL)
	metrics.BroadcastEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

func (b *RedisBroker) updateState(ctx context.Context, topic string, ev progress.Event) error {
	rdb := b.client.Redis()

	state := &progress.TopicState{Topic: topic}
	raw, err := rdb.Get(ctx, statePrefix+topic).Bytes()
	if err == nil {
		if unmarshalErr := json.Unmarshal(raw, state); unmarshalErr != nil {
			state = &progress.TopicState{Topic: topic}
		}
	} else if err != goredis.Nil {
		return err
	}

	state.Apply(ev)

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, statePrefix+topic, data, stateTTL).Err()
}

// redisSubscription Redis 订阅
type redisSubscription struct {
	pubsub *goredis.PubSub
	ch     chan progress.Event
	cancel context.CancelFunc
	once   sync.Once
}

// Subscribe 订阅主题
// 若主题已有事件，先补发最后一条（重连场景允许重复）。
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (progress.Subscription, error) {
	pubsub := b.client.Redis().Subscribe(ctx, channelPrefix+topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe topic: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan progress.Event, subscriberBuffer),
		cancel: cancel,
	}

	// 订阅已建立后再补发最后一条事件，避免漏掉两者之间的事件
	if state, err := b.CurrentState(ctx, topic); err == nil && state.LastEvent != nil {
		sub.ch <- *state.LastEvent
	}

	go sub.pump(streamCtx)
	return sub, nil
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.ch)
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev progress.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case s.ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Events 实现 progress.Subscription
func (s *redisSubscription) Events() <-chan progress.Event {
	return s.ch
}

// Close 实现 progress.Subscription
func (s *redisSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.pubsub.Close()
	})
}

// CurrentState 获取主题累计状态
func (b *RedisBroker) CurrentState(ctx context.Context, topic string) (*progress.TopicState, error) {
	ctx, span := tracer.Start(ctx, "broadcast.CurrentState",
		trace.WithAttributes(attribute.String("broadcast.topic", topic)))
	defer span.End()

	raw, err := b.client.Redis().Get(ctx, statePrefix+topic).Bytes()
	if err == goredis.Nil {
		return &progress.TopicState{Topic: topic}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get topic state: %w", err)
	}

	var state progress.TopicState
	if err := json.Unmarshal(raw, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal topic state: %w", err)
	}
	return &state, nil
}
