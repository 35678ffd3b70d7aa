// Package progress 定义生成进度的广播契约
package progress

import (
	"context"
	"sync"

	"z-webforge-api/pkg/metrics"
)

// 订阅通道缓冲；写满时丢弃最旧事件，订阅方靠 Seq 与状态快照对齐
const subscriberBuffer = 256

// Hub 进程内广播器
// 单机部署时直接作为 Broker 使用，多实例部署时作为 Redis 广播器的本地扇出层。
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*hubTopic
}

type hubTopic struct {
	mu    sync.Mutex
	seq   int64
	state TopicState
	subs  map[*hubSubscription]struct{}
}

type hubSubscription struct {
	topic *hubTopic
	ch    chan Event
	once  sync.Once
}

// NewHub 创建进程内广播器
func NewHub() *Hub {
	return &Hub{topics: make(map[string]*hubTopic)}
}

func (h *Hub) topic(name string) *hubTopic {
	h.mu.RLock()
	t, ok := h.topics[name]
	h.mu.RUnlock()
	if ok {
		return t
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok = h.topics[name]; ok {
		return t
	}
	t = &hubTopic{
		state: TopicState{Topic: name},
		subs:  make(map[*hubSubscription]struct{}),
	}
	h.topics[name] = t
	return t
}

// Publish 发布事件并同步更新主题累计状态
func (h *Hub) Publish(_ context.Context, topic string, ev Event) error {
	t := h.topic(topic)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	ev.Seq = t.seq
	t.state.Apply(ev)

	for sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			// 慢订阅者：丢最旧一条，保证最新事件总能进入通道
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}

	metrics.BroadcastEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

// Subscribe 订阅主题
// 若主题已有事件，先投递最后一条（重连场景允许重复）。
func (h *Hub) Subscribe(_ context.Context, topic string) (Subscription, error) {
	t := h.topic(topic)

	sub := &hubSubscription{
		topic: t,
		ch:    make(chan Event, subscriberBuffer),
	}

	t.mu.Lock()
	if t.state.LastEvent != nil {
		sub.ch <- *t.state.LastEvent
	}
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	return sub, nil
}

// CurrentState 返回主题累计状态快照的副本
func (h *Hub) CurrentState(_ context.Context, topic string) (*TopicState, error) {
	t := h.topic(topic)

	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.state
	snapshot.Files = append([]string(nil), t.state.Files...)
	if t.state.LastEvent != nil {
		ev := *t.state.LastEvent
		snapshot.LastEvent = &ev
	}
	return &snapshot, nil
}

// Events 实现 Subscription
func (s *hubSubscription) Events() <-chan Event {
	return s.ch
}

// Close 实现 Subscription
func (s *hubSubscription) Close() {
	s.once.Do(func() {
		s.topic.mu.Lock()
		delete(s.topic.subs, s)
		s.topic.mu.Unlock()
		close(s.ch)
	})
}
