// Package progress 定义生成进度的广播契约
package progress

import (
	"context"
	"time"
)

// TopicState 主题的累计状态快照
// 断线重连的订阅者先取快照对齐，再消费后续事件。
type TopicState struct {
	Topic       string    `json:"topic"`
	PhaseIndex  int       `json:"phase_index"`
	PhaseName   string    `json:"phase_name,omitempty"`
	TotalPhases int       `json:"total_phases,omitempty"`
	Files       []string  `json:"files,omitempty"`
	LastSeq     int64     `json:"last_seq"`
	LastEvent   *Event    `json:"last_event,omitempty"`
	Done        bool      `json:"done"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Apply 将事件并入累计状态
func (s *TopicState) Apply(ev Event) {
	s.LastSeq = ev.Seq
	s.LastEvent = &ev
	s.UpdatedAt = ev.Timestamp

	switch ev.Kind {
	case KindPhaseStarted:
		if p, err := DecodePayload[PhaseStartedPayload](ev); err == nil {
			s.PhaseIndex = p.Index
			s.PhaseName = p.Name
			s.TotalPhases = p.Total
		}
	case KindFileOperation:
		if p, err := DecodePayload[FileOperationPayload](ev); err == nil {
			for _, f := range s.Files {
				if f == p.Path {
					return
				}
			}
			s.Files = append(s.Files, p.Path)
		}
	case KindError, KindCompletion:
		s.Done = true
	}
}

// Subscription 主题订阅
type Subscription interface {
	// Events 事件通道，Close 后关闭
	Events() <-chan Event
	// Close 退订并释放资源
	Close()
}

// Broker 进度广播器
// 投递语义：至少一次、单主题内有序；重连后可能重复收到最后一条事件。
type Broker interface {
	// Publish 向主题发布事件，由 Broker 分配单调 Seq
	Publish(ctx context.Context, topic string, ev Event) error

	// Subscribe 订阅主题
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// CurrentState 获取主题累计状态快照
	CurrentState(ctx context.Context, topic string) (*TopicState, error)
}
