package notify

import (
	"log/slog"
	"sync"
	"time"

	"Dominix-Chain/pkg/logger"
)

// Kind 表示通知消息的类别。
type Kind string

// 支持的通知类别
const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Message 描述一条发往用户界面的单向通知。
type Message struct {
	Kind       Kind      `json:"kind"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink 接收通知消息。调用是即发即弃的，实现不得阻塞调用方。
type Sink interface {
	Notify(msg Message)
}

// FanoutSink 将消息广播给多个下游 Sink。
type FanoutSink struct {
	sinks []Sink
}

// NewFanout 创建一个新的 FanoutSink。
func NewFanout(sinks ...Sink) *FanoutSink {
	set := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			set = append(set, s)
		}
	}
	return &FanoutSink{sinks: set}
}

// Notify 将消息广播至所有注册的下游。
func (f *FanoutSink) Notify(msg Message) {
	if f == nil {
		return
	}
	for _, s := range f.sinks {
		s.Notify(msg)
	}
}

// LogSink 把通知写入结构化日志。
type LogSink struct{}

// Notify 按类别选择日志级别。
func (LogSink) Notify(msg Message) {
	log := logger.Named("notify")
	switch msg.Kind {
	case KindError:
		log.Error(msg.Text)
	case KindSuccess:
		log.Info(msg.Text, slog.String("kind", string(KindSuccess)))
	default:
		log.Info(msg.Text)
	}
}

// FeedSink 在内存中保留最近的通知，供 API 层拉取展示。
// 超出容量时丢弃最旧的消息。
type FeedSink struct {
	mu       sync.Mutex
	capacity int
	messages []Message
}

// NewFeed 创建一个容量受限的通知缓冲。
func NewFeed(capacity int) *FeedSink {
	if capacity <= 0 {
		capacity = 64
	}
	return &FeedSink{capacity: capacity}
}

// Notify 追加一条消息。
func (f *FeedSink) Notify(msg Message) {
	if f == nil {
		return
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	if len(f.messages) > f.capacity {
		f.messages = f.messages[len(f.messages)-f.capacity:]
	}
}

// Recent 返回最近的通知拷贝，最新的在末尾。
func (f *FeedSink) Recent(limit int) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.messages) {
		limit = len(f.messages)
	}
	out := make([]Message, limit)
	copy(out, f.messages[len(f.messages)-limit:])
	return out
}

// Success 是构造成功消息的便捷方法。
func Success(text string) Message { return Message{Kind: KindSuccess, Text: text, OccurredAt: time.Now()} }

// Error 是构造错误消息的便捷方法。
func Error(text string) Message { return Message{Kind: KindError, Text: text, OccurredAt: time.Now()} }

// Info 是构造提示消息的便捷方法。
func Info(text string) Message { return Message{Kind: KindInfo, Text: text, OccurredAt: time.Now()} }
