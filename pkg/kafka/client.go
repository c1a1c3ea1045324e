// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"robo-chat-go/internal/config"
	"robo-chat-go/internal/model"
	"robo-chat-go/pkg/log"
	"robo-chat-go/pkg/metrics"
)

// MessageWriter 是 kafka.Writer 中发布器用到的部分。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TurnPublisher 把每条被接受的对话轮次发布到 Kafka。
// 它实现 session.TurnObserver，发布失败只记录日志。
type TurnPublisher struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewWriter 创建异步 Kafka 生产者。以会话 ID 为 key 做哈希分区，保证同一会话的事件有序。
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	brokers := strings.Split(cfg.Brokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				metrics.TurnEventsPublished.WithLabelValues("error").Add(float64(len(messages)))
				log.Errorf("发布对话事件失败: %d 条, %v", len(messages), err)
			}
		},
	}
	log.Infow("Kafka 生产者初始化成功", "brokers", brokers, "topic", cfg.Topic)
	return w
}

// NewTurnPublisher 包装一个消息写入器。
func NewTurnPublisher(writer MessageWriter) *TurnPublisher {
	return &TurnPublisher{writer: writer, timeout: 5 * time.Second}
}

// ObserveTurn 序列化事件并交给写入器。
func (p *TurnPublisher) ObserveTurn(event model.TurnEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		log.Error("无法序列化对话事件", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: value,
		Time:  event.Timestamp,
	})
	if err != nil {
		metrics.TurnEventsPublished.WithLabelValues("error").Inc()
		log.Warnw("发布对话事件失败", "session_id", event.SessionID, "error", err)
		return
	}
	metrics.TurnEventsPublished.WithLabelValues("queued").Inc()
}

// Close 刷新并关闭写入器。
func (p *TurnPublisher) Close() error {
	return p.writer.Close()
}
