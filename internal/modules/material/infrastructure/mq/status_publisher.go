package mq

import (
	"context"
	"encoding/json"
	"time"

	"EduLink/pkg/zlog"

	"go.uber.org/zap"
)

// StatusEvent 资料状态变更事件（completed/failed 时投递）
type StatusEvent struct {
	MaterialId string `json:"material_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	At         int64  `json:"at"`
}

// StatusPublisher 状态事件发布器；底层 Publisher 为 nil 时静默关闭，
// 发布失败只记日志，不影响主流程
type StatusPublisher struct {
	pub   Publisher
	topic string
}

func NewStatusPublisher(pub Publisher, topic string) *StatusPublisher {
	return &StatusPublisher{pub: pub, topic: topic}
}

func (s *StatusPublisher) Publish(ctx context.Context, materialId, status, errMsg string) {
	if s == nil || s.pub == nil || s.topic == "" {
		return
	}
	ev := StatusEvent{
		MaterialId: materialId,
		Status:     status,
		Error:      errMsg,
		At:         time.Now().Unix(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if _, err := s.pub.Publish(ctx, Message{
		Topic: s.topic,
		Key:   []byte(materialId),
		Value: payload,
	}); err != nil {
		zlog.Warn("状态事件发布失败",
			zap.String("material_id", materialId),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}

func (s *StatusPublisher) Close() error {
	if s == nil || s.pub == nil {
		return nil
	}
	return s.pub.Close()
}
