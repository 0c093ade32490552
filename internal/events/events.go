// Package events 发布版本生命周期事件。
//
// 启用 Kafka 时使用 KafkaPublisher（segmentio/kafka-go），否则使用 NopPublisher。
// 发布失败只记录日志，不影响同步结果。
package events

import (
	"context"
	"encoding/json"
	"time"
)

// 事件类型
const (
	TypeVersionActivated = "version.activated"
	TypeVersionFailed    = "version.failed"
)

// Event 版本生命周期事件
type Event struct {
	Type       string         `json:"type"`
	VersionID  string         `json:"version_id"`
	EntityCode string         `json:"entity_code"`
	DataType   string         `json:"data_type"`
	ChunkCount int            `json:"chunk_count,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Key 分区键，同一 (code, data_type) 的事件保持顺序
func (e Event) Key() string {
	return e.EntityCode + ":" + e.DataType
}

// JSON 序列化
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher 事件发布者
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

// Publish 实现 Publisher
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher
func (NopPublisher) Close() error { return nil }
