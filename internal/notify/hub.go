package notify

import (
	"context"

	"github.com/langchou/fleetcare/pkg/ws"
)

// broadcaster ws.Hub 的广播能力
type broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// HubPublisher 推送到 WebSocket 客户端
type HubPublisher struct {
	hub broadcaster
}

// NewHubPublisher 创建 WebSocket 通道
func NewHubPublisher(hub *ws.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Name 通道名称
func (p *HubPublisher) Name() string {
	return "websocket"
}

// Publish 广播事件
func (p *HubPublisher) Publish(_ context.Context, e Event) error {
	p.hub.BroadcastMessage(ws.MsgTypeEvent, e)
	return nil
}
