package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventType 通知事件类型
type EventType string

const (
	ScheduleCreated     EventType = "schedule.created"
	ScheduleAccepted    EventType = "schedule.accepted"
	ScheduleCancelled   EventType = "schedule.cancelled"
	ScheduleRescheduled EventType = "schedule.rescheduled"
	TicketStepChanged   EventType = "ticket.step_changed"
	TicketFinished      EventType = "ticket.finished"
	BayBooked           EventType = "service_bay.booked"
	BayCancelled        EventType = "service_bay.cancelled"
	OccurrenceAlert     EventType = "occurrence.alert"
)

// Event 通知事件
type Event struct {
	Type EventType   `json:"type"`
	Key  string      `json:"key"`
	Data interface{} `json:"data,omitempty"`
	At   time.Time   `json:"at"`
}

// Publisher 事件发布通道
type Publisher interface {
	Name() string
	Publish(ctx context.Context, e Event) error
}

// Dispatcher 异步分发事件到所有通道，发送失败只记日志
type Dispatcher struct {
	logger     *zap.Logger
	publishers []Publisher
	queue      chan Event
	timeout    time.Duration
}

// NewDispatcher 创建分发器
func NewDispatcher(logger *zap.Logger, publishers ...Publisher) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		publishers: publishers,
		queue:      make(chan Event, 256),
		timeout:    5 * time.Second,
	}
}

// Notify 投递事件，队列满时丢弃
func (d *Dispatcher) Notify(eventType EventType, key string, data interface{}) {
	e := Event{Type: eventType, Key: key, Data: data, At: time.Now().UTC()}
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("Notification queue full, dropping event",
			zap.String("type", string(eventType)),
			zap.String("key", key))
	}
}

// Run 消费队列直到 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.queue:
			d.dispatch(ctx, e)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e Event) {
	for _, p := range d.publishers {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := p.Publish(pctx, e)
		cancel()
		if err != nil {
			d.logger.Warn("Failed to publish notification",
				zap.String("publisher", p.Name()),
				zap.String("type", string(e.Type)),
				zap.String("key", e.Key),
				zap.Error(err))
		}
	}
}
