package service

import (
	"context"
	"time"

	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/notify"
)

// Notifier 异步通知，失败不影响业务
type Notifier interface {
	Notify(eventType notify.EventType, key string, data interface{})
}

// ScheduleStore 预约存储
type ScheduleStore interface {
	Create(ctx context.Context, s *models.CheckupSchedule) error
	GetByID(ctx context.Context, id int64) (*models.CheckupSchedule, error)
	ListByChassis(ctx context.Context, chassisNumber string) ([]models.CheckupSchedule, error)
	UpdateState(ctx context.Context, id int64, from, to models.ScheduleState) error
	Reschedule(ctx context.Context, id int64, from models.ScheduleState, scheduledAt time.Time, consultantID int64) error
}

// CheckupStore 保养节点存储
type CheckupStore interface {
	GetByID(ctx context.Context, id int64) (*models.Checkup, error)
}

// TicketStore 工单存储
type TicketStore interface {
	Create(ctx context.Context, t *models.MaintenanceTicket) error
	GetByID(ctx context.Context, id int64) (*models.MaintenanceTicket, error)
	Update(ctx context.Context, t *models.MaintenanceTicket) error
}

// ServiceBayStore 工位预留存储
type ServiceBayStore interface {
	Book(ctx context.Context, s *models.ServiceBaySchedule) error
	Cancel(ctx context.Context, id int64) (*models.ServiceBaySchedule, error)
	HasConflict(ctx context.Context, bayID int64, start, end time.Time) (bool, error)
	GetBay(ctx context.Context, id int64) (*models.ServiceBay, error)
	ListByBay(ctx context.Context, bayID int64, activeOnly bool) ([]models.ServiceBaySchedule, error)
}

// OccurrenceStore 事件存储
type OccurrenceStore interface {
	CreateStepType(ctx context.Context, st *models.OccurrenceStepType) error
	Create(ctx context.Context, o *models.Occurrence) error
	ChangeStep(ctx context.Context, uuid, stepCode string, now time.Time) (bool, error)
	Finalize(ctx context.Context, uuid string, now time.Time) error
	GetByUUID(ctx context.Context, uuid string) (*models.Occurrence, error)
	ListOpen(ctx context.Context) ([]models.Occurrence, error)
}

// MetricsProvider 车辆实时读数
type MetricsProvider interface {
	GetMetrics(ctx context.Context, chassisNumber string) (*models.VehicleMetrics, error)
}

// RevisionProvider ODP 历史保养
type RevisionProvider interface {
	GetRevisions(ctx context.Context, chassisNumber string) ([]models.Revision, error)
}
