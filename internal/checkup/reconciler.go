package checkup

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/fleetcare/internal/models"
	"go.uber.org/zap"
)

// 保养状态
const (
	StatusScheduled     = "SCHEDULED"
	StatusInMaintenance = "IN_MAINTENANCE"
	StatusLate          = "LATE"
	StatusNearDue       = "NEAR_DUE"
	StatusNotScheduled  = "NOT_SCHEDULED"
)

// CatalogStore 保养节点、零件与召回活动
type CatalogStore interface {
	FindCheckup(ctx context.Context, group models.MaintenanceGroup, rangeStart int64) (*models.Checkup, error)
	ListParts(ctx context.Context, checkupID int64) ([]models.CheckupPart, error)
	ListOpenCampaigns(ctx context.Context, chassisNumber string) ([]models.FieldCampaign, error)
}

// Range 当前适用的保养节点
type Range struct {
	Start int64 `json:"start"`
}

// Status 保养状态
type Status struct {
	Status       string     `json:"status"`
	ScheduleDate *time.Time `json:"scheduleDate,omitempty"`
}

// View 对外展示的保养视图
type View struct {
	Range       Range                  `json:"range"`
	Parts       []models.CheckupPart   `json:"parts"`
	MetricType  models.MetricType      `json:"metricType"`
	Status      Status                 `json:"status"`
	Previous    *Point                 `json:"previous,omitempty"`
	Next        *Point                 `json:"next,omitempty"`
	AfterNext   *Point                 `json:"afterNext,omitempty"`
	Late        bool                   `json:"late"`
	NearDue     bool                   `json:"nearDue"`
	HistoryOnly bool                   `json:"historyOnly"`
	Campaigns   []models.FieldCampaign `json:"campaigns"`
}

// Reconciler 合并预约、工单与召回活动数据
type Reconciler struct {
	engine  *Engine
	catalog CatalogStore
	logger  *zap.Logger
}

// NewReconciler 创建合并器
func NewReconciler(engine *Engine, catalog CatalogStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		engine:  engine,
		catalog: catalog,
		logger:  logger,
	}
}

// Reconcile 组装保养视图
func (r *Reconciler) Reconcile(ctx context.Context, params models.VehicleParams, schedules []models.CheckupSchedule, latestRevision int64) (*View, error) {
	result := r.engine.Check(ctx, params, schedules, latestRevision)

	view := &View{
		MetricType:  result.MetricType,
		Previous:    result.Previous,
		Next:        result.Next,
		AfterNext:   result.AfterNext,
		HistoryOnly: result.HistoryOnly,
		Parts:       []models.CheckupPart{},
		Campaigns:   []models.FieldCampaign{},
	}

	if !result.HistoryOnly {
		view.Late = r.engine.isLate(result.Value, result.Interval, lastFinished(relevant(schedules)))
		if result.Next != nil {
			view.NearDue = r.engine.IsNearDue(result.Value, result.Next.RangeStart, result.MetricType)
		}
	}

	view.Range.Start = r.rangeStart(result)
	view.Status = status(view)

	if view.Range.Start > 0 && params.MaintenanceGroup.Valid() {
		checkup, err := r.catalog.FindCheckup(ctx, params.MaintenanceGroup, view.Range.Start)
		if err != nil {
			return nil, fmt.Errorf("find checkup: %w", err)
		}
		if checkup != nil {
			parts, err := r.catalog.ListParts(ctx, checkup.ID)
			if err != nil {
				return nil, fmt.Errorf("list parts: %w", err)
			}
			view.Parts = parts
		} else {
			r.logger.Debug("No checkup catalog entry",
				zap.String("group", string(params.MaintenanceGroup)),
				zap.Int64("range_start", view.Range.Start))
		}
	}

	campaigns, err := r.catalog.ListOpenCampaigns(ctx, params.Chassis)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	view.Campaigns = campaigns

	return view, nil
}

// rangeStart 容差窗口内的节点优先，已完成的节点除外
func (r *Reconciler) rangeStart(result Result) int64 {
	var next int64
	if result.Next != nil {
		next = result.Next.RangeStart
	}
	if result.HistoryOnly || result.Interval <= 0 {
		return next
	}

	start, ok := r.engine.withRange(result.Value, result.Interval)
	if !ok {
		return next
	}
	if result.Previous != nil && result.Previous.Finished && result.Previous.RangeStart == start {
		return next
	}
	return start
}

func status(view *View) Status {
	if next := view.Next; next != nil && next.Schedule != nil && !next.Finished {
		date := next.Schedule.ScheduledAt
		if next.Schedule.Maintenance.Status != nil {
			return Status{Status: StatusInMaintenance, ScheduleDate: &date}
		}
		return Status{Status: StatusScheduled, ScheduleDate: &date}
	}
	switch {
	case view.Late:
		return Status{Status: StatusLate}
	case view.NearDue:
		return Status{Status: StatusNearDue}
	}
	return Status{Status: StatusNotScheduled}
}
