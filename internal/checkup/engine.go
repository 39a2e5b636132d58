package checkup

import (
	"context"
	"sort"

	"github.com/langchou/fleetcare/internal/models"
	"go.uber.org/zap"
)

// IntervalSource 解析保养间隔
type IntervalSource interface {
	Resolve(ctx context.Context, chassisNumber string, group models.MaintenanceGroup) (int64, bool)
}

// Point 一个保养节点：已有预约或按间隔推算
type Point struct {
	RangeStart int64                   `json:"range_start"`
	Schedule   *models.CheckupSchedule `json:"schedule,omitempty"` // 推算节点为 nil
	Finished   bool                    `json:"finished"`
}

// Synthesized 是否为推算节点
func (p *Point) Synthesized() bool {
	return p.Schedule == nil
}

// Result 下次保养计算结果
type Result struct {
	Previous    *Point            `json:"previous,omitempty"`
	Next        *Point            `json:"next,omitempty"`
	AfterNext   *Point            `json:"after_next,omitempty"`
	Interval    int64             `json:"interval"`
	Value       int64             `json:"value"`
	HasValue    bool              `json:"has_value"`
	MetricType  models.MetricType `json:"metric_type"`
	HistoryOnly bool              `json:"history_only"`
}

// Engine 保养节点计算
type Engine struct {
	intervals IntervalSource
	cfg       Config
	logger    *zap.Logger
}

// NewEngine 创建计算引擎
func NewEngine(intervals IntervalSource, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		intervals: intervals,
		cfg:       cfg,
		logger:    logger,
	}
}

// NextCheckup 向上取整到间隔的整数倍
func NextCheckup(value, interval int64) int64 {
	if interval <= 0 {
		return 0
	}
	n := value / interval
	if value%interval != 0 && value > 0 {
		n++
	}
	return n * interval
}

// RangeCurrentOrNext 已完成节点之后的下一个节点
// 计算值不超过已完成节点时前进一个间隔
func RangeCurrentOrNext(finishedStart, value, interval int64) int64 {
	n := NextCheckup(value, interval)
	if n <= finishedStart {
		return finishedStart + interval
	}
	return n
}

// metric 当前读数与历史保养读数取较大值
func metric(params models.VehicleParams, latestRevision int64) (int64, bool) {
	live, ok := params.Metrics.Value(params.MaintenanceGroup)
	if !ok && latestRevision <= 0 {
		return 0, false
	}
	if latestRevision > live {
		return latestRevision, true
	}
	return live, true
}

// relevant 过滤掉已拒绝和未关联保养节点的预约，按节点降序
func relevant(schedules []models.CheckupSchedule) []models.CheckupSchedule {
	out := make([]models.CheckupSchedule, 0, len(schedules))
	for _, s := range schedules {
		if s.State == models.ScheduleRejected || s.Checkup == nil {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Checkup.RangeStart != out[j].Checkup.RangeStart {
			return out[i].Checkup.RangeStart > out[j].Checkup.RangeStart
		}
		return out[i].ScheduledAt.After(out[j].ScheduledAt)
	})
	return out
}

func pointOf(s *models.CheckupSchedule) *Point {
	return &Point{
		RangeStart: s.Checkup.RangeStart,
		Schedule:   s,
		Finished:   s.IsFinished(),
	}
}

// lastFinished 最近一次已完成的保养
func lastFinished(sorted []models.CheckupSchedule) *models.CheckupSchedule {
	for i := range sorted {
		if sorted[i].IsFinished() {
			return &sorted[i]
		}
	}
	return nil
}

// Check 计算上一次、下一次、下下次保养
func (e *Engine) Check(ctx context.Context, params models.VehicleParams, schedules []models.CheckupSchedule, latestRevision int64) Result {
	sorted := relevant(schedules)
	result := Result{MetricType: params.MaintenanceGroup.MetricType()}

	var interval int64
	var ok bool
	if params.MaintenanceGroup.Valid() {
		interval, ok = e.intervals.Resolve(ctx, params.Chassis, params.MaintenanceGroup)
	}
	value, hasValue := metric(params, latestRevision)
	result.Interval = interval
	result.Value = value
	result.HasValue = hasValue

	if !ok || !hasValue {
		e.logger.Debug("Falling back to history-only checkup",
			zap.String("chassis", params.Chassis),
			zap.Bool("interval", ok),
			zap.Bool("metric", hasValue))
		e.checkPreviousAndNext(&result, sorted)
		if ok && result.Next != nil {
			result.AfterNext = &Point{RangeStart: result.Next.RangeStart + interval}
		}
		return result
	}

	n := NextCheckup(value, interval)
	if n == 0 {
		n = interval
	}

	switch {
	case len(sorted) == 0:
		result.Next = &Point{RangeStart: n}
	case sorted[0].IsFinished():
		result.Previous = pointOf(&sorted[0])
		result.Next = &Point{RangeStart: RangeCurrentOrNext(sorted[0].Checkup.RangeStart, value, interval)}
	default:
		result.Next = pointOf(&sorted[0])
		if len(sorted) > 1 {
			result.Previous = pointOf(&sorted[1])
		}
	}

	result.AfterNext = &Point{RangeStart: result.Next.RangeStart + interval}
	return result
}

// checkPreviousAndNext 仅根据预约历史确定上一次/下一次
func (e *Engine) checkPreviousAndNext(result *Result, sorted []models.CheckupSchedule) {
	result.HistoryOnly = true
	if len(sorted) == 0 {
		return
	}
	if sorted[0].IsFinished() {
		result.Previous = pointOf(&sorted[0])
		return
	}
	result.Next = pointOf(&sorted[0])
	if len(sorted) > 1 {
		result.Previous = pointOf(&sorted[1])
	}
}

// IsLate 当前读数处于 (next-interval, next-LateThreshold) 之间即逾期
// 上一个窗口已经完成保养时不算逾期
func (e *Engine) IsLate(ctx context.Context, params models.VehicleParams, schedules []models.CheckupSchedule, latestRevision int64) bool {
	if !params.MaintenanceGroup.Valid() {
		return false
	}
	interval, ok := e.intervals.Resolve(ctx, params.Chassis, params.MaintenanceGroup)
	if !ok {
		return false
	}
	value, ok := metric(params, latestRevision)
	if !ok {
		return false
	}
	return e.isLate(value, interval, lastFinished(relevant(schedules)))
}

func (e *Engine) isLate(value, interval int64, finished *models.CheckupSchedule) bool {
	n := NextCheckup(value, interval)
	previous := n - interval
	if finished != nil && finished.Checkup.RangeStart == previous {
		return false
	}
	return previous < value && value < n-e.cfg.LateThreshold
}

// NextCheckupWithRange 读数处于当前节点容差窗口内返回当前节点，否则返回下一节点
// 节点为 0 时视为没有
func (e *Engine) NextCheckupWithRange(ctx context.Context, params models.VehicleParams, latestRevision int64) (int64, bool) {
	if !params.MaintenanceGroup.Valid() {
		return 0, false
	}
	interval, ok := e.intervals.Resolve(ctx, params.Chassis, params.MaintenanceGroup)
	if !ok {
		return 0, false
	}
	value, ok := metric(params, latestRevision)
	if !ok {
		return 0, false
	}
	return e.withRange(value, interval)
}

// withRange 非负读数总落在 [current, current+interval) 内，
// 因此只有负读数或节点为 0 时返回 false
func (e *Engine) withRange(value, interval int64) (int64, bool) {
	if value < 0 {
		return 0, false
	}
	start := (value / interval) * interval
	if value-start > e.cfg.RangeWindow {
		start += interval
	}
	if start == 0 {
		return 0, false
	}
	return start, true
}

// IsNearDue 剩余量在阈值之内
func (e *Engine) IsNearDue(value, next int64, metricType models.MetricType) bool {
	left := e.cfg.LeftKmForCheckup
	if metricType == models.MetricHours {
		left = e.cfg.LeftHoursForCheckup
	}
	remaining := next - value
	return remaining >= 0 && remaining <= left
}
