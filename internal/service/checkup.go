package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleetcare/internal/apperr"
	"github.com/langchou/fleetcare/internal/chassis"
	"github.com/langchou/fleetcare/internal/checkup"
	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/notify"
	"github.com/langchou/fleetcare/internal/repository"
)

// CreateScheduleInput 创建预约参数
type CreateScheduleInput struct {
	VehicleID       string
	Chassis         string
	DealershipCode  string
	ConsultantID    int64
	CheckupID       *int64
	CampaignNumbers []string
	ScheduledAt     time.Time
}

// CheckupService 保养预约与保养视图
type CheckupService struct {
	logger      *zap.Logger
	schedules   ScheduleStore
	checkups    CheckupStore
	reconciler  *checkup.Reconciler
	metrics     MetricsProvider
	revisions   RevisionProvider
	notifier    Notifier
	callTimeout time.Duration
}

// NewCheckupService 创建保养服务
func NewCheckupService(
	logger *zap.Logger,
	schedules ScheduleStore,
	checkups CheckupStore,
	reconciler *checkup.Reconciler,
	metrics MetricsProvider,
	revisions RevisionProvider,
	notifier Notifier,
	callTimeout time.Duration,
) *CheckupService {
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &CheckupService{
		logger:      logger,
		schedules:   schedules,
		checkups:    checkups,
		reconciler:  reconciler,
		metrics:     metrics,
		revisions:   revisions,
		notifier:    notifier,
		callTimeout: callTimeout,
	}
}

// CreateSchedule 创建预约
// 必须指定保养节点或至少一个召回活动；同一车辆同类型的未来预约只能有一个
func (s *CheckupService) CreateSchedule(ctx context.Context, in CreateScheduleInput) (*models.CheckupSchedule, error) {
	var missing []string
	if in.VehicleID == "" {
		missing = append(missing, "vehicleId")
	}
	if in.Chassis == "" {
		missing = append(missing, "chassis")
	}
	if in.DealershipCode == "" {
		missing = append(missing, "dealershipCode")
	}
	if in.ConsultantID == 0 {
		missing = append(missing, "consultantId")
	}
	if in.ScheduledAt.IsZero() {
		missing = append(missing, "scheduledAt")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing)
	}
	if in.CheckupID == nil && len(in.CampaignNumbers) == 0 {
		return nil, apperr.New(apperr.CodeCheckupOrCampaignRequired, "a checkup or at least one field campaign is required")
	}

	schedule := &models.CheckupSchedule{
		VehicleID:       in.VehicleID,
		Chassis:         chassis.Normalize(in.Chassis),
		DealershipCode:  in.DealershipCode,
		ConsultantID:    in.ConsultantID,
		CheckupID:       in.CheckupID,
		CampaignNumbers: in.CampaignNumbers,
		Type:            models.ScheduleTypeCampaign,
		HasCampaigns:    len(in.CampaignNumbers) > 0,
		State:           models.SchedulePending,
		ScheduledAt:     in.ScheduledAt,
	}

	if in.CheckupID != nil {
		c, err := s.checkups.GetByID(ctx, *in.CheckupID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("checkup", *in.CheckupID)
		}
		if err != nil {
			return nil, err
		}
		schedule.Checkup = c
		schedule.Type = models.ScheduleTypeCheckup
	}

	err := s.schedules.Create(ctx, schedule)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.New(apperr.CodeCheckupAlreadyScheduled,
			"vehicle %s already has a %s schedule in the future", schedule.Chassis, schedule.Type)
	}
	if err != nil {
		s.logger.Error("Failed to create schedule", zap.String("chassis", schedule.Chassis), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Schedule created",
		zap.Int64("schedule_id", schedule.ID),
		zap.String("chassis", schedule.Chassis),
		zap.String("type", string(schedule.Type)))
	s.notifier.Notify(notify.ScheduleCreated, strconv.FormatInt(schedule.ID, 10), schedule)
	return schedule, nil
}

// Get 获取预约
func (s *CheckupService) Get(ctx context.Context, id int64) (*models.CheckupSchedule, error) {
	schedule, err := s.schedules.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNoCheckupScheduleFound, "checkup schedule %d not found", id)
	}
	return schedule, err
}

// ListByChassis 车辆的预约列表
func (s *CheckupService) ListByChassis(ctx context.Context, chassisNumber string) ([]models.CheckupSchedule, error) {
	if chassisNumber == "" {
		return nil, apperr.MissingFields([]string{"chassis"})
	}
	return s.schedules.ListByChassis(ctx, chassis.Normalize(chassisNumber))
}

// Accept 确认预约，仅 PENDING 可确认
func (s *CheckupService) Accept(ctx context.Context, id int64) (*models.CheckupSchedule, error) {
	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.State != models.SchedulePending {
		return nil, apperr.New(apperr.CodeInvalidScheduleState, "schedule %d is %s, only PENDING can be accepted", id, schedule.State)
	}
	if err := s.transition(ctx, schedule, models.ScheduleAccepted); err != nil {
		return nil, err
	}
	s.notifier.Notify(notify.ScheduleAccepted, strconv.FormatInt(id, 10), schedule)
	return schedule, nil
}

// Reject 拒绝或取消预约（不物理删除）
func (s *CheckupService) Reject(ctx context.Context, id int64) (*models.CheckupSchedule, error) {
	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.State == models.ScheduleRejected {
		return nil, apperr.New(apperr.CodeInvalidScheduleState, "schedule %d is already rejected", id)
	}
	if err := s.transition(ctx, schedule, models.ScheduleRejected); err != nil {
		return nil, err
	}
	s.notifier.Notify(notify.ScheduleCancelled, strconv.FormatInt(id, 10), schedule)
	return schedule, nil
}

func (s *CheckupService) transition(ctx context.Context, schedule *models.CheckupSchedule, to models.ScheduleState) error {
	err := s.schedules.UpdateState(ctx, schedule.ID, schedule.State, to)
	if errors.Is(err, repository.ErrStaleVersion) {
		return apperr.Conflict("schedule %d was modified concurrently", schedule.ID)
	}
	if err != nil {
		s.logger.Error("Failed to update schedule state", zap.Int64("schedule_id", schedule.ID), zap.Error(err))
		return err
	}
	s.logger.Info("Schedule state changed",
		zap.Int64("schedule_id", schedule.ID),
		zap.String("from", string(schedule.State)),
		zap.String("to", string(to)))
	schedule.State = to
	return nil
}

// Reschedule 修改预约时间与顾问，已拒绝的预约不可修改
func (s *CheckupService) Reschedule(ctx context.Context, id int64, scheduledAt time.Time, consultantID int64) (*models.CheckupSchedule, error) {
	var missing []string
	if scheduledAt.IsZero() {
		missing = append(missing, "scheduledAt")
	}
	if consultantID == 0 {
		missing = append(missing, "consultantId")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing)
	}

	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.State == models.ScheduleRejected {
		return nil, apperr.New(apperr.CodeInvalidScheduleState, "schedule %d is rejected and cannot be rescheduled", id)
	}

	err = s.schedules.Reschedule(ctx, id, schedule.State, scheduledAt, consultantID)
	if errors.Is(err, repository.ErrStaleVersion) {
		return nil, apperr.Conflict("schedule %d was modified concurrently", id)
	}
	if err != nil {
		s.logger.Error("Failed to reschedule", zap.Int64("schedule_id", id), zap.Error(err))
		return nil, err
	}

	schedule.ScheduledAt = scheduledAt
	schedule.ConsultantID = consultantID
	schedule.State = models.SchedulePending
	s.notifier.Notify(notify.ScheduleRescheduled, strconv.FormatInt(id, 10), schedule)
	return schedule, nil
}

// GetCheckupView 计算车辆的保养视图
// 请求未带读数时查询实时读数；外部服务失败或超时按无读数处理
func (s *CheckupService) GetCheckupView(ctx context.Context, params models.VehicleParams) (*checkup.View, error) {
	if params.Chassis == "" {
		return nil, apperr.MissingFields([]string{"chassis"})
	}
	params.Chassis = chassis.Normalize(params.Chassis)

	schedules, err := s.schedules.ListByChassis(ctx, params.Chassis)
	if err != nil {
		return nil, err
	}

	if _, ok := params.Metrics.Value(params.MaintenanceGroup); !ok {
		params.Metrics = s.liveMetrics(ctx, params.Chassis, params.Metrics)
	}
	latestRevision := s.latestRevision(ctx, params.Chassis, params.MaintenanceGroup)

	return s.reconciler.Reconcile(ctx, params, schedules, latestRevision)
}

func (s *CheckupService) liveMetrics(ctx context.Context, chassisNumber string, fallback models.VehicleMetrics) models.VehicleMetrics {
	if s.metrics == nil {
		return fallback
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	m, err := s.metrics.GetMetrics(callCtx, chassisNumber)
	if err != nil {
		s.logger.Warn("Vehicle metrics unavailable, using history only",
			zap.String("chassis", chassisNumber), zap.Error(err))
		return fallback
	}
	if m == nil {
		return fallback
	}
	return *m
}

func (s *CheckupService) latestRevision(ctx context.Context, chassisNumber string, group models.MaintenanceGroup) int64 {
	if s.revisions == nil {
		return 0
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	revisions, err := s.revisions.GetRevisions(callCtx, chassisNumber)
	if err != nil {
		s.logger.Warn("Revision history unavailable",
			zap.String("chassis", chassisNumber), zap.Error(err))
		return 0
	}
	return models.LatestRevisionValue(revisions, group)
}
