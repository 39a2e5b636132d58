package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/fleetcare/internal/apperr"
	"github.com/langchou/fleetcare/internal/chassis"
	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/notify"
	"github.com/langchou/fleetcare/internal/repository"
)

// OccurrenceService 救援事件步骤推进
type OccurrenceService struct {
	logger      *zap.Logger
	occurrences OccurrenceStore
	notifier    Notifier
	now         func() time.Time

	mu      sync.Mutex
	alerted map[int64]struct{} // 已告警的步骤 ID
}

// NewOccurrenceService 创建事件服务
func NewOccurrenceService(logger *zap.Logger, occurrences OccurrenceStore, notifier Notifier) *OccurrenceService {
	return &OccurrenceService{
		logger:      logger,
		occurrences: occurrences,
		notifier:    notifier,
		now:         time.Now,
		alerted:     make(map[int64]struct{}),
	}
}

// Create 创建事件，进入第一个步骤
func (s *OccurrenceService) Create(ctx context.Context, chassisNumber, description string) (*models.Occurrence, error) {
	if chassisNumber == "" {
		return nil, apperr.MissingFields([]string{"chassis"})
	}

	o := &models.Occurrence{
		UUID:        uuid.NewString(),
		Chassis:     chassis.Normalize(chassisNumber),
		Description: description,
		StartDate:   s.now().UTC(),
	}
	if err := s.occurrences.Create(ctx, o); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.CodeEntityNotFound, "no occurrence step types configured")
		}
		s.logger.Error("Failed to create occurrence", zap.String("chassis", o.Chassis), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Occurrence created", zap.String("uuid", o.UUID), zap.String("chassis", o.Chassis))
	return o, nil
}

// Get 获取事件及步骤，并标记是否超时
func (s *OccurrenceService) Get(ctx context.Context, id string) (*models.Occurrence, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("occurrence", id)
	}
	o, err := s.occurrences.GetByUUID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("occurrence", id)
	}
	if err != nil {
		return nil, err
	}
	o.Alert = o.IsAlert(s.now())
	return o, nil
}

// ChangeStep 切换到指定步骤，目标即当前步骤时不做修改
func (s *OccurrenceService) ChangeStep(ctx context.Context, id, stepCode string) (*models.Occurrence, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("occurrence", id)
	}
	stepCode = strings.ToUpper(strings.TrimSpace(stepCode))
	if stepCode == "" {
		return nil, apperr.MissingFields([]string{"stepType"})
	}

	changed, err := s.occurrences.ChangeStep(ctx, id, stepCode, s.now().UTC())
	if err != nil {
		return nil, s.mapError(err, id, stepCode)
	}
	if changed {
		s.logger.Info("Occurrence step changed", zap.String("uuid", id), zap.String("step", stepCode))
	}
	return s.Get(ctx, id)
}

// Finalize 结束事件
func (s *OccurrenceService) Finalize(ctx context.Context, id string) (*models.Occurrence, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("occurrence", id)
	}
	if err := s.occurrences.Finalize(ctx, id, s.now().UTC()); err != nil {
		return nil, s.mapError(err, id, "")
	}
	s.logger.Info("Occurrence finalized", zap.String("uuid", id))
	return s.Get(ctx, id)
}

func (s *OccurrenceService) mapError(err error, id, stepCode string) error {
	switch {
	case errors.Is(err, repository.ErrFinalized):
		return apperr.New(apperr.CodeOccurrenceAlreadyFinalized, "occurrence %s is already finalized", id)
	case errors.Is(err, repository.ErrUnknownStepType):
		return apperr.NotFound("occurrence step type", stepCode)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("occurrence", id)
	}
	s.logger.Error("Failed to update occurrence", zap.String("uuid", id), zap.Error(err))
	return err
}

// CreateStepType 新增步骤类型
func (s *OccurrenceService) CreateStepType(ctx context.Context, st *models.OccurrenceStepType) error {
	st.Code = strings.ToUpper(strings.TrimSpace(st.Code))
	var missing []string
	if st.Code == "" {
		missing = append(missing, "code")
	}
	if st.Name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing)
	}
	if st.HoursElapsed < 0 || st.Position < 0 {
		return apperr.New(apperr.CodeInvalidArgument, "position and hoursElapsed must not be negative")
	}

	err := s.occurrences.CreateStepType(ctx, st)
	if errors.Is(err, repository.ErrDuplicate) {
		return apperr.New(apperr.CodeInvalidArgument, "step type %s already exists", st.Code)
	}
	return err
}

// OpenAlerts 当前超时的进行中事件
func (s *OccurrenceService) OpenAlerts(ctx context.Context) ([]models.Occurrence, error) {
	open, err := s.occurrences.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	alerts := []models.Occurrence{}
	for _, o := range open {
		if o.IsAlert(now) {
			o.Alert = true
			alerts = append(alerts, o)
		}
	}
	return alerts, nil
}

// SweepAlerts 对新超时的步骤发送告警，同一步骤只告警一次
func (s *OccurrenceService) SweepAlerts(ctx context.Context) (int, error) {
	alerts, err := s.OpenAlerts(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[int64]struct{}, len(alerts))
	sent := 0
	for i := range alerts {
		step := alerts[i].CurrentStep()
		if step == nil {
			continue
		}
		current[step.ID] = struct{}{}
		if _, ok := s.alerted[step.ID]; ok {
			continue
		}
		s.notifier.Notify(notify.OccurrenceAlert, alerts[i].UUID, alerts[i])
		sent++
	}
	// 步骤已切换或事件已结束的记录不再保留
	s.alerted = current
	return sent, nil
}
