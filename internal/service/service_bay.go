package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleetcare/internal/apperr"
	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/notify"
	"github.com/langchou/fleetcare/internal/repository"
)

// BookInput 工位预留参数
type BookInput struct {
	ServiceBayID int64
	OccurrenceID *int64
	StartDate    time.Time
	EndDate      time.Time
	DN           string
}

// ServiceBayService 工位预留
type ServiceBayService struct {
	logger   *zap.Logger
	bays     ServiceBayStore
	notifier Notifier
}

// NewServiceBayService 创建工位服务
func NewServiceBayService(logger *zap.Logger, bays ServiceBayStore, notifier Notifier) *ServiceBayService {
	return &ServiceBayService{
		logger:   logger,
		bays:     bays,
		notifier: notifier,
	}
}

func validateRange(bayID int64, start, end time.Time) error {
	var missing []string
	if bayID == 0 {
		missing = append(missing, "serviceBayId")
	}
	if start.IsZero() {
		missing = append(missing, "startDate")
	}
	if end.IsZero() {
		missing = append(missing, "endDate")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing)
	}
	if !start.Before(end) {
		return apperr.New(apperr.CodeInvalidArgument, "startDate must be before endDate")
	}
	return nil
}

// Book 预留工位，区间与有效预留重叠时返回 SERVICE_BAY_SCHEDULE_CONFLICT
func (s *ServiceBayService) Book(ctx context.Context, in BookInput) (*models.ServiceBaySchedule, error) {
	if err := validateRange(in.ServiceBayID, in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	schedule := &models.ServiceBaySchedule{
		ServiceBayID: in.ServiceBayID,
		OccurrenceID: in.OccurrenceID,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		DN:           in.DN,
	}

	err := s.bays.Book(ctx, schedule)
	switch {
	case errors.Is(err, repository.ErrConflict):
		s.logger.Info("Service bay booking rejected",
			zap.Int64("service_bay_id", in.ServiceBayID),
			zap.Time("start", in.StartDate),
			zap.Time("end", in.EndDate))
		return nil, apperr.New(apperr.CodeServiceBayScheduleConflict,
			"service bay %d is already booked between %s and %s",
			in.ServiceBayID, in.StartDate.Format(time.RFC3339), in.EndDate.Format(time.RFC3339))
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.NotFound("active service bay", in.ServiceBayID)
	case err != nil:
		s.logger.Error("Failed to book service bay", zap.Int64("service_bay_id", in.ServiceBayID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Service bay booked",
		zap.Int64("service_bay_schedule_id", schedule.ID),
		zap.Int64("service_bay_id", schedule.ServiceBayID))
	s.notifier.Notify(notify.BayBooked, strconv.FormatInt(schedule.ID, 10), schedule)
	return schedule, nil
}

// Cancel 取消预留
func (s *ServiceBayService) Cancel(ctx context.Context, id int64) (*models.ServiceBaySchedule, error) {
	schedule, err := s.bays.Cancel(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("service bay schedule", id)
	}
	if err != nil {
		s.logger.Error("Failed to cancel service bay schedule", zap.Int64("service_bay_schedule_id", id), zap.Error(err))
		return nil, err
	}

	s.notifier.Notify(notify.BayCancelled, strconv.FormatInt(id, 10), schedule)
	return schedule, nil
}

// HasConflict 检查区间是否与有效预留冲突
func (s *ServiceBayService) HasConflict(ctx context.Context, bayID int64, start, end time.Time) (bool, error) {
	if err := validateRange(bayID, start, end); err != nil {
		return false, err
	}
	return s.bays.HasConflict(ctx, bayID, start, end)
}

// ListByBay 工位的预留列表
func (s *ServiceBayService) ListByBay(ctx context.Context, bayID int64, activeOnly bool) ([]models.ServiceBaySchedule, error) {
	if _, err := s.bays.GetBay(ctx, bayID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("service bay", bayID)
		}
		return nil, err
	}
	return s.bays.ListByBay(ctx, bayID, activeOnly)
}
