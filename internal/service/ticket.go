package service

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/langchou/fleetcare/internal/apperr"
	"github.com/langchou/fleetcare/internal/models"
	"github.com/langchou/fleetcare/internal/notify"
	"github.com/langchou/fleetcare/internal/repository"
	"github.com/langchou/fleetcare/internal/state"
)

// TicketService 维修工单服务
type TicketService struct {
	logger    *zap.Logger
	tickets   TicketStore
	schedules ScheduleStore
	notifier  Notifier
}

// NewTicketService 创建工单服务
func NewTicketService(logger *zap.Logger, tickets TicketStore, schedules ScheduleStore, notifier Notifier) *TicketService {
	return &TicketService{
		logger:    logger,
		tickets:   tickets,
		schedules: schedules,
		notifier:  notifier,
	}
}

// transition 状态机记录的步骤变化
type transition struct {
	from, to models.TicketStatus
}

// CreateTicket 为预约开单，一个预约只能有一个工单
func (s *TicketService) CreateTicket(ctx context.Context, scheduleID int64, step *models.TicketStep) (*models.MaintenanceTicket, error) {
	if step == nil {
		step = &models.TicketStep{}
	}
	if err := state.ValidateCheckIn(step.StepTimes); err != nil {
		return nil, err
	}
	if err := validateHours(step.StepTimes); err != nil {
		return nil, err
	}

	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNoCheckupScheduleFound, "checkup schedule %d not found", scheduleID)
	}
	if err != nil {
		return nil, err
	}
	if schedule.State == models.ScheduleRejected {
		return nil, apperr.New(apperr.CodeInvalidScheduleState, "schedule %d is rejected", scheduleID)
	}

	// 开单时不记录 checkout
	step.CheckOutDate = nil
	step.CheckOutHour = nil

	ticket := &models.MaintenanceTicket{
		ScheduleID: scheduleID,
		Status:     models.TicketTicket,
		Ticket:     step,
	}
	err = s.tickets.Create(ctx, ticket)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.New(apperr.CodeTicketAlreadyForSchedule, "schedule %d already has a maintenance ticket", scheduleID)
	}
	if err != nil {
		s.logger.Error("Failed to create ticket", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Maintenance ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("schedule_id", scheduleID))
	return ticket, nil
}

// Get 获取工单
func (s *TicketService) Get(ctx context.Context, id int64) (*models.MaintenanceTicket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("maintenance ticket", id)
	}
	return ticket, err
}

// SaveStep 保存步骤
// 提交下一步骤即进入该步骤；当前步骤 checkout 前可重复提交；其余情况拒绝
func (s *TicketService) SaveStep(ctx context.Context, ticketID int64, step models.TicketStatus, data models.Step) (*models.MaintenanceTicket, error) {
	if err := checkPayload(step, data); err != nil {
		return nil, err
	}

	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	var moved *transition
	machine := state.NewMachine(ticket.ID, ticket.Status, func(_ int64, from, to models.TicketStatus) {
		moved = &transition{from: from, to: to}
	})

	entering := false
	switch {
	case step == machine.Current():
		if times, ok := ticket.StepTimes(step); ok && times.CheckedOut() {
			return nil, apperr.New(apperr.CodeTicketInvalidStateToChange, "step %s is already checked out", step)
		}
	case machine.CanEnter(step):
		entering = true
	default:
		return nil, apperr.New(apperr.CodeTicketInvalidStateToChange,
			"cannot save step %s while ticket is in %s", step, machine.Current())
	}

	times := data.Times()
	// checkout 只能通过 Checkout 写入
	times.CheckOutDate = nil
	times.CheckOutHour = nil

	if err := state.ValidateCheckIn(*times); err != nil {
		return nil, err
	}
	if err := validateHours(*times); err != nil {
		return nil, err
	}
	if step == models.TicketInspection {
		inspection, _ := data.(*models.InspectionStep)
		if err := state.ValidateInspectionEntry(ticket.Repair, inspection); err != nil {
			return nil, err
		}
	}

	if entering {
		if err := machine.Enter(ctx, step); err != nil {
			return nil, apperr.New(apperr.CodeTicketInvalidStateToChange, "%v", err)
		}
		ticket.Status = machine.Current()
	}
	ticket.SetStep(data)

	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}
	if moved != nil {
		s.stepChanged(ticket, *moved)
	}
	return ticket, nil
}

// Checkout 结束当前步骤
// RELEASE checkout 后工单进入 FINISHED
func (s *TicketService) Checkout(ctx context.Context, ticketID int64, step models.TicketStatus, data models.Step) (*models.MaintenanceTicket, error) {
	if err := checkPayload(step, data); err != nil {
		return nil, err
	}

	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != step {
		return nil, apperr.New(apperr.CodeTicketInvalidStateToChange,
			"cannot checkout %s while ticket is in %s", step, ticket.Status)
	}

	stored := ticket.Step(step)
	if stored != nil && stored.Times().CheckedOut() {
		return nil, apperr.New(apperr.CodeTicketInvalidStateToChange, "step %s is already checked out", step)
	}

	// 以已保存的记录为底，本次提交的字段覆盖
	if stored != nil {
		if data, err = models.MergeStep(stored, data); err != nil {
			return nil, err
		}
	}

	// 合并后的 check-in 仍不得早于维修 checkout
	if step == models.TicketInspection {
		inspection, _ := data.(*models.InspectionStep)
		if err := state.ValidateInspectionEntry(ticket.Repair, inspection); err != nil {
			return nil, err
		}
	}

	times := data.Times()
	if err := state.ValidateCheckout(step, *times, data.MissingFields()); err != nil {
		return nil, err
	}
	if err := validateHours(*times); err != nil {
		return nil, err
	}

	var moved *transition
	if step == models.TicketRelease {
		machine := state.NewMachine(ticket.ID, ticket.Status, func(_ int64, from, to models.TicketStatus) {
			moved = &transition{from: from, to: to}
		})
		if err := machine.Enter(ctx, models.TicketFinished); err != nil {
			return nil, apperr.New(apperr.CodeTicketInvalidStateToChange, "%v", err)
		}
		ticket.Status = machine.Current()
	}
	ticket.SetStep(data)

	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}

	s.logger.Info("Ticket step checked out",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("step", string(step)))
	if moved != nil {
		s.stepChanged(ticket, *moved)
	}
	return ticket, nil
}

// update 乐观锁写入，版本冲突返回可重试错误
func (s *TicketService) update(ctx context.Context, ticket *models.MaintenanceTicket) error {
	err := s.tickets.Update(ctx, ticket)
	if errors.Is(err, repository.ErrStaleVersion) {
		return apperr.Conflict("maintenance ticket %d was modified concurrently", ticket.ID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.CodeNoCheckupScheduleFound, "checkup schedule %d not found", ticket.ScheduleID)
	}
	if err != nil {
		s.logger.Error("Failed to update ticket", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return err
	}
	return nil
}

func (s *TicketService) stepChanged(ticket *models.MaintenanceTicket, t transition) {
	s.logger.Info("Ticket step changed",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("from", string(t.from)),
		zap.String("to", string(t.to)))

	key := strconv.FormatInt(ticket.ID, 10)
	if t.to == models.TicketFinished {
		s.notifier.Notify(notify.TicketFinished, key, ticket)
		return
	}
	s.notifier.Notify(notify.TicketStepChanged, key, map[string]interface{}{
		"ticket_id":   ticket.ID,
		"schedule_id": ticket.ScheduleID,
		"from":        t.from,
		"to":          t.to,
	})
}

func checkPayload(step models.TicketStatus, data models.Step) error {
	if data == nil || models.StepStatus(data) != step {
		return apperr.New(apperr.CodeInvalidArgument, "payload for step %s is required", step)
	}
	return nil
}

// validateHours 校验已填写的时刻格式
func validateHours(times models.StepTimes) error {
	for name, hour := range map[string]*string{
		"checkInHour":  times.CheckInHour,
		"checkOutHour": times.CheckOutHour,
	} {
		if hour == nil {
			continue
		}
		if err := models.ValidHour(*hour); err != nil {
			return apperr.New(apperr.CodeInvalidArgument, "%s: %v", name, err)
		}
	}
	return nil
}
