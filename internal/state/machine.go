package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/langchou/fleetcare/internal/models"
	"github.com/looplab/fsm"
)

// 事件常量
const (
	EventScreen  = "screen"
	EventRepair  = "repair"
	EventInspect = "inspect"
	EventRelease = "release"
	EventFinish  = "finish"
)

// ErrInvalidTransition 不允许的步骤跳转
var ErrInvalidTransition = errors.New("invalid ticket step transition")

// enterEvents 进入某个步骤需要的事件
var enterEvents = map[models.TicketStatus]string{
	models.TicketScreening:  EventScreen,
	models.TicketRepair:     EventRepair,
	models.TicketInspection: EventInspect,
	models.TicketRelease:    EventRelease,
	models.TicketFinished:   EventFinish,
}

// EventFor 进入目标步骤的事件
func EventFor(target models.TicketStatus) (string, bool) {
	event, ok := enterEvents[target]
	return event, ok
}

// Machine 工单步骤状态机
type Machine struct {
	mu           sync.RWMutex
	ticketID     int64
	fsm          *fsm.FSM
	onStepChange func(ticketID int64, from, to models.TicketStatus)
}

// NewMachine 创建状态机，初始状态为工单当前步骤
func NewMachine(ticketID int64, current models.TicketStatus, onStepChange func(ticketID int64, from, to models.TicketStatus)) *Machine {
	if current == "" {
		current = models.TicketTicket
	}

	m := &Machine{
		ticketID:     ticketID,
		onStepChange: onStepChange,
	}

	m.fsm = fsm.NewFSM(
		string(current),
		fsm.Events{
			// 严格相邻，不允许跳步或回退
			{Name: EventScreen, Src: []string{string(models.TicketTicket)}, Dst: string(models.TicketScreening)},
			{Name: EventRepair, Src: []string{string(models.TicketScreening)}, Dst: string(models.TicketRepair)},
			{Name: EventInspect, Src: []string{string(models.TicketRepair)}, Dst: string(models.TicketInspection)},
			{Name: EventRelease, Src: []string{string(models.TicketInspection)}, Dst: string(models.TicketRelease)},
			{Name: EventFinish, Src: []string{string(models.TicketRelease)}, Dst: string(models.TicketFinished)},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStepChange != nil && e.Src != e.Dst {
					m.onStepChange(m.ticketID, models.TicketStatus(e.Src), models.TicketStatus(e.Dst))
				}
			},
		},
	)

	return m
}

// Current 当前步骤
func (m *Machine) Current() models.TicketStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.TicketStatus(m.fsm.Current())
}

// CanEnter 是否可以进入目标步骤
func (m *Machine) CanEnter(target models.TicketStatus) bool {
	event, ok := EventFor(target)
	if !ok {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}

// Enter 进入目标步骤
func (m *Machine) Enter(ctx context.Context, target models.TicketStatus) error {
	event, ok := EventFor(target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fsm.Can(event) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.fsm.Current(), target)
	}
	if err := m.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	return nil
}
