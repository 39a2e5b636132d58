package models

import (
	"fmt"
	"time"
)

// TicketStatus 工单步骤（按顺序）
type TicketStatus string

const (
	TicketTicket     TicketStatus = "TICKET"
	TicketScreening  TicketStatus = "SCREENING"
	TicketRepair     TicketStatus = "REPAIR"
	TicketInspection TicketStatus = "INSPECTION"
	TicketRelease    TicketStatus = "RELEASE"
	TicketFinished   TicketStatus = "FINISHED"
)

// TicketSteps 可提交的步骤，按流程顺序
var TicketSteps = []TicketStatus{
	TicketTicket,
	TicketScreening,
	TicketRepair,
	TicketInspection,
	TicketRelease,
}

// ParseTicketStep 解析路径中的步骤名
func ParseTicketStep(s string) (TicketStatus, bool) {
	for _, step := range TicketSteps {
		if string(step) == s {
			return step, true
		}
	}
	return "", false
}

// HourLayout 时刻格式
const HourLayout = "15:04"

// StepTimes 每个步骤的进出时间
type StepTimes struct {
	CheckInDate  *time.Time `json:"checkInDate,omitempty"`
	CheckInHour  *string    `json:"checkInHour,omitempty"`
	CheckOutDate *time.Time `json:"checkOutDate,omitempty"`
	CheckOutHour *string    `json:"checkOutHour,omitempty"`
}

// CheckIn 合并日期与时刻
func (s StepTimes) CheckIn() (time.Time, bool) {
	return combine(s.CheckInDate, s.CheckInHour)
}

// CheckOut 合并日期与时刻
func (s StepTimes) CheckOut() (time.Time, bool) {
	return combine(s.CheckOutDate, s.CheckOutHour)
}

// CheckedOut 是否已完成 checkout
func (s StepTimes) CheckedOut() bool {
	return s.CheckOutDate != nil && s.CheckOutHour != nil
}

// Times 步骤记录的进出时间
func (s *StepTimes) Times() *StepTimes {
	return s
}

// Step 各步骤记录的公共行为
type Step interface {
	Times() *StepTimes
	MissingFields() []string
}

func (s StepTimes) missingCheckIn() []string {
	var missing []string
	if s.CheckInDate == nil {
		missing = append(missing, "checkInDate")
	}
	if s.CheckInHour == nil {
		missing = append(missing, "checkInHour")
	}
	return missing
}

func combine(date *time.Time, hour *string) (time.Time, bool) {
	if date == nil || hour == nil {
		return time.Time{}, false
	}
	h, err := time.Parse(HourLayout, *hour)
	if err != nil {
		return time.Time{}, false
	}
	d := *date
	return time.Date(d.Year(), d.Month(), d.Day(), h.Hour(), h.Minute(), 0, 0, time.UTC), true
}

// ValidHour 检查 HH:MM 格式
func ValidHour(hour string) error {
	if _, err := time.Parse(HourLayout, hour); err != nil {
		return fmt.Errorf("invalid hour %q, expected HH:MM", hour)
	}
	return nil
}

// TicketStep 开单
type TicketStep struct {
	StepTimes
	ServiceOrder *string `json:"serviceOrder,omitempty"`
	ConsultantID *int64  `json:"consultantId,omitempty"`
	Complaint    *string `json:"complaint,omitempty"`
	Report       *string `json:"report,omitempty"`
}

// MissingFields 除 report/checkOutDate/checkOutHour 外的必填字段
func (s *TicketStep) MissingFields() []string {
	missing := s.missingCheckIn()
	if s.ServiceOrder == nil {
		missing = append(missing, "serviceOrder")
	}
	if s.ConsultantID == nil {
		missing = append(missing, "consultantId")
	}
	if s.Complaint == nil {
		missing = append(missing, "complaint")
	}
	return missing
}

// ScreeningStep 预检
type ScreeningStep struct {
	StepTimes
	MechanicID *int64  `json:"mechanicId,omitempty"`
	Diagnosis  *string `json:"diagnosis,omitempty"`
	Report     *string `json:"report,omitempty"`
}

// MissingFields 除 report/checkOutDate/checkOutHour 外的必填字段
func (s *ScreeningStep) MissingFields() []string {
	missing := s.missingCheckIn()
	if s.MechanicID == nil {
		missing = append(missing, "mechanicId")
	}
	if s.Diagnosis == nil {
		missing = append(missing, "diagnosis")
	}
	return missing
}

// RepairStep 维修
type RepairStep struct {
	StepTimes
	MechanicID    *int64  `json:"mechanicId,omitempty"`
	ServiceBayID  *int64  `json:"serviceBayId,omitempty"`
	PartsReplaced *string `json:"partsReplaced,omitempty"`
	Report        *string `json:"report,omitempty"`
}

// MissingFields 除 report/checkOutDate/checkOutHour 外的必填字段
func (s *RepairStep) MissingFields() []string {
	missing := s.missingCheckIn()
	if s.MechanicID == nil {
		missing = append(missing, "mechanicId")
	}
	if s.ServiceBayID == nil {
		missing = append(missing, "serviceBayId")
	}
	if s.PartsReplaced == nil {
		missing = append(missing, "partsReplaced")
	}
	return missing
}

// InspectionStep 质检
type InspectionStep struct {
	StepTimes
	InspectorID *int64  `json:"inspectorId,omitempty"`
	Approved    *bool   `json:"approved,omitempty"`
	Report      *string `json:"report,omitempty"`
}

// MissingFields 除 report/checkOutDate/checkOutHour 外的必填字段
func (s *InspectionStep) MissingFields() []string {
	missing := s.missingCheckIn()
	if s.InspectorID == nil {
		missing = append(missing, "inspectorId")
	}
	if s.Approved == nil {
		missing = append(missing, "approved")
	}
	return missing
}

// ReleaseStep 交车
type ReleaseStep struct {
	StepTimes
	ReleasedBy *string  `json:"releasedBy,omitempty"`
	ReceivedBy *string  `json:"receivedBy,omitempty"`
	OdometerKm *float64 `json:"odometerKm,omitempty"`
	Report     *string  `json:"report,omitempty"`
}

// MissingFields 除 report/checkOutDate/checkOutHour 外的必填字段
func (s *ReleaseStep) MissingFields() []string {
	missing := s.missingCheckIn()
	if s.ReleasedBy == nil {
		missing = append(missing, "releasedBy")
	}
	if s.ReceivedBy == nil {
		missing = append(missing, "receivedBy")
	}
	if s.OdometerKm == nil {
		missing = append(missing, "odometerKm")
	}
	return missing
}

// NewStep 创建指定步骤的空记录
func NewStep(step TicketStatus) Step {
	switch step {
	case TicketTicket:
		return &TicketStep{}
	case TicketScreening:
		return &ScreeningStep{}
	case TicketRepair:
		return &RepairStep{}
	case TicketInspection:
		return &InspectionStep{}
	case TicketRelease:
		return &ReleaseStep{}
	}
	return nil
}

// StepStatus 记录所属的步骤
func StepStatus(rec Step) TicketStatus {
	switch rec.(type) {
	case *TicketStep:
		return TicketTicket
	case *ScreeningStep:
		return TicketScreening
	case *RepairStep:
		return TicketRepair
	case *InspectionStep:
		return TicketInspection
	case *ReleaseStep:
		return TicketRelease
	}
	return ""
}

func mergePtr[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func (s *StepTimes) merge(patch StepTimes) {
	mergePtr(&s.CheckInDate, patch.CheckInDate)
	mergePtr(&s.CheckInHour, patch.CheckInHour)
	mergePtr(&s.CheckOutDate, patch.CheckOutDate)
	mergePtr(&s.CheckOutHour, patch.CheckOutHour)
}

// MergeStep 以 base 为底，patch 中非空字段覆盖，不修改 base
func MergeStep(base, patch Step) (Step, error) {
	if StepStatus(base) == "" || StepStatus(patch) != StepStatus(base) {
		return nil, fmt.Errorf("cannot merge %s into %s", StepStatus(patch), StepStatus(base))
	}

	switch b := base.(type) {
	case *TicketStep:
		p, m := patch.(*TicketStep), *b
		m.StepTimes.merge(p.StepTimes)
		mergePtr(&m.ServiceOrder, p.ServiceOrder)
		mergePtr(&m.ConsultantID, p.ConsultantID)
		mergePtr(&m.Complaint, p.Complaint)
		mergePtr(&m.Report, p.Report)
		return &m, nil
	case *ScreeningStep:
		p, m := patch.(*ScreeningStep), *b
		m.StepTimes.merge(p.StepTimes)
		mergePtr(&m.MechanicID, p.MechanicID)
		mergePtr(&m.Diagnosis, p.Diagnosis)
		mergePtr(&m.Report, p.Report)
		return &m, nil
	case *RepairStep:
		p, m := patch.(*RepairStep), *b
		m.StepTimes.merge(p.StepTimes)
		mergePtr(&m.MechanicID, p.MechanicID)
		mergePtr(&m.ServiceBayID, p.ServiceBayID)
		mergePtr(&m.PartsReplaced, p.PartsReplaced)
		mergePtr(&m.Report, p.Report)
		return &m, nil
	case *InspectionStep:
		p, m := patch.(*InspectionStep), *b
		m.StepTimes.merge(p.StepTimes)
		mergePtr(&m.InspectorID, p.InspectorID)
		mergePtr(&m.Approved, p.Approved)
		mergePtr(&m.Report, p.Report)
		return &m, nil
	case *ReleaseStep:
		p, m := patch.(*ReleaseStep), *b
		m.StepTimes.merge(p.StepTimes)
		mergePtr(&m.ReleasedBy, p.ReleasedBy)
		mergePtr(&m.ReceivedBy, p.ReceivedBy)
		mergePtr(&m.OdometerKm, p.OdometerKm)
		mergePtr(&m.Report, p.Report)
		return &m, nil
	}
	return nil, fmt.Errorf("unknown step record %T", base)
}

// MaintenanceTicket 维修工单，与预约 1:1
type MaintenanceTicket struct {
	ID         int64           `json:"id" db:"id"`
	ScheduleID int64           `json:"schedule_id" db:"schedule_id"`
	Status     TicketStatus    `json:"status" db:"status"`
	Version    int             `json:"version" db:"version"`
	Ticket     *TicketStep     `json:"ticket,omitempty" db:"ticket_step"`
	Screening  *ScreeningStep  `json:"screening,omitempty" db:"screening_step"`
	Repair     *RepairStep     `json:"repair,omitempty" db:"repair_step"`
	Inspection *InspectionStep `json:"inspection,omitempty" db:"inspection_step"`
	Release    *ReleaseStep    `json:"release,omitempty" db:"release_step"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// StepTimes 返回指定步骤的进出时间
func (t *MaintenanceTicket) StepTimes(step TicketStatus) (StepTimes, bool) {
	rec := t.Step(step)
	if rec == nil {
		return StepTimes{}, false
	}
	return *rec.Times(), true
}

// Step 返回指定步骤的记录，未填写时为 nil
func (t *MaintenanceTicket) Step(step TicketStatus) Step {
	switch step {
	case TicketTicket:
		if t.Ticket != nil {
			return t.Ticket
		}
	case TicketScreening:
		if t.Screening != nil {
			return t.Screening
		}
	case TicketRepair:
		if t.Repair != nil {
			return t.Repair
		}
	case TicketInspection:
		if t.Inspection != nil {
			return t.Inspection
		}
	case TicketRelease:
		if t.Release != nil {
			return t.Release
		}
	}
	return nil
}

// SetStep 写入步骤记录
func (t *MaintenanceTicket) SetStep(rec Step) {
	switch v := rec.(type) {
	case *TicketStep:
		t.Ticket = v
	case *ScreeningStep:
		t.Screening = v
	case *RepairStep:
		t.Repair = v
	case *InspectionStep:
		t.Inspection = v
	case *ReleaseStep:
		t.Release = v
	}
}

// ServiceOrder 开单时录入的服务单号
func (t *MaintenanceTicket) ServiceOrder() *string {
	if t.Ticket == nil {
		return nil
	}
	return t.Ticket.ServiceOrder
}

// Mirror 预约上镜像的工单状态
func (t *MaintenanceTicket) Mirror() Maintenance {
	status := t.Status
	m := Maintenance{
		Status:       &status,
		ServiceOrder: t.ServiceOrder(),
	}
	if t.Ticket != nil {
		m.CheckInDate = t.Ticket.CheckInDate
	}
	if t.Release != nil && t.Release.CheckOutDate != nil {
		m.CheckOutDate = t.Release.CheckOutDate
	}
	return m
}
