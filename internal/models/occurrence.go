package models

import "time"

// OccurrenceStepType 事件步骤类型（可运营新增）
type OccurrenceStepType struct {
	ID           int64  `json:"id" db:"id"`
	Code         string `json:"code" db:"code"`
	Name         string `json:"name" db:"name"`
	Position     int    `json:"position" db:"position"`
	HoursElapsed int    `json:"hours_elapsed" db:"hours_elapsed"` // SLA，0 表示不告警
}

// OccurrenceStep 事件步骤记录
type OccurrenceStep struct {
	ID           int64              `json:"id" db:"id"`
	OccurrenceID int64              `json:"occurrence_id" db:"occurrence_id"`
	StepType     OccurrenceStepType `json:"step_type"`
	DtStart      time.Time          `json:"dt_start" db:"dt_start"`
	DtEnd        *time.Time         `json:"dt_end,omitempty" db:"dt_end"`
	Latest       bool               `json:"latest" db:"latest"`
}

// Open 是否为当前进行中的步骤
func (s *OccurrenceStep) Open() bool {
	return s.Latest && s.DtEnd == nil
}

// Occurrence 救援/调度事件
type Occurrence struct {
	ID          int64            `json:"id" db:"id"`
	UUID        string           `json:"uuid" db:"uuid"`
	Chassis     string           `json:"chassis" db:"chassis"`
	Description string           `json:"description" db:"description"`
	StartDate   time.Time        `json:"start_date" db:"start_date"`
	EndDate     *time.Time       `json:"end_date,omitempty" db:"end_date"`
	Steps       []OccurrenceStep `json:"steps"`
	Alert       bool             `json:"alert"`
}

// Finalized 事件是否已结束
func (o *Occurrence) Finalized() bool {
	return o.EndDate != nil
}

// CurrentStep 当前进行中的步骤
func (o *Occurrence) CurrentStep() *OccurrenceStep {
	for i := range o.Steps {
		if o.Steps[i].Open() {
			return &o.Steps[i]
		}
	}
	return nil
}

// IsAlert 当前步骤耗时超过 SLA
func (o *Occurrence) IsAlert(now time.Time) bool {
	step := o.CurrentStep()
	if step == nil || step.StepType.HoursElapsed <= 0 {
		return false
	}
	return now.Sub(step.DtStart) > time.Duration(step.StepType.HoursElapsed)*time.Hour
}
