package models

import "time"

// CheckupInterval 保养间隔表记录
type CheckupInterval struct {
	ID               int64            `json:"id" db:"id"`
	MaintenanceGroup MaintenanceGroup `json:"maintenance_group" db:"maintenance_group"`
	EngineCode       *string          `json:"engine_code,omitempty" db:"engine_code"`
	EmissionStandard *string          `json:"emission_standard,omitempty" db:"emission_standard"`
	DisplacementCC   *int             `json:"displacement_cc,omitempty" db:"displacement_cc"`
	Km               float64          `json:"km" db:"km"`
	Hours            int              `json:"hours" db:"hours"`
}

// MetricValue 与分组计量方式一致的间隔值
func (i CheckupInterval) MetricValue() int64 {
	if i.MaintenanceGroup.MetricType() == MetricHours {
		return int64(i.Hours)
	}
	return int64(i.Km)
}

// Checkup 保养节点
type Checkup struct {
	ID               int64            `json:"id" db:"id"`
	RangeStart       int64            `json:"range_start" db:"range_start"`
	MaintenanceGroup MaintenanceGroup `json:"maintenance_group" db:"maintenance_group"`
	Type             string           `json:"type" db:"type"`
	HasCampaigns     bool             `json:"has_campaigns" db:"has_campaigns"`
}

// CheckupPart 保养节点需要的零件
type CheckupPart struct {
	ID          int64   `json:"id" db:"id"`
	CheckupID   int64   `json:"checkup_id" db:"checkup_id"`
	PartNumber  string  `json:"part_number" db:"part_number"`
	Description string  `json:"description" db:"description"`
	Quantity    float64 `json:"quantity" db:"quantity"`
}

// FieldCampaign 召回/服务活动
type FieldCampaign struct {
	Number      string `json:"number" db:"number"`
	Chassis     string `json:"chassis" db:"chassis"`
	Description string `json:"description" db:"description"`
	Open        bool   `json:"open" db:"open"`
}

// ScheduleState 预约状态
type ScheduleState string

const (
	SchedulePending  ScheduleState = "PENDING"
	ScheduleAccepted ScheduleState = "ACCEPTED"
	ScheduleRejected ScheduleState = "REJECTED"
)

// ScheduleType 预约类型
type ScheduleType string

const (
	ScheduleTypeCheckup  ScheduleType = "CHECKUP"
	ScheduleTypeCampaign ScheduleType = "CAMPAIGN"
)

// Maintenance 预约上镜像的工单状态
type Maintenance struct {
	Status       *TicketStatus `json:"status,omitempty" db:"maintenance_status"`
	CheckInDate  *time.Time    `json:"check_in_date,omitempty" db:"maintenance_check_in"`
	CheckOutDate *time.Time    `json:"check_out_date,omitempty" db:"maintenance_check_out"`
	ServiceOrder *string       `json:"service_order,omitempty" db:"service_order"`
}

// CheckupSchedule 保养预约
type CheckupSchedule struct {
	ID              int64         `json:"id" db:"id"`
	ScheduleNumber  *int64        `json:"schedule_number,omitempty" db:"schedule_number"`
	VehicleID       string        `json:"vehicle_id" db:"vehicle_id"`
	Chassis         string        `json:"chassis" db:"chassis"`
	DealershipCode  string        `json:"dealership_code" db:"dealership_code"`
	ConsultantID    int64         `json:"consultant_id" db:"consultant_id"`
	CheckupID       *int64        `json:"checkup_id,omitempty" db:"checkup_id"`
	Checkup         *Checkup      `json:"checkup,omitempty"`
	CampaignNumbers []string      `json:"campaign_numbers" db:"campaign_numbers"`
	Type            ScheduleType  `json:"type" db:"type"`
	HasCampaigns    bool          `json:"has_campaigns" db:"has_campaigns"`
	State           ScheduleState `json:"state" db:"state"`
	ScheduledAt     time.Time     `json:"scheduled_at" db:"scheduled_at"`
	Maintenance     Maintenance   `json:"maintenance"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// IsFinished 关联工单是否已到达 FINISHED
func (s *CheckupSchedule) IsFinished() bool {
	return s.Maintenance.Status != nil && *s.Maintenance.Status == TicketFinished
}
