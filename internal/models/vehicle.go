package models

import "time"

// MaintenanceGroup 车辆维保分组
type MaintenanceGroup string

const (
	GroupRodoviario MaintenanceGroup = "RODOVIARIO"
	GroupEspecial   MaintenanceGroup = "ESPECIAL"
	GroupMisto      MaintenanceGroup = "MISTO"
	GroupSevero     MaintenanceGroup = "SEVERO"
)

// Valid 是否为已知分组
func (g MaintenanceGroup) Valid() bool {
	switch g {
	case GroupRodoviario, GroupEspecial, GroupMisto, GroupSevero:
		return true
	}
	return false
}

// MetricType 分组对应的计量方式：ESPECIAL 使用小时表，其他使用里程表
func (g MaintenanceGroup) MetricType() MetricType {
	if g == GroupEspecial {
		return MetricHours
	}
	return MetricKm
}

// MetricType 计量类型
type MetricType string

const (
	MetricKm    MetricType = "KM"
	MetricHours MetricType = "HOURS"
)

// VehicleMetrics 车辆当前读数
type VehicleMetrics struct {
	OdometerKm *float64   `json:"odometer_km,omitempty"`
	HourMeter  *float64   `json:"hour_meter,omitempty"`
	AsOf       *time.Time `json:"as_of,omitempty"`
}

// Value 按分组选择权威读数（截断为整数）
func (m VehicleMetrics) Value(group MaintenanceGroup) (int64, bool) {
	var v *float64
	if group.MetricType() == MetricHours {
		v = m.HourMeter
	} else {
		v = m.OdometerKm
	}
	if v == nil {
		return 0, false
	}
	return int64(*v), true
}

// VehicleParams 计算下次保养所需的车辆参数
type VehicleParams struct {
	Chassis          string           `json:"chassis"`
	MaintenanceGroup MaintenanceGroup `json:"maintenance_group"`
	Model            string           `json:"model,omitempty"`
	Metrics          VehicleMetrics   `json:"metrics"`
}

// EngineMetadata 发动机元数据（由车架号第 4-5、6、7-8 位解析）
type EngineMetadata struct {
	EngineCode       string `json:"engine_code"`
	EmissionStandard string `json:"emission_standard"`
	DisplacementCC   int    `json:"displacement_cc"`
}

// Revision ODP 系统中的历史保养记录
type Revision struct {
	Mileage      *float64  `json:"mileage,omitempty"`
	HourMeter    *float64  `json:"hour_meter,omitempty"`
	RevisionDate time.Time `json:"revision_date"`
	ServiceOrder string    `json:"service_order"`
}

// LatestRevisionValue 最近一次历史保养的读数（按分组选择里程或小时）
func LatestRevisionValue(revisions []Revision, group MaintenanceGroup) int64 {
	var (
		latest *Revision
		value  int64
	)
	for i := range revisions {
		r := &revisions[i]
		v := r.Mileage
		if group.MetricType() == MetricHours {
			v = r.HourMeter
		}
		if v == nil {
			continue
		}
		if latest == nil || r.RevisionDate.After(latest.RevisionDate) {
			latest = r
			value = int64(*v)
		}
	}
	return value
}
