package models

import "time"

// ServiceBay 维修工位
type ServiceBay struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	DN     string `json:"dn" db:"dn"` // 经销商编号
	Active bool   `json:"active" db:"active"`
}

// ServiceBaySchedule 工位预留，区间为 [StartDate, EndDate)
type ServiceBaySchedule struct {
	ID           int64     `json:"id" db:"id"`
	ServiceBayID int64     `json:"service_bay_id" db:"service_bay_id"`
	OccurrenceID *int64    `json:"occurrence_id,omitempty" db:"occurrence_id"`
	StartDate    time.Time `json:"start_date" db:"start_date"`
	EndDate      time.Time `json:"end_date" db:"end_date"`
	Active       bool      `json:"active" db:"active"`
	DN           string    `json:"dn" db:"dn"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Overlaps 两个半开区间是否重叠
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !(aEnd.Compare(bStart) <= 0 || aStart.Compare(bEnd) >= 0)
}
