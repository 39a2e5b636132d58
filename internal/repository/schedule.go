package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/langchou/fleetcare/internal/models"
)

// ScheduleRepository 保养预约仓库
type ScheduleRepository struct {
	db *DB
}

// NewScheduleRepository 创建预约仓库
func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleSelect = `
	SELECT s.id, s.schedule_number, s.vehicle_id, s.chassis, s.dealership_code, s.consultant_id,
		s.checkup_id, s.campaign_numbers, s.type, s.has_campaigns, s.state, s.scheduled_at,
		s.maintenance_status, s.maintenance_check_in, s.maintenance_check_out, s.service_order,
		s.created_at, s.updated_at,
		c.range_start, c.maintenance_group, c.type, c.has_campaigns
	FROM checkup_schedules s
	LEFT JOIN checkups c ON c.id = s.checkup_id
`

func scanSchedule(row pgx.Row) (*models.CheckupSchedule, error) {
	s := &models.CheckupSchedule{}
	var (
		rangeStart   *int64
		group        *string
		checkupType  *string
		hasCampaigns *bool
	)
	err := row.Scan(
		&s.ID,
		&s.ScheduleNumber,
		&s.VehicleID,
		&s.Chassis,
		&s.DealershipCode,
		&s.ConsultantID,
		&s.CheckupID,
		&s.CampaignNumbers,
		&s.Type,
		&s.HasCampaigns,
		&s.State,
		&s.ScheduledAt,
		&s.Maintenance.Status,
		&s.Maintenance.CheckInDate,
		&s.Maintenance.CheckOutDate,
		&s.Maintenance.ServiceOrder,
		&s.CreatedAt,
		&s.UpdatedAt,
		&rangeStart,
		&group,
		&checkupType,
		&hasCampaigns,
	)
	if err != nil {
		return nil, err
	}

	if s.CheckupID != nil && rangeStart != nil {
		s.Checkup = &models.Checkup{
			ID:               *s.CheckupID,
			RangeStart:       *rangeStart,
			MaintenanceGroup: models.MaintenanceGroup(deref(group)),
			Type:             deref(checkupType),
			HasCampaigns:     hasCampaigns != nil && *hasCampaigns,
		}
	}
	return s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create 创建预约
// 同一车辆的检查与写入在咨询锁内完成，存在未拒绝的同类型未来预约时返回 ErrDuplicate
func (r *ScheduleRepository) Create(ctx context.Context, s *models.CheckupSchedule) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.Chassis); err != nil {
			return fmt.Errorf("lock chassis: %w", err)
		}

		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM checkup_schedules
				WHERE chassis = $1 AND state <> $2 AND type = $3 AND has_campaigns = $4 AND scheduled_at > NOW()
			)
		`, s.Chassis, models.ScheduleRejected, s.Type, s.HasCampaigns).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check existing schedule: %w", err)
		}
		if exists {
			return ErrDuplicate
		}

		if s.CampaignNumbers == nil {
			s.CampaignNumbers = []string{}
		}
		now := time.Now()
		query := `
			INSERT INTO checkup_schedules (schedule_number, vehicle_id, chassis, dealership_code, consultant_id,
				checkup_id, campaign_numbers, type, has_campaigns, state, scheduled_at, created_at, updated_at)
			VALUES (nextval('checkup_schedule_number_seq'), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, schedule_number
		`
		err = tx.QueryRow(ctx, query,
			s.VehicleID,
			s.Chassis,
			s.DealershipCode,
			s.ConsultantID,
			s.CheckupID,
			s.CampaignNumbers,
			s.Type,
			s.HasCampaigns,
			s.State,
			s.ScheduledAt,
			now,
			now,
		).Scan(&s.ID, &s.ScheduleNumber)
		if err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}

		s.CreatedAt = now
		s.UpdatedAt = now
		return nil
	})
}

// GetByID 获取预约
func (r *ScheduleRepository) GetByID(ctx context.Context, id int64) (*models.CheckupSchedule, error) {
	s, err := scanSchedule(r.db.Pool.QueryRow(ctx, scheduleSelect+` WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule by id: %w", err)
	}
	return s, nil
}

// ListByChassis 车辆的全部预约，按预约时间倒序
func (r *ScheduleRepository) ListByChassis(ctx context.Context, chassisNumber string) ([]models.CheckupSchedule, error) {
	rows, err := r.db.Pool.Query(ctx, scheduleSelect+` WHERE s.chassis = $1 ORDER BY s.scheduled_at DESC, s.id DESC`, chassisNumber)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.CheckupSchedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// UpdateState 状态由 from 变为 to，状态已被修改时返回 ErrStaleVersion
func (r *ScheduleRepository) UpdateState(ctx context.Context, id int64, from, to models.ScheduleState) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE checkup_schedules SET state = $3, updated_at = NOW()
		WHERE id = $1 AND state = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("update schedule state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

// Reschedule 修改预约时间和顾问，重新进入 PENDING
func (r *ScheduleRepository) Reschedule(ctx context.Context, id int64, from models.ScheduleState, scheduledAt time.Time, consultantID int64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE checkup_schedules
		SET scheduled_at = $3, consultant_id = $4, state = $5, updated_at = NOW()
		WHERE id = $1 AND state = $2
	`, id, from, scheduledAt, consultantID, models.SchedulePending)
	if err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

// updateMaintenance 写入工单状态镜像，需与工单写入在同一事务内
func updateMaintenance(ctx context.Context, q querier, scheduleID int64, m models.Maintenance) error {
	tag, err := q.Exec(ctx, `
		UPDATE checkup_schedules
		SET maintenance_status = $2, maintenance_check_in = $3, maintenance_check_out = $4,
			service_order = $5, updated_at = NOW()
		WHERE id = $1
	`, scheduleID, m.Status, m.CheckInDate, m.CheckOutDate, m.ServiceOrder)
	if err != nil {
		return fmt.Errorf("update maintenance mirror: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BackfillNumbers 为缺少编号的预约分配编号，可重复执行
func (r *ScheduleRepository) BackfillNumbers(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE checkup_schedules
		SET schedule_number = nextval('checkup_schedule_number_seq')
		WHERE id IN (SELECT id FROM checkup_schedules WHERE schedule_number IS NULL ORDER BY id)
	`)
	if err != nil {
		return 0, fmt.Errorf("backfill schedule numbers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SyncMaintenanceMirror 以工单为准修复预约上的状态镜像，可重复执行
func (r *ScheduleRepository) SyncMaintenanceMirror(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE checkup_schedules s
		SET maintenance_status = t.status,
			service_order = t.ticket_step->>'serviceOrder',
			maintenance_check_in = left(t.ticket_step->>'checkInDate', 10)::date,
			maintenance_check_out = left(t.release_step->>'checkOutDate', 10)::date,
			updated_at = NOW()
		FROM maintenance_tickets t
		WHERE t.schedule_id = s.id
			AND (s.maintenance_status IS DISTINCT FROM t.status
				OR s.service_order IS DISTINCT FROM t.ticket_step->>'serviceOrder'
				OR s.maintenance_check_in IS DISTINCT FROM left(t.ticket_step->>'checkInDate', 10)::date
				OR s.maintenance_check_out IS DISTINCT FROM left(t.release_step->>'checkOutDate', 10)::date)
	`)
	if err != nil {
		return 0, fmt.Errorf("sync maintenance mirror: %w", err)
	}
	return tag.RowsAffected(), nil
}
